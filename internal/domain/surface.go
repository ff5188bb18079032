package domain

import (
	"fmt"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Surface identifies one of the two parallel renderings of the wizard.
type Surface string

const (
	// SurfaceCompact is the narrow layout.
	SurfaceCompact Surface = "compact"
	// SurfaceWide is the wide layout.
	SurfaceWide Surface = "wide"
)

// Surfaces returns every surface in rendering order.
func Surfaces() []Surface {
	return []Surface{SurfaceCompact, SurfaceWide}
}

// PlanView is the rendered representation of one plan card on a surface.
type PlanView struct {
	Name       PlanName
	Display    string
	PriceText  string
	FreeMonths bool
	Selected   bool
}

// AddonView is the rendered representation of one add-on row on a surface.
type AddonView struct {
	ID        AddonID
	Title     string
	PriceText string
	Checked   bool
}

// SurfaceView is the full cadence-dependent rendering of one surface. Both
// surfaces are always rendered from the same state, so two views produced by
// the same call can only differ in their Surface field.
type SurfaceView struct {
	Surface       Surface
	Billing       BillingCycle
	MonthlyActive bool
	YearlyActive  bool
	Plans         []PlanView
	Addons        []AddonView
}

var titleCaser = cases.Title(language.English, cases.NoLower)

// DisplayName capitalises a catalog name for display.
func DisplayName(name string) string {
	return titleCaser.String(name)
}

// FormatPlanPrice renders a plan price with its cadence suffix, e.g. "$9/mo".
func FormatPlanPrice(price int64, cycle BillingCycle) string {
	return fmt.Sprintf("$%d/%s", price, cycle.Suffix())
}

// FormatAddonPrice renders an add-on price with its cadence suffix, e.g. "+$1/mo".
func FormatAddonPrice(price int64, cycle BillingCycle) string {
	return fmt.Sprintf("+$%d/%s", price, cycle.Suffix())
}

// FormatTotal renders the order total with its cadence suffix.
func FormatTotal(total int64, cycle BillingCycle) string {
	return fmt.Sprintf("+$%d/%s", total, cycle.Suffix())
}

// TotalLabel renders the total caption for the cadence, e.g. "Total (per month)".
func TotalLabel(cycle BillingCycle) string {
	return fmt.Sprintf("Total (per %s)", cycle.Unit())
}

// RenderSurface produces the cadence-dependent view of one surface from the
// canonical state. Pure: equal states render equal views.
func RenderSurface(state WizardState, surface Surface) SurfaceView {
	cycle := state.EffectiveBilling()
	yearly := cycle == BillingYearly

	view := SurfaceView{
		Surface:       surface,
		Billing:       cycle,
		MonthlyActive: !yearly,
		YearlyActive:  yearly,
	}

	for _, name := range planCatalog {
		view.Plans = append(view.Plans, PlanView{
			Name:       name,
			Display:    DisplayName(string(name)),
			PriceText:  FormatPlanPrice(PlanPrice(name, cycle), cycle),
			FreeMonths: yearly,
			Selected:   state.Plan != nil && state.Plan.Name == name,
		})
	}

	for _, id := range addonCatalog {
		view.Addons = append(view.Addons, AddonView{
			ID:        id,
			Title:     AddonTitle(id),
			PriceText: FormatAddonPrice(AddonPrice(id, cycle), cycle),
			Checked:   state.HasAddon(id),
		})
	}

	return view
}

// RenderAll renders every surface from the same state.
func RenderAll(state WizardState) []SurfaceView {
	surfaces := Surfaces()
	views := make([]SurfaceView, 0, len(surfaces))
	for _, s := range surfaces {
		views = append(views, RenderSurface(state, s))
	}
	return views
}
