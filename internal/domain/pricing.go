package domain

import "fmt"

// Prices are integers in major currency units. Lookups only ever receive
// values drawn from the closed enums; an unknown key is a programming error
// and panics rather than returning a recoverable error.

var planPrices = map[BillingCycle]map[PlanName]int64{
	BillingMonthly: {
		PlanArcade:   9,
		PlanAdvanced: 12,
		PlanPro:      15,
	},
	BillingYearly: {
		PlanArcade:   90,
		PlanAdvanced: 120,
		PlanPro:      150,
	},
}

var addonPrices = map[BillingCycle]map[AddonID]int64{
	BillingMonthly: {
		AddonOnlineService:       1,
		AddonLargerStorage:       2,
		AddonCustomizableProfile: 2,
	},
	BillingYearly: {
		AddonOnlineService:       10,
		AddonLargerStorage:       20,
		AddonCustomizableProfile: 20,
	},
}

var addonTitles = map[AddonID]string{
	AddonOnlineService:       "Online service",
	AddonLargerStorage:       "Larger storage",
	AddonCustomizableProfile: "Customizable profile",
}

// addonCatalog fixes the canonical ordering used when rebuilding selections.
var addonCatalog = []AddonID{
	AddonOnlineService,
	AddonLargerStorage,
	AddonCustomizableProfile,
}

// planCatalog fixes the display ordering of plans on the selection step.
var planCatalog = []PlanName{PlanArcade, PlanAdvanced, PlanPro}

// PlanPrice returns the price for the plan at the given cadence.
func PlanPrice(name PlanName, cycle BillingCycle) int64 {
	price, ok := planPrices[cycle][name]
	if !ok {
		panic(fmt.Sprintf("domain: no price for plan %q at cadence %q", name, cycle))
	}
	return price
}

// AddonPrice returns the price for the add-on at the given cadence.
func AddonPrice(id AddonID, cycle BillingCycle) int64 {
	price, ok := addonPrices[cycle][id]
	if !ok {
		panic(fmt.Sprintf("domain: no price for add-on %q at cadence %q", id, cycle))
	}
	return price
}

// AddonTitle returns the catalog display title for the add-on.
func AddonTitle(id AddonID) string {
	title, ok := addonTitles[id]
	if !ok {
		panic(fmt.Sprintf("domain: no title for add-on %q", id))
	}
	return title
}

// AddonCatalog returns the add-on identifiers in canonical order.
func AddonCatalog() []AddonID {
	out := make([]AddonID, len(addonCatalog))
	copy(out, addonCatalog)
	return out
}

// PlanCatalog returns the plan names in display order.
func PlanCatalog() []PlanName {
	out := make([]PlanName, len(planCatalog))
	copy(out, planCatalog)
	return out
}

// DefaultPlan returns the arcade plan priced at the given cadence.
func DefaultPlan(cycle BillingCycle) Plan {
	return Plan{
		Name:    PlanArcade,
		Price:   PlanPrice(PlanArcade, cycle),
		Billing: cycle,
	}
}

// BuildAddonLines rebuilds the persisted selection wholesale from a set of
// selected add-ons: catalog order, catalog titles, prices at the cadence.
// Unknown identifiers in the set are ignored.
func BuildAddonLines(selected map[AddonID]bool, cycle BillingCycle) []AddonLine {
	lines := make([]AddonLine, 0, len(addonCatalog))
	for _, id := range addonCatalog {
		if !selected[id] {
			continue
		}
		lines = append(lines, AddonLine{
			ID:    id,
			Price: AddonPrice(id, cycle),
			Title: AddonTitle(id),
		})
	}
	return lines
}

// ComputeTotal derives the order total from the plan and add-on lines. It is
// the single total computation shared by the summary and payment paths.
func ComputeTotal(plan *Plan, addons []AddonLine) int64 {
	var total int64
	if plan != nil {
		total = plan.Price
	}
	for _, a := range addons {
		total += a.Price
	}
	return total
}

// MinorUnits converts a major-unit total to the payment provider's minor
// currency unit (kobo for NGN).
func MinorUnits(total int64) int64 {
	return total * 100
}

// Reprice re-derives every cadence-dependent price in the state at the given
// cadence, preserving the plan name and add-on selection. A state without a
// plan receives the default plan. Pure transform; the input is not mutated.
func Reprice(state WizardState, cycle BillingCycle) WizardState {
	out := state
	out.Billing = cycle

	plan := DefaultPlan(cycle)
	if state.Plan != nil && state.Plan.Name != "" {
		plan = Plan{
			Name:    state.Plan.Name,
			Price:   PlanPrice(state.Plan.Name, cycle),
			Billing: cycle,
		}
	}
	out.Plan = &plan

	if len(state.Addons) > 0 {
		selected := make(map[AddonID]bool, len(state.Addons))
		for _, a := range state.Addons {
			selected[a.ID] = true
		}
		out.Addons = BuildAddonLines(selected, cycle)
	}
	return out
}
