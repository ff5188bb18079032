package domain

import (
	"regexp"
	"strings"
	"time"
)

// BillingCycle enumerates the supported billing cadences.
type BillingCycle string

const (
	// BillingMonthly bills once per month.
	BillingMonthly BillingCycle = "monthly"
	// BillingYearly bills once per year.
	BillingYearly BillingCycle = "yearly"
)

// ParseBillingCycle normalises the input and reports whether it names a known cadence.
func ParseBillingCycle(value string) (BillingCycle, bool) {
	switch BillingCycle(strings.ToLower(strings.TrimSpace(value))) {
	case BillingMonthly:
		return BillingMonthly, true
	case BillingYearly:
		return BillingYearly, true
	}
	return "", false
}

// Valid reports whether the cycle is one of the known cadences.
func (c BillingCycle) Valid() bool {
	return c == BillingMonthly || c == BillingYearly
}

// Label returns the capitalised cadence label used in summaries.
func (c BillingCycle) Label() string {
	if c == BillingYearly {
		return "Yearly"
	}
	return "Monthly"
}

// Suffix returns the short price suffix for the cadence.
func (c BillingCycle) Suffix() string {
	if c == BillingYearly {
		return "yr"
	}
	return "mo"
}

// Unit returns the time unit used when labelling totals.
func (c BillingCycle) Unit() string {
	if c == BillingYearly {
		return "year"
	}
	return "month"
}

// PlanName enumerates the subscription plans on offer.
type PlanName string

const (
	// PlanArcade is the entry-level plan and the default selection.
	PlanArcade PlanName = "arcade"
	// PlanAdvanced is the mid-tier plan.
	PlanAdvanced PlanName = "advanced"
	// PlanPro is the top-tier plan.
	PlanPro PlanName = "pro"
)

// ParsePlanName normalises the input and reports whether it names a known plan.
func ParsePlanName(value string) (PlanName, bool) {
	switch PlanName(strings.ToLower(strings.TrimSpace(value))) {
	case PlanArcade:
		return PlanArcade, true
	case PlanAdvanced:
		return PlanAdvanced, true
	case PlanPro:
		return PlanPro, true
	}
	return "", false
}

// AddonID enumerates the optional add-ons.
type AddonID string

const (
	// AddonOnlineService grants access to multiplayer games.
	AddonOnlineService AddonID = "online-service"
	// AddonLargerStorage extends cloud save storage.
	AddonLargerStorage AddonID = "larger-storage"
	// AddonCustomizableProfile unlocks custom theming.
	AddonCustomizableProfile AddonID = "customizable-profile"
)

// ParseAddonID normalises the input and reports whether it names a known add-on.
func ParseAddonID(value string) (AddonID, bool) {
	switch AddonID(strings.ToLower(strings.TrimSpace(value))) {
	case AddonOnlineService:
		return AddonOnlineService, true
	case AddonLargerStorage:
		return AddonLargerStorage, true
	case AddonCustomizableProfile:
		return AddonCustomizableProfile, true
	}
	return "", false
}

// PersonalInfo holds the customer details collected on the first wizard step.
// Empty fields are a valid intermediate state; step gating enforces completeness.
type PersonalInfo struct {
	Name  string
	Email string
	Phone string
}

// Trimmed returns a copy with surrounding whitespace removed from every field.
func (p PersonalInfo) Trimmed() PersonalInfo {
	return PersonalInfo{
		Name:  strings.TrimSpace(p.Name),
		Email: strings.TrimSpace(p.Email),
		Phone: strings.TrimSpace(p.Phone),
	}
}

// Complete reports whether every field is non-empty after trimming.
func (p PersonalInfo) Complete() bool {
	t := p.Trimmed()
	return t.Name != "" && t.Email != "" && t.Phone != ""
}

// Plan captures the selected plan together with its price at the selected cadence.
// Price must always equal the pricing table entry for (Name, Billing); every write
// path re-derives it rather than trusting the stored value.
type Plan struct {
	Name    PlanName
	Price   int64
	Billing BillingCycle
}

// AddonLine is one selected add-on with its price at the selected cadence.
type AddonLine struct {
	ID    AddonID
	Price int64
	Title string
}

// WizardState is the canonical cross-page state for one wizard session. It is
// the single source of truth both surfaces render from.
type WizardState struct {
	SessionID string
	Personal  PersonalInfo
	Billing   BillingCycle
	Plan      *Plan
	Addons    []AddonLine
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AddonIDs returns the selected add-on identifiers in stored order.
func (s WizardState) AddonIDs() []AddonID {
	ids := make([]AddonID, 0, len(s.Addons))
	for _, a := range s.Addons {
		ids = append(ids, a.ID)
	}
	return ids
}

// HasAddon reports whether the add-on is part of the current selection.
func (s WizardState) HasAddon(id AddonID) bool {
	for _, a := range s.Addons {
		if a.ID == id {
			return true
		}
	}
	return false
}

// EffectiveBilling prefers the cadence embedded in the selected plan and falls
// back to the standalone billing value, defaulting to monthly.
func (s WizardState) EffectiveBilling() BillingCycle {
	if s.Plan != nil && s.Plan.Billing.Valid() {
		return s.Plan.Billing
	}
	if s.Billing.Valid() {
		return s.Billing
	}
	return BillingMonthly
}

// Step identifies one page of the wizard.
type Step int

const (
	// StepPersonalInfo collects name, email, and phone.
	StepPersonalInfo Step = iota
	// StepPlanSelection picks a plan and cadence.
	StepPlanSelection
	// StepAddons toggles optional add-ons.
	StepAddons
	// StepReview shows the summary and starts payment.
	StepReview
)

// Wizard page file names. The final path segment of the current location is
// matched against these; unknown pages behave like the first step.
const (
	PagePersonalInfo = "index.html"
	PagePlanSelect   = "select.html"
	PageAddons       = "pickadons.html"
	PageReview       = "finishingup.html"
	PageThankYou     = "thankyou.html"
)

var pageSteps = map[string]Step{
	PagePersonalInfo: StepPersonalInfo,
	PagePlanSelect:   StepPlanSelection,
	PageAddons:       StepAddons,
	PageReview:       StepReview,
	PageThankYou:     StepReview,
}

// StepForPage maps a page location to its wizard step. The page may be a full
// path; only the final segment is significant.
func StepForPage(page string) Step {
	trimmed := strings.TrimSpace(page)
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	if trimmed == "" {
		return StepPersonalInfo
	}
	if step, ok := pageSteps[strings.ToLower(trimmed)]; ok {
		return step
	}
	return StepPersonalInfo
}

// emailPattern requires a local part and a dotted domain with no whitespace or
// extra @ signs on either side.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail reports whether the address has the local@domain.tld shape.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}
