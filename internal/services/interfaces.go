package services

import (
	"context"
	"time"

	domain "github.com/formflow/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	WizardState        = domain.WizardState
	PersonalInfo       = domain.PersonalInfo
	Plan               = domain.Plan
	AddonLine          = domain.AddonLine
	BillingCycle       = domain.BillingCycle
	PlanName           = domain.PlanName
	AddonID            = domain.AddonID
	Step               = domain.Step
	Surface            = domain.Surface
	SurfaceView        = domain.SurfaceView
	SystemHealthReport = domain.SystemHealthReport
	SystemHealthCheck  = domain.SystemHealthCheck
)

// WizardSnapshot pairs the canonical state with the rendering of every surface.
type WizardSnapshot struct {
	State WizardState
	Views []SurfaceView
}

// GateResult is the outcome of a step gate evaluation. At most one message is
// carried; a new evaluation replaces any prior one.
type GateResult struct {
	Step          Step
	Allowed       bool
	Message       string
	InvalidFields []string
	Focus         string
}

// SummaryLine is one add-on row of the order summary.
type SummaryLine struct {
	ID        AddonID
	Title     string
	PriceText string
}

// Summary is the rendered order summary for the review step.
type Summary struct {
	PlanLabel     string
	PlanPriceText string
	Billing       BillingCycle
	Addons        []SummaryLine
	TotalLabel    string
	TotalText     string
	Total         int64
}

// WizardService owns the cross-page wizard state and its derived views.
type WizardService interface {
	// GetState loads the session state, creating the default state when absent.
	GetState(ctx context.Context, sessionID string) (WizardSnapshot, error)
	// SavePersonalInfo persists the trimmed and sanitised personal fields.
	SavePersonalInfo(ctx context.Context, sessionID string, info PersonalInfo) (WizardSnapshot, error)
	// ApplyBilling switches the cadence and re-derives every cadence-dependent price.
	ApplyBilling(ctx context.Context, sessionID string, cadence string) (WizardSnapshot, error)
	// SelectPlan persists the named plan priced at the current cadence.
	SelectPlan(ctx context.Context, sessionID string, name string) (WizardSnapshot, error)
	// ToggleAddon flips one add-on and rebuilds the selection wholesale.
	ToggleAddon(ctx context.Context, sessionID string, id string) (WizardSnapshot, error)
	// SetAddons replaces the selection with the given add-ons.
	SetAddons(ctx context.Context, sessionID string, ids []string) (WizardSnapshot, error)
	// AdvanceStep evaluates the gate for leaving the named page.
	AdvanceStep(ctx context.Context, sessionID string, fromPage string) (GateResult, error)
	// Quote renders the order summary from the persisted state.
	Quote(ctx context.Context, sessionID string) (Summary, error)
}

// PaymentHandoff is the provider session returned when payment is initiated.
type PaymentHandoff struct {
	Reference        string
	AuthorizationURL string
	AccessCode       string
	Provider         string
	AmountMinor      int64
	Currency         string
}

// PaymentReceipt is the outcome of a verified payment completion.
type PaymentReceipt struct {
	Reference   string
	RedirectURL string
	AmountMinor int64
	Currency    string
	CompletedAt time.Time
}

// CancelNotice carries the dismissible message shown when the payment window closes.
type CancelNotice struct {
	Message string
}

// CheckoutService hands the quoted total to a payment provider and finalises the session.
type CheckoutService interface {
	// InitiatePayment validates payment preconditions and creates a hosted checkout.
	InitiatePayment(ctx context.Context, sessionID string) (PaymentHandoff, error)
	// CompletePayment verifies the transaction, resets selections, and returns the redirect.
	CompletePayment(ctx context.Context, sessionID string, reference string) (PaymentReceipt, error)
	// CancelPayment acknowledges a dismissed payment window.
	CancelPayment(ctx context.Context, sessionID string) (CancelNotice, error)
}

// SystemService exposes aggregated health information for operational endpoints.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// PaymentEventMessage is the payload published when a payment completes.
type PaymentEventMessage struct {
	Event       string    `json:"event"`
	SessionID   string    `json:"sessionId"`
	Reference   string    `json:"reference"`
	Provider    string    `json:"provider"`
	Currency    string    `json:"currency"`
	AmountMinor int64     `json:"amountMinor"`
	Plan        string    `json:"plan"`
	Billing     string    `json:"billing"`
	Addons      []string  `json:"addons,omitempty"`
	CompletedAt time.Time `json:"completedAt"`
}

// PaymentEventPublisher emits payment lifecycle events to downstream consumers.
type PaymentEventPublisher interface {
	PublishPaymentEvent(ctx context.Context, message PaymentEventMessage) (string, error)
}
