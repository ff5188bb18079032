package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/formflow/api/internal/domain"
	"github.com/formflow/api/internal/payments"
	"github.com/formflow/api/internal/repositories"
)

// Payment messages surfaced to the customer.
const (
	msgEmailBeforePayment  = "Please complete your email before payment."
	msgInvalidTotal        = "Invalid total amount. Please go back and reselect plan/add-ons."
	msgPaymentWindowClosed = "Payment window closed."
)

const paymentCompletedEvent = "wizard.payment.completed"

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid input parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutUnavailable indicates checkout dependencies are currently unavailable.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
	// ErrCheckoutPaymentFailed indicates the provider did not report a successful payment.
	ErrCheckoutPaymentFailed = errors.New("checkout: payment failed")
)

// BlockedError carries the customer-facing message for a failed payment precondition.
type BlockedError struct {
	Message string
}

func (e *BlockedError) Error() string {
	return "checkout: blocked: " + e.Message
}

// checkoutPaymentManager abstracts payments.Manager for easier testing.
type checkoutPaymentManager interface {
	CreateHostedCheckout(ctx context.Context, paymentCtx payments.PaymentContext, req payments.HostedCheckoutRequest) (payments.CheckoutSession, error)
	VerifyPayment(ctx context.Context, paymentCtx payments.PaymentContext, reference string) (payments.PaymentDetails, error)
}

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	States          repositories.StateRepository
	Payments        checkoutPaymentManager
	Events          PaymentEventPublisher
	Currency        string
	ConfirmationURL string
	Clock           func() time.Time
	Logger          func(ctx context.Context, event string, fields map[string]any)
	IDGenerator     func() string
}

type checkoutService struct {
	states          repositories.StateRepository
	payments        checkoutPaymentManager
	events          PaymentEventPublisher
	currency        string
	confirmationURL string
	now             func() time.Time
	logger          func(ctx context.Context, event string, fields map[string]any)
	newReference    func() string
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.States == nil {
		return nil, errors.New("checkout service: state repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("checkout service: payment manager is required")
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "NGN"
	}
	confirmationURL := strings.TrimSpace(deps.ConfirmationURL)
	if confirmationURL == "" {
		return nil, errors.New("checkout service: confirmation url is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	newReference := deps.IDGenerator
	if newReference == nil {
		newReference = func() string { return ulid.Make().String() }
	}

	return &checkoutService{
		states:          deps.States,
		payments:        deps.Payments,
		events:          deps.Events,
		currency:        currency,
		confirmationURL: confirmationURL,
		now: func() time.Time {
			return clock().UTC()
		},
		logger:       logger,
		newReference: newReference,
	}, nil
}

// InitiatePayment validates payment preconditions and creates a hosted checkout.
// Precondition failures return a BlockedError; the first failing check wins.
func (s *checkoutService) InitiatePayment(ctx context.Context, sessionID string) (PaymentHandoff, error) {
	if s == nil || s.states == nil || s.payments == nil {
		return PaymentHandoff{}, ErrCheckoutUnavailable
	}

	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		return PaymentHandoff{}, ErrCheckoutInvalidInput
	}

	state, err := s.states.GetState(ctx, sid)
	if err != nil {
		if isRepoNotFound(err) {
			return PaymentHandoff{}, &BlockedError{Message: msgEmailBeforePayment}
		}
		return PaymentHandoff{}, s.translateRepoError(err)
	}

	email := strings.TrimSpace(state.Personal.Email)
	if email == "" || !domain.ValidEmail(email) {
		return PaymentHandoff{}, &BlockedError{Message: msgEmailBeforePayment}
	}

	cycle := state.EffectiveBilling()
	total := domain.ComputeTotal(state.Plan, state.Addons)
	amountMinor := domain.MinorUnits(total)
	if amountMinor <= 0 {
		return PaymentHandoff{}, &BlockedError{Message: msgInvalidTotal}
	}

	reference := s.newReference()
	session, err := s.payments.CreateHostedCheckout(ctx, payments.PaymentContext{Currency: s.currency}, payments.HostedCheckoutRequest{
		Reference:    reference,
		Email:        email,
		Amount:       amountMinor,
		Currency:     s.currency,
		CustomerName: state.Personal.Name,
		CallbackURL:  s.confirmationURL,
		Metadata:     checkoutMetadata(state, cycle, total),
		Items:        checkoutLineItems(state, cycle, s.currency),
	})
	if err != nil {
		s.logger(ctx, "checkout.payment.create_failed", map[string]any{
			"sessionId": sid,
			"error":     err.Error(),
		})
		return PaymentHandoff{}, fmt.Errorf("%w: %s", ErrCheckoutPaymentFailed, err)
	}

	s.logger(ctx, "checkout.payment.initiated", map[string]any{
		"sessionId":   sid,
		"reference":   session.Reference,
		"provider":    session.Provider,
		"amountMinor": amountMinor,
	})

	return PaymentHandoff{
		Reference:        session.Reference,
		AuthorizationURL: session.RedirectURL,
		AccessCode:       session.AccessCode,
		Provider:         session.Provider,
		AmountMinor:      amountMinor,
		Currency:         s.currency,
	}, nil
}

// CompletePayment verifies the transaction, resets the wizard selections, and
// returns the confirmation redirect. Storage and event failures after a
// verified payment are logged and swallowed.
func (s *checkoutService) CompletePayment(ctx context.Context, sessionID string, reference string) (PaymentReceipt, error) {
	if s == nil || s.states == nil || s.payments == nil {
		return PaymentReceipt{}, ErrCheckoutUnavailable
	}

	sid := strings.TrimSpace(sessionID)
	ref := strings.TrimSpace(reference)
	if sid == "" || ref == "" {
		return PaymentReceipt{}, ErrCheckoutInvalidInput
	}

	details, err := s.payments.VerifyPayment(ctx, payments.PaymentContext{Currency: s.currency}, ref)
	if err != nil {
		return PaymentReceipt{}, fmt.Errorf("%w: %s", ErrCheckoutPaymentFailed, err)
	}
	if details.Status != payments.StatusSucceeded {
		return PaymentReceipt{}, fmt.Errorf("%w: transaction %s is %s", ErrCheckoutPaymentFailed, ref, details.Status)
	}

	state, stateErr := s.states.GetState(ctx, sid)

	if _, err := s.states.ResetSelections(ctx, sid); err != nil && !isRepoNotFound(err) {
		s.logger(ctx, "checkout.reset_failed", map[string]any{
			"sessionId": sid,
			"reference": ref,
			"error":     err.Error(),
		})
	}

	completedAt := s.now()
	if details.PaidAt != nil {
		completedAt = details.PaidAt.UTC()
	}

	if s.events != nil {
		message := PaymentEventMessage{
			Event:       paymentCompletedEvent,
			SessionID:   sid,
			Reference:   ref,
			Provider:    details.Provider,
			Currency:    firstNonEmpty(details.Currency, s.currency),
			AmountMinor: details.Amount,
			CompletedAt: completedAt,
		}
		if stateErr == nil {
			if state.Plan != nil {
				message.Plan = string(state.Plan.Name)
			}
			message.Billing = string(state.EffectiveBilling())
			for _, line := range state.Addons {
				message.Addons = append(message.Addons, string(line.ID))
			}
		}
		if _, err := s.events.PublishPaymentEvent(ctx, message); err != nil {
			s.logger(ctx, "checkout.event_publish_failed", map[string]any{
				"sessionId": sid,
				"reference": ref,
				"error":     err.Error(),
			})
		}
	}

	s.logger(ctx, "checkout.payment.completed", map[string]any{
		"sessionId": sid,
		"reference": ref,
		"provider":  details.Provider,
	})

	return PaymentReceipt{
		Reference:   ref,
		RedirectURL: s.confirmationURL + "?reference=" + ref,
		AmountMinor: details.Amount,
		Currency:    firstNonEmpty(details.Currency, s.currency),
		CompletedAt: completedAt,
	}, nil
}

// CancelPayment acknowledges a dismissed payment window without touching state.
func (s *checkoutService) CancelPayment(ctx context.Context, sessionID string) (CancelNotice, error) {
	if s == nil {
		return CancelNotice{}, ErrCheckoutUnavailable
	}
	s.logger(ctx, "checkout.payment.cancelled", map[string]any{
		"sessionId": strings.TrimSpace(sessionID),
	})
	return CancelNotice{Message: msgPaymentWindowClosed}, nil
}

func (s *checkoutService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
		return ErrCheckoutUnavailable
	}
	return ErrCheckoutUnavailable
}

func checkoutMetadata(state WizardState, cycle BillingCycle, total int64) map[string]string {
	metadata := map[string]string{
		"customer_name": strings.TrimSpace(state.Personal.Name),
		"phone":         strings.TrimSpace(state.Personal.Phone),
		"billing":       string(cycle),
		"total":         domain.FormatTotal(total, cycle),
	}
	if state.Plan != nil {
		metadata["plan"] = domain.DisplayName(string(state.Plan.Name))
	}
	if titles := addonTitles(state.Addons); titles != "" {
		metadata["addons"] = titles
	}
	return metadata
}

func checkoutLineItems(state WizardState, cycle BillingCycle, currency string) []payments.CheckoutLineItem {
	items := make([]payments.CheckoutLineItem, 0, 1+len(state.Addons))
	if state.Plan != nil {
		items = append(items, payments.CheckoutLineItem{
			Name:     fmt.Sprintf("%s (%s)", domain.DisplayName(string(state.Plan.Name)), cycle.Label()),
			Quantity: 1,
			Amount:   domain.MinorUnits(state.Plan.Price),
			Currency: currency,
		})
	}
	for _, line := range state.Addons {
		items = append(items, payments.CheckoutLineItem{
			Name:     line.Title,
			Quantity: 1,
			Amount:   domain.MinorUnits(line.Price),
			Currency: currency,
		})
	}
	return items
}

func addonTitles(lines []AddonLine) string {
	titles := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line.Title) == "" {
			continue
		}
		titles = append(titles, line.Title)
	}
	return strings.Join(titles, ", ")
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
