package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	domain "github.com/formflow/api/internal/domain"
	"github.com/formflow/api/internal/repositories"
)

// Gate messages shown inline on the wizard surfaces.
const (
	msgInvalidEmail   = "Please enter a valid email address."
	msgRequiredFields = "Please fill in all required fields."
	msgSelectPlan     = "Please select a plan to continue."
)

var (
	// ErrWizardInvalidInput indicates the caller supplied invalid input.
	ErrWizardInvalidInput = errors.New("wizard service: invalid input")
	// ErrWizardUnavailable indicates the wizard service cannot fulfil the request.
	ErrWizardUnavailable = errors.New("wizard service: unavailable")
	// ErrWizardConflict indicates the state could not be updated due to concurrent modifications.
	ErrWizardConflict = errors.New("wizard service: conflict")
)

// WizardServiceDeps wires the repository and ambient dependencies for wizard operations.
type WizardServiceDeps struct {
	Repository repositories.StateRepository
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type wizardService struct {
	repo      repositories.StateRepository
	now       func() time.Time
	logger    func(ctx context.Context, event string, fields map[string]any)
	sanitizer *bluemonday.Policy
}

// NewWizardService constructs a WizardService enforcing dependency validation.
func NewWizardService(deps WizardServiceDeps) (WizardService, error) {
	if deps.Repository == nil {
		return nil, errors.New("wizard service: repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &wizardService{
		repo: deps.Repository,
		now: func() time.Time {
			return clock().UTC()
		},
		logger:    logger,
		sanitizer: bluemonday.StrictPolicy(),
	}, nil
}

// GetState loads the session state, persisting the default state when absent.
func (s *wizardService) GetState(ctx context.Context, sessionID string) (WizardSnapshot, error) {
	if s == nil || s.repo == nil {
		return WizardSnapshot{}, ErrWizardUnavailable
	}

	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		return WizardSnapshot{}, ErrWizardInvalidInput
	}

	state, err := s.repo.GetState(ctx, sid)
	if err != nil {
		if !isRepoNotFound(err) {
			return WizardSnapshot{}, s.translateRepoError(err)
		}
		state = s.defaultState(sid)
		saved, err := s.repo.UpsertState(ctx, state, nil)
		if err != nil {
			return WizardSnapshot{}, s.translateRepoError(err)
		}
		state = saved
		s.logger(ctx, "wizard.state.initialised", map[string]any{
			"sessionId": sid,
		})
	}

	state = domain.Reprice(state, state.EffectiveBilling())
	return s.snapshot(state), nil
}

// SavePersonalInfo persists the trimmed and sanitised personal fields.
func (s *wizardService) SavePersonalInfo(ctx context.Context, sessionID string, info PersonalInfo) (WizardSnapshot, error) {
	return s.mutate(ctx, sessionID, func(state WizardState) (WizardState, error) {
		trimmed := info.Trimmed()
		state.Personal = domain.PersonalInfo{
			Name:  s.sanitizer.Sanitize(trimmed.Name),
			Email: s.sanitizer.Sanitize(trimmed.Email),
			Phone: s.sanitizer.Sanitize(trimmed.Phone),
		}
		return state, nil
	})
}

// ApplyBilling switches the cadence and re-derives every cadence-dependent price.
func (s *wizardService) ApplyBilling(ctx context.Context, sessionID string, cadence string) (WizardSnapshot, error) {
	cycle, ok := domain.ParseBillingCycle(cadence)
	if !ok {
		return WizardSnapshot{}, fmt.Errorf("%w: unknown billing cadence %q", ErrWizardInvalidInput, cadence)
	}
	return s.mutate(ctx, sessionID, func(state WizardState) (WizardState, error) {
		return domain.Reprice(state, cycle), nil
	})
}

// SelectPlan persists the named plan priced at the current cadence.
func (s *wizardService) SelectPlan(ctx context.Context, sessionID string, name string) (WizardSnapshot, error) {
	planName, ok := domain.ParsePlanName(name)
	if !ok {
		return WizardSnapshot{}, fmt.Errorf("%w: unknown plan %q", ErrWizardInvalidInput, name)
	}
	return s.mutate(ctx, sessionID, func(state WizardState) (WizardState, error) {
		cycle := state.EffectiveBilling()
		state.Plan = &domain.Plan{
			Name:    planName,
			Price:   domain.PlanPrice(planName, cycle),
			Billing: cycle,
		}
		state.Billing = cycle
		return state, nil
	})
}

// ToggleAddon flips one add-on and rebuilds the selection wholesale.
func (s *wizardService) ToggleAddon(ctx context.Context, sessionID string, id string) (WizardSnapshot, error) {
	addonID, ok := domain.ParseAddonID(id)
	if !ok {
		return WizardSnapshot{}, fmt.Errorf("%w: unknown add-on %q", ErrWizardInvalidInput, id)
	}
	return s.mutate(ctx, sessionID, func(state WizardState) (WizardState, error) {
		selected := selectionSet(state.Addons)
		selected[addonID] = !selected[addonID]
		state.Addons = domain.BuildAddonLines(selected, state.EffectiveBilling())
		return state, nil
	})
}

// SetAddons replaces the selection with the given add-ons.
func (s *wizardService) SetAddons(ctx context.Context, sessionID string, ids []string) (WizardSnapshot, error) {
	selected := make(map[domain.AddonID]bool, len(ids))
	for _, raw := range ids {
		id, ok := domain.ParseAddonID(raw)
		if !ok {
			return WizardSnapshot{}, fmt.Errorf("%w: unknown add-on %q", ErrWizardInvalidInput, raw)
		}
		selected[id] = true
	}
	return s.mutate(ctx, sessionID, func(state WizardState) (WizardState, error) {
		state.Addons = domain.BuildAddonLines(selected, state.EffectiveBilling())
		return state, nil
	})
}

// AdvanceStep evaluates the gate for leaving the named page. The personal-info
// and plan steps gate on persisted state; later steps always pass.
func (s *wizardService) AdvanceStep(ctx context.Context, sessionID string, fromPage string) (GateResult, error) {
	if s == nil || s.repo == nil {
		return GateResult{}, ErrWizardUnavailable
	}

	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		return GateResult{}, ErrWizardInvalidInput
	}

	step := domain.StepForPage(fromPage)
	state, err := s.loadOrDefault(ctx, sid)
	if err != nil {
		return GateResult{}, err
	}

	result := evaluateGate(state, step)
	if !result.Allowed {
		s.logger(ctx, "wizard.step.blocked", map[string]any{
			"sessionId": sid,
			"step":      int(step),
			"message":   result.Message,
		})
	}
	return result, nil
}

// Quote renders the order summary from the persisted state.
func (s *wizardService) Quote(ctx context.Context, sessionID string) (Summary, error) {
	if s == nil || s.repo == nil {
		return Summary{}, ErrWizardUnavailable
	}

	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		return Summary{}, ErrWizardInvalidInput
	}

	state, err := s.loadOrDefault(ctx, sid)
	if err != nil {
		return Summary{}, err
	}
	return buildSummary(state), nil
}

func (s *wizardService) mutate(ctx context.Context, sessionID string, apply func(WizardState) (WizardState, error)) (WizardSnapshot, error) {
	if s == nil || s.repo == nil {
		return WizardSnapshot{}, ErrWizardUnavailable
	}

	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		return WizardSnapshot{}, ErrWizardInvalidInput
	}

	state, err := s.repo.GetState(ctx, sid)
	exists := true
	if err != nil {
		if !isRepoNotFound(err) {
			return WizardSnapshot{}, s.translateRepoError(err)
		}
		state = s.defaultState(sid)
		exists = false
	}

	var expected *time.Time
	if exists && !state.UpdatedAt.IsZero() {
		previous := state.UpdatedAt.UTC()
		expected = &previous
	}

	state, err = apply(state)
	if err != nil {
		return WizardSnapshot{}, err
	}

	now := s.now()
	state.UpdatedAt = now
	if state.CreatedAt.IsZero() {
		state.CreatedAt = now
	}

	saved, err := s.repo.UpsertState(ctx, state, expected)
	if err != nil {
		return WizardSnapshot{}, s.translateRepoError(err)
	}
	return s.snapshot(saved), nil
}

func (s *wizardService) loadOrDefault(ctx context.Context, sessionID string) (WizardState, error) {
	state, err := s.repo.GetState(ctx, sessionID)
	if err != nil {
		if isRepoNotFound(err) {
			return s.defaultState(sessionID), nil
		}
		return WizardState{}, s.translateRepoError(err)
	}
	return state, nil
}

func (s *wizardService) defaultState(sessionID string) WizardState {
	now := s.now()
	plan := domain.DefaultPlan(domain.BillingMonthly)
	return WizardState{
		SessionID: sessionID,
		Billing:   domain.BillingMonthly,
		Plan:      &plan,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *wizardService) snapshot(state WizardState) WizardSnapshot {
	return WizardSnapshot{
		State: state,
		Views: domain.RenderAll(state),
	}
}

func (s *wizardService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsConflict():
			return ErrWizardConflict
		case repoErr.IsUnavailable():
			return ErrWizardUnavailable
		}
	}
	return ErrWizardUnavailable
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func selectionSet(lines []AddonLine) map[domain.AddonID]bool {
	selected := make(map[domain.AddonID]bool, len(lines))
	for _, line := range lines {
		selected[line.ID] = true
	}
	return selected
}

func evaluateGate(state WizardState, step Step) GateResult {
	result := GateResult{Step: step, Allowed: true}

	switch step {
	case domain.StepPersonalInfo:
		personal := state.Personal.Trimmed()
		invalid := make([]string, 0, 3)
		if personal.Name == "" {
			invalid = append(invalid, "name")
		}
		if personal.Email == "" {
			invalid = append(invalid, "email")
		} else if !domain.ValidEmail(personal.Email) {
			invalid = append(invalid, "email")
			result.Allowed = false
			result.Message = msgInvalidEmail
		}
		if personal.Phone == "" {
			invalid = append(invalid, "phone")
		}
		if len(invalid) > 0 {
			result.Allowed = false
			result.InvalidFields = invalid
			result.Focus = invalid[0]
			if result.Message == "" {
				result.Message = msgRequiredFields
			}
		}
	case domain.StepPlanSelection:
		if state.Plan == nil || state.Plan.Name == "" {
			result.Allowed = false
			result.Message = msgSelectPlan
			result.Focus = "plan"
		}
	}

	return result
}

func buildSummary(state WizardState) Summary {
	cycle := state.EffectiveBilling()

	summary := Summary{
		Billing:    cycle,
		TotalLabel: domain.TotalLabel(cycle),
	}

	plan := state.Plan
	if plan != nil && plan.Name != "" {
		summary.PlanLabel = fmt.Sprintf("%s (%s)", domain.DisplayName(string(plan.Name)), cycle.Label())
		summary.PlanPriceText = domain.FormatPlanPrice(plan.Price, cycle)
	}

	for _, line := range state.Addons {
		summary.Addons = append(summary.Addons, SummaryLine{
			ID:        line.ID,
			Title:     line.Title,
			PriceText: domain.FormatAddonPrice(line.Price, cycle),
		})
	}

	summary.Total = domain.ComputeTotal(plan, state.Addons)
	summary.TotalText = domain.FormatTotal(summary.Total, cycle)
	return summary
}
