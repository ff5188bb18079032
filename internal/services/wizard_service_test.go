package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/formflow/api/internal/domain"
)

type stubRepoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *stubRepoError) Error() string       { return "stub repository error" }
func (e *stubRepoError) IsNotFound() bool    { return e.notFound }
func (e *stubRepoError) IsConflict() bool    { return e.conflict }
func (e *stubRepoError) IsUnavailable() bool { return e.unavailable }

type stubStateRepository struct {
	states     map[string]domain.WizardState
	getErr     error
	upsertErr  error
	resetErr   error
	lastExpect *time.Time
	upserts    int
	resets     int
}

func newStubStateRepository() *stubStateRepository {
	return &stubStateRepository{states: map[string]domain.WizardState{}}
}

func (r *stubStateRepository) GetState(ctx context.Context, sessionID string) (domain.WizardState, error) {
	if r.getErr != nil {
		return domain.WizardState{}, r.getErr
	}
	state, ok := r.states[sessionID]
	if !ok {
		return domain.WizardState{}, &stubRepoError{notFound: true}
	}
	return state, nil
}

func (r *stubStateRepository) UpsertState(ctx context.Context, state domain.WizardState, expectedUpdate *time.Time) (domain.WizardState, error) {
	r.upserts++
	r.lastExpect = expectedUpdate
	if r.upsertErr != nil {
		return domain.WizardState{}, r.upsertErr
	}
	r.states[state.SessionID] = state
	return state, nil
}

func (r *stubStateRepository) ResetSelections(ctx context.Context, sessionID string) (domain.WizardState, error) {
	r.resets++
	if r.resetErr != nil {
		return domain.WizardState{}, r.resetErr
	}
	state, ok := r.states[sessionID]
	if !ok {
		return domain.WizardState{}, &stubRepoError{notFound: true}
	}
	state.Billing = domain.BillingMonthly
	state.Plan = nil
	state.Addons = nil
	r.states[sessionID] = state
	return state, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestWizardService(t *testing.T, repo *stubStateRepository) WizardService {
	t.Helper()
	svc, err := NewWizardService(WizardServiceDeps{
		Repository: repo,
		Clock:      fixedClock(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)),
	})
	if err != nil {
		t.Fatalf("new wizard service: %v", err)
	}
	return svc
}

func TestGetStateInitialisesDefaults(t *testing.T) {
	repo := newStubStateRepository()
	svc := newTestWizardService(t, repo)

	snap, err := svc.GetState(context.Background(), "sess_1")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}

	if snap.State.Billing != domain.BillingMonthly {
		t.Fatalf("expected monthly default, got %q", snap.State.Billing)
	}
	if snap.State.Plan == nil || snap.State.Plan.Name != domain.PlanArcade {
		t.Fatalf("expected default arcade plan, got %+v", snap.State.Plan)
	}
	if snap.State.Plan.Price != 9 {
		t.Fatalf("expected arcade monthly price 9, got %d", snap.State.Plan.Price)
	}
	if repo.upserts != 1 {
		t.Fatalf("expected default state to be persisted once, got %d upserts", repo.upserts)
	}
	if len(snap.Views) != 2 {
		t.Fatalf("expected views for both surfaces, got %d", len(snap.Views))
	}
	if snap.Views[0].Plans[0].Selected != snap.Views[1].Plans[0].Selected {
		t.Fatalf("expected surfaces to agree on selection")
	}
}

func TestSavePersonalInfoTrimsAndSanitises(t *testing.T) {
	repo := newStubStateRepository()
	svc := newTestWizardService(t, repo)

	snap, err := svc.SavePersonalInfo(context.Background(), "sess_1", PersonalInfo{
		Name:  "  <script>alert(1)</script>Ada Lovelace  ",
		Email: " ada@example.com ",
		Phone: " +234 801 234 5678 ",
	})
	if err != nil {
		t.Fatalf("save personal info: %v", err)
	}

	if snap.State.Personal.Name != "Ada Lovelace" {
		t.Fatalf("expected sanitised name, got %q", snap.State.Personal.Name)
	}
	if snap.State.Personal.Email != "ada@example.com" {
		t.Fatalf("expected trimmed email, got %q", snap.State.Personal.Email)
	}
	if snap.State.Personal.Phone != "+234 801 234 5678" {
		t.Fatalf("expected trimmed phone, got %q", snap.State.Personal.Phone)
	}
}

func TestApplyBillingRepricesPlanAndAddons(t *testing.T) {
	repo := newStubStateRepository()
	repo.states["sess_1"] = domain.WizardState{
		SessionID: "sess_1",
		Billing:   domain.BillingMonthly,
		Plan:      &domain.Plan{Name: domain.PlanAdvanced, Price: 12, Billing: domain.BillingMonthly},
		Addons: []domain.AddonLine{
			{ID: domain.AddonOnlineService, Price: 1, Title: "Online service"},
			{ID: domain.AddonLargerStorage, Price: 2, Title: "Larger storage"},
		},
		UpdatedAt: time.Date(2024, 4, 30, 9, 0, 0, 0, time.UTC),
	}
	svc := newTestWizardService(t, repo)

	snap, err := svc.ApplyBilling(context.Background(), "sess_1", "yearly")
	if err != nil {
		t.Fatalf("apply billing: %v", err)
	}

	if snap.State.Billing != domain.BillingYearly {
		t.Fatalf("expected yearly cadence, got %q", snap.State.Billing)
	}
	if snap.State.Plan.Price != 120 {
		t.Fatalf("expected advanced yearly price 120, got %d", snap.State.Plan.Price)
	}
	if snap.State.Addons[0].Price != 10 || snap.State.Addons[1].Price != 20 {
		t.Fatalf("expected repriced add-ons, got %+v", snap.State.Addons)
	}
	if repo.lastExpect == nil {
		t.Fatalf("expected optimistic precondition on existing state")
	}
}

func TestApplyBillingIsIdempotent(t *testing.T) {
	repo := newStubStateRepository()
	svc := newTestWizardService(t, repo)

	first, err := svc.ApplyBilling(context.Background(), "sess_1", "yearly")
	if err != nil {
		t.Fatalf("apply billing: %v", err)
	}
	second, err := svc.ApplyBilling(context.Background(), "sess_1", "yearly")
	if err != nil {
		t.Fatalf("apply billing twice: %v", err)
	}

	if first.State.Plan.Price != second.State.Plan.Price || first.State.Billing != second.State.Billing {
		t.Fatalf("expected identical state after repeated cadence: %+v vs %+v", first.State, second.State)
	}
	if len(first.Views) != len(second.Views) {
		t.Fatalf("expected identical view sets")
	}
	for i := range first.Views {
		if first.Views[i].Plans[1].PriceText != second.Views[i].Plans[1].PriceText {
			t.Fatalf("expected identical rendered views")
		}
	}
}

func TestApplyBillingRejectsUnknownCadence(t *testing.T) {
	svc := newTestWizardService(t, newStubStateRepository())
	if _, err := svc.ApplyBilling(context.Background(), "sess_1", "weekly"); !errors.Is(err, ErrWizardInvalidInput) {
		t.Fatalf("expected ErrWizardInvalidInput, got %v", err)
	}
}

func TestSelectPlanUsesCurrentCadence(t *testing.T) {
	repo := newStubStateRepository()
	repo.states["sess_1"] = domain.WizardState{
		SessionID: "sess_1",
		Billing:   domain.BillingYearly,
		UpdatedAt: time.Date(2024, 4, 30, 9, 0, 0, 0, time.UTC),
	}
	svc := newTestWizardService(t, repo)

	snap, err := svc.SelectPlan(context.Background(), "sess_1", "Pro")
	if err != nil {
		t.Fatalf("select plan: %v", err)
	}
	if snap.State.Plan.Name != domain.PlanPro || snap.State.Plan.Price != 150 {
		t.Fatalf("expected pro yearly at 150, got %+v", snap.State.Plan)
	}
	for _, view := range snap.Views {
		if !view.Plans[2].Selected {
			t.Fatalf("expected pro selected on surface %q", view.Surface)
		}
	}
}

func TestSelectPlanRejectsUnknownPlan(t *testing.T) {
	svc := newTestWizardService(t, newStubStateRepository())
	if _, err := svc.SelectPlan(context.Background(), "sess_1", "ultimate"); !errors.Is(err, ErrWizardInvalidInput) {
		t.Fatalf("expected ErrWizardInvalidInput, got %v", err)
	}
}

func TestToggleAddonRebuildsInCatalogOrder(t *testing.T) {
	repo := newStubStateRepository()
	svc := newTestWizardService(t, repo)

	if _, err := svc.ToggleAddon(context.Background(), "sess_1", "customizable-profile"); err != nil {
		t.Fatalf("toggle first add-on: %v", err)
	}
	snap, err := svc.ToggleAddon(context.Background(), "sess_1", "online-service")
	if err != nil {
		t.Fatalf("toggle second add-on: %v", err)
	}

	if len(snap.State.Addons) != 2 {
		t.Fatalf("expected two add-ons, got %d", len(snap.State.Addons))
	}
	if snap.State.Addons[0].ID != domain.AddonOnlineService || snap.State.Addons[1].ID != domain.AddonCustomizableProfile {
		t.Fatalf("expected catalog order, got %+v", snap.State.Addons)
	}

	snap, err = svc.ToggleAddon(context.Background(), "sess_1", "online-service")
	if err != nil {
		t.Fatalf("toggle off: %v", err)
	}
	if len(snap.State.Addons) != 1 || snap.State.Addons[0].ID != domain.AddonCustomizableProfile {
		t.Fatalf("expected online-service removed, got %+v", snap.State.Addons)
	}
}

func TestSetAddonsReplacesSelection(t *testing.T) {
	repo := newStubStateRepository()
	svc := newTestWizardService(t, repo)

	snap, err := svc.SetAddons(context.Background(), "sess_1", []string{"larger-storage", "online-service"})
	if err != nil {
		t.Fatalf("set addons: %v", err)
	}
	if len(snap.State.Addons) != 2 {
		t.Fatalf("expected two add-ons, got %d", len(snap.State.Addons))
	}
	if snap.State.Addons[0].ID != domain.AddonOnlineService {
		t.Fatalf("expected catalog order, got %+v", snap.State.Addons)
	}

	if _, err := svc.SetAddons(context.Background(), "sess_1", []string{"jetpack"}); !errors.Is(err, ErrWizardInvalidInput) {
		t.Fatalf("expected ErrWizardInvalidInput for unknown add-on, got %v", err)
	}
}

func TestAdvanceStepPersonalInfoGate(t *testing.T) {
	repo := newStubStateRepository()
	svc := newTestWizardService(t, repo)

	repo.states["sess_1"] = domain.WizardState{SessionID: "sess_1"}

	result, err := svc.AdvanceStep(context.Background(), "sess_1", "/index.html")
	if err != nil {
		t.Fatalf("advance step: %v", err)
	}
	if result.Allowed {
		t.Fatalf("expected empty personal info to block")
	}
	if result.Message != "Please fill in all required fields." {
		t.Fatalf("unexpected message %q", result.Message)
	}
	if len(result.InvalidFields) != 3 || result.Focus != "name" {
		t.Fatalf("expected all fields invalid with name focus, got %+v", result)
	}
}

func TestAdvanceStepInvalidEmailTakesPrecedence(t *testing.T) {
	repo := newStubStateRepository()
	repo.states["sess_1"] = domain.WizardState{
		SessionID: "sess_1",
		Personal:  domain.PersonalInfo{Name: "Ada", Email: "not-an-email", Phone: ""},
	}
	svc := newTestWizardService(t, repo)

	result, err := svc.AdvanceStep(context.Background(), "sess_1", "index.html")
	if err != nil {
		t.Fatalf("advance step: %v", err)
	}
	if result.Allowed {
		t.Fatalf("expected malformed email to block")
	}
	if result.Message != "Please enter a valid email address." {
		t.Fatalf("expected email message to take precedence, got %q", result.Message)
	}
}

func TestAdvanceStepPersonalInfoPasses(t *testing.T) {
	repo := newStubStateRepository()
	repo.states["sess_1"] = domain.WizardState{
		SessionID: "sess_1",
		Personal:  domain.PersonalInfo{Name: "Ada", Email: "ada@example.com", Phone: "0801"},
	}
	svc := newTestWizardService(t, repo)

	result, err := svc.AdvanceStep(context.Background(), "sess_1", "index.html")
	if err != nil {
		t.Fatalf("advance step: %v", err)
	}
	if !result.Allowed || result.Message != "" {
		t.Fatalf("expected gate to pass, got %+v", result)
	}
}

func TestAdvanceStepPlanGate(t *testing.T) {
	repo := newStubStateRepository()
	repo.states["sess_1"] = domain.WizardState{SessionID: "sess_1"}
	svc := newTestWizardService(t, repo)

	result, err := svc.AdvanceStep(context.Background(), "sess_1", "select.html")
	if err != nil {
		t.Fatalf("advance step: %v", err)
	}
	if result.Allowed {
		t.Fatalf("expected missing plan to block")
	}
	if result.Message != "Please select a plan to continue." {
		t.Fatalf("unexpected message %q", result.Message)
	}
	if result.Focus != "plan" {
		t.Fatalf("expected plan focus, got %q", result.Focus)
	}

	repo.states["sess_1"] = domain.WizardState{
		SessionID: "sess_1",
		Plan:      &domain.Plan{Name: domain.PlanArcade, Price: 9, Billing: domain.BillingMonthly},
	}
	result, err = svc.AdvanceStep(context.Background(), "sess_1", "select.html")
	if err != nil {
		t.Fatalf("advance step: %v", err)
	}
	if !result.Allowed {
		t.Fatalf("expected persisted plan to pass the gate")
	}
}

func TestAdvanceStepLaterStepsPass(t *testing.T) {
	repo := newStubStateRepository()
	repo.states["sess_1"] = domain.WizardState{SessionID: "sess_1"}
	svc := newTestWizardService(t, repo)

	for _, page := range []string{"pickadons.html", "finishingup.html", "unknown.html"} {
		result, err := svc.AdvanceStep(context.Background(), "sess_1", page)
		if err != nil {
			t.Fatalf("advance step %s: %v", page, err)
		}
		if page == "unknown.html" {
			if result.Allowed {
				t.Fatalf("expected unknown page to behave like the first step")
			}
			continue
		}
		if !result.Allowed {
			t.Fatalf("expected page %s to pass, got %+v", page, result)
		}
	}
}

func TestQuoteBuildsSummary(t *testing.T) {
	repo := newStubStateRepository()
	repo.states["sess_1"] = domain.WizardState{
		SessionID: "sess_1",
		Billing:   domain.BillingMonthly,
		Plan:      &domain.Plan{Name: domain.PlanArcade, Price: 9, Billing: domain.BillingMonthly},
		Addons: []domain.AddonLine{
			{ID: domain.AddonOnlineService, Price: 1, Title: "Online service"},
			{ID: domain.AddonLargerStorage, Price: 2, Title: "Larger storage"},
		},
	}
	svc := newTestWizardService(t, repo)

	summary, err := svc.Quote(context.Background(), "sess_1")
	if err != nil {
		t.Fatalf("quote: %v", err)
	}

	if summary.PlanLabel != "Arcade (Monthly)" {
		t.Fatalf("unexpected plan label %q", summary.PlanLabel)
	}
	if summary.PlanPriceText != "$9/mo" {
		t.Fatalf("unexpected plan price %q", summary.PlanPriceText)
	}
	if len(summary.Addons) != 2 || summary.Addons[0].PriceText != "+$1/mo" {
		t.Fatalf("unexpected add-on lines %+v", summary.Addons)
	}
	if summary.Total != 12 {
		t.Fatalf("expected total 12, got %d", summary.Total)
	}
	if summary.TotalLabel != "Total (per month)" {
		t.Fatalf("unexpected total label %q", summary.TotalLabel)
	}
	if summary.TotalText != "+$12/mo" {
		t.Fatalf("unexpected total text %q", summary.TotalText)
	}
}

func TestQuoteYearlyLabels(t *testing.T) {
	repo := newStubStateRepository()
	repo.states["sess_1"] = domain.WizardState{
		SessionID: "sess_1",
		Plan:      &domain.Plan{Name: domain.PlanPro, Price: 150, Billing: domain.BillingYearly},
	}
	svc := newTestWizardService(t, repo)

	summary, err := svc.Quote(context.Background(), "sess_1")
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if summary.PlanLabel != "Pro (Yearly)" {
		t.Fatalf("unexpected plan label %q", summary.PlanLabel)
	}
	if summary.TotalLabel != "Total (per year)" {
		t.Fatalf("unexpected total label %q", summary.TotalLabel)
	}
	if summary.TotalText != "+$150/yr" {
		t.Fatalf("unexpected total text %q", summary.TotalText)
	}
}

func TestMutateTranslatesConflict(t *testing.T) {
	repo := newStubStateRepository()
	repo.states["sess_1"] = domain.WizardState{
		SessionID: "sess_1",
		UpdatedAt: time.Date(2024, 4, 30, 9, 0, 0, 0, time.UTC),
	}
	repo.upsertErr = &stubRepoError{conflict: true}
	svc := newTestWizardService(t, repo)

	if _, err := svc.ApplyBilling(context.Background(), "sess_1", "yearly"); !errors.Is(err, ErrWizardConflict) {
		t.Fatalf("expected ErrWizardConflict, got %v", err)
	}
}

func TestGetStateTranslatesUnavailable(t *testing.T) {
	repo := newStubStateRepository()
	repo.getErr = &stubRepoError{unavailable: true}
	svc := newTestWizardService(t, repo)

	if _, err := svc.GetState(context.Background(), "sess_1"); !errors.Is(err, ErrWizardUnavailable) {
		t.Fatalf("expected ErrWizardUnavailable, got %v", err)
	}
}
