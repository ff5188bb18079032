package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/formflow/api/internal/domain"
	pfirestore "github.com/formflow/api/internal/platform/firestore"
)

const (
	stateCollection = "wizard_sessions"

	fieldPersonal = "fm_personal"
	fieldBilling  = "fm_billing"
	fieldPlan     = "fm_plan"
	fieldAddons   = "fm_addons"
)

// StateRepository persists wizard session state within Firestore.
type StateRepository struct {
	base     *pfirestore.BaseRepository[stateDocument]
	provider *pfirestore.Provider
	now      func() time.Time
}

// StateRepositoryOption customises the repository.
type StateRepositoryOption func(*StateRepository)

// WithStateClock injects a custom clock primarily for tests.
func WithStateClock(now func() time.Time) StateRepositoryOption {
	return func(r *StateRepository) {
		if now != nil {
			r.now = now
		}
	}
}

// NewStateRepository constructs a Firestore-backed wizard state repository.
func NewStateRepository(provider *pfirestore.Provider, opts ...StateRepositoryOption) (*StateRepository, error) {
	if provider == nil {
		return nil, errors.New("state repository requires firestore provider")
	}
	repo := &StateRepository{
		base:     pfirestore.NewBaseRepository[stateDocument](provider, stateCollection, nil, nil),
		provider: provider,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo, nil
}

// GetState loads the wizard state for the session.
func (r *StateRepository) GetState(ctx context.Context, sessionID string) (domain.WizardState, error) {
	if r == nil || r.base == nil {
		return domain.WizardState{}, errors.New("state repository not initialised")
	}
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return domain.WizardState{}, errors.New("state repository: session id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.WizardState{}, err
	}
	return stateFromDocument(doc), nil
}

// UpsertState writes the full wizard state document. With expectedUpdate set, the
// write carries a last-update-time precondition so concurrent writers conflict
// instead of clobbering each other.
func (r *StateRepository) UpsertState(ctx context.Context, state domain.WizardState, expectedUpdate *time.Time) (domain.WizardState, error) {
	if r == nil || r.base == nil {
		return domain.WizardState{}, errors.New("state repository not initialised")
	}
	id := strings.TrimSpace(state.SessionID)
	if id == "" {
		return domain.WizardState{}, errors.New("state repository: session id is required")
	}

	now := r.now().UTC()
	createdAt := state.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}

	doc := documentFromState(state, createdAt, now)

	if expectedUpdate == nil || expectedUpdate.IsZero() {
		result, err := r.base.Set(ctx, id, doc)
		if err != nil {
			return domain.WizardState{}, err
		}
		saved := stateFromFields(id, doc)
		saved.UpdatedAt = result.UpdateTime
		return saved, nil
	}

	updates := []firestore.Update{
		{Path: fieldPersonal, Value: doc.Personal},
		{Path: fieldBilling, Value: doc.Billing},
		{Path: "updatedAt", Value: doc.UpdatedAt},
	}
	if doc.Plan == nil {
		updates = append(updates, firestore.Update{Path: fieldPlan, Value: firestore.Delete})
	} else {
		updates = append(updates, firestore.Update{Path: fieldPlan, Value: doc.Plan})
	}
	if len(doc.Addons) == 0 {
		updates = append(updates, firestore.Update{Path: fieldAddons, Value: firestore.Delete})
	} else {
		updates = append(updates, firestore.Update{Path: fieldAddons, Value: doc.Addons})
	}

	result, err := r.base.Update(ctx, id, updates, firestore.LastUpdateTime(expectedUpdate.UTC()))
	if err != nil {
		return domain.WizardState{}, err
	}
	saved := stateFromFields(id, doc)
	saved.CreatedAt = state.CreatedAt
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

// ResetSelections clears the plan and add-on selections and restores monthly
// billing while leaving the personal fields untouched. It runs inside a
// transaction so a concurrent selection write cannot survive the reset.
func (r *StateRepository) ResetSelections(ctx context.Context, sessionID string) (domain.WizardState, error) {
	if r == nil || r.base == nil {
		return domain.WizardState{}, errors.New("state repository not initialised")
	}
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return domain.WizardState{}, errors.New("state repository: session id is required")
	}

	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return domain.WizardState{}, err
	}

	var reset domain.WizardState
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snapshot, err := tx.Get(ref)
		if err != nil {
			return err
		}
		doc, err := r.base.Decode(ctx, snapshot)
		if err != nil {
			return err
		}

		now := r.now().UTC()
		if err := tx.Update(ref, []firestore.Update{
			{Path: fieldBilling, Value: string(domain.BillingMonthly)},
			{Path: fieldPlan, Value: firestore.Delete},
			{Path: fieldAddons, Value: firestore.Delete},
			{Path: "updatedAt", Value: now},
		}); err != nil {
			return err
		}

		reset = stateFromDocument(doc)
		reset.Billing = domain.BillingMonthly
		reset.Plan = nil
		reset.Addons = nil
		reset.UpdatedAt = now
		return nil
	})
	if err != nil {
		return domain.WizardState{}, err
	}
	return reset, nil
}

type personalDocument struct {
	Name  string `firestore:"name"`
	Email string `firestore:"email"`
	Phone string `firestore:"phone"`
}

type planDocument struct {
	Name    string `firestore:"name"`
	Price   int64  `firestore:"price"`
	Billing string `firestore:"billing"`
}

type addonDocument struct {
	ID    string `firestore:"id"`
	Price int64  `firestore:"price"`
	Title string `firestore:"title"`
}

type stateDocument struct {
	Personal  personalDocument `firestore:"fm_personal"`
	Billing   string           `firestore:"fm_billing"`
	Plan      *planDocument    `firestore:"fm_plan,omitempty"`
	Addons    []addonDocument  `firestore:"fm_addons,omitempty"`
	CreatedAt time.Time        `firestore:"createdAt"`
	UpdatedAt time.Time        `firestore:"updatedAt"`
}

func documentFromState(state domain.WizardState, createdAt, updatedAt time.Time) stateDocument {
	personal := state.Personal.Trimmed()
	doc := stateDocument{
		Personal: personalDocument{
			Name:  personal.Name,
			Email: personal.Email,
			Phone: personal.Phone,
		},
		Billing:   string(state.EffectiveBilling()),
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
	if state.Plan != nil {
		doc.Plan = &planDocument{
			Name:    string(state.Plan.Name),
			Price:   state.Plan.Price,
			Billing: string(state.Plan.Billing),
		}
	}
	if len(state.Addons) > 0 {
		doc.Addons = make([]addonDocument, 0, len(state.Addons))
		for _, addon := range state.Addons {
			doc.Addons = append(doc.Addons, addonDocument{
				ID:    string(addon.ID),
				Price: addon.Price,
				Title: addon.Title,
			})
		}
	}
	return doc
}

func stateFromDocument(doc pfirestore.Document[stateDocument]) domain.WizardState {
	state := stateFromFields(doc.ID, doc.Data)
	if !doc.UpdateTime.IsZero() {
		state.UpdatedAt = doc.UpdateTime
	}
	return state
}

func stateFromFields(id string, doc stateDocument) domain.WizardState {
	state := domain.WizardState{
		SessionID: id,
		Personal: domain.PersonalInfo{
			Name:  doc.Personal.Name,
			Email: doc.Personal.Email,
			Phone: doc.Personal.Phone,
		},
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
	if cycle, ok := domain.ParseBillingCycle(doc.Billing); ok {
		state.Billing = cycle
	} else {
		state.Billing = domain.BillingMonthly
	}
	if doc.Plan != nil {
		plan := domain.Plan{Price: doc.Plan.Price}
		if name, ok := domain.ParsePlanName(doc.Plan.Name); ok {
			plan.Name = name
		}
		if cycle, ok := domain.ParseBillingCycle(doc.Plan.Billing); ok {
			plan.Billing = cycle
		}
		state.Plan = &plan
	}
	if len(doc.Addons) > 0 {
		state.Addons = make([]domain.AddonLine, 0, len(doc.Addons))
		for _, addon := range doc.Addons {
			id, ok := domain.ParseAddonID(addon.ID)
			if !ok {
				continue
			}
			state.Addons = append(state.Addons, domain.AddonLine{
				ID:    id,
				Price: addon.Price,
				Title: addon.Title,
			})
		}
	}
	return state
}
