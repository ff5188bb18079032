package repositories

import (
	"context"
	"time"

	domain "github.com/formflow/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// StateRepository persists wizard session state documents.
type StateRepository interface {
	// GetState loads the wizard state for the session.
	GetState(ctx context.Context, sessionID string) (domain.WizardState, error)

	// UpsertState writes the full wizard state. When expectedUpdate is set, the write
	// only succeeds if the stored document was last modified at that instant.
	UpsertState(ctx context.Context, state domain.WizardState, expectedUpdate *time.Time) (domain.WizardState, error)

	// ResetSelections clears the plan and add-on selections and restores monthly
	// billing while preserving the personal information fields.
	ResetSelections(ctx context.Context, sessionID string) (domain.WizardState, error)
}

// HealthRepository aggregates dependency probes for readiness reporting.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
