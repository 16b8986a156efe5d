package driven

import (
	"context"

	"github.com/custodia-labs/syncflow-core/internal/core/domain"
)

// SyncflowStore handles syncflow persistence.
//
// TransitionStatus is the only status mutation primitive: a conditional
// write that fails with domain.ErrStatusConflict when the stored status no
// longer matches the expected value. Callers must treat every transition
// as potentially rejected.
type SyncflowStore interface {
	// Get retrieves a syncflow by id
	Get(ctx context.Context, id string) (*domain.Syncflow, error)

	// ListByConnection retrieves all syncflows of a connection
	ListByConnection(ctx context.Context, connectionID string) ([]*domain.Syncflow, error)

	// ListBySource retrieves all syncflows of a data source, including
	// soft-deleted ones. The deletion sweep needs their version cursors
	// after the rest of the aggregate is gone.
	ListBySource(ctx context.Context, sourceID string) ([]*domain.Syncflow, error)

	// Create persists a new syncflow
	Create(ctx context.Context, syncflow *domain.Syncflow) error

	// Save updates an existing syncflow
	Save(ctx context.Context, syncflow *domain.Syncflow) error

	// TransitionStatus conditionally moves status from `from` to `to` and
	// returns the updated record, or domain.ErrStatusConflict
	TransitionStatus(ctx context.Context, id string, from, to domain.SyncflowStatus) (*domain.Syncflow, error)

	// AdvanceCycle applies the end-of-cycle state change for the given
	// completed version: version = completed+1, prevVersion = completed,
	// status = IDLING. Conditional on status still being RUNNING.
	AdvanceCycle(ctx context.Context, id string, completedVersion int64) (*domain.Syncflow, error)

	// SoftDelete marks the syncflow deleted
	SoftDelete(ctx context.Context, id string) error
}
