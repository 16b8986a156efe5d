package driven

import (
	"context"

	"github.com/custodia-labs/syncflow-core/internal/core/domain"
)

// TriggerStore handles trigger persistence.
type TriggerStore interface {
	// Get retrieves a trigger by id
	Get(ctx context.Context, id string) (*domain.Trigger, error)

	// GetByWorkflow retrieves the trigger bound to a workflow id
	GetByWorkflow(ctx context.Context, workflowID string) (*domain.Trigger, error)

	// Create persists a new trigger
	Create(ctx context.Context, trigger *domain.Trigger) error

	// Save updates an existing trigger (webhook renewal rewrites config)
	Save(ctx context.Context, trigger *domain.Trigger) error

	// SoftDelete marks the trigger deleted
	SoftDelete(ctx context.Context, id string) error
}
