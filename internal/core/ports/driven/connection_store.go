package driven

import (
	"context"

	"github.com/custodia-labs/syncflow-core/internal/core/domain"
)

// ConnectionStore handles sync connection persistence.
// Connections are soft-deleted only; reads exclude deleted rows.
type ConnectionStore interface {
	// Get retrieves a connection by id
	Get(ctx context.Context, id string) (*domain.SyncConnection, error)

	// GetBySource retrieves the connection for a data source
	GetBySource(ctx context.Context, sourceID string) (*domain.SyncConnection, error)

	// Create persists a new connection
	Create(ctx context.Context, conn *domain.SyncConnection) error

	// Save updates an existing connection
	Save(ctx context.Context, conn *domain.SyncConnection) error

	// SoftDelete marks the connection deleted and sets it INACTIVE
	SoftDelete(ctx context.Context, id string) error
}
