package driven

import (
	"context"

	"github.com/custodia-labs/syncflow-core/internal/core/domain"
)

// DataSourceStore is the orchestration core's view of data sources.
// The full CRUD surface lives in another service; the core reads provider
// config and writes aggregate statistics.
type DataSourceStore interface {
	// Get retrieves a data source by id
	Get(ctx context.Context, id string) (*domain.DataSource, error)

	// AddRows adds delta (may be negative) to statistics.rows_number
	AddRows(ctx context.Context, id string, delta int64) error
}
