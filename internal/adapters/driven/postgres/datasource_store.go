package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/custodia-labs/syncflow-core/internal/core/domain"
	"github.com/custodia-labs/syncflow-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.DataSourceStore = (*DataSourceStore)(nil)

// DataSourceStore implements driven.DataSourceStore using PostgreSQL.
// The core only reads sources and maintains their aggregate statistics;
// full CRUD belongs to the data source service.
type DataSourceStore struct {
	db *DB
}

// NewDataSourceStore creates a new DataSourceStore
func NewDataSourceStore(db *DB) *DataSourceStore {
	return &DataSourceStore{db: db}
}

// Get retrieves a data source by id, excluding soft-deleted rows
func (s *DataSourceStore) Get(ctx context.Context, id string) (*domain.DataSource, error) {
	query := `
		SELECT id, name, provider_type, config, statistics, created_at, updated_at, deleted_at
		FROM data_sources
		WHERE id = $1 AND deleted_at IS NULL
	`

	var source domain.DataSource
	var configJSON, statsJSON []byte
	var deletedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&source.ID,
		&source.Name,
		&source.ProviderType,
		&configJSON,
		&statsJSON,
		&source.CreatedAt,
		&source.UpdatedAt,
		&deletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	source.DeletedAt = TimePtr(deletedAt)
	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &source.Config); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}
	if len(statsJSON) > 0 {
		if err := json.Unmarshal(statsJSON, &source.Statistics); err != nil {
			return nil, fmt.Errorf("unmarshal statistics: %w", err)
		}
	}
	return &source, nil
}

// AddRows adds delta (may be negative) to statistics.rows_number atomically
func (s *DataSourceStore) AddRows(ctx context.Context, id string, delta int64) error {
	query := `
		UPDATE data_sources
		SET statistics = jsonb_set(
				statistics,
				'{rows_number}',
				to_jsonb(COALESCE((statistics->>'rows_number')::bigint, 0) + $2)
			),
			updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`
	result, err := s.db.ExecContext(ctx, query, id, delta)
	if err != nil {
		return err
	}
	return requireRow(result)
}
