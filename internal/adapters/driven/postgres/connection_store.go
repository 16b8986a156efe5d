package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/custodia-labs/syncflow-core/internal/core/domain"
	"github.com/custodia-labs/syncflow-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ConnectionStore = (*ConnectionStore)(nil)

// ConnectionStore implements driven.ConnectionStore using PostgreSQL
type ConnectionStore struct {
	db *DB
}

// NewConnectionStore creates a new ConnectionStore
func NewConnectionStore(db *DB) *ConnectionStore {
	return &ConnectionStore{db: db}
}

const connectionColumns = `id, source_id, status, syncflows, created_at, updated_at, deleted_at`

// Get retrieves a connection by id, excluding soft-deleted rows
func (s *ConnectionStore) Get(ctx context.Context, id string) (*domain.SyncConnection, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM sync_connections
		WHERE id = $1 AND deleted_at IS NULL
	`
	return s.scanOne(s.db.QueryRowContext(ctx, query, id))
}

// GetBySource retrieves the live connection for a data source
func (s *ConnectionStore) GetBySource(ctx context.Context, sourceID string) (*domain.SyncConnection, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM sync_connections
		WHERE source_id = $1 AND deleted_at IS NULL
	`
	return s.scanOne(s.db.QueryRowContext(ctx, query, sourceID))
}

// Create persists a new connection
func (s *ConnectionStore) Create(ctx context.Context, conn *domain.SyncConnection) error {
	syncflowsJSON, err := json.Marshal(conn.Syncflows)
	if err != nil {
		return fmt.Errorf("marshal syncflows: %w", err)
	}

	query := `
		INSERT INTO sync_connections (id, source_id, status, syncflows, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = s.db.ExecContext(ctx, query,
		conn.ID,
		conn.SourceID,
		string(conn.Status),
		syncflowsJSON,
		conn.CreatedAt,
		conn.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

// Save updates an existing connection
func (s *ConnectionStore) Save(ctx context.Context, conn *domain.SyncConnection) error {
	syncflowsJSON, err := json.Marshal(conn.Syncflows)
	if err != nil {
		return fmt.Errorf("marshal syncflows: %w", err)
	}

	query := `
		UPDATE sync_connections
		SET source_id = $2, status = $3, syncflows = $4, updated_at = $5
		WHERE id = $1 AND deleted_at IS NULL
	`
	result, err := s.db.ExecContext(ctx, query,
		conn.ID,
		conn.SourceID,
		string(conn.Status),
		syncflowsJSON,
		time.Now(),
	)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// SoftDelete marks the connection deleted and sets it INACTIVE
func (s *ConnectionStore) SoftDelete(ctx context.Context, id string) error {
	query := `
		UPDATE sync_connections
		SET status = $2, deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`
	result, err := s.db.ExecContext(ctx, query, id, string(domain.ConnectionStatusInactive))
	if err != nil {
		return err
	}
	return requireRow(result)
}

func (s *ConnectionStore) scanOne(row *sql.Row) (*domain.SyncConnection, error) {
	var conn domain.SyncConnection
	var syncflowsJSON []byte
	var deletedAt sql.NullTime

	err := row.Scan(
		&conn.ID,
		&conn.SourceID,
		&conn.Status,
		&syncflowsJSON,
		&conn.CreatedAt,
		&conn.UpdatedAt,
		&deletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	conn.DeletedAt = TimePtr(deletedAt)
	if len(syncflowsJSON) > 0 {
		if err := json.Unmarshal(syncflowsJSON, &conn.Syncflows); err != nil {
			return nil, fmt.Errorf("unmarshal syncflows: %w", err)
		}
	}
	return &conn, nil
}

// requireRow converts a zero-row update into domain.ErrNotFound
func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
