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
var _ driven.SyncflowStore = (*SyncflowStore)(nil)

// SyncflowStore implements driven.SyncflowStore using PostgreSQL.
//
// Status changes go through conditional UPDATE ... WHERE status = $expected;
// a zero-row result means another writer moved the row first and surfaces
// as domain.ErrStatusConflict.
type SyncflowStore struct {
	db *DB
}

// NewSyncflowStore creates a new SyncflowStore
func NewSyncflowStore(db *DB) *SyncflowStore {
	return &SyncflowStore{db: db}
}

const syncflowColumns = `id, name, connection_id, source_id, trigger_id, attributes, status, version, prev_version, cursor, created_at, updated_at, deleted_at`

// Get retrieves a syncflow by id, excluding soft-deleted rows
func (s *SyncflowStore) Get(ctx context.Context, id string) (*domain.Syncflow, error) {
	query := `
		SELECT ` + syncflowColumns + `
		FROM syncflows
		WHERE id = $1 AND deleted_at IS NULL
	`
	return scanSyncflow(s.db.QueryRowContext(ctx, query, id))
}

// ListByConnection retrieves all live syncflows of a connection
func (s *SyncflowStore) ListByConnection(ctx context.Context, connectionID string) ([]*domain.Syncflow, error) {
	query := `
		SELECT ` + syncflowColumns + `
		FROM syncflows
		WHERE connection_id = $1 AND deleted_at IS NULL
		ORDER BY created_at
	`
	return s.list(ctx, query, connectionID)
}

// ListBySource retrieves all syncflows of a data source, including
// soft-deleted ones; the deletion sweep needs their version cursors.
func (s *SyncflowStore) ListBySource(ctx context.Context, sourceID string) ([]*domain.Syncflow, error) {
	query := `
		SELECT ` + syncflowColumns + `
		FROM syncflows
		WHERE source_id = $1
		ORDER BY created_at
	`
	return s.list(ctx, query, sourceID)
}

// Create persists a new syncflow
func (s *SyncflowStore) Create(ctx context.Context, syncflow *domain.Syncflow) error {
	attrsJSON, err := json.Marshal(syncflow.Attributes)
	if err != nil {
		return fmt.Errorf("marshal attributes: %w", err)
	}

	query := `
		INSERT INTO syncflows (id, name, connection_id, source_id, trigger_id, attributes, status, version, prev_version, cursor, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = s.db.ExecContext(ctx, query,
		syncflow.ID,
		syncflow.Name,
		syncflow.ConnectionID,
		syncflow.SourceID,
		syncflow.TriggerID,
		attrsJSON,
		string(syncflow.State.Status),
		syncflow.State.Version,
		syncflow.State.PrevVersion,
		syncflow.State.Cursor,
		syncflow.CreatedAt,
		syncflow.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

// Save updates the mutable fields of an existing syncflow. Status is not
// touched here; TransitionStatus owns status writes.
func (s *SyncflowStore) Save(ctx context.Context, syncflow *domain.Syncflow) error {
	attrsJSON, err := json.Marshal(syncflow.Attributes)
	if err != nil {
		return fmt.Errorf("marshal attributes: %w", err)
	}

	query := `
		UPDATE syncflows
		SET name = $2, trigger_id = $3, attributes = $4, cursor = $5, updated_at = $6
		WHERE id = $1 AND deleted_at IS NULL
	`
	result, err := s.db.ExecContext(ctx, query,
		syncflow.ID,
		syncflow.Name,
		syncflow.TriggerID,
		attrsJSON,
		syncflow.State.Cursor,
		time.Now(),
	)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// TransitionStatus conditionally moves status from `from` to `to` and
// returns the updated record
func (s *SyncflowStore) TransitionStatus(ctx context.Context, id string, from, to domain.SyncflowStatus) (*domain.Syncflow, error) {
	query := `
		UPDATE syncflows
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2 AND deleted_at IS NULL
		RETURNING ` + syncflowColumns

	syncflow, err := scanSyncflow(s.db.QueryRowContext(ctx, query, id, string(from), string(to)))
	if err == domain.ErrNotFound {
		// distinguish a missing row from a lost race
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, domain.ErrStatusConflict
	}
	return syncflow, err
}

// AdvanceCycle applies the end-of-cycle state change for the completed
// version, conditional on the row still being RUNNING at that version
func (s *SyncflowStore) AdvanceCycle(ctx context.Context, id string, completedVersion int64) (*domain.Syncflow, error) {
	query := `
		UPDATE syncflows
		SET prev_version = $2, version = $2 + 1, status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4 AND version = $2 AND deleted_at IS NULL
		RETURNING ` + syncflowColumns

	syncflow, err := scanSyncflow(s.db.QueryRowContext(ctx, query,
		id,
		completedVersion,
		string(domain.SyncflowStatusIdling),
		string(domain.SyncflowStatusRunning),
	))
	if err == domain.ErrNotFound {
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, domain.ErrStatusConflict
	}
	return syncflow, err
}

// SoftDelete marks the syncflow deleted
func (s *SyncflowStore) SoftDelete(ctx context.Context, id string) error {
	query := `
		UPDATE syncflows
		SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func (s *SyncflowStore) list(ctx context.Context, query string, arg any) ([]*domain.Syncflow, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var syncflows []*domain.Syncflow
	for rows.Next() {
		syncflow, err := scanSyncflow(rows)
		if err != nil {
			return nil, err
		}
		syncflows = append(syncflows, syncflow)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return syncflows, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSyncflow(row rowScanner) (*domain.Syncflow, error) {
	var syncflow domain.Syncflow
	var attrsJSON []byte
	var deletedAt sql.NullTime

	err := row.Scan(
		&syncflow.ID,
		&syncflow.Name,
		&syncflow.ConnectionID,
		&syncflow.SourceID,
		&syncflow.TriggerID,
		&attrsJSON,
		&syncflow.State.Status,
		&syncflow.State.Version,
		&syncflow.State.PrevVersion,
		&syncflow.State.Cursor,
		&syncflow.CreatedAt,
		&syncflow.UpdatedAt,
		&deletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	syncflow.DeletedAt = TimePtr(deletedAt)
	if len(attrsJSON) > 0 {
		if err := json.Unmarshal(attrsJSON, &syncflow.Attributes); err != nil {
			return nil, fmt.Errorf("unmarshal attributes: %w", err)
		}
	}
	return &syncflow, nil
}
