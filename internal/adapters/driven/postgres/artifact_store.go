package postgres

import (
	"context"
	"database/sql"

	"github.com/custodia-labs/syncflow-core/internal/core/domain"
	"github.com/custodia-labs/syncflow-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ArtifactStore = (*ArtifactStore)(nil)

// ArtifactStore implements driven.ArtifactStore on a PostgreSQL BYTEA
// table. Artifacts are small (one snapshot per spreadsheet); object
// storage is not worth the extra moving part at this size.
type ArtifactStore struct {
	db *DB
}

// NewArtifactStore creates a new ArtifactStore
func NewArtifactStore(db *DB) *ArtifactStore {
	return &ArtifactStore{db: db}
}

// Put stores an artifact, replacing any existing object at the key
func (s *ArtifactStore) Put(ctx context.Context, key string, data []byte) error {
	query := `
		INSERT INTO artifacts (key, data)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data
	`
	_, err := s.db.ExecContext(ctx, query, key, data)
	return err
}

// Get retrieves an artifact
func (s *ArtifactStore) Get(ctx context.Context, key string) ([]byte, error) {
	query := `SELECT data FROM artifacts WHERE key = $1`

	var data []byte
	err := s.db.QueryRowContext(ctx, query, key).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Delete removes the given keys best-effort, returning the keys whose
// deletion failed. A missing key is already deleted, not a failure.
func (s *ArtifactStore) Delete(ctx context.Context, keys []string) ([]string, error) {
	var failed []string
	for _, key := range keys {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM artifacts WHERE key = $1`, key); err != nil {
			failed = append(failed, key)
		}
	}
	return failed, nil
}
