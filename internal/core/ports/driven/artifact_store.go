package driven

import "context"

// ArtifactStore holds the per-cycle blob artifacts (raw snapshot, schema,
// diff result) addressed by keys from the snapshot package.
type ArtifactStore interface {
	// Put stores an artifact, replacing any existing object at the key
	Put(ctx context.Context, key string, data []byte) error

	// Get retrieves an artifact; domain.ErrNotFound if absent
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the given keys best-effort. It returns the keys that
	// failed to delete; a missing key is not a failure.
	Delete(ctx context.Context, keys []string) ([]string, error)
}

// DestinationStore applies diffs into the destination table and reports
// the resulting aggregate statistics.
type DestinationStore interface {
	// ApplyDiff loads added rows and removes deleted rows in the named
	// destination table, creating or reshaping it when the schema changed.
	ApplyDiff(ctx context.Context, table string, columns []string, added, deleted [][]string, schemaChanged bool) error
}
