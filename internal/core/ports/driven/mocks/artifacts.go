package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/syncflow-core/internal/core/domain"
)

// MockArtifactStore is an in-memory ArtifactStore for testing.
type MockArtifactStore struct {
	mu      sync.Mutex
	objects map[string][]byte

	// FailKeys lists keys whose deletion should fail
	FailKeys map[string]bool
}

func NewMockArtifactStore() *MockArtifactStore {
	return &MockArtifactStore{
		objects:  make(map[string][]byte),
		FailKeys: make(map[string]bool),
	}
}

func (m *MockArtifactStore) Put(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	return nil
}

func (m *MockArtifactStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *MockArtifactStore) Delete(ctx context.Context, keys []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var failed []string
	for _, key := range keys {
		if m.FailKeys[key] {
			failed = append(failed, key)
			continue
		}
		delete(m.objects, key)
	}
	return failed, nil
}

// Has reports whether an object exists at the key.
func (m *MockArtifactStore) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

// AppliedDiff records one ApplyDiff call on the mock destination.
type AppliedDiff struct {
	Table         string
	Columns       []string
	Added         [][]string
	Deleted       [][]string
	SchemaChanged bool
}

// MockDestinationStore records diff applications.
type MockDestinationStore struct {
	mu      sync.Mutex
	applied []AppliedDiff

	ApplyErr error
}

func NewMockDestinationStore() *MockDestinationStore {
	return &MockDestinationStore{}
}

func (m *MockDestinationStore) ApplyDiff(ctx context.Context, table string, columns []string, added, deleted [][]string, schemaChanged bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ApplyErr != nil {
		return m.ApplyErr
	}
	m.applied = append(m.applied, AppliedDiff{
		Table:         table,
		Columns:       columns,
		Added:         added,
		Deleted:       deleted,
		SchemaChanged: schemaChanged,
	})
	return nil
}

// Applied returns the recorded diff applications.
func (m *MockDestinationStore) Applied() []AppliedDiff {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AppliedDiff(nil), m.applied...)
}
