package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/syncflow-core/internal/core/domain"
)

// MockSyncflowStore is an in-memory SyncflowStore for testing.
type MockSyncflowStore struct {
	mu        sync.RWMutex
	syncflows map[string]*domain.Syncflow

	// TransitionErr, when set, is returned from TransitionStatus
	TransitionErr error
}

// NewMockSyncflowStore creates a new MockSyncflowStore.
func NewMockSyncflowStore() *MockSyncflowStore {
	return &MockSyncflowStore{
		syncflows: make(map[string]*domain.Syncflow),
	}
}

func (m *MockSyncflowStore) Get(ctx context.Context, id string) (*domain.Syncflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sf, ok := m.syncflows[id]
	if !ok || sf.DeletedAt != nil {
		return nil, domain.ErrNotFound
	}
	copied := *sf
	return &copied, nil
}

func (m *MockSyncflowStore) ListByConnection(ctx context.Context, connectionID string) ([]*domain.Syncflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Syncflow
	for _, sf := range m.syncflows {
		if sf.ConnectionID == connectionID && sf.DeletedAt == nil {
			copied := *sf
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (m *MockSyncflowStore) ListBySource(ctx context.Context, sourceID string) ([]*domain.Syncflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Syncflow
	for _, sf := range m.syncflows {
		if sf.SourceID == sourceID {
			copied := *sf
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (m *MockSyncflowStore) Create(ctx context.Context, syncflow *domain.Syncflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.syncflows[syncflow.ID]; ok {
		return domain.ErrAlreadyExists
	}
	copied := *syncflow
	m.syncflows[syncflow.ID] = &copied
	return nil
}

func (m *MockSyncflowStore) Save(ctx context.Context, syncflow *domain.Syncflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.syncflows[syncflow.ID]; !ok {
		return domain.ErrNotFound
	}
	copied := *syncflow
	m.syncflows[syncflow.ID] = &copied
	return nil
}

func (m *MockSyncflowStore) TransitionStatus(ctx context.Context, id string, from, to domain.SyncflowStatus) (*domain.Syncflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.TransitionErr != nil {
		return nil, m.TransitionErr
	}
	sf, ok := m.syncflows[id]
	if !ok || sf.DeletedAt != nil {
		return nil, domain.ErrNotFound
	}
	if sf.State.Status != from {
		return nil, domain.ErrStatusConflict
	}
	sf.State.Status = to
	sf.UpdatedAt = time.Now()
	copied := *sf
	return &copied, nil
}

func (m *MockSyncflowStore) AdvanceCycle(ctx context.Context, id string, completedVersion int64) (*domain.Syncflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sf, ok := m.syncflows[id]
	if !ok || sf.DeletedAt != nil {
		return nil, domain.ErrNotFound
	}
	if sf.State.Status != domain.SyncflowStatusRunning {
		return nil, domain.ErrStatusConflict
	}
	sf.State.PrevVersion = completedVersion
	sf.State.Version = completedVersion + 1
	sf.State.Status = domain.SyncflowStatusIdling
	sf.UpdatedAt = time.Now()
	copied := *sf
	return &copied, nil
}

func (m *MockSyncflowStore) SoftDelete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sf, ok := m.syncflows[id]
	if !ok {
		return domain.ErrNotFound
	}
	now := time.Now()
	sf.DeletedAt = &now
	return nil
}

// Helper methods for testing

func (m *MockSyncflowStore) Put(syncflow *domain.Syncflow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *syncflow
	m.syncflows[syncflow.ID] = &copied
}

func (m *MockSyncflowStore) Deleted(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sf, ok := m.syncflows[id]
	return ok && sf.DeletedAt != nil
}
