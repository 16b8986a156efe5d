package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/syncflow-core/internal/core/domain"
)

// MockConnectionStore is an in-memory ConnectionStore for testing.
type MockConnectionStore struct {
	mu    sync.RWMutex
	conns map[string]*domain.SyncConnection
}

func NewMockConnectionStore() *MockConnectionStore {
	return &MockConnectionStore{conns: make(map[string]*domain.SyncConnection)}
}

func (m *MockConnectionStore) Get(ctx context.Context, id string) (*domain.SyncConnection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.conns[id]
	if !ok || conn.DeletedAt != nil {
		return nil, domain.ErrNotFound
	}
	copied := *conn
	return &copied, nil
}

func (m *MockConnectionStore) GetBySource(ctx context.Context, sourceID string) (*domain.SyncConnection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, conn := range m.conns {
		if conn.SourceID == sourceID && conn.DeletedAt == nil {
			copied := *conn
			return &copied, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockConnectionStore) Create(ctx context.Context, conn *domain.SyncConnection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conns[conn.ID]; ok {
		return domain.ErrAlreadyExists
	}
	copied := *conn
	m.conns[conn.ID] = &copied
	return nil
}

func (m *MockConnectionStore) Save(ctx context.Context, conn *domain.SyncConnection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conns[conn.ID]; !ok {
		return domain.ErrNotFound
	}
	copied := *conn
	m.conns[conn.ID] = &copied
	return nil
}

func (m *MockConnectionStore) SoftDelete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.conns[id]
	if !ok {
		return domain.ErrNotFound
	}
	now := time.Now()
	conn.DeletedAt = &now
	conn.Status = domain.ConnectionStatusInactive
	return nil
}

// Deleted reports whether a connection was soft-deleted.
func (m *MockConnectionStore) Deleted(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.conns[id]
	return ok && conn.DeletedAt != nil
}

// MockTriggerStore is an in-memory TriggerStore for testing.
type MockTriggerStore struct {
	mu       sync.RWMutex
	triggers map[string]*domain.Trigger
}

func NewMockTriggerStore() *MockTriggerStore {
	return &MockTriggerStore{triggers: make(map[string]*domain.Trigger)}
}

// copyTrigger snapshots a trigger including its config pointers, so a
// caller mutating the result cannot reach the stored record.
func copyTrigger(trigger *domain.Trigger) *domain.Trigger {
	copied := *trigger
	if trigger.Cron != nil {
		cron := *trigger.Cron
		copied.Cron = &cron
	}
	if trigger.Webhook != nil {
		webhook := *trigger.Webhook
		copied.Webhook = &webhook
	}
	return &copied
}

func (m *MockTriggerStore) Get(ctx context.Context, id string) (*domain.Trigger, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	trigger, ok := m.triggers[id]
	if !ok || trigger.DeletedAt != nil {
		return nil, domain.ErrNotFound
	}
	return copyTrigger(trigger), nil
}

func (m *MockTriggerStore) GetByWorkflow(ctx context.Context, workflowID string) (*domain.Trigger, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, trigger := range m.triggers {
		if trigger.Workflow.ID == workflowID && trigger.DeletedAt == nil {
			return copyTrigger(trigger), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockTriggerStore) Create(ctx context.Context, trigger *domain.Trigger) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.triggers[trigger.ID]; ok {
		return domain.ErrAlreadyExists
	}
	m.triggers[trigger.ID] = copyTrigger(trigger)
	return nil
}

func (m *MockTriggerStore) Save(ctx context.Context, trigger *domain.Trigger) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.triggers[trigger.ID]; !ok {
		return domain.ErrNotFound
	}
	m.triggers[trigger.ID] = copyTrigger(trigger)
	return nil
}

func (m *MockTriggerStore) SoftDelete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	trigger, ok := m.triggers[id]
	if !ok {
		return domain.ErrNotFound
	}
	now := time.Now()
	trigger.DeletedAt = &now
	return nil
}

// Deleted reports whether a trigger was soft-deleted.
func (m *MockTriggerStore) Deleted(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	trigger, ok := m.triggers[id]
	return ok && trigger.DeletedAt != nil
}

// MockDataSourceStore is an in-memory DataSourceStore for testing.
type MockDataSourceStore struct {
	mu      sync.RWMutex
	sources map[string]*domain.DataSource
}

func NewMockDataSourceStore() *MockDataSourceStore {
	return &MockDataSourceStore{sources: make(map[string]*domain.DataSource)}
}

func (m *MockDataSourceStore) Get(ctx context.Context, id string) (*domain.DataSource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	source, ok := m.sources[id]
	if !ok || source.DeletedAt != nil {
		return nil, domain.ErrNotFound
	}
	copied := *source
	return &copied, nil
}

func (m *MockDataSourceStore) AddRows(ctx context.Context, id string, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	source, ok := m.sources[id]
	if !ok {
		return domain.ErrNotFound
	}
	source.Statistics.RowsNumber += delta
	return nil
}

// Put seeds a data source.
func (m *MockDataSourceStore) Put(source *domain.DataSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *source
	m.sources[source.ID] = &copied
}

// Rows returns the current row counter for a source.
func (m *MockDataSourceStore) Rows(id string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	source, ok := m.sources[id]
	if !ok {
		return 0
	}
	return source.Statistics.RowsNumber
}
