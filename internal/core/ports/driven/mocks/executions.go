package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/syncflow-core/internal/core/domain"
	"github.com/custodia-labs/syncflow-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ExecutionStore = (*MockExecutionStore)(nil)

// MockExecutionStore is an in-memory ExecutionStore for testing.
type MockExecutionStore struct {
	mu          sync.Mutex
	executions  map[string]*driven.Execution
	checkpoints map[string]map[string][]byte
	order       []string

	// Error fields for testing failure scenarios
	BeginErr error
	ClaimErr error
}

func NewMockExecutionStore() *MockExecutionStore {
	return &MockExecutionStore{
		executions:  make(map[string]*driven.Execution),
		checkpoints: make(map[string]map[string][]byte),
	}
}

func (m *MockExecutionStore) Begin(ctx context.Context, name, workflowID string, policy driven.IDReusePolicy, input []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BeginErr != nil {
		return m.BeginErr
	}

	existing, ok := m.executions[workflowID]
	if !ok {
		m.executions[workflowID] = &driven.Execution{
			WorkflowID: workflowID,
			Name:       name,
			Status:     driven.ExecutionStatusPending,
			Input:      input,
			CreatedAt:  time.Now(),
		}
		m.order = append(m.order, workflowID)
		return nil
	}

	switch existing.Status {
	case driven.ExecutionStatusPending, driven.ExecutionStatusRunning:
		return domain.ErrWorkflowActive
	case driven.ExecutionStatusCompleted:
		if policy != driven.ReuseAllowDuplicate {
			return domain.ErrWorkflowCompleted
		}
		delete(m.checkpoints, workflowID)
	case driven.ExecutionStatusFailed:
		// checkpoints survive a retry
	}

	existing.Status = driven.ExecutionStatusPending
	existing.Input = input
	existing.Error = ""
	existing.Attempts++
	existing.StartedAt = nil
	existing.FinishedAt = nil
	return nil
}

func (m *MockExecutionStore) ClaimPending(ctx context.Context) (*driven.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ClaimErr != nil {
		return nil, m.ClaimErr
	}

	for _, id := range m.order {
		exec := m.executions[id]
		if exec.Status != driven.ExecutionStatusPending {
			continue
		}
		exec.Status = driven.ExecutionStatusRunning
		now := time.Now()
		exec.StartedAt = &now
		copied := *exec
		return &copied, nil
	}
	return nil, nil
}

func (m *MockExecutionStore) Complete(ctx context.Context, workflowID string) error {
	return m.finish(workflowID, driven.ExecutionStatusCompleted, "")
}

func (m *MockExecutionStore) Fail(ctx context.Context, workflowID, errMsg string) error {
	return m.finish(workflowID, driven.ExecutionStatusFailed, errMsg)
}

func (m *MockExecutionStore) finish(workflowID string, status driven.ExecutionStatus, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	exec, ok := m.executions[workflowID]
	if !ok {
		return domain.ErrNotFound
	}
	exec.Status = status
	exec.Error = errMsg
	now := time.Now()
	exec.FinishedAt = &now
	return nil
}

func (m *MockExecutionStore) ReclaimStale(ctx context.Context, olderThan time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	reclaimed := 0
	for _, exec := range m.executions {
		if exec.Status == driven.ExecutionStatusRunning && exec.StartedAt != nil && exec.StartedAt.Before(cutoff) {
			exec.Status = driven.ExecutionStatusPending
			exec.StartedAt = nil
			reclaimed++
		}
	}
	return reclaimed, nil
}

func (m *MockExecutionStore) SaveCheckpoint(ctx context.Context, workflowID, activity string, output []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.checkpoints[workflowID] == nil {
		m.checkpoints[workflowID] = make(map[string][]byte)
	}
	m.checkpoints[workflowID][activity] = output
	return nil
}

func (m *MockExecutionStore) GetCheckpoint(ctx context.Context, workflowID, activity string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	output, ok := m.checkpoints[workflowID][activity]
	return output, ok, nil
}

// Execution returns a copy of the stored execution record.
func (m *MockExecutionStore) Execution(workflowID string) (driven.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	exec, ok := m.executions[workflowID]
	if !ok {
		return driven.Execution{}, fmt.Errorf("execution %s: %w", workflowID, domain.ErrNotFound)
	}
	return *exec, nil
}

// Checkpoints returns the activity names checkpointed for a workflow.
func (m *MockExecutionStore) Checkpoints(workflowID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var names []string
	for name := range m.checkpoints[workflowID] {
		names = append(names, name)
	}
	return names
}
