package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/syncflow-core/internal/core/ports/driven"
)

// StartedWorkflow records one Start call on the mock engine.
type StartedWorkflow struct {
	Name       string
	WorkflowID string
	Policy     driven.IDReusePolicy
	Input      []byte
}

// MockWorkflowEngine records registrations and start requests.
type MockWorkflowEngine struct {
	mu         sync.Mutex
	registered map[string]driven.WorkflowFunc
	started    []StartedWorkflow

	// StartErr, when set, is returned from Start
	StartErr error
}

func NewMockWorkflowEngine() *MockWorkflowEngine {
	return &MockWorkflowEngine{registered: make(map[string]driven.WorkflowFunc)}
}

func (m *MockWorkflowEngine) Register(name string, fn driven.WorkflowFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registered[name] = fn
}

func (m *MockWorkflowEngine) Start(ctx context.Context, name, workflowID string, policy driven.IDReusePolicy, input []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StartErr != nil {
		return m.StartErr
	}
	m.started = append(m.started, StartedWorkflow{
		Name:       name,
		WorkflowID: workflowID,
		Policy:     policy,
		Input:      input,
	})
	return nil
}

// Started returns all recorded start requests.
func (m *MockWorkflowEngine) Started() []StartedWorkflow {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]StartedWorkflow(nil), m.started...)
}

// PassthroughRunner executes activities directly without checkpointing.
// Useful for running workflow bodies inside service tests.
type PassthroughRunner struct{}

func (PassthroughRunner) Do(ctx context.Context, name string, opts driven.ActivityOptions, fn func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	return fn(ctx)
}
