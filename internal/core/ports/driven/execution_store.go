package driven

import (
	"context"
	"time"
)

// ExecutionStatus is the lifecycle state of one workflow execution.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// Execution is one durable workflow execution record.
type Execution struct {
	WorkflowID string
	Name       string
	Status     ExecutionStatus
	Input      []byte
	Error      string
	Attempts   int
	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// ExecutionStore persists workflow executions and their activity
// checkpoints. The workflow engine is stateless on top of it: any engine
// instance can claim and resume any execution.
type ExecutionStore interface {
	// Begin registers an execution under the workflow id, applying the id
	// reuse policy against any existing record. Returns
	// domain.ErrWorkflowActive when an execution is pending or running,
	// domain.ErrWorkflowCompleted when one already completed and the
	// policy forbids reuse. A failed execution restarts with its
	// checkpoints intact.
	Begin(ctx context.Context, name, workflowID string, policy IDReusePolicy, input []byte) error

	// ClaimPending atomically claims one pending execution for this
	// instance, moving it to running. Returns nil, nil when none is due.
	ClaimPending(ctx context.Context) (*Execution, error)

	// Complete marks an execution completed
	Complete(ctx context.Context, workflowID string) error

	// Fail marks an execution failed with the given error
	Fail(ctx context.Context, workflowID, errMsg string) error

	// ReclaimStale returns executions stuck in running longer than the
	// given age to pending, so a crashed instance's work is picked up.
	// Returns the number of reclaimed executions.
	ReclaimStale(ctx context.Context, olderThan time.Duration) (int, error)

	// SaveCheckpoint persists a completed activity's output
	SaveCheckpoint(ctx context.Context, workflowID, activity string, output []byte) error

	// GetCheckpoint loads a persisted activity output; ok is false when
	// the activity has not completed yet
	GetCheckpoint(ctx context.Context, workflowID, activity string) (output []byte, ok bool, err error)
}
