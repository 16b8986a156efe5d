package driven

import (
	"context"
	"time"
)

// IDReusePolicy controls what Start does when an execution with the same
// workflow id already exists.
type IDReusePolicy string

const (
	// ReuseAllowDuplicateFailedOnly permits a new attempt only when the
	// previous attempt with the same id failed. This is the policy used
	// for sync cycles: a failed cycle may be retried under its logical
	// id, two concurrent successful runs for one version may not.
	ReuseAllowDuplicateFailedOnly IDReusePolicy = "allow_duplicate_failed_only"

	// ReuseAllowDuplicate always starts a fresh execution.
	ReuseAllowDuplicate IDReusePolicy = "allow_duplicate"
)

// ActivityOptions carry the timeout and retry policy of one activity as
// plain data. Download activities get the longest timeout; compare/load
// are bounded by data already staged.
type ActivityOptions struct {
	Timeout     time.Duration
	MaxAttempts int
	Backoff     time.Duration
}

// ActivityRunner executes named activities inside a workflow. A completed
// activity is checkpointed; re-running the workflow skips it and returns
// the persisted output, so a crash mid-cycle resumes rather than restarts.
type ActivityRunner interface {
	Do(ctx context.Context, name string, opts ActivityOptions, fn func(ctx context.Context) ([]byte, error)) ([]byte, error)
}

// WorkflowFunc is a durable workflow body.
type WorkflowFunc func(ctx context.Context, run ActivityRunner, input []byte) error

// WorkflowEngine starts and executes durable workflows.
type WorkflowEngine interface {
	// Register binds a workflow name to its body. Must be called before
	// the engine runs.
	Register(name string, fn WorkflowFunc)

	// Start requests execution of a workflow under the given id.
	// Returns domain.ErrWorkflowActive / ErrWorkflowCompleted when the
	// reuse policy rejects the start.
	Start(ctx context.Context, name, workflowID string, policy IDReusePolicy, input []byte) error
}
