// Package workflow implements a small durable workflow engine on top of a
// driven.ExecutionStore. Executions are claimed from the store and run to
// completion; completed activities are checkpointed, so a crashed
// execution resumes after its last finished step once reclaimed.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/syncflow-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.WorkflowEngine = (*Engine)(nil)

// Engine executes registered workflow bodies against persisted execution
// records. Any number of engine instances may share one store.
type Engine struct {
	store  driven.ExecutionStore
	logger *slog.Logger

	// Configuration
	concurrency  int
	pollInterval time.Duration
	staleAfter   time.Duration

	mu        sync.RWMutex
	workflows map[string]driven.WorkflowFunc
	running   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// Config holds configuration for the Engine.
type Config struct {
	Store  driven.ExecutionStore
	Logger *slog.Logger

	// Concurrency is the number of concurrent execution processors
	Concurrency int

	// PollInterval is how long to wait when no execution is pending
	PollInterval time.Duration

	// StaleAfter is the running age after which an execution is assumed
	// orphaned by a crashed instance and reclaimed
	StaleAfter time.Duration
}

// NewEngine creates a new workflow engine.
func NewEngine(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 2
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	staleAfter := cfg.StaleAfter
	if staleAfter <= 0 {
		staleAfter = 30 * time.Minute
	}

	return &Engine{
		store:        cfg.Store,
		logger:       logger,
		concurrency:  concurrency,
		pollInterval: pollInterval,
		staleAfter:   staleAfter,
		workflows:    make(map[string]driven.WorkflowFunc),
	}
}

// Register binds a workflow name to its body. Must be called before Start
// requests arrive for that name.
func (e *Engine) Register(name string, fn driven.WorkflowFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.workflows[name] = fn
}

// Start requests execution of a workflow under the given id. The actual
// run happens on whichever engine instance claims the record.
func (e *Engine) Start(ctx context.Context, name, workflowID string, policy driven.IDReusePolicy, input []byte) error {
	e.mu.RLock()
	_, known := e.workflows[name]
	e.mu.RUnlock()
	if !known {
		return fmt.Errorf("workflow %q is not registered", name)
	}
	return e.store.Begin(ctx, name, workflowID, policy, input)
}

// Run begins the execution loop. It runs until Stop is called or the
// context is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = true
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})
	e.mu.Unlock()

	e.logger.Info("workflow engine starting",
		"concurrency", e.concurrency,
		"poll_interval", e.pollInterval,
	)

	var wg sync.WaitGroup
	for i := 0; i < e.concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			e.processLoop(ctx, id)
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		e.reclaimLoop(ctx)
	}()

	go func() {
		wg.Wait()
		close(e.doneCh)
	}()

	return nil
}

// Stop gracefully stops the engine, waiting for in-flight executions.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	close(e.stopCh)
	e.mu.Unlock()

	<-e.doneCh

	e.mu.Lock()
	e.running = false
	e.mu.Unlock()

	e.logger.Info("workflow engine stopped")
}

func (e *Engine) processLoop(ctx context.Context, id int) {
	logger := e.logger.With("engine_worker", id)

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		default:
		}

		exec, err := e.store.ClaimPending(ctx)
		if err != nil {
			logger.Error("failed to claim execution", "error", err)
			e.sleep(time.Second)
			continue
		}
		if exec == nil {
			e.sleep(e.pollInterval)
			continue
		}

		e.execute(ctx, exec, logger)
	}
}

func (e *Engine) reclaimLoop(ctx context.Context) {
	ticker := time.NewTicker(e.staleAfter / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			reclaimed, err := e.store.ReclaimStale(ctx, e.staleAfter)
			if err != nil {
				e.logger.Error("failed to reclaim stale executions", "error", err)
				continue
			}
			if reclaimed > 0 {
				e.logger.Warn("reclaimed orphaned executions", "count", reclaimed)
			}
		}
	}
}

func (e *Engine) sleep(d time.Duration) {
	select {
	case <-e.stopCh:
	case <-time.After(d):
	}
}

// Execute runs one claimed execution to completion. Exposed so tests and
// single-shot callers can drive an execution without the polling loop.
func (e *Engine) Execute(ctx context.Context, exec *driven.Execution) error {
	e.execute(ctx, exec, e.logger)
	return nil
}

func (e *Engine) execute(ctx context.Context, exec *driven.Execution, logger *slog.Logger) {
	logger = logger.With("workflow_id", exec.WorkflowID, "workflow", exec.Name)

	e.mu.RLock()
	fn, ok := e.workflows[exec.Name]
	e.mu.RUnlock()
	if !ok {
		logger.Error("no registered body for workflow")
		if err := e.store.Fail(ctx, exec.WorkflowID, "workflow not registered"); err != nil {
			logger.Error("failed to mark execution failed", "error", err)
		}
		return
	}

	logger.Info("executing workflow", "attempts", exec.Attempts)
	start := time.Now()

	runner := &activityRunner{store: e.store, workflowID: exec.WorkflowID, logger: logger}
	err := fn(ctx, runner, exec.Input)
	duration := time.Since(start)

	if err != nil {
		logger.Error("workflow failed", "duration", duration, "error", err)
		if failErr := e.store.Fail(ctx, exec.WorkflowID, err.Error()); failErr != nil {
			logger.Error("failed to mark execution failed", "error", failErr)
		}
		return
	}

	logger.Info("workflow completed", "duration", duration)
	if err := e.store.Complete(ctx, exec.WorkflowID); err != nil {
		logger.Error("failed to mark execution completed", "error", err)
	}
}

// activityRunner executes named activities with checkpointing and the
// retry policy carried in the activity options.
type activityRunner struct {
	store      driven.ExecutionStore
	workflowID string
	logger     *slog.Logger
}

var _ driven.ActivityRunner = (*activityRunner)(nil)

func (r *activityRunner) Do(ctx context.Context, name string, opts driven.ActivityOptions, fn func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	// A checkpointed activity already ran to completion in a previous
	// attempt; return its persisted output instead of re-running.
	output, ok, err := r.store.GetCheckpoint(ctx, r.workflowID, name)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", name, err)
	}
	if ok {
		r.logger.Debug("activity resumed from checkpoint", "activity", name)
		return output, nil
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		output, lastErr = r.attempt(ctx, opts.Timeout, fn)
		if lastErr == nil {
			if err := r.store.SaveCheckpoint(ctx, r.workflowID, name, output); err != nil {
				return nil, fmt.Errorf("save checkpoint %s: %w", name, err)
			}
			return output, nil
		}

		r.logger.Warn("activity attempt failed",
			"activity", name,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"error", lastErr,
		)
		if attempt < maxAttempts && opts.Backoff > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(opts.Backoff):
			}
		}
	}
	return nil, fmt.Errorf("activity %s: %w", name, lastErr)
}

func (r *activityRunner) attempt(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fn(ctx)
}
