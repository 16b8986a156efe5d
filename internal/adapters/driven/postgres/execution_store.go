package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/custodia-labs/syncflow-core/internal/core/domain"
	"github.com/custodia-labs/syncflow-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ExecutionStore = (*ExecutionStore)(nil)

// ExecutionStore implements driven.ExecutionStore using PostgreSQL.
// Claiming uses FOR UPDATE SKIP LOCKED so multiple engine instances can
// poll the same table without double-running an execution.
type ExecutionStore struct {
	db *DB
}

// NewExecutionStore creates a new ExecutionStore
func NewExecutionStore(db *DB) *ExecutionStore {
	return &ExecutionStore{db: db}
}

// Begin registers an execution under the workflow id, applying the reuse
// policy against any existing record
func (s *ExecutionStore) Begin(ctx context.Context, name, workflowID string, policy driven.IDReusePolicy, input []byte) error {
	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		insert := `
			INSERT INTO workflow_executions (workflow_id, name, status, input)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (workflow_id) DO NOTHING
		`
		result, err := tx.ExecContext(ctx, insert, workflowID, name, string(driven.ExecutionStatusPending), input)
		if err != nil {
			return err
		}
		if affected, err := result.RowsAffected(); err != nil {
			return err
		} else if affected == 1 {
			return nil
		}

		var status string
		err = tx.QueryRowContext(ctx,
			`SELECT status FROM workflow_executions WHERE workflow_id = $1 FOR UPDATE`,
			workflowID).Scan(&status)
		if err != nil {
			return err
		}

		switch driven.ExecutionStatus(status) {
		case driven.ExecutionStatusPending, driven.ExecutionStatusRunning:
			return domain.ErrWorkflowActive
		case driven.ExecutionStatusCompleted:
			if policy != driven.ReuseAllowDuplicate {
				return domain.ErrWorkflowCompleted
			}
			// a fresh run must not resume from the previous run's steps
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM workflow_checkpoints WHERE workflow_id = $1`, workflowID); err != nil {
				return err
			}
		case driven.ExecutionStatusFailed:
			// retry of the same logical attempt; checkpoints stay so the
			// rerun resumes after the last completed activity
		default:
			return fmt.Errorf("execution %s has unknown status %q", workflowID, status)
		}

		reset := `
			UPDATE workflow_executions
			SET status = $2, input = $3, error = '', attempts = attempts + 1,
			    started_at = NULL, finished_at = NULL
			WHERE workflow_id = $1
		`
		_, err = tx.ExecContext(ctx, reset, workflowID, string(driven.ExecutionStatusPending), input)
		return err
	})
}

// ClaimPending atomically claims one pending execution
func (s *ExecutionStore) ClaimPending(ctx context.Context) (*driven.Execution, error) {
	query := `
		UPDATE workflow_executions
		SET status = $1, started_at = NOW()
		WHERE workflow_id = (
			SELECT workflow_id FROM workflow_executions
			WHERE status = $2
			ORDER BY created_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING workflow_id, name, status, input, error, attempts, created_at, started_at, finished_at
	`

	var exec driven.Execution
	var startedAt, finishedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query,
		string(driven.ExecutionStatusRunning),
		string(driven.ExecutionStatusPending),
	).Scan(
		&exec.WorkflowID,
		&exec.Name,
		&exec.Status,
		&exec.Input,
		&exec.Error,
		&exec.Attempts,
		&exec.CreatedAt,
		&startedAt,
		&finishedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	exec.StartedAt = TimePtr(startedAt)
	exec.FinishedAt = TimePtr(finishedAt)
	return &exec, nil
}

// Complete marks an execution completed
func (s *ExecutionStore) Complete(ctx context.Context, workflowID string) error {
	query := `
		UPDATE workflow_executions
		SET status = $2, finished_at = NOW()
		WHERE workflow_id = $1
	`
	result, err := s.db.ExecContext(ctx, query, workflowID, string(driven.ExecutionStatusCompleted))
	if err != nil {
		return err
	}
	return requireRow(result)
}

// Fail marks an execution failed with the given error
func (s *ExecutionStore) Fail(ctx context.Context, workflowID, errMsg string) error {
	query := `
		UPDATE workflow_executions
		SET status = $2, error = $3, finished_at = NOW()
		WHERE workflow_id = $1
	`
	result, err := s.db.ExecContext(ctx, query, workflowID, string(driven.ExecutionStatusFailed), errMsg)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// ReclaimStale returns executions stuck in running back to pending
func (s *ExecutionStore) ReclaimStale(ctx context.Context, olderThan time.Duration) (int, error) {
	query := `
		UPDATE workflow_executions
		SET status = $1, started_at = NULL
		WHERE status = $2 AND started_at < NOW() - ($3 * INTERVAL '1 second')
	`
	result, err := s.db.ExecContext(ctx, query,
		string(driven.ExecutionStatusPending),
		string(driven.ExecutionStatusRunning),
		int64(olderThan.Seconds()),
	)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	return int(affected), err
}

// SaveCheckpoint persists a completed activity's output
func (s *ExecutionStore) SaveCheckpoint(ctx context.Context, workflowID, activity string, output []byte) error {
	query := `
		INSERT INTO workflow_checkpoints (workflow_id, activity, output)
		VALUES ($1, $2, $3)
		ON CONFLICT (workflow_id, activity) DO UPDATE SET output = EXCLUDED.output, completed_at = NOW()
	`
	_, err := s.db.ExecContext(ctx, query, workflowID, activity, output)
	return err
}

// GetCheckpoint loads a persisted activity output
func (s *ExecutionStore) GetCheckpoint(ctx context.Context, workflowID, activity string) ([]byte, bool, error) {
	query := `SELECT output FROM workflow_checkpoints WHERE workflow_id = $1 AND activity = $2`

	var output []byte
	err := s.db.QueryRowContext(ctx, query, workflowID, activity).Scan(&output)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return output, true, nil
}
