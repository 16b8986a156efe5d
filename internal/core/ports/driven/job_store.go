package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/syncflow-core/internal/core/domain"
)

// JobStore handles recurring scheduler jobs. Cron jobs are keyed
// (jobID, expression), interval jobs (jobID, interval); removing with a
// key pair that matches nothing is not an error (already satisfied).
type JobStore interface {
	// AddCron registers a repeatable cron job. Registering an already
	// present job id is a no-op.
	AddCron(ctx context.Context, jobID, expression string, kind domain.JobKind, payload map[string]string) error

	// RemoveCron removes a repeatable cron job by (jobID, expression).
	// Returns domain.ErrNotFound if no such job exists.
	RemoveCron(ctx context.Context, jobID, expression string) error

	// AddInterval registers a repeatable fixed-interval job. Registering
	// an already present job id is a no-op.
	AddInterval(ctx context.Context, jobID string, interval time.Duration, kind domain.JobKind, payload map[string]string) error

	// RemoveInterval removes an interval job by (jobID, interval).
	// Returns domain.ErrNotFound if no such job exists.
	RemoveInterval(ctx context.Context, jobID string, interval time.Duration) error

	// Due returns jobs whose next run time has passed
	Due(ctx context.Context, now time.Time) ([]*domain.Job, error)

	// Reschedule records a fire attempt and computes the next run time
	Reschedule(ctx context.Context, jobID string, firedAt time.Time, lastError string) error

	// Ping checks scheduler backend health
	Ping(ctx context.Context) error
}

// DistributedLock coordinates scheduler ticks across instances so a due
// job fires once per tick.
type DistributedLock interface {
	// Acquire attempts to acquire a named lock with the given TTL.
	// Returns true if acquired, false if held elsewhere.
	Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error)

	// Release releases a named lock if held by this instance
	Release(ctx context.Context, name string) error
}
