package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/custodia-labs/syncflow-core/internal/core/domain"
	"github.com/custodia-labs/syncflow-core/internal/core/ports/driven"
)

const (
	// Key prefixes
	jobKeyPrefix = "syncflow:job:"

	// Sorted set of job ids scored by next run time
	jobSchedule = "syncflow:jobs:schedule"
)

// Verify interface compliance
var _ driven.JobStore = (*JobStore)(nil)

// JobStore implements driven.JobStore on Redis. Each job is a JSON blob
// under its own key; due ordering lives in a sorted set scored by the next
// run time, so Due is a single ZRANGEBYSCORE.
type JobStore struct {
	client *redis.Client
}

// NewJobStore creates a new Redis-backed job store.
func NewJobStore(client *redis.Client) *JobStore {
	return &JobStore{client: client}
}

// AddCron registers a repeatable cron job. Registering an already present
// job id is a no-op, so trigger setup can be replayed safely.
func (s *JobStore) AddCron(ctx context.Context, jobID, expression string, kind domain.JobKind, payload map[string]string) error {
	schedule, err := cron.ParseStandard(expression)
	if err != nil {
		return fmt.Errorf("cron expression %q: %w: %v", expression, domain.ErrInvalidInput, err)
	}

	job := &domain.Job{
		ID:         jobID,
		Kind:       kind,
		Expression: expression,
		Payload:    payload,
		NextRun:    schedule.Next(time.Now()),
		CreatedAt:  time.Now(),
	}
	return s.add(ctx, job)
}

// RemoveCron removes a repeatable cron job by (jobID, expression).
func (s *JobStore) RemoveCron(ctx context.Context, jobID, expression string) error {
	job, err := s.get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Expression != expression {
		return fmt.Errorf("job %s has expression %q: %w", jobID, job.Expression, domain.ErrNotFound)
	}
	return s.remove(ctx, jobID)
}

// AddInterval registers a repeatable fixed-interval job. Registering an
// already present job id is a no-op.
func (s *JobStore) AddInterval(ctx context.Context, jobID string, interval time.Duration, kind domain.JobKind, payload map[string]string) error {
	if interval <= 0 {
		return fmt.Errorf("interval %s: %w", interval, domain.ErrInvalidInput)
	}

	job := &domain.Job{
		ID:        jobID,
		Kind:      kind,
		Interval:  interval,
		Payload:   payload,
		NextRun:   time.Now().Add(interval),
		CreatedAt: time.Now(),
	}
	return s.add(ctx, job)
}

// RemoveInterval removes an interval job by (jobID, interval).
func (s *JobStore) RemoveInterval(ctx context.Context, jobID string, interval time.Duration) error {
	job, err := s.get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Interval != interval {
		return fmt.Errorf("job %s has interval %s: %w", jobID, job.Interval, domain.ErrNotFound)
	}
	return s.remove(ctx, jobID)
}

// Due returns jobs whose next run time has passed.
func (s *JobStore) Due(ctx context.Context, now time.Time) ([]*domain.Job, error) {
	ids, err := s.client.ZRangeByScore(ctx, jobSchedule, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now.Unix()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list due jobs: %w", err)
	}

	var jobs []*domain.Job
	for _, id := range ids {
		job, err := s.get(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			// Orphaned schedule entry; the job body is gone
			s.client.ZRem(ctx, jobSchedule, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Reschedule records a fire attempt and computes the next run time.
func (s *JobStore) Reschedule(ctx context.Context, jobID string, firedAt time.Time, lastError string) error {
	job, err := s.get(ctx, jobID)
	if err != nil {
		return err
	}

	var next time.Time
	if job.Expression != "" {
		schedule, err := cron.ParseStandard(job.Expression)
		if err != nil {
			return fmt.Errorf("cron expression %q: %w", job.Expression, err)
		}
		next = schedule.Next(firedAt)
	} else {
		next = firedAt.Add(job.Interval)
	}

	job.LastRun = &firedAt
	job.LastError = lastError
	job.NextRun = next
	return s.save(ctx, job)
}

// Ping checks if the Redis backend is healthy.
func (s *JobStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *JobStore) add(ctx context.Context, job *domain.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}

	created, err := s.client.SetNX(ctx, jobKeyPrefix+job.ID, data, 0).Result()
	if err != nil {
		return fmt.Errorf("store job %s: %w", job.ID, err)
	}
	if !created {
		return nil
	}

	err = s.client.ZAdd(ctx, jobSchedule, redis.Z{
		Score:  float64(job.NextRun.Unix()),
		Member: job.ID,
	}).Err()
	if err != nil {
		return fmt.Errorf("schedule job %s: %w", job.ID, err)
	}
	return nil
}

func (s *JobStore) save(ctx context.Context, job *domain.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, jobKeyPrefix+job.ID, data, 0)
	pipe.ZAdd(ctx, jobSchedule, redis.Z{
		Score:  float64(job.NextRun.Unix()),
		Member: job.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

func (s *JobStore) get(ctx context.Context, jobID string) (*domain.Job, error) {
	data, err := s.client.Get(ctx, jobKeyPrefix+jobID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}

	var job domain.Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("unmarshal job %s: %w", jobID, err)
	}
	return &job, nil
}

func (s *JobStore) remove(ctx context.Context, jobID string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, jobKeyPrefix+jobID)
	pipe.ZRem(ctx, jobSchedule, jobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("remove job %s: %w", jobID, err)
	}
	return nil
}
