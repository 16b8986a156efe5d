package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/custodia-labs/syncflow-core/internal/core/domain"
	"github.com/custodia-labs/syncflow-core/internal/core/ports/driven"
)

const (
	defaultSchedulerInterval = 15 * time.Second
	schedulerLockName        = "scheduler-tick"
	schedulerLockTTL         = 60 * time.Second
	schedulerTickTimeout     = 55 * time.Second
)

// schedulerJobHandler runs one due job.
type schedulerJobHandler func(ctx context.Context, job *domain.Job) error

// Scheduler drives recurring jobs. Every tick it takes a distributed lock
// so one instance per deployment fires the due jobs, dispatches each job by
// kind, and reschedules it with the fire result.
type Scheduler struct {
	jobs     driven.JobStore
	lock     driven.DistributedLock
	handlers map[domain.JobKind]schedulerJobHandler
	interval time.Duration
	logger   *slog.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// SchedulerConfig holds dependencies for Scheduler.
type SchedulerConfig struct {
	Jobs     driven.JobStore
	Lock     driven.DistributedLock
	Triggers *TriggerService

	// Interval between ticks; defaults to 15s
	Interval time.Duration

	Logger *slog.Logger
}

// NewScheduler creates a new scheduler with the job kind dispatch table
// built from the trigger service.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultSchedulerInterval
	}

	handlers := map[domain.JobKind]schedulerJobHandler{
		domain.JobKindFireTrigger: func(ctx context.Context, job *domain.Job) error {
			return cfg.Triggers.Fire(ctx, job.TriggerID())
		},
		domain.JobKindRenewWebhook: func(ctx context.Context, job *domain.Job) error {
			return cfg.Triggers.RenewWebhook(ctx, job.TriggerID())
		},
	}

	return &Scheduler{
		jobs:     cfg.Jobs,
		lock:     cfg.Lock,
		handlers: handlers,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the tick loop.
func (s *Scheduler) Start() {
	s.logger.Info("scheduler starting", "interval", s.interval)
	go s.run()
}

// Stop signals the loop to exit and waits for the in-flight tick.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), schedulerTickTimeout)
			s.Tick(ctx, time.Now())
			cancel()
		}
	}
}

// Tick fires all due jobs once, if this instance wins the tick lock.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	acquired, err := s.lock.Acquire(ctx, schedulerLockName, schedulerLockTTL)
	if err != nil {
		s.logger.Error("failed to acquire scheduler lock", "error", err)
		return
	}
	if !acquired {
		return
	}
	defer func() {
		if err := s.lock.Release(ctx, schedulerLockName); err != nil {
			s.logger.Warn("failed to release scheduler lock", "error", err)
		}
	}()

	due, err := s.jobs.Due(ctx, now)
	if err != nil {
		s.logger.Error("failed to list due jobs", "error", err)
		return
	}

	for _, job := range due {
		s.fireJob(ctx, job, now)
	}
}

func (s *Scheduler) fireJob(ctx context.Context, job *domain.Job, now time.Time) {
	handler, ok := s.handlers[job.Kind]
	if !ok {
		// unknown kind means a deployment skew; park the job with the error
		s.logger.Error("no handler for job kind", "job_id", job.ID, "kind", job.Kind)
		if err := s.jobs.Reschedule(ctx, job.ID, now, "unknown job kind"); err != nil {
			s.logger.Error("failed to reschedule job", "job_id", job.ID, "error", err)
		}
		return
	}

	var lastError string
	if err := handler(ctx, job); err != nil {
		lastError = err.Error()
		s.logger.Error("job failed",
			"job_id", job.ID,
			"kind", job.Kind,
			"trigger_id", job.TriggerID(),
			"error", err,
		)
	} else {
		s.logger.Debug("job fired", "job_id", job.ID, "kind", job.Kind)
	}

	if err := s.jobs.Reschedule(ctx, job.ID, now, lastError); err != nil {
		s.logger.Error("failed to reschedule job", "job_id", job.ID, "error", err)
	}
}
