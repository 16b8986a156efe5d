package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/custodia-labs/syncflow-core/internal/core/domain"
)

func createTestJobStore(t *testing.T) (*JobStore, func()) {
	t.Helper()

	client, cleanup := setupTestRedis(t)
	return NewJobStore(client), cleanup
}

func TestJobStore_AddCron_BecomesDue(t *testing.T) {
	store, cleanup := createTestJobStore(t)
	defer cleanup()
	ctx := context.Background()

	err := store.AddCron(ctx, "job-1", "*/5 * * * *", domain.JobKindFireTrigger, map[string]string{"trigger_id": "trg-1"})
	if err != nil {
		t.Fatalf("add cron: %v", err)
	}

	// Not due yet
	jobs, err := store.Due(ctx, time.Now())
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("expected no due jobs, got %d", len(jobs))
	}

	// Due once the next cron slot has passed
	jobs, err = store.Due(ctx, time.Now().Add(6*time.Minute))
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 due job, got %d", len(jobs))
	}
	if jobs[0].TriggerID() != "trg-1" {
		t.Errorf("trigger id = %s, want trg-1", jobs[0].TriggerID())
	}
	if jobs[0].Kind != domain.JobKindFireTrigger {
		t.Errorf("kind = %s, want %s", jobs[0].Kind, domain.JobKindFireTrigger)
	}
}

func TestJobStore_AddCron_InvalidExpression(t *testing.T) {
	store, cleanup := createTestJobStore(t)
	defer cleanup()

	err := store.AddCron(context.Background(), "job-1", "not a cron", domain.JobKindFireTrigger, nil)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestJobStore_AddCron_Idempotent(t *testing.T) {
	store, cleanup := createTestJobStore(t)
	defer cleanup()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := store.AddCron(ctx, "job-1", "0 * * * *", domain.JobKindFireTrigger, nil); err != nil {
			t.Fatalf("add cron (round %d): %v", i, err)
		}
	}

	jobs, err := store.Due(ctx, time.Now().Add(2*time.Hour))
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job after replayed registration, got %d", len(jobs))
	}
}

func TestJobStore_RemoveCron(t *testing.T) {
	store, cleanup := createTestJobStore(t)
	defer cleanup()
	ctx := context.Background()

	if err := store.AddCron(ctx, "job-1", "0 * * * *", domain.JobKindFireTrigger, nil); err != nil {
		t.Fatalf("add cron: %v", err)
	}

	// Removal must present the same key pair
	err := store.RemoveCron(ctx, "job-1", "*/5 * * * *")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for mismatched expression, got %v", err)
	}

	if err := store.RemoveCron(ctx, "job-1", "0 * * * *"); err != nil {
		t.Fatalf("remove cron: %v", err)
	}
	err = store.RemoveCron(ctx, "job-1", "0 * * * *")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after removal, got %v", err)
	}

	jobs, err := store.Due(ctx, time.Now().Add(2*time.Hour))
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("expected no jobs after removal, got %d", len(jobs))
	}
}

func TestJobStore_IntervalJobs(t *testing.T) {
	store, cleanup := createTestJobStore(t)
	defer cleanup()
	ctx := context.Background()

	err := store.AddInterval(ctx, "renew-1", 30*time.Minute, domain.JobKindRenewWebhook, map[string]string{"trigger_id": "trg-1"})
	if err != nil {
		t.Fatalf("add interval: %v", err)
	}

	jobs, err := store.Due(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 due job, got %d", len(jobs))
	}
	if jobs[0].Kind != domain.JobKindRenewWebhook {
		t.Errorf("kind = %s, want %s", jobs[0].Kind, domain.JobKindRenewWebhook)
	}

	err = store.RemoveInterval(ctx, "renew-1", time.Minute)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for mismatched interval, got %v", err)
	}
	if err := store.RemoveInterval(ctx, "renew-1", 30*time.Minute); err != nil {
		t.Fatalf("remove interval: %v", err)
	}
}

func TestJobStore_Reschedule(t *testing.T) {
	store, cleanup := createTestJobStore(t)
	defer cleanup()
	ctx := context.Background()

	if err := store.AddInterval(ctx, "renew-1", 30*time.Minute, domain.JobKindRenewWebhook, nil); err != nil {
		t.Fatalf("add interval: %v", err)
	}

	firedAt := time.Now().Add(time.Hour)
	if err := store.Reschedule(ctx, "renew-1", firedAt, "provider timeout"); err != nil {
		t.Fatalf("reschedule: %v", err)
	}

	// No longer due at the fire instant
	jobs, err := store.Due(ctx, firedAt)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("expected no due jobs right after reschedule, got %d", len(jobs))
	}

	// Due again one interval later, carrying the fire record
	jobs, err = store.Due(ctx, firedAt.Add(31*time.Minute))
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 due job, got %d", len(jobs))
	}
	if jobs[0].LastRun == nil || !jobs[0].LastRun.Equal(firedAt) {
		t.Errorf("last run = %v, want %v", jobs[0].LastRun, firedAt)
	}
	if jobs[0].LastError != "provider timeout" {
		t.Errorf("last error = %q, want provider timeout", jobs[0].LastError)
	}
}

func TestJobStore_Reschedule_MissingJob(t *testing.T) {
	store, cleanup := createTestJobStore(t)
	defer cleanup()

	err := store.Reschedule(context.Background(), "ghost", time.Now(), "")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
