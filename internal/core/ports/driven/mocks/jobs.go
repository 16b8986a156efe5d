package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/syncflow-core/internal/core/domain"
)

type jobKey struct {
	id   string
	spec string
}

// MockJobStore is an in-memory JobStore for testing.
type MockJobStore struct {
	mu   sync.Mutex
	jobs map[jobKey]*domain.Job
}

func NewMockJobStore() *MockJobStore {
	return &MockJobStore{jobs: make(map[jobKey]*domain.Job)}
}

func (m *MockJobStore) AddCron(ctx context.Context, jobID, expression string, kind domain.JobKind, payload map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := jobKey{jobID, expression}
	if _, ok := m.jobs[key]; ok {
		return nil // idempotent
	}
	m.jobs[key] = &domain.Job{
		ID:         jobID,
		Kind:       kind,
		Expression: expression,
		Payload:    payload,
		CreatedAt:  time.Now(),
	}
	return nil
}

func (m *MockJobStore) RemoveCron(ctx context.Context, jobID, expression string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := jobKey{jobID, expression}
	if _, ok := m.jobs[key]; !ok {
		return domain.ErrNotFound
	}
	delete(m.jobs, key)
	return nil
}

func (m *MockJobStore) AddInterval(ctx context.Context, jobID string, interval time.Duration, kind domain.JobKind, payload map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := jobKey{jobID, interval.String()}
	if _, ok := m.jobs[key]; ok {
		return nil
	}
	m.jobs[key] = &domain.Job{
		ID:        jobID,
		Kind:      kind,
		Interval:  interval,
		Payload:   payload,
		NextRun:   time.Now().Add(interval),
		CreatedAt: time.Now(),
	}
	return nil
}

func (m *MockJobStore) RemoveInterval(ctx context.Context, jobID string, interval time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := jobKey{jobID, interval.String()}
	if _, ok := m.jobs[key]; !ok {
		return domain.ErrNotFound
	}
	delete(m.jobs, key)
	return nil
}

func (m *MockJobStore) Due(ctx context.Context, now time.Time) ([]*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []*domain.Job
	for _, job := range m.jobs {
		if job.IsDue(now) {
			copied := *job
			due = append(due, &copied)
		}
	}
	return due, nil
}

func (m *MockJobStore) Reschedule(ctx context.Context, jobID string, firedAt time.Time, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, job := range m.jobs {
		if job.ID == jobID {
			job.LastRun = &firedAt
			job.LastError = lastError
			if job.Interval > 0 {
				job.NextRun = firedAt.Add(job.Interval)
			}
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *MockJobStore) Ping(ctx context.Context) error { return nil }

// Helper methods for testing

// Has reports whether a job with the given key pair is registered.
func (m *MockJobStore) Has(jobID, spec string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.jobs[jobKey{jobID, spec}]
	return ok
}

// Job returns the registered job with the given id, if any.
func (m *MockJobStore) Job(jobID string) *domain.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, job := range m.jobs {
		if job.ID == jobID {
			copied := *job
			return &copied
		}
	}
	return nil
}

// Count returns the number of registered jobs.
func (m *MockJobStore) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

// MockLock is a DistributedLock that always acquires.
type MockLock struct {
	mu       sync.Mutex
	held     map[string]bool
	Denied   bool // when true, Acquire returns false
	AcquireE error
}

func NewMockLock() *MockLock {
	return &MockLock{held: make(map[string]bool)}
}

func (m *MockLock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AcquireE != nil {
		return false, m.AcquireE
	}
	if m.Denied {
		return false, nil
	}
	m.held[name] = true
	return true, nil
}

func (m *MockLock) Release(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.held, name)
	return nil
}
