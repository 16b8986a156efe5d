package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/syncflow-core/internal/core/domain"
	"github.com/custodia-labs/syncflow-core/internal/core/ports/driven"
	"github.com/custodia-labs/syncflow-core/internal/snapshot"
)

// MockProviderClient is a configurable ProviderClient for testing.
type MockProviderClient struct {
	mu sync.Mutex

	// Snapshot returned from DownloadSnapshot
	Snapshot    *snapshot.Table
	DownloadErr error

	// Lease granted on RegisterChangeWebhook
	Lease       time.Duration
	RegisterErr error
	StopErr     error

	registered []driven.WebhookSubscription
	stopped    []string
}

func NewMockProviderClient() *MockProviderClient {
	return &MockProviderClient{
		Snapshot: &snapshot.Table{Columns: []string{"id"}},
		Lease:    time.Duration(518400) * time.Second,
	}
}

func (m *MockProviderClient) DownloadSnapshot(ctx context.Context, source *domain.DataSource) (*snapshot.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DownloadErr != nil {
		return nil, m.DownloadErr
	}
	return m.Snapshot, nil
}

func (m *MockProviderClient) RegisterChangeWebhook(ctx context.Context, source *domain.DataSource, triggerID, channelID, token string, lease time.Duration) (*driven.WebhookSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RegisterErr != nil {
		return nil, m.RegisterErr
	}
	sub := driven.WebhookSubscription{
		ID:         channelID,
		ResourceID: "resource-" + channelID,
		Token:      token,
		ExpiresAt:  time.Now().Add(m.Lease),
	}
	m.registered = append(m.registered, sub)
	return &sub, nil
}

func (m *MockProviderClient) StopChangeWebhook(ctx context.Context, source *domain.DataSource, subscriptionID, resourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = append(m.stopped, subscriptionID)
	if m.StopErr != nil {
		return m.StopErr
	}
	return nil
}

// Registered returns the subscriptions opened so far.
func (m *MockProviderClient) Registered() []driven.WebhookSubscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]driven.WebhookSubscription(nil), m.registered...)
}

// Stopped returns the subscription ids stopped so far.
func (m *MockProviderClient) Stopped() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.stopped...)
}
