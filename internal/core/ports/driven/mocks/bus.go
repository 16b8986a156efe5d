package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/syncflow-core/internal/core/domain"
	"github.com/custodia-labs/syncflow-core/internal/core/ports/driven"
)

// MockEventBus records published events and serves queued deliveries.
type MockEventBus struct {
	mu        sync.Mutex
	published map[string][]*domain.Event
	queued    []driven.Delivery
	acked     []string

	// PublishErr, when set, is returned from Publish
	PublishErr error
}

func NewMockEventBus() *MockEventBus {
	return &MockEventBus{published: make(map[string][]*domain.Event)}
}

func (m *MockEventBus) Publish(ctx context.Context, topic string, event *domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PublishErr != nil {
		return m.PublishErr
	}
	m.published[topic] = append(m.published[topic], event)
	return nil
}

func (m *MockEventBus) Fetch(ctx context.Context, group string, topics []string, timeoutSec int) ([]driven.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queued) == 0 {
		return nil, nil
	}
	deliveries := m.queued
	m.queued = nil
	return deliveries, nil
}

func (m *MockEventBus) Ack(ctx context.Context, group string, delivery driven.Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acked = append(m.acked, delivery.AckID)
	return nil
}

func (m *MockEventBus) Ping(ctx context.Context) error {
	return nil
}

// Helper methods for testing

// Published returns events published to a topic.
func (m *MockEventBus) Published(topic string) []*domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.Event(nil), m.published[topic]...)
}

// QueueDelivery makes a delivery available to the next Fetch.
func (m *MockEventBus) QueueDelivery(d driven.Delivery) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queued = append(m.queued, d)
}

// Acked returns the ack ids acknowledged so far.
func (m *MockEventBus) Acked() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.acked...)
}
