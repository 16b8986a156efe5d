package driven

import (
	"context"

	"github.com/custodia-labs/syncflow-core/internal/core/domain"
)

// Delivery is one received event plus the handle needed to acknowledge it.
type Delivery struct {
	// Topic the event arrived on
	Topic string

	// AckID identifies the delivery for Ack
	AckID string

	// Event is the decoded envelope
	Event *domain.Event
}

// EventBus is topic-based at-least-once pub/sub. Consumers read in a group
// so each delivery goes to one instance; unacked deliveries are redelivered,
// so handlers must be idempotent.
type EventBus interface {
	// Publish appends an event to a topic
	Publish(ctx context.Context, topic string, event *domain.Event) error

	// Fetch blocks up to timeout seconds for deliveries on the topics.
	// Returns nil, nil when nothing arrived.
	Fetch(ctx context.Context, group string, topics []string, timeoutSec int) ([]Delivery, error)

	// Ack acknowledges a processed delivery
	Ack(ctx context.Context, group string, delivery Delivery) error

	// Ping checks bus health
	Ping(ctx context.Context) error
}
