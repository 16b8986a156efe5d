package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/syncflow-core/internal/core/domain"
	"github.com/custodia-labs/syncflow-core/internal/core/ports/driven"
)

const (
	// Stream key prefix; one stream per topic
	streamPrefix = "syncflow:events:"

	// Default consumer name prefix
	consumerPrefix = "consumer-"

	// Streams are capped so an idle topic does not grow without bound
	streamMaxLen = 10000

	// Pending entries idle longer than this are claimed from dead
	// consumers before new entries are read
	reclaimMinIdle = 30 * time.Second
)

// Verify interface compliance
var _ driven.EventBus = (*Bus)(nil)

// Bus implements EventBus using Redis Streams, one stream per topic.
// Consumer groups give each delivery to exactly one group member and track
// acknowledgments, so an instance that dies mid-handling leaves the
// delivery pending for redelivery.
type Bus struct {
	client       *redis.Client
	consumerName string

	mu     sync.Mutex
	groups map[string]bool // "group/topic" pairs already created
}

// NewBus creates a new Redis Streams event bus.
// The consumerName should be unique per instance (e.g., hostname + PID).
func NewBus(client *redis.Client, consumerName string) (*Bus, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if consumerName == "" {
		consumerName = fmt.Sprintf("%s%d", consumerPrefix, time.Now().UnixNano())
	}

	return &Bus{
		client:       client,
		consumerName: consumerName,
		groups:       make(map[string]bool),
	}, nil
}

// Publish appends an event to a topic stream.
func (b *Bus) Publish(ctx context.Context, topic string, event *domain.Event) error {
	if event == nil {
		return errors.New("event is required")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.Name, err)
	}

	err = b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamPrefix + topic,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"event": string(data),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Fetch blocks up to timeout seconds for deliveries on the topics.
// Returns nil, nil when nothing arrived before the timeout.
func (b *Bus) Fetch(ctx context.Context, group string, topics []string, timeoutSec int) ([]driven.Delivery, error) {
	if len(topics) == 0 {
		return nil, nil
	}

	if err := b.ensureGroups(ctx, group, topics); err != nil {
		return nil, err
	}

	// Unacked entries left by a crashed consumer are redelivered here
	if reclaimed := b.claimAbandoned(ctx, group, topics); len(reclaimed) > 0 {
		return reclaimed, nil
	}

	streams := make([]string, 0, len(topics)*2)
	for _, topic := range topics {
		streams = append(streams, streamPrefix+topic)
	}
	for range topics {
		streams = append(streams, ">")
	}

	// A non-positive timeout reads without blocking; BLOCK 0 would wait
	// forever.
	block := time.Duration(timeoutSec) * time.Second
	if timeoutSec <= 0 {
		block = -1
	}

	result, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: b.consumerName,
		Streams:  streams,
		Count:    10,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, fmt.Errorf("read group %s: %w", group, err)
	}

	var deliveries []driven.Delivery
	for _, stream := range result {
		topic := stream.Stream[len(streamPrefix):]
		for _, msg := range stream.Messages {
			event, err := decodeMessage(msg)
			if err != nil {
				// Malformed entry; ack it away rather than poison the group
				b.client.XAck(ctx, stream.Stream, group, msg.ID)
				continue
			}
			deliveries = append(deliveries, driven.Delivery{
				Topic: topic,
				AckID: msg.ID,
				Event: event,
			})
		}
	}
	return deliveries, nil
}

// Ack acknowledges a processed delivery.
func (b *Bus) Ack(ctx context.Context, group string, delivery driven.Delivery) error {
	err := b.client.XAck(ctx, streamPrefix+delivery.Topic, group, delivery.AckID).Err()
	if err != nil {
		return fmt.Errorf("ack %s on %s: %w", delivery.AckID, delivery.Topic, err)
	}
	return nil
}

// Ping checks if the Redis backend is healthy.
func (b *Bus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// ensureGroups creates the consumer group on each topic stream once.
func (b *Bus) ensureGroups(ctx context.Context, group string, topics []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, topic := range topics {
		key := group + "/" + topic
		if b.groups[key] {
			continue
		}
		err := b.client.XGroupCreateMkStream(ctx, streamPrefix+topic, group, "0").Err()
		if err != nil && !isGroupExistsError(err) {
			return fmt.Errorf("create group %s on %s: %w", group, topic, err)
		}
		b.groups[key] = true
	}
	return nil
}

// claimAbandoned takes over pending entries whose consumer stopped acking.
// Best effort; an error here must not block reading new entries.
func (b *Bus) claimAbandoned(ctx context.Context, group string, topics []string) []driven.Delivery {
	var deliveries []driven.Delivery
	for _, topic := range topics {
		messages, _, err := b.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   streamPrefix + topic,
			Group:    group,
			Consumer: b.consumerName,
			MinIdle:  reclaimMinIdle,
			Start:    "0",
			Count:    10,
		}).Result()
		if err != nil {
			continue
		}
		for _, msg := range messages {
			event, err := decodeMessage(msg)
			if err != nil {
				b.client.XAck(ctx, streamPrefix+topic, group, msg.ID)
				continue
			}
			deliveries = append(deliveries, driven.Delivery{
				Topic: topic,
				AckID: msg.ID,
				Event: event,
			})
		}
	}
	return deliveries
}

func decodeMessage(msg redis.XMessage) (*domain.Event, error) {
	raw, ok := msg.Values["event"].(string)
	if !ok {
		return nil, fmt.Errorf("message %s has no event field", msg.ID)
	}
	var event domain.Event
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		return nil, fmt.Errorf("unmarshal message %s: %w", msg.ID, err)
	}
	return &event, nil
}

func isGroupExistsError(err error) bool {
	return err != nil && err.Error() == "BUSYGROUP Consumer Group name already exists"
}
