// Package worker consumes the event bus and dispatches deliveries to the
// orchestration handlers. The dispatch table is built explicitly at
// startup; an event name with no entry is a wiring error, not a runtime
// surprise.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/syncflow-core/internal/core/domain"
	"github.com/custodia-labs/syncflow-core/internal/core/ports/driven"
	"github.com/custodia-labs/syncflow-core/internal/core/services"
)

// EventHandler processes one decoded event delivery.
type EventHandler func(ctx context.Context, event *domain.Event) error

// DispatchTable maps event names to their handlers, in invocation order.
type DispatchTable map[string][]EventHandler

// NewDispatchTable wires the orchestration services into the event flow.
// DATA_SOURCE_DELETED fans out to two independent consumers: connection
// teardown and the artifact sweep. Neither depends on the other running
// first.
func NewDispatchTable(
	connections *services.ConnectionService,
	triggers *services.TriggerService,
	gateway *services.OrchestrationGateway,
	cleanup *services.CleanupService,
) DispatchTable {
	return DispatchTable{
		domain.EventConnectionCreated: {triggers.HandleConnectionCreated},
		domain.EventConnectionDeleted: {triggers.HandleConnectionDeleted},
		domain.EventWorkflowTriggered: {gateway.HandleWorkflowTriggered},
		domain.EventSyncflowScheduled: {gateway.HandleSyncflowScheduled},
		domain.EventSyncflowSucceed:   {cleanup.HandleSyncflowSucceed},
		domain.EventDataSourceDeleted: {
			connections.HandleDataSourceDeleted,
			cleanup.HandleDataSourceDeleted,
		},
	}
}

// Topics returns the event names the table consumes.
func (t DispatchTable) Topics() []string {
	topics := make([]string, 0, len(t))
	for topic := range t {
		topics = append(topics, topic)
	}
	return topics
}

// Worker is the bus consumer loop.
type Worker struct {
	bus      driven.EventBus
	handlers DispatchTable
	group    string
	logger   *slog.Logger

	fetchTimeoutSec int
	handleTimeout   time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// Config holds configuration for the Worker.
type Config struct {
	Bus      driven.EventBus
	Handlers DispatchTable
	Logger   *slog.Logger

	// Group is the consumer group name shared by all worker instances
	Group string

	// FetchTimeoutSec bounds one blocking fetch
	FetchTimeoutSec int

	// HandleTimeout bounds one handler invocation
	HandleTimeout time.Duration
}

// NewWorker creates a new event worker.
func NewWorker(cfg Config) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	group := cfg.Group
	if group == "" {
		group = "syncflow-workers"
	}
	fetchTimeout := cfg.FetchTimeoutSec
	if fetchTimeout <= 0 {
		fetchTimeout = 5
	}
	handleTimeout := cfg.HandleTimeout
	if handleTimeout <= 0 {
		handleTimeout = time.Minute
	}

	return &Worker{
		bus:             cfg.Bus,
		handlers:        cfg.Handlers,
		group:           group,
		logger:          logger,
		fetchTimeoutSec: fetchTimeout,
		handleTimeout:   handleTimeout,
	}
}

// Start begins consuming in a background goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	w.logger.Info("event worker starting", "group", w.group, "topics", w.handlers.Topics())
	go w.run(ctx)
}

// Stop gracefully stops the worker, waiting for the in-flight batch.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	close(w.stopCh)
	w.mu.Unlock()

	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("event worker stopped")
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		default:
		}

		deliveries, err := w.bus.Fetch(ctx, w.group, w.handlers.Topics(), w.fetchTimeoutSec)
		if err != nil {
			w.logger.Error("failed to fetch deliveries", "error", err)
			select {
			case <-w.stopCh:
				return
			case <-time.After(time.Second):
			}
			continue
		}

		for _, delivery := range deliveries {
			w.dispatch(ctx, delivery)
		}
	}
}

// dispatch runs every handler registered for the delivery's event. The
// delivery is acked only when all handlers succeed; a failed delivery
// stays pending and is redelivered, so handlers are written idempotent.
func (w *Worker) dispatch(ctx context.Context, delivery driven.Delivery) {
	handlers, ok := w.handlers[delivery.Event.Name]
	if !ok {
		w.logger.Warn("no handler for event", "event", delivery.Event.Name, "topic", delivery.Topic)
		w.ack(ctx, delivery)
		return
	}

	handleCtx, cancel := context.WithTimeout(ctx, w.handleTimeout)
	defer cancel()

	for _, handler := range handlers {
		if err := handler(handleCtx, delivery.Event); err != nil {
			w.logger.Error("event handler failed",
				"event", delivery.Event.Name,
				"event_id", delivery.Event.ID,
				"error", err,
			)
			return
		}
	}
	w.ack(ctx, delivery)
}

func (w *Worker) ack(ctx context.Context, delivery driven.Delivery) {
	if err := w.bus.Ack(ctx, w.group, delivery); err != nil {
		w.logger.Error("failed to ack delivery",
			"event", delivery.Event.Name,
			"ack_id", delivery.AckID,
			"error", err,
		)
	}
}
