package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/custodia-labs/syncflow-core/internal/core/domain"
	"github.com/custodia-labs/syncflow-core/internal/core/ports/driven"
	"github.com/custodia-labs/syncflow-core/internal/registry"
)

// ConnectionService owns the SyncConnection lifecycle. Creating a
// connection materialises the provider's registry definitions into
// syncflow and trigger records; deleting one soft-deletes the whole
// aggregate and lets the trigger service tear down jobs and subscriptions.
type ConnectionService struct {
	connections driven.ConnectionStore
	syncflows   driven.SyncflowStore
	triggers    driven.TriggerStore
	sources     driven.DataSourceStore
	registry    *registry.Registry
	bus         driven.EventBus
	logger      *slog.Logger
}

// ConnectionServiceConfig holds dependencies for ConnectionService.
type ConnectionServiceConfig struct {
	Connections driven.ConnectionStore
	Syncflows   driven.SyncflowStore
	Triggers    driven.TriggerStore
	Sources     driven.DataSourceStore
	Registry    *registry.Registry
	Bus         driven.EventBus
	Logger      *slog.Logger
}

// NewConnectionService creates a new connection service.
func NewConnectionService(cfg ConnectionServiceConfig) *ConnectionService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ConnectionService{
		connections: cfg.Connections,
		syncflows:   cfg.Syncflows,
		triggers:    cfg.Triggers,
		sources:     cfg.Sources,
		registry:    cfg.Registry,
		bus:         cfg.Bus,
		logger:      logger,
	}
}

// Create connects a data source: one connection, plus the syncflows and
// triggers its provider type defines. Emits CONNECTION_CREATED.
func (s *ConnectionService) Create(ctx context.Context, sourceID string) (*domain.SyncConnection, error) {
	source, err := s.sources.Get(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("get data source: %w", err)
	}

	if existing, err := s.connections.GetBySource(ctx, sourceID); err == nil && existing != nil {
		return nil, fmt.Errorf("source %s: %w", sourceID, domain.ErrAlreadyExists)
	}

	defs, err := s.registry.Definitions(source.ProviderType)
	if err != nil {
		return nil, err
	}

	conn := domain.NewSyncConnection(sourceID)
	if err := s.connections.Create(ctx, conn); err != nil {
		return nil, fmt.Errorf("create connection: %w", err)
	}

	for _, def := range defs {
		syncflow := domain.NewSyncflow(def.Name, conn.ID, sourceID, def.Attributes)

		trigger := domain.NewTrigger(def.Trigger.Name, def.Trigger.Type, domain.WorkflowRef{
			ID:   syncflow.ID,
			Name: syncflow.Name,
			Type: domain.WorkflowTypeSyncflow,
		})
		switch def.Trigger.Type {
		case domain.TriggerTypeCron:
			trigger.Cron = &domain.CronConfig{
				JobID:      uuid.NewString(),
				Expression: def.Trigger.CronExpression,
			}
		case domain.TriggerTypeWebhook:
			trigger.Webhook = &domain.WebhookConfig{
				LeaseSeconds: def.Trigger.LeaseSeconds,
			}
		}

		if err := s.triggers.Create(ctx, trigger); err != nil {
			return nil, fmt.Errorf("create trigger: %w", err)
		}

		syncflow.TriggerID = trigger.ID
		if err := s.syncflows.Create(ctx, syncflow); err != nil {
			return nil, fmt.Errorf("create syncflow: %w", err)
		}

		conn.Syncflows = append(conn.Syncflows, syncflow.Summary())
	}

	if err := s.connections.Save(ctx, conn); err != nil {
		return nil, fmt.Errorf("save connection: %w", err)
	}

	event, err := domain.NewEvent(domain.EventConnectionCreated, conn)
	if err != nil {
		return nil, err
	}
	if err := s.bus.Publish(ctx, domain.EventConnectionCreated, event); err != nil {
		return nil, fmt.Errorf("publish connection created: %w", err)
	}

	s.logger.Info("connection created",
		"connection_id", conn.ID,
		"source_id", sourceID,
		"syncflows", len(conn.Syncflows),
	)
	return conn, nil
}

// Delete tears a connection down. The connection and its syncflows are
// soft-deleted, never physically removed; CONNECTION_DELETED drives the
// trigger service's job and subscription cleanup.
func (s *ConnectionService) Delete(ctx context.Context, id string) error {
	conn, err := s.connections.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("get connection: %w", err)
	}

	for _, summary := range conn.Syncflows {
		if err := s.syncflows.SoftDelete(ctx, summary.ID); err != nil {
			s.logger.Warn("failed to soft-delete syncflow", "syncflow_id", summary.ID, "error", err)
		}
	}

	if err := s.connections.SoftDelete(ctx, id); err != nil {
		return fmt.Errorf("soft-delete connection: %w", err)
	}
	conn.Status = domain.ConnectionStatusInactive

	event, err := domain.NewEvent(domain.EventConnectionDeleted, conn)
	if err != nil {
		return err
	}
	if err := s.bus.Publish(ctx, domain.EventConnectionDeleted, event); err != nil {
		return fmt.Errorf("publish connection deleted: %w", err)
	}

	s.logger.Info("connection deleted", "connection_id", id)
	return nil
}

// Get returns a connection by id.
func (s *ConnectionService) Get(ctx context.Context, id string) (*domain.SyncConnection, error) {
	return s.connections.Get(ctx, id)
}

// HandleDataSourceDeleted tears down the connection of a deleted data
// source. No connection is an acceptable state; the source may never have
// been connected, or a redelivery already handled it.
func (s *ConnectionService) HandleDataSourceDeleted(ctx context.Context, event *domain.Event) error {
	var payload domain.DataSourceDeletedPayload
	if err := event.Decode(&payload); err != nil {
		return err
	}

	conn, err := s.connections.GetBySource(ctx, payload.DataSourceID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("get connection by source: %w", err)
	}
	return s.Delete(ctx, conn.ID)
}
