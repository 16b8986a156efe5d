package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/custodia-labs/syncflow-core/internal/core/domain"
	"github.com/custodia-labs/syncflow-core/internal/core/ports/driven"
)

// TriggerService registers and fires triggers. Trigger records are created
// by the connection service; this service reacts to connection lifecycle
// events by installing or removing the firing machinery (scheduler jobs,
// push subscriptions) and turns every firing into a WORKFLOW_TRIGGERED
// event on the bus.
type TriggerService struct {
	triggers  driven.TriggerStore
	syncflows driven.SyncflowStore
	sources   driven.DataSourceStore
	jobs      driven.JobStore
	webhooks  *WebhookManager
	bus       driven.EventBus
	logger    *slog.Logger
}

// TriggerServiceConfig holds dependencies for TriggerService.
type TriggerServiceConfig struct {
	Triggers  driven.TriggerStore
	Syncflows driven.SyncflowStore
	Sources   driven.DataSourceStore
	Jobs      driven.JobStore
	Webhooks  *WebhookManager
	Bus       driven.EventBus
	Logger    *slog.Logger
}

// NewTriggerService creates a new trigger service.
func NewTriggerService(cfg TriggerServiceConfig) *TriggerService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &TriggerService{
		triggers:  cfg.Triggers,
		syncflows: cfg.Syncflows,
		sources:   cfg.Sources,
		jobs:      cfg.Jobs,
		webhooks:  cfg.Webhooks,
		bus:       cfg.Bus,
		logger:    logger,
	}
}

// HandleConnectionCreated installs firing machinery for every trigger of
// the new connection. Idempotent under bus redelivery: job registration is
// a no-op for known ids and webhook creation replaces the stored channel.
func (s *TriggerService) HandleConnectionCreated(ctx context.Context, event *domain.Event) error {
	var conn domain.SyncConnection
	if err := event.Decode(&conn); err != nil {
		return err
	}
	return s.CreateTriggersForConnection(ctx, &conn)
}

// HandleConnectionDeleted tears down firing machinery for every trigger of
// the deleted connection.
func (s *TriggerService) HandleConnectionDeleted(ctx context.Context, event *domain.Event) error {
	var conn domain.SyncConnection
	if err := event.Decode(&conn); err != nil {
		return err
	}
	return s.DeleteTriggersForConnection(ctx, &conn)
}

// CreateTriggersForConnection installs jobs and subscriptions for all
// syncflow triggers of a connection.
func (s *TriggerService) CreateTriggersForConnection(ctx context.Context, conn *domain.SyncConnection) error {
	source, err := s.sources.Get(ctx, conn.SourceID)
	if err != nil {
		return fmt.Errorf("get data source: %w", err)
	}

	for _, summary := range conn.Syncflows {
		trigger, err := s.triggers.Get(ctx, summary.TriggerID)
		if err != nil {
			return fmt.Errorf("get trigger %s: %w", summary.TriggerID, err)
		}

		switch trigger.Type {
		case domain.TriggerTypeManual:
			// nothing to install, fired over HTTP

		case domain.TriggerTypeCron:
			if trigger.Cron == nil {
				return fmt.Errorf("cron trigger %s has no cron config: %w", trigger.ID, domain.ErrInvalidInput)
			}
			if err := s.jobs.AddCron(ctx, trigger.Cron.JobID, trigger.Cron.Expression, domain.JobKindFireTrigger, map[string]string{
				"trigger_id": trigger.ID,
			}); err != nil {
				return fmt.Errorf("register cron job: %w", err)
			}
			s.logger.Info("cron trigger registered",
				"trigger_id", trigger.ID,
				"job_id", trigger.Cron.JobID,
				"expression", trigger.Cron.Expression,
			)

		case domain.TriggerTypeWebhook:
			if err := s.webhooks.CreateWebhook(ctx, trigger, source); err != nil {
				return fmt.Errorf("create webhook for trigger %s: %w", trigger.ID, err)
			}

		default:
			return fmt.Errorf("%w: %s", domain.ErrUnknownTriggerType, trigger.Type)
		}
	}
	return nil
}

// DeleteTriggersForConnection removes jobs and subscriptions for all
// syncflow triggers of a connection and soft-deletes the trigger records.
// Removal of already-removed machinery is treated as satisfied.
func (s *TriggerService) DeleteTriggersForConnection(ctx context.Context, conn *domain.SyncConnection) error {
	source, err := s.sources.Get(ctx, conn.SourceID)
	if err != nil {
		return fmt.Errorf("get data source: %w", err)
	}

	for _, summary := range conn.Syncflows {
		trigger, err := s.triggers.Get(ctx, summary.TriggerID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return fmt.Errorf("get trigger %s: %w", summary.TriggerID, err)
		}

		switch trigger.Type {
		case domain.TriggerTypeManual:

		case domain.TriggerTypeCron:
			if trigger.Cron != nil {
				err := s.jobs.RemoveCron(ctx, trigger.Cron.JobID, trigger.Cron.Expression)
				if err != nil && !errors.Is(err, domain.ErrNotFound) {
					return fmt.Errorf("remove cron job: %w", err)
				}
				if errors.Is(err, domain.ErrNotFound) {
					s.logger.Warn("cron job already removed", "trigger_id", trigger.ID, "job_id", trigger.Cron.JobID)
				}
			}

		case domain.TriggerTypeWebhook:
			if err := s.webhooks.Stop(ctx, trigger, source); err != nil {
				return fmt.Errorf("stop webhook for trigger %s: %w", trigger.ID, err)
			}

		default:
			return fmt.Errorf("%w: %s", domain.ErrUnknownTriggerType, trigger.Type)
		}

		if err := s.triggers.SoftDelete(ctx, trigger.ID); err != nil {
			return fmt.Errorf("soft-delete trigger %s: %w", trigger.ID, err)
		}
	}
	return nil
}

// Fire emits WORKFLOW_TRIGGERED for the trigger, carrying the full trigger
// record so downstream consumers need no extra lookup.
func (s *TriggerService) Fire(ctx context.Context, triggerID string) error {
	trigger, err := s.triggers.Get(ctx, triggerID)
	if err != nil {
		return fmt.Errorf("get trigger: %w", err)
	}

	switch trigger.Type {
	case domain.TriggerTypeManual, domain.TriggerTypeCron, domain.TriggerTypeWebhook:
	default:
		return fmt.Errorf("%w: %s", domain.ErrUnknownTriggerType, trigger.Type)
	}

	event, err := domain.NewEvent(domain.EventWorkflowTriggered, trigger)
	if err != nil {
		return err
	}
	if err := s.bus.Publish(ctx, domain.EventWorkflowTriggered, event); err != nil {
		return fmt.Errorf("publish workflow triggered: %w", err)
	}

	s.logger.Info("trigger fired", "trigger_id", triggerID, "type", trigger.Type)
	return nil
}

// FireManual fires a trigger from the HTTP surface. It is the HTTP-invoked
// equivalent of Fire: any trigger type may be fired this way, so a CRON
// trigger can be run ahead of its schedule.
func (s *TriggerService) FireManual(ctx context.Context, triggerID string) error {
	return s.Fire(ctx, triggerID)
}

// FireWebhook verifies an inbound provider delivery against the trigger's
// stored subscription and fires the trigger when it passes. Dropped
// deliveries are acceptable outcomes, not errors.
func (s *TriggerService) FireWebhook(ctx context.Context, triggerID string, delivery WebhookDelivery) (domain.Outcome, error) {
	trigger, err := s.triggers.Get(ctx, triggerID)
	if err != nil {
		return domain.Outcome{}, fmt.Errorf("get trigger: %w", err)
	}
	if trigger.Type != domain.TriggerTypeWebhook {
		return domain.Outcome{}, fmt.Errorf("trigger %s is %s, not EVENT_WEBHOOK: %w", triggerID, trigger.Type, domain.ErrInvalidInput)
	}

	outcome := s.webhooks.AcceptDelivery(trigger, delivery)
	if outcome.Skipped() {
		s.logger.Debug("webhook delivery dropped", "trigger_id", triggerID, "reason", outcome.Reason)
		return outcome, nil
	}

	if err := s.Fire(ctx, triggerID); err != nil {
		return domain.Outcome{}, err
	}
	return domain.OK(), nil
}

// Unschedule removes the recurring job of a CRON trigger without touching
// the trigger record. The scheduler store addresses jobs by their
// (id, expression) pair, so a trigger whose expression changed since the
// job was registered cannot remove the wrong schedule.
func (s *TriggerService) Unschedule(ctx context.Context, triggerID string) error {
	trigger, err := s.triggers.Get(ctx, triggerID)
	if err != nil {
		return fmt.Errorf("get trigger: %w", err)
	}
	if trigger.Type != domain.TriggerTypeCron || trigger.Cron == nil {
		return fmt.Errorf("trigger %s is %s, not CRON: %w", triggerID, trigger.Type, domain.ErrInvalidInput)
	}

	err = s.jobs.RemoveCron(ctx, trigger.Cron.JobID, trigger.Cron.Expression)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("cron job already removed", "trigger_id", triggerID, "job_id", trigger.Cron.JobID)
			return nil
		}
		return fmt.Errorf("remove cron job: %w", err)
	}

	s.logger.Info("cron trigger unscheduled", "trigger_id", triggerID, "job_id", trigger.Cron.JobID)
	return nil
}

// RenewWebhook re-leases the push channel of a webhook trigger. Invoked by
// the scheduler when the trigger's renewal job comes due.
func (s *TriggerService) RenewWebhook(ctx context.Context, triggerID string) error {
	trigger, err := s.triggers.Get(ctx, triggerID)
	if err != nil {
		return fmt.Errorf("get trigger: %w", err)
	}
	syncflow, err := s.syncflows.Get(ctx, trigger.Workflow.ID)
	if err != nil {
		return fmt.Errorf("get syncflow: %w", err)
	}
	source, err := s.sources.Get(ctx, syncflow.SourceID)
	if err != nil {
		return fmt.Errorf("get data source: %w", err)
	}
	return s.webhooks.Renew(ctx, trigger, source)
}
