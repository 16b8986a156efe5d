package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/custodia-labs/syncflow-core/internal/core/domain"
	"github.com/custodia-labs/syncflow-core/internal/core/ports/driven"
)

// SyncflowWorkflowName is the workflow registered for sync cycles.
const SyncflowWorkflowName = "syncflow-cycle"

// SyncflowInput is the durable workflow input for one sync cycle.
type SyncflowInput struct {
	SyncflowID string `json:"syncflow_id"`
	Version    int64  `json:"version"`
}

// OrchestrationGateway sits between the bus and the workflow engine. It
// turns WORKFLOW_TRIGGERED into a scheduled syncflow and SYNCFLOW_SCHEDULED
// into a durable workflow start.
//
// Every decision is re-derived from the persisted syncflow status under a
// conditional write; the bus gives at-least-once delivery and no ordering,
// so redeliveries and races resolve to acceptable no-ops here.
type OrchestrationGateway struct {
	syncflows driven.SyncflowStore
	triggers  driven.TriggerStore
	engine    driven.WorkflowEngine
	bus       driven.EventBus
	logger    *slog.Logger
}

// OrchestrationGatewayConfig holds dependencies for OrchestrationGateway.
type OrchestrationGatewayConfig struct {
	Syncflows driven.SyncflowStore
	Triggers  driven.TriggerStore
	Engine    driven.WorkflowEngine
	Bus       driven.EventBus
	Logger    *slog.Logger
}

// NewOrchestrationGateway creates a new orchestration gateway.
func NewOrchestrationGateway(cfg OrchestrationGatewayConfig) *OrchestrationGateway {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &OrchestrationGateway{
		syncflows: cfg.Syncflows,
		triggers:  cfg.Triggers,
		engine:    cfg.Engine,
		bus:       cfg.Bus,
		logger:    logger,
	}
}

// HandleWorkflowTriggered processes one WORKFLOW_TRIGGERED event: it
// dispatches on the workflow type carried by the trigger and schedules the
// target syncflow. Unknown workflow types are configuration errors.
func (g *OrchestrationGateway) HandleWorkflowTriggered(ctx context.Context, event *domain.Event) error {
	var trigger domain.Trigger
	if err := event.Decode(&trigger); err != nil {
		return err
	}

	// The payload may be stale; a trigger torn down between firing and
	// delivery must not schedule anything
	if _, err := g.triggers.Get(ctx, trigger.ID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			g.logger.Info("trigger no longer exists, dropping event", "trigger_id", trigger.ID)
			return nil
		}
		return fmt.Errorf("get trigger: %w", err)
	}

	switch trigger.Workflow.Type {
	case domain.WorkflowTypeSyncflow:
		outcome, err := g.scheduleSyncflow(ctx, trigger.Workflow.ID)
		if err != nil {
			return err
		}
		if outcome.Skipped() {
			g.logger.Info("syncflow not scheduled",
				"syncflow_id", trigger.Workflow.ID,
				"reason", outcome.Reason,
			)
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", domain.ErrUnknownWorkflowType, trigger.Workflow.Type)
	}
}

// scheduleSyncflow moves a syncflow from IDLING to SCHEDULED and emits
// SYNCFLOW_SCHEDULED. A syncflow already scheduled or running yields an
// acceptable skip; whichever writer wins the conditional write emits.
func (g *OrchestrationGateway) scheduleSyncflow(ctx context.Context, syncflowID string) (domain.Outcome, error) {
	syncflow, err := g.syncflows.TransitionStatus(ctx, syncflowID,
		domain.SyncflowStatusIdling, domain.SyncflowStatusScheduled)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// trigger outlived its syncflow; stale event, drop it
			return domain.Skip("syncflow no longer exists"), nil
		}
		if errors.Is(err, domain.ErrStatusConflict) {
			current, getErr := g.syncflows.Get(ctx, syncflowID)
			if getErr != nil {
				return domain.Outcome{}, fmt.Errorf("get syncflow after conflict: %w", getErr)
			}
			switch current.State.Status {
			case domain.SyncflowStatusScheduled:
				return domain.Skip("sync already scheduled"), nil
			case domain.SyncflowStatusRunning:
				return domain.Skip("sync already running"), nil
			default:
				// lost the race to a writer that finished a whole cycle
				// in between; next trigger will pick it up
				return domain.Skip("sync state moved concurrently"), nil
			}
		}
		return domain.Outcome{}, fmt.Errorf("transition to scheduled: %w", err)
	}

	payload := domain.SyncflowScheduledPayload{
		Syncflow: syncflow,
		Version:  syncflow.State.Version,
	}
	event, err := domain.NewEvent(domain.EventSyncflowScheduled, payload)
	if err != nil {
		return domain.Outcome{}, err
	}
	if err := g.bus.Publish(ctx, domain.EventSyncflowScheduled, event); err != nil {
		return domain.Outcome{}, fmt.Errorf("publish syncflow scheduled: %w", err)
	}

	g.logger.Info("syncflow scheduled",
		"syncflow_id", syncflowID,
		"version", syncflow.State.Version,
	)
	return domain.OK(), nil
}

// HandleSyncflowScheduled processes one SYNCFLOW_SCHEDULED event: it starts
// the durable sync cycle workflow under the deterministic id
// "{syncflowId}-{version}". The engine's id reuse policy makes redelivered
// events and concurrent starts collapse into one execution per version;
// only a failed previous attempt may run again under the same id.
func (g *OrchestrationGateway) HandleSyncflowScheduled(ctx context.Context, event *domain.Event) error {
	var payload domain.SyncflowScheduledPayload
	if err := event.Decode(&payload); err != nil {
		return err
	}
	if payload.Syncflow == nil {
		return fmt.Errorf("scheduled event without syncflow: %w", domain.ErrInvalidInput)
	}

	input, err := json.Marshal(SyncflowInput{
		SyncflowID: payload.Syncflow.ID,
		Version:    payload.Version,
	})
	if err != nil {
		return fmt.Errorf("marshal workflow input: %w", err)
	}

	workflowID := fmt.Sprintf("%s-%d", payload.Syncflow.ID, payload.Version)
	err = g.engine.Start(ctx, SyncflowWorkflowName, workflowID,
		driven.ReuseAllowDuplicateFailedOnly, input)
	if err != nil {
		if errors.Is(err, domain.ErrWorkflowActive) || errors.Is(err, domain.ErrWorkflowCompleted) {
			g.logger.Info("workflow start skipped",
				"workflow_id", workflowID,
				"reason", err.Error(),
			)
			return nil
		}
		return fmt.Errorf("start workflow %s: %w", workflowID, err)
	}

	g.logger.Info("workflow started", "workflow_id", workflowID)
	return nil
}
