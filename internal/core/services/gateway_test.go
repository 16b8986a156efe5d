package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/custodia-labs/syncflow-core/internal/core/domain"
	"github.com/custodia-labs/syncflow-core/internal/core/ports/driven"
	"github.com/custodia-labs/syncflow-core/internal/core/ports/driven/mocks"
)

func createTestGateway(t *testing.T) (*OrchestrationGateway, *mocks.MockSyncflowStore, *mocks.MockTriggerStore, *mocks.MockWorkflowEngine, *mocks.MockEventBus) {
	t.Helper()

	syncflows := mocks.NewMockSyncflowStore()
	triggers := mocks.NewMockTriggerStore()
	engine := mocks.NewMockWorkflowEngine()
	bus := mocks.NewMockEventBus()

	gateway := NewOrchestrationGateway(OrchestrationGatewayConfig{
		Syncflows: syncflows,
		Triggers:  triggers,
		Engine:    engine,
		Bus:       bus,
	})
	return gateway, syncflows, triggers, engine, bus
}

// triggeredEvent stores a cron trigger for the workflow and returns the
// WORKFLOW_TRIGGERED event carrying it.
func triggeredEvent(t *testing.T, triggers *mocks.MockTriggerStore, workflowID string) *domain.Event {
	t.Helper()
	trigger := domain.NewTrigger("test", domain.TriggerTypeCron, domain.WorkflowRef{
		ID:   workflowID,
		Name: "test-flow",
		Type: domain.WorkflowTypeSyncflow,
	})
	if err := triggers.Create(context.Background(), trigger); err != nil {
		t.Fatalf("create trigger: %v", err)
	}
	event, err := domain.NewEvent(domain.EventWorkflowTriggered, trigger)
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	return event
}

func TestHandleWorkflowTriggeredSchedules(t *testing.T) {
	gateway, syncflows, triggers, _, bus := createTestGateway(t)

	syncflow := domain.NewSyncflow("flow", "conn-1", "src-1", domain.SyncflowAttributes{})
	syncflows.Put(syncflow)

	if err := gateway.HandleWorkflowTriggered(context.Background(), triggeredEvent(t, triggers, syncflow.ID)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updated, _ := syncflows.Get(context.Background(), syncflow.ID)
	if updated.State.Status != domain.SyncflowStatusScheduled {
		t.Errorf("status = %s, want SCHEDULED", updated.State.Status)
	}

	published := bus.Published(domain.EventSyncflowScheduled)
	if len(published) != 1 {
		t.Fatalf("expected 1 SYNCFLOW_SCHEDULED event, got %d", len(published))
	}
	var payload domain.SyncflowScheduledPayload
	if err := published[0].Decode(&payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Version != syncflow.State.Version {
		t.Errorf("payload version = %d, want %d", payload.Version, syncflow.State.Version)
	}
}

func TestHandleWorkflowTriggeredAlreadyScheduled(t *testing.T) {
	gateway, syncflows, triggers, _, bus := createTestGateway(t)

	syncflow := domain.NewSyncflow("flow", "conn-1", "src-1", domain.SyncflowAttributes{})
	syncflow.State.Status = domain.SyncflowStatusScheduled
	syncflows.Put(syncflow)

	if err := gateway.HandleWorkflowTriggered(context.Background(), triggeredEvent(t, triggers, syncflow.ID)); err != nil {
		t.Fatalf("an already scheduled sync is acceptable, got %v", err)
	}
	if len(bus.Published(domain.EventSyncflowScheduled)) != 0 {
		t.Error("losing the schedule race must not emit")
	}
}

func TestHandleWorkflowTriggeredAlreadyRunning(t *testing.T) {
	gateway, syncflows, triggers, _, bus := createTestGateway(t)

	syncflow := domain.NewSyncflow("flow", "conn-1", "src-1", domain.SyncflowAttributes{})
	syncflow.State.Status = domain.SyncflowStatusRunning
	syncflows.Put(syncflow)

	if err := gateway.HandleWorkflowTriggered(context.Background(), triggeredEvent(t, triggers, syncflow.ID)); err != nil {
		t.Fatalf("a running sync is acceptable, got %v", err)
	}
	if len(bus.Published(domain.EventSyncflowScheduled)) != 0 {
		t.Error("a running sync must not be rescheduled")
	}
}

func TestHandleWorkflowTriggeredMissingSyncflow(t *testing.T) {
	gateway, _, triggers, _, bus := createTestGateway(t)

	if err := gateway.HandleWorkflowTriggered(context.Background(), triggeredEvent(t, triggers, "gone")); err != nil {
		t.Fatalf("a stale trigger event is acceptable, got %v", err)
	}
	if len(bus.Published(domain.EventSyncflowScheduled)) != 0 {
		t.Error("expected no event for a missing syncflow")
	}
}

func TestHandleWorkflowTriggeredDeletedTrigger(t *testing.T) {
	gateway, syncflows, triggers, _, bus := createTestGateway(t)

	syncflow := domain.NewSyncflow("flow", "conn-1", "src-1", domain.SyncflowAttributes{})
	syncflows.Put(syncflow)
	event := triggeredEvent(t, triggers, syncflow.ID)

	// trigger torn down between firing and delivery
	stored, err := triggers.GetByWorkflow(context.Background(), syncflow.ID)
	if err != nil {
		t.Fatalf("get trigger: %v", err)
	}
	if err := triggers.SoftDelete(context.Background(), stored.ID); err != nil {
		t.Fatalf("soft-delete trigger: %v", err)
	}

	if err := gateway.HandleWorkflowTriggered(context.Background(), event); err != nil {
		t.Fatalf("a deleted trigger is acceptable, got %v", err)
	}

	current, _ := syncflows.Get(context.Background(), syncflow.ID)
	if current.State.Status != domain.SyncflowStatusIdling {
		t.Errorf("status = %s, a deleted trigger must not schedule", current.State.Status)
	}
	if len(bus.Published(domain.EventSyncflowScheduled)) != 0 {
		t.Error("expected no event for a deleted trigger")
	}
}

func TestHandleWorkflowTriggeredUnknownWorkflowType(t *testing.T) {
	gateway, _, triggers, _, _ := createTestGateway(t)

	trigger := domain.NewTrigger("test", domain.TriggerTypeCron, domain.WorkflowRef{
		ID:   "flow-1",
		Type: domain.WorkflowType("BACKFILL"),
	})
	if err := triggers.Create(context.Background(), trigger); err != nil {
		t.Fatalf("create trigger: %v", err)
	}
	event, err := domain.NewEvent(domain.EventWorkflowTriggered, trigger)
	if err != nil {
		t.Fatalf("new event: %v", err)
	}

	err = gateway.HandleWorkflowTriggered(context.Background(), event)
	if !errors.Is(err, domain.ErrUnknownWorkflowType) {
		t.Errorf("expected ErrUnknownWorkflowType, got %v", err)
	}
}

func scheduledEvent(t *testing.T, syncflow *domain.Syncflow) *domain.Event {
	t.Helper()
	event, err := domain.NewEvent(domain.EventSyncflowScheduled, domain.SyncflowScheduledPayload{
		Syncflow: syncflow,
		Version:  syncflow.State.Version,
	})
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	return event
}

func TestHandleSyncflowScheduledStartsWorkflow(t *testing.T) {
	gateway, _, _, engine, _ := createTestGateway(t)

	syncflow := domain.NewSyncflow("flow", "conn-1", "src-1", domain.SyncflowAttributes{})
	syncflow.State.Version = 3

	if err := gateway.HandleSyncflowScheduled(context.Background(), scheduledEvent(t, syncflow)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	started := engine.Started()
	if len(started) != 1 {
		t.Fatalf("expected 1 workflow start, got %d", len(started))
	}
	if started[0].Name != SyncflowWorkflowName {
		t.Errorf("workflow name = %s, want %s", started[0].Name, SyncflowWorkflowName)
	}
	wantID := fmt.Sprintf("%s-3", syncflow.ID)
	if started[0].WorkflowID != wantID {
		t.Errorf("workflow id = %s, want %s", started[0].WorkflowID, wantID)
	}
	if started[0].Policy != driven.ReuseAllowDuplicateFailedOnly {
		t.Errorf("policy = %s, want allow_duplicate_failed_only", started[0].Policy)
	}

	var input SyncflowInput
	if err := json.Unmarshal(started[0].Input, &input); err != nil {
		t.Fatalf("unmarshal input: %v", err)
	}
	if input.SyncflowID != syncflow.ID || input.Version != 3 {
		t.Errorf("input = %+v", input)
	}
}

func TestHandleSyncflowScheduledWorkflowAlreadyActive(t *testing.T) {
	gateway, _, _, engine, _ := createTestGateway(t)
	engine.StartErr = domain.ErrWorkflowActive

	syncflow := domain.NewSyncflow("flow", "conn-1", "src-1", domain.SyncflowAttributes{})
	if err := gateway.HandleSyncflowScheduled(context.Background(), scheduledEvent(t, syncflow)); err != nil {
		t.Errorf("an active duplicate is acceptable, got %v", err)
	}
}

func TestHandleSyncflowScheduledWorkflowAlreadyCompleted(t *testing.T) {
	gateway, _, _, engine, _ := createTestGateway(t)
	engine.StartErr = domain.ErrWorkflowCompleted

	syncflow := domain.NewSyncflow("flow", "conn-1", "src-1", domain.SyncflowAttributes{})
	if err := gateway.HandleSyncflowScheduled(context.Background(), scheduledEvent(t, syncflow)); err != nil {
		t.Errorf("a completed duplicate is acceptable, got %v", err)
	}
}

func TestHandleSyncflowScheduledEngineFailure(t *testing.T) {
	gateway, _, _, engine, _ := createTestGateway(t)
	engine.StartErr = errors.New("engine down")

	syncflow := domain.NewSyncflow("flow", "conn-1", "src-1", domain.SyncflowAttributes{})
	if err := gateway.HandleSyncflowScheduled(context.Background(), scheduledEvent(t, syncflow)); err == nil {
		t.Error("expected engine failure to propagate for redelivery")
	}
}
