package services

import (
	"context"
	"errors"
	"testing"

	"github.com/custodia-labs/syncflow-core/internal/core/domain"
	"github.com/custodia-labs/syncflow-core/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/syncflow-core/internal/registry"
)

// Test helper to create ConnectionService with mocks
func createTestConnectionService(t *testing.T) (
	*ConnectionService,
	*mocks.MockConnectionStore,
	*mocks.MockSyncflowStore,
	*mocks.MockTriggerStore,
	*mocks.MockDataSourceStore,
	*mocks.MockEventBus,
) {
	t.Helper()

	connections := mocks.NewMockConnectionStore()
	syncflows := mocks.NewMockSyncflowStore()
	triggers := mocks.NewMockTriggerStore()
	sources := mocks.NewMockDataSourceStore()
	bus := mocks.NewMockEventBus()

	svc := NewConnectionService(ConnectionServiceConfig{
		Connections: connections,
		Syncflows:   syncflows,
		Triggers:    triggers,
		Sources:     sources,
		Registry:    registry.New(),
		Bus:         bus,
	})
	return svc, connections, syncflows, triggers, sources, bus
}

func seedSource(sources *mocks.MockDataSourceStore, id string, providerType domain.ProviderType) *domain.DataSource {
	source := &domain.DataSource{
		ID:           id,
		Name:         "test source",
		ProviderType: providerType,
		Config: domain.DataSourceConfig{
			SpreadsheetID:    "sheet-1",
			DestinationTable: "dest_table",
		},
	}
	sources.Put(source)
	return source
}

func TestConnectionCreate(t *testing.T) {
	svc, _, syncflows, triggers, sources, bus := createTestConnectionService(t)
	seedSource(sources, "src-1", domain.ProviderTypeGoogleSheets)

	conn, err := svc.Create(context.Background(), "src-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conn.Status != domain.ConnectionStatusActive {
		t.Errorf("expected ACTIVE connection, got %s", conn.Status)
	}
	if len(conn.Syncflows) != 1 {
		t.Fatalf("expected 1 syncflow, got %d", len(conn.Syncflows))
	}

	summary := conn.Syncflows[0]
	syncflow, err := syncflows.Get(context.Background(), summary.ID)
	if err != nil {
		t.Fatalf("syncflow not persisted: %v", err)
	}
	if syncflow.State.Status != domain.SyncflowStatusIdling {
		t.Errorf("expected IDLING syncflow, got %s", syncflow.State.Status)
	}
	if syncflow.State.Version != 0 || syncflow.State.PrevVersion != 0 {
		t.Errorf("expected version cursors at 0, got %d/%d",
			syncflow.State.Version, syncflow.State.PrevVersion)
	}

	trigger, err := triggers.Get(context.Background(), summary.TriggerID)
	if err != nil {
		t.Fatalf("trigger not persisted: %v", err)
	}
	if trigger.Type != domain.TriggerTypeWebhook {
		t.Errorf("expected EVENT_WEBHOOK trigger for sheets, got %s", trigger.Type)
	}
	if trigger.Webhook == nil || trigger.Webhook.LeaseSeconds != registry.DriveLeaseSeconds {
		t.Errorf("expected webhook config with drive lease")
	}
	if trigger.Workflow.ID != summary.ID {
		t.Errorf("trigger bound to workflow %s, want %s", trigger.Workflow.ID, summary.ID)
	}

	published := bus.Published(domain.EventConnectionCreated)
	if len(published) != 1 {
		t.Fatalf("expected 1 CONNECTION_CREATED event, got %d", len(published))
	}
}

func TestConnectionCreateCronProvider(t *testing.T) {
	svc, _, _, triggers, sources, _ := createTestConnectionService(t)
	seedSource(sources, "src-1", domain.ProviderTypeAirtable)

	conn, err := svc.Create(context.Background(), "src-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	trigger, err := triggers.Get(context.Background(), conn.Syncflows[0].TriggerID)
	if err != nil {
		t.Fatalf("trigger not persisted: %v", err)
	}
	if trigger.Type != domain.TriggerTypeCron {
		t.Errorf("expected CRON trigger for airtable, got %s", trigger.Type)
	}
	if trigger.Cron == nil || trigger.Cron.JobID == "" || trigger.Cron.Expression == "" {
		t.Error("expected populated cron config")
	}
}

func TestConnectionCreateUnknownSource(t *testing.T) {
	svc, _, _, _, _, _ := createTestConnectionService(t)

	_, err := svc.Create(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestConnectionCreateDuplicateSource(t *testing.T) {
	svc, _, _, _, sources, _ := createTestConnectionService(t)
	seedSource(sources, "src-1", domain.ProviderTypeGoogleSheets)

	if _, err := svc.Create(context.Background(), "src-1"); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	_, err := svc.Create(context.Background(), "src-1")
	if !errors.Is(err, domain.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestConnectionDelete(t *testing.T) {
	svc, connections, syncflows, _, sources, bus := createTestConnectionService(t)
	seedSource(sources, "src-1", domain.ProviderTypeGoogleSheets)

	conn, err := svc.Create(context.Background(), "src-1")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := svc.Delete(context.Background(), conn.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	if !connections.Deleted(conn.ID) {
		t.Error("expected connection soft-deleted")
	}
	for _, summary := range conn.Syncflows {
		if !syncflows.Deleted(summary.ID) {
			t.Errorf("expected syncflow %s soft-deleted", summary.ID)
		}
	}

	published := bus.Published(domain.EventConnectionDeleted)
	if len(published) != 1 {
		t.Fatalf("expected 1 CONNECTION_DELETED event, got %d", len(published))
	}
	var deleted domain.SyncConnection
	if err := published[0].Decode(&deleted); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if len(deleted.Syncflows) != len(conn.Syncflows) {
		t.Error("deleted event should carry the syncflow summaries for teardown")
	}
}

func TestConnectionDeleteNotFound(t *testing.T) {
	svc, _, _, _, _, _ := createTestConnectionService(t)

	err := svc.Delete(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestConnectionHandleDataSourceDeleted(t *testing.T) {
	svc, connections, _, _, sources, _ := createTestConnectionService(t)
	seedSource(sources, "src-1", domain.ProviderTypeGoogleSheets)

	conn, err := svc.Create(context.Background(), "src-1")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	event, err := domain.NewEvent(domain.EventDataSourceDeleted,
		domain.DataSourceDeletedPayload{DataSourceID: "src-1"})
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	if err := svc.HandleDataSourceDeleted(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !connections.Deleted(conn.ID) {
		t.Error("expected connection soft-deleted")
	}

	// redelivery after the connection is gone is a no-op
	if err := svc.HandleDataSourceDeleted(context.Background(), event); err != nil {
		t.Errorf("redelivery should be acceptable, got %v", err)
	}
}
