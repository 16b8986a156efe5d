package services

import (
	"context"
	"errors"
	"testing"

	"github.com/custodia-labs/syncflow-core/internal/core/domain"
	"github.com/custodia-labs/syncflow-core/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/syncflow-core/internal/snapshot"
)

func createTestCleanupService(t *testing.T) (*CleanupService, *mocks.MockSyncflowStore, *mocks.MockDataSourceStore, *mocks.MockArtifactStore) {
	t.Helper()

	syncflows := mocks.NewMockSyncflowStore()
	sources := mocks.NewMockDataSourceStore()
	artifacts := mocks.NewMockArtifactStore()

	svc := NewCleanupService(CleanupServiceConfig{
		Syncflows: syncflows,
		Sources:   sources,
		Artifacts: artifacts,
		Cleaners:  NewProviderCleaners(artifacts, nil),
	})
	return svc, syncflows, sources, artifacts
}

func seedFlow(t *testing.T, syncflows *mocks.MockSyncflowStore, id string) {
	t.Helper()
	syncflow := domain.NewSyncflow("flow", "conn-1", "src-1", domain.SyncflowAttributes{})
	syncflow.ID = id
	syncflows.Put(syncflow)
}

func stageArtifacts(t *testing.T, artifacts *mocks.MockArtifactStore, sourceID string, version int64) {
	t.Helper()
	for _, key := range snapshot.ArtifactKeys(sourceID, version) {
		if err := artifacts.Put(context.Background(), key, []byte("{}")); err != nil {
			t.Fatalf("stage artifact: %v", err)
		}
	}
}

func succeedEvent(t *testing.T, sourceID string, syncVersion, prevVersion int64, stats domain.SyncStatistics) *domain.Event {
	t.Helper()
	event, err := domain.NewEvent(domain.EventSyncflowSucceed, domain.SyncflowSucceedPayload{
		DataSourceID:    sourceID,
		SyncflowID:      "flow-1",
		SyncVersion:     syncVersion,
		PrevSyncVersion: prevVersion,
		Statistics:      stats,
	})
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	return event
}

func TestHandleSyncflowSucceedPrunesBaseline(t *testing.T) {
	svc, syncflows, sources, artifacts := createTestCleanupService(t)
	seedFlow(t, syncflows, "flow-1")
	seedSource(sources, "src-1", domain.ProviderTypeGoogleSheets)
	stageArtifacts(t, artifacts, "src-1", 2)
	stageArtifacts(t, artifacts, "src-1", 3)

	event := succeedEvent(t, "src-1", 3, 2, domain.SyncStatistics{AddedRowsCount: 5, DeletedRowsCount: 2})
	if err := svc.HandleSyncflowSucceed(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, key := range snapshot.ArtifactKeys("src-1", 2) {
		if artifacts.Has(key) {
			t.Errorf("baseline artifact %s should be deleted", key)
		}
	}
	for _, key := range snapshot.ArtifactKeys("src-1", 3) {
		if !artifacts.Has(key) {
			t.Errorf("current artifact %s must survive as the next baseline", key)
		}
	}

	if got := sources.Rows("src-1"); got != 3 {
		t.Errorf("rows counter = %d, want 3 (5 added - 2 deleted)", got)
	}
}

func TestHandleSyncflowSucceedFirstCycleKeepsEverything(t *testing.T) {
	svc, syncflows, sources, artifacts := createTestCleanupService(t)
	seedFlow(t, syncflows, "flow-1")
	seedSource(sources, "src-1", domain.ProviderTypeGoogleSheets)
	stageArtifacts(t, artifacts, "src-1", 0)

	event := succeedEvent(t, "src-1", 0, 0, domain.SyncStatistics{AddedRowsCount: 10})
	if err := svc.HandleSyncflowSucceed(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, key := range snapshot.ArtifactKeys("src-1", 0) {
		if !artifacts.Has(key) {
			t.Errorf("first cycle has no superseded baseline, %s must survive", key)
		}
	}
	if got := sources.Rows("src-1"); got != 10 {
		t.Errorf("rows counter = %d, want 10", got)
	}
}

func TestHandleSyncflowSucceedExcelUsesSharedCleaner(t *testing.T) {
	svc, syncflows, sources, artifacts := createTestCleanupService(t)
	seedFlow(t, syncflows, "flow-1")
	seedSource(sources, "src-1", domain.ProviderTypeMicrosoftExcel)
	stageArtifacts(t, artifacts, "src-1", 1)

	event := succeedEvent(t, "src-1", 2, 1, domain.SyncStatistics{})
	if err := svc.HandleSyncflowSucceed(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, key := range snapshot.ArtifactKeys("src-1", 1) {
		if artifacts.Has(key) {
			t.Errorf("excel baseline artifact %s should be pruned", key)
		}
	}
}

func TestHandleSyncflowSucceedUnknownProvider(t *testing.T) {
	svc, syncflows, sources, _ := createTestCleanupService(t)
	seedFlow(t, syncflows, "flow-1")
	source := &domain.DataSource{ID: "src-1", ProviderType: domain.ProviderType("notion")}
	sources.Put(source)

	event := succeedEvent(t, "src-1", 1, 0, domain.SyncStatistics{})
	err := svc.HandleSyncflowSucceed(context.Background(), event)
	if !errors.Is(err, domain.ErrUnknownProvider) {
		t.Errorf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestHandleSyncflowSucceedSyncflowGone(t *testing.T) {
	svc, _, sources, artifacts := createTestCleanupService(t)
	seedSource(sources, "src-1", domain.ProviderTypeGoogleSheets)
	stageArtifacts(t, artifacts, "src-1", 0)

	event := succeedEvent(t, "src-1", 1, 0, domain.SyncStatistics{AddedRowsCount: 7})
	if err := svc.HandleSyncflowSucceed(context.Background(), event); err != nil {
		t.Fatalf("a deleted syncflow is acceptable, got %v", err)
	}

	for _, key := range snapshot.ArtifactKeys("src-1", 0) {
		if !artifacts.Has(key) {
			t.Errorf("nothing should be pruned for a deleted syncflow, %s must survive", key)
		}
	}
	if got := sources.Rows("src-1"); got != 0 {
		t.Errorf("rows counter = %d, want unchanged 0", got)
	}
}

func TestHandleSyncflowSucceedSourceGone(t *testing.T) {
	svc, syncflows, _, _ := createTestCleanupService(t)
	seedFlow(t, syncflows, "flow-1")

	event := succeedEvent(t, "deleted-src", 1, 0, domain.SyncStatistics{AddedRowsCount: 1})
	if err := svc.HandleSyncflowSucceed(context.Background(), event); err != nil {
		t.Errorf("a deleted source is acceptable, got %v", err)
	}
}

func TestHandleSyncflowSucceedDeleteFailureIsBestEffort(t *testing.T) {
	svc, syncflows, sources, artifacts := createTestCleanupService(t)
	seedFlow(t, syncflows, "flow-1")
	seedSource(sources, "src-1", domain.ProviderTypeGoogleSheets)
	stageArtifacts(t, artifacts, "src-1", 0)
	artifacts.FailKeys[snapshot.ArtifactKey("src-1", 0, snapshot.KindRaw)] = true

	event := succeedEvent(t, "src-1", 1, 0, domain.SyncStatistics{AddedRowsCount: 4})
	if err := svc.HandleSyncflowSucceed(context.Background(), event); err != nil {
		t.Fatalf("cleanup failure must not fail the handler, got %v", err)
	}
	// accounting still lands
	if got := sources.Rows("src-1"); got != 4 {
		t.Errorf("rows counter = %d, want 4", got)
	}
}

func TestHandleSyncflowSucceedZeroDeltaSkipsCounter(t *testing.T) {
	svc, syncflows, sources, _ := createTestCleanupService(t)
	seedFlow(t, syncflows, "flow-1")
	seedSource(sources, "src-1", domain.ProviderTypeGoogleSheets)

	event := succeedEvent(t, "src-1", 1, 0, domain.SyncStatistics{AddedRowsCount: 3, DeletedRowsCount: 3})
	if err := svc.HandleSyncflowSucceed(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := sources.Rows("src-1"); got != 0 {
		t.Errorf("rows counter = %d, want unchanged 0", got)
	}
}

func TestHandleDataSourceDeletedSweepsArtifacts(t *testing.T) {
	svc, syncflows, _, artifacts := createTestCleanupService(t)

	syncflow := domain.NewSyncflow("flow", "conn-1", "src-1", domain.SyncflowAttributes{})
	syncflow.State.Version = 4
	syncflow.State.PrevVersion = 3
	syncflows.Put(syncflow)

	stageArtifacts(t, artifacts, "src-1", 3)
	stageArtifacts(t, artifacts, "src-1", 4)

	event, err := domain.NewEvent(domain.EventDataSourceDeleted,
		domain.DataSourceDeletedPayload{DataSourceID: "src-1"})
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	if err := svc.HandleDataSourceDeleted(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, version := range []int64{3, 4} {
		for _, key := range snapshot.ArtifactKeys("src-1", version) {
			if artifacts.Has(key) {
				t.Errorf("artifact %s should be swept", key)
			}
		}
	}
}
