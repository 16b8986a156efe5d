package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/custodia-labs/syncflow-core/internal/core/domain"
	"github.com/custodia-labs/syncflow-core/internal/core/ports/driven"
	"github.com/custodia-labs/syncflow-core/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/syncflow-core/internal/snapshot"
)

type pipelineFixture struct {
	pipeline    *SyncPipeline
	syncflows   *mocks.MockSyncflowStore
	sources     *mocks.MockDataSourceStore
	provider    *mocks.MockProviderClient
	artifacts   *mocks.MockArtifactStore
	destination *mocks.MockDestinationStore
	bus         *mocks.MockEventBus
}

func createTestPipeline(t *testing.T) *pipelineFixture {
	t.Helper()

	syncflows := mocks.NewMockSyncflowStore()
	sources := mocks.NewMockDataSourceStore()
	provider := mocks.NewMockProviderClient()
	artifacts := mocks.NewMockArtifactStore()
	destination := mocks.NewMockDestinationStore()
	bus := mocks.NewMockEventBus()

	pipeline := NewSyncPipeline(SyncPipelineConfig{
		Syncflows: syncflows,
		Sources:   sources,
		Providers: driven.ProviderClients{
			domain.ProviderTypeGoogleSheets: provider,
		},
		Artifacts:   artifacts,
		Destination: destination,
		Bus:         bus,
	})

	return &pipelineFixture{
		pipeline:    pipeline,
		syncflows:   syncflows,
		sources:     sources,
		provider:    provider,
		artifacts:   artifacts,
		destination: destination,
		bus:         bus,
	}
}

// seedScheduledSyncflow stores a syncflow in SCHEDULED state plus its
// source, and returns the workflow input for the pending cycle.
func (f *pipelineFixture) seedScheduledSyncflow(t *testing.T) (*domain.Syncflow, []byte) {
	t.Helper()

	seedSource(f.sources, "src-1", domain.ProviderTypeGoogleSheets)

	syncflow := domain.NewSyncflow("flow", "conn-1", "src-1", domain.SyncflowAttributes{})
	syncflow.State.Status = domain.SyncflowStatusScheduled
	f.syncflows.Put(syncflow)

	input, err := json.Marshal(SyncflowInput{SyncflowID: syncflow.ID, Version: syncflow.State.Version})
	if err != nil {
		t.Fatalf("marshal input: %v", err)
	}
	return syncflow, input
}

func TestPipelineFirstCycle(t *testing.T) {
	f := createTestPipeline(t)
	syncflow, input := f.seedScheduledSyncflow(t)

	f.provider.Snapshot = &snapshot.Table{
		Columns: []string{"id", "name"},
		Rows:    [][]string{{"1", "alpha"}, {"2", "beta"}},
	}

	err := f.pipeline.Workflow(context.Background(), mocks.PassthroughRunner{}, input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	applied := f.destination.Applied()
	if len(applied) != 1 {
		t.Fatalf("expected 1 diff applied, got %d", len(applied))
	}
	if applied[0].Table != "dest_table" {
		t.Errorf("destination table = %s", applied[0].Table)
	}
	if len(applied[0].Added) != 2 || len(applied[0].Deleted) != 0 {
		t.Errorf("first cycle should add everything, got %d adds %d deletes",
			len(applied[0].Added), len(applied[0].Deleted))
	}

	published := f.bus.Published(domain.EventSyncflowSucceed)
	if len(published) != 1 {
		t.Fatalf("expected 1 SYNCFLOW_SUCCEED event, got %d", len(published))
	}
	var payload domain.SyncflowSucceedPayload
	if err := published[0].Decode(&payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.SyncVersion != 0 || payload.PrevSyncVersion != 0 {
		t.Errorf("payload versions = %d/%d, want 0/0", payload.SyncVersion, payload.PrevSyncVersion)
	}
	if payload.Statistics.AddedRowsCount != 2 {
		t.Errorf("added rows = %d, want 2", payload.Statistics.AddedRowsCount)
	}

	updated, _ := f.syncflows.Get(context.Background(), syncflow.ID)
	if updated.State.Status != domain.SyncflowStatusIdling {
		t.Errorf("status = %s, want IDLING", updated.State.Status)
	}
	if updated.State.Version != 1 || updated.State.PrevVersion != 0 {
		t.Errorf("cursors = %d/%d, want 1/0", updated.State.Version, updated.State.PrevVersion)
	}

	if !f.artifacts.Has(snapshot.ArtifactKey("src-1", 0, snapshot.KindRaw)) {
		t.Error("expected raw snapshot staged")
	}
	if !f.artifacts.Has(snapshot.ArtifactKey("src-1", 0, snapshot.KindDiff)) {
		t.Error("expected diff staged")
	}
}

func TestPipelineSecondCycleDiffsAgainstBaseline(t *testing.T) {
	f := createTestPipeline(t)
	syncflow, input := f.seedScheduledSyncflow(t)

	f.provider.Snapshot = &snapshot.Table{
		Columns: []string{"id", "name"},
		Rows:    [][]string{{"1", "alpha"}, {"2", "beta"}},
	}
	if err := f.pipeline.Workflow(context.Background(), mocks.PassthroughRunner{}, input); err != nil {
		t.Fatalf("first cycle: %v", err)
	}

	// schedule the next cycle with one row changed and one removed
	updated, _ := f.syncflows.Get(context.Background(), syncflow.ID)
	updated.State.Status = domain.SyncflowStatusScheduled
	f.syncflows.Put(updated)
	f.provider.Snapshot = &snapshot.Table{
		Columns: []string{"id", "name"},
		Rows:    [][]string{{"1", "alpha-edited"}},
	}

	input2, _ := json.Marshal(SyncflowInput{SyncflowID: syncflow.ID, Version: 1})
	if err := f.pipeline.Workflow(context.Background(), mocks.PassthroughRunner{}, input2); err != nil {
		t.Fatalf("second cycle: %v", err)
	}

	applied := f.destination.Applied()
	if len(applied) != 2 {
		t.Fatalf("expected 2 diffs applied, got %d", len(applied))
	}
	second := applied[1]
	if len(second.Added) != 1 || len(second.Deleted) != 2 {
		t.Errorf("second cycle diff = %d adds %d deletes, want 1/2 (edit + removal)",
			len(second.Added), len(second.Deleted))
	}

	final, _ := f.syncflows.Get(context.Background(), syncflow.ID)
	if final.State.Version != 2 || final.State.PrevVersion != 1 {
		t.Errorf("cursors = %d/%d, want 2/1", final.State.Version, final.State.PrevVersion)
	}
}

func TestPipelineDownloadFailureResetsState(t *testing.T) {
	f := createTestPipeline(t)
	syncflow, input := f.seedScheduledSyncflow(t)

	f.provider.DownloadErr = errors.New("rate limited")

	err := f.pipeline.Workflow(context.Background(), mocks.PassthroughRunner{}, input)
	if err == nil {
		t.Fatal("expected the cycle to fail")
	}

	updated, _ := f.syncflows.Get(context.Background(), syncflow.ID)
	if updated.State.Status != domain.SyncflowStatusIdling {
		t.Errorf("status = %s, want IDLING after failure", updated.State.Status)
	}
	if updated.State.Version != 0 {
		t.Errorf("version must not advance on failure, got %d", updated.State.Version)
	}
	if len(f.destination.Applied()) != 0 {
		t.Error("nothing must reach the destination on a failed download")
	}
	if len(f.bus.Published(domain.EventSyncflowSucceed)) != 0 {
		t.Error("no success event on a failed cycle")
	}
}

func TestPipelineStaleRedeliveryIsNoop(t *testing.T) {
	f := createTestPipeline(t)
	syncflow, _ := f.seedScheduledSyncflow(t)

	// the syncflow already moved on; this input addresses an old version
	current, _ := f.syncflows.Get(context.Background(), syncflow.ID)
	current.State.Status = domain.SyncflowStatusIdling
	current.State.Version = 5
	current.State.PrevVersion = 4
	f.syncflows.Put(current)

	staleInput, _ := json.Marshal(SyncflowInput{SyncflowID: syncflow.ID, Version: 2})
	if err := f.pipeline.Workflow(context.Background(), mocks.PassthroughRunner{}, staleInput); err != nil {
		t.Fatalf("a stale cycle must complete as a no-op, got %v", err)
	}

	if len(f.destination.Applied()) != 0 {
		t.Error("a stale cycle must not touch the destination")
	}
	unchanged, _ := f.syncflows.Get(context.Background(), syncflow.ID)
	if unchanged.State.Version != 5 || unchanged.State.Status != domain.SyncflowStatusIdling {
		t.Errorf("state changed by stale cycle: %+v", unchanged.State)
	}
}

func TestPipelineMissingDestinationTable(t *testing.T) {
	f := createTestPipeline(t)
	syncflow, input := f.seedScheduledSyncflow(t)

	source, _ := f.sources.Get(context.Background(), "src-1")
	source.Config.DestinationTable = ""
	f.sources.Put(source)

	err := f.pipeline.Workflow(context.Background(), mocks.PassthroughRunner{}, input)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}

	updated, _ := f.syncflows.Get(context.Background(), syncflow.ID)
	if updated.State.Status != domain.SyncflowStatusIdling {
		t.Errorf("status = %s, want IDLING after failure", updated.State.Status)
	}
}
