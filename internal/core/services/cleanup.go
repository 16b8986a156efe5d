package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/custodia-labs/syncflow-core/internal/core/domain"
	"github.com/custodia-labs/syncflow-core/internal/core/ports/driven"
	"github.com/custodia-labs/syncflow-core/internal/snapshot"
)

// CycleVersions addresses the artifacts of one completed cycle and its
// baseline.
type CycleVersions struct {
	SyncVersion     int64
	PrevSyncVersion int64
}

// Cleaner compensates for one completed cycle: it removes whatever staged
// artifacts the provider's pipeline left behind for the superseded
// baseline version. Best-effort; failures are logged, never fatal.
type Cleaner interface {
	Run(ctx context.Context, sourceID string, versions CycleVersions) error
}

// ProviderCleaners is the cleaner dispatch table keyed by provider type,
// built explicitly at startup.
type ProviderCleaners map[domain.ProviderType]Cleaner

// artifactCleaner removes the blob artifacts of the superseded baseline
// version. Current-version artifacts are kept as the next cycle's baseline.
type artifactCleaner struct {
	artifacts driven.ArtifactStore
	logger    *slog.Logger
}

// NewArtifactCleaner creates a cleaner that prunes baseline blob artifacts.
func NewArtifactCleaner(artifacts driven.ArtifactStore, logger *slog.Logger) Cleaner {
	if logger == nil {
		logger = slog.Default()
	}
	return &artifactCleaner{artifacts: artifacts, logger: logger}
}

func (c *artifactCleaner) Run(ctx context.Context, sourceID string, versions CycleVersions) error {
	// First cycle: baseline and current are the same version, nothing is
	// superseded yet.
	if versions.PrevSyncVersion == versions.SyncVersion {
		return nil
	}

	keys := snapshot.ArtifactKeys(sourceID, versions.PrevSyncVersion)
	failed, err := c.artifacts.Delete(ctx, keys)
	if err != nil {
		return fmt.Errorf("delete baseline artifacts: %w", err)
	}
	if len(failed) > 0 {
		c.logger.Warn("some baseline artifacts were not deleted",
			"source_id", sourceID,
			"version", versions.PrevSyncVersion,
			"failed_keys", failed,
		)
	}
	return nil
}

// NewProviderCleaners builds the production cleaner table.
//
// The Excel entry reuses the Sheets cleaner instance: both pipelines stage
// artifacts under the same key scheme, and the Excel pipeline predates a
// dedicated cleaner. TODO: give Excel its own cleaner once its pipeline
// stages workbook-session artifacts that the shared cleaner does not know
// about.
func NewProviderCleaners(artifacts driven.ArtifactStore, logger *slog.Logger) ProviderCleaners {
	sheets := NewArtifactCleaner(artifacts, logger)
	return ProviderCleaners{
		domain.ProviderTypeGoogleSheets:   sheets,
		domain.ProviderTypeMicrosoftExcel: sheets,
		domain.ProviderTypeAirtable:       NewArtifactCleaner(artifacts, logger),
	}
}

// CleanupService reacts to completed sync cycles: it runs the provider's
// cleaner against the superseded baseline version and folds the cycle's row
// delta into the data source's aggregate statistics. It also sweeps all
// remaining artifacts when a data source is deleted.
type CleanupService struct {
	syncflows driven.SyncflowStore
	sources   driven.DataSourceStore
	artifacts driven.ArtifactStore
	cleaners  ProviderCleaners
	logger    *slog.Logger
}

// CleanupServiceConfig holds dependencies for CleanupService.
type CleanupServiceConfig struct {
	Syncflows driven.SyncflowStore
	Sources   driven.DataSourceStore
	Artifacts driven.ArtifactStore
	Cleaners  ProviderCleaners
	Logger    *slog.Logger
}

// NewCleanupService creates a new cleanup service.
func NewCleanupService(cfg CleanupServiceConfig) *CleanupService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupService{
		syncflows: cfg.Syncflows,
		sources:   cfg.Sources,
		artifacts: cfg.Artifacts,
		cleaners:  cfg.Cleaners,
		logger:    logger,
	}
}

// HandleSyncflowSucceed processes one SYNCFLOW_SUCCEED event. Cleanup
// failure is compensated best-effort and logged; statistics accounting is
// the part that must land.
func (s *CleanupService) HandleSyncflowSucceed(ctx context.Context, event *domain.Event) error {
	var payload domain.SyncflowSucceedPayload
	if err := event.Decode(&payload); err != nil {
		return err
	}

	if _, err := s.syncflows.Get(ctx, payload.SyncflowID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// syncflow deleted while the cycle was in flight; nothing left
			// to account against
			s.logger.Info("cleanup skipped, syncflow gone", "syncflow_id", payload.SyncflowID)
			return nil
		}
		return fmt.Errorf("get syncflow: %w", err)
	}

	source, err := s.sources.Get(ctx, payload.DataSourceID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// source deleted while the cycle was in flight; the deletion
			// sweep removes its artifacts
			s.logger.Info("cleanup skipped, data source gone", "source_id", payload.DataSourceID)
			return nil
		}
		return fmt.Errorf("get data source: %w", err)
	}

	cleaner, ok := s.cleaners[source.ProviderType]
	if !ok {
		return fmt.Errorf("no cleaner for provider: %w: %s", domain.ErrUnknownProvider, source.ProviderType)
	}

	if err := cleaner.Run(ctx, payload.DataSourceID, CycleVersions{
		SyncVersion:     payload.SyncVersion,
		PrevSyncVersion: payload.PrevSyncVersion,
	}); err != nil {
		s.logger.Warn("cleanup after sync cycle failed",
			"source_id", payload.DataSourceID,
			"syncflow_id", payload.SyncflowID,
			"error", err,
		)
	}

	delta := payload.Statistics.RowsDelta()
	if delta != 0 {
		if err := s.sources.AddRows(ctx, payload.DataSourceID, delta); err != nil {
			return fmt.Errorf("update source statistics: %w", err)
		}
	}

	s.logger.Info("sync cycle cleanup done",
		"source_id", payload.DataSourceID,
		"syncflow_id", payload.SyncflowID,
		"version", payload.SyncVersion,
		"rows_delta", delta,
	)
	return nil
}

// HandleDataSourceDeleted removes every remaining artifact of a deleted
// data source. Only the baseline and current versions of each syncflow can
// still hold artifacts; older versions were pruned after their cycles.
func (s *CleanupService) HandleDataSourceDeleted(ctx context.Context, event *domain.Event) error {
	var payload domain.DataSourceDeletedPayload
	if err := event.Decode(&payload); err != nil {
		return err
	}

	syncflows, err := s.syncflows.ListBySource(ctx, payload.DataSourceID)
	if err != nil {
		return fmt.Errorf("list syncflows by source: %w", err)
	}

	var keys []string
	for _, syncflow := range syncflows {
		for v := syncflow.State.PrevVersion; v <= syncflow.State.Version; v++ {
			keys = append(keys, snapshot.ArtifactKeys(payload.DataSourceID, v)...)
		}
	}
	if len(keys) == 0 {
		return nil
	}

	failed, err := s.artifacts.Delete(ctx, keys)
	if err != nil {
		return fmt.Errorf("sweep source artifacts: %w", err)
	}
	if len(failed) > 0 {
		s.logger.Warn("some artifacts were not swept",
			"source_id", payload.DataSourceID,
			"failed_keys", failed,
		)
	}

	s.logger.Info("source artifacts swept",
		"source_id", payload.DataSourceID,
		"keys", len(keys),
	)
	return nil
}
