package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/custodia-labs/syncflow-core/internal/core/domain"
	"github.com/custodia-labs/syncflow-core/internal/core/ports/driven"
	"github.com/custodia-labs/syncflow-core/internal/snapshot"
)

// Activity retry/timeout policies. Download dominates the budget; the other
// steps only touch data already staged in the artifact store.
var (
	markRunningOpts = driven.ActivityOptions{Timeout: 30 * time.Second, MaxAttempts: 3, Backoff: 2 * time.Second}
	downloadOpts    = driven.ActivityOptions{Timeout: 10 * time.Minute, MaxAttempts: 3, Backoff: 30 * time.Second}
	compareOpts     = driven.ActivityOptions{Timeout: 2 * time.Minute, MaxAttempts: 3, Backoff: 5 * time.Second}
	loadOpts        = driven.ActivityOptions{Timeout: 5 * time.Minute, MaxAttempts: 3, Backoff: 10 * time.Second}
	publishOpts     = driven.ActivityOptions{Timeout: 30 * time.Second, MaxAttempts: 5, Backoff: 2 * time.Second}
)

// SyncPipeline is the durable workflow that executes one sync cycle:
// mark running, download, compare, load, publish, advance.
//
// Each step is a named activity whose output is checkpointed by the engine;
// a crash mid-cycle resumes from the last completed step instead of
// re-downloading. Activities therefore carry everything the next step needs
// in their persisted output.
type SyncPipeline struct {
	syncflows   driven.SyncflowStore
	sources     driven.DataSourceStore
	providers   driven.ProviderClients
	artifacts   driven.ArtifactStore
	destination driven.DestinationStore
	bus         driven.EventBus
	logger      *slog.Logger
}

// SyncPipelineConfig holds dependencies for SyncPipeline.
type SyncPipelineConfig struct {
	Syncflows   driven.SyncflowStore
	Sources     driven.DataSourceStore
	Providers   driven.ProviderClients
	Artifacts   driven.ArtifactStore
	Destination driven.DestinationStore
	Bus         driven.EventBus
	Logger      *slog.Logger
}

// NewSyncPipeline creates a new sync pipeline.
func NewSyncPipeline(cfg SyncPipelineConfig) *SyncPipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncPipeline{
		syncflows:   cfg.Syncflows,
		sources:     cfg.Sources,
		providers:   cfg.Providers,
		artifacts:   cfg.Artifacts,
		destination: cfg.Destination,
		bus:         cfg.Bus,
		logger:      logger,
	}
}

// cycleContext is the persisted output of the mark-running step: everything
// later steps need to address artifacts and the baseline version.
type cycleContext struct {
	Proceed     bool   `json:"proceed"`
	Reason      string `json:"reason,omitempty"`
	SourceID    string `json:"source_id,omitempty"`
	Version     int64  `json:"version"`
	PrevVersion int64  `json:"prev_version"`
}

// Register binds the pipeline's workflow body to the engine.
func (p *SyncPipeline) Register(engine driven.WorkflowEngine) {
	engine.Register(SyncflowWorkflowName, p.Workflow)
}

// Workflow runs one sync cycle. On failure the syncflow is returned to
// IDLING without advancing its version, so the same logical cycle can be
// retried under the same workflow id.
func (p *SyncPipeline) Workflow(ctx context.Context, run driven.ActivityRunner, input []byte) error {
	var in SyncflowInput
	if err := json.Unmarshal(input, &in); err != nil {
		return fmt.Errorf("unmarshal workflow input: %w", err)
	}

	cc, err := p.markRunning(ctx, run, in)
	if err != nil {
		return p.failCycle(ctx, in, err)
	}
	if !cc.Proceed {
		p.logger.Info("sync cycle skipped", "syncflow_id", in.SyncflowID, "reason", cc.Reason)
		return nil
	}

	if err := p.download(ctx, run, cc); err != nil {
		return p.failCycle(ctx, in, err)
	}

	stats, err := p.compare(ctx, run, cc)
	if err != nil {
		return p.failCycle(ctx, in, err)
	}

	if err := p.load(ctx, run, cc); err != nil {
		return p.failCycle(ctx, in, err)
	}

	if err := p.publishSucceed(ctx, run, in, cc, stats); err != nil {
		return p.failCycle(ctx, in, err)
	}

	if err := p.advance(ctx, run, in); err != nil {
		return p.failCycle(ctx, in, err)
	}

	p.logger.Info("sync cycle completed",
		"syncflow_id", in.SyncflowID,
		"version", in.Version,
		"added", stats.AddedRowsCount,
		"deleted", stats.DeletedRowsCount,
		"schema_changed", stats.SchemaChanged,
	)
	return nil
}

// markRunning conditionally moves the syncflow to RUNNING and resolves the
// cycle context. Redelivered schedule events and stale versions end the
// workflow as an acceptable no-op.
func (p *SyncPipeline) markRunning(ctx context.Context, run driven.ActivityRunner, in SyncflowInput) (cycleContext, error) {
	out, err := run.Do(ctx, "mark-running", markRunningOpts, func(ctx context.Context) ([]byte, error) {
		cc, err := p.resolveRunning(ctx, in)
		if err != nil {
			return nil, err
		}
		return json.Marshal(cc)
	})
	if err != nil {
		return cycleContext{}, err
	}
	var cc cycleContext
	if err := json.Unmarshal(out, &cc); err != nil {
		return cycleContext{}, fmt.Errorf("unmarshal cycle context: %w", err)
	}
	return cc, nil
}

func (p *SyncPipeline) resolveRunning(ctx context.Context, in SyncflowInput) (cycleContext, error) {
	syncflow, err := p.syncflows.TransitionStatus(ctx, in.SyncflowID,
		domain.SyncflowStatusScheduled, domain.SyncflowStatusRunning)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return cycleContext{Reason: "syncflow no longer exists"}, nil
		}
		if !errors.Is(err, domain.ErrStatusConflict) {
			return cycleContext{}, fmt.Errorf("transition to running: %w", err)
		}
		// The transition lost. Re-read and decide: our own earlier write
		// (engine crashed before checkpointing) continues; anything else
		// is a stale redelivery and ends the cycle without work.
		syncflow, err = p.syncflows.Get(ctx, in.SyncflowID)
		if err != nil {
			return cycleContext{}, fmt.Errorf("get syncflow after conflict: %w", err)
		}
		if syncflow.State.Status != domain.SyncflowStatusRunning || syncflow.State.Version != in.Version {
			return cycleContext{Reason: "syncflow state moved past this cycle"}, nil
		}
	}
	if syncflow.State.Version != in.Version {
		return cycleContext{Reason: "cycle version is stale"}, nil
	}
	return cycleContext{
		Proceed:     true,
		SourceID:    syncflow.SourceID,
		Version:     syncflow.State.Version,
		PrevVersion: syncflow.State.PrevVersion,
	}, nil
}

// download fetches the full snapshot from the provider and stages the raw
// and schema artifacts for this version.
func (p *SyncPipeline) download(ctx context.Context, run driven.ActivityRunner, cc cycleContext) error {
	_, err := run.Do(ctx, "download-snapshot", downloadOpts, func(ctx context.Context) ([]byte, error) {
		source, err := p.sources.Get(ctx, cc.SourceID)
		if err != nil {
			return nil, fmt.Errorf("get data source: %w", err)
		}
		client, err := p.providers.Get(source.ProviderType)
		if err != nil {
			return nil, err
		}

		table, err := client.DownloadSnapshot(ctx, source)
		if err != nil {
			return nil, fmt.Errorf("download snapshot: %w", err)
		}

		raw, err := table.Encode()
		if err != nil {
			return nil, err
		}
		rawKey := snapshot.ArtifactKey(cc.SourceID, cc.Version, snapshot.KindRaw)
		if err := p.artifacts.Put(ctx, rawKey, raw); err != nil {
			return nil, fmt.Errorf("store raw snapshot: %w", err)
		}

		schema, err := json.Marshal(table.Columns)
		if err != nil {
			return nil, fmt.Errorf("encode schema: %w", err)
		}
		schemaKey := snapshot.ArtifactKey(cc.SourceID, cc.Version, snapshot.KindSchema)
		if err := p.artifacts.Put(ctx, schemaKey, schema); err != nil {
			return nil, fmt.Errorf("store schema: %w", err)
		}

		return []byte(rawKey), nil
	})
	return err
}

// compare diffs this version's snapshot against the baseline version and
// stages the diff artifact. The first cycle has no baseline; every row is
// an add.
func (p *SyncPipeline) compare(ctx context.Context, run driven.ActivityRunner, cc cycleContext) (domain.SyncStatistics, error) {
	out, err := run.Do(ctx, "compare-snapshots", compareOpts, func(ctx context.Context) ([]byte, error) {
		raw, err := p.artifacts.Get(ctx, snapshot.ArtifactKey(cc.SourceID, cc.Version, snapshot.KindRaw))
		if err != nil {
			return nil, fmt.Errorf("load current snapshot: %w", err)
		}
		curr, err := snapshot.Decode(raw)
		if err != nil {
			return nil, err
		}

		var prev *snapshot.Table
		if cc.PrevVersion != cc.Version {
			prevRaw, err := p.artifacts.Get(ctx, snapshot.ArtifactKey(cc.SourceID, cc.PrevVersion, snapshot.KindRaw))
			switch {
			case errors.Is(err, domain.ErrNotFound):
				// baseline artifact lost; fall back to a full reload
			case err != nil:
				return nil, fmt.Errorf("load baseline snapshot: %w", err)
			default:
				prev, err = snapshot.Decode(prevRaw)
				if err != nil {
					return nil, err
				}
			}
		}

		diff := snapshot.Compare(prev, curr)
		encoded, err := diff.Encode()
		if err != nil {
			return nil, err
		}
		diffKey := snapshot.ArtifactKey(cc.SourceID, cc.Version, snapshot.KindDiff)
		if err := p.artifacts.Put(ctx, diffKey, encoded); err != nil {
			return nil, fmt.Errorf("store diff: %w", err)
		}

		return json.Marshal(domain.SyncStatistics{
			AddedRowsCount:   len(diff.AddedRows),
			DeletedRowsCount: len(diff.DeletedRows),
			SchemaChanged:    diff.SchemaChanged,
		})
	})
	if err != nil {
		return domain.SyncStatistics{}, err
	}
	var stats domain.SyncStatistics
	if err := json.Unmarshal(out, &stats); err != nil {
		return domain.SyncStatistics{}, fmt.Errorf("unmarshal statistics: %w", err)
	}
	return stats, nil
}

// load applies the staged diff to the destination table.
func (p *SyncPipeline) load(ctx context.Context, run driven.ActivityRunner, cc cycleContext) error {
	_, err := run.Do(ctx, "load-destination", loadOpts, func(ctx context.Context) ([]byte, error) {
		encoded, err := p.artifacts.Get(ctx, snapshot.ArtifactKey(cc.SourceID, cc.Version, snapshot.KindDiff))
		if err != nil {
			return nil, fmt.Errorf("load diff: %w", err)
		}
		diff, err := snapshot.DecodeDiff(encoded)
		if err != nil {
			return nil, err
		}

		raw, err := p.artifacts.Get(ctx, snapshot.ArtifactKey(cc.SourceID, cc.Version, snapshot.KindRaw))
		if err != nil {
			return nil, fmt.Errorf("load current snapshot: %w", err)
		}
		curr, err := snapshot.Decode(raw)
		if err != nil {
			return nil, err
		}

		source, err := p.sources.Get(ctx, cc.SourceID)
		if err != nil {
			return nil, fmt.Errorf("get data source: %w", err)
		}
		table := source.Config.DestinationTable
		if table == "" {
			return nil, fmt.Errorf("data source %s has no destination table: %w", cc.SourceID, domain.ErrInvalidInput)
		}

		if err := p.destination.ApplyDiff(ctx, table, curr.Columns,
			diff.AddedRows, diff.DeletedRows, diff.SchemaChanged); err != nil {
			return nil, fmt.Errorf("apply diff: %w", err)
		}
		return nil, nil
	})
	return err
}

// publishSucceed announces the completed cycle so cleanup can compensate.
func (p *SyncPipeline) publishSucceed(ctx context.Context, run driven.ActivityRunner, in SyncflowInput, cc cycleContext, stats domain.SyncStatistics) error {
	_, err := run.Do(ctx, "publish-succeed", publishOpts, func(ctx context.Context) ([]byte, error) {
		payload := domain.SyncflowSucceedPayload{
			DataSourceID:    cc.SourceID,
			SyncflowID:      in.SyncflowID,
			SyncVersion:     cc.Version,
			PrevSyncVersion: cc.PrevVersion,
			Statistics:      stats,
		}
		event, err := domain.NewEvent(domain.EventSyncflowSucceed, payload)
		if err != nil {
			return nil, err
		}
		if err := p.bus.Publish(ctx, domain.EventSyncflowSucceed, event); err != nil {
			return nil, fmt.Errorf("publish syncflow succeed: %w", err)
		}
		return nil, nil
	})
	return err
}

// advance moves the syncflow state past the completed version.
func (p *SyncPipeline) advance(ctx context.Context, run driven.ActivityRunner, in SyncflowInput) error {
	_, err := run.Do(ctx, "advance-state", markRunningOpts, func(ctx context.Context) ([]byte, error) {
		if _, err := p.syncflows.AdvanceCycle(ctx, in.SyncflowID, in.Version); err != nil {
			if errors.Is(err, domain.ErrStatusConflict) {
				// already advanced by an earlier attempt of this activity
				return nil, nil
			}
			return nil, fmt.Errorf("advance cycle: %w", err)
		}
		return nil, nil
	})
	return err
}

// failCycle returns the syncflow to IDLING without advancing its version,
// then re-raises the error so the engine records the execution as failed.
// The workflow id stays claimable for a retry of the same logical cycle.
func (p *SyncPipeline) failCycle(ctx context.Context, in SyncflowInput, cause error) error {
	if _, err := p.syncflows.TransitionStatus(ctx, in.SyncflowID,
		domain.SyncflowStatusRunning, domain.SyncflowStatusIdling); err != nil {
		if !errors.Is(err, domain.ErrStatusConflict) && !errors.Is(err, domain.ErrNotFound) {
			p.logger.Error("failed to reset syncflow after cycle failure",
				"syncflow_id", in.SyncflowID,
				"error", err,
			)
		}
	}
	p.logger.Error("sync cycle failed",
		"syncflow_id", in.SyncflowID,
		"version", in.Version,
		"error", cause,
	)
	return cause
}
