// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

/*
runner.go - Pipeline orchestration

Chains the three stages with full barriers: collection finishes before
extraction reads the raw layer, extraction (including the reference
backfill) finishes before conversion reads the tool layer. A failed stage
aborts the stages behind it; whatever the failed stage committed stays
committed, and the next run starts from consistent layers.

Every invocation is recorded in _worklake_pipeline_runs so the ops API can
answer what ran, when and how much without scraping logs.
*/

//nolint:staticcheck // File documentation, not package doc
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/worklake/internal/collector"
	"github.com/tomtom215/worklake/internal/logging"
	"github.com/tomtom215/worklake/internal/metrics"
	"github.com/tomtom215/worklake/internal/models"
)

// Stage names as they appear in metrics and reports.
const (
	StageCollect = "collect"
	StageExtract = "extract"
	StageConvert = "convert"
)

// Collector pulls API pages into the raw layer.
type Collector interface {
	Run(ctx context.Context, opts collector.Options) (*models.CollectionStats, error)
}

// Extractor normalizes raw pages into tool rows and backfills references.
type Extractor interface {
	Run(ctx context.Context) (*models.ExtractionStats, error)
}

// Converter projects tool rows into the shared domain tables.
type Converter interface {
	Run(ctx context.Context) (*models.ConversionStats, error)
}

// RunStore persists the run log.
type RunStore interface {
	InsertPipelineRun(ctx context.Context, run *models.PipelineRun) error
	UpdatePipelineRunStats(ctx context.Context, run *models.PipelineRun) error
	MarkPipelineRunStarted(ctx context.Context, id uuid.UUID) error
	FinishPipelineRun(ctx context.Context, run *models.PipelineRun) error
}

// Options select the stages and scope of one run.
type Options struct {
	// SkipCollection reuses the raw layer as-is, for re-running
	// normalization after a mapping change.
	SkipCollection bool
	// SkipExtraction additionally reuses the tool layer.
	SkipExtraction bool
	// DryRun logs the plan and touches nothing, not even the run log.
	DryRun bool
	// Full marks the run as a deliberate full re-pull in the run log and
	// metrics. Collection re-pulls everything either way; the flag records
	// operator intent and suppresses the incremental cursor logging.
	Full bool
	// ProjectIDs scope collection to these native project ids.
	ProjectIDs []int64
}

func (o Options) mode() string {
	if o.Full {
		return models.RunModeFull
	}
	return models.RunModeIncremental
}

// StageStats describes one stage of a finished run. Records counts whatever
// the stage reported before returning, so a failed stage still shows its
// partial progress.
type StageStats struct {
	Skipped  bool          `json:"skipped,omitempty"`
	Records  int           `json:"records"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// RunReport aggregates one pipeline invocation. Err is the first stage
// error; stages behind it never ran.
type RunReport struct {
	RunID   uuid.UUID  `json:"run_id"`
	Mode    string     `json:"mode"`
	DryRun  bool       `json:"dry_run,omitempty"`
	Collect StageStats `json:"collect"`
	Extract StageStats `json:"extract"`
	Convert StageStats `json:"convert"`
	Err     error      `json:"-"`
}

// Runner executes pipeline runs for one connection.
type Runner struct {
	collector    Collector
	extractor    Extractor
	converter    Converter
	runs         RunStore
	connectionID int64
}

// New creates a runner.
func New(col Collector, ext Extractor, conv Converter, runs RunStore, connectionID int64) *Runner {
	return &Runner{
		collector:    col,
		extractor:    ext,
		converter:    conv,
		runs:         runs,
		connectionID: connectionID,
	}
}

// Run executes the pipeline once and records it in the run log. This is the
// single-shot entry point the CLI uses.
func (r *Runner) Run(ctx context.Context, opts Options) (*RunReport, error) {
	if opts.DryRun {
		return r.dryRun(opts), nil
	}

	run := &models.PipelineRun{ConnectionID: r.connectionID, Mode: opts.mode()}
	if err := r.runs.InsertPipelineRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to record pipeline run: %w", err)
	}
	return r.execute(ctx, run, opts)
}

// Enqueue records a queued run for the serve-mode worker to pick up. The
// returned run already carries its id, so the trigger endpoint can hand it
// out before the run starts.
func (r *Runner) Enqueue(ctx context.Context, opts Options) (*models.PipelineRun, error) {
	run := &models.PipelineRun{
		ConnectionID: r.connectionID,
		Mode:         opts.mode(),
		Status:       models.RunStatusQueued,
	}
	if err := r.runs.InsertPipelineRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to record queued pipeline run: %w", err)
	}
	return run, nil
}

// Execute runs a previously enqueued run.
func (r *Runner) Execute(ctx context.Context, run *models.PipelineRun, opts Options) (*RunReport, error) {
	if err := r.runs.MarkPipelineRunStarted(ctx, run.ID); err != nil {
		logging.Warn().Err(err).Str("run_id", run.ID.String()).Msg("Failed to mark pipeline run started")
	}
	return r.execute(ctx, run, opts)
}

// abandon marks a run that will never execute as failed.
func (r *Runner) abandon(ctx context.Context, run *models.PipelineRun, reason string) {
	run.Status = models.RunStatusFailed
	run.Error = reason
	if err := r.runs.FinishPipelineRun(ctx, run); err != nil {
		logging.Error().Err(err).Str("run_id", run.ID.String()).Msg("Failed to finalize abandoned pipeline run")
	}
}

func (r *Runner) execute(ctx context.Context, run *models.PipelineRun, opts Options) (*RunReport, error) {
	start := time.Now()
	report := &RunReport{RunID: run.ID, Mode: run.Mode}

	logging.Info().
		Str("run_id", run.ID.String()).
		Str("mode", run.Mode).
		Bool("skip_collection", opts.SkipCollection).
		Bool("skip_extraction", opts.SkipExtraction).
		Int("scoped_projects", len(opts.ProjectIDs)).
		Msg("Starting pipeline run")

	report.Err = r.runStages(ctx, run, opts, report)

	run.Status = models.RunStatusCompleted
	if report.Err != nil {
		run.Status = models.RunStatusFailed
		run.Error = report.Err.Error()
	}
	// Finalize even when the run died to a canceled context.
	if err := r.runs.FinishPipelineRun(context.WithoutCancel(ctx), run); err != nil {
		logging.Error().Err(err).Str("run_id", run.ID.String()).Msg("Failed to finalize pipeline run record")
	}
	metrics.RecordRun(run.Mode, run.Status)

	logging.Info().
		Str("run_id", run.ID.String()).
		Str("status", run.Status).
		Dur("duration", time.Since(start)).
		Int("collected", run.Collected).
		Int("extracted", run.Extracted).
		Int("converted", run.Converted).
		Msg("Pipeline run finished")

	return report, report.Err
}

func (r *Runner) runStages(ctx context.Context, run *models.PipelineRun, opts Options, report *RunReport) error {
	if opts.SkipCollection {
		report.Collect.Skipped = true
		logging.Info().Msg("Collection skipped, reusing the raw layer")
	} else {
		err := r.runStage(StageCollect, &report.Collect, func() (int, error) {
			stats, err := r.collector.Run(ctx, collector.Options{
				ProjectIDs:  opts.ProjectIDs,
				Incremental: !opts.Full,
			})
			if stats == nil {
				return 0, err
			}
			run.Collected = stats.Total()
			return run.Collected, err
		})
		if err != nil {
			return err
		}
		r.saveProgress(ctx, run)
	}

	if opts.SkipExtraction {
		report.Extract.Skipped = true
		logging.Info().Msg("Extraction skipped, reusing the tool layer")
	} else {
		err := r.runStage(StageExtract, &report.Extract, func() (int, error) {
			stats, err := r.extractor.Run(ctx)
			if stats == nil {
				return 0, err
			}
			run.Extracted = stats.Total()
			return run.Extracted, err
		})
		if err != nil {
			return err
		}
		r.saveProgress(ctx, run)
	}

	return r.runStage(StageConvert, &report.Convert, func() (int, error) {
		stats, err := r.converter.Run(ctx)
		if stats == nil {
			return 0, err
		}
		run.Converted = stats.Total()
		return run.Converted, err
	})
}

// runStage times one stage and records its metrics. The returned error is
// wrapped with the stage name; the raw error stays on the stats for callers
// that want it.
func (r *Runner) runStage(stage string, s *StageStats, fn func() (int, error)) error {
	start := time.Now()
	records, err := fn()
	s.Duration = time.Since(start)
	s.Records = records
	s.Err = err
	metrics.RecordStage(stage, s.Duration, int64(records), err)

	if err != nil {
		return fmt.Errorf("%s stage failed: %w", stage, err)
	}
	logging.Info().
		Str("stage", stage).
		Int("records", records).
		Dur("duration", s.Duration).
		Msg("Pipeline stage completed")
	return nil
}

func (r *Runner) saveProgress(ctx context.Context, run *models.PipelineRun) {
	if err := r.runs.UpdatePipelineRunStats(ctx, run); err != nil {
		logging.Warn().Err(err).Str("run_id", run.ID.String()).Msg("Failed to update pipeline run progress")
	}
}

// dryRun reports the plan without touching anything.
func (r *Runner) dryRun(opts Options) *RunReport {
	logging.Info().
		Bool("collect", !opts.SkipCollection).
		Bool("extract", !opts.SkipExtraction).
		Bool("convert", true).
		Str("mode", opts.mode()).
		Int("scoped_projects", len(opts.ProjectIDs)).
		Msg("Dry run, no stage will execute")

	return &RunReport{
		Mode:    opts.mode(),
		DryRun:  true,
		Collect: StageStats{Skipped: true},
		Extract: StageStats{Skipped: true},
		Convert: StageStats{Skipped: true},
	}
}
