// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/worklake/internal/config"
	"github.com/tomtom215/worklake/internal/logging"
	"github.com/tomtom215/worklake/internal/metrics"
	"github.com/tomtom215/worklake/internal/models"
	"github.com/tomtom215/worklake/internal/openproject"
)

// RawStore is the slice of the warehouse the collector writes to.
type RawStore interface {
	InsertRawRecord(ctx context.Context, entity models.RawEntity, rec *models.RawRecord) error
	LastSuccessfulSync(ctx context.Context, entity models.RawEntity, connectionID int64) (*time.Time, error)
}

// APIClient is the slice of the OpenProject client the collector drives.
type APIClient interface {
	FetchWorkPackages(ctx context.Context, pageSize, page int, projectID *int64) (*openproject.RequestResult, error)
	FetchProjects(ctx context.Context, pageSize, page int) (*openproject.RequestResult, error)
	FetchUsers(ctx context.Context, pageSize, page int) (*openproject.RequestResult, error)
	FetchTimeEntries(ctx context.Context, pageSize, page int, workPackageID *int64) (*openproject.RequestResult, error)
	FetchVersions(ctx context.Context, pageSize, page int, projectID *int64) (*openproject.RequestResult, error)
	FetchStatuses(ctx context.Context) (*openproject.RequestResult, error)
	FetchTypes(ctx context.Context) (*openproject.RequestResult, error)
	FetchPriorities(ctx context.Context) (*openproject.RequestResult, error)
	FetchActivities(ctx context.Context) (*openproject.RequestResult, error)
}

// Options scope one collection run.
type Options struct {
	// ProjectIDs limits work-package and version collection to these native
	// project ids. Empty collects everything in one global pass.
	ProjectIDs []int64
	// Incremental logs the last-sync cursor before paging the incremental
	// entities. Collection is a full re-pull either way.
	Incremental bool
}

// Collector drives collection runs for one connection.
type Collector struct {
	client       APIClient
	store        RawStore
	connectionID int64
	pageSize     int
	maxPages     int
}

// New creates a collector for the configured connection.
func New(client APIClient, store RawStore, cfg *config.OpenProjectConfig) *Collector {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 1000
	}

	return &Collector{
		client:       client,
		store:        store,
		connectionID: cfg.ConnectionID,
		pageSize:     pageSize,
		maxPages:     maxPages,
	}
}

// Run executes one full collection pass in dependency order: metadata,
// projects, users, work packages, time entries, versions. A failed page halts
// its own entity only; errors returned here are database write failures,
// context cancellation, or an open circuit breaker, all of which abort the
// run with everything collected so far already persisted.
func (c *Collector) Run(ctx context.Context, opts Options) (*models.CollectionStats, error) {
	start := time.Now()
	stats := &models.CollectionStats{}

	logging.Info().
		Int64("connection_id", c.connectionID).
		Int("scoped_projects", len(opts.ProjectIDs)).
		Bool("incremental", opts.Incremental).
		Msg("Starting OpenProject data collection")

	var err error
	if stats.Metadata, err = c.collectMetadata(ctx); err != nil {
		return stats, fmt.Errorf("metadata collection failed: %w", err)
	}
	if stats.Projects, err = c.collectProjects(ctx); err != nil {
		return stats, fmt.Errorf("projects collection failed: %w", err)
	}
	if stats.Users, err = c.collectUsers(ctx); err != nil {
		return stats, fmt.Errorf("users collection failed: %w", err)
	}

	if len(opts.ProjectIDs) > 0 {
		for _, id := range opts.ProjectIDs {
			logging.Info().Int64("project_id", id).Msg("Collecting work packages for project")
			n, err := c.collectWorkPackages(ctx, opts, &id)
			stats.WorkPackages += n
			if err != nil {
				return stats, fmt.Errorf("work packages collection failed for project %d: %w", id, err)
			}
		}
	} else {
		if stats.WorkPackages, err = c.collectWorkPackages(ctx, opts, nil); err != nil {
			return stats, fmt.Errorf("work packages collection failed: %w", err)
		}
	}

	if stats.TimeEntries, err = c.collectTimeEntries(ctx, opts, nil); err != nil {
		return stats, fmt.Errorf("time entries collection failed: %w", err)
	}

	if len(opts.ProjectIDs) > 0 {
		for _, id := range opts.ProjectIDs {
			n, err := c.collectVersions(ctx, &id)
			stats.Versions += n
			if err != nil {
				return stats, fmt.Errorf("versions collection failed for project %d: %w", id, err)
			}
		}
	} else {
		if stats.Versions, err = c.collectVersions(ctx, nil); err != nil {
			return stats, fmt.Errorf("versions collection failed: %w", err)
		}
	}

	logging.Info().
		Int("metadata", stats.Metadata).
		Int("projects", stats.Projects).
		Int("users", stats.Users).
		Int("work_packages", stats.WorkPackages).
		Int("time_entries", stats.TimeEntries).
		Int("versions", stats.Versions).
		Int("total", stats.Total()).
		Dur("duration", time.Since(start)).
		Msg("Collection completed")

	return stats, nil
}

// storePage persists one page response, success or failure. Failures carry a
// NULL payload so they never advance the sync cursor.
func (c *Collector) storePage(ctx context.Context, entity models.RawEntity, input string, result *openproject.RequestResult) error {
	rec := &models.RawRecord{
		ConnectionID: c.connectionID,
		Params:       result.Params,
		URL:          result.URL,
		Input:        input,
	}
	if result.Success {
		data := string(result.Payload)
		rec.Data = &data
	} else {
		logging.Warn().Str("entity", string(entity)).Str("url", result.URL).Str("error", result.Err).Msg("Storing failed request")
	}

	start := time.Now()
	err := c.store.InsertRawRecord(ctx, entity, rec)
	metrics.RecordDBQuery("insert", entity.TableName(), time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to store %s page: %w", entity, err)
	}

	logging.Debug().Str("entity", string(entity)).Str("url", result.URL).Msg("Stored raw page")
	return nil
}

// logSyncCursor logs the entity's incremental cursor. The request is not
// filtered by it: upstream update-time filters are unreliable across
// OpenProject versions, so every run re-collects fully and the extractor's
// replace semantics control staleness.
func (c *Collector) logSyncCursor(ctx context.Context, entity models.RawEntity) {
	last, err := c.store.LastSuccessfulSync(ctx, entity, c.connectionID)
	if err != nil {
		logging.Warn().Str("entity", string(entity)).Err(err).Msg("Failed to read last sync cursor")
		return
	}
	if last == nil {
		logging.Info().Str("entity", string(entity)).Msg("No previous successful sync")
		return
	}
	logging.Info().Str("entity", string(entity)).Time("last_sync", *last).Msg("Incremental cursor is informational, re-collecting fully")
}

// scopeInput tags a raw row with the entity filter used for its fetch,
// e.g. {"project_id":7}, or {"project_id":null} for a global pass.
func scopeInput(key string, id *int64) string {
	b, err := json.Marshal(map[string]*int64{key: id})
	if err != nil {
		return "{}"
	}
	return string(b)
}
