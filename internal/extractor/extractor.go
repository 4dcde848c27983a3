// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

/*
extractor.go - Raw-to-tool extraction stage

Reads the persisted API pages newest-first in LIMIT/OFFSET windows, decodes
the embedded elements into typed tool rows and replaces the connection's
slice of each tool table. A per-run dedup set keeps the first occurrence of
every native id, which under newest-first ordering is the freshest copy when
pages overlap. Reference backfills run last, once every entity kind is in
place.

Malformed pages and elements are logged and skipped; an error surfacing from
this package is a database failure, and the stage halts with every batch
committed so far intact.
*/

//nolint:staticcheck // File documentation, not package doc
package extractor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/worklake/internal/database"
	"github.com/tomtom215/worklake/internal/logging"
	"github.com/tomtom215/worklake/internal/metrics"
	"github.com/tomtom215/worklake/internal/models"
	"github.com/tomtom215/worklake/internal/models/openproject"
)

// DefaultBatchSize bounds how many raw pages are decoded per insert
// transaction when no batch size is configured.
const DefaultBatchSize = 50

// Store is the slice of the warehouse the extractor reads and writes.
type Store interface {
	CountRawRecords(ctx context.Context, entity models.RawEntity, connectionID int64) (int, error)
	RawBatch(ctx context.Context, entity models.RawEntity, connectionID int64, limit, offset int) ([]models.RawRecord, error)

	ClearToolTable(ctx context.Context, table string, connectionID int64) (int64, error)
	InsertToolWorkPackages(ctx context.Context, wps []models.ToolWorkPackage) (int, error)
	InsertToolProjects(ctx context.Context, projects []models.ToolProject) (int, error)
	InsertToolUsers(ctx context.Context, users []models.ToolUser) (int, error)
	InsertToolTimeEntries(ctx context.Context, entries []models.ToolTimeEntry) (int, error)
	InsertToolStatuses(ctx context.Context, statuses []models.ToolStatus) (int, error)
	InsertToolTypes(ctx context.Context, types []models.ToolType) (int, error)
	InsertToolPriorities(ctx context.Context, priorities []models.ToolPriority) (int, error)
	InsertToolActivities(ctx context.Context, activities []models.ToolActivity) (int, error)
	InsertToolVersions(ctx context.Context, versions []models.ToolVersion) (int, error)

	ResolveToolReferences(ctx context.Context, connectionID int64) (int64, error)
}

// Extractor drives the raw-to-tool stage for one connection.
type Extractor struct {
	store        Store
	connectionID int64
	batchSize    int
}

// New creates an extractor for the given connection.
func New(store Store, connectionID int64, batchSize int) *Extractor {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Extractor{
		store:        store,
		connectionID: connectionID,
		batchSize:    batchSize,
	}
}

// Run executes one extraction pass: dictionaries first, then projects, users,
// work packages, time entries and versions, then the reference backfills.
// The entity order itself is not load-bearing, since the resolver runs only
// after everything is extracted, but it mirrors collection order so logs
// line up.
func (e *Extractor) Run(ctx context.Context) (*models.ExtractionStats, error) {
	start := time.Now()
	stats := &models.ExtractionStats{}

	logging.Info().
		Int64("connection_id", e.connectionID).
		Int("batch_size", e.batchSize).
		Msg("Starting raw-to-tool extraction")

	var err error
	if stats.Metadata, err = e.extractMetadata(ctx); err != nil {
		return stats, fmt.Errorf("metadata extraction failed: %w", err)
	}
	if stats.Projects, err = e.extractProjects(ctx); err != nil {
		return stats, fmt.Errorf("projects extraction failed: %w", err)
	}
	if stats.Users, err = e.extractUsers(ctx); err != nil {
		return stats, fmt.Errorf("users extraction failed: %w", err)
	}
	if stats.WorkPackages, err = e.extractWorkPackages(ctx); err != nil {
		return stats, fmt.Errorf("work packages extraction failed: %w", err)
	}
	if stats.TimeEntries, err = e.extractTimeEntries(ctx); err != nil {
		return stats, fmt.Errorf("time entries extraction failed: %w", err)
	}
	if stats.Versions, err = e.extractVersions(ctx); err != nil {
		return stats, fmt.Errorf("versions extraction failed: %w", err)
	}

	if err := e.resolveReferences(ctx); err != nil {
		return stats, err
	}

	logging.Info().
		Int64("connection_id", e.connectionID).
		Int("rows_written", stats.Total()).
		Dur("duration", time.Since(start)).
		Msg("Extraction completed")

	return stats, nil
}

// extractEntity pages through a raw table newest-first and rebuilds the
// connection's slice of one tool table: clear up front, then one insert
// transaction per raw-page window. Native ids already written this run are
// dropped, so overlapping pages collapse to their freshest copy.
func extractEntity[T any](
	ctx context.Context,
	e *Extractor,
	entity models.RawEntity,
	table string,
	build func(connectionID int64, element json.RawMessage) (*T, error),
	insert func(ctx context.Context, rows []T) (int, error),
	nativeID func(*T) int64,
) (int, error) {
	total, err := e.store.CountRawRecords(ctx, entity, e.connectionID)
	if err != nil {
		return 0, fmt.Errorf("failed to count raw %s pages: %w", entity, err)
	}
	if total == 0 {
		logging.Warn().
			Str("entity", string(entity)).
			Int64("connection_id", e.connectionID).
			Msg("No raw pages to extract")
		return 0, nil
	}

	start := time.Now()
	cleared, err := e.store.ClearToolTable(ctx, table, e.connectionID)
	metrics.RecordDBQuery("delete", table, time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("failed to clear %s: %w", table, err)
	}

	seen := make(map[int64]struct{})
	written := 0

	for offset := 0; offset < total; offset += e.batchSize {
		records, err := e.store.RawBatch(ctx, entity, e.connectionID, e.batchSize, offset)
		if err != nil {
			return written, fmt.Errorf("failed to read raw %s window at offset %d: %w", entity, offset, err)
		}
		if len(records) == 0 {
			break
		}
		metrics.ExtractorBatchSize.Observe(float64(len(records)))

		rows := make([]T, 0, e.batchSize)
		for i := range records {
			rec := &records[i]
			if rec.Data == nil {
				continue
			}

			var page openproject.Collection
			if err := json.Unmarshal([]byte(*rec.Data), &page); err != nil {
				logging.Error().
					Err(err).
					Str("entity", string(entity)).
					Str("url", rec.URL).
					Msg("Failed to parse raw page, skipping")
				metrics.ExtractorRowsSkipped.WithLabelValues(string(entity), "parse_failed").Inc()
				continue
			}

			for _, element := range page.Embedded.Elements {
				row, err := build(e.connectionID, element)
				if err != nil {
					reason := "decode_failed"
					if errors.Is(err, errMissingID) {
						reason = "missing_id"
					}
					logging.Error().
						Err(err).
						Str("entity", string(entity)).
						Msg("Failed to extract element, skipping")
					metrics.ExtractorRowsSkipped.WithLabelValues(string(entity), reason).Inc()
					continue
				}
				if _, dup := seen[nativeID(row)]; dup {
					metrics.ExtractorDuplicates.WithLabelValues(string(entity)).Inc()
					continue
				}
				seen[nativeID(row)] = struct{}{}
				rows = append(rows, *row)
			}
		}

		if len(rows) == 0 {
			continue
		}
		insertStart := time.Now()
		n, err := insert(ctx, rows)
		metrics.RecordDBQuery("insert", table, time.Since(insertStart), err)
		if err != nil {
			return written, fmt.Errorf("failed to insert into %s: %w", table, err)
		}
		written += n
		metrics.ExtractorRowsWritten.WithLabelValues(string(entity)).Add(float64(n))
	}

	logging.Info().
		Str("entity", string(entity)).
		Int("raw_pages", total).
		Int64("rows_cleared", cleared).
		Int("rows_written", written).
		Msg("Entity extraction completed")

	return written, nil
}

// extractMetadata rebuilds the four dictionary tables. A database failure in
// any of them aborts metadata extraction: the dictionaries are small and a
// partial set breaks status and type resolution downstream. Dictionaries the
// installation never exposed simply have no raw pages and contribute zero.
func (e *Extractor) extractMetadata(ctx context.Context) (int, error) {
	total := 0

	n, err := extractEntity(ctx, e, models.RawStatuses, database.ToolStatusesTable,
		buildStatus, e.store.InsertToolStatuses,
		func(r *models.ToolStatus) int64 { return r.ID })
	if err != nil {
		return total, err
	}
	total += n

	n, err = extractEntity(ctx, e, models.RawTypes, database.ToolTypesTable,
		buildType, e.store.InsertToolTypes,
		func(r *models.ToolType) int64 { return r.ID })
	if err != nil {
		return total, err
	}
	total += n

	n, err = extractEntity(ctx, e, models.RawPriorities, database.ToolPrioritiesTable,
		buildPriority, e.store.InsertToolPriorities,
		func(r *models.ToolPriority) int64 { return r.ID })
	if err != nil {
		return total, err
	}
	total += n

	n, err = extractEntity(ctx, e, models.RawActivities, database.ToolActivitiesTable,
		buildActivity, e.store.InsertToolActivities,
		func(r *models.ToolActivity) int64 { return r.ID })
	if err != nil {
		return total, err
	}
	total += n

	return total, nil
}

func (e *Extractor) extractProjects(ctx context.Context) (int, error) {
	return extractEntity(ctx, e, models.RawProjects, database.ToolProjectsTable,
		buildProject, e.store.InsertToolProjects,
		func(r *models.ToolProject) int64 { return r.ID })
}

func (e *Extractor) extractUsers(ctx context.Context) (int, error) {
	return extractEntity(ctx, e, models.RawUsers, database.ToolUsersTable,
		buildUser, e.store.InsertToolUsers,
		func(r *models.ToolUser) int64 { return r.ID })
}

func (e *Extractor) extractWorkPackages(ctx context.Context) (int, error) {
	return extractEntity(ctx, e, models.RawWorkPackages, database.ToolWorkPackagesTable,
		buildWorkPackage, e.store.InsertToolWorkPackages,
		func(r *models.ToolWorkPackage) int64 { return r.ID })
}

func (e *Extractor) extractTimeEntries(ctx context.Context) (int, error) {
	return extractEntity(ctx, e, models.RawTimeEntries, database.ToolTimeEntriesTable,
		buildTimeEntry, e.store.InsertToolTimeEntries,
		func(r *models.ToolTimeEntry) int64 { return r.ID })
}

func (e *Extractor) extractVersions(ctx context.Context) (int, error) {
	return extractEntity(ctx, e, models.RawVersions, database.ToolVersionsTable,
		buildVersion, e.store.InsertToolVersions,
		func(r *models.ToolVersion) int64 { return r.ID })
}
