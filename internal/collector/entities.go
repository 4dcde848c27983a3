// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

package collector

import (
	"context"
	"strconv"

	"github.com/tomtom215/worklake/internal/logging"
	"github.com/tomtom215/worklake/internal/metrics"
	"github.com/tomtom215/worklake/internal/models"
	"github.com/tomtom215/worklake/internal/openproject"
)

// collectMetadata fetches the dictionary endpoints. Statuses, types, and
// priorities are single unpaginated responses stored success or failure;
// a missing endpoint on an older OpenProject is expected, not fatal.
// Activities move between versions, so the client tries candidate paths and
// only a successful response is persisted.
func (c *Collector) collectMetadata(ctx context.Context) (int, error) {
	total := 0

	fixed := []struct {
		entity models.RawEntity
		fetch  func(context.Context) (*openproject.RequestResult, error)
	}{
		{models.RawStatuses, c.client.FetchStatuses},
		{models.RawTypes, c.client.FetchTypes},
		{models.RawPriorities, c.client.FetchPriorities},
	}

	for _, m := range fixed {
		logging.Info().Str("entity", string(m.entity)).Msg("Collecting metadata")

		result, err := m.fetch(ctx)
		if err != nil {
			return total, err
		}
		if err := c.storePage(ctx, m.entity, "{}", result); err != nil {
			return total, err
		}

		if !result.Success {
			metrics.RecordPage(string(m.entity), false)
			logging.Warn().Str("entity", string(m.entity)).Str("error", result.Err).Msg("Metadata endpoint failed, may not exist on this version")
			continue
		}
		metrics.RecordPage(string(m.entity), true)

		count := countElements(result.Payload)
		total += count
		logging.Info().Str("entity", string(m.entity)).Int("count", count).Msg("Collected metadata")
	}

	result, err := c.client.FetchActivities(ctx)
	if err != nil {
		return total, err
	}
	if !result.Success {
		metrics.RecordPage(string(models.RawActivities), false)
		logging.Warn().Msg("No activities endpoint available, skipping (not critical)")
		return total, nil
	}
	if err := c.storePage(ctx, models.RawActivities, "{}", result); err != nil {
		return total, err
	}
	metrics.RecordPage(string(models.RawActivities), true)

	count := countElements(result.Payload)
	total += count
	logging.Info().Int("count", count).Str("url", result.URL).Msg("Collected activities")

	return total, nil
}

func (c *Collector) collectProjects(ctx context.Context) (int, error) {
	logging.Info().Msg("Starting projects collection")

	return c.collectPaginated(ctx, models.RawProjects, "{}", func(ctx context.Context, state PageState) (*openproject.RequestResult, error) {
		return c.client.FetchProjects(ctx, state.PageSize, state.Offset)
	})
}

// collectUsers pages the users endpoint. Non-admin keys get a terminal 403
// here; the failure row is stored and users collection halts on its own
// without failing the run.
func (c *Collector) collectUsers(ctx context.Context) (int, error) {
	logging.Info().Msg("Starting users collection")

	return c.collectPaginated(ctx, models.RawUsers, "{}", func(ctx context.Context, state PageState) (*openproject.RequestResult, error) {
		return c.client.FetchUsers(ctx, state.PageSize, state.Offset)
	})
}

func (c *Collector) collectWorkPackages(ctx context.Context, opts Options, projectID *int64) (int, error) {
	logging.Info().Str("project", scopeLabel(projectID)).Msg("Starting work packages collection")

	if opts.Incremental {
		c.logSyncCursor(ctx, models.RawWorkPackages)
	}

	input := scopeInput("project_id", projectID)
	return c.collectPaginated(ctx, models.RawWorkPackages, input, func(ctx context.Context, state PageState) (*openproject.RequestResult, error) {
		return c.client.FetchWorkPackages(ctx, state.PageSize, state.Offset, projectID)
	})
}

func (c *Collector) collectTimeEntries(ctx context.Context, opts Options, workPackageID *int64) (int, error) {
	logging.Info().Str("work_package", scopeLabel(workPackageID)).Msg("Starting time entries collection")

	if opts.Incremental {
		c.logSyncCursor(ctx, models.RawTimeEntries)
	}

	input := scopeInput("work_package_id", workPackageID)
	return c.collectPaginated(ctx, models.RawTimeEntries, input, func(ctx context.Context, state PageState) (*openproject.RequestResult, error) {
		return c.client.FetchTimeEntries(ctx, state.PageSize, state.Offset, workPackageID)
	})
}

func (c *Collector) collectVersions(ctx context.Context, projectID *int64) (int, error) {
	logging.Info().Str("project", scopeLabel(projectID)).Msg("Starting versions collection")

	input := scopeInput("project_id", projectID)
	return c.collectPaginated(ctx, models.RawVersions, input, func(ctx context.Context, state PageState) (*openproject.RequestResult, error) {
		return c.client.FetchVersions(ctx, state.PageSize, state.Offset, projectID)
	})
}

func scopeLabel(id *int64) string {
	if id == nil {
		return "all"
	}
	return strconv.FormatInt(*id, 10)
}
