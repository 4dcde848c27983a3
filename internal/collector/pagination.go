// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

package collector

import (
	"context"

	"github.com/goccy/go-json"

	"github.com/tomtom215/worklake/internal/logging"
	"github.com/tomtom215/worklake/internal/metrics"
	"github.com/tomtom215/worklake/internal/models"
	opmodels "github.com/tomtom215/worklake/internal/models/openproject"
	"github.com/tomtom215/worklake/internal/openproject"
)

// PageState tracks one entity type's pagination progress. It is an explicit
// value advanced per fetch, so no offset or counter lives on the collector
// itself and the same loop serves every paginated entity.
type PageState struct {
	PageSize int
	// Offset is the 1-based page number. The API's offset query parameter
	// carries a page index, not a row offset.
	Offset    int
	Collected int
	Total     int
	// Pages counts pages persisted this run, successes and failures both.
	Pages int
}

// pageFetch retrieves the page identified by the current state.
type pageFetch func(ctx context.Context, state PageState) (*openproject.RequestResult, error)

// collectPaginated pages through one entity type until a stop condition:
// empty element array, cumulative count reaching the server-reported total,
// a failed page (halt, keep already-persisted pages), or the max-pages
// safety cap (warning, protects against total/pagination mismatches looping
// forever). Returns the number of elements seen.
func (c *Collector) collectPaginated(ctx context.Context, entity models.RawEntity, input string, fetch pageFetch) (int, error) {
	state := PageState{PageSize: c.pageSize, Offset: 1}

	for state.Offset <= c.maxPages {
		logging.Info().Str("entity", string(entity)).Int("page", state.Offset).Msg("Collecting page")

		result, err := fetch(ctx, state)
		if err != nil {
			return state.Collected, err
		}

		// Persist before inspecting so no fetched page is ever lost.
		if err := c.storePage(ctx, entity, input, result); err != nil {
			return state.Collected, err
		}
		state.Pages++

		if !result.Success {
			metrics.RecordPage(string(entity), false)
			logging.Error().Str("entity", string(entity)).Int("page", state.Offset).Str("error", result.Err).Msg("Page fetch failed, halting collection")
			return state.Collected, nil
		}
		metrics.RecordPage(string(entity), true)

		var page opmodels.Collection
		if err := json.Unmarshal(result.Payload, &page); err != nil {
			logging.Error().Str("entity", string(entity)).Int("page", state.Offset).Err(err).Msg("Malformed page payload, halting collection")
			return state.Collected, nil
		}

		count := page.Len()
		if count == 0 {
			logging.Info().Str("entity", string(entity)).Int("collected", state.Collected).Msg("No more records to collect")
			return state.Collected, nil
		}

		state.Collected += count
		state.Total = page.Total
		logging.Info().Str("entity", string(entity)).Int("count", count).Int("collected", state.Collected).Msg("Collected page")

		if state.Collected >= state.Total {
			logging.Info().Str("entity", string(entity)).Int("total", state.Total).Msg("Collected all records")
			return state.Collected, nil
		}

		state.Offset++
	}

	logging.Warn().Str("entity", string(entity)).Int("max_pages", c.maxPages).Msg("Reached maximum page limit")
	return state.Collected, nil
}

// countElements reports how many elements a collection payload carries.
// Malformed payloads count zero; the extractor deals with them later.
func countElements(payload []byte) int {
	var page opmodels.Collection
	if err := json.Unmarshal(payload, &page); err != nil {
		return 0
	}
	return page.Len()
}
