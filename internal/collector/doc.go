// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

/*
Package collector pages through the OpenProject API and lands every response
in the raw layer of the warehouse.

This is the first pipeline stage. It never parses entities beyond what
pagination needs (element count and server-reported total); flattening raw
payloads into typed rows is the extractor's job.

Key Components:

  - Collector: drives one collection run for one connection
  - PageState: explicit per-entity pagination state, advanced per fetch
  - Options: per-run scoping (project ids, incremental flag)

Run returns models.CollectionStats with the records seen per entity.

Collection Order:

 1. Metadata: statuses, types, priorities (stored even when the fetch fails),
    then activities via candidate endpoints (stored only on success)
 2. Projects
 3. Users (may fail with 403 for non-admin keys; the failure row is kept)
 4. Work packages, per scoped project or one global pass
 5. Time entries, one global pass
 6. Versions, per scoped project or the global endpoint

Durability:

Every page response, success or failure, is persisted before pagination logic
inspects it. A failed page halts that entity's collection but already-stored
pages survive, and failures land with a NULL payload so the sync cursor only
advances on success.

Incremental Mode:

The collector reads the last successful sync time and logs it, nothing more.
Upstream update-time filters are unreliable across OpenProject versions, so
every run re-collects fully; staleness is controlled by the extractor's and
converter's replace semantics.

Usage Example:

	client := openproject.New(&cfg.OpenProject)
	col := collector.New(client, db, &cfg.OpenProject)
	stats, err := col.Run(ctx, collector.Options{Incremental: true})
	if err != nil {
	    return err
	}
	logging.Info().Int("records", stats.Total()).Msg("collected")

Thread Safety: a Collector runs one collection at a time; the pipeline runner
serializes runs per connection.
*/
package collector
