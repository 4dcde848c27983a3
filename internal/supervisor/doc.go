// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

/*
Package supervisor provides suture v4 process supervision for `worklake serve`.

Serve mode runs two long-lived services: the ops HTTP server and the pipeline
run worker. They sit under separate child supervisors so a crashing pipeline
stage never takes the trigger/status surface down with it:

	RootSupervisor ("worklake")
	├── PipelineSupervisor ("pipeline-layer")
	│   └── run worker (executes queued trigger requests sequentially)
	└── APISupervisor ("api-layer")
	    └── HTTP server (healthz, metrics, status, trigger)

Crashed services restart with exponential backoff; supervisor events are
logged through the global zerolog logger via the slog bridge in
internal/logging.

One-shot commands (collect, extract, convert, run, migrate) never build a
tree; supervision only pays for itself on the long-lived path.
*/
package supervisor
