// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

/*
Package models defines the data structures shared across the Worklake pipeline.

The pipeline moves data through three layers, and this package holds the row
types for each of them:

 1. Raw layer: RawRecord, one immutable row per API page fetched, payload
    stored verbatim. Failed fetches are recorded with a NULL payload so the
    collection history stays complete.

 2. Tool layer: ToolWorkPackage, ToolProject, ToolUser, ToolTimeEntry and the
    metadata kinds (ToolStatus, ToolType, ToolPriority, ToolActivity,
    ToolVersion): typed rows normalized from raw payloads, uniquely keyed by
    (connection_id, native id).

 3. Domain layer: Issue, Board, Account, IssueWorklog, Sprint plus the
    relationship rows BoardIssue and SprintIssue, the cross-tool schema
    consumed by analytics. Domain rows carry synthetic ids of the form
    "openproject:<Kind>:<connection>:<native id>" so multiple tools and
    connections can share the same tables without colliding.

Wire-format structs for the upstream OpenProject API live in the
models/openproject subpackage; this package never depends on HTTP concerns.
*/
package models
