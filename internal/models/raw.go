// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

package models

import (
	"time"
)

// RawRecord represents one fetched API page persisted in a raw table.
//
// Rows are append-only: the collector writes every page it fetches, including
// failed ones, before inspecting the payload. A failed fetch has Data == nil,
// which excludes it from the last-successful-sync cursor (max created_at where
// data is non-null) without losing the evidence that the request happened.
type RawRecord struct {
	ConnectionID int64      `json:"connection_id"`
	Params       string     `json:"params"` // query parameters sent, JSON-encoded
	URL          string     `json:"url"`
	Input        string     `json:"input"` // additional context (e.g. project filter), JSON-encoded
	Data         *string    `json:"data"`  // response payload; nil when the fetch failed
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

// RawEntity identifies one raw table. Each collected entity kind gets its own
// append-only page log.
type RawEntity string

const (
	RawWorkPackages RawEntity = "work_packages"
	RawProjects     RawEntity = "projects"
	RawUsers        RawEntity = "users"
	RawTimeEntries  RawEntity = "time_entries"
	RawStatuses     RawEntity = "statuses"
	RawTypes        RawEntity = "types"
	RawPriorities   RawEntity = "priorities"
	RawActivities   RawEntity = "activities"
	RawVersions     RawEntity = "versions"
)

// AllRawEntities lists every raw table kind in collection order.
var AllRawEntities = []RawEntity{
	RawStatuses,
	RawTypes,
	RawPriorities,
	RawActivities,
	RawProjects,
	RawUsers,
	RawWorkPackages,
	RawTimeEntries,
	RawVersions,
}

// TableName returns the raw table name for this entity kind.
// Raw tables follow the "_raw_openproject_api_<kind>" convention.
func (e RawEntity) TableName() string {
	return "_raw_openproject_api_" + string(e)
}
