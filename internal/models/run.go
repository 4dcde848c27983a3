// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

package models

import (
	"time"

	"github.com/google/uuid"
)

// Pipeline run states. Queued runs exist only in serve mode, between the
// trigger endpoint accepting a request and the worker picking it up.
const (
	RunStatusQueued    = "queued"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Pipeline run modes.
const (
	RunModeFull        = "full"
	RunModeIncremental = "incremental"
)

// PipelineRun records one end-to-end pipeline invocation in
// _worklake_pipeline_runs. The ops API reads these rows to answer status
// queries; the runner owns every write.
type PipelineRun struct {
	ID           uuid.UUID  `json:"id"`
	ConnectionID int64      `json:"connection_id"`
	Mode         string     `json:"mode"`
	Status       string     `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Error        string     `json:"error,omitempty"`

	Collected int `json:"collected"`
	Extracted int `json:"extracted"`
	Converted int `json:"converted"`
}

// CollectionStats counts the elements observed in fetched pages per entity
// kind during one collector run. These are not rows written downstream; the
// extractor decides what survives dedup.
type CollectionStats struct {
	Metadata     int `json:"metadata"`
	Projects     int `json:"projects"`
	Users        int `json:"users"`
	WorkPackages int `json:"work_packages"`
	TimeEntries  int `json:"time_entries"`
	Versions     int `json:"versions"`
}

// Total returns the number of elements collected across all entity kinds.
func (s CollectionStats) Total() int {
	return s.Metadata + s.Projects + s.Users + s.WorkPackages + s.TimeEntries + s.Versions
}

// ExtractionStats counts tool rows written per entity kind in one extractor
// run.
type ExtractionStats struct {
	Metadata     int `json:"metadata"`
	Projects     int `json:"projects"`
	Users        int `json:"users"`
	WorkPackages int `json:"work_packages"`
	TimeEntries  int `json:"time_entries"`
	Versions     int `json:"versions"`
}

// Total returns the number of tool rows written across all entity kinds.
func (s ExtractionStats) Total() int {
	return s.Metadata + s.Projects + s.Users + s.WorkPackages + s.TimeEntries + s.Versions
}

// ConversionStats counts domain rows written per table in one converter run.
type ConversionStats struct {
	Accounts     int `json:"accounts"`
	Boards       int `json:"boards"`
	Issues       int `json:"issues"`
	Worklogs     int `json:"worklogs"`
	BoardIssues  int `json:"board_issues"`
	Sprints      int `json:"sprints"`
	SprintIssues int `json:"sprint_issues"`
}

// Total returns the number of domain rows written across all tables.
func (s ConversionStats) Total() int {
	return s.Accounts + s.Boards + s.Issues + s.Worklogs + s.BoardIssues + s.Sprints + s.SprintIssues
}
