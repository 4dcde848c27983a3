// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

package openproject

// Status is one work-package status from /api/v3/statuses.
type Status struct {
	ID               int64    `json:"id"`
	Name             string   `json:"name"`
	IsClosed         bool     `json:"isClosed"`
	IsDefault        bool     `json:"isDefault"`
	IsReadonly       bool     `json:"isReadonly"`
	Position         *int64   `json:"position"`
	DefaultDoneRatio *float64 `json:"defaultDoneRatio"`
	Color            string   `json:"color"`
}

// Type is one work-package type from /api/v3/types.
type Type struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Color       string `json:"color"`
	Position    *int64 `json:"position"`
	IsDefault   bool   `json:"isDefault"`
	IsMilestone bool   `json:"isMilestone"`
}

// Priority is one issue priority from /api/v3/priorities.
type Priority struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Position  *int64 `json:"position"`
	Color     string `json:"color"`
	IsDefault bool   `json:"isDefault"`
	IsActive  bool   `json:"isActive"`
}

// Activity is one time-entry activity. The endpoint moved between versions,
// so the collector tries /api/v3/time_entries/activities first and falls
// back to /api/v3/activities.
type Activity struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Position  *int64 `json:"position"`
	IsDefault bool   `json:"isDefault"`
	IsActive  bool   `json:"isActive"`
}
