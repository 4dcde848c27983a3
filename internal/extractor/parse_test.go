// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

package extractor

import (
	"errors"
	"math"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/worklake/internal/models/openproject"
)

func strPtr(s string) *string {
	return &s
}

func TestParseDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input *string
		want  *float64
	}{
		{"iso hours and minutes", strPtr("PT8H30M"), floatPtr(8.5)},
		{"iso hours only", strPtr("PT2H"), floatPtr(2)},
		{"iso minutes only", strPtr("PT45M"), floatPtr(0.75)},
		{"iso with seconds", strPtr("PT1H30M36S"), floatPtr(1.51)},
		{"iso fractional seconds", strPtr("PT1800.0S"), floatPtr(0.5)},
		{"iso empty components", strPtr("PT"), floatPtr(0)},
		{"clock shape", strPtr("8:30"), floatPtr(8.5)},
		{"bare decimal", strPtr("8.5"), floatPtr(8.5)},
		{"bare integer", strPtr("8"), floatPtr(8)},
		{"day period", strPtr("P1D"), nil},
		{"clock with junk minutes", strPtr("8:xx"), nil},
		{"garbage", strPtr("garbage"), nil},
		{"empty", strPtr(""), nil},
		{"nil", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseDuration(tt.input)
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("parseDuration(%v) = %v, want %v", deref(tt.input), fmtFloat(got), fmtFloat(tt.want))
			}
			if got != nil && math.Abs(*got-*tt.want) > 1e-9 {
				t.Errorf("parseDuration(%v) = %v, want %v", deref(tt.input), *got, *tt.want)
			}
		})
	}
}

func floatPtr(f float64) *float64 {
	return &f
}

func deref(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}

func fmtFloat(f *float64) interface{} {
	if f == nil {
		return "<nil>"
	}
	return *f
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	t.Run("z suffixed", func(t *testing.T) {
		got := parseTimestamp("2026-03-14T09:26:53Z")
		if got == nil {
			t.Fatal("parseTimestamp() = nil, want value")
		}
		if got.Format("2006-01-02 15:04:05") != "2026-03-14 09:26:53" {
			t.Errorf("parseTimestamp() = %v", got)
		}
	})

	t.Run("offset normalized to utc", func(t *testing.T) {
		got := parseTimestamp("2026-03-14T11:26:53+02:00")
		if got == nil {
			t.Fatal("parseTimestamp() = nil, want value")
		}
		if got.Format("15:04:05") != "09:26:53" {
			t.Errorf("parseTimestamp() in UTC = %v, want 09:26:53", got.Format("15:04:05"))
		}
	})

	t.Run("invalid", func(t *testing.T) {
		if got := parseTimestamp("not a time"); got != nil {
			t.Errorf("parseTimestamp() = %v, want nil", got)
		}
	})

	t.Run("empty", func(t *testing.T) {
		if got := parseTimestamp(""); got != nil {
			t.Errorf("parseTimestamp() = %v, want nil", got)
		}
	})
}

func TestParseDate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input *string
		want  string // "" means nil expected
	}{
		{"plain date", strPtr("2026-01-15"), "2026-01-15"},
		{"timestamp reduced to date", strPtr("2026-01-15T10:30:00Z"), "2026-01-15"},
		{"impossible date", strPtr("2026-13-45"), ""},
		{"garbage", strPtr("soon"), ""},
		{"empty", strPtr(""), ""},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseDate(tt.input)
			if tt.want == "" {
				if got != nil {
					t.Errorf("parseDate(%v) = %q, want nil", deref(tt.input), *got)
				}
				return
			}
			if got == nil || *got != tt.want {
				t.Errorf("parseDate(%v) = %v, want %q", deref(tt.input), got, tt.want)
			}
		})
	}
}

func TestLinkID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		link *openproject.Link
		want int64 // 0 means nil expected
	}{
		{"numeric tail", &openproject.Link{Href: strPtr("/api/v3/users/42"), Title: "Jane Doe"}, 42},
		{"single segment", &openproject.Link{Href: strPtr("42")}, 42},
		{"non numeric tail", &openproject.Link{Href: strPtr("/api/v3/work_packages/latest")}, 0},
		{"trailing slash", &openproject.Link{Href: strPtr("/api/v3/users/42/")}, 0},
		{"empty href", &openproject.Link{Href: strPtr("")}, 0},
		{"nil href", &openproject.Link{Title: "unset"}, 0},
		{"nil link", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := linkID(tt.link)
			if tt.want == 0 {
				if got != nil {
					t.Errorf("linkID() = %d, want nil", *got)
				}
				return
			}
			if got == nil || *got != tt.want {
				t.Errorf("linkID() = %v, want %d", got, tt.want)
			}
		})
	}
}

func TestLinkTitle(t *testing.T) {
	t.Parallel()

	if got := linkTitle(nil); got != "" {
		t.Errorf("linkTitle(nil) = %q, want empty", got)
	}
	if got := linkTitle(&openproject.Link{Title: "Jane Doe"}); got != "Jane Doe" {
		t.Errorf("linkTitle() = %q, want Jane Doe", got)
	}
}

func TestCustomFieldsBag(t *testing.T) {
	t.Parallel()

	t.Run("collects only custom fields", func(t *testing.T) {
		element := json.RawMessage(`{"id":1,"subject":"x","customField1":"alpha","customField12":7}`)
		got := customFieldsBag(element)
		if got == nil {
			t.Fatal("customFieldsBag() = nil, want bag")
		}

		var bag map[string]interface{}
		if err := json.Unmarshal([]byte(*got), &bag); err != nil {
			t.Fatalf("bag is not valid JSON: %v", err)
		}
		if len(bag) != 2 {
			t.Errorf("bag has %d keys, want 2: %v", len(bag), bag)
		}
		if bag["customField1"] != "alpha" {
			t.Errorf("customField1 = %v, want alpha", bag["customField1"])
		}
	})

	t.Run("no custom fields", func(t *testing.T) {
		if got := customFieldsBag(json.RawMessage(`{"id":1}`)); got != nil {
			t.Errorf("customFieldsBag() = %q, want nil", *got)
		}
	})

	t.Run("not an object", func(t *testing.T) {
		if got := customFieldsBag(json.RawMessage(`[1,2]`)); got != nil {
			t.Errorf("customFieldsBag() = %q, want nil", *got)
		}
	})
}

func TestBuildWorkPackage(t *testing.T) {
	t.Parallel()

	element := json.RawMessage(`{
		"id": 77,
		"subject": "Fix the flux capacitor",
		"description": {"format": "markdown", "raw": "needs 1.21 gigawatts", "html": "<p>needs 1.21 gigawatts</p>"},
		"startDate": "2026-01-10",
		"dueDate": "2026-02-01",
		"estimatedTime": "PT8H30M",
		"spentTime": "PT2H",
		"createdAt": "2026-01-05T08:00:00Z",
		"updatedAt": "2026-01-20T16:30:00Z",
		"customField3": "delorean",
		"_links": {
			"project": {"href": "/api/v3/projects/3", "title": "Time Travel"},
			"type": {"href": "/api/v3/types/1", "title": "Task"},
			"status": {"href": "/api/v3/statuses/2", "title": "In progress"},
			"priority": {"href": "/api/v3/priorities/9", "title": "High"},
			"assignee": {"href": "/api/v3/users/42", "title": "Jane Doe"},
			"author": {"href": "/api/v3/users/43", "title": "John Roe"},
			"parent": {"href": "/api/v3/work_packages/70", "title": "Umbrella"},
			"version": {"href": "/api/v3/versions/5", "title": "Sprint 12"},
			"category": {"href": "/api/v3/categories/4", "title": "Hardware"}
		}
	}`)

	row, err := buildWorkPackage(3, element)
	if err != nil {
		t.Fatalf("buildWorkPackage() error = %v", err)
	}

	if row.ConnectionID != 3 || row.ID != 77 {
		t.Errorf("identity = (%d, %d), want (3, 77)", row.ConnectionID, row.ID)
	}
	if row.Subject != "Fix the flux capacitor" {
		t.Errorf("Subject = %q", row.Subject)
	}
	if row.Description != "needs 1.21 gigawatts" {
		t.Errorf("Description = %q, want raw text", row.Description)
	}
	if row.StartDate == nil || *row.StartDate != "2026-01-10" {
		t.Errorf("StartDate = %v, want 2026-01-10", row.StartDate)
	}
	if row.EstimatedHours == nil || *row.EstimatedHours != 8.5 {
		t.Errorf("EstimatedHours = %v, want 8.5", row.EstimatedHours)
	}
	if row.SpentHours == nil || *row.SpentHours != 2 {
		t.Errorf("SpentHours = %v, want 2", row.SpentHours)
	}
	if row.ProjectID == nil || *row.ProjectID != 3 || row.ProjectName != "Time Travel" {
		t.Errorf("project = (%v, %q), want (3, Time Travel)", row.ProjectID, row.ProjectName)
	}
	if row.AssigneeID == nil || *row.AssigneeID != 42 || row.AssigneeName != "Jane Doe" {
		t.Errorf("assignee = (%v, %q), want (42, Jane Doe)", row.AssigneeID, row.AssigneeName)
	}
	if row.AssigneeLogin != "" {
		t.Errorf("AssigneeLogin = %q, want empty before resolution", row.AssigneeLogin)
	}
	if row.ParentID == nil || *row.ParentID != 70 {
		t.Errorf("ParentID = %v, want 70", row.ParentID)
	}
	if row.VersionID == nil || *row.VersionID != 5 || row.VersionName != "Sprint 12" {
		t.Errorf("version = (%v, %q), want (5, Sprint 12)", row.VersionID, row.VersionName)
	}
	if row.ResponsibleID != nil {
		t.Errorf("ResponsibleID = %v, want nil for absent link", row.ResponsibleID)
	}
	if row.CustomFields == nil {
		t.Fatal("CustomFields = nil, want bag with customField3")
	}
	if row.AllFields != string(element) {
		t.Error("AllFields does not preserve the element verbatim")
	}
}

func TestBuildWorkPackageBareStringDescription(t *testing.T) {
	t.Parallel()

	row, err := buildWorkPackage(1, json.RawMessage(`{"id":5,"description":"plain text"}`))
	if err != nil {
		t.Fatalf("buildWorkPackage() error = %v", err)
	}
	if row.Description != "plain text" {
		t.Errorf("Description = %q, want plain text", row.Description)
	}
}

func TestBuildWorkPackageRejectsBadElements(t *testing.T) {
	t.Parallel()

	if _, err := buildWorkPackage(1, json.RawMessage(`{"subject":"no id"}`)); !errors.Is(err, errMissingID) {
		t.Errorf("missing id error = %v, want errMissingID", err)
	}
	if _, err := buildWorkPackage(1, json.RawMessage(`{"id":"seventy-seven"}`)); !errors.Is(err, errDecode) {
		t.Errorf("type mismatch error = %v, want errDecode", err)
	}
}

func TestBuildTimeEntry(t *testing.T) {
	t.Parallel()

	element := json.RawMessage(`{
		"id": 9,
		"hours": "PT1H30M",
		"comment": {"format": "plain", "raw": "pair session"},
		"spentOn": "2026-02-03",
		"createdAt": "2026-02-03T17:00:00Z",
		"_links": {
			"workPackage": {"href": "/api/v3/work_packages/77", "title": "Fix the flux capacitor"},
			"user": {"href": "/api/v3/users/42", "title": "Jane Doe"},
			"activity": {"href": "/api/v3/time_entries/activities/2", "title": "Development"},
			"project": {"href": "/api/v3/projects/3", "title": "Time Travel"}
		}
	}`)

	row, err := buildTimeEntry(3, element)
	if err != nil {
		t.Fatalf("buildTimeEntry() error = %v", err)
	}
	if row.Hours == nil || *row.Hours != 1.5 {
		t.Errorf("Hours = %v, want 1.5", row.Hours)
	}
	if row.Comment != "pair session" {
		t.Errorf("Comment = %q", row.Comment)
	}
	if row.SpentOn == nil || *row.SpentOn != "2026-02-03" {
		t.Errorf("SpentOn = %v, want 2026-02-03", row.SpentOn)
	}
	if row.WorkPackageID == nil || *row.WorkPackageID != 77 {
		t.Errorf("WorkPackageID = %v, want 77", row.WorkPackageID)
	}
	if row.UserLogin != "" {
		t.Errorf("UserLogin = %q, want empty before resolution", row.UserLogin)
	}
}

func TestBuildProject(t *testing.T) {
	t.Parallel()

	element := json.RawMessage(`{
		"id": 3,
		"identifier": "time-travel",
		"name": "Time Travel",
		"description": {"format": "markdown", "raw": "flux experiments"},
		"status": "on track",
		"active": true,
		"public": false,
		"createdAt": "2026-01-05T08:00:00Z",
		"_links": {
			"parent": {"href": "/api/v3/projects/1", "title": "Research"}
		}
	}`)

	row, err := buildProject(3, element)
	if err != nil {
		t.Fatalf("buildProject() error = %v", err)
	}
	if row.Identifier != "time-travel" || row.Name != "Time Travel" {
		t.Errorf("project = (%q, %q)", row.Identifier, row.Name)
	}
	if row.Description != "flux experiments" {
		t.Errorf("Description = %q", row.Description)
	}
	if !row.Active || row.IsPublic {
		t.Errorf("flags = (active=%v, public=%v), want (true, false)", row.Active, row.IsPublic)
	}
	if row.ParentID == nil || *row.ParentID != 1 {
		t.Errorf("ParentID = %v, want 1", row.ParentID)
	}
}

func TestBuildVersion(t *testing.T) {
	t.Parallel()

	element := json.RawMessage(`{
		"id": 5,
		"name": "Sprint 12",
		"status": "open",
		"sharing": "none",
		"startDate": "2026-02-01",
		"endDate": "2026-02-14",
		"_links": {
			"definingProject": {"href": "/api/v3/projects/3", "title": "Time Travel"}
		}
	}`)

	row, err := buildVersion(3, element)
	if err != nil {
		t.Fatalf("buildVersion() error = %v", err)
	}
	if row.Name != "Sprint 12" || row.Status != "open" {
		t.Errorf("version = (%q, %q)", row.Name, row.Status)
	}
	if row.DueDate == nil || *row.DueDate != "2026-02-14" {
		t.Errorf("DueDate = %v, want endDate value", row.DueDate)
	}
	if row.ProjectID == nil || *row.ProjectID != 3 {
		t.Errorf("ProjectID = %v, want 3", row.ProjectID)
	}
}

func TestBuildStatus(t *testing.T) {
	t.Parallel()

	row, err := buildStatus(1, json.RawMessage(`{"id":2,"name":"Closed","isClosed":true,"position":14,"color":"#35c53f"}`))
	if err != nil {
		t.Fatalf("buildStatus() error = %v", err)
	}
	if !row.IsClosed || row.Name != "Closed" {
		t.Errorf("status = (%q, closed=%v), want (Closed, true)", row.Name, row.IsClosed)
	}
	if row.Position == nil || *row.Position != 14 {
		t.Errorf("Position = %v, want 14", row.Position)
	}
}
