// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

package testinfra

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/worklake/internal/collector"
	"github.com/tomtom215/worklake/internal/config"
	"github.com/tomtom215/worklake/internal/converter"
	"github.com/tomtom215/worklake/internal/database"
	"github.com/tomtom215/worklake/internal/extractor"
	"github.com/tomtom215/worklake/internal/models"
	"github.com/tomtom215/worklake/internal/openproject"
	"github.com/tomtom215/worklake/internal/pipeline"
)

// seedFixtures loads a small but fully linked installation into the fake:
// two projects, two users, three work packages (one versioned), one time
// entry, and the dictionary endpoints. Fifteen elements in total.
func seedFixtures(fake *FakeOpenProject) {
	fake.SetElements("/api/v3/statuses",
		`{"id":1,"name":"New","isClosed":false,"isDefault":true,"color":"#1098AD"}`,
		`{"id":12,"name":"Closed","isClosed":true,"color":"#19AB27"}`,
	)
	fake.SetElements("/api/v3/types",
		`{"id":1,"name":"Task","color":"#1A67A3","isDefault":true}`,
		`{"id":7,"name":"Bug","color":"#E44D42"}`,
	)
	fake.SetElements("/api/v3/priorities",
		`{"id":8,"name":"Normal","isDefault":true,"isActive":true}`,
	)
	fake.SetElements("/api/v3/time_entries/activities",
		`{"id":1,"name":"Development","isDefault":true,"isActive":true}`,
	)
	fake.SetElements("/api/v3/projects",
		`{"id":3,"identifier":"website","name":"Website Relaunch","active":true,"public":false,"createdAt":"2026-01-05T08:00:00Z","updatedAt":"2026-03-01T10:00:00Z","_links":{"self":{"href":"/api/v3/projects/3","title":"Website Relaunch"}}}`,
		`{"id":4,"identifier":"mobile","name":"Mobile App","active":true,"public":true,"createdAt":"2026-01-20T08:00:00Z","updatedAt":"2026-02-14T09:30:00Z","_links":{"self":{"href":"/api/v3/projects/4","title":"Mobile App"},"parent":{"href":"/api/v3/projects/3","title":"Website Relaunch"}}}`,
	)
	fake.SetElements("/api/v3/users",
		`{"id":4,"login":"ada","firstName":"Ada","lastName":"Byron","name":"Ada Byron","email":"ada@example.com","status":"active","createdAt":"2025-11-02T12:00:00Z","updatedAt":"2026-02-01T12:00:00Z"}`,
		`{"id":5,"login":"greta","firstName":"Greta","lastName":"Larsson","name":"Greta Larsson","email":"greta@example.com","admin":true,"status":"active","createdAt":"2025-11-02T12:05:00Z","updatedAt":"2026-02-01T12:00:00Z"}`,
	)
	fake.SetElements("/api/v3/work_packages",
		`{"id":101,"lockVersion":3,"subject":"Design landing page","startDate":"2026-03-02","dueDate":"2026-03-13","estimatedTime":"PT16H","percentageDone":40,"createdAt":"2026-02-20T09:00:00Z","updatedAt":"2026-03-05T16:20:00Z","_links":{"self":{"href":"/api/v3/work_packages/101"},"project":{"href":"/api/v3/projects/3","title":"Website Relaunch"},"type":{"href":"/api/v3/types/1","title":"Task"},"status":{"href":"/api/v3/statuses/1","title":"New"},"priority":{"href":"/api/v3/priorities/8","title":"Normal"},"author":{"href":"/api/v3/users/4","title":"Ada Byron"},"assignee":{"href":"/api/v3/users/5","title":"Greta Larsson"},"version":{"href":"/api/v3/versions/11","title":"March Sprint"}}}`,
		`{"id":102,"lockVersion":9,"subject":"Fix header overflow","dueDate":"2026-03-06","estimatedTime":"PT4H","percentageDone":100,"createdAt":"2026-02-25T11:00:00Z","updatedAt":"2026-03-06T08:10:00Z","_links":{"self":{"href":"/api/v3/work_packages/102"},"project":{"href":"/api/v3/projects/3","title":"Website Relaunch"},"type":{"href":"/api/v3/types/7","title":"Bug"},"status":{"href":"/api/v3/statuses/12","title":"Closed"},"priority":{"href":"/api/v3/priorities/8","title":"Normal"},"author":{"href":"/api/v3/users/5","title":"Greta Larsson"}}}`,
		`{"id":103,"lockVersion":1,"subject":"Sketch onboarding flow","createdAt":"2026-03-01T14:00:00Z","updatedAt":"2026-03-01T14:00:00Z","_links":{"self":{"href":"/api/v3/work_packages/103"},"project":{"href":"/api/v3/projects/4","title":"Mobile App"},"type":{"href":"/api/v3/types/1","title":"Task"},"status":{"href":"/api/v3/statuses/1","title":"New"},"priority":{"href":"/api/v3/priorities/8","title":"Normal"},"author":{"href":"/api/v3/users/4","title":"Ada Byron"}}}`,
	)
	fake.SetElements("/api/v3/time_entries",
		`{"id":201,"spentOn":"2026-03-04","hours":"PT2H30M","createdAt":"2026-03-04T17:00:00Z","updatedAt":"2026-03-04T17:00:00Z","_links":{"self":{"href":"/api/v3/time_entries/201"},"project":{"href":"/api/v3/projects/3","title":"Website Relaunch"},"workPackage":{"href":"/api/v3/work_packages/101","title":"Design landing page"},"user":{"href":"/api/v3/users/5","title":"Greta Larsson"},"activity":{"href":"/api/v3/time_entries/activities/1","title":"Development"}}}`,
	)
	fake.SetElements("/api/v3/versions",
		`{"id":11,"name":"March Sprint","status":"open","sharing":"system","startDate":"2026-03-02","endDate":"2026-03-15","createdAt":"2026-02-15T08:00:00Z","updatedAt":"2026-02-15T08:00:00Z","_links":{"self":{"href":"/api/v3/versions/11"},"definingProject":{"href":"/api/v3/projects/3","title":"Website Relaunch"}}}`,
	)
}

// openWarehouse creates a throwaway DuckDB warehouse with the domain tables
// in place, as a standalone deployment would have after `migrate --domain`.
func openWarehouse(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New(&config.DatabaseConfig{
		Path:      filepath.Join(t.TempDir(), "e2e.duckdb"),
		MaxMemory: "512MB",
		Threads:   2,
	})
	if err != nil {
		t.Fatalf("database.New() error = %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("db.Close() error = %v", err)
		}
	})

	if err := db.EnsureDomainTables(); err != nil {
		t.Fatalf("EnsureDomainTables() error = %v", err)
	}
	return db
}

func newTestRunner(cfg *config.OpenProjectConfig, db *database.DB) *pipeline.Runner {
	client := openproject.New(cfg)
	return pipeline.New(
		collector.New(client, db, cfg),
		extractor.New(db, cfg.ConnectionID, 50),
		converter.New(db, cfg),
		db,
		cfg.ConnectionID,
	)
}

// expectedToolRows is what seedFixtures should land in the tool layer.
var expectedToolRows = map[string]int{
	database.ToolWorkPackagesTable: 3,
	database.ToolProjectsTable:     2,
	database.ToolUsersTable:        2,
	database.ToolTimeEntriesTable:  1,
	database.ToolVersionsTable:     1,
	database.ToolStatusesTable:     2,
	database.ToolTypesTable:        2,
	database.ToolPrioritiesTable:   1,
	database.ToolActivitiesTable:   1,
}

func assertToolRows(ctx context.Context, t *testing.T, db *database.DB, connectionID int64) {
	t.Helper()
	for table, want := range expectedToolRows {
		got, err := db.CountToolRows(ctx, table, connectionID)
		if err != nil {
			t.Fatalf("CountToolRows(%s) error = %v", table, err)
		}
		if got != want {
			t.Errorf("%s rows = %d, want %d", table, got, want)
		}
	}
}

func assertDomainRows(ctx context.Context, t *testing.T, db *database.DB, connectionID int64) {
	t.Helper()
	counts := []struct {
		table  string
		column string
		kind   string
		want   int
	}{
		{"issues", "id", models.KindWorkPackages, 3},
		{"boards", "id", models.KindProjects, 2},
		{"accounts", "id", models.KindUsers, 2},
		{"issue_worklogs", "id", models.KindTimeEntries, 1},
		{"sprints", "id", models.KindVersions, 1},
		{"board_issues", "board_id", models.KindProjects, 3},
		{"sprint_issues", "sprint_id", models.KindVersions, 1},
	}
	for _, c := range counts {
		prefix := models.DomainIDPrefix(c.kind, connectionID)
		got, err := db.CountDomainRowsByPrefix(ctx, c.table, c.column, prefix)
		if err != nil {
			t.Fatalf("CountDomainRowsByPrefix(%s) error = %v", c.table, err)
		}
		if got != c.want {
			t.Errorf("%s rows = %d, want %d", c.table, got, c.want)
		}
	}
}

// TestPipelineEndToEnd runs collect, extract, and convert against the fake
// API and a real warehouse file, then checks every layer landed.
func TestPipelineEndToEnd(t *testing.T) {
	fake := NewFakeOpenProject()
	defer fake.Close()
	seedFixtures(fake)

	db := openWarehouse(t)
	cfg := fake.ClientConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	report, err := newTestRunner(cfg, db).Run(ctx, pipeline.Options{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Err != nil {
		t.Fatalf("report.Err = %v", report.Err)
	}

	if got, want := report.Collect.Records, 15; got != want {
		t.Errorf("collected = %d, want %d", got, want)
	}

	// Page size 2 splits the three work packages across two pages.
	if got := fake.RequestCount("/api/v3/work_packages"); got != 2 {
		t.Errorf("work package requests = %d, want 2 pages", got)
	}

	assertToolRows(ctx, t, db, cfg.ConnectionID)
	assertDomainRows(ctx, t, db, cfg.ConnectionID)

	runs, err := db.ListPipelineRuns(ctx, cfg.ConnectionID, 5)
	if err != nil {
		t.Fatalf("ListPipelineRuns() error = %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	if runs[0].Status != models.RunStatusCompleted {
		t.Errorf("run status = %q, want %q", runs[0].Status, models.RunStatusCompleted)
	}
	if runs[0].Mode != models.RunModeIncremental {
		t.Errorf("run mode = %q, want %q", runs[0].Mode, models.RunModeIncremental)
	}
}

// TestPipelineRerunIsIdempotent re-runs the whole pipeline over the same
// fixtures and expects identical row counts: the raw layer grows, but the
// tool and domain layers replace rather than accumulate.
func TestPipelineRerunIsIdempotent(t *testing.T) {
	fake := NewFakeOpenProject()
	defer fake.Close()
	seedFixtures(fake)

	db := openWarehouse(t)
	cfg := fake.ClientConfig()
	runner := newTestRunner(cfg, db)

	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()

	for i := 0; i < 2; i++ {
		if _, err := runner.Run(ctx, pipeline.Options{}); err != nil {
			t.Fatalf("Run() #%d error = %v", i+1, err)
		}
	}

	assertToolRows(ctx, t, db, cfg.ConnectionID)
	assertDomainRows(ctx, t, db, cfg.ConnectionID)

	runs, err := db.ListPipelineRuns(ctx, cfg.ConnectionID, 5)
	if err != nil {
		t.Fatalf("ListPipelineRuns() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(runs))
	}
	for _, run := range runs {
		if run.Status != models.RunStatusCompleted {
			t.Errorf("run %s status = %q, want %q", run.ID, run.Status, models.RunStatusCompleted)
		}
	}
}

// rawSink is a throwaway RawStore for collector-only tests.
type rawSink struct {
	mu    sync.Mutex
	pages int
}

func (s *rawSink) InsertRawRecord(context.Context, models.RawEntity, *models.RawRecord) error {
	s.mu.Lock()
	s.pages++
	s.mu.Unlock()
	return nil
}

func (s *rawSink) LastSuccessfulSync(context.Context, models.RawEntity, int64) (*time.Time, error) {
	return nil, nil
}

// TestCollectorRetriesRateLimitedPage injects a 429 on the first request and
// expects the collector to retry through it and still collect everything.
func TestCollectorRetriesRateLimitedPage(t *testing.T) {
	fake := NewFakeOpenProject()
	defer fake.Close()
	seedFixtures(fake)
	fake.FailNext(1, http.StatusTooManyRequests)

	cfg := fake.ClientConfig()
	col := collector.New(openproject.New(cfg), &rawSink{}, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	stats, err := col.Run(ctx, collector.Options{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got, want := stats.Total(), 15; got != want {
		t.Errorf("collected = %d, want %d", got, want)
	}

	// Statuses are fetched first: one rate-limited attempt plus the retry.
	if got := fake.RequestCount("/api/v3/statuses"); got != 2 {
		t.Errorf("statuses requests = %d, want 2", got)
	}
}

func TestFakeOpenProjectRejectsBadCredentials(t *testing.T) {
	t.Parallel()

	fake := NewFakeOpenProject()
	defer fake.Close()
	fake.SetElements("/api/v3/projects", `{"id":1}`)

	req, err := http.NewRequest(http.MethodGet, fake.BaseURL()+"/api/v3/projects", http.NoBody)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.SetBasicAuth("apikey", "wrong-key")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "Unauthenticated") {
		t.Errorf("body = %s, want an Unauthenticated error", body)
	}
}

func TestFakeOpenProjectPaginates(t *testing.T) {
	t.Parallel()

	fake := NewFakeOpenProject()
	defer fake.Close()
	fake.SetElements("/api/v3/projects",
		`{"id":1}`, `{"id":2}`, `{"id":3}`, `{"id":4}`, `{"id":5}`,
	)

	get := func(page int) string {
		url := fmt.Sprintf("%s/api/v3/projects?pageSize=2&offset=%d", fake.BaseURL(), page)
		req, err := http.NewRequest(http.MethodGet, url, http.NoBody)
		if err != nil {
			t.Fatalf("NewRequest() error = %v", err)
		}
		req.SetBasicAuth("apikey", FakeAPIKey)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("Do() error = %v", err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return string(body)
	}

	if body := get(3); !strings.Contains(body, `"count":1`) || !strings.Contains(body, `"total":5`) {
		t.Errorf("page 3 = %s, want the final single-element page of 5", body)
	}
	if body := get(4); !strings.Contains(body, `"count":0`) {
		t.Errorf("page 4 = %s, want an empty page", body)
	}
}
