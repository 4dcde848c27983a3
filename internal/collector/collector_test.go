// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/worklake/internal/config"
	"github.com/tomtom215/worklake/internal/models"
	"github.com/tomtom215/worklake/internal/openproject"
)

// fakeStore is an in-memory RawStore recording everything the collector writes.
type fakeStore struct {
	records   map[models.RawEntity][]*models.RawRecord
	lastSync  map[models.RawEntity]*time.Time
	syncCalls []models.RawEntity
	insertErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records:  make(map[models.RawEntity][]*models.RawRecord),
		lastSync: make(map[models.RawEntity]*time.Time),
	}
}

func (s *fakeStore) InsertRawRecord(_ context.Context, entity models.RawEntity, rec *models.RawRecord) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.records[entity] = append(s.records[entity], rec)
	return nil
}

func (s *fakeStore) LastSuccessfulSync(_ context.Context, entity models.RawEntity, _ int64) (*time.Time, error) {
	s.syncCalls = append(s.syncCalls, entity)
	return s.lastSync[entity], nil
}

// collectionJSON builds a collection payload with count elements.
func collectionJSON(total, count int) string {
	elements := make([]string, count)
	for i := range elements {
		elements[i] = fmt.Sprintf(`{"id":%d}`, i+1)
	}
	return fmt.Sprintf(`{"_type":"Collection","total":%d,"count":%d,"_embedded":{"elements":[%s]}}`,
		total, count, strings.Join(elements, ","))
}

func newTestCollector(store *fakeStore, serverURL string, pageSize, maxPages int) *Collector {
	cfg := &config.OpenProjectConfig{
		BaseURL:       serverURL,
		APIKey:        "test-key",
		ConnectionID:  7,
		PageSize:      pageSize,
		MaxPages:      maxPages,
		RateLimitRPM:  6000,
		RetryAttempts: 1,
		Timeout:       5 * time.Second,
	}
	return New(openproject.New(cfg), store, cfg)
}

// TestCollectWorkPackagesStopsAtTotal checks the canonical termination case:
// total=37 with pageSize=10 takes exactly 4 requests, stopping on the page
// whose cumulative count reaches the total.
func TestCollectWorkPackagesStopsAtTotal(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		page, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		remaining := 37 - (page-1)*10
		if remaining > 10 {
			remaining = 10
		}
		fmt.Fprint(w, collectionJSON(37, remaining))
	}))
	defer server.Close()

	store := newFakeStore()
	col := newTestCollector(store, server.URL, 10, 1000)

	collected, err := col.collectWorkPackages(context.Background(), Options{}, nil)
	if err != nil {
		t.Fatalf("collectWorkPackages() error = %v", err)
	}
	if collected != 37 {
		t.Errorf("collected = %d, want 37", collected)
	}
	if requests != 4 {
		t.Errorf("requests = %d, want exactly 4", requests)
	}

	rows := store.records[models.RawWorkPackages]
	if len(rows) != 4 {
		t.Fatalf("stored rows = %d, want 4", len(rows))
	}
	for i, row := range rows {
		if row.Data == nil {
			t.Errorf("row %d Data = nil, want payload", i)
		}
		if row.ConnectionID != 7 {
			t.Errorf("row %d ConnectionID = %d, want 7", i, row.ConnectionID)
		}
		if row.Input != `{"project_id":null}` {
			t.Errorf("row %d Input = %q, want global scope tag", i, row.Input)
		}
		wantOffset := fmt.Sprintf(`"offset":"%d"`, i+1)
		if !strings.Contains(row.Params, wantOffset) {
			t.Errorf("row %d Params = %q, want %s", i, row.Params, wantOffset)
		}
	}
}

func TestCollectWorkPackagesStopsOnEmptyPage(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		fmt.Fprint(w, collectionJSON(0, 0))
	}))
	defer server.Close()

	store := newFakeStore()
	col := newTestCollector(store, server.URL, 10, 1000)

	collected, err := col.collectWorkPackages(context.Background(), Options{}, nil)
	if err != nil {
		t.Fatalf("collectWorkPackages() error = %v", err)
	}
	if collected != 0 {
		t.Errorf("collected = %d, want 0", collected)
	}
	if requests != 1 {
		t.Errorf("requests = %d, want 1", requests)
	}
	if got := len(store.records[models.RawWorkPackages]); got != 1 {
		t.Errorf("stored rows = %d, want 1 (empty page is still persisted)", got)
	}
}

// TestCollectWorkPackagesHaltsOnFailedPage checks that a failed page is
// persisted with a NULL payload, halts the entity, and keeps earlier pages.
func TestCollectWorkPackagesHaltsOnFailedPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("offset") == "1" {
			fmt.Fprint(w, collectionJSON(1000, 10))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	store := newFakeStore()
	col := newTestCollector(store, server.URL, 10, 1000)

	collected, err := col.collectWorkPackages(context.Background(), Options{}, nil)
	if err != nil {
		t.Fatalf("collectWorkPackages() error = %v, want halt without error", err)
	}
	if collected != 10 {
		t.Errorf("collected = %d, want 10 from the surviving page", collected)
	}

	rows := store.records[models.RawWorkPackages]
	if len(rows) != 2 {
		t.Fatalf("stored rows = %d, want 2 (success then failure)", len(rows))
	}
	if rows[0].Data == nil {
		t.Error("first row Data = nil, want payload")
	}
	if rows[1].Data != nil {
		t.Error("failed row Data != nil, want NULL payload")
	}
}

func TestCollectWorkPackagesMaxPagesCap(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		fmt.Fprint(w, collectionJSON(100000, 10))
	}))
	defer server.Close()

	store := newFakeStore()
	col := newTestCollector(store, server.URL, 10, 2)

	collected, err := col.collectWorkPackages(context.Background(), Options{}, nil)
	if err != nil {
		t.Fatalf("collectWorkPackages() error = %v, want cap without error", err)
	}
	if requests != 2 {
		t.Errorf("requests = %d, want 2 (safety cap)", requests)
	}
	if collected != 20 {
		t.Errorf("collected = %d, want 20", collected)
	}
}

func TestCollectWorkPackagesScopedProject(t *testing.T) {
	var gotFilters string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotFilters = r.URL.Query().Get("filters")
		fmt.Fprint(w, collectionJSON(1, 1))
	}))
	defer server.Close()

	store := newFakeStore()
	col := newTestCollector(store, server.URL, 10, 1000)

	projectID := int64(9)
	if _, err := col.collectWorkPackages(context.Background(), Options{}, &projectID); err != nil {
		t.Fatalf("collectWorkPackages() error = %v", err)
	}

	wantFilters := `[{"project":{"operator":"=","values":["9"]}}]`
	if gotFilters != wantFilters {
		t.Errorf("filters = %q, want %q", gotFilters, wantFilters)
	}

	rows := store.records[models.RawWorkPackages]
	if len(rows) != 1 || rows[0].Input != `{"project_id":9}` {
		t.Errorf("stored Input = %q, want project scope tag", rows[0].Input)
	}
}

// TestCollectMetadata checks that dictionary endpoints are stored success or
// failure, while activities are stored only when a candidate endpoint works.
func TestCollectMetadata(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/statuses", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, collectionJSON(2, 2))
	})
	mux.HandleFunc("/api/v3/types", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/api/v3/priorities", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, collectionJSON(3, 3))
	})
	mux.HandleFunc("/api/v3/time_entries/activities", http.NotFound)
	mux.HandleFunc("/api/v3/activities", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, collectionJSON(4, 4))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	store := newFakeStore()
	col := newTestCollector(store, server.URL, 10, 1000)

	total, err := col.collectMetadata(context.Background())
	if err != nil {
		t.Fatalf("collectMetadata() error = %v", err)
	}
	if total != 9 {
		t.Errorf("total = %d, want 9 (2 statuses + 3 priorities + 4 activities)", total)
	}

	if rows := store.records[models.RawStatuses]; len(rows) != 1 || rows[0].Data == nil {
		t.Errorf("statuses rows = %+v, want one stored success", rows)
	}
	if rows := store.records[models.RawTypes]; len(rows) != 1 || rows[0].Data != nil {
		t.Errorf("types rows = %+v, want one stored failure with NULL payload", rows)
	}
	if rows := store.records[models.RawPriorities]; len(rows) != 1 || rows[0].Data == nil {
		t.Errorf("priorities rows = %+v, want one stored success", rows)
	}

	activityRows := store.records[models.RawActivities]
	if len(activityRows) != 1 || activityRows[0].Data == nil {
		t.Fatalf("activities rows = %+v, want one stored success", activityRows)
	}
	if !strings.HasSuffix(activityRows[0].URL, "/api/v3/activities") {
		t.Errorf("activities URL = %q, want fallback endpoint", activityRows[0].URL)
	}
}

func TestCollectMetadataActivitiesUnavailable(t *testing.T) {
	mux := http.NewServeMux()
	ok := func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, collectionJSON(1, 1)) }
	mux.HandleFunc("/api/v3/statuses", ok)
	mux.HandleFunc("/api/v3/types", ok)
	mux.HandleFunc("/api/v3/priorities", ok)
	server := httptest.NewServer(mux)
	defer server.Close()

	store := newFakeStore()
	col := newTestCollector(store, server.URL, 10, 1000)

	total, err := col.collectMetadata(context.Background())
	if err != nil {
		t.Fatalf("collectMetadata() error = %v, want missing activities tolerated", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if rows := store.records[models.RawActivities]; len(rows) != 0 {
		t.Errorf("activities rows = %d, want 0 (failures are not persisted)", len(rows))
	}
}

// TestRunScopedProjects runs a full collection scoped to two projects and
// checks the per-project passes plus the single global time-entries pass.
func TestRunScopedProjects(t *testing.T) {
	hits := make(map[string]int)
	var wpFilters []string

	mux := http.NewServeMux()
	single := func(w http.ResponseWriter, r *http.Request) {
		hits[r.URL.Path]++
		fmt.Fprint(w, collectionJSON(1, 1))
	}
	mux.HandleFunc("/api/v3/statuses", single)
	mux.HandleFunc("/api/v3/types", single)
	mux.HandleFunc("/api/v3/priorities", single)
	mux.HandleFunc("/api/v3/time_entries/activities", single)
	mux.HandleFunc("/api/v3/projects", func(w http.ResponseWriter, r *http.Request) {
		hits[r.URL.Path]++
		fmt.Fprint(w, collectionJSON(2, 2))
	})
	mux.HandleFunc("/api/v3/users", single)
	mux.HandleFunc("/api/v3/work_packages", func(w http.ResponseWriter, r *http.Request) {
		hits[r.URL.Path]++
		wpFilters = append(wpFilters, r.URL.Query().Get("filters"))
		fmt.Fprint(w, collectionJSON(2, 2))
	})
	mux.HandleFunc("/api/v3/time_entries", single)
	mux.HandleFunc("/api/v3/projects/3/versions", single)
	mux.HandleFunc("/api/v3/projects/5/versions", single)
	server := httptest.NewServer(mux)
	defer server.Close()

	store := newFakeStore()
	col := newTestCollector(store, server.URL, 10, 1000)

	stats, err := col.Run(context.Background(), Options{ProjectIDs: []int64{3, 5}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := models.CollectionStats{Metadata: 4, Projects: 2, Users: 1, WorkPackages: 4, TimeEntries: 1, Versions: 2}
	if *stats != want {
		t.Errorf("stats = %+v, want %+v", *stats, want)
	}
	if stats.Total() != 14 {
		t.Errorf("Total() = %d, want 14", stats.Total())
	}

	if hits["/api/v3/time_entries"] != 1 {
		t.Errorf("time entries requests = %d, want exactly 1 global pass", hits["/api/v3/time_entries"])
	}
	if hits["/api/v3/projects/3/versions"] != 1 || hits["/api/v3/projects/5/versions"] != 1 {
		t.Errorf("version hits = %v, want one per scoped project", hits)
	}

	wantFilters := []string{
		`[{"project":{"operator":"=","values":["3"]}}]`,
		`[{"project":{"operator":"=","values":["5"]}}]`,
	}
	if len(wpFilters) != 2 || wpFilters[0] != wantFilters[0] || wpFilters[1] != wantFilters[1] {
		t.Errorf("work package filters = %v, want %v", wpFilters, wantFilters)
	}
}

// TestRunIncrementalCursor checks that incremental mode reads and logs the
// cursor for the incremental entities without changing what is collected.
func TestRunIncrementalCursor(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, collectionJSON(1, 1))
	}))
	defer server.Close()

	t.Run("incremental reads cursor", func(t *testing.T) {
		store := newFakeStore()
		last := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		store.lastSync[models.RawWorkPackages] = &last

		col := newTestCollector(store, server.URL, 10, 1000)
		stats, err := col.Run(context.Background(), Options{Incremental: true})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if stats.WorkPackages != 1 {
			t.Errorf("WorkPackages = %d, want full re-collection regardless of cursor", stats.WorkPackages)
		}

		wantCalls := []models.RawEntity{models.RawWorkPackages, models.RawTimeEntries}
		if len(store.syncCalls) != 2 || store.syncCalls[0] != wantCalls[0] || store.syncCalls[1] != wantCalls[1] {
			t.Errorf("cursor lookups = %v, want %v", store.syncCalls, wantCalls)
		}
	})

	t.Run("full skips cursor", func(t *testing.T) {
		store := newFakeStore()
		col := newTestCollector(store, server.URL, 10, 1000)
		if _, err := col.Run(context.Background(), Options{Incremental: false}); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if len(store.syncCalls) != 0 {
			t.Errorf("cursor lookups = %v, want none in full mode", store.syncCalls)
		}
	})
}

func TestRunAbortsOnStoreError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, collectionJSON(1, 1))
	}))
	defer server.Close()

	store := newFakeStore()
	store.insertErr = errors.New("disk full")

	col := newTestCollector(store, server.URL, 10, 1000)

	if _, err := col.Run(context.Background(), Options{}); err == nil {
		t.Fatal("Run() error = nil, want store failure to abort the run")
	} else if !strings.Contains(err.Error(), "disk full") {
		t.Errorf("error = %v, want wrapped store failure", err)
	}
}

func TestNewDefaults(t *testing.T) {
	col := New(nil, nil, &config.OpenProjectConfig{ConnectionID: 1})

	if col.pageSize != 100 {
		t.Errorf("pageSize = %d, want default 100", col.pageSize)
	}
	if col.maxPages != 1000 {
		t.Errorf("maxPages = %d, want default 1000", col.maxPages)
	}
}
