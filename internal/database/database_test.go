// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

package database

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/worklake/internal/config"
	"github.com/tomtom215/worklake/internal/models"
)

// testDBSemaphore limits concurrent database creation to prevent resource
// exhaustion in CI. DuckDB CGO calls can hang when many connections operate
// concurrently, so tests hold the semaphore for their entire lifecycle.
var testDBSemaphore = make(chan struct{}, 1)

// testDBMutex serializes the New() call itself.
var testDBMutex sync.Mutex

// setupTestDB creates an in-memory test database with timeout protection.
// The semaphore is released via t.Cleanup() when the test completes, so only
// one test has an active DuckDB connection at a time.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() {
		<-testDBSemaphore
	})

	cfg := &config.DatabaseConfig{
		Path:      ":memory:",
		MaxMemory: "1GB",
	}

	type result struct {
		db  *DB
		err error
	}

	resultCh := make(chan result, 1)
	go func() {
		testDBMutex.Lock()
		db, err := New(cfg)
		testDBMutex.Unlock()
		resultCh <- result{db: db, err: err}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			t.Fatalf("Failed to create test database: %v", res.err)
		}
		t.Cleanup(func() {
			if err := res.db.Close(); err != nil {
				t.Errorf("Failed to close test database: %v", err)
			}
		})
		return res.db
	case <-time.After(120 * time.Second):
		t.Fatalf("Timeout: database creation took longer than 120s")
		return nil
	}
}

func strPtr(s string) *string { return &s }

func int64Ptr(v int64) *int64 { return &v }

func float64Ptr(v float64) *float64 { return &v }

func timePtr(ts time.Time) *time.Time { return &ts }

func TestNewCreatesPipelineSchema(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	pipelineTables := []string{
		"_raw_openproject_api_work_packages",
		"_raw_openproject_api_statuses",
		"_raw_openproject_api_versions",
		"_tool_openproject_work_packages",
		"_tool_openproject_users",
		"_tool_openproject_activities",
		"_worklake_pipeline_runs",
		"_worklake_schema_migrations",
	}
	for _, table := range pipelineTables {
		exists, err := db.tableExists(ctx, table)
		if err != nil {
			t.Fatalf("tableExists(%s) error = %v", table, err)
		}
		if !exists {
			t.Errorf("table %s not created by New()", table)
		}
	}

	// Domain tables belong to the shared warehouse and must not appear
	// until an explicit migrate.
	for _, table := range []string{"issues", "boards", "sprints"} {
		exists, err := db.tableExists(ctx, table)
		if err != nil {
			t.Fatalf("tableExists(%s) error = %v", table, err)
		}
		if exists {
			t.Errorf("domain table %s created by New(); should require migrate", table)
		}
	}
}

func TestCheckpoint(t *testing.T) {
	db := setupTestDB(t)

	if err := db.Checkpoint(context.Background()); err != nil {
		t.Fatalf("Checkpoint() error = %v", err)
	}
}

func TestMigrationInfrastructure(t *testing.T) {
	db := setupTestDB(t)

	version, err := db.GetCurrentSchemaVersion()
	if err != nil {
		t.Fatalf("GetCurrentSchemaVersion() error = %v", err)
	}
	if version != 0 {
		t.Errorf("schema version = %d, want 0 (no migrations defined)", version)
	}

	history, err := db.GetMigrationHistory()
	if err != nil {
		t.Fatalf("GetMigrationHistory() error = %v", err)
	}
	if len(history) != 0 {
		t.Errorf("migration history has %d entries, want 0", len(history))
	}
}

func TestInsertRawRecordAndCursor(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	const connID int64 = 1

	// No pages yet: cursor is nil, not an error.
	last, err := db.LastSuccessfulSync(ctx, models.RawWorkPackages, connID)
	if err != nil {
		t.Fatalf("LastSuccessfulSync() error = %v", err)
	}
	if last != nil {
		t.Fatalf("LastSuccessfulSync() = %v, want nil on empty table", last)
	}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	payload := `{"_type":"Collection","total":1,"count":1,"_embedded":{"elements":[{"id":1}]}}`

	records := []models.RawRecord{
		{
			ConnectionID: connID,
			Params:       `{"pageSize":100,"offset":1}`,
			URL:          "/api/v3/work_packages",
			Input:        `{"project_id":7,"page":1}`,
			Data:         strPtr(payload),
			CreatedAt:    base,
		},
		{
			// Failed page: stored for evidence, must not advance the cursor.
			ConnectionID: connID,
			Params:       `{"pageSize":100,"offset":2}`,
			URL:          "/api/v3/work_packages",
			Input:        `{"project_id":7,"page":2}`,
			Data:         nil,
			CreatedAt:    base.Add(2 * time.Hour),
		},
		{
			ConnectionID: connID,
			Params:       `{"pageSize":100,"offset":2}`,
			URL:          "/api/v3/work_packages",
			Input:        `{"project_id":7,"page":2}`,
			Data:         strPtr(payload),
			CreatedAt:    base.Add(time.Hour),
		},
	}
	for i := range records {
		if err := db.InsertRawRecord(ctx, models.RawWorkPackages, &records[i]); err != nil {
			t.Fatalf("InsertRawRecord(%d) error = %v", i, err)
		}
	}

	last, err = db.LastSuccessfulSync(ctx, models.RawWorkPackages, connID)
	if err != nil {
		t.Fatalf("LastSuccessfulSync() error = %v", err)
	}
	if last == nil {
		t.Fatal("LastSuccessfulSync() = nil, want cursor")
	}
	if want := base.Add(time.Hour); !last.Equal(want) {
		t.Errorf("cursor = %v, want %v (failed page at +2h must not count)", last, want)
	}

	count, err := db.CountRawRecords(ctx, models.RawWorkPackages, connID)
	if err != nil {
		t.Fatalf("CountRawRecords() error = %v", err)
	}
	if count != 2 {
		t.Errorf("CountRawRecords() = %d, want 2 successful pages", count)
	}

	// Other connections see nothing.
	count, err = db.CountRawRecords(ctx, models.RawWorkPackages, 99)
	if err != nil {
		t.Fatalf("CountRawRecords(conn 99) error = %v", err)
	}
	if count != 0 {
		t.Errorf("CountRawRecords(conn 99) = %d, want 0", count)
	}
}

func TestRawBatchNewestFirst(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	const connID int64 = 1

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		rec := models.RawRecord{
			ConnectionID: connID,
			URL:          "/api/v3/projects",
			Data:         strPtr(fmt.Sprintf(`{"page":%d}`, i)),
			CreatedAt:    base.Add(time.Duration(i) * time.Hour),
		}
		if err := db.InsertRawRecord(ctx, models.RawProjects, &rec); err != nil {
			t.Fatalf("InsertRawRecord(%d) error = %v", i, err)
		}
	}

	batch, err := db.RawBatch(ctx, models.RawProjects, connID, 2, 0)
	if err != nil {
		t.Fatalf("RawBatch() error = %v", err)
	}
	if len(batch) != 2 {
		t.Fatalf("RawBatch() returned %d records, want 2", len(batch))
	}
	if !batch[0].CreatedAt.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("first record created_at = %v, want newest %v", batch[0].CreatedAt, base.Add(2*time.Hour))
	}
	if !batch[1].CreatedAt.Equal(base.Add(time.Hour)) {
		t.Errorf("second record created_at = %v, want %v", batch[1].CreatedAt, base.Add(time.Hour))
	}

	rest, err := db.RawBatch(ctx, models.RawProjects, connID, 2, 2)
	if err != nil {
		t.Fatalf("RawBatch(offset 2) error = %v", err)
	}
	if len(rest) != 1 {
		t.Fatalf("RawBatch(offset 2) returned %d records, want 1", len(rest))
	}
	if !rest[0].CreatedAt.Equal(base) {
		t.Errorf("last record created_at = %v, want oldest %v", rest[0].CreatedAt, base)
	}
}
