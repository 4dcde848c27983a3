// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tomtom215/worklake/internal/models"
)

// InsertRawRecord appends one API page snapshot to the entity's raw table.
// Failed requests are stored too, with a NULL Data, so the raw layer is a
// complete request log and the sync cursor only advances on success.
func (db *DB) InsertRawRecord(ctx context.Context, entity models.RawEntity, rec *models.RawRecord) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := fmt.Sprintf(`INSERT INTO %s (connection_id, params, url, input, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`, entity.TableName())

	_, err := db.conn.ExecContext(ctx, query,
		rec.ConnectionID, rec.Params, rec.URL, rec.Input, rec.Data, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert raw %s record: %w", entity, err)
	}
	return nil
}

// LastSuccessfulSync returns the newest created_at among successful pages for
// the entity and connection, or nil if none exist. This is the incremental
// sync cursor: informational only, the collector logs it but still re-pages
// everything because the upstream update-time filter is unreliable.
func (db *DB) LastSuccessfulSync(ctx context.Context, entity models.RawEntity, connectionID int64) (*time.Time, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT MAX(created_at) FROM %s
		WHERE connection_id = ? AND data IS NOT NULL`, entity.TableName())

	var last sql.NullTime
	err := db.conn.QueryRowContext(ctx, query, connectionID).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("failed to query last sync for %s: %w", entity, err)
	}
	if !last.Valid {
		return nil, nil
	}
	return &last.Time, nil
}

// CountRawRecords counts the successful raw pages stored for the entity and
// connection. The extractor uses this to size its batch loop.
func (db *DB) CountRawRecords(ctx context.Context, entity models.RawEntity, connectionID int64) (int, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s
		WHERE connection_id = ? AND data IS NOT NULL`, entity.TableName())

	var count int
	err := db.conn.QueryRowContext(ctx, query, connectionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count raw %s records: %w", entity, err)
	}
	return count, nil
}

// RawBatch returns one window of successful raw pages for the entity and
// connection, newest first. Newest-first ordering means that when the same
// native id appears in overlapping pages, the extractor's first-occurrence
// dedup keeps the most recently collected copy. The rowid tiebreaker keeps
// paging stable when two pages land in the same timestamp tick.
func (db *DB) RawBatch(ctx context.Context, entity models.RawEntity, connectionID int64, limit, offset int) ([]models.RawRecord, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT connection_id, params, url, input, data, created_at, updated_at
		FROM %s
		WHERE connection_id = ? AND data IS NOT NULL
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?`, entity.TableName())

	rows, err := db.conn.QueryContext(ctx, query, connectionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query raw %s batch: %w", entity, err)
	}
	defer rows.Close()

	var records []models.RawRecord
	for rows.Next() {
		var r models.RawRecord
		if err := rows.Scan(&r.ConnectionID, &r.Params, &r.URL, &r.Input, &r.Data, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan raw %s record: %w", entity, err)
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating raw %s records: %w", entity, err)
	}
	return records, nil
}
