// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

package extractor

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/worklake/internal/logging"
)

// resolveReferences runs the cross-entity backfills once every tool table is
// populated: user logins onto work packages and time entries, project
// identifiers and status closed flags onto work packages. Run must order
// this after users, projects and statuses are extracted; the joins match
// zero rows without erroring otherwise.
func (e *Extractor) resolveReferences(ctx context.Context) error {
	start := time.Now()

	affected, err := e.store.ResolveToolReferences(ctx, e.connectionID)
	if err != nil {
		return fmt.Errorf("reference resolution failed: %w", err)
	}

	logging.Info().
		Int64("connection_id", e.connectionID).
		Int64("rows_affected", affected).
		Dur("duration", time.Since(start)).
		Msg("Reference fields resolved")

	return nil
}
