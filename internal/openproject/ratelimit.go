// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

package openproject

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/worklake/internal/logging"
	"github.com/tomtom215/worklake/internal/metrics"
)

// pacer throttles outgoing requests two ways: a sliding 60-second window
// caps the total request count at the configured requests-per-minute budget,
// and a token limiter enforces a minimum inter-request interval of 60/rpm
// seconds so requests stay evenly spaced even below the cap.
//
// Retried attempts inside one request cycle are not re-paced; their backoff
// sleeps already space them out.
type pacer struct {
	rpm     int
	window  time.Duration
	limiter *rate.Limiter

	mu          sync.Mutex
	windowStart time.Time
	count       int
}

func newPacer(rpm int) *pacer {
	return &pacer{
		rpm:         rpm,
		window:      time.Minute,
		limiter:     rate.NewLimiter(rate.Every(time.Minute / time.Duration(rpm)), 1),
		windowStart: time.Now(),
	}
}

// Wait blocks until the next request may be issued. It returns early with
// the context's error when the context is cancelled during a sleep.
func (p *pacer) Wait(ctx context.Context) error {
	start := time.Now()

	if err := p.waitWindow(ctx); err != nil {
		return err
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}

	metrics.RecordRateLimitWait(time.Since(start))
	return nil
}

// waitWindow admits the caller into the current window, sleeping through
// window resets while the budget is exhausted.
func (p *pacer) waitWindow(ctx context.Context) error {
	for {
		p.mu.Lock()
		now := time.Now()

		if now.Sub(p.windowStart) >= p.window {
			p.count = 0
			p.windowStart = now
		}

		if p.count < p.rpm {
			p.count++
			p.mu.Unlock()
			return nil
		}

		sleep := p.window - now.Sub(p.windowStart)
		p.mu.Unlock()

		logging.Info().Dur("sleep", sleep).Int("rpm", p.rpm).Msg("Request budget exhausted, waiting for window reset")

		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
