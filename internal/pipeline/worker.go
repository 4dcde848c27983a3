// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

package pipeline

import (
	"context"
	"errors"

	"github.com/tomtom215/worklake/internal/logging"
	"github.com/tomtom215/worklake/internal/models"
)

// ErrQueueFull is returned by Trigger when the pending-run buffer is full.
var ErrQueueFull = errors.New("pipeline trigger queue is full")

// DefaultQueueSize bounds how many triggered runs may wait behind the
// active one.
const DefaultQueueSize = 4

type job struct {
	run  *models.PipelineRun
	opts Options
}

// Worker executes queued pipeline triggers one at a time in serve mode. The
// ops API enqueues through Trigger; the worker owns the runner while
// serving, so triggered runs never interleave.
type Worker struct {
	runner *Runner
	queue  chan job
}

// NewWorker creates a worker with the given queue depth.
func NewWorker(runner *Runner, queueSize int) *Worker {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Worker{runner: runner, queue: make(chan job, queueSize)}
}

// Trigger records a queued run and schedules it. The returned run already
// carries its id, so callers can report it before the run starts.
func (w *Worker) Trigger(ctx context.Context, opts Options) (*models.PipelineRun, error) {
	run, err := w.runner.Enqueue(ctx, opts)
	if err != nil {
		return nil, err
	}

	select {
	case w.queue <- job{run: run, opts: opts}:
		logging.Info().Str("run_id", run.ID.String()).Msg("Pipeline run queued")
		return run, nil
	default:
		w.runner.abandon(ctx, run, "trigger queue full")
		return nil, ErrQueueFull
	}
}

// Serve drains the queue until the context ends. Implements suture.Service.
func (w *Worker) Serve(ctx context.Context) error {
	logging.Info().Msg("Pipeline worker started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case j := <-w.queue:
			if _, err := w.runner.Execute(ctx, j.run, j.opts); err != nil {
				logging.Error().Err(err).Str("run_id", j.run.ID.String()).Msg("Triggered pipeline run failed")
			}
		}
	}
}
