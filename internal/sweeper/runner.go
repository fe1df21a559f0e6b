// Package sweeper drives the expiry and promotion sweep on a timer.
package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/cimillas/ultimate-ticket/holds/internal/app"
)

// ErrBusy is returned by TryRun when a sweep is already in flight in this
// process or, with a sweep lock, in another one.
var ErrBusy = app.ErrSweepBusy

// Sweep is the operation the runner schedules. *app.Sweeper implements it.
type Sweep interface {
	Run(ctx context.Context) (app.SweepResult, error)
}

// SkipCounter is told about ticks dropped while a sweep was running.
type SkipCounter interface {
	SweepSkipped()
}

// Runner runs at most one sweep at a time. A tick that fires while the
// previous sweep is still running is dropped, not queued.
type Runner struct {
	sweep    Sweep
	interval time.Duration
	logger   zerolog.Logger
	skips    SkipCounter
	sem      *semaphore.Weighted
}

func NewRunner(sweep Sweep, interval time.Duration, logger zerolog.Logger, skips SkipCounter) *Runner {
	return &Runner{
		sweep:    sweep,
		interval: interval,
		logger:   logger.With().Str("component", "sweeper").Logger(),
		skips:    skips,
		sem:      semaphore.NewWeighted(1),
	}
}

// Start sweeps every interval until ctx is cancelled, then waits for the
// sweep in flight to return.
func (r *Runner) Start(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().Dur("interval", r.interval).Msg("sweeper started")
	for {
		select {
		case <-ctx.Done():
			// Blocks until the running sweep, if any, releases the slot.
			if err := r.sem.Acquire(context.Background(), 1); err == nil {
				r.sem.Release(1)
			}
			r.logger.Info().Msg("sweeper stopped")
			return nil
		case <-ticker.C:
			if !r.sem.TryAcquire(1) {
				r.skipped()
				continue
			}
			go func() {
				defer r.sem.Release(1)
				_, err := r.sweep.Run(ctx)
				switch {
				case err == nil, errors.Is(err, context.Canceled):
				case errors.Is(err, ErrBusy):
					r.skipped()
				default:
					r.logger.Error().Err(err).Msg("sweep failed")
				}
			}()
		}
	}
}

// TryRun sweeps once on the caller's goroutine. It returns ErrBusy without
// sweeping when the timer's sweep or another TryRun holds the slot.
func (r *Runner) TryRun(ctx context.Context) (app.SweepResult, error) {
	if !r.sem.TryAcquire(1) {
		r.skipped()
		return app.SweepResult{}, ErrBusy
	}
	defer r.sem.Release(1)
	return r.sweep.Run(ctx)
}

func (r *Runner) skipped() {
	r.logger.Warn().Msg("another sweep still running, skipping")
	if r.skips != nil {
		r.skips.SweepSkipped()
	}
}
