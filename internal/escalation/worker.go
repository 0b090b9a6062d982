package escalation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kneutral-org/escalator/internal/logging"
)

// DefaultInterval is the longest a worker sleeps between cycles.
const DefaultInterval = 3 * time.Second

// Worker periodically processes the trigger, item and default partitions it owns.
type Worker struct {
	processor *Processor
	workers   int
	index     int
	interval  time.Duration
	clock     func() time.Time
	lease     Lease
	logger    zerolog.Logger
}

// Lease reports whether this process currently owns the worker's partition.
type Lease interface {
	Held() bool
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithClock overrides the worker's time source.
func WithClock(clock func() time.Time) WorkerOption {
	return func(w *Worker) {
		w.clock = clock
	}
}

// WithLease skips cycles while lease is not held.
func WithLease(lease Lease) WorkerOption {
	return func(w *Worker) {
		w.lease = lease
	}
}

// NewWorker creates worker index of workers. A non-positive interval uses DefaultInterval.
func NewWorker(processor *Processor, workers, index int, interval time.Duration, logger zerolog.Logger, opts ...WorkerOption) *Worker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if workers < 1 {
		workers = 1
	}
	w := &Worker{
		processor: processor,
		workers:   workers,
		index:     index,
		interval:  interval,
		clock:     time.Now,
		logger:    logger.With().Str("component", "escalator").Int("worker", index).Logger(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run processes cycles until ctx is cancelled. A cycle in progress always runs to completion.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().Int("workers", w.workers).Dur("interval", w.interval).Msg("escalator started")

	for {
		wake := w.RunCycle(ctx)

		sleep := wake.Sub(w.clock())
		if sleep < 0 {
			sleep = 0
		}
		timer := time.NewTimer(sleep)

		select {
		case <-ctx.Done():
			timer.Stop()
			w.logger.Info().Msg("escalator stopped")
			return nil
		case <-timer.C:
		}
	}
}

// RunCycle processes the trigger, item and default partitions in order and returns
// when the next cycle should start: after the interval, or earlier when an
// escalation becomes due first.
func (w *Worker) RunCycle(ctx context.Context) time.Time {
	wake := w.clock().Add(w.interval)
	if w.lease != nil && !w.lease.Held() {
		w.logger.Debug().Msg("partition owned elsewhere, skipping cycle")
		return wake
	}

	logger := logging.CycleLogger(w.logger, uuid.NewString(), w.index)
	purged := 0

	for _, source := range Sources {
		part := Partition{Source: source, Workers: w.workers, Index: w.index}
		result, err := w.processor.ProcessEscalations(ctx, w.clock(), part)
		if err != nil {
			logger.Error().Err(err).Str("source", source.String()).Msg("failed to process escalations")
			continue
		}
		purged += result.Purged
		if result.NextCheck != 0 {
			if next := time.Unix(result.NextCheck, 0); next.Before(wake) {
				wake = next
			}
		}
	}

	logger.Debug().Int("purged", purged).Time("wake", wake).Msg("cycle complete")
	return wake
}
