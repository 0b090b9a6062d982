package lock

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Lease keeps trying to hold a DistributedLock and reports whether it does.
// Escalation workers consult Held before every cycle.
type Lease struct {
	lock   DistributedLock
	logger zerolog.Logger

	held         atomic.Bool
	renewalRate  time.Duration
	retryBackoff time.Duration

	onAcquire func()
	onLose    func()
}

// LeaseOption configures a Lease.
type LeaseOption func(*Lease)

// WithRenewalRate sets how often a held lock is confirmed.
func WithRenewalRate(d time.Duration) LeaseOption {
	return func(l *Lease) {
		l.renewalRate = d
	}
}

// WithRetryBackoff sets how long to wait before retrying a lock held elsewhere.
func WithRetryBackoff(d time.Duration) LeaseOption {
	return func(l *Lease) {
		l.retryBackoff = d
	}
}

// WithOnAcquire sets a callback run when the lock is taken.
func WithOnAcquire(fn func()) LeaseOption {
	return func(l *Lease) {
		l.onAcquire = fn
	}
}

// WithOnLose sets a callback run when a held lock is lost or released.
func WithOnLose(fn func()) LeaseOption {
	return func(l *Lease) {
		l.onLose = fn
	}
}

// NewLease creates a lease over lock.
func NewLease(lock DistributedLock, logger zerolog.Logger, opts ...LeaseOption) *Lease {
	l := &Lease{
		lock:         lock,
		logger:       logger.With().Str("component", "partition-lease").Logger(),
		renewalRate:  10 * time.Second,
		retryBackoff: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Held reports whether the lease currently holds its lock.
func (l *Lease) Held() bool {
	return l.held.Load()
}

// Run acquires and renews the lock until ctx is cancelled, then releases it.
func (l *Lease) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			l.release()
			return nil
		case <-timer.C:
		}

		if l.acquireOrRenew(ctx) {
			timer.Reset(l.renewalRate)
		} else {
			timer.Reset(l.retryBackoff)
		}
	}
}

func (l *Lease) acquireOrRenew(ctx context.Context) bool {
	if l.held.Load() {
		err := l.lock.Extend(ctx)
		if err == nil {
			l.logger.Debug().Msg("partition lock renewed")
			return true
		}
		l.logger.Warn().Err(err).Msg("partition lock lost")
		l.lose()
	}

	acquired, err := l.lock.Acquire(ctx)
	if err != nil {
		l.logger.Error().Err(err).Msg("failed to acquire partition lock")
		return false
	}
	if !acquired {
		l.logger.Debug().Msg("partition lock held by another instance")
		return false
	}

	l.logger.Info().Msg("partition lock acquired")
	l.held.Store(true)
	if l.onAcquire != nil {
		l.onAcquire()
	}
	return true
}

func (l *Lease) release() {
	if !l.held.Load() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.lock.Release(ctx); err != nil {
		l.logger.Error().Err(err).Msg("failed to release partition lock")
	} else {
		l.logger.Info().Msg("partition lock released")
	}
	l.lose()
}

func (l *Lease) lose() {
	l.held.Store(false)
	if l.onLose != nil {
		l.onLose()
	}
}
