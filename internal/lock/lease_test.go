package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// fakeLock is a DistributedLock whose outcomes tests can change while a lease runs.
type fakeLock struct {
	mu         sync.Mutex
	available  bool
	acquireErr error
	extendErr  error
	held       bool

	acquireCalls atomic.Int32
	extendCalls  atomic.Int32
	releaseCalls atomic.Int32
}

func (f *fakeLock) Acquire(ctx context.Context) (bool, error) {
	f.acquireCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.acquireErr != nil {
		return false, f.acquireErr
	}
	f.held = f.available
	return f.available, nil
}

func (f *fakeLock) Release(ctx context.Context) error {
	f.releaseCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.held = false
	return nil
}

func (f *fakeLock) Extend(ctx context.Context) error {
	f.extendCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.extendErr != nil {
		f.held = false
	}
	return f.extendErr
}

func (f *fakeLock) IsHeld() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.held
}

func (f *fakeLock) set(fn func(f *fakeLock)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func startLease(t *testing.T, l *Lease) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	return func() {
		stop()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("lease did not stop")
		}
	}
}

func TestLease_AcquiresAndRenews(t *testing.T) {
	defer goleak.VerifyNone(t)

	fake := &fakeLock{available: true}
	var acquired atomic.Bool
	lease := NewLease(fake, zerolog.Nop(),
		WithRenewalRate(10*time.Millisecond),
		WithOnAcquire(func() { acquired.Store(true) }),
	)
	stop := startLease(t, lease)

	require.Eventually(t, lease.Held, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return fake.extendCalls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	assert.True(t, acquired.Load())

	stop()
	assert.False(t, lease.Held())
	assert.Equal(t, int32(1), fake.releaseCalls.Load())
}

func TestLease_RetriesWhileHeldElsewhere(t *testing.T) {
	defer goleak.VerifyNone(t)

	fake := &fakeLock{available: false}
	lease := NewLease(fake, zerolog.Nop(),
		WithRenewalRate(time.Hour),
		WithRetryBackoff(10*time.Millisecond),
	)
	stop := startLease(t, lease)

	require.Eventually(t, func() bool { return fake.acquireCalls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	assert.False(t, lease.Held())

	fake.set(func(f *fakeLock) { f.available = true })
	require.Eventually(t, lease.Held, time.Second, 5*time.Millisecond)

	stop()
}

func TestLease_LosesAndReacquires(t *testing.T) {
	defer goleak.VerifyNone(t)

	fake := &fakeLock{available: true}
	var lost atomic.Int32
	lease := NewLease(fake, zerolog.Nop(),
		WithRenewalRate(10*time.Millisecond),
		WithRetryBackoff(10*time.Millisecond),
		WithOnLose(func() { lost.Add(1) }),
	)
	stop := startLease(t, lease)
	require.Eventually(t, lease.Held, time.Second, 5*time.Millisecond)

	fake.set(func(f *fakeLock) {
		f.extendErr = ErrLockNotHeld
		f.available = false
	})
	require.Eventually(t, func() bool { return !lease.Held() && lost.Load() == 1 }, time.Second, 5*time.Millisecond)

	fake.set(func(f *fakeLock) {
		f.extendErr = nil
		f.available = true
	})
	require.Eventually(t, lease.Held, time.Second, 5*time.Millisecond)

	stop()
	assert.Equal(t, int32(2), lost.Load(), "release on stop counts as a loss")
}

func TestLease_StopWithoutLockReleasesNothing(t *testing.T) {
	defer goleak.VerifyNone(t)

	fake := &fakeLock{available: false}
	lease := NewLease(fake, zerolog.Nop(), WithRetryBackoff(10*time.Millisecond))
	stop := startLease(t, lease)
	require.Eventually(t, func() bool { return fake.acquireCalls.Load() >= 1 }, time.Second, 5*time.Millisecond)

	stop()
	assert.Zero(t, fake.releaseCalls.Load())
}
