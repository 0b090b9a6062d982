// Package lock guards escalation partitions so that only one process works
// each partition at a time.
package lock

import (
	"context"
	"errors"
)

// ErrLockNotHeld is returned when extending a lock this instance does not hold.
var ErrLockNotHeld = errors.New("lock not held by this instance")

// DistributedLock defines the interface for a lock shared between processes.
// Implementations must be safe for concurrent use.
type DistributedLock interface {
	// Acquire attempts to take the lock without blocking. It returns false when
	// another holder has it.
	Acquire(ctx context.Context) (bool, error)

	// Release gives up the lock. Releasing a lock that is not held is a no-op.
	Release(ctx context.Context) error

	// Extend confirms the lock is still held, renewing it where the backend needs that.
	Extend(ctx context.Context) error

	// IsHeld reports whether this instance believes it holds the lock.
	IsHeld() bool
}

// partitionNamespace occupies the high 32 bits of every partition key.
const partitionNamespace int64 = 0x45534331

// PartitionKey returns the lock key of partition index out of workers.
func PartitionKey(workers, index int) int64 {
	return partitionNamespace<<32 | int64(uint16(workers))<<16 | int64(uint16(index))
}
