package lock

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sync"
)

// AdvisoryLock implements DistributedLock with a Postgres session advisory lock.
// The lock lives as long as the dedicated connection it was taken on, so a
// crashed holder releases it when its session ends.
type AdvisoryLock struct {
	db  *sql.DB
	key int64

	mu   sync.Mutex
	conn *sql.Conn
}

// NewAdvisoryLock creates a lock on key.
func NewAdvisoryLock(db *sql.DB, key int64) *AdvisoryLock {
	return &AdvisoryLock{db: db, key: key}
}

// Acquire takes the advisory lock on a connection reserved from the pool.
func (l *AdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn != nil {
		return true, nil
	}

	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("reserve connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, l.key).Scan(&acquired); err != nil {
		discard(conn)
		return false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		_ = conn.Close()
		return false, nil
	}

	l.conn = conn
	return true, nil
}

// Extend verifies the session still holds the lock. A lost session drops the lock.
func (l *AdvisoryLock) Extend(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		return ErrLockNotHeld
	}

	query := `
		SELECT EXISTS (
			SELECT 1 FROM pg_locks
			WHERE locktype = 'advisory' AND classid = $1 AND objid = $2 AND objsubid = 1
			  AND pid = pg_backend_pid() AND granted
		)`
	var held bool
	if err := l.conn.QueryRowContext(ctx, query, l.key>>32, l.key&0xffffffff).Scan(&held); err != nil {
		discard(l.conn)
		l.conn = nil
		return fmt.Errorf("%w: %v", ErrLockNotHeld, err)
	}
	if !held {
		_ = l.conn.Close()
		l.conn = nil
		return ErrLockNotHeld
	}
	return nil
}

// Release unlocks and returns the connection to the pool.
func (l *AdvisoryLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		return nil
	}
	conn := l.conn
	l.conn = nil

	var released bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_advisory_unlock($1)`, l.key).Scan(&released); err != nil {
		discard(conn)
		return fmt.Errorf("advisory unlock: %w", err)
	}
	return conn.Close()
}

// discard closes the session behind conn instead of returning it to the pool.
// Postgres drops session advisory locks only when the session ends.
func discard(conn *sql.Conn) {
	_ = conn.Raw(func(any) error { return driver.ErrBadConn })
	_ = conn.Close()
}

// IsHeld reports whether the lock was acquired and not since lost or released.
func (l *AdvisoryLock) IsHeld() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn != nil
}

var _ DistributedLock = (*AdvisoryLock)(nil)
