package postgres

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/custodia-labs/persona-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.DistributedLock = (*AdvisoryLock)(nil)

// AdvisoryLock implements DistributedLock using PostgreSQL advisory locks.
//
// Advisory locks are connection-scoped, not TTL-based: the TTL parameter is
// ignored and Extend is a no-op. A lost connection releases the lock. This is
// the fallback used when Redis is not configured; with multiple instances the
// Redis lock is the one to run.
type AdvisoryLock struct {
	db *DB
}

// NewAdvisoryLock creates a new PostgreSQL advisory lock adapter
func NewAdvisoryLock(db *DB) *AdvisoryLock {
	return &AdvisoryLock{db: db}
}

// hashLockName converts a lock name to the 64-bit key advisory locks need
func hashLockName(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte("persona:lock:" + name))
	return int64(h.Sum64())
}

// Acquire attempts to acquire a named advisory lock without blocking
func (l *AdvisoryLock) Acquire(ctx context.Context, name string, _ time.Duration) (bool, error) {
	var acquired bool
	err := l.db.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", hashLockName(name)).Scan(&acquired)
	if err != nil {
		return false, err
	}
	return acquired, nil
}

// Release releases a named advisory lock.
// Safe to call when the lock is not held.
func (l *AdvisoryLock) Release(ctx context.Context, name string) error {
	var released bool
	return l.db.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1)", hashLockName(name)).Scan(&released)
}

// Extend is a no-op: advisory locks have no TTL
func (l *AdvisoryLock) Extend(ctx context.Context, name string, ttl time.Duration) error {
	return nil
}

// Ping checks if the lock backend is healthy
func (l *AdvisoryLock) Ping(ctx context.Context) error {
	return l.db.Ping(ctx)
}
