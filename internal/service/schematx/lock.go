// Package schematx applies ordered batches of schema mutations under a
// lease-based lock. A transaction either commits as exactly one new
// schema version or leaves the schema untouched.
package schematx

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mr-cto/rapiddatachat/internal/domain"
)

// Lock acquisition defaults, overridable via config.
const (
	DefaultLockRetries    = 3
	DefaultLockRetryDelay = time.Second
	DefaultLockLease      = 30 * time.Second
)

// LockManager acquires and releases lease-based locks over scope keys.
// Acquisition is a bounded retry loop: each attempt reclaims any expired
// lease for the scope, then races a compare-and-insert.
type LockManager struct {
	locks   domain.LockRepository
	retries int
	delay   time.Duration
	lease   time.Duration
	logger  *slog.Logger
}

func NewLockManager(locks domain.LockRepository, retries int, delay, lease time.Duration, logger *slog.Logger) *LockManager {
	if retries < 1 {
		retries = DefaultLockRetries
	}
	if delay <= 0 {
		delay = DefaultLockRetryDelay
	}
	if lease <= 0 {
		lease = DefaultLockLease
	}
	return &LockManager{locks: locks, retries: retries, delay: delay, lease: lease, logger: logger}
}

// Acquire takes the lock for scopeKey and returns the lock ID the caller
// must present to Release. Exhausting all attempts yields a concurrency
// error, not a hang.
func (m *LockManager) Acquire(ctx context.Context, scopeKey string) (string, error) {
	lockID := uuid.NewString()

	for attempt := 1; attempt <= m.retries; attempt++ {
		now := time.Now().UTC()
		if err := m.locks.DeleteExpired(ctx, scopeKey, now); err != nil {
			return "", err
		}

		ok, err := m.locks.TryAcquire(ctx, &domain.SchemaLock{
			ScopeKey:   scopeKey,
			LockID:     lockID,
			AcquiredAt: now,
			ExpiresAt:  now.Add(m.lease),
		})
		if err != nil {
			return "", err
		}
		if ok {
			m.logger.Debug("lock acquired", "scope", scopeKey, "attempt", attempt)
			return lockID, nil
		}

		if attempt == m.retries {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(m.delay):
		}
	}

	m.logger.Warn("lock acquisition exhausted", "scope", scopeKey, "attempts", m.retries)
	return "", domain.ErrConcurrency("could not acquire lock for %q after %d attempts", scopeKey, m.retries)
}

// Release frees the lock. Releasing a lock already reclaimed by another
// acquirer is a no-op.
func (m *LockManager) Release(ctx context.Context, scopeKey, lockID string) {
	if err := m.locks.Release(ctx, scopeKey, lockID); err != nil {
		m.logger.Error("lock release failed", "scope", scopeKey, "error", err)
	}
}
