package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/mr-cto/rapiddatachat/internal/domain"
)

// LockRepo implements domain.LockRepository over the schema_locks table.
// TryAcquire relies on the primary key: INSERT OR IGNORE followed by an
// ownership check gives compare-and-insert semantics without a blocking
// lock.
type LockRepo struct {
	db *sql.DB
}

func NewLockRepo(db *sql.DB) *LockRepo {
	return &LockRepo{db: db}
}

var _ domain.LockRepository = (*LockRepo)(nil)

func (r *LockRepo) TryAcquire(ctx context.Context, lock *domain.SchemaLock) (bool, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_locks (scope_key, lock_id, acquired_at, expires_at)
		 VALUES (?, ?, ?, ?)`,
		lock.ScopeKey, lock.LockID, lock.AcquiredAt, lock.ExpiresAt)
	if err != nil {
		return false, mapDBError(err)
	}

	// Ownership check: the insert may have been a no-op because another
	// holder's row is still present.
	var holder string
	err = r.db.QueryRowContext(ctx,
		`SELECT lock_id FROM schema_locks WHERE scope_key = ?`, lock.ScopeKey).Scan(&holder)
	if err != nil {
		return false, mapDBError(err)
	}
	return holder == lock.LockID, nil
}

func (r *LockRepo) Get(ctx context.Context, scopeKey string) (*domain.SchemaLock, error) {
	var l domain.SchemaLock
	err := r.db.QueryRowContext(ctx,
		`SELECT scope_key, lock_id, acquired_at, expires_at FROM schema_locks WHERE scope_key = ?`,
		scopeKey).Scan(&l.ScopeKey, &l.LockID, &l.AcquiredAt, &l.ExpiresAt)
	if err != nil {
		return nil, mapDBError(err)
	}
	return &l, nil
}

// Release deletes the lock only when held by lockID, so a lease that
// expired and was reclaimed by another acquirer is never released by the
// old holder.
func (r *LockRepo) Release(ctx context.Context, scopeKey, lockID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM schema_locks WHERE scope_key = ? AND lock_id = ?`, scopeKey, lockID)
	return mapDBError(err)
}

// DeleteExpired reclaims a lapsed lease for the scope key.
func (r *LockRepo) DeleteExpired(ctx context.Context, scopeKey string, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM schema_locks WHERE scope_key = ? AND expires_at <= ?`, scopeKey, now)
	return mapDBError(err)
}
