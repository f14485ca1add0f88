package domain

import "time"

// SchemaLock is a lease-based mutex row. At most one live (non-expired)
// lock exists per scope key; expired locks are reclaimable by any
// acquirer.
type SchemaLock struct {
	ScopeKey   string // e.g. schema ID, or "merge:<owner>:<source>"
	LockID     string
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

// Expired reports whether the lease has lapsed at the given instant.
func (l *SchemaLock) Expired(now time.Time) bool {
	return !l.ExpiresAt.After(now)
}
