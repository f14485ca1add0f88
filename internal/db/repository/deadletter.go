package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/mr-cto/rapiddatachat/internal/domain"
)

// DeadLetterRepo implements domain.DeadLetterRepository.
type DeadLetterRepo struct {
	db *sql.DB
}

func NewDeadLetterRepo(db *sql.DB) *DeadLetterRepo {
	return &DeadLetterRepo{db: db}
}

var _ domain.DeadLetterRepository = (*DeadLetterRepo)(nil)

func (r *DeadLetterRepo) Insert(ctx context.Context, item *domain.DeadLetterItem) error {
	payload, err := marshalJSON(item.Payload)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO dead_letters (id, operation_type, payload, error, retry_count, created_at, last_retry_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.OperationType, payload, item.Error, item.RetryCount,
		item.Timestamp, nullTime(item.LastRetryAt))
	return mapDBError(err)
}

// ListDue selects items whose next-retry time has elapsed and whose retry
// count is below the cap. The next-retry time doubles per attempt
// starting from one minute, computed from last_retry_at (or created_at
// for never-retried items).
func (r *DeadLetterRepo) ListDue(ctx context.Context, now time.Time, maxRetries, limit int) ([]domain.DeadLetterItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, operation_type, payload, error, retry_count, created_at, last_retry_at
		 FROM dead_letters
		 WHERE retry_count < ?
		 ORDER BY created_at
		 LIMIT ?`, maxRetries, limit)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.DeadLetterItem
	for rows.Next() {
		item, err := scanDeadLetter(rows)
		if err != nil {
			return nil, err
		}
		if NextRetryAt(item).After(now) {
			continue
		}
		out = append(out, *item)
	}
	return out, rows.Err()
}

// NextRetryAt computes when an item becomes due again: one minute doubled
// per completed retry, measured from the last attempt.
func NextRetryAt(item *domain.DeadLetterItem) time.Time {
	base := item.Timestamp
	if item.LastRetryAt != nil {
		base = *item.LastRetryAt
	}
	delay := time.Minute << uint(item.RetryCount)
	return base.Add(delay)
}

func (r *DeadLetterRepo) Update(ctx context.Context, item *domain.DeadLetterItem) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE dead_letters SET error = ?, retry_count = ?, last_retry_at = ? WHERE id = ?`,
		item.Error, item.RetryCount, nullTime(item.LastRetryAt), item.ID)
	if err != nil {
		return mapDBError(err)
	}
	return requireRowAffected(res, "dead letter", item.ID)
}

// Delete removes an item. Dead letters never self-delete; this is the
// explicit removal path only.
func (r *DeadLetterRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM dead_letters WHERE id = ?`, id)
	if err != nil {
		return mapDBError(err)
	}
	return requireRowAffected(res, "dead letter", id)
}

func (r *DeadLetterRepo) List(ctx context.Context, limit int) ([]domain.DeadLetterItem, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, operation_type, payload, error, retry_count, created_at, last_retry_at
		 FROM dead_letters ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.DeadLetterItem
	for rows.Next() {
		item, err := scanDeadLetter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *item)
	}
	return out, rows.Err()
}

func scanDeadLetter(row interface{ Scan(...interface{}) error }) (*domain.DeadLetterItem, error) {
	var item domain.DeadLetterItem
	var payload string
	var lastRetry sql.NullTime
	err := row.Scan(&item.ID, &item.OperationType, &payload, &item.Error,
		&item.RetryCount, &item.Timestamp, &lastRetry)
	if err != nil {
		return nil, mapDBError(err)
	}
	item.LastRetryAt = timePtr(lastRetry)
	if err := unmarshalJSON(payload, &item.Payload); err != nil {
		return nil, err
	}
	return &item, nil
}
