package repository

import (
	"context"
	"database/sql"

	"github.com/mr-cto/rapiddatachat/internal/domain"
)

// TransactionRepo implements domain.TransactionRepository. The ordered
// operation log is stored as a JSON column; it is an audit artifact, not
// a queried relation.
type TransactionRepo struct {
	db *sql.DB
}

func NewTransactionRepo(db *sql.DB) *TransactionRepo {
	return &TransactionRepo{db: db}
}

var _ domain.TransactionRepository = (*TransactionRepo)(nil)

func (r *TransactionRepo) Create(ctx context.Context, tx *domain.SchemaTransaction) error {
	ops, err := marshalJSON(tx.Operations)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO schema_transactions (id, schema_id, owner_id, status, operations, started_at, completed_at, lock_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.SchemaID, tx.OwnerID, tx.Status, ops, tx.StartedAt, nullTime(tx.CompletedAt), tx.LockID)
	return mapDBError(err)
}

func (r *TransactionRepo) GetByID(ctx context.Context, txID string) (*domain.SchemaTransaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, schema_id, owner_id, status, operations, started_at, completed_at, lock_id
		 FROM schema_transactions WHERE id = ?`, txID)
	return scanTransaction(row)
}

func (r *TransactionRepo) Update(ctx context.Context, tx *domain.SchemaTransaction) error {
	ops, err := marshalJSON(tx.Operations)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE schema_transactions SET status = ?, operations = ?, completed_at = ?, lock_id = ?
		 WHERE id = ?`,
		tx.Status, ops, nullTime(tx.CompletedAt), tx.LockID, tx.ID)
	if err != nil {
		return mapDBError(err)
	}
	return requireRowAffected(res, "transaction", tx.ID)
}

func (r *TransactionRepo) ListForSchema(ctx context.Context, schemaID string, limit int) ([]domain.SchemaTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, schema_id, owner_id, status, operations, started_at, completed_at, lock_id
		 FROM schema_transactions WHERE schema_id = ?
		 ORDER BY started_at DESC LIMIT ?`, schemaID, limit)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.SchemaTransaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *tx)
	}
	return out, rows.Err()
}

func scanTransaction(row interface{ Scan(...interface{}) error }) (*domain.SchemaTransaction, error) {
	var tx domain.SchemaTransaction
	var ops string
	var completed sql.NullTime
	err := row.Scan(&tx.ID, &tx.SchemaID, &tx.OwnerID, &tx.Status, &ops, &tx.StartedAt, &completed, &tx.LockID)
	if err != nil {
		return nil, mapDBError(err)
	}
	tx.CompletedAt = timePtr(completed)
	if err := unmarshalJSON(ops, &tx.Operations); err != nil {
		return nil, err
	}
	return &tx, nil
}
