package schematx

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mr-cto/rapiddatachat/internal/domain"
)

// Manager runs schema transactions: Begin takes the lock and opens the
// operation log, AddOperation appends to it, and Commit applies the log
// to a snapshot and persists the result as exactly one new version. The
// lock is released on every terminal path.
// Manager mutates through txs (the single-writer pool); Get and History
// serve the read endpoints through txReads.
type Manager struct {
	schemas domain.SchemaRepository
	txs     domain.TransactionRepository
	txReads domain.TransactionRepository
	locks   *LockManager
	logger  *slog.Logger
}

func NewManager(schemas domain.SchemaRepository, txs, txReads domain.TransactionRepository, locks *LockManager, logger *slog.Logger) *Manager {
	return &Manager{schemas: schemas, txs: txs, txReads: txReads, locks: locks, logger: logger}
}

// Begin opens a transaction on the schema, taking its lock. The caller
// must end the transaction with Commit or Rollback; an abandoned
// transaction holds the lock only until the lease expires.
func (m *Manager) Begin(ctx context.Context, ownerID, schemaID string) (*domain.SchemaTransaction, error) {
	schema, err := m.schemas.GetByID(ctx, schemaID)
	if err != nil {
		return nil, err
	}
	if schema.OwnerID != ownerID {
		return nil, domain.ErrAccessDenied("schema %q does not belong to the requesting owner", schemaID)
	}

	lockID, err := m.locks.Acquire(ctx, schemaID)
	if err != nil {
		return nil, err
	}

	tx := &domain.SchemaTransaction{
		ID:        uuid.NewString(),
		SchemaID:  schemaID,
		OwnerID:   ownerID,
		Status:    domain.TxStatusPending,
		StartedAt: time.Now().UTC(),
		LockID:    lockID,
	}
	if err := m.txs.Create(ctx, tx); err != nil {
		m.locks.Release(ctx, schemaID, lockID)
		return nil, err
	}

	m.logger.Info("schema transaction started", "tx", tx.ID, "schema", schemaID)
	return tx, nil
}

// AddOperation appends an operation to a pending transaction. Order is
// assigned by arrival.
func (m *Manager) AddOperation(ctx context.Context, ownerID, txID string, op domain.SchemaOperation) (*domain.SchemaTransaction, error) {
	tx, err := m.pendingTx(ctx, ownerID, txID)
	if err != nil {
		return nil, err
	}
	if err := validateOperation(op); err != nil {
		return nil, err
	}

	op.Order = len(tx.Operations) + 1
	op.Status = domain.OpStatusPending
	tx.Operations = append(tx.Operations, op)

	if err := m.txs.Update(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// Commit applies the operation log, in order, to a snapshot of the
// current schema and persists the mutated snapshot as version N+1. The
// first failing operation halts the batch: it is marked failed, the rest
// skipped, the transaction failed, and the stored schema is untouched.
func (m *Manager) Commit(ctx context.Context, ownerID, txID string) (*domain.SchemaTransaction, error) {
	tx, err := m.pendingTx(ctx, ownerID, txID)
	if err != nil {
		return nil, err
	}
	defer m.locks.Release(ctx, tx.SchemaID, tx.LockID)

	schema, err := m.schemas.GetByID(ctx, tx.SchemaID)
	if err != nil {
		return nil, m.finish(ctx, tx, domain.TxStatusFailed, err)
	}

	next := schema.Clone()
	for i := range tx.Operations {
		if err := applyOperation(next, &tx.Operations[i]); err != nil {
			tx.Operations[i].Status = domain.OpStatusFailed
			tx.Operations[i].ErrorMessage = err.Error()
			for j := i + 1; j < len(tx.Operations); j++ {
				tx.Operations[j].Status = domain.OpStatusSkipped
			}
			return tx, m.finish(ctx, tx, domain.TxStatusFailed, err)
		}
		tx.Operations[i].Status = domain.OpStatusApplied
	}

	next.Version = schema.Version + 1
	if _, err := m.schemas.PersistVersion(ctx, next); err != nil {
		return tx, m.finish(ctx, tx, domain.TxStatusFailed, err)
	}

	if err := m.finish(ctx, tx, domain.TxStatusCommitted, nil); err != nil {
		return tx, err
	}
	m.logger.Info("schema transaction committed",
		"tx", tx.ID, "schema", tx.SchemaID, "version", next.Version, "operations", len(tx.Operations))
	return tx, nil
}

// Rollback discards a pending transaction without touching the schema.
func (m *Manager) Rollback(ctx context.Context, ownerID, txID string) (*domain.SchemaTransaction, error) {
	tx, err := m.pendingTx(ctx, ownerID, txID)
	if err != nil {
		return nil, err
	}
	defer m.locks.Release(ctx, tx.SchemaID, tx.LockID)

	for i := range tx.Operations {
		tx.Operations[i].Status = domain.OpStatusSkipped
	}
	if err := m.finish(ctx, tx, domain.TxStatusRolledBack, nil); err != nil {
		return tx, err
	}
	m.logger.Info("schema transaction rolled back", "tx", tx.ID, "schema", tx.SchemaID)
	return tx, nil
}

// History lists recent transactions for a schema, newest first.
func (m *Manager) History(ctx context.Context, ownerID, schemaID string, limit int) ([]domain.SchemaTransaction, error) {
	schema, err := m.schemas.GetByID(ctx, schemaID)
	if err != nil {
		return nil, err
	}
	if schema.OwnerID != ownerID {
		return nil, domain.ErrAccessDenied("schema %q does not belong to the requesting owner", schemaID)
	}
	if limit <= 0 {
		limit = 50
	}
	return m.txReads.ListForSchema(ctx, schemaID, limit)
}

// Get returns a transaction with its operation log.
func (m *Manager) Get(ctx context.Context, ownerID, txID string) (*domain.SchemaTransaction, error) {
	tx, err := m.txReads.GetByID(ctx, txID)
	if err != nil {
		return nil, err
	}
	if err := checkTxOwner(tx, ownerID); err != nil {
		return nil, err
	}
	return tx, nil
}

// pendingTx reads through the write pool: the mutation paths must see
// the log they just appended.
func (m *Manager) pendingTx(ctx context.Context, ownerID, txID string) (*domain.SchemaTransaction, error) {
	tx, err := m.txs.GetByID(ctx, txID)
	if err != nil {
		return nil, err
	}
	if err := checkTxOwner(tx, ownerID); err != nil {
		return nil, err
	}
	if tx.IsTerminal() {
		return nil, domain.ErrConflict("transaction %q is already %s", txID, tx.Status)
	}
	return tx, nil
}

func checkTxOwner(tx *domain.SchemaTransaction, ownerID string) error {
	if tx.OwnerID != ownerID {
		return domain.ErrAccessDenied("transaction %q does not belong to the requesting owner", tx.ID)
	}
	return nil
}

// finish writes the terminal state. cause, when non-nil, becomes the
// returned error so callers see why the commit failed.
func (m *Manager) finish(ctx context.Context, tx *domain.SchemaTransaction, status string, cause error) error {
	now := time.Now().UTC()
	tx.Status = status
	tx.CompletedAt = &now
	if err := m.txs.Update(ctx, tx); err != nil {
		m.logger.Error("transaction state update failed", "tx", tx.ID, "status", status, "error", err)
		if cause == nil {
			return err
		}
	}
	return cause
}

func validateOperation(op domain.SchemaOperation) error {
	switch op.Type {
	case domain.OpAddColumn, domain.OpRemoveColumn, domain.OpModifyColumn:
		if op.Target == "" {
			return domain.ErrValidation("%s requires a target column name", op.Type)
		}
	case domain.OpUpdateSchema:
		if len(op.Params) == 0 {
			return domain.ErrValidation("update_schema requires params")
		}
	default:
		return domain.ErrValidation("unknown operation type %q", op.Type)
	}
	return nil
}

// applyOperation mutates the snapshot according to one operation.
func applyOperation(schema *domain.Schema, op *domain.SchemaOperation) error {
	switch op.Type {
	case domain.OpAddColumn:
		if schema.Column(op.Target) != nil {
			return domain.ErrConflict("column %q already exists", op.Target)
		}
		col := domain.SchemaColumn{Name: op.Target, Type: domain.TypeText}
		applyColumnParams(&col, op.Params)
		schema.Columns = append(schema.Columns, col)
		return nil

	case domain.OpRemoveColumn:
		for i := range schema.Columns {
			if schema.Columns[i].Name == op.Target {
				schema.Columns = append(schema.Columns[:i], schema.Columns[i+1:]...)
				return nil
			}
		}
		return domain.ErrNotFound("column %q does not exist", op.Target)

	case domain.OpModifyColumn:
		col := schema.Column(op.Target)
		if col == nil {
			return domain.ErrNotFound("column %q does not exist", op.Target)
		}
		applyColumnParams(col, op.Params)
		return nil

	case domain.OpUpdateSchema:
		if v, ok := op.Params["name"].(string); ok && v != "" {
			schema.Name = v
		}
		if v, ok := op.Params["description"].(string); ok {
			schema.Description = v
		}
		return nil

	default:
		return fmt.Errorf("unknown operation type %q", op.Type)
	}
}

func applyColumnParams(col *domain.SchemaColumn, params map[string]interface{}) {
	if v, ok := params["type"].(string); ok && v != "" {
		col.Type = v
	}
	if v, ok := params["description"].(string); ok {
		col.Description = v
	}
	if v, ok := params["isRequired"].(bool); ok {
		col.IsRequired = v
	}
	if v, ok := params["isPrimaryKey"].(bool); ok {
		col.IsPrimaryKey = v
	}
}
