package domain

import "time"

// Transaction states. pending is the only non-terminal state.
const (
	TxStatusPending    = "pending"
	TxStatusCommitted  = "committed"
	TxStatusRolledBack = "rolled_back"
	TxStatusFailed     = "failed"
)

// Operation types accepted by a schema transaction.
const (
	OpAddColumn    = "add_column"
	OpRemoveColumn = "remove_column"
	OpModifyColumn = "modify_column"
	OpUpdateSchema = "update_schema"
)

// Operation states.
const (
	OpStatusPending = "pending"
	OpStatusApplied = "applied"
	OpStatusFailed  = "failed"
	OpStatusSkipped = "skipped"
)

// SchemaOperation is one structural mutation inside a transaction.
// Operations execute strictly in Order; the first failure halts the
// transaction.
type SchemaOperation struct {
	Type         string                 `json:"type"`
	Target       string                 `json:"target"`
	Params       map[string]interface{} `json:"params,omitempty"`
	Order        int                    `json:"order"`
	Status       string                 `json:"status"`
	ErrorMessage string                 `json:"errorMessage,omitempty"`
}

// SchemaTransaction is an ordered batch of schema mutations applied under
// a lease-based lock.
type SchemaTransaction struct {
	ID          string
	SchemaID    string
	OwnerID     string
	Status      string
	Operations  []SchemaOperation
	StartedAt   time.Time
	CompletedAt *time.Time
	LockID      string
}

// IsTerminal reports whether the transaction reached a final state.
func (t *SchemaTransaction) IsTerminal() bool {
	return t.Status != TxStatusPending
}
