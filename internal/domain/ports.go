package domain

import (
	"context"
	"database/sql"
	"time"
)

// SourceRepository provides read access to uploaded sources plus the two
// mutations the core is allowed to make (view mapping, status).
type SourceRepository interface {
	GetByID(ctx context.Context, ownerID, sourceID string) (*Source, error)
	ListActive(ctx context.Context, ownerID string) ([]Source, error)
	SetViewName(ctx context.Context, sourceID, viewName string) error
	SetStatus(ctx context.Context, sourceID, status string) error
}

// MergedColumnRepository stores merged-column definitions.
type MergedColumnRepository interface {
	Create(ctx context.Context, def *MergedColumnDefinition) (*MergedColumnDefinition, error)
	Update(ctx context.Context, def *MergedColumnDefinition) (*MergedColumnDefinition, error)
	Delete(ctx context.Context, ownerID, sourceID, mergeName string) error
	Get(ctx context.Context, ownerID, sourceID, mergeName string) (*MergedColumnDefinition, error)
	ListForSource(ctx context.Context, ownerID, sourceID string) ([]MergedColumnDefinition, error)
}

// SchemaRepository stores versioned logical schemas. Persist writes a new
// version row and deactivates the prior one in a single transaction.
type SchemaRepository interface {
	GetByID(ctx context.Context, schemaID string) (*Schema, error)
	GetActive(ctx context.Context, ownerID, projectID, name string) (*Schema, error)
	Create(ctx context.Context, s *Schema) (*Schema, error)
	PersistVersion(ctx context.Context, s *Schema) (*Schema, error)
}

// LockRepository implements the lease-based mutex over a lock table.
// TryAcquire is a compare-and-insert: it succeeds only when no live lock
// exists for the scope key.
type LockRepository interface {
	TryAcquire(ctx context.Context, lock *SchemaLock) (bool, error)
	Get(ctx context.Context, scopeKey string) (*SchemaLock, error)
	Release(ctx context.Context, scopeKey, lockID string) error
	DeleteExpired(ctx context.Context, scopeKey string, now time.Time) error
}

// TransactionRepository persists schema transactions and their operation
// logs for auditability.
type TransactionRepository interface {
	Create(ctx context.Context, tx *SchemaTransaction) error
	GetByID(ctx context.Context, txID string) (*SchemaTransaction, error)
	Update(ctx context.Context, tx *SchemaTransaction) error
	ListForSchema(ctx context.Context, schemaID string, limit int) ([]SchemaTransaction, error)
}

// DeadLetterRepository stores operations that exhausted containment.
type DeadLetterRepository interface {
	Insert(ctx context.Context, item *DeadLetterItem) error
	ListDue(ctx context.Context, now time.Time, maxRetries, limit int) ([]DeadLetterItem, error)
	Update(ctx context.Context, item *DeadLetterItem) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, limit int) ([]DeadLetterItem, error)
}

// RowEngine is the relational execution boundary over the row store. Any
// engine exposing SQL execution plus information_schema metadata suffices.
type RowEngine interface {
	Query(ctx context.Context, sqlText string, args ...interface{}) (*sql.Rows, error)
	Exec(ctx context.Context, sqlText string, args ...interface{}) error
	Explain(ctx context.Context, sqlText string, args ...interface{}) error
	ViewExists(ctx context.Context, viewName string) (bool, error)
	ListViews(ctx context.Context) ([]string, error)
}

// ViewManager creates and drops the per-source and per-merge views.
type ViewManager interface {
	CreateSourceView(ctx context.Context, ownerID, sourceID string) (string, error)
	CreateMergedView(ctx context.Context, def *MergedColumnDefinition) (string, error)
	DropView(ctx context.Context, viewName string) error
	Reactivate(ctx context.Context, ownerID, sourceID string) (string, error)
}

// Translator is the external natural-language-to-SQL capability. Its
// output is untrusted and must pass the full validation pipeline.
type Translator interface {
	TranslateToSQL(ctx context.Context, question, schemaText, sampleText string) (*Translation, error)
}

// Translation is the raw translator output. SQL may be an advisory
// message rather than a statement; the validator decides.
type Translation struct {
	SQL         string
	Explanation string
}
