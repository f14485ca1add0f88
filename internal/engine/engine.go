// Package engine provides the relational execution boundary over the
// DuckDB row store: raw SQL execution, dry-run planning, and
// information_schema lookups used for view resolution.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/mr-cto/rapiddatachat/internal/domain"
)

// RowStoreTable is the single append-only row table shared by all
// sources. The ingestion pipeline owns writes to it; the core reads it
// and derives views from it.
const RowStoreTable = "source_rows"

// Engine wraps a DuckDB handle and implements domain.RowEngine.
type Engine struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ domain.RowEngine = (*Engine)(nil)

func New(db *sql.DB, logger *slog.Logger) *Engine {
	return &Engine{db: db, logger: logger}
}

// EnsureRowStore creates the shared row table when it does not exist yet.
// Deployments where ingestion runs first see this as a no-op.
func (e *Engine) EnsureRowStore(ctx context.Context) error {
	_, err := e.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS `+RowStoreTable+` (
			source_id   VARCHAR NOT NULL,
			row_id      BIGINT NOT NULL,
			payload     JSON NOT NULL,
			ingested_at TIMESTAMP NOT NULL DEFAULT current_timestamp
		)`)
	if err != nil {
		return fmt.Errorf("ensure row store: %w", err)
	}
	return nil
}

func (e *Engine) Query(ctx context.Context, sqlText string, args ...interface{}) (*sql.Rows, error) {
	e.logger.Debug("engine query", "sql", sqlText)
	return e.db.QueryContext(ctx, sqlText, args...)
}

func (e *Engine) Exec(ctx context.Context, sqlText string, args ...interface{}) error {
	e.logger.Debug("engine exec", "sql", sqlText)
	_, err := e.db.ExecContext(ctx, sqlText, args...)
	return err
}

// Explain runs a dry-run plan of the statement without touching data. It
// surfaces unknown relations and syntax errors before execution.
func (e *Engine) Explain(ctx context.Context, sqlText string, args ...interface{}) error {
	rows, err := e.db.QueryContext(ctx, "EXPLAIN "+sqlText, args...)
	if err != nil {
		return err
	}
	return rows.Close()
}

// ViewExists checks information_schema for a view or table of that name.
// Base tables count too: the raw row-store fallback queries the table
// directly.
func (e *Engine) ViewExists(ctx context.Context, viewName string) (bool, error) {
	var n int
	err := e.db.QueryRowContext(ctx,
		`SELECT count(*) FROM information_schema.tables WHERE table_name = ?`, viewName).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check view %q: %w", viewName, err)
	}
	return n > 0, nil
}

// ListViews returns all view names visible in information_schema.
func (e *Engine) ListViews(ctx context.Context) ([]string, error) {
	rows, err := e.db.QueryContext(ctx,
		`SELECT table_name FROM information_schema.tables WHERE table_type = 'VIEW' ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("list views: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// quoteIdent quotes a SQL identifier with double quotes, doubling any
// embedded quote characters.
func quoteIdent(s string) string {
	out := make([]byte, 0, len(s)+2)
	out = append(out, '"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' {
			out = append(out, '"', '"')
		} else {
			out = append(out, s[i])
		}
	}
	return string(append(out, '"'))
}

// quoteLiteral quotes a SQL string literal, doubling embedded single
// quotes. View definitions cannot carry bound parameters, so scoping
// predicates are spliced as literals.
func quoteLiteral(s string) string {
	out := make([]byte, 0, len(s)+2)
	out = append(out, '\'')
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\'', '\'')
		} else {
			out = append(out, s[i])
		}
	}
	return string(append(out, '\''))
}
