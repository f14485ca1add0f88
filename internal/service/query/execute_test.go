package query_test

import (
	"context"
	"database/sql"
	"log/slog"
	"testing"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr-cto/rapiddatachat/internal/domain"
	"github.com/mr-cto/rapiddatachat/internal/engine"
	"github.com/mr-cto/rapiddatachat/internal/service/query"
)

func newExecService(t *testing.T) (*query.Service, *sql.DB) {
	t.Helper()
	db, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	logger := slog.New(slog.DiscardHandler)
	eng := engine.New(db, logger)
	return query.NewService(eng, 0, logger), db
}

func seedPeople(t *testing.T, db *sql.DB, n int) {
	t.Helper()
	_, err := db.Exec(`CREATE TABLE people (id INTEGER, name VARCHAR, city VARCHAR)`)
	require.NoError(t, err)
	for i := 1; i <= n; i++ {
		city := "Berlin"
		if i%2 == 0 {
			city = "Paris"
		}
		_, err := db.Exec(`INSERT INTO people VALUES (?, ?, ?)`, i, "person", city)
		require.NoError(t, err)
	}
}

func TestExecute_Paginates(t *testing.T) {
	svc, db := newExecService(t)
	seedPeople(t, db, 10)

	page, err := svc.Execute(context.Background(), "SELECT * FROM people ORDER BY id",
		domain.QueryOptions{Page: 2, PageSize: 3})
	require.NoError(t, err)

	assert.Len(t, page.Rows, 3)
	assert.EqualValues(t, 10, page.TotalRows)
	assert.EqualValues(t, 4, page.TotalPages)
	assert.Equal(t, 2, page.CurrentPage)
	assert.Contains(t, page.SQL, "LIMIT 3 OFFSET 3")
}

func TestExecute_LastPageIsPartial(t *testing.T) {
	svc, db := newExecService(t)
	seedPeople(t, db, 10)

	page, err := svc.Execute(context.Background(), "SELECT * FROM people ORDER BY id",
		domain.QueryOptions{Page: 4, PageSize: 3})
	require.NoError(t, err)
	assert.Len(t, page.Rows, 1)
	assert.EqualValues(t, 4, page.TotalPages)
}

func TestExecute_FiltersBindAsParameters(t *testing.T) {
	svc, db := newExecService(t)
	seedPeople(t, db, 10)

	page, err := svc.Execute(context.Background(), "SELECT * FROM people",
		domain.QueryOptions{Filters: map[string]interface{}{"city": "Paris"}})
	require.NoError(t, err)
	assert.Len(t, page.Rows, 5)
	assert.EqualValues(t, 5, page.TotalRows)
}

func TestExecute_SortApplies(t *testing.T) {
	svc, db := newExecService(t)
	seedPeople(t, db, 3)

	page, err := svc.Execute(context.Background(), "SELECT id FROM people",
		domain.QueryOptions{SortColumn: "id", SortDirection: domain.SortDesc})
	require.NoError(t, err)
	require.Len(t, page.Rows, 3)
	assert.EqualValues(t, 3, page.Rows[0][0])
}

func TestExecute_CountIgnoresPagination(t *testing.T) {
	svc, db := newExecService(t)
	seedPeople(t, db, 7)

	// A translator-supplied LIMIT is replaced; the count still covers the
	// whole result set.
	page, err := svc.Execute(context.Background(), "SELECT * FROM people LIMIT 2",
		domain.QueryOptions{Page: 1, PageSize: 5})
	require.NoError(t, err)
	assert.Len(t, page.Rows, 5)
	assert.EqualValues(t, 7, page.TotalRows)
}

func TestExecute_AttemptedSQLOnError(t *testing.T) {
	svc, _ := newExecService(t)

	page, err := svc.Execute(context.Background(), "SELECT * FROM nope", domain.QueryOptions{})
	require.Error(t, err)
	require.NotNil(t, page)
	assert.Contains(t, page.SQL, "SELECT * FROM nope")
}

func TestExecute_RejectsBadOptions(t *testing.T) {
	svc, _ := newExecService(t)

	_, err := svc.Execute(context.Background(), "SELECT 1", domain.QueryOptions{Page: -1})
	require.Error(t, err)
	assert.IsType(t, &domain.ValidationError{}, err)
}
