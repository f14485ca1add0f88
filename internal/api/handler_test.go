package api_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr-cto/rapiddatachat/internal/api"
	"github.com/mr-cto/rapiddatachat/internal/app"
	"github.com/mr-cto/rapiddatachat/internal/config"
	internaldb "github.com/mr-cto/rapiddatachat/internal/db"
	"github.com/mr-cto/rapiddatachat/internal/db/repository"
	"github.com/mr-cto/rapiddatachat/internal/domain"
	"github.com/mr-cto/rapiddatachat/internal/engine"
)

type testServer struct {
	router  http.Handler
	writeDB *sql.DB
	rowDB   *sql.DB
	app     *app.App
}

// newTestServer wires the full application over a temp SQLite metastore
// and an in-memory DuckDB row store. The metastore uses distinct write
// and read pools, as in production, so the GET routes prove that reads
// through the read pool see writes committed on the write pool.
func newTestServer(t *testing.T) *testServer {
	t.Helper()

	writeDB, readDB, err := internaldb.OpenSQLitePair(filepath.Join(t.TempDir(), "meta.sqlite"), 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = readDB.Close()
		_ = writeDB.Close()
	})
	require.NoError(t, internaldb.RunMigrations(writeDB))

	rowDB, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = rowDB.Close() })

	logger := slog.New(slog.DiscardHandler)
	cfg := &config.Config{
		QueryTimeout:    5 * time.Second,
		LockRetries:     3,
		LockRetryDelay:  time.Millisecond,
		LockTimeout:     30 * time.Second,
		SweepMaxRetries: 5,
		SweepBatchSize:  50,
	}

	a, err := app.New(context.Background(), app.Deps{
		Cfg: cfg, WriteDB: writeDB, ReadDB: readDB, RowDB: rowDB, Logger: logger,
	})
	require.NoError(t, err)
	require.NoError(t, a.Engine.EnsureRowStore(context.Background()))

	handler := api.NewHandler(
		a.Services.Discovery, a.Services.Ask, a.Services.Query,
		a.Services.Merge, a.Services.SchemaTx, a.Services.DeadLetters, logger)
	router := api.NewRouter(handler, api.RouterConfig{CORSAllowedOrigins: []string{"*"}})

	return &testServer{router: router, writeDB: writeDB, rowDB: rowDB, app: a}
}

func (ts *testServer) do(t *testing.T, method, path, owner string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if owner != "" {
		req.Header.Set("X-Owner-ID", owner)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) seedSource(t *testing.T, owner, sourceID string, rows ...string) {
	t.Helper()
	now := time.Now().UTC()
	_, err := ts.writeDB.Exec(
		`INSERT INTO sources (id, owner_id, display_name, status, view_name, created_at, updated_at)
		 VALUES (?, ?, ?, ?, '', ?, ?)`,
		sourceID, owner, sourceID, domain.SourceStatusActive, now, now)
	require.NoError(t, err)
	for i, payload := range rows {
		_, err := ts.rowDB.Exec(
			`INSERT INTO `+engine.RowStoreTable+` (source_id, row_id, payload) VALUES (?, ?, ?)`,
			sourceID, i+1, payload)
		require.NoError(t, err)
	}
	_, err = ts.app.Views.CreateSourceView(context.Background(), owner, sourceID)
	require.NoError(t, err)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMissingOwnerHeader(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/v1/schema", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "X-Owner-ID")
}

func TestGetSchema(t *testing.T) {
	ts := newTestServer(t)
	ts.seedSource(t, "u1", "people", `{"name":"John","city":"Berlin"}`)

	rec := ts.do(t, http.MethodGet, "/v1/schema", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	tables := body["tables"].([]interface{})
	require.Len(t, tables, 1)
	table := tables[0].(map[string]interface{})
	assert.Equal(t, "u1_file_people", table["viewName"])
	assert.EqualValues(t, 1, table["rowCount"])
}

func TestRunQuery_EndToEnd(t *testing.T) {
	ts := newTestServer(t)
	ts.seedSource(t, "u1", "people",
		`{"name":"John","city":"Berlin"}`,
		`{"name":"Jane","city":"Paris"}`,
		`{"name":"Jim","city":"Berlin"}`)

	rec := ts.do(t, http.MethodPost, "/v1/query", "u1", map[string]interface{}{
		"sql": "SELECT name, city FROM u1_file_people",
		"options": map[string]interface{}{
			"pageSize": 10,
			"filters":  map[string]interface{}{"city": "Berlin"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	require.Equal(t, true, body["isValid"])
	page := body["page"].(map[string]interface{})
	assert.EqualValues(t, 2, page["totalRows"])
}

func TestRunQuery_RejectsMutation(t *testing.T) {
	ts := newTestServer(t)
	ts.seedSource(t, "u1", "people", `{"name":"John"}`)

	rec := ts.do(t, http.MethodPost, "/v1/query", "u1", map[string]interface{}{
		"sql": "DROP TABLE u1_file_people",
	})
	require.Equal(t, http.StatusOK, rec.Code, "invalid statements are reported, not errored")

	body := decodeBody(t, rec)
	assert.Equal(t, false, body["isValid"])
	assert.NotEmpty(t, body["error"])
}

func TestMergeLifecycle(t *testing.T) {
	ts := newTestServer(t)
	ts.seedSource(t, "u1", "people", `{"first_name":"John","last_name":"Doe"}`)

	create := ts.do(t, http.MethodPost, "/v1/sources/people/merges", "u1", map[string]interface{}{
		"mergeName": "full_name",
		"fields":    []string{"first_name", "last_name"},
		"delimiter": " ",
	})
	require.Equal(t, http.StatusCreated, create.Code, create.Body.String())

	// The merged view answers queries.
	var fullName string
	require.NoError(t, ts.rowDB.QueryRow(
		`SELECT full_name FROM merged_u1_people_full_name`).Scan(&fullName))
	assert.Equal(t, "John Doe", fullName)

	list := ts.do(t, http.MethodGet, "/v1/sources/people/merges", "u1", nil)
	require.Equal(t, http.StatusOK, list.Code)
	merges := decodeBody(t, list)["merges"].([]interface{})
	require.Len(t, merges, 1)

	del := ts.do(t, http.MethodDelete, "/v1/sources/people/merges/full_name", "u1", nil)
	require.Equal(t, http.StatusOK, del.Code)

	get := ts.do(t, http.MethodGet, "/v1/sources/people/merges/full_name", "u1", nil)
	assert.Equal(t, http.StatusNotFound, get.Code)
}

func TestSchemaTransactionLifecycle(t *testing.T) {
	ts := newTestServer(t)

	schemaRepo := repository.NewSchemaRepo(ts.writeDB)
	schema, err := schemaRepo.Create(context.Background(), &domain.Schema{
		OwnerID: "u1", Name: "orders",
		Columns: []domain.SchemaColumn{{Name: "id", Type: domain.TypeInteger}},
	})
	require.NoError(t, err)

	begin := ts.do(t, http.MethodPost, fmt.Sprintf("/v1/schemas/%s/transactions", schema.ID), "u1", nil)
	require.Equal(t, http.StatusCreated, begin.Code, begin.Body.String())
	txID := decodeBody(t, begin)["id"].(string)

	add := ts.do(t, http.MethodPost, "/v1/transactions/"+txID+"/operations", "u1", map[string]interface{}{
		"type":   domain.OpAddColumn,
		"target": "city",
		"params": map[string]interface{}{"type": domain.TypeText},
	})
	require.Equal(t, http.StatusOK, add.Code, add.Body.String())

	commit := ts.do(t, http.MethodPost, "/v1/transactions/"+txID+"/commit", "u1", nil)
	require.Equal(t, http.StatusOK, commit.Code, commit.Body.String())
	assert.Equal(t, domain.TxStatusCommitted, decodeBody(t, commit)["status"])

	// The schema advanced exactly one version.
	head, err := schemaRepo.GetByID(context.Background(), schema.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, head.Version)
	assert.NotNil(t, head.Column("city"))
}

func TestSchemaTransaction_OwnershipEnforced(t *testing.T) {
	ts := newTestServer(t)

	schemaRepo := repository.NewSchemaRepo(ts.writeDB)
	schema, err := schemaRepo.Create(context.Background(), &domain.Schema{OwnerID: "u1", Name: "orders"})
	require.NoError(t, err)

	rec := ts.do(t, http.MethodPost, fmt.Sprintf("/v1/schemas/%s/transactions", schema.ID), "intruder", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDeadLetters_ListAndDelete(t *testing.T) {
	ts := newTestServer(t)

	id := ts.app.Services.DeadLetters.Record(context.Background(), "op",
		map[string]interface{}{"k": "v"}, fmt.Errorf("i/o timeout"))
	require.NotEmpty(t, id)

	list := ts.do(t, http.MethodGet, "/v1/deadletters", "u1", nil)
	require.Equal(t, http.StatusOK, list.Code)
	items := decodeBody(t, list)["deadLetters"].([]interface{})
	require.Len(t, items, 1)

	del := ts.do(t, http.MethodDelete, "/v1/deadletters/"+id, "u1", nil)
	require.Equal(t, http.StatusOK, del.Code)

	list = ts.do(t, http.MethodGet, "/v1/deadletters", "u1", nil)
	items = decodeBody(t, list)["deadLetters"].([]interface{})
	assert.Empty(t, items)
}

func TestAsk_WithoutTranslatorConfigured(t *testing.T) {
	ts := newTestServer(t)
	ts.seedSource(t, "u1", "people", `{"name":"John"}`)

	rec := ts.do(t, http.MethodPost, "/v1/ask", "u1", map[string]interface{}{
		"question": "who is there?",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "disabled")
}
