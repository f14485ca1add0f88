package translator

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	return NewClient(srv.URL, slog.New(slog.DiscardHandler)), srv
}

func TestTranslateToSQL(t *testing.T) {
	var got translateRequest
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/translate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(translateResponse{
			SQL:         "SELECT * FROM u1_file_people",
			Explanation: "all people",
		})
	})
	defer srv.Close()

	translation, err := client.TranslateToSQL(context.Background(),
		"show everyone", "Table u1_file_people:", "Sample row: {}")
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM u1_file_people", translation.SQL)
	assert.Equal(t, "all people", translation.Explanation)

	assert.Equal(t, "show everyone", got.Question)
	assert.Equal(t, "Table u1_file_people:", got.Schema)
	assert.Equal(t, "Sample row: {}", got.SampleRows)
}

func TestTranslateToSQL_ServiceError(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(translateResponse{Error: "model unavailable"})
	})
	defer srv.Close()

	_, err := client.TranslateToSQL(context.Background(), "q", "schema", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model unavailable")
}

func TestTranslateToSQL_NonOKStatus(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})
	defer srv.Close()

	_, err := client.TranslateToSQL(context.Background(), "q", "schema", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestTranslateToSQL_MalformedBody(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	})
	defer srv.Close()

	_, err := client.TranslateToSQL(context.Background(), "q", "schema", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode translator response")
}

func TestTranslateToSQL_ContextCancelled(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.TranslateToSQL(ctx, "q", "schema", "")
	require.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "abcde...", truncate("abcdefgh", 5))
}
