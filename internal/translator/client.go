// Package translator is the HTTP client for the external
// natural-language-to-SQL service. Its output is untrusted text; every
// statement it returns goes through the full validation pipeline before
// execution.
package translator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mr-cto/rapiddatachat/internal/domain"
)

const defaultRequestTimeout = 60 * time.Second

// Client implements domain.Translator over a JSON POST endpoint.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

var _ domain.Translator = (*Client)(nil)

func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultRequestTimeout},
		logger:  logger,
	}
}

type translateRequest struct {
	Question   string `json:"question"`
	Schema     string `json:"schema"`
	SampleRows string `json:"sampleRows,omitempty"`
}

type translateResponse struct {
	SQL         string `json:"sql"`
	Explanation string `json:"explanation,omitempty"`
	Error       string `json:"error,omitempty"`
}

// TranslateToSQL sends the question with the schema and sample context
// and returns the raw translation.
func (c *Client) TranslateToSQL(ctx context.Context, question, schemaText, sampleText string) (*domain.Translation, error) {
	body, err := json.Marshal(translateRequest{
		Question:   question,
		Schema:     schemaText,
		SampleRows: sampleText,
	})
	if err != nil {
		return nil, fmt.Errorf("encode translation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/translate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build translation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("translator request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read translator response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("translator returned status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var out translateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode translator response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("translator error: %s", out.Error)
	}

	c.logger.Debug("translation received", "elapsed", time.Since(start), "bytes", len(out.SQL))
	return &domain.Translation{SQL: out.SQL, Explanation: out.Explanation}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
