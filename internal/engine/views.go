package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/mr-cto/rapiddatachat/internal/domain"
)

// ViewService creates and drops the per-source and per-merge views over
// the row store. View creation is create-or-replace: at most one view
// exists per key and re-creation replaces it atomically.
type ViewService struct {
	eng     *Engine
	sources domain.SourceRepository
	logger  *slog.Logger
}

var _ domain.ViewManager = (*ViewService)(nil)

func NewViewService(eng *Engine, sources domain.SourceRepository, logger *slog.Logger) *ViewService {
	return &ViewService{eng: eng, sources: sources, logger: logger}
}

// CreateSourceView builds the base view for a source by sampling one row
// payload and projecting its fields as typed-as-text columns. The view
// name is recorded on the source for later resolution.
func (s *ViewService) CreateSourceView(ctx context.Context, ownerID, sourceID string) (string, error) {
	fields, err := s.samplePayloadFields(ctx, sourceID)
	if err != nil {
		return "", err
	}
	if len(fields) == 0 {
		return "", domain.ErrNotFound("no rows ingested for source %q", sourceID)
	}

	viewName := domain.ViewName(ownerID, sourceID)

	var proj strings.Builder
	proj.WriteString("row_id")
	for _, f := range fields {
		fmt.Fprintf(&proj, ", json_extract_string(payload, %s) AS %s",
			quoteLiteral("$."+f), quoteIdent(f))
	}

	stmt := fmt.Sprintf(
		"CREATE OR REPLACE VIEW %s AS SELECT %s FROM %s WHERE source_id = %s",
		quoteIdent(viewName), proj.String(), RowStoreTable, quoteLiteral(sourceID))
	if err := s.eng.Exec(ctx, stmt); err != nil {
		return "", fmt.Errorf("create view %q: %w", viewName, err)
	}

	if err := s.sources.SetViewName(ctx, sourceID, viewName); err != nil {
		return "", fmt.Errorf("record view mapping: %w", err)
	}

	s.logger.Info("created source view", "view", viewName, "source", sourceID, "fields", len(fields))
	return viewName, nil
}

// CreateMergedView builds the merged view for a definition: the base
// view's columns plus one computed column joining the ordered field list
// with the delimiter. Null or absent fields contribute an empty string
// rather than propagating NULL. A single-field merge is a plain
// passthrough projection.
func (s *ViewService) CreateMergedView(ctx context.Context, def *domain.MergedColumnDefinition) (string, error) {
	if err := def.Validate(); err != nil {
		return "", err
	}

	baseName, err := s.resolveBaseView(ctx, def.OwnerID, def.SourceID)
	if err != nil {
		return "", err
	}

	exists, err := s.eng.ViewExists(ctx, baseName)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", domain.ErrNotFound("base view %q does not exist for source %q", baseName, def.SourceID)
	}

	viewName := def.ViewName()
	stmt := fmt.Sprintf(
		"CREATE OR REPLACE VIEW %s AS SELECT *, %s AS %s FROM %s",
		quoteIdent(viewName), MergeExpression(def.Fields, def.Delimiter), quoteIdent(def.MergeName), quoteIdent(baseName))
	if err := s.eng.Exec(ctx, stmt); err != nil {
		return "", fmt.Errorf("create merged view %q: %w", viewName, err)
	}

	s.logger.Info("created merged view", "view", viewName, "base", baseName)
	return viewName, nil
}

// MergeExpression renders the SQL expression computing a merged column.
func MergeExpression(fields []string, delimiter string) string {
	if len(fields) == 1 {
		return fmt.Sprintf("coalesce(CAST(%s AS VARCHAR), '')", quoteIdent(fields[0]))
	}
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = fmt.Sprintf("coalesce(CAST(%s AS VARCHAR), '')", quoteIdent(f))
	}
	return strings.Join(parts, " || "+quoteLiteral(delimiter)+" || ")
}

// DropView drops a view if it exists; dropping an absent view succeeds.
func (s *ViewService) DropView(ctx context.Context, viewName string) error {
	return s.eng.Exec(ctx, "DROP VIEW IF EXISTS "+quoteIdent(viewName))
}

// Reactivate rebuilds a source's base view from the row store and flips
// the source back to active. Used when a resolved view yields no sample
// row.
func (s *ViewService) Reactivate(ctx context.Context, ownerID, sourceID string) (string, error) {
	viewName, err := s.CreateSourceView(ctx, ownerID, sourceID)
	if err != nil {
		return "", err
	}
	if err := s.sources.SetStatus(ctx, sourceID, domain.SourceStatusActive); err != nil {
		return "", fmt.Errorf("reactivate source %q: %w", sourceID, err)
	}
	return viewName, nil
}

// resolveBaseView prefers the recorded view mapping and falls back to the
// deterministic name.
func (s *ViewService) resolveBaseView(ctx context.Context, ownerID, sourceID string) (string, error) {
	src, err := s.sources.GetByID(ctx, ownerID, sourceID)
	if err != nil {
		return "", err
	}
	if src.ViewName != "" {
		return src.ViewName, nil
	}
	return domain.ViewName(ownerID, sourceID), nil
}

// samplePayloadFields reads one payload for the source and returns its
// field names sorted for a deterministic projection order.
func (s *ViewService) samplePayloadFields(ctx context.Context, sourceID string) ([]string, error) {
	rows, err := s.eng.Query(ctx,
		`SELECT payload FROM `+RowStoreTable+` WHERE source_id = ? LIMIT 1`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("sample source %q: %w", sourceID, err)
	}
	defer rows.Close() //nolint:errcheck

	if !rows.Next() {
		return nil, rows.Err()
	}

	var raw string
	if err := rows.Scan(&raw); err != nil {
		return nil, err
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("decode payload for source %q: %w", sourceID, err)
	}

	fields := make([]string, 0, len(payload))
	for k := range payload {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields, nil
}
