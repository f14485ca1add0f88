// Package discovery resolves every queryable source for an owner into a
// described table: its view name, inferred columns, row count, merged
// columns, and one sample row. Discovery is best-effort by contract — a
// source that cannot be described is skipped with a log line, never an
// error, so one broken source cannot hide the rest.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mr-cto/rapiddatachat/internal/domain"
	"github.com/mr-cto/rapiddatachat/internal/engine"
)

// maxConcurrentSources bounds parallel per-source discovery work.
const maxConcurrentSources = 8

type Service struct {
	sources domain.SourceRepository
	merges  domain.MergedColumnRepository
	eng     domain.RowEngine
	views   domain.ViewManager
	logger  *slog.Logger
}

func NewService(
	sources domain.SourceRepository,
	merges domain.MergedColumnRepository,
	eng domain.RowEngine,
	views domain.ViewManager,
	logger *slog.Logger,
) *Service {
	return &Service{sources: sources, merges: merges, eng: eng, views: views, logger: logger}
}

// DiscoverSchema describes every queryable source the owner has. Sources
// are discovered concurrently; failures degrade to omission. An owner
// with no describable sources gets an empty slice, not an error.
func (s *Service) DiscoverSchema(ctx context.Context, ownerID string) ([]domain.DiscoveredTable, error) {
	srcs, err := s.sources.ListActive(ctx, ownerID)
	if err != nil {
		s.logger.Error("list sources failed", "owner", ownerID, "error", err)
		return []domain.DiscoveredTable{}, nil
	}

	var (
		mu     sync.Mutex
		tables = make([]domain.DiscoveredTable, 0, len(srcs))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentSources)
	for i := range srcs {
		src := srcs[i]
		g.Go(func() error {
			table, err := s.discoverOne(gctx, &src)
			if err != nil {
				s.logger.Warn("source skipped during discovery",
					"source", src.ID, "owner", ownerID, "error", err)
				return nil
			}
			mu.Lock()
			tables = append(tables, *table)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })
	return tables, nil
}

// discoverOne describes a single source: resolve its view, sample it,
// count it, infer column types, and attach merged-column definitions.
func (s *Service) discoverOne(ctx context.Context, src *domain.Source) (*domain.DiscoveredTable, error) {
	viewName, sample, err := s.resolveAndSample(ctx, src)
	if err != nil {
		return nil, err
	}

	count, err := s.countRows(ctx, viewName, src.ID)
	if err != nil {
		return nil, err
	}

	merges, err := s.merges.ListForSource(ctx, src.OwnerID, src.ID)
	if err != nil {
		// Merge metadata is an enrichment, not a requirement.
		s.logger.Warn("merge lookup failed", "source", src.ID, "error", err)
		merges = nil
	}

	return &domain.DiscoveredTable{
		Name:     src.DisplayName,
		ViewName: viewName,
		Columns:  inferColumns(sample),
		RowCount: count,
		Merges:   merges,
		Sample:   sample,
	}, nil
}

// resolveAndSample tries each resolution strategy in order — recorded
// mapping, deterministic name, legacy name — and samples the first view
// that exists. A view that exists but yields no sample gets one
// reactivation attempt before the raw row-store fallback.
func (s *Service) resolveAndSample(ctx context.Context, src *domain.Source) (string, map[string]interface{}, error) {
	for _, candidate := range s.candidateViews(src) {
		exists, err := s.eng.ViewExists(ctx, candidate)
		if err != nil {
			return "", nil, err
		}
		if !exists {
			continue
		}

		sample, err := s.sampleView(ctx, candidate)
		if err != nil {
			return "", nil, err
		}
		if sample != nil {
			return candidate, sample, nil
		}

		// The view exists but projects nothing; rebuild it once.
		rebuilt, err := s.views.Reactivate(ctx, src.OwnerID, src.ID)
		if err != nil {
			s.logger.Warn("view reactivation failed", "source", src.ID, "view", candidate, "error", err)
			break
		}
		sample, err = s.sampleView(ctx, rebuilt)
		if err != nil || sample == nil {
			break
		}
		return rebuilt, sample, nil
	}

	return s.sampleRowStore(ctx, src)
}

func (s *Service) candidateViews(src *domain.Source) []string {
	candidates := make([]string, 0, 3)
	if src.ViewName != "" {
		candidates = append(candidates, src.ViewName)
	}
	candidates = append(candidates,
		domain.ViewName(src.OwnerID, src.ID),
		domain.LegacyViewName(src.OwnerID, src.ID))
	return candidates
}

// sampleView reads one row from a view as a column→value map. No rows is
// (nil, nil), not an error.
func (s *Service) sampleView(ctx context.Context, viewName string) (map[string]interface{}, error) {
	rows, err := s.eng.Query(ctx, fmt.Sprintf("SELECT * FROM %q LIMIT 1", viewName))
	if err != nil {
		return nil, fmt.Errorf("sample view %q: %w", viewName, err)
	}
	defer rows.Close() //nolint:errcheck

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if !rows.Next() {
		return nil, rows.Err()
	}

	values := make([]interface{}, len(columns))
	ptrs := make([]interface{}, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}

	sample := make(map[string]interface{}, len(columns))
	for i, col := range columns {
		if b, ok := values[i].([]byte); ok {
			values[i] = string(b)
		}
		sample[col] = values[i]
	}
	return sample, nil
}

// sampleRowStore is the last-resort strategy: read one payload straight
// from the shared row table when no view resolves.
func (s *Service) sampleRowStore(ctx context.Context, src *domain.Source) (string, map[string]interface{}, error) {
	rows, err := s.eng.Query(ctx,
		`SELECT payload FROM `+engine.RowStoreTable+` WHERE source_id = ? LIMIT 1`, src.ID)
	if err != nil {
		return "", nil, fmt.Errorf("scan row store for source %q: %w", src.ID, err)
	}
	defer rows.Close() //nolint:errcheck

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return "", nil, err
		}
		return "", nil, domain.ErrNotFound("source %q has no view and no ingested rows", src.ID)
	}

	var raw string
	if err := rows.Scan(&raw); err != nil {
		return "", nil, err
	}

	sample, err := decodePayload(raw)
	if err != nil {
		return "", nil, fmt.Errorf("decode payload for source %q: %w", src.ID, err)
	}
	return "", sample, nil
}

// countRows counts through the view when one resolved, else through the
// raw row table.
func (s *Service) countRows(ctx context.Context, viewName, sourceID string) (int64, error) {
	var (
		stmt string
		args []interface{}
	)
	if viewName != "" {
		stmt = fmt.Sprintf("SELECT COUNT(*) FROM %q", viewName)
	} else {
		stmt = `SELECT COUNT(*) FROM ` + engine.RowStoreTable + ` WHERE source_id = ?`
		args = []interface{}{sourceID}
	}

	rows, err := s.eng.Query(ctx, stmt, args...)
	if err != nil {
		return 0, err
	}
	defer rows.Close() //nolint:errcheck

	var n int64
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, err
		}
	}
	return n, rows.Err()
}

// inferColumns derives typed column descriptors from a sample row. All
// view columns are projected as text, so inference parses the sample
// values. row_id is the engine's bookkeeping column and is not part of
// the logical schema.
func inferColumns(sample map[string]interface{}) []domain.DiscoveredColumn {
	names := make([]string, 0, len(sample))
	for name := range sample {
		if name == "row_id" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	cols := make([]domain.DiscoveredColumn, len(names))
	for i, name := range names {
		cols[i] = domain.DiscoveredColumn{Name: name, Type: inferType(sample[name])}
	}
	return cols
}

func inferType(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return domain.TypeText
	case bool:
		return domain.TypeBoolean
	case int, int32, int64:
		return domain.TypeInteger
	case float32, float64:
		return domain.TypeNumeric
	case time.Time:
		return domain.TypeTimestamp
	case string:
		return inferTextType(v)
	default:
		return domain.TypeText
	}
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
}

func inferTextType(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return domain.TypeText
	}
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return domain.TypeInteger
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return domain.TypeNumeric
	}
	if strings.EqualFold(s, "true") || strings.EqualFold(s, "false") {
		return domain.TypeBoolean
	}
	for _, layout := range timestampLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return domain.TypeTimestamp
		}
	}
	return domain.TypeText
}
