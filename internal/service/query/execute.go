package query

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mr-cto/rapiddatachat/internal/domain"
)

// Execute rewrites the statement with the caller's filters, sort, and
// pagination, then runs the page query and the parallel count query
// under the service timeout. The attempted SQL is carried in the result
// (and in the result accompanying an error) so callers can show users
// what actually ran.
func (s *Service) Execute(ctx context.Context, sqlText string, opts domain.QueryOptions) (*domain.QueryPage, error) {
	opts.Normalize()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	rewritten, args, err := s.rewrite(sqlText, opts)
	if err != nil {
		return nil, err
	}

	key := Key(rewritten, args, opts)
	if page, ok := s.cache.Get(key); ok {
		s.logger.Debug("query served from cache", "sql", rewritten)
		return page, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	columns, rows, err := s.runPage(ctx, rewritten, args)
	if err != nil {
		return &domain.QueryPage{SQL: rewritten, CurrentPage: opts.Page}, s.asDomainErr(err, rewritten)
	}

	// The count query shares the filter clause, so the same args bind.
	countSQL := BuildCountQuery(mustFilterOnly(sqlText, opts))
	total, err := s.runCount(ctx, countSQL, args)
	if err != nil {
		return &domain.QueryPage{SQL: rewritten, CurrentPage: opts.Page}, s.asDomainErr(err, countSQL)
	}

	page := &domain.QueryPage{
		Columns:       columns,
		Rows:          rows,
		TotalRows:     total,
		TotalPages:    (total + int64(opts.PageSize) - 1) / int64(opts.PageSize),
		CurrentPage:   opts.Page,
		ExecutionTime: time.Since(start).Milliseconds(),
		SQL:           rewritten,
	}
	s.cache.Put(key, page)
	return page, nil
}

// mustFilterOnly applies only the filter splice, for the count query.
// The filters already passed validation in rewrite, so the error cannot
// recur.
func mustFilterOnly(sqlText string, opts domain.QueryOptions) string {
	out, _, err := InjectFilter(sqlText, opts.Filters)
	if err != nil {
		return sqlText
	}
	return out
}

func (s *Service) runPage(ctx context.Context, sqlText string, args []interface{}) ([]string, [][]interface{}, error) {
	rows, err := s.eng.Query(ctx, sqlText, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

func (s *Service) runCount(ctx context.Context, countSQL string, args []interface{}) (int64, error) {
	rows, err := s.eng.Query(ctx, countSQL, args...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var total int64
	if rows.Next() {
		if err := rows.Scan(&total); err != nil {
			return 0, err
		}
	}
	return total, rows.Err()
}

// scanRows materializes a result set into column names and row values.
// Driver byte slices become strings so the rows marshal as text instead
// of base64.
func scanRows(rows *sql.Rows) ([]string, [][]interface{}, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	out := make([][]interface{}, 0, 64)
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		out = append(out, values)
	}
	return columns, out, rows.Err()
}

// asDomainErr maps context expiry to the timeout error type; everything
// else passes through.
func (s *Service) asDomainErr(err error, sqlText string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		s.logger.Warn("query timed out", "timeout", s.timeout, "sql", sqlText)
		return domain.ErrTimeout("query exceeded the %s execution limit", s.timeout)
	}
	return err
}
