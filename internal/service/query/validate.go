package query

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/mr-cto/rapiddatachat/internal/domain"
)

// PrepareResult is the outcome of static validation. Rejections carry an
// explanation rather than an error value: an invalid candidate is an
// expected outcome, not a fault.
type PrepareResult struct {
	IsValid  bool   `json:"isValid"`
	SQLQuery string `json:"sqlQuery,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Keywords that make a statement mutating. Any standalone occurrence is
// a hard rejection regardless of position.
var forbiddenKeywords = []string{
	"DROP", "DELETE", "TRUNCATE", "UPDATE", "INSERT", "ALTER", "CREATE", "GRANT", "REVOKE",
}

// Phrases the translator uses when it answers in prose instead of SQL.
var advisoryPhrases = []string{
	"no data",
	"cannot be answered",
	"can't be answered",
	"not available",
	"unable to",
	"does not contain",
}

// Prepare repairs truncation defects in the candidate statement, then
// applies the static validation rules in order: read-only SELECT check
// (with advisory-message passthrough), mutating-keyword scan, option
// validation, and a dry-run plan with one view-name correction pass.
// The returned SQLQuery is the repaired (and possibly corrected)
// statement, ready for Execute.
func (s *Service) Prepare(ctx context.Context, candidate string, opts domain.QueryOptions) PrepareResult {
	fixed := FixTruncatedQuery(candidate)
	if fixed == "" {
		return PrepareResult{Error: "empty query"}
	}

	if !isReadOnlySelect(fixed) {
		if msg, ok := advisoryMessage(candidate); ok {
			// The translator answered in prose; surface it verbatim.
			return PrepareResult{Error: msg}
		}
		return PrepareResult{Error: "only read-only SELECT statements are allowed"}
	}

	if kw := findForbiddenKeyword(fixed); kw != "" {
		return PrepareResult{Error: fmt.Sprintf("statement contains forbidden keyword %s", kw)}
	}

	opts.Normalize()
	if err := opts.Validate(); err != nil {
		return PrepareResult{Error: err.Error()}
	}

	sqlQuery, err := s.dryRun(ctx, fixed, opts)
	if err != nil {
		return PrepareResult{Error: err.Error(), SQLQuery: fixed}
	}

	return PrepareResult{IsValid: true, SQLQuery: sqlQuery}
}

// isReadOnlySelect accepts statements starting with SELECT or WITH.
func isReadOnlySelect(sqlText string) bool {
	upper := strings.ToUpper(strings.TrimSpace(sqlText))
	return strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(upper, "WITH")
}

// advisoryMessage detects non-SQL translator output: no statement
// terminator plus a phrase indicating the question has no answer in the
// data.
func advisoryMessage(candidate string) (string, bool) {
	trimmed := strings.TrimSpace(candidate)
	if strings.Contains(trimmed, ";") {
		return "", false
	}
	lower := strings.ToLower(trimmed)
	for _, phrase := range advisoryPhrases {
		if strings.Contains(lower, phrase) {
			return trimmed, true
		}
	}
	return "", false
}

// findForbiddenKeyword scans the masked statement for standalone
// mutating keywords.
func findForbiddenKeyword(sqlText string) string {
	masked := strings.ToUpper(maskLiterals(sqlText))
	for _, kw := range forbiddenKeywords {
		idx := 0
		for {
			rel := strings.Index(masked[idx:], kw)
			if rel < 0 {
				break
			}
			at := idx + rel
			if isWordBoundary(masked, at, len(kw)) {
				return kw
			}
			idx = at + len(kw)
		}
	}
	return ""
}

// Pattern DuckDB (and Postgres) use when a relation is unknown.
var unknownRelationRe = regexp.MustCompile(
	`(?:Table with name (\w+) does not exist|relation "([^"]+)" does not exist)`)

// dryRun plans the fully rewritten query without executing it. When the
// plan fails on an unknown relation, one correction pass substitutes a
// known view whose name plausibly matches; a second failure surfaces a
// diagnostic naming the identifier and the naming convention.
func (s *Service) dryRun(ctx context.Context, sqlText string, opts domain.QueryOptions) (string, error) {
	rewritten, args, err := s.rewrite(sqlText, opts)
	if err != nil {
		return "", err
	}

	planErr := s.eng.Explain(ctx, rewritten, args...)
	if planErr == nil {
		return sqlText, nil
	}

	wrongName := extractUnknownRelation(planErr)
	if wrongName == "" {
		return "", fmt.Errorf("query failed validation: %w", planErr)
	}

	corrected, ok := s.correctRelation(ctx, sqlText, wrongName)
	if ok {
		rewritten, args, err = s.rewrite(corrected, opts)
		if err != nil {
			return "", err
		}
		if retryErr := s.eng.Explain(ctx, rewritten, args...); retryErr == nil {
			s.logger.Info("corrected unknown relation", "from", wrongName)
			return corrected, nil
		}
	}

	return "", domain.ErrValidation(
		"unknown relation %q: queries must reference view names, which follow the pattern <ownerId>_file_<sourceId> (for example %q)",
		wrongName, domain.ViewName("u42", "orders"))
}

func extractUnknownRelation(err error) string {
	m := unknownRelationRe.FindStringSubmatch(err.Error())
	if m == nil {
		return ""
	}
	if m[1] != "" {
		return m[1]
	}
	return m[2]
}

// correctRelation looks for a known view that plausibly matches the
// wrong name: exact match ignoring case, or a view whose name contains
// the sanitized wrong name (the translator often uses the source's
// display name instead of the view name).
func (s *Service) correctRelation(ctx context.Context, sqlText, wrongName string) (string, bool) {
	views, err := s.eng.ListViews(ctx)
	if err != nil || len(views) == 0 {
		return "", false
	}

	needle := strings.ToLower(domain.SanitizeIdentifier(wrongName))
	var match string
	for _, v := range views {
		lv := strings.ToLower(v)
		if lv == needle {
			match = v
			break
		}
		if needle != "" && strings.Contains(lv, needle) && match == "" {
			match = v
		}
	}
	if match == "" {
		return "", false
	}

	return replaceIdentifier(sqlText, wrongName, match), true
}

// replaceIdentifier substitutes whole-word occurrences of the wrong
// relation name.
func replaceIdentifier(sqlText, from, to string) string {
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(from) + `\b`)
	return re.ReplaceAllString(sqlText, to)
}

// rewrite applies the full splice pipeline in order: filters, then sort,
// then pagination.
func (s *Service) rewrite(sqlText string, opts domain.QueryOptions) (string, []interface{}, error) {
	out, args, err := InjectFilter(sqlText, opts.Filters)
	if err != nil {
		return "", nil, err
	}
	if opts.SortColumn != "" {
		out, err = InjectSort(out, opts.SortColumn, opts.SortDirection)
		if err != nil {
			return "", nil, err
		}
	}
	out = InjectPagination(out, opts.Page, opts.PageSize)
	return out, args, nil
}
