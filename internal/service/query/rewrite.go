// Package query validates, repairs, and rewrites translator-produced SQL
// into bounded, ordered, filtered statements before they touch the row
// store. The rewriting is deliberately textual — the statement is treated
// as opaque text with a small set of named splice points rather than an
// AST, which keeps the rewriter independent of any one SQL dialect
// parser. Every splice lives in this file.
package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mr-cto/rapiddatachat/internal/domain"
)

// maskLiterals returns a copy of sqlText where the contents of
// single-quoted string literals are blanked out. Keyword and parenthesis
// scanning runs on the masked copy so quoted text never confuses it.
// Offsets are preserved: the masked string has the same length.
func maskLiterals(sqlText string) string {
	out := []byte(sqlText)
	inString := false
	for i := 0; i < len(out); i++ {
		if out[i] == '\'' {
			inString = !inString
			continue
		}
		if inString {
			out[i] = ' '
		}
	}
	return string(out)
}

// findTopLevelKeyword returns the byte offset of the last occurrence of
// keyword at parenthesis depth zero in the masked statement, or -1.
// Matches are whole-word and case-insensitive.
func findTopLevelKeyword(masked, keyword string) int {
	upper := strings.ToUpper(masked)
	keyword = strings.ToUpper(keyword)
	depth := 0
	found := -1
	for i := 0; i < len(upper); i++ {
		switch upper[i] {
		case '(':
			depth++
		case ')':
			depth--
		}
		if depth != 0 || !strings.HasPrefix(upper[i:], keyword) {
			continue
		}
		if !isWordBoundary(upper, i, len(keyword)) {
			continue
		}
		found = i
	}
	return found
}

func isWordBoundary(s string, start, length int) bool {
	if start > 0 && isIdentChar(s[start-1]) {
		return false
	}
	end := start + length
	if end < len(s) && isIdentChar(s[end]) {
		return false
	}
	return true
}

func isIdentChar(c byte) bool {
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

// filterInsertPoint finds where filter conditions belong: before any
// top-level GROUP BY, ORDER BY, or LIMIT, else at the end.
func filterInsertPoint(masked string) int {
	point := len(masked)
	for _, kw := range []string{"GROUP BY", "ORDER BY", "LIMIT"} {
		if idx := findTopLevelKeyword(masked, kw); idx >= 0 && idx < point {
			point = idx
		}
	}
	return point
}

// SanitizeColumn reduces a user-supplied column name to [A-Za-z0-9_].
// Identifiers cannot be bound as parameters, so the allow-list is the
// only defense on this path.
func SanitizeColumn(name string) string {
	return domain.SanitizeIdentifier(name)
}

// InjectFilter splices filter conditions into the statement as a WHERE /
// AND clause inserted before any existing ORDER BY, LIMIT, or GROUP BY.
// Values bind as parameters; only identifiers are interpolated (after
// sanitization). Returns the rewritten statement and the bound args.
//
// Encodings: nil → IS NULL; slice → IN (...); map with "min"/"max" →
// BETWEEN / >= / <=; any other scalar → equality.
func InjectFilter(sqlText string, filters map[string]interface{}) (string, []interface{}, error) {
	if len(filters) == 0 {
		return sqlText, nil, nil
	}

	cols := make([]string, 0, len(filters))
	for col := range filters {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	var conds []string
	var args []interface{}
	for _, col := range cols {
		ident := SanitizeColumn(col)
		if ident == "" {
			return "", nil, domain.ErrValidation("filter column %q contains no usable identifier characters", col)
		}
		cond, condArgs, err := encodeFilterValue(ident, filters[col])
		if err != nil {
			return "", nil, err
		}
		conds = append(conds, cond)
		args = append(args, condArgs...)
	}

	clause := strings.Join(conds, " AND ")
	masked := maskLiterals(sqlText)
	point := filterInsertPoint(masked)

	var connector string
	if findTopLevelKeyword(masked[:point], "WHERE") >= 0 {
		connector = " AND "
	} else {
		connector = " WHERE "
	}

	head := strings.TrimRight(sqlText[:point], " \t\n")
	tail := sqlText[point:]
	out := head + connector + "(" + clause + ")"
	if tail != "" {
		out += " " + strings.TrimLeft(tail, " \t\n")
	}
	return out, args, nil
}

func encodeFilterValue(ident string, value interface{}) (string, []interface{}, error) {
	switch v := value.(type) {
	case nil:
		return ident + " IS NULL", nil, nil
	case []interface{}:
		if len(v) == 0 {
			return "", nil, domain.ErrValidation("filter on %q: IN list must not be empty", ident)
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(v)), ", ")
		return ident + " IN (" + placeholders + ")", v, nil
	case map[string]interface{}:
		minVal, hasMin := v["min"]
		maxVal, hasMax := v["max"]
		switch {
		case hasMin && hasMax:
			return ident + " BETWEEN ? AND ?", []interface{}{minVal, maxVal}, nil
		case hasMin:
			return ident + " >= ?", []interface{}{minVal}, nil
		case hasMax:
			return ident + " <= ?", []interface{}{maxVal}, nil
		default:
			return "", nil, domain.ErrValidation("filter on %q: range object needs min and/or max", ident)
		}
	default:
		return ident + " = ?", []interface{}{value}, nil
	}
}

// InjectSort splices an ORDER BY for the sanitized column. When the
// statement already carries a top-level ORDER BY, the new key is merged
// in front of the existing ones; otherwise the clause is inserted before
// any LIMIT or appended.
func InjectSort(sqlText, column, direction string) (string, error) {
	ident := SanitizeColumn(column)
	if ident == "" {
		return "", domain.ErrValidation("sort column %q contains no usable identifier characters", column)
	}
	dir := "ASC"
	if strings.EqualFold(direction, domain.SortDesc) {
		dir = "DESC"
	}

	masked := maskLiterals(sqlText)
	if idx := findTopLevelKeyword(masked, "ORDER BY"); idx >= 0 {
		head := sqlText[:idx+len("ORDER BY")]
		rest := strings.TrimLeft(sqlText[idx+len("ORDER BY"):], " \t\n")
		return head + " " + ident + " " + dir + ", " + rest, nil
	}

	clause := " ORDER BY " + ident + " " + dir
	if idx := findTopLevelKeyword(masked, "LIMIT"); idx >= 0 {
		return strings.TrimRight(sqlText[:idx], " \t\n") + clause + " " + sqlText[idx:], nil
	}
	return strings.TrimRight(sqlText, " \t\n;") + clause, nil
}

// InjectPagination appends LIMIT pageSize OFFSET (page-1)*pageSize,
// replacing any existing top-level LIMIT clause.
func InjectPagination(sqlText string, page, pageSize int) string {
	masked := maskLiterals(sqlText)
	if idx := findTopLevelKeyword(masked, "LIMIT"); idx >= 0 {
		sqlText = strings.TrimRight(sqlText[:idx], " \t\n")
	} else {
		sqlText = strings.TrimRight(sqlText, " \t\n;")
	}
	return fmt.Sprintf("%s LIMIT %d OFFSET %d", sqlText, pageSize, (page-1)*pageSize)
}

// BuildCountQuery derives the parallel count query: the statement minus
// ORDER BY and LIMIT, wrapped in SELECT COUNT(*).
func BuildCountQuery(sqlText string) string {
	sqlText = strings.TrimRight(sqlText, " \t\n;")
	masked := maskLiterals(sqlText)
	if idx := findTopLevelKeyword(masked, "ORDER BY"); idx >= 0 {
		// ORDER BY precedes any top-level LIMIT, so one cut removes both.
		sqlText = strings.TrimRight(sqlText[:idx], " \t\n")
	} else if idx := findTopLevelKeyword(masked, "LIMIT"); idx >= 0 {
		sqlText = strings.TrimRight(sqlText[:idx], " \t\n")
	}
	return "SELECT COUNT(*) FROM (" + sqlText + ") AS count_query"
}
