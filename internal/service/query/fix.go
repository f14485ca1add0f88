package query

import "strings"

// FixTruncatedQuery repairs the common defects of translator output that
// was cut off mid-statement. Each repair is independent and idempotent;
// applied to an already-balanced statement the function returns it
// unchanged. Repairs run in a fixed order:
//
//  1. an odd number of single quotes gains a closing quote
//  2. an unterminated ARRAY[ constructor is closed
//  3. a LIKE/ILIKE ANY (...) without an explicit array constructor is
//     normalized into ANY (ARRAY[...])
//  4. a dangling "IN (" list is closed — before a following " AND (" if
//     one exists, else at end of statement
//  5. any remaining unmatched parentheses are closed at the end
func FixTruncatedQuery(sqlText string) string {
	sqlText = strings.TrimSpace(sqlText)
	if sqlText == "" {
		return sqlText
	}

	sqlText = balanceQuotes(sqlText)
	sqlText = closeArrayConstructor(sqlText)
	sqlText = normalizeLikeAny(sqlText)
	sqlText = closeDanglingIn(sqlText)
	sqlText = balanceParens(sqlText)
	return sqlText
}

func balanceQuotes(sqlText string) string {
	if strings.Count(sqlText, "'")%2 != 0 {
		return sqlText + "'"
	}
	return sqlText
}

func closeArrayConstructor(sqlText string) string {
	masked := maskLiterals(sqlText)
	open := strings.Count(masked, "[") - strings.Count(masked, "]")
	for ; open > 0; open-- {
		sqlText += "]"
	}
	return sqlText
}

// normalizeLikeAny rewrites "LIKE ANY ('a', 'b')" into
// "LIKE ANY (ARRAY['a', 'b'])". ANY over a subquery or an existing array
// constructor is left alone.
func normalizeLikeAny(sqlText string) string {
	masked := strings.ToUpper(maskLiterals(sqlText))
	search := 0
	for {
		rel := strings.Index(masked[search:], "ANY")
		if rel < 0 {
			return sqlText
		}
		idx := search + rel
		search = idx + len("ANY")
		if !isWordBoundary(masked, idx, len("ANY")) {
			continue
		}

		// Locate the opening parenthesis after ANY.
		open := idx + len("ANY")
		for open < len(masked) && (masked[open] == ' ' || masked[open] == '\t' || masked[open] == '\n') {
			open++
		}
		if open >= len(masked) || masked[open] != '(' {
			continue
		}

		// Peek at the first token inside the parentheses.
		inner := open + 1
		for inner < len(masked) && (masked[inner] == ' ' || masked[inner] == '\t' || masked[inner] == '\n') {
			inner++
		}
		if strings.HasPrefix(masked[inner:], "ARRAY") || strings.HasPrefix(masked[inner:], "SELECT") {
			continue
		}

		closing := matchingParen(masked, open)
		if closing < 0 {
			// Unbalanced: wrap to end of statement and let the paren
			// balancer close the rest.
			return sqlText[:open+1] + "ARRAY[" + sqlText[open+1:] + "]"
		}
		return sqlText[:open+1] + "ARRAY[" + sqlText[open+1:closing] + "]" + sqlText[closing:]
	}
}

// matchingParen returns the index of the parenthesis closing the one at
// open, or -1 when the statement ends first.
func matchingParen(masked string, open int) int {
	depth := 0
	for i := open; i < len(masked); i++ {
		switch masked[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// closeDanglingIn closes an "IN (" list whose parenthesis never closes.
// When the truncation swallowed the closing parenthesis of an IN list
// that is followed by " AND (", the list must close before the AND, not
// at end-of-string.
func closeDanglingIn(sqlText string) string {
	masked := strings.ToUpper(maskLiterals(sqlText))
	idx := strings.LastIndex(masked, "IN (")
	if idx < 0 || !isWordBoundary(masked, idx, len("IN")) {
		return sqlText
	}

	open := idx + len("IN ")
	if matchingParen(masked, open) >= 0 {
		return sqlText
	}

	if andIdx := strings.Index(masked[open:], " AND ("); andIdx >= 0 {
		at := open + andIdx
		return sqlText[:at] + ")" + sqlText[at:]
	}
	return sqlText + ")"
}

func balanceParens(sqlText string) string {
	masked := maskLiterals(sqlText)
	open := strings.Count(masked, "(") - strings.Count(masked, ")")
	for ; open > 0; open-- {
		sqlText += ")"
	}
	return sqlText
}
