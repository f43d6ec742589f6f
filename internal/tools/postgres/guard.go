package postgres

import (
	"errors"
	"regexp"
	"strings"
)

// Guard errors. The exact text is the tool contract and is returned to
// callers verbatim.
var (
	ErrMultipleStatements = errors.New("Multiple statements are not allowed")
	ErrNotSelect          = errors.New("Only SELECT queries are allowed")
	ErrForbiddenKeyword   = errors.New("Forbidden SQL keyword detected")
)

// forbiddenKeywords matches mutation and DDL keywords anywhere in the
// statement, including inside subqueries and CTE bodies. Matching inside
// string literals is an accepted false positive; the read-only transaction
// is the final authority either way.
var forbiddenKeywords = regexp.MustCompile(`(?i)\b(insert|update|delete|merge|upsert|create|alter|drop|truncate|grant|revoke|call|execute|prepare|deallocate|vacuum|analyze)\b`)

// ValidateSQL checks that a statement is a single SELECT with no mutation
// keywords and returns it trimmed, with at most one trailing semicolon
// removed.
func ValidateSQL(query string) (string, error) {
	query = strings.TrimSpace(query)
	query = strings.TrimSpace(strings.TrimSuffix(query, ";"))

	if strings.Contains(query, ";") {
		return "", ErrMultipleStatements
	}
	if !strings.HasPrefix(strings.ToLower(query), "select") {
		return "", ErrNotSelect
	}
	if forbiddenKeywords.MatchString(query) {
		return "", ErrForbiddenKeyword
	}
	return query, nil
}
