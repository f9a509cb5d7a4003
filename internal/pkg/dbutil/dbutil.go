package dbutil

import (
	"errors"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var mysqlLimit = regexp.MustCompile(`(?i)LIMIT\s+\?\s*,\s*\?`)

// Finalize rewrites a gendry-built query for PostgreSQL: the MySQL-style
// `LIMIT offset, count` clause becomes `LIMIT ? OFFSET ?` (with the two args
// swapped to match) and ? placeholders are rebound to $N.
func Finalize(query string, args []interface{}) (string, []interface{}) {
	if loc := mysqlLimit.FindStringIndex(query); loc != nil {
		offsetArg := strings.Count(query[:loc[0]], "?")
		if offsetArg+1 < len(args) {
			args[offsetArg], args[offsetArg+1] = args[offsetArg+1], args[offsetArg]
			query = mysqlLimit.ReplaceAllString(query, "LIMIT ? OFFSET ?")
		}
	}
	return sqlx.Rebind(sqlx.DOLLAR, query), args
}

// IsConflict reports whether err is a PostgreSQL unique-constraint violation.
func IsConflict(err error) bool {
	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
