// Package sqlbase provides the database/sql implementation shared by the PostgreSQL and
// SQLite backends. Queries are written with "?" placeholders and rebound per dialect.
package sqlbase

import (
	"strconv"
	"strings"
)

// Dialect captures the few places where the supported databases differ.
type Dialect struct {
	Name string
	// Numbered selects $1, $2, ... placeholders instead of "?".
	Numbered bool
	// ClaimLock is appended to the row selection of a queue claim.
	ClaimLock string
}

var (
	// Postgres relies on row locks so that concurrent claimers skip each other's rows.
	Postgres = Dialect{Name: "postgresql", Numbered: true, ClaimLock: "FOR UPDATE SKIP LOCKED"}

	// SQLite serializes writers, so a single UPDATE ... RETURNING is already atomic.
	SQLite = Dialect{Name: "sqlite"}
)

// Rebind rewrites "?" placeholders for the dialect.
func (d Dialect) Rebind(query string) string {
	if !d.Numbered {
		return query
	}

	var (
		builder strings.Builder
		n       int
	)

	builder.Grow(len(query) + 8)

	for _, r := range query {
		if r == '?' {
			n++

			builder.WriteByte('$')
			builder.WriteString(strconv.Itoa(n))

			continue
		}

		builder.WriteRune(r)
	}

	return builder.String()
}
