// Package sqlutil holds the small driver-dialect helpers shared by every
// component that talks to a *sql.DB. Queries are written once with ?
// placeholders and rewritten for drivers that number their parameters.
package sqlutil

import (
	"fmt"
	"strings"
)

// Placeholder returns the bind marker for a 1-based parameter index.
func Placeholder(driver string, index int) string {
	switch driver {
	case "pgx", "postgres":
		return fmt.Sprintf("$%d", index)
	default:
		return "?"
	}
}

// Rewrite converts ? placeholders to the driver's native markers. Drivers
// that accept ? directly get the query back untouched.
func Rewrite(driver, query string) string {
	switch driver {
	case "pgx", "postgres":
		var b strings.Builder
		b.Grow(len(query) + 8)
		n := 0
		for _, r := range query {
			if r == '?' {
				n++
				fmt.Fprintf(&b, "$%d", n)
				continue
			}
			b.WriteRune(r)
		}
		return b.String()
	default:
		return query
	}
}

// QuoteIdent quotes an identifier such as a table name so it can be
// interpolated into SQL text. Embedded quote characters are doubled.
func QuoteIdent(driver, ident string) string {
	switch driver {
	case "mysql":
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	case "sqlserver", "mssql":
		return "[" + strings.ReplaceAll(ident, "]", "]]") + "]"
	default:
		return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
	}
}
