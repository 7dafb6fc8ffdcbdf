package query

import (
	"strconv"
	"strings"
)

// Dialect selects the placeholder style and identifier quoting of generated
// SQL. The zero value is not a valid dialect; builders default to
// DialectSpanner.
type Dialect string

const (
	// DialectSpanner emits named @pN placeholders and backtick quoting.
	DialectSpanner Dialect = "spanner"
	// DialectSQLite emits named @pN placeholders and double-quote quoting.
	DialectSQLite Dialect = "sqlite"
	// DialectPostgres emits positional $1, $2, ... placeholders.
	DialectPostgres Dialect = "postgres"
	// DialectMySQL emits ? placeholders and backtick quoting.
	DialectMySQL Dialect = "mysql"
)

// ParseDialect maps driver and connection names to a Dialect. It accepts the
// dialect constants themselves plus the common aliases reported by database
// drivers.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "spanner":
		return DialectSpanner, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pgx":
		return DialectPostgres, nil
	case "mysql", "mariadb":
		return DialectMySQL, nil
	}
	return "", invalidArgf("dialect", "unsupported dialect %q", name)
}

// Supported reports whether d is a dialect the builder can generate SQL for.
func (d Dialect) Supported() bool {
	switch d {
	case DialectSpanner, DialectSQLite, DialectPostgres, DialectMySQL:
		return true
	}
	return false
}

// Named reports whether d consumes named arguments rather than positional
// ones.
func (d Dialect) Named() bool {
	return d == DialectSpanner || d == DialectSQLite
}

// placeholder renders the placeholder for the parameter with the given name
// and 1-based position.
func (d Dialect) placeholder(name string, position int) string {
	switch d {
	case DialectPostgres:
		return "$" + strconv.Itoa(position)
	case DialectMySQL:
		return "?"
	default:
		return "@" + name
	}
}

// quoteTable quotes a table name. Qualified names keep their dot separator
// with each part quoted.
func (d Dialect) quoteTable(name string) string {
	quote := "`"
	if d == DialectPostgres || d == DialectSQLite {
		quote = `"`
	}
	parts := strings.Split(name, ".")
	for i, part := range parts {
		parts[i] = quote + part + quote
	}
	return strings.Join(parts, ".")
}
