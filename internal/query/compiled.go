package query

import (
	"database/sql"

	"github.com/cespare/xxhash/v2"
)

// CompiledQuery is the output of building a query: a SQL statement plus the
// parameters its placeholders reference. Bound values never appear in the
// SQL text, they travel only through Params.
type CompiledQuery struct {
	// SQL is the generated statement. Placeholder style depends on the
	// dialect the builder was created with.
	SQL string
	// Params maps parameter names (p0, p1, ...) to their bound values.
	// Names follow placeholder allocation order.
	Params map[string]any

	names  []string
	values []any
}

// newCompiledQuery packages a statement with a snapshot of the builder's
// parameter table.
func newCompiledQuery(sqlText string, names []string, values []any) *CompiledQuery {
	params := make(map[string]any, len(names))
	for i, name := range names {
		params[name] = values[i]
	}
	return &CompiledQuery{
		SQL:    sqlText,
		Params: params,
		names:  append([]string{}, names...),
		values: append([]any{}, values...),
	}
}

// Args returns the bound values in placeholder allocation order, for drivers
// with positional placeholders.
func (q *CompiledQuery) Args() []any {
	out := make([]any, len(q.values))
	copy(out, q.values)
	return out
}

// NamedArgs returns the bound values as sql.Named arguments, for drivers
// that support named placeholders.
func (q *CompiledQuery) NamedArgs() []any {
	out := make([]any, len(q.names))
	for i, name := range q.names {
		out[i] = sql.Named(name, q.values[i])
	}
	return out
}

// ParamNames returns the parameter names in allocation order.
func (q *CompiledQuery) ParamNames() []string {
	out := make([]string, len(q.names))
	copy(out, q.names)
	return out
}

// Fingerprint returns a stable hash of the SQL text. Requests that compile
// to the same statement shape share a fingerprint regardless of bound
// values, which makes it a useful log and trace correlation key.
func (q *CompiledQuery) Fingerprint() uint64 {
	return xxhash.Sum64String(q.SQL)
}
