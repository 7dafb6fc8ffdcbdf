package query

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
)

// identPattern matches a bare or single-qualified SQL identifier. Everything
// interpolated into statement text must match it; values never are, they
// travel as parameters.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ValidIdentifier reports whether name is usable as a table or column
// identifier: letters, digits and underscores, at most one dot qualifier,
// not starting with a digit.
func ValidIdentifier(name string) bool {
	return identPattern.MatchString(name)
}

// Builder accumulates SELECT clauses and compiles them into a CompiledQuery.
// Methods chain; the first error sticks and every later call becomes a
// no-op, so a chain can be written without intermediate checks and
// inspected once at build time.
//
// A Builder is not safe for concurrent use. The terminal methods Build,
// BuildQuery, Parameters and BuildCount do not mutate the builder, so a
// built builder can be extended and built again.
type Builder struct {
	dialect Dialect
	table   string
	selects []string
	wheres  []string
	orders  []orderTerm
	names   []string
	values  []any
	limit   *int
	offset  *int
	logger  *slog.Logger
	err     error
}

// orderTerm is one ORDER BY entry.
type orderTerm struct {
	field string
	dir   Direction
	nulls *bool // nil: unspecified, true: NULLS FIRST, false: NULLS LAST
}

// NewBuilder creates a builder for the given table using the Spanner
// dialect.
func NewBuilder(table string) *Builder {
	return NewBuilderFor(DialectSpanner, table)
}

// NewBuilderFor creates a builder for the given table and dialect.
func NewBuilderFor(dialect Dialect, table string) *Builder {
	b := &Builder{dialect: dialect, table: table, logger: slog.Default()}
	if !dialect.Supported() {
		b.err = invalidArgf("dialect", "unsupported dialect %q", string(dialect))
		return b
	}
	if !identPattern.MatchString(table) {
		b.err = invalidArgf("table", "malformed identifier %q", table)
	}
	return b
}

// WithLogger sets the logger used for build-time debug output.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// Dialect returns the dialect the builder generates SQL for.
func (b *Builder) Dialect() Dialect { return b.dialect }

// Err returns the first error recorded by the chain, if any.
func (b *Builder) Err() error { return b.err }

// fail records the first error; later failures keep it.
func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// checkColumn validates a column identifier, failing the chain on mismatch.
func (b *Builder) checkColumn(name string) bool {
	if b.err != nil {
		return false
	}
	if !identPattern.MatchString(name) {
		b.fail(invalidArgf(name, "malformed column identifier"))
		return false
	}
	return true
}

// bind registers a parameter value and returns its rendered placeholder.
func (b *Builder) bind(value any) string {
	name := "p" + strconv.Itoa(len(b.names))
	b.names = append(b.names, name)
	b.values = append(b.values, value)
	return b.dialect.placeholder(name, len(b.names))
}

// Select restricts the projection to the given columns. Without a Select the
// query projects *; passing "*" explicitly is equivalent.
func (b *Builder) Select(columns ...string) *Builder {
	if b.err != nil {
		return b
	}
	for _, col := range columns {
		if col == "*" {
			continue
		}
		if !b.checkColumn(col) {
			return b
		}
		b.selects = append(b.selects, col)
	}
	return b
}

// Where adds a predicate on field. The operator constants double as the wire
// keys of the filter format, so Where(field, op, value) and a decoded filter
// entry produce identical SQL.
func (b *Builder) Where(field string, op Operator, value any) *Builder {
	if b.err != nil {
		return b
	}
	cond, err := conditionFor(field, op, value)
	if err != nil {
		return b.fail(err)
	}
	return b.WhereCondition(field, cond)
}

// WhereCondition adds a decoded filter condition on field.
func (b *Builder) WhereCondition(field string, cond Condition) *Builder {
	if b.err != nil {
		return b
	}
	switch cond.op {
	case OpEqual, OpNotEqual, OpGreaterThan, OpGreaterOrEqual, OpLessThan, OpLessOrEqual:
		return b.compare(field, cond.op, cond.value)
	case OpLike:
		if !b.checkColumn(field) {
			return b
		}
		b.wheres = append(b.wheres, fmt.Sprintf("%s LIKE %s", field, b.bind(cond.value)))
		return b
	case OpSearch:
		term, _ := cond.value.(string)
		return b.Search(field, term, false)
	case OpIn:
		return b.WhereIn(field, cond.values)
	case OpBetween:
		return b.WhereBetween(field, cond.lo, cond.hi)
	case OpIsNull:
		if cond.null {
			return b.WhereNull(field)
		}
		return b.WhereNotNull(field)
	case "":
		return b.fail(invalidArgf(field, "empty filter condition"))
	}
	return b.fail(&UnsupportedOperatorError{Field: field, Operator: string(cond.op)})
}

// compare renders a scalar comparison predicate.
func (b *Builder) compare(field string, op Operator, value any) *Builder {
	if !b.checkColumn(field) {
		return b
	}
	b.wheres = append(b.wheres, fmt.Sprintf("%s %s %s", field, comparisonSQL[op], b.bind(value)))
	return b
}

// WhereIn adds a membership predicate. An empty list compiles to the
// always-false predicate 1=0, since IN () is not valid SQL and an empty
// allow-list means no rows.
func (b *Builder) WhereIn(field string, values []any) *Builder {
	if !b.checkColumn(field) {
		return b
	}
	if len(values) == 0 {
		b.wheres = append(b.wheres, "1=0")
		return b
	}
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = b.bind(v)
	}
	b.wheres = append(b.wheres, fmt.Sprintf("%s IN (%s)", field, strings.Join(placeholders, ", ")))
	return b
}

// WhereBetween adds an inclusive range predicate.
func (b *Builder) WhereBetween(field string, lo, hi any) *Builder {
	if !b.checkColumn(field) {
		return b
	}
	b.wheres = append(b.wheres, fmt.Sprintf("%s BETWEEN %s AND %s", field, b.bind(lo), b.bind(hi)))
	return b
}

// WhereNull adds an IS NULL predicate.
func (b *Builder) WhereNull(field string) *Builder {
	if !b.checkColumn(field) {
		return b
	}
	b.wheres = append(b.wheres, field+" IS NULL")
	return b
}

// WhereNotNull adds an IS NOT NULL predicate.
func (b *Builder) WhereNotNull(field string) *Builder {
	if !b.checkColumn(field) {
		return b
	}
	b.wheres = append(b.wheres, field+" IS NOT NULL")
	return b
}

// Search adds a single-field text match. With exact false the term is
// wrapped in % wildcards and matched with LIKE; with exact true it is a
// plain equality comparison. Wildcard characters inside the term are not
// escaped.
func (b *Builder) Search(field, term string, exact bool) *Builder {
	if !b.checkColumn(field) {
		return b
	}
	if exact {
		b.wheres = append(b.wheres, fmt.Sprintf("%s = %s", field, b.bind(term)))
		return b
	}
	b.wheres = append(b.wheres, fmt.Sprintf("%s LIKE %s", field, b.bind("%"+term+"%")))
	return b
}

// SearchAny adds one parenthesized OR group matching term against each of
// the given fields with wildcard LIKE. No fields means no predicate.
func (b *Builder) SearchAny(fields []string, term string) *Builder {
	if b.err != nil || len(fields) == 0 {
		return b
	}
	parts := make([]string, len(fields))
	for i, field := range fields {
		if !b.checkColumn(field) {
			return b
		}
		parts[i] = fmt.Sprintf("%s LIKE %s", field, b.bind("%"+term+"%"))
	}
	b.wheres = append(b.wheres, "("+strings.Join(parts, " OR ")+")")
	return b
}

// WhereRaw adds a trusted SQL fragment with ? placeholders, one per
// argument. The fragment joins the other predicates with AND and its
// placeholders are renumbered into the builder's parameter space. Only for
// fragments the application controls, never for client input; the fragment
// must not contain ? outside placeholder positions.
func (b *Builder) WhereRaw(condition string, args ...any) *Builder {
	if b.err != nil {
		return b
	}
	if n := strings.Count(condition, "?"); n != len(args) {
		return b.fail(invalidArgf("condition", "fragment has %d placeholders for %d arguments", n, len(args)))
	}
	var out strings.Builder
	next := 0
	for i := 0; i < len(condition); i++ {
		if condition[i] == '?' {
			out.WriteString(b.bind(args[next]))
			next++
			continue
		}
		out.WriteByte(condition[i])
	}
	b.wheres = append(b.wheres, out.String())
	return b
}

// OrderBy appends a sort term. Directions other than Ascending and
// Descending fail the chain instead of defaulting.
func (b *Builder) OrderBy(field string, dir Direction) *Builder {
	if !b.checkColumn(field) {
		return b
	}
	if dir != Ascending && dir != Descending {
		return b.fail(invalidArgf(field, "sort direction must be %q or %q, got %q", Ascending, Descending, string(dir)))
	}
	b.orders = append(b.orders, orderTerm{field: field, dir: dir})
	return b
}

// OrderByFields appends decoded sort terms in order. An empty direction
// means ascending.
func (b *Builder) OrderByFields(fields []SortField) *Builder {
	for _, f := range fields {
		dir := f.Direction
		if dir == "" {
			dir = Ascending
		}
		b.OrderBy(f.Field, dir)
		if f.NullsFirst != nil {
			b.Nulls(*f.NullsFirst)
		}
	}
	return b
}

// Nulls sets NULLS FIRST or NULLS LAST placement on the most recent OrderBy
// term. Calling it before any OrderBy fails the chain.
func (b *Builder) Nulls(first bool) *Builder {
	if b.err != nil {
		return b
	}
	if len(b.orders) == 0 {
		return b.fail(invalidArgf("nulls", "requires a preceding OrderBy"))
	}
	b.orders[len(b.orders)-1].nulls = &first
	return b
}

// Limit caps the number of returned rows. Values below 1 fail the chain.
func (b *Builder) Limit(n int) *Builder {
	if b.err != nil {
		return b
	}
	if n < 1 {
		return b.fail(invalidArgf("limit", "must be at least 1, got %d", n))
	}
	b.limit = &n
	return b
}

// Offset skips the given number of rows. Negative values fail the chain.
func (b *Builder) Offset(n int) *Builder {
	if b.err != nil {
		return b
	}
	if n < 0 {
		return b.fail(invalidArgf("offset", "must not be negative, got %d", n))
	}
	b.offset = &n
	return b
}

// Paginate sets limit and offset from a 1-based page number and page size.
func (b *Builder) Paginate(page, pageSize int) *Builder {
	if b.err != nil {
		return b
	}
	if page < 1 {
		return b.fail(invalidArgf("page", "must be at least 1, got %d", page))
	}
	if pageSize < 1 {
		return b.fail(invalidArgf("pageSize", "must be at least 1, got %d", pageSize))
	}
	return b.Limit(pageSize).Offset((page - 1) * pageSize)
}

// Clone creates an independent copy of the builder, for branching a shared
// base chain into several variants.
func (b *Builder) Clone() *Builder {
	clone := &Builder{
		dialect: b.dialect,
		table:   b.table,
		selects: append([]string{}, b.selects...),
		wheres:  append([]string{}, b.wheres...),
		orders:  append([]orderTerm{}, b.orders...),
		names:   append([]string{}, b.names...),
		values:  append([]any{}, b.values...),
		logger:  b.logger,
		err:     b.err,
	}
	if b.limit != nil {
		limit := *b.limit
		clone.limit = &limit
	}
	if b.offset != nil {
		offset := *b.offset
		clone.offset = &offset
	}
	return clone
}

// BuildQuery compiles the SELECT statement text.
func (b *Builder) BuildQuery() (string, error) {
	if b.err != nil {
		return "", b.err
	}
	var sql strings.Builder
	sql.WriteString("SELECT ")
	if len(b.selects) > 0 {
		sql.WriteString(strings.Join(b.selects, ", "))
	} else {
		sql.WriteString("*")
	}
	sql.WriteString(" FROM ")
	sql.WriteString(b.dialect.quoteTable(b.table))

	if len(b.wheres) > 0 {
		sql.WriteString(" WHERE ")
		sql.WriteString(strings.Join(b.wheres, " AND "))
	}

	if len(b.orders) > 0 {
		sql.WriteString(" ORDER BY ")
		terms := make([]string, len(b.orders))
		for i, o := range b.orders {
			terms[i] = o.field + " " + string(o.dir)
			if o.nulls != nil {
				if *o.nulls {
					terms[i] += " NULLS FIRST"
				} else {
					terms[i] += " NULLS LAST"
				}
			}
		}
		sql.WriteString(strings.Join(terms, ", "))
	}

	if b.limit != nil {
		sql.WriteString(fmt.Sprintf(" LIMIT %d", *b.limit))
	} else if b.offset != nil && *b.offset > 0 && b.dialect == DialectMySQL {
		// MySQL requires LIMIT when OFFSET is used
		sql.WriteString(" LIMIT 2147483647")
	}
	if b.offset != nil && *b.offset > 0 {
		sql.WriteString(fmt.Sprintf(" OFFSET %d", *b.offset))
	}

	return sql.String(), nil
}

// Parameters returns the bound parameter map.
func (b *Builder) Parameters() (map[string]any, error) {
	if b.err != nil {
		return nil, b.err
	}
	params := make(map[string]any, len(b.names))
	for i, name := range b.names {
		params[name] = b.values[i]
	}
	return params, nil
}

// Build compiles the statement together with its parameters. Building does
// not mutate the builder, so repeated calls return identical results.
func (b *Builder) Build() (*CompiledQuery, error) {
	sqlText, err := b.BuildQuery()
	if err != nil {
		return nil, err
	}
	compiled := newCompiledQuery(sqlText, b.names, b.values)
	if b.logger != nil {
		b.logger.Debug("Compiled query", "sql", sqlText, "params", len(compiled.Params))
	}
	return compiled, nil
}

// BuildCount compiles a COUNT(*) statement over the same predicates,
// ignoring projection, ordering and pagination.
func (b *Builder) BuildCount() (*CompiledQuery, error) {
	if b.err != nil {
		return nil, b.err
	}
	var sql strings.Builder
	sql.WriteString("SELECT COUNT(*) FROM ")
	sql.WriteString(b.dialect.quoteTable(b.table))
	if len(b.wheres) > 0 {
		sql.WriteString(" WHERE ")
		sql.WriteString(strings.Join(b.wheres, " AND "))
	}
	compiled := newCompiledQuery(sql.String(), b.names, b.values)
	if b.logger != nil {
		b.logger.Debug("Compiled count query", "sql", compiled.SQL, "params", len(compiled.Params))
	}
	return compiled, nil
}
