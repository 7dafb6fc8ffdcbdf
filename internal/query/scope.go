package query

// Scope is a trusted predicate attached to a query outside the client
// request, typically by a BeforeQuery hook enforcing tenancy or visibility
// rules. Condition uses ? placeholders, one per argument; the builder
// renumbers them into its own parameter space.
type Scope struct {
	Condition string
	Args      []any
}

// Apply adds the scope's predicate to the builder.
func (s Scope) Apply(b *Builder) *Builder {
	return b.WhereRaw(s.Condition, s.Args...)
}
