// Package dynquery compiles structured filter, search, sort and pagination
// requests into parameterized SQL, and optionally executes them.
//
// The core is the Builder, a chainable compiler from query clauses to a
// CompiledQuery: a SQL statement whose placeholders reference a parameter
// map. Client-supplied values never reach the statement text, only column
// identifiers and operator tokens chosen from fixed vocabularies do.
//
//	q, err := dynquery.NewBuilder("users").
//		Where("age", dynquery.OpGreaterOrEqual, 21).
//		WhereIn("status", []any{"active", "pending"}).
//		OrderBy("created_at", dynquery.Descending).
//		Paginate(2, 10).
//		Build()
//	// q.SQL:    SELECT * FROM `users` WHERE age >= @p0 AND status IN (@p1, @p2)
//	//           ORDER BY created_at DESC LIMIT 10 OFFSET 10
//	// q.Params: map[p0:21 p1:active p2:pending]
//
// Around the builder sits a Service that registers tables from Go structs,
// validates incoming requests against their columns, executes the compiled
// statements against a database and serves the whole pipeline over HTTP.
// Requests arrive as JSON:
//
//	{
//	    "filters": {"age": {"gte": 21}, "status": {"in": ["active", "pending"]}},
//	    "search": {"fields": ["title", "body"], "term": "cloud"},
//	    "sort": [{"field": "created_at", "direction": "DESC"}],
//	    "pagination": {"page": 2, "pageSize": 10}
//	}
//
// # Hooks
//
// Services accept hooks around query execution. BeforeQuery hooks run
// before compilation and return trusted scopes, predicates such as tenancy
// filters that apply ahead of anything the client asked for. AfterQuery
// hooks run on the assembled page before it is returned and may redact or
// annotate rows in place.
//
//	svc.OnBeforeQuery(func(ctx context.Context, table string, req *dynquery.Request) ([]dynquery.Scope, error) {
//	    return []dynquery.Scope{{Condition: "tenant_id = ?", Args: []any{tenantFrom(ctx)}}}, nil
//	})
package dynquery

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/nlstn/go-dynquery/internal/handlers"
	"github.com/nlstn/go-dynquery/internal/observability"
	"github.com/nlstn/go-dynquery/internal/query"
	"github.com/nlstn/go-dynquery/internal/schema"
)

// DefaultMaxInListSize is the fallback limit for the number of values one
// in filter may carry.
const DefaultMaxInListSize = 1000

// Re-exported query types. The internal package holds the implementation;
// these aliases are the public API.
type (
	// Builder compiles query clauses into a CompiledQuery. See NewBuilder.
	Builder = query.Builder
	// CompiledQuery is a SQL statement plus its parameter map.
	CompiledQuery = query.CompiledQuery
	// Dialect selects placeholder style and identifier quoting.
	Dialect = query.Dialect
	// Operator identifies a filter comparison; the values double as wire keys.
	Operator = query.Operator
	// Direction orders a sort term.
	Direction = query.Direction
	// Condition is one decoded filter predicate without its column.
	Condition = query.Condition
	// Request is the wire shape of a query.
	Request = query.Request
	// Filters is the ordered filter block of a request.
	Filters = query.Filters
	// FieldCondition pairs a column with one condition.
	FieldCondition = query.FieldCondition
	// Search is the multi-field search block of a request.
	Search = query.Search
	// SortField is one sort term of a request.
	SortField = query.SortField
	// PageSpec is the pagination block of a request.
	PageSpec = query.PageSpec
	// Page is one page of rows plus its envelope.
	Page = query.Page
	// PageInfo is the pagination envelope.
	PageInfo = query.PageInfo
	// Scope is a trusted predicate applied outside the client request.
	Scope = query.Scope
	// InvalidArgumentError reports a request value that fails validation.
	InvalidArgumentError = query.InvalidArgumentError
	// UnsupportedOperatorError reports an unrecognized filter operator key.
	UnsupportedOperatorError = query.UnsupportedOperatorError
	// UnknownTableError reports a query against an unregistered table.
	UnknownTableError = query.UnknownTableError
	// UnknownColumnError reports a request referencing a column the table
	// does not have.
	UnknownColumnError = query.UnknownColumnError
)

// Supported dialects.
const (
	DialectSpanner  = query.DialectSpanner
	DialectSQLite   = query.DialectSQLite
	DialectPostgres = query.DialectPostgres
	DialectMySQL    = query.DialectMySQL
)

// Filter operator keys.
const (
	OpEqual          = query.OpEqual
	OpNotEqual       = query.OpNotEqual
	OpGreaterThan    = query.OpGreaterThan
	OpGreaterOrEqual = query.OpGreaterOrEqual
	OpLessThan       = query.OpLessThan
	OpLessOrEqual    = query.OpLessOrEqual
	OpIn             = query.OpIn
	OpBetween        = query.OpBetween
	OpLike           = query.OpLike
	OpSearch         = query.OpSearch
	OpIsNull         = query.OpIsNull
)

// Sort directions.
const (
	Ascending  = query.Ascending
	Descending = query.Descending
)

// NewBuilder creates a builder for the given table using the Spanner
// dialect, which emits named @pN placeholders.
func NewBuilder(table string) *Builder { return query.NewBuilder(table) }

// NewBuilderFor creates a builder for the given table and dialect.
func NewBuilderFor(dialect Dialect, table string) *Builder {
	return query.NewBuilderFor(dialect, table)
}

// Condition constructors for building filters in Go code.

// Eq matches rows where the column equals value.
func Eq(value any) Condition { return query.Eq(value) }

// Ne matches rows where the column does not equal value.
func Ne(value any) Condition { return query.Ne(value) }

// Gt matches rows where the column is greater than value.
func Gt(value any) Condition { return query.Gt(value) }

// Gte matches rows where the column is greater than or equal to value.
func Gte(value any) Condition { return query.Gte(value) }

// Lt matches rows where the column is less than value.
func Lt(value any) Condition { return query.Lt(value) }

// Lte matches rows where the column is less than or equal to value.
func Lte(value any) Condition { return query.Lte(value) }

// In matches rows where the column equals any of the given values.
func In(values ...any) Condition { return query.In(values...) }

// Between matches rows where the column lies in the inclusive range lo..hi.
func Between(lo, hi any) Condition { return query.Between(lo, hi) }

// Like matches rows against a caller-supplied LIKE pattern.
func Like(pattern string) Condition { return query.Like(pattern) }

// Contains matches rows where the column contains term.
func Contains(term string) Condition { return query.Contains(term) }

// Null matches rows where the column is NULL.
func Null() Condition { return query.Null() }

// NotNull matches rows where the column is not NULL.
func NotNull() Condition { return query.NotNull() }

// ParseDirection normalizes a wire direction value, mapping the empty
// string to Ascending and rejecting anything that is not ASC or DESC.
func ParseDirection(s string) (Direction, error) { return query.ParseDirection(s) }

// ParseDialect maps driver and connection names to a Dialect.
func ParseDialect(name string) (Dialect, error) { return query.ParseDialect(name) }

// DecodeRequest decodes a JSON request body, rejecting unknown top-level
// keys and preserving filter order.
func DecodeRequest(r io.Reader) (*Request, error) { return query.DecodeRequest(r) }

// NewPageInfo computes a pagination envelope: totalPages is the ceiling of
// totalCount over pageSize and hasMore reports whether pages remain after
// page.
func NewPageInfo(page, pageSize int, totalCount int64) PageInfo {
	return query.NewPageInfo(page, pageSize, totalCount)
}

// IsInvalidArgument reports whether err is an InvalidArgumentError.
func IsInvalidArgument(err error) bool { return query.IsInvalidArgument(err) }

// IsUnsupportedOperator reports whether err is an UnsupportedOperatorError.
func IsUnsupportedOperator(err error) bool { return query.IsUnsupportedOperator(err) }

// IsUnknownTable reports whether err is an UnknownTableError.
func IsUnknownTable(err error) bool { return query.IsUnknownTable(err) }

// IsUnknownColumn reports whether err is an UnknownColumnError.
func IsUnknownColumn(err error) bool { return query.IsUnknownColumn(err) }

// BeforeQueryHook runs before a request is compiled. It may inspect the
// request, treat it as read-only, and return trusted scopes that apply
// ahead of the client's filters. Returning an error aborts the query.
type BeforeQueryHook func(ctx context.Context, table string, req *Request) ([]Scope, error)

// AfterQueryHook runs on the assembled page of a paged execution before it
// is returned. Hooks may redact or annotate rows in place. Returning an
// error aborts the query.
type AfterQueryHook func(ctx context.Context, table string, page *Page) error

// ServiceConfig controls optional service behaviours.
type ServiceConfig struct {
	// MaxInListSize limits the number of values in one in filter.
	// Default: DefaultMaxInListSize. This limit is always enforced.
	MaxInListSize int

	// MaxPageSize caps the page size of any request. Larger requests are
	// clamped, not rejected. 0 disables the cap.
	MaxPageSize int

	// DefaultPageSize applies when a request paginates without naming a
	// size, or sends no pagination block to a paged execution. 0 means
	// requests must be explicit.
	DefaultPageSize int
}

// Service registers tables, compiles requests against their schemas and
// executes the results. All methods are safe for concurrent use once
// configuration is done.
type Service struct {
	adapter       *Adapter
	tables        map[string]*schema.Table
	tablesMu      sync.RWMutex
	logger        *slog.Logger
	observability *observability.Config
	beforeHooks   []BeforeQueryHook
	afterHooks    []AfterQueryHook

	maxInListSize   int
	maxPageSize     int
	defaultPageSize int
}

// NewService creates a service over a GORM connection with default
// configuration.
func NewService(db *gorm.DB) (*Service, error) {
	return NewServiceWithConfig(db, ServiceConfig{})
}

// NewServiceWithConfig creates a service over a GORM connection.
func NewServiceWithConfig(db *gorm.DB, cfg ServiceConfig) (*Service, error) {
	adapter, err := NewAdapter(db)
	if err != nil {
		return nil, err
	}
	return newServiceInternal(adapter, cfg)
}

// NewServiceWithAdapter creates a service over an Adapter with default
// configuration.
func NewServiceWithAdapter(adapter *Adapter) (*Service, error) {
	return NewServiceWithConfigAndAdapter(adapter, ServiceConfig{})
}

// NewServiceWithConfigAndAdapter creates a service over an Adapter.
func NewServiceWithConfigAndAdapter(adapter *Adapter, cfg ServiceConfig) (*Service, error) {
	if adapter == nil {
		return nil, fmt.Errorf("dynquery: adapter is required")
	}
	return newServiceInternal(adapter, cfg)
}

// newServiceInternal is the initialization shared by all constructors.
func newServiceInternal(adapter *Adapter, cfg ServiceConfig) (*Service, error) {
	maxInListSize := cfg.MaxInListSize
	if maxInListSize <= 0 {
		maxInListSize = DefaultMaxInListSize
	}
	if cfg.MaxPageSize < 0 {
		return nil, fmt.Errorf("dynquery: MaxPageSize must not be negative")
	}
	if cfg.DefaultPageSize < 0 {
		return nil, fmt.Errorf("dynquery: DefaultPageSize must not be negative")
	}
	if cfg.MaxPageSize > 0 && cfg.DefaultPageSize > cfg.MaxPageSize {
		return nil, fmt.Errorf("dynquery: DefaultPageSize %d exceeds MaxPageSize %d", cfg.DefaultPageSize, cfg.MaxPageSize)
	}

	return &Service{
		adapter:         adapter,
		tables:          make(map[string]*schema.Table),
		logger:          slog.Default(),
		maxInListSize:   maxInListSize,
		maxPageSize:     cfg.MaxPageSize,
		defaultPageSize: cfg.DefaultPageSize,
	}, nil
}

// SetLogger replaces the service logger. Nil is ignored.
func (s *Service) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// ObservabilityConfig configures observability features for the service.
// All providers are optional; when nil, the corresponding feature is
// disabled with zero overhead.
type ObservabilityConfig struct {
	// TracerProvider provides the OpenTelemetry tracer for distributed
	// tracing. If nil, tracing is disabled.
	TracerProvider trace.TracerProvider

	// MeterProvider provides the OpenTelemetry meter for metrics
	// collection. If nil, metrics are disabled.
	MeterProvider metric.MeterProvider

	// ServiceName is reported as service.name on spans and metrics.
	ServiceName string

	// ServiceVersion is reported as service.version on spans and metrics.
	ServiceVersion string

	// EnableServerTiming adds a Server-Timing header to HTTP responses
	// with per-phase durations, readable in browser dev tools.
	EnableServerTiming bool
}

// SetObservability configures OpenTelemetry tracing and metrics for the
// service. Compilation and execution create spans, counters and duration
// histograms; the HTTP surface optionally reports phase timings via the
// Server-Timing header. Call it before Handler so the HTTP surface picks
// the configuration up.
func (s *Service) SetObservability(cfg ObservabilityConfig) error {
	opts := []observability.Option{}
	if cfg.TracerProvider != nil {
		opts = append(opts, observability.WithTracerProvider(cfg.TracerProvider))
	}
	if cfg.MeterProvider != nil {
		opts = append(opts, observability.WithMeterProvider(cfg.MeterProvider))
	}
	if cfg.ServiceName != "" {
		opts = append(opts, observability.WithServiceName(cfg.ServiceName))
	}
	if cfg.ServiceVersion != "" {
		opts = append(opts, observability.WithServiceVersion(cfg.ServiceVersion))
	}
	if s.logger != nil {
		opts = append(opts, observability.WithLogger(s.logger))
	}
	if cfg.EnableServerTiming {
		opts = append(opts, observability.WithServerTiming())
	}

	obsCfg := observability.NewConfig(opts...)
	if err := obsCfg.Initialize(); err != nil {
		return fmt.Errorf("dynquery: failed to initialize observability: %w", err)
	}
	s.observability = obsCfg
	return nil
}

// RegisterTable derives a table schema from a struct or pointer to struct
// and registers it under its table name. The name follows GORM's snake_case
// pluralization unless the struct provides a TableName() method.
func (s *Service) RegisterTable(entity any) error {
	tbl, err := schema.Analyze(entity)
	if err != nil {
		return fmt.Errorf("dynquery: %w", err)
	}
	s.tablesMu.Lock()
	defer s.tablesMu.Unlock()
	if _, exists := s.tables[tbl.Name]; exists {
		return fmt.Errorf("dynquery: table %q is already registered", tbl.Name)
	}
	s.tables[tbl.Name] = tbl
	s.logger.Debug("Registered table", "table", tbl.Name, "columns", len(tbl.Columns))
	return nil
}

// Tables returns the registered table names, sorted.
func (s *Service) Tables() []string {
	s.tablesMu.RLock()
	defer s.tablesMu.RUnlock()
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OnBeforeQuery registers a hook that runs before each compilation.
func (s *Service) OnBeforeQuery(hook BeforeQueryHook) {
	if hook != nil {
		s.beforeHooks = append(s.beforeHooks, hook)
	}
}

// OnAfterQuery registers a hook that runs on each assembled page.
func (s *Service) OnAfterQuery(hook AfterQueryHook) {
	if hook != nil {
		s.afterHooks = append(s.afterHooks, hook)
	}
}

// Builder returns a fresh builder for a registered table, bound to the
// adapter's dialect.
func (s *Service) Builder(table string) (*Builder, error) {
	tbl, err := s.tableFor(table)
	if err != nil {
		return nil, err
	}
	return query.NewBuilderFor(s.adapter.dialect, tbl.Name).WithLogger(s.logger), nil
}

// Compile validates req against the table's schema and compiles it to a
// row query, applying hook scopes ahead of the request's own predicates.
func (s *Service) Compile(ctx context.Context, table string, req *Request) (*CompiledQuery, error) {
	builder, err := s.prepare(ctx, table, req, true)
	if err != nil {
		return nil, err
	}
	return builder.Build()
}

// CompileCount compiles req to a COUNT(*) query over the same predicates,
// ignoring the request's pagination.
func (s *Service) CompileCount(ctx context.Context, table string, req *Request) (*CompiledQuery, error) {
	builder, err := s.prepare(ctx, table, req, false)
	if err != nil {
		return nil, err
	}
	return builder.BuildCount()
}

// Handler returns the HTTP surface of the service, mounting
// POST /{table}/query and POST /{table}/count. Configure the service fully
// before calling it.
func (s *Service) Handler() http.Handler {
	return handlers.New(s, s.logger, s.observability)
}

// Close releases the underlying database handle.
func (s *Service) Close() error {
	return s.adapter.Close()
}

// tableFor looks up a registered table.
func (s *Service) tableFor(name string) (*schema.Table, error) {
	s.tablesMu.RLock()
	defer s.tablesMu.RUnlock()
	tbl, ok := s.tables[name]
	if !ok {
		return nil, &query.UnknownTableError{Table: name}
	}
	return tbl, nil
}

// prepare resolves the table, runs the before hooks and renders req onto a
// dialect-bound builder. withPagination false strips the pagination block,
// as count queries do not page.
func (s *Service) prepare(ctx context.Context, table string, req *Request, withPagination bool) (*Builder, error) {
	tbl, err := s.tableFor(table)
	if err != nil {
		return nil, err
	}
	if req == nil {
		req = &Request{}
	}

	builder := query.NewBuilderFor(s.adapter.dialect, tbl.Name).WithLogger(s.logger)
	for _, hook := range s.beforeHooks {
		scopes, err := hook(ctx, table, req)
		if err != nil {
			return nil, fmt.Errorf("before-query hook failed: %w", err)
		}
		for _, scope := range scopes {
			scope.Apply(builder)
		}
	}

	effective := *req
	if !withPagination {
		effective.Page = nil
	}
	effective.Compile(builder, query.CompileOptions{
		DefaultPageSize: s.defaultPageSize,
		MaxPageSize:     s.maxPageSize,
		MaxInListSize:   s.maxInListSize,
		SearchFields:    tbl.SearchableColumns(),
		ValidateColumn:  columnChecker(tbl),
		Coerce:          columnCoercer(tbl),
	})
	if err := builder.Err(); err != nil {
		return nil, err
	}
	return builder, nil
}

// columnChecker restricts request identifiers to the table's columns.
func columnChecker(tbl *schema.Table) func(string) error {
	return func(name string) error {
		if _, ok := tbl.Column(name); !ok {
			return &query.UnknownColumnError{Table: tbl.Name, Column: name}
		}
		return nil
	}
}

// columnCoercer converts operands whose column demands a richer type than
// JSON carries. Strings against time.Time columns must be RFC 3339.
func columnCoercer(tbl *schema.Table) func(string, any) (any, error) {
	return func(name string, value any) (any, error) {
		col, ok := tbl.Column(name)
		if !ok {
			return value, nil
		}
		if col.IsTime() {
			s, ok := value.(string)
			if !ok {
				return nil, &query.InvalidArgumentError{Field: name, Reason: "timestamp operands must be RFC 3339 strings"}
			}
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return nil, &query.InvalidArgumentError{Field: name, Reason: fmt.Sprintf("not a valid RFC 3339 timestamp: %v", err)}
			}
			return t, nil
		}
		return value, nil
	}
}
