package dynquery

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/nlstn/go-dynquery/internal/handlers"
	"github.com/nlstn/go-dynquery/internal/observability"
	"github.com/nlstn/go-dynquery/internal/query"
)

// Query compiles and executes req, returning the matching rows as generic
// maps keyed by result column name.
func (s *Service) Query(ctx context.Context, table string, req *Request) ([]map[string]any, error) {
	var span trace.Span
	if s.observability != nil {
		ctx, span = s.observability.Tracer().StartQuery(ctx, table)
	}
	start := time.Now()
	rows, err := s.doQuery(ctx, table, req)
	if s.observability != nil {
		if err != nil {
			s.observability.Metrics().RecordError(ctx, table, "query")
		} else {
			s.observability.Metrics().RecordQuery(ctx, table, "query", time.Since(start), len(rows))
		}
		observability.EndSpan(span, err)
	}
	return rows, err
}

// Count compiles and executes req as a COUNT(*) query over the same
// predicates, ignoring any pagination block.
func (s *Service) Count(ctx context.Context, table string, req *Request) (int64, error) {
	var span trace.Span
	if s.observability != nil {
		ctx, span = s.observability.Tracer().StartCount(ctx, table)
	}
	start := time.Now()
	count, err := s.doCount(ctx, table, req)
	if s.observability != nil {
		if err != nil {
			s.observability.Metrics().RecordError(ctx, table, "count")
		} else {
			s.observability.Metrics().RecordQuery(ctx, table, "count", time.Since(start), -1)
		}
		observability.EndSpan(span, err)
	}
	return count, err
}

// QueryPage compiles and executes req as a paged query: a count over the
// predicates plus the requested slice of rows, assembled into a Page with
// its pagination envelope. A request without a pagination block pages with
// the service default when one is configured, and otherwise returns all
// rows as page one.
func (s *Service) QueryPage(ctx context.Context, table string, req *Request) (*Page, error) {
	var span trace.Span
	if s.observability != nil {
		ctx, span = s.observability.Tracer().StartPage(ctx, table)
	}
	start := time.Now()
	page, err := s.doQueryPage(ctx, table, req)
	if s.observability != nil {
		if err != nil {
			s.observability.Metrics().RecordError(ctx, table, "page")
		} else {
			s.observability.Metrics().RecordQuery(ctx, table, "page", time.Since(start), len(page.Data))
		}
		observability.EndSpan(span, err)
	}
	return page, err
}

func (s *Service) doQuery(ctx context.Context, table string, req *Request) ([]map[string]any, error) {
	builder, err := s.prepare(ctx, table, req, true)
	if err != nil {
		return nil, err
	}
	compiled, err := builder.Build()
	if err != nil {
		return nil, err
	}
	return s.execRows(ctx, table, compiled)
}

func (s *Service) doCount(ctx context.Context, table string, req *Request) (int64, error) {
	builder, err := s.prepare(ctx, table, req, false)
	if err != nil {
		return 0, err
	}
	compiled, err := builder.BuildCount()
	if err != nil {
		return 0, err
	}
	return s.execCount(ctx, table, compiled)
}

func (s *Service) doQueryPage(ctx context.Context, table string, req *Request) (*Page, error) {
	if req == nil {
		req = &Request{}
	}
	if req.Page == nil && s.defaultPageSize > 0 {
		paged := *req
		paged.Page = &PageSpec{Page: 1, PageSize: s.defaultPageSize}
		req = &paged
	}

	builder, err := s.prepare(ctx, table, req, true)
	if err != nil {
		return nil, err
	}
	compiled, err := builder.Build()
	if err != nil {
		return nil, err
	}
	countCompiled, err := builder.BuildCount()
	if err != nil {
		return nil, err
	}

	countTiming := observability.StartTiming(ctx, "db.count")
	total, err := s.execCount(ctx, table, countCompiled)
	observability.StopTiming(countTiming)
	if err != nil {
		return nil, err
	}

	rowsTiming := observability.StartTiming(ctx, "db.rows")
	data, err := s.execRows(ctx, table, compiled)
	observability.StopTiming(rowsTiming)
	if err != nil {
		return nil, err
	}

	info, err := s.pageEnvelope(req, len(data), total)
	if err != nil {
		return nil, err
	}
	page := &Page{Data: data, Pagination: info}
	for _, hook := range s.afterHooks {
		if err := hook(ctx, table, page); err != nil {
			return nil, fmt.Errorf("after-query hook failed: %w", err)
		}
	}
	return page, nil
}

// pageEnvelope derives the pagination envelope from the request's page
// block. Offset form requests report the page their offset lands on.
func (s *Service) pageEnvelope(req *Request, rowCount int, total int64) (PageInfo, error) {
	if req.Page == nil {
		return query.NewPageInfo(1, rowCount, total), nil
	}
	params, err := req.Page.Normalize(s.defaultPageSize, s.maxPageSize)
	if err != nil {
		return PageInfo{}, err
	}
	if params.Page > 0 {
		return query.NewPageInfo(params.Page, params.PageSize, total), nil
	}
	return query.NewPageInfo(params.Offset/params.Limit+1, params.PageSize, total), nil
}

// execArgs picks the argument form the dialect's placeholders expect.
func (s *Service) execArgs(compiled *CompiledQuery) []any {
	if s.adapter.dialect.Named() {
		return compiled.NamedArgs()
	}
	return compiled.Args()
}

func (s *Service) execRows(ctx context.Context, table string, compiled *CompiledQuery) ([]map[string]any, error) {
	s.logQuery(ctx, table, compiled)
	rows, err := s.adapter.db.QueryContext(ctx, compiled.SQL, s.execArgs(compiled)...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

func (s *Service) execCount(ctx context.Context, table string, compiled *CompiledQuery) (int64, error) {
	s.logQuery(ctx, table, compiled)
	var count int64
	if err := s.adapter.db.QueryRowContext(ctx, compiled.SQL, s.execArgs(compiled)...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count query failed: %w", err)
	}
	return count, nil
}

// scanRows reads every result row into a map keyed by column name.
func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}
	out := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalizeCell(values[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}
	return out, nil
}

// normalizeCell converts driver byte slices to strings so rows JSON-encode
// as text instead of base64.
func normalizeCell(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func (s *Service) logQuery(ctx context.Context, table string, compiled *CompiledQuery) {
	attrs := []any{
		"table", table,
		"fingerprint", fmt.Sprintf("%x", compiled.Fingerprint()),
		"params", len(compiled.Params),
	}
	if id, ok := handlers.RequestIDFromContext(ctx); ok {
		attrs = append(attrs, "request_id", id)
	}
	s.logger.Debug("Executing query", attrs...)
}
