package observability

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Attribute helpers shared by spans and metrics.

// TableAttr identifies the table a query runs against.
func TableAttr(table string) attribute.KeyValue {
	return attribute.String("dynquery.table", table)
}

// FingerprintAttr carries the statement fingerprint as a hex string, the
// same value the logs carry, so traces and log lines correlate.
func FingerprintAttr(fingerprint uint64) attribute.KeyValue {
	return attribute.String("dynquery.fingerprint", strconv.FormatUint(fingerprint, 16))
}

// RowCountAttr carries the number of rows a query returned.
func RowCountAttr(rows int) attribute.KeyValue {
	return attribute.Int("dynquery.rows", rows)
}

// OperationAttr names the pipeline operation: compile, query, count or page.
func OperationAttr(op string) attribute.KeyValue {
	return attribute.String("dynquery.operation", op)
}

// Tracer creates spans for query pipeline operations.
type Tracer struct {
	tracer trace.Tracer
}

// StartCompile starts a span covering request compilation.
func (t *Tracer) StartCompile(ctx context.Context, table string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "dynquery.compile",
		trace.WithAttributes(TableAttr(table), OperationAttr("compile")))
}

// StartQuery starts a span covering row query execution.
func (t *Tracer) StartQuery(ctx context.Context, table string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "dynquery.query",
		trace.WithAttributes(TableAttr(table), OperationAttr("query")))
}

// StartCount starts a span covering count execution.
func (t *Tracer) StartCount(ctx context.Context, table string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "dynquery.count",
		trace.WithAttributes(TableAttr(table), OperationAttr("count")))
}

// StartPage starts a span covering paged execution, count plus rows.
func (t *Tracer) StartPage(ctx context.Context, table string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "dynquery.page",
		trace.WithAttributes(TableAttr(table), OperationAttr("page")))
}

// EndSpan finishes a span, recording err when non-nil.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Metrics records query pipeline measurements.
type Metrics struct {
	queries  metric.Int64Counter
	errors   metric.Int64Counter
	duration metric.Float64Histogram
	rows     metric.Int64Histogram
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	queries, err := meter.Int64Counter("dynquery.queries",
		metric.WithDescription("Number of executed queries"))
	if err != nil {
		return nil, err
	}
	errs, err := meter.Int64Counter("dynquery.errors",
		metric.WithDescription("Number of failed compilations and executions"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("dynquery.duration",
		metric.WithDescription("Query execution time"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	rows, err := meter.Int64Histogram("dynquery.rows",
		metric.WithDescription("Rows returned per query"))
	if err != nil {
		return nil, err
	}
	return &Metrics{queries: queries, errors: errs, duration: duration, rows: rows}, nil
}

// RecordQuery records one execution with its duration and row count.
func (m *Metrics) RecordQuery(ctx context.Context, table, op string, elapsed time.Duration, rowCount int) {
	attrs := metric.WithAttributes(TableAttr(table), OperationAttr(op))
	m.queries.Add(ctx, 1, attrs)
	m.duration.Record(ctx, float64(elapsed.Microseconds())/1000.0, attrs)
	if rowCount >= 0 {
		m.rows.Record(ctx, int64(rowCount), attrs)
	}
}

// RecordError records one failed compilation or execution.
func (m *Metrics) RecordError(ctx context.Context, table, op string) {
	m.errors.Add(ctx, 1, metric.WithAttributes(TableAttr(table), OperationAttr(op)))
}
