// Package observability wires OpenTelemetry tracing and metrics plus
// Server-Timing support into the query pipeline. All providers are
// optional; a nil Config or an option that was never set disables the
// corresponding feature.
package observability

import (
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/nlstn/go-dynquery"

// Config holds initialized observability state. Build it with NewConfig and
// Initialize before use.
type Config struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	serviceName    string
	serviceVersion string
	logger         *slog.Logger
	serverTiming   bool

	tracer  *Tracer
	metrics *Metrics
}

// Option configures a Config.
type Option func(*Config)

// WithTracerProvider enables distributed tracing through the given provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Config) { c.tracerProvider = tp }
}

// WithMeterProvider enables metrics collection through the given provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *Config) { c.meterProvider = mp }
}

// WithServiceName sets the service.name attached to spans and metrics.
func WithServiceName(name string) Option {
	return func(c *Config) { c.serviceName = name }
}

// WithServiceVersion sets the service.version attached to spans and metrics.
func WithServiceVersion(version string) Option {
	return func(c *Config) { c.serviceVersion = version }
}

// WithLogger sets the logger used for observability-related messages.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.logger = logger }
}

// WithServerTiming enables the Server-Timing response header on the HTTP
// surface.
func WithServerTiming() Option {
	return func(c *Config) { c.serverTiming = true }
}

// NewConfig builds a Config from the given options.
func NewConfig(opts ...Option) *Config {
	c := &Config{logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initialize creates the tracer and metric instruments. It must be called
// once before Tracer or Metrics are used.
func (c *Config) Initialize() error {
	tp := c.tracerProvider
	if tp == nil {
		tp = tracenoop.NewTracerProvider()
	}
	c.tracer = &Tracer{tracer: tp.Tracer(instrumentationName)}

	mp := c.meterProvider
	if mp == nil {
		mp = metricnoop.NewMeterProvider()
	}
	metrics, err := newMetrics(mp.Meter(instrumentationName))
	if err != nil {
		return fmt.Errorf("failed to create metric instruments: %w", err)
	}
	c.metrics = metrics
	return nil
}

// Tracer returns the span factory. Only valid after Initialize.
func (c *Config) Tracer() *Tracer { return c.tracer }

// Metrics returns the metrics recorder. Only valid after Initialize.
func (c *Config) Metrics() *Metrics { return c.metrics }

// Logger returns the configured logger.
func (c *Config) Logger() *slog.Logger { return c.logger }

// ServerTimingEnabled reports whether Server-Timing headers were requested.
func (c *Config) ServerTimingEnabled() bool { return c.serverTiming }

// ServiceName returns the configured service name.
func (c *Config) ServiceName() string { return c.serviceName }

// ServiceVersion returns the configured service version.
func (c *Config) ServiceVersion() string { return c.serviceVersion }
