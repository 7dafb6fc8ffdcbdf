package observability

import (
	"context"

	servertiming "github.com/mitchellh/go-server-timing"
)

// StartTiming begins a Server-Timing metric for the named phase when a
// timing header is collecting on the context, and returns nil otherwise.
func StartTiming(ctx context.Context, name string) *servertiming.Metric {
	header := servertiming.FromContext(ctx)
	if header == nil {
		return nil
	}
	return header.NewMetric(name).Start()
}

// StopTiming stops a metric started by StartTiming. Safe on nil.
func StopTiming(m *servertiming.Metric) {
	if m != nil {
		m.Stop()
	}
}
