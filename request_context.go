package dynquery

import (
	"context"

	"github.com/nlstn/go-dynquery/internal/handlers"
)

// WithRequestID returns a context carrying a request identifier. The HTTP
// surface attaches one to every request it serves; callers driving the
// service directly can attach their own so executor log lines correlate
// with theirs.
func WithRequestID(ctx context.Context, id string) context.Context {
	return handlers.WithRequestID(ctx, id)
}

// RequestIDFromContext returns the request identifier stored in ctx, if
// any. Hooks receive contexts that carry one when the query came in over
// HTTP.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	return handlers.RequestIDFromContext(ctx)
}
