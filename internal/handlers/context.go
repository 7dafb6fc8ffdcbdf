package handlers

import "context"

// HeaderRequestID is the header carrying the request correlation ID. The
// handler echoes an inbound value and generates one otherwise.
const HeaderRequestID = "X-Request-ID"

// Context keys for request-scoped values
type contextKey string

const requestIDKey contextKey = "dynquery_request_id"

// WithRequestID attaches a request correlation ID to the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext retrieves the request correlation ID. It returns
// false when no ID is attached.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(requestIDKey).(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}
