// Package handlers implements the HTTP surface of the query service.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	servertiming "github.com/mitchellh/go-server-timing"

	"github.com/nlstn/go-dynquery/internal/observability"
	"github.com/nlstn/go-dynquery/internal/query"
	"github.com/nlstn/go-dynquery/internal/response"
)

// Error codes of the HTTP surface. Validation failures map onto the
// compile-time error taxonomy; everything else is an internal error.
const (
	ErrCodeInvalidArgument     = "invalid-argument"
	ErrCodeUnsupportedOperator = "unsupported-operator"
	ErrCodeUnknownTable        = "unknown-table"
	ErrCodeInternal            = "internal-error"
)

// Backend is the query surface the handler drives. The root Service
// implements it.
type Backend interface {
	QueryPage(ctx context.Context, table string, req *query.Request) (*query.Page, error)
	Count(ctx context.Context, table string, req *query.Request) (int64, error)
}

// Handler serves the HTTP query surface:
//
//	POST /{table}/query -> one page of rows with a pagination envelope
//	POST /{table}/count -> the matching row count as text/plain
//
// Every response carries an X-Request-ID header, echoing the inbound value
// or generating a fresh one.
type Handler struct {
	backend Backend
	logger  *slog.Logger
	obs     *observability.Config
	root    http.Handler
}

// New builds the handler. logger must not be nil; obs may be nil.
func New(backend Backend, logger *slog.Logger, obs *observability.Config) *Handler {
	h := &Handler{backend: backend, logger: logger, obs: obs}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /{table}/query", h.handleQuery)
	mux.HandleFunc("POST /{table}/count", h.handleCount)

	h.root = mux
	if obs != nil && obs.ServerTimingEnabled() {
		h.root = servertiming.Middleware(mux, nil)
	}
	return h
}

// ServeHTTP dispatches requests with a request correlation ID attached to
// the context and echoed in the response headers.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(HeaderRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(HeaderRequestID, requestID)
	h.root.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), requestID)))
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	table := r.PathValue("table")
	ctx := r.Context()

	parseTiming := observability.StartTiming(ctx, "parse")
	req, err := query.DecodeRequest(r.Body)
	observability.StopTiming(parseTiming)
	if !h.writeQueryError(ctx, w, table, err) {
		return
	}

	execTiming := observability.StartTiming(ctx, "query")
	page, err := h.backend.QueryPage(ctx, table, req)
	observability.StopTiming(execTiming)
	if !h.writeQueryError(ctx, w, table, err) {
		return
	}

	writeTiming := observability.StartTiming(ctx, "write")
	defer observability.StopTiming(writeTiming)
	if err := response.WriteJSON(w, http.StatusOK, page); err != nil {
		h.logger.Error("Error writing query response", "table", table, "error", err)
	}
}

func (h *Handler) handleCount(w http.ResponseWriter, r *http.Request) {
	table := r.PathValue("table")
	ctx := r.Context()

	req, err := query.DecodeRequest(r.Body)
	if !h.writeQueryError(ctx, w, table, err) {
		return
	}

	count, err := h.backend.Count(ctx, table, req)
	if !h.writeQueryError(ctx, w, table, err) {
		return
	}

	if err := response.WriteText(w, http.StatusOK, strconv.FormatInt(count, 10)); err != nil {
		h.logger.Error("Error writing count response", "table", table, "error", err)
	}
}

// writeQueryError maps err onto the HTTP error taxonomy and writes it.
// It returns true when err is nil and the request may proceed.
func (h *Handler) writeQueryError(ctx context.Context, w http.ResponseWriter, table string, err error) bool {
	if err == nil {
		return true
	}

	status := http.StatusInternalServerError
	code := ErrCodeInternal
	switch {
	case query.IsUnknownTable(err):
		status = http.StatusNotFound
		code = ErrCodeUnknownTable
	case query.IsUnknownColumn(err), query.IsInvalidArgument(err):
		status = http.StatusBadRequest
		code = ErrCodeInvalidArgument
	case query.IsUnsupportedOperator(err):
		status = http.StatusBadRequest
		code = ErrCodeUnsupportedOperator
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("Query failed", "table", table, "error", err, "requestID", requestIDOrEmpty(ctx))
	} else {
		h.logger.Debug("Rejected query request", "table", table, "error", err, "requestID", requestIDOrEmpty(ctx))
	}

	if writeErr := response.WriteError(w, status, code, err.Error()); writeErr != nil {
		h.logger.Error("Error writing error response", "error", writeErr)
	}
	return false
}

func requestIDOrEmpty(ctx context.Context) string {
	id, _ := RequestIDFromContext(ctx)
	return id
}
