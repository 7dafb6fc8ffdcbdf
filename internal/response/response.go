// Package response writes the JSON bodies of the HTTP surface.
package response

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// HeaderContentType is the canonical Content-Type header name.
const HeaderContentType = "Content-Type"

// errorBody is the wire shape of an error response.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteJSON writes payload as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	w.Header().Set(HeaderContentType, "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	return nil
}

// WriteError writes a structured error response: {"error": {"code": ...,
// "message": ...}}.
func WriteError(w http.ResponseWriter, status int, code, message string) error {
	return WriteJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// WriteText writes a plain text response, as used by the count endpoint.
func WriteText(w http.ResponseWriter, status int, body string) error {
	w.Header().Set(HeaderContentType, "text/plain")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}
