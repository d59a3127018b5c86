package server

import (
	"encoding/json"
	"net/http"
)

// HTTPErrorResponse is the JSON error envelope every non-2xx response
// carries.
type HTTPErrorResponse struct {
	Error HTTPError `json:"error"`
}

// HTTPError is the typed error body.
type HTTPError struct {
	// Code is a stable machine-readable identifier.
	Code string `json:"code"`

	// Message is human-readable detail.
	Message string `json:"message"`
}

// Error codes used by the status API.
const (
	CodeNotFound         = "NOT_FOUND"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeInternal         = "INTERNAL_ERROR"
	CodeBadRequest       = "BAD_REQUEST"
)

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(HTTPErrorResponse{
		Error: HTTPError{Code: code, Message: message},
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// notFoundHandler replaces chi's plain-text 404 with the JSON envelope.
func notFoundHandler(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, CodeNotFound, "route not found: "+r.URL.Path)
}

// methodNotAllowedHandler replaces chi's plain-text 405 with the JSON
// envelope.
func methodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed,
		r.Method+" not allowed on "+r.URL.Path)
}
