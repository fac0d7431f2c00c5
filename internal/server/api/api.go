// Package api provides the HTTP handlers for recognition requests and the
// prediction history.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/session"
)

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// StatusFor maps a recognition error to an HTTP status code.
func StatusFor(err error) int {
	var tooBig *http.MaxBytesError
	var decode *capture.DecodeError

	switch {
	case errors.As(err, &tooBig):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &decode):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNoClassifier):
		return http.StatusServiceUnavailable
	default:
		// Model failures, extraction failures and anything unexpected.
		return http.StatusInternalServerError
	}
}
