// Package httpx holds the JSON response helpers shared by all handlers.
package httpx

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	alarms "fieldwatch/internal/alarms/domain"
	directory "fieldwatch/internal/directory/domain"
	ingest "fieldwatch/internal/ingest/application"
	telemetry "fieldwatch/internal/telemetry/domain"
)

// WriteJSON encodes payload with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// WriteError maps domain sentinels to statuses and emits a JSON error body.
func WriteError(w http.ResponseWriter, err error) {
	WriteJSON(w, statusFor(err), errorBody{Error: err.Error()})
}

// WriteErrorStatus emits a JSON error body with an explicit status.
func WriteErrorStatus(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, errorBody{Error: msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ingest.ErrMissingKey), errors.Is(err, ingest.ErrEmptyBatch), errors.Is(err, alarms.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ingest.ErrUnknownKey):
		return http.StatusUnauthorized
	case errors.Is(err, ingest.ErrClientDisabled):
		return http.StatusForbidden
	case errors.Is(err, directory.ErrNotFound), errors.Is(err, telemetry.ErrNotFound), errors.Is(err, alarms.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, directory.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// LoggingMiddleware logs method, path, status, and latency per request.
func LoggingMiddleware(logger *log.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = log.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			logger.Printf("%s %s %d %s", r.Method, r.URL.Path, sw.status, time.Since(start))
		})
	}
}
