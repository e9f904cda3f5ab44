package audit

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"

	"fieldwatch/internal/auth"
)

// Middleware records mutating admin API requests after they are served.
// Read-only verbs and unauthenticated routes are skipped, and a failed
// audit write never fails the request it describes.
func Middleware(recorder Logger, logger *log.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = log.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if recorder == nil || !auditable(r) {
				next.ServeHTTP(w, r)
				return
			}

			recording := &recordingWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recording, r)

			resource, resourceID := splitResource(r.URL.Path)
			metadata, _ := json.Marshal(map[string]any{
				"method": r.Method,
				"path":   r.URL.Path,
				"status": recording.status,
			})
			entry := Entry{
				Actor:      auth.SubjectFromContext(r.Context()),
				Role:       string(auth.RoleFromContext(r.Context())),
				Action:     r.Method + " " + r.URL.Path,
				Resource:   resource,
				ResourceID: resourceID,
				Metadata:   metadata,
				IP:         clientIP(r),
			}
			if err := recorder.Log(r.Context(), entry); err != nil {
				logger.Printf("audit: log %s failed: %v", entry.Action, err)
			}
		})
	}
}

func auditable(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	if !strings.HasPrefix(r.URL.Path, "/api/v1/") {
		return false
	}
	// Login carries no identity yet.
	return r.URL.Path != "/api/v1/login"
}

func splitResource(path string) (string, string) {
	rest := strings.TrimPrefix(path, "/api/v1/")
	parts := strings.SplitN(rest, "/", 3)
	resource := parts[0]
	if len(parts) < 2 {
		return resource, ""
	}
	return resource, parts[1]
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type recordingWriter struct {
	http.ResponseWriter
	status int
}

func (w *recordingWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
