package audit

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"fieldwatch/internal/auth"
)

type stubRecorder struct {
	entries []Entry
}

func (s *stubRecorder) Log(_ context.Context, entry Entry) error {
	s.entries = append(s.entries, entry)
	return nil
}

func newAuditedHandler(recorder Logger) http.Handler {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	logger := log.New(io.Discard, "", 0)
	return Middleware(recorder, logger)(inner)
}

func TestMiddlewareRecordsMutation(t *testing.T) {
	recorder := &stubRecorder{}
	handler := newAuditedHandler(recorder)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/alarms/a1", strings.NewReader(`{}`))
	req = req.WithContext(auth.WithIdentity(req.Context(), auth.RoleOperator, "user-7"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if len(recorder.entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(recorder.entries))
	}
	entry := recorder.entries[0]
	if entry.Actor != "user-7" || entry.Role != "operator" {
		t.Fatalf("unexpected identity: %q %q", entry.Actor, entry.Role)
	}
	if entry.Resource != "alarms" || entry.ResourceID != "a1" {
		t.Fatalf("unexpected resource: %q %q", entry.Resource, entry.ResourceID)
	}
	if !strings.Contains(string(entry.Metadata), `"status":201`) {
		t.Fatalf("expected response status in metadata, got %s", entry.Metadata)
	}
}

func TestMiddlewareSkipsReadsAndLogin(t *testing.T) {
	recorder := &stubRecorder{}
	handler := newAuditedHandler(recorder)

	for _, tc := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/alarms"},
		{http.MethodPost, "/api/v1/login"},
		{http.MethodPost, "/points/state"},
	} {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	if len(recorder.entries) != 0 {
		t.Fatalf("expected no audit entries, got %d", len(recorder.entries))
	}
}
