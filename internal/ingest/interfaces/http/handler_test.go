package ingesthttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	ingest "fieldwatch/internal/ingest/application"
	telemetry "fieldwatch/internal/telemetry/domain"
)

type stubReporter struct {
	apiKey   string
	readings []telemetry.Reading
	err      error
}

func (s *stubReporter) Report(_ context.Context, apiKey string, readings []telemetry.Reading) (int, error) {
	s.apiKey = apiKey
	s.readings = readings
	if s.err != nil {
		return 0, s.err
	}
	return len(readings), nil
}

func postReport(t *testing.T, handler *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/points/state", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandlerAcceptsBatchAndCoercesValues(t *testing.T) {
	reporter := &stubReporter{}
	handler := NewHandler(reporter)

	body := `{
		"apiKey": "key-1",
		"points": [
			{"pointName": "temp", "ipAddress": "10.0.0.9", "pointType": 2, "pointId": 7, "presentValue": 21.5},
			{"pointName": "fan", "pointType": 3, "pointId": 8, "presentValue": true},
			{"pointName": "setpoint", "pointType": 2, "pointId": 9, "presentValue": "18.5"}
		]
	}`
	rec := postReport(t, handler, body)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if reporter.apiKey != "key-1" {
		t.Fatalf("expected api key forwarded, got %q", reporter.apiKey)
	}
	if len(reporter.readings) != 3 {
		t.Fatalf("expected 3 readings, got %d", len(reporter.readings))
	}
	if reporter.readings[0].Value != 21.5 {
		t.Fatalf("expected number passed through, got %v", reporter.readings[0].Value)
	}
	if reporter.readings[1].Value != 1 {
		t.Fatalf("expected true coerced to 1, got %v", reporter.readings[1].Value)
	}
	if reporter.readings[2].Value != 18.5 {
		t.Fatalf("expected numeric string parsed, got %v", reporter.readings[2].Value)
	}
	if !strings.Contains(rec.Body.String(), `"count":3`) {
		t.Fatalf("expected count in response, got %s", rec.Body.String())
	}
}

func TestHandlerRejectsMalformedBody(t *testing.T) {
	handler := NewHandler(&stubReporter{})
	rec := postReport(t, handler, `{"apiKey": `)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandlerRejectsNonNumericValue(t *testing.T) {
	handler := NewHandler(&stubReporter{})
	body := `{"apiKey": "key-1", "points": [{"pointName": "temp", "presentValue": "warm"}]}`
	rec := postReport(t, handler, body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandlerRejectsReportWithoutKey(t *testing.T) {
	handler := NewHandler(&stubReporter{err: ingest.ErrMissingKey})
	rec := postReport(t, handler, `{"points": [{"pointName": "Temp1", "presentValue": 42}]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandlerMapsSentinels(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"missing key", ingest.ErrMissingKey, http.StatusBadRequest},
		{"unknown key", ingest.ErrUnknownKey, http.StatusUnauthorized},
		{"disabled client", ingest.ErrClientDisabled, http.StatusForbidden},
		{"empty batch", ingest.ErrEmptyBatch, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewHandler(&stubReporter{err: tc.err})
			rec := postReport(t, handler, `{"apiKey": "key-1", "points": [{"pointName": "temp", "presentValue": 1}]}`)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestHandlerRejectsWrongMethod(t *testing.T) {
	handler := NewHandler(&stubReporter{})
	req := httptest.NewRequest(http.MethodGet, "/points/state", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
