package ingesthttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fieldwatch/internal/api/httpx"
	"fieldwatch/internal/observability/metrics"
	telemetry "fieldwatch/internal/telemetry/domain"
)

// Reporter is the ingest pipeline behind the handler.
type Reporter interface {
	Report(ctx context.Context, apiKey string, readings []telemetry.Reading) (int, error)
}

// Handler serves the client reporting endpoint.
type Handler struct {
	reporter Reporter
}

// NewHandler constructs a Handler.
func NewHandler(reporter Reporter) *Handler {
	return &Handler{reporter: reporter}
}

type reportedPoint struct {
	Name       string          `json:"pointName"`
	IPAddress  string          `json:"ipAddress"`
	TypeCode   int             `json:"pointType"`
	ExternalID int             `json:"pointId"`
	Value      json.RawMessage `json:"presentValue"`
}

type reportRequest struct {
	APIKey string          `json:"apiKey"`
	Points []reportedPoint `json:"points"`
}

type reportResponse struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// ServeHTTP handles POST /points/state.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.reporter == nil {
		httpx.WriteErrorStatus(w, http.StatusServiceUnavailable, "server not ready")
		return
	}
	start := time.Now()

	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.ObserveIngest(metrics.ResultError, time.Since(start))
		httpx.WriteErrorStatus(w, http.StatusBadRequest, "malformed report body")
		return
	}
	readings := make([]telemetry.Reading, 0, len(req.Points))
	for _, p := range req.Points {
		value, err := coerceValue(p.Value)
		if err != nil {
			metrics.ObserveIngest(metrics.ResultError, time.Since(start))
			httpx.WriteErrorStatus(w, http.StatusBadRequest, "point "+p.Name+": "+err.Error())
			return
		}
		readings = append(readings, telemetry.Reading{
			Name:       p.Name,
			IPAddress:  p.IPAddress,
			TypeCode:   p.TypeCode,
			ExternalID: p.ExternalID,
			Value:      value,
		})
	}

	count, err := h.reporter.Report(r.Context(), req.APIKey, readings)
	if err != nil {
		metrics.ObserveIngest(metrics.ResultError, time.Since(start))
		httpx.WriteError(w, err)
		return
	}
	metrics.ObserveIngest(metrics.ResultSuccess, time.Since(start))
	metrics.AddIngestReadings(count)
	httpx.WriteJSON(w, http.StatusCreated, reportResponse{Message: "points recorded", Count: count})
}

// coerceValue folds the reported value into a float64: numbers pass through,
// booleans become 1 or 0, numeric strings are parsed.
func coerceValue(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 {
		return 0, errors.New("missing presentValue")
	}
	var number float64
	if err := json.Unmarshal(raw, &number); err == nil {
		return number, nil
	}
	var boolean bool
	if err := json.Unmarshal(raw, &boolean); err == nil {
		if boolean {
			return 1, nil
		}
		return 0, nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		parsed, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return 0, errors.New("presentValue is not numeric")
		}
		return parsed, nil
	}
	return 0, errors.New("unsupported presentValue type")
}
