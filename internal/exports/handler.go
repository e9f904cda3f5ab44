package exports

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"fieldwatch/internal/api/httpx"
)

// Handler serves the report download endpoints.
type Handler struct {
	events  EventSource
	samples SampleSource
	clients ClientSource
}

// NewHandler constructs a Handler.
func NewHandler(events EventSource, samples SampleSource, clients ClientSource) *Handler {
	return &Handler{events: events, samples: samples, clients: clients}
}

// Routes mounts the export endpoints on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/exports/events.csv", h.eventsCSV)
	r.Get("/exports/samples.xlsx", h.samplesXLSX)
	r.Get("/exports/clients.pdf", h.clientsPDF)
}

func (h *Handler) eventsCSV(w http.ResponseWriter, r *http.Request) {
	payload, err := EventsCSV(r.Context(), h.events)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="events.csv"`)
	_, _ = w.Write(payload)
}

func (h *Handler) samplesXLSX(w http.ResponseWriter, r *http.Request) {
	pointID := r.URL.Query().Get("pointId")
	if pointID == "" {
		httpx.WriteErrorStatus(w, http.StatusBadRequest, "pointId is required")
		return
	}
	payload, err := SamplesXLSX(r.Context(), h.samples, pointID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="samples.xlsx"`)
	_, _ = w.Write(payload)
}

func (h *Handler) clientsPDF(w http.ResponseWriter, r *http.Request) {
	payload, err := ClientsPDF(r.Context(), h.clients)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="clients.pdf"`)
	_, _ = w.Write(payload)
}
