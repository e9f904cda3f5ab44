package telemetryhttp

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fieldwatch/internal/api/httpx"
	directory "fieldwatch/internal/directory/domain"
	telemetry "fieldwatch/internal/telemetry/domain"
	postgres "fieldwatch/internal/telemetry/infrastructure/postgres"
)

// PointStore is the persistence surface of the point endpoints.
type PointStore interface {
	GetByID(ctx context.Context, id string) (*telemetry.Point, error)
	ListDetailed(ctx context.Context, clientID, groupID string) ([]postgres.PointDetail, error)
	SetGroup(ctx context.Context, pointID, groupID string) error
}

// SampleStore serves the data log endpoint.
type SampleStore interface {
	ListByPoint(ctx context.Context, pointID string) ([]telemetry.Sample, error)
}

// PointDeleter cascades a point deletion.
type PointDeleter interface {
	DeletePoint(ctx context.Context, pointID string) error
}

// GroupChecker verifies group existence before reassignment.
type GroupChecker interface {
	GetByID(ctx context.Context, id string) (*directory.Group, error)
}

// Handler serves point listing, group assignment, deletion, and data logs.
type Handler struct {
	points  PointStore
	samples SampleStore
	deleter PointDeleter
	groups  GroupChecker
}

// NewHandler constructs a Handler.
func NewHandler(points PointStore, samples SampleStore, deleter PointDeleter, groups GroupChecker) *Handler {
	return &Handler{points: points, samples: samples, deleter: deleter, groups: groups}
}

// Routes mounts the telemetry endpoints on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/points", h.list)
	r.Get("/points/{pointID}", h.get)
	r.Patch("/points/{pointID}/group", h.setGroup)
	r.Delete("/points/{pointID}", h.delete)
	r.Get("/datalogs", h.listSamples)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	listed, err := h.points.ListDetailed(r.Context(), query.Get("clientId"), query.Get("groupId"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	if listed == nil {
		listed = []postgres.PointDetail{}
	}
	httpx.WriteJSON(w, http.StatusOK, listed)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	point, err := h.points.GetByID(r.Context(), chi.URLParam(r, "pointID"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	if point == nil {
		httpx.WriteError(w, telemetry.ErrNotFound)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, point)
}

type setGroupRequest struct {
	GroupID string `json:"groupId"`
}

// setGroup reassigns a point's group; an empty groupId detaches it.
func (h *Handler) setGroup(w http.ResponseWriter, r *http.Request) {
	var req setGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteErrorStatus(w, http.StatusBadRequest, "malformed body")
		return
	}
	if req.GroupID != "" && h.groups != nil {
		group, err := h.groups.GetByID(r.Context(), req.GroupID)
		if err != nil {
			httpx.WriteError(w, err)
			return
		}
		if group == nil {
			httpx.WriteError(w, directory.ErrNotFound)
			return
		}
	}
	if err := h.points.SetGroup(r.Context(), chi.URLParam(r, "pointID"), req.GroupID); err != nil {
		httpx.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.deleter.DeletePoint(r.Context(), chi.URLParam(r, "pointID")); err != nil {
		httpx.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listSamples(w http.ResponseWriter, r *http.Request) {
	pointID := r.URL.Query().Get("pointId")
	if pointID == "" {
		httpx.WriteErrorStatus(w, http.StatusBadRequest, "pointId is required")
		return
	}
	samples, err := h.samples.ListByPoint(r.Context(), pointID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	if samples == nil {
		samples = []telemetry.Sample{}
	}
	httpx.WriteJSON(w, http.StatusOK, samples)
}
