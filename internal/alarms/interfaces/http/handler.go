package alarmhttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	alarms "fieldwatch/internal/alarms/domain"
	postgres "fieldwatch/internal/alarms/infrastructure/postgres"
	"fieldwatch/internal/api/httpx"
	directory "fieldwatch/internal/directory/domain"
	telemetry "fieldwatch/internal/telemetry/domain"
)

// AlarmStore is the persistence surface of the CRUD handler.
type AlarmStore interface {
	Create(ctx context.Context, alarm *alarms.Alarm) error
	Update(ctx context.Context, alarm *alarms.Alarm) error
	GetByID(ctx context.Context, id string) (*alarms.Alarm, error)
	List(ctx context.Context) ([]alarms.Alarm, error)
	Delete(ctx context.Context, id string) error
}

// EventStore serves the event log endpoints.
type EventStore interface {
	ListPage(ctx context.Context, groupID string, page, limit int) (*postgres.EventPage, error)
}

// ReferenceResolver verifies that an alarm's references exist. Storage keeps
// no foreign keys, so a rule may only be created against live rows.
type ReferenceResolver interface {
	PointExists(ctx context.Context, id string) (bool, error)
	ClientExists(ctx context.Context, id string) (bool, error)
	GroupExists(ctx context.Context, id string) (bool, error)
}

// Handler serves alarm CRUD and the event log.
type Handler struct {
	store  AlarmStore
	events EventStore
	refs   ReferenceResolver
}

// NewHandler constructs a Handler.
func NewHandler(store AlarmStore, events EventStore, refs ReferenceResolver) *Handler {
	return &Handler{store: store, events: events, refs: refs}
}

// Routes mounts the alarm endpoints on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/alarms", h.list)
	r.Post("/alarms", h.create)
	r.Get("/alarms/{alarmID}", h.get)
	r.Put("/alarms/{alarmID}", h.update)
	r.Delete("/alarms/{alarmID}", h.delete)
	r.Get("/events", h.listEvents)
}

type alarmRequest struct {
	Name        string  `json:"alarmName"`
	MonitorType string  `json:"monitorType"`
	PointID     string  `json:"pointId"`
	ClientID    string  `json:"clientId"`
	GroupID     string  `json:"groupId"`
	Condition   string  `json:"conditionType"`
	Threshold   float64 `json:"threshold"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	listed, err := h.store.List(r.Context())
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	if listed == nil {
		listed = []alarms.Alarm{}
	}
	httpx.WriteJSON(w, http.StatusOK, listed)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	alarm, err := h.store.GetByID(r.Context(), chi.URLParam(r, "alarmID"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	if alarm == nil {
		httpx.WriteError(w, alarms.ErrNotFound)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, alarm)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req alarmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteErrorStatus(w, http.StatusBadRequest, "malformed alarm body")
		return
	}
	alarm := alarmFromRequest(req)
	alarm.ID = uuid.NewString()
	if err := alarm.Validate(); err != nil {
		httpx.WriteErrorStatus(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.checkReferences(r.Context(), alarm); err != nil {
		httpx.WriteError(w, err)
		return
	}
	if err := h.store.Create(r.Context(), alarm); err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, alarm)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req alarmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteErrorStatus(w, http.StatusBadRequest, "malformed alarm body")
		return
	}
	alarm := alarmFromRequest(req)
	alarm.ID = chi.URLParam(r, "alarmID")
	if err := alarm.Validate(); err != nil {
		httpx.WriteErrorStatus(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.checkReferences(r.Context(), alarm); err != nil {
		httpx.WriteError(w, err)
		return
	}
	if err := h.store.Update(r.Context(), alarm); err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, alarm)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.Context(), chi.URLParam(r, "alarmID")); err != nil {
		httpx.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		httpx.WriteErrorStatus(w, http.StatusServiceUnavailable, "events not ready")
		return
	}
	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	limit, _ := strconv.Atoi(query.Get("limit"))
	result, err := h.events.ListPage(r.Context(), query.Get("groupId"), page, limit)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	if result.Events == nil {
		result.Events = []postgres.EventDetail{}
	}
	httpx.WriteJSON(w, http.StatusOK, result)
}

func alarmFromRequest(req alarmRequest) *alarms.Alarm {
	now := time.Now().UTC()
	return &alarms.Alarm{
		Name:        req.Name,
		MonitorType: alarms.MonitorType(req.MonitorType),
		PointID:     req.PointID,
		ClientID:    req.ClientID,
		GroupID:     req.GroupID,
		Condition:   alarms.Condition(req.Condition),
		Threshold:   req.Threshold,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (h *Handler) checkReferences(ctx context.Context, alarm *alarms.Alarm) error {
	if h.refs == nil {
		return nil
	}
	if alarm.MonitorType == alarms.MonitorPoint {
		ok, err := h.refs.PointExists(ctx, alarm.PointID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: unknown point %s", telemetry.ErrNotFound, alarm.PointID)
		}
	}
	if alarm.MonitorType == alarms.MonitorClientConnection {
		ok, err := h.refs.ClientExists(ctx, alarm.ClientID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: unknown client %s", directory.ErrNotFound, alarm.ClientID)
		}
	}
	ok, err := h.refs.GroupExists(ctx, alarm.GroupID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: unknown group %s", directory.ErrNotFound, alarm.GroupID)
	}
	return nil
}
