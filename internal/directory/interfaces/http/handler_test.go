package directoryhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	directory "fieldwatch/internal/directory/domain"
)

type stubClients struct {
	created []directory.Client
	enabled map[string]bool
	byID    map[string]*directory.Client
}

func (s *stubClients) Create(_ context.Context, client *directory.Client) error {
	s.created = append(s.created, *client)
	return nil
}

func (s *stubClients) GetByID(_ context.Context, id string) (*directory.Client, error) {
	return s.byID[id], nil
}

func (s *stubClients) SetEnabled(_ context.Context, id string, enabled bool, _ time.Time) error {
	if s.enabled == nil {
		s.enabled = map[string]bool{}
	}
	s.enabled[id] = enabled
	return nil
}

type stubMonitor struct {
	clients []directory.Client
	calls   int
}

func (s *stubMonitor) CheckAll(_ context.Context) ([]directory.Client, error) {
	s.calls++
	out := make([]directory.Client, len(s.clients))
	copy(out, s.clients)
	return out, nil
}

type stubCascader struct {
	disabled       []string
	deletedClients []string
	deletedGroups  []string
	detachedUsers  []string
}

func (s *stubCascader) DisableClient(_ context.Context, id string) error {
	s.disabled = append(s.disabled, id)
	return nil
}

func (s *stubCascader) DeleteClient(_ context.Context, id string) error {
	s.deletedClients = append(s.deletedClients, id)
	return nil
}

func (s *stubCascader) DeleteGroup(_ context.Context, id string) error {
	s.deletedGroups = append(s.deletedGroups, id)
	return nil
}

func (s *stubCascader) DetachDeletedUser(_ context.Context, id string) error {
	s.detachedUsers = append(s.detachedUsers, id)
	return nil
}

type stubGroups struct {
	byID    map[string]*directory.Group
	added   [][2]string
	removed [][2]string
}

func (s *stubGroups) Create(_ context.Context, _ *directory.Group) error { return nil }

func (s *stubGroups) GetByID(_ context.Context, id string) (*directory.Group, error) {
	return s.byID[id], nil
}

func (s *stubGroups) List(_ context.Context) ([]directory.Group, error) { return nil, nil }

func (s *stubGroups) AddUser(_ context.Context, groupID, userID string) error {
	s.added = append(s.added, [2]string{groupID, userID})
	return nil
}

func (s *stubGroups) RemoveUser(_ context.Context, groupID, userID string) error {
	s.removed = append(s.removed, [2]string{groupID, userID})
	return nil
}

func (s *stubGroups) ListGroupRecipients(_ context.Context, _ string) ([]directory.Recipient, error) {
	return nil, nil
}

type stubUsers struct {
	byID    map[string]*directory.User
	deleted []string
}

func (s *stubUsers) Create(_ context.Context, _ *directory.User) error { return nil }

func (s *stubUsers) GetByID(_ context.Context, id string) (*directory.User, error) {
	return s.byID[id], nil
}

func (s *stubUsers) List(_ context.Context) ([]directory.User, error) { return nil, nil }

func (s *stubUsers) Update(_ context.Context, _ *directory.User) error { return nil }

func (s *stubUsers) Delete(_ context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func newTestRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Route("/api/v1", handler.Routes)
	return r
}

func TestListClientsRefreshesConnectivityAndHidesKeys(t *testing.T) {
	monitor := &stubMonitor{clients: []directory.Client{{
		ID:     "c1",
		Name:   "plant-a",
		APIKey: "secret-key",
	}}}
	handler := NewHandler(&stubClients{}, monitor, &stubGroups{}, &stubUsers{}, &stubCascader{}, nil)
	router := newTestRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/clients", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if monitor.calls != 1 {
		t.Fatalf("expected listing to trigger a connectivity check, got %d calls", monitor.calls)
	}
	if strings.Contains(rec.Body.String(), "secret-key") {
		t.Fatal("expected api key stripped from listing")
	}
}

func TestCreateClientReturnsGeneratedKey(t *testing.T) {
	clients := &stubClients{}
	handler := NewHandler(clients, &stubMonitor{}, &stubGroups{}, &stubUsers{}, &stubCascader{}, nil)
	router := newTestRouter(handler)

	body := `{"clientName": "plant-a", "location": "basement", "ipAddress": "10.0.0.2"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/clients", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created directory.Client
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.APIKey == "" {
		t.Fatal("expected generated api key in create response")
	}
	if !created.Enabled {
		t.Fatal("expected new client enabled")
	}
	if len(clients.created) != 1 {
		t.Fatalf("expected one stored client, got %d", len(clients.created))
	}
}

func TestDisableClientRunsCascade(t *testing.T) {
	clients := &stubClients{}
	cascader := &stubCascader{}
	handler := NewHandler(clients, &stubMonitor{}, &stubGroups{}, &stubUsers{}, cascader, nil)
	router := newTestRouter(handler)

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/clients/c1/enabled", strings.NewReader(`{"enabled": false}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if len(cascader.disabled) != 1 || cascader.disabled[0] != "c1" {
		t.Fatalf("expected disable cascade for c1, got %v", cascader.disabled)
	}
}

func TestEnableClientSkipsCascade(t *testing.T) {
	cascader := &stubCascader{}
	handler := NewHandler(&stubClients{}, &stubMonitor{}, &stubGroups{}, &stubUsers{}, cascader, nil)
	router := newTestRouter(handler)

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/clients/c1/enabled", strings.NewReader(`{"enabled": true}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if len(cascader.disabled) != 0 {
		t.Fatalf("expected no cascade on enable, got %v", cascader.disabled)
	}
}

func TestAddGroupUserValidatesReferences(t *testing.T) {
	groups := &stubGroups{byID: map[string]*directory.Group{"g1": {ID: "g1", Name: "ops"}}}
	users := &stubUsers{byID: map[string]*directory.User{"u1": {ID: "u1", Username: "ana"}}}
	handler := NewHandler(&stubClients{}, &stubMonitor{}, groups, users, &stubCascader{}, nil)
	router := newTestRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/groups/g1/users/u1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if len(groups.added) != 1 {
		t.Fatalf("expected membership added, got %v", groups.added)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/groups/g1/users/ghost", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown user, got %d", rec.Code)
	}
}

func TestDeleteUserDetachesMemberships(t *testing.T) {
	users := &stubUsers{byID: map[string]*directory.User{"u1": {ID: "u1", Username: "ana"}}}
	cascader := &stubCascader{}
	handler := NewHandler(&stubClients{}, &stubMonitor{}, &stubGroups{}, users, cascader, nil)
	router := newTestRouter(handler)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/users/u1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if len(users.deleted) != 1 || users.deleted[0] != "u1" {
		t.Fatalf("expected user deleted, got %v", users.deleted)
	}
	if len(cascader.detachedUsers) != 1 || cascader.detachedUsers[0] != "u1" {
		t.Fatalf("expected memberships detached, got %v", cascader.detachedUsers)
	}
}
