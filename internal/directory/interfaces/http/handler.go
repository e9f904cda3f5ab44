package directoryhttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"fieldwatch/internal/api/httpx"
	"fieldwatch/internal/auth"
	directory "fieldwatch/internal/directory/domain"
)

// ClientStore is the persistence surface of the client endpoints.
type ClientStore interface {
	Create(ctx context.Context, client *directory.Client) error
	GetByID(ctx context.Context, id string) (*directory.Client, error)
	SetEnabled(ctx context.Context, id string, enabled bool, now time.Time) error
}

// ConnectivityChecker recomputes online state while listing clients.
type ConnectivityChecker interface {
	CheckAll(ctx context.Context) ([]directory.Client, error)
}

// GroupStore is the persistence surface of the group endpoints.
type GroupStore interface {
	Create(ctx context.Context, group *directory.Group) error
	GetByID(ctx context.Context, id string) (*directory.Group, error)
	List(ctx context.Context) ([]directory.Group, error)
	AddUser(ctx context.Context, groupID, userID string) error
	RemoveUser(ctx context.Context, groupID, userID string) error
	ListGroupRecipients(ctx context.Context, groupID string) ([]directory.Recipient, error)
}

// UserStore is the persistence surface of the user endpoints.
type UserStore interface {
	Create(ctx context.Context, user *directory.User) error
	GetByID(ctx context.Context, id string) (*directory.User, error)
	List(ctx context.Context) ([]directory.User, error)
	Update(ctx context.Context, user *directory.User) error
	Delete(ctx context.Context, id string) error
}

// Cascader runs the delete and disable cascades.
type Cascader interface {
	DisableClient(ctx context.Context, clientID string) error
	DeleteClient(ctx context.Context, clientID string) error
	DeleteGroup(ctx context.Context, groupID string) error
	DetachDeletedUser(ctx context.Context, userID string) error
}

// Authenticator verifies credentials for the login endpoint.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (string, *directory.User, error)
}

// Handler serves client, group, user, and login endpoints.
type Handler struct {
	clients  ClientStore
	monitor  ConnectivityChecker
	groups   GroupStore
	users    UserStore
	cascader Cascader
	authn    Authenticator
}

// NewHandler constructs a Handler.
func NewHandler(clients ClientStore, monitor ConnectivityChecker, groups GroupStore, users UserStore, cascader Cascader, authn Authenticator) *Handler {
	return &Handler{
		clients:  clients,
		monitor:  monitor,
		groups:   groups,
		users:    users,
		cascader: cascader,
		authn:    authn,
	}
}

// Routes mounts the directory endpoints on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/clients", h.listClients)
	r.Post("/clients", h.createClient)
	r.Get("/clients/{clientID}", h.getClient)
	r.Patch("/clients/{clientID}/enabled", h.setClientEnabled)
	r.Delete("/clients/{clientID}", h.deleteClient)

	r.Get("/groups", h.listGroups)
	r.Post("/groups", h.createGroup)
	r.Get("/groups/{groupID}", h.getGroup)
	r.Delete("/groups/{groupID}", h.deleteGroup)
	r.Get("/groups/{groupID}/users", h.listGroupUsers)
	r.Post("/groups/{groupID}/users/{userID}", h.addGroupUser)
	r.Delete("/groups/{groupID}/users/{userID}", h.removeGroupUser)

	r.Get("/users", h.listUsers)
	r.Post("/users", h.createUser)
	r.Get("/users/{userID}", h.getUser)
	r.Put("/users/{userID}", h.updateUser)
	r.Delete("/users/{userID}", h.deleteUser)
}

// listClients serves the dashboard listing. Connectivity is recomputed on
// every call so a silent client flips offline even between sweeps.
func (h *Handler) listClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.monitor.CheckAll(r.Context())
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	if clients == nil {
		clients = []directory.Client{}
	}
	for i := range clients {
		clients[i].APIKey = ""
	}
	httpx.WriteJSON(w, http.StatusOK, clients)
}

type clientRequest struct {
	Name      string `json:"clientName"`
	Location  string `json:"location"`
	IPAddress string `json:"ipAddress"`
}

func (h *Handler) createClient(w http.ResponseWriter, r *http.Request) {
	var req clientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteErrorStatus(w, http.StatusBadRequest, "malformed client body")
		return
	}
	now := time.Now().UTC()
	client := &directory.Client{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Location:  req.Location,
		IPAddress: req.IPAddress,
		APIKey:    directory.NewAPIKey(),
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := client.Validate(); err != nil {
		httpx.WriteErrorStatus(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.clients.Create(r.Context(), client); err != nil {
		httpx.WriteError(w, err)
		return
	}
	// The only response that ever carries the key.
	httpx.WriteJSON(w, http.StatusCreated, client)
}

func (h *Handler) getClient(w http.ResponseWriter, r *http.Request) {
	client, err := h.clients.GetByID(r.Context(), chi.URLParam(r, "clientID"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	if client == nil {
		httpx.WriteError(w, directory.ErrNotFound)
		return
	}
	client.APIKey = ""
	httpx.WriteJSON(w, http.StatusOK, client)
}

type enabledRequest struct {
	Enabled bool `json:"enabled"`
}

// setClientEnabled toggles a client. Disabling forces it offline and
// deactivates its alarms without notifying anyone.
func (h *Handler) setClientEnabled(w http.ResponseWriter, r *http.Request) {
	var req enabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteErrorStatus(w, http.StatusBadRequest, "malformed body")
		return
	}
	clientID := chi.URLParam(r, "clientID")
	if err := h.clients.SetEnabled(r.Context(), clientID, req.Enabled, time.Now().UTC()); err != nil {
		httpx.WriteError(w, err)
		return
	}
	if !req.Enabled {
		if err := h.cascader.DisableClient(r.Context(), clientID); err != nil {
			httpx.WriteError(w, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteClient(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	client, err := h.clients.GetByID(r.Context(), clientID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	if client == nil {
		httpx.WriteError(w, directory.ErrNotFound)
		return
	}
	if err := h.cascader.DeleteClient(r.Context(), clientID); err != nil {
		httpx.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.groups.List(r.Context())
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	if groups == nil {
		groups = []directory.Group{}
	}
	httpx.WriteJSON(w, http.StatusOK, groups)
}

type groupRequest struct {
	Name        string `json:"groupName"`
	Description string `json:"description"`
}

func (h *Handler) createGroup(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteErrorStatus(w, http.StatusBadRequest, "malformed group body")
		return
	}
	group := &directory.Group{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		CreatedAt:   time.Now().UTC(),
	}
	if err := group.Validate(); err != nil {
		httpx.WriteErrorStatus(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.groups.Create(r.Context(), group); err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, group)
}

func (h *Handler) getGroup(w http.ResponseWriter, r *http.Request) {
	group, err := h.groups.GetByID(r.Context(), chi.URLParam(r, "groupID"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	if group == nil {
		httpx.WriteError(w, directory.ErrNotFound)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, group)
}

func (h *Handler) deleteGroup(w http.ResponseWriter, r *http.Request) {
	if err := h.cascader.DeleteGroup(r.Context(), chi.URLParam(r, "groupID")); err != nil {
		httpx.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listGroupUsers(w http.ResponseWriter, r *http.Request) {
	recipients, err := h.groups.ListGroupRecipients(r.Context(), chi.URLParam(r, "groupID"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	if recipients == nil {
		recipients = []directory.Recipient{}
	}
	httpx.WriteJSON(w, http.StatusOK, recipients)
}

func (h *Handler) addGroupUser(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	userID := chi.URLParam(r, "userID")
	group, err := h.groups.GetByID(r.Context(), groupID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	if group == nil {
		httpx.WriteError(w, directory.ErrNotFound)
		return
	}
	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	if user == nil {
		httpx.WriteError(w, directory.ErrNotFound)
		return
	}
	if err := h.groups.AddUser(r.Context(), groupID, userID); err != nil {
		httpx.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeGroupUser(w http.ResponseWriter, r *http.Request) {
	if err := h.groups.RemoveUser(r.Context(), chi.URLParam(r, "groupID"), chi.URLParam(r, "userID")); err != nil {
		httpx.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	if users == nil {
		users = []directory.User{}
	}
	httpx.WriteJSON(w, http.StatusOK, users)
}

type userRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Phone    string `json:"phoneNum"`
	Role     string `json:"userType"`
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteErrorStatus(w, http.StatusBadRequest, "malformed user body")
		return
	}
	if req.Password == "" {
		httpx.WriteErrorStatus(w, http.StatusBadRequest, "password is required")
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	if _, ok := auth.NormalizeRole(req.Role); !ok {
		req.Role = string(auth.RoleViewer)
	}
	user := &directory.User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		PasswordHash: hash,
		Name:         req.Name,
		Phone:        req.Phone,
		Role:         req.Role,
		CreatedAt:    time.Now().UTC(),
	}
	if err := user.Validate(); err != nil {
		httpx.WriteErrorStatus(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.users.Create(r.Context(), user); err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, user)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetByID(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	if user == nil {
		httpx.WriteError(w, directory.ErrNotFound)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	existing, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	if existing == nil {
		httpx.WriteError(w, directory.ErrNotFound)
		return
	}
	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteErrorStatus(w, http.StatusBadRequest, "malformed user body")
		return
	}
	if req.Username != "" {
		existing.Username = req.Username
	}
	if req.Name != "" {
		existing.Name = req.Name
	}
	existing.Phone = req.Phone
	if _, ok := auth.NormalizeRole(req.Role); ok {
		existing.Role = req.Role
	}
	if req.Password != "" {
		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			httpx.WriteError(w, err)
			return
		}
		existing.PasswordHash = hash
	}
	if err := h.users.Update(r.Context(), existing); err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, existing)
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := h.users.Delete(r.Context(), userID); err != nil {
		httpx.WriteError(w, err)
		return
	}
	if err := h.cascader.DetachDeletedUser(r.Context(), userID); err != nil {
		httpx.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string          `json:"token"`
	User  *directory.User `json:"user"`
}

// Login serves POST /api/v1/login; it sits outside Routes because the path
// is exempt from the auth middleware.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.authn == nil {
		httpx.WriteErrorStatus(w, http.StatusServiceUnavailable, "auth not ready")
		return
	}
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteErrorStatus(w, http.StatusBadRequest, "malformed login body")
		return
	}
	token, user, err := h.authn.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrBadCredentials) {
			httpx.WriteErrorStatus(w, http.StatusUnauthorized, "bad credentials")
			return
		}
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loginResponse{Token: token, User: user})
}
