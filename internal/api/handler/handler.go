// Package handler serves the bearer-token API under /api/v1: the version probe, the caller's profile,
// and the admin-only user, role and audit endpoints.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	auditdomain "outreach-tracker/backend/internal/audit/domain"
	auditrepo "outreach-tracker/backend/internal/audit/repository"
	"outreach-tracker/backend/internal/platform/httpjson"
	"outreach-tracker/backend/internal/platform/rbac"
	"outreach-tracker/backend/internal/policy/engine"
	"outreach-tracker/backend/internal/server/middleware"
	userdomain "outreach-tracker/backend/internal/user/domain"
	userservice "outreach-tracker/backend/internal/user/service"
)

// APIVersion is reported by GET /api/v1/.
const APIVersion = 1.0

const (
	msgInternal      = "Internal Server Error"
	msgBadRequest    = "Malformed Request Body"
	msgUserNotFound  = "User Not Found"
	msgDeleteSelf    = "Cannot Delete Yourself"
	msgUserExists    = "User Already Exists"
	msgUnknownRole   = "Unknown Role"
	msgInvalidEID    = "Invalid eID"
	defaultAuditPage = 50
	maxAuditPage     = 500
)

// Directory is the user directory surface the API needs. *userservice.Directory implements it.
type Directory interface {
	FindByID(ctx context.Context, id int64) (*userdomain.User, error)
	List(ctx context.Context) ([]*userdomain.User, error)
	ListRoles(ctx context.Context) ([]userdomain.Role, error)
	Create(ctx context.Context, eid, name string, roleIDs []int64) (*userdomain.User, error)
	Update(ctx context.Context, id int64, name string, roleIDs []int64) error
	UpdateProfile(ctx context.Context, id int64, name string) error
	Delete(ctx context.Context, actorID, id int64) error
}

// VersionResponse is the body of GET /api/v1/.
type VersionResponse struct {
	Version float64 `json:"version"`
	UserID  int64   `json:"user_id"`
	IsAdmin int     `json:"is_admin"`
}

// RoleResponse is one role.
type RoleResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// UserResponse is one user with roles.
type UserResponse struct {
	ID    int64          `json:"id"`
	EID   string         `json:"eid"`
	Name  string         `json:"name"`
	Roles []RoleResponse `json:"roles"`
}

// UserPayload is the "user" object of create, update and profile requests.
type UserPayload struct {
	EID   string         `json:"eid"`
	Name  string         `json:"name"`
	Roles []RoleResponse `json:"roles"`
}

// UserRequest wraps UserPayload as {"user": {...}}.
type UserRequest struct {
	User UserPayload `json:"user"`
}

// MessageResponse acknowledges a write.
type MessageResponse struct {
	Message string `json:"message"`
}

// AuditEntryResponse is one audit log row.
type AuditEntryResponse struct {
	ID        string `json:"id"`
	UserID    int64  `json:"user_id,omitempty"`
	EID       string `json:"eid,omitempty"`
	Action    string `json:"action"`
	Resource  string `json:"resource"`
	IP        string `json:"ip"`
	Metadata  string `json:"metadata,omitempty"`
	CreatedAt string `json:"created_at"`
}

// APIHandler serves /api/v1.
type APIHandler struct {
	users  Directory
	audits auditrepo.Repository
	authz  engine.Authorizer
	logger *zap.Logger
}

// NewAPIHandler returns an APIHandler. audits may be nil, which disables GET /audit.
func NewAPIHandler(users Directory, audits auditrepo.Repository, authz engine.Authorizer, logger *zap.Logger) *APIHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIHandler{users: users, audits: audits, authz: authz, logger: logger.Named("api")}
}

// Register mounts the routes on api, a router already behind middleware.Authenticate.
func (h *APIHandler) Register(api *mux.Router) {
	admin := rbac.AdminOnly(h.authz, h.logger)
	member := rbac.UserOrAdminOnly(h.authz, h.logger)

	api.HandleFunc("/", h.Version).Methods(http.MethodGet)
	api.Handle("/profile", member(http.HandlerFunc(h.GetProfile))).Methods(http.MethodGet)
	api.Handle("/profile", member(http.HandlerFunc(h.SaveProfile))).Methods(http.MethodPost)
	api.Handle("/roles", admin(http.HandlerFunc(h.ListRoles))).Methods(http.MethodGet)
	api.Handle("/users", admin(http.HandlerFunc(h.ListUsers))).Methods(http.MethodGet)
	api.Handle("/users", admin(http.HandlerFunc(h.CreateUser))).Methods(http.MethodPut)
	api.Handle("/users/{id:[0-9]+}", admin(http.HandlerFunc(h.UpdateUser))).Methods(http.MethodPost)
	api.Handle("/users/{id:[0-9]+}", admin(http.HandlerFunc(h.DeleteUser))).Methods(http.MethodDelete)
	if h.audits != nil {
		api.Handle("/audit", admin(http.HandlerFunc(h.ListAudit))).Methods(http.MethodGet)
	}
}

// Version reports the API version and who the token belongs to.
func (h *APIHandler) Version(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFromContext(r.Context())
	resp := VersionResponse{Version: APIVersion, UserID: id.UserID}
	for _, role := range id.Roles {
		if role == userdomain.RoleAdmin {
			resp.IsAdmin = 1
		}
	}
	httpjson.Write(w, http.StatusOK, resp)
}

// GetProfile returns the caller's own record.
func (h *APIHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFromContext(r.Context())
	u, err := h.users.FindByID(r.Context(), id.UserID)
	if err != nil {
		h.fail(w, "get profile", err)
		return
	}
	httpjson.Write(w, http.StatusOK, toUserResponse(u))
}

// SaveProfile updates the caller's display name.
func (h *APIHandler) SaveProfile(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFromContext(r.Context())
	var req UserRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, msgBadRequest)
		return
	}
	if err := h.users.UpdateProfile(r.Context(), id.UserID, req.User.Name); err != nil {
		h.fail(w, "save profile", err)
		return
	}
	httpjson.Write(w, http.StatusOK, MessageResponse{Message: "Profile Saved"})
}

// ListRoles returns every role.
func (h *APIHandler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.users.ListRoles(r.Context())
	if err != nil {
		h.fail(w, "list roles", err)
		return
	}
	httpjson.Write(w, http.StatusOK, toRoleResponses(roles))
}

// ListUsers returns every user with roles.
func (h *APIHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		h.fail(w, "list users", err)
		return
	}
	out := make([]UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	httpjson.Write(w, http.StatusOK, out)
}

// CreateUser adds a user from {"user": {eid, name, roles}}.
func (h *APIHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req UserRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, msgBadRequest)
		return
	}
	if _, err := h.users.Create(r.Context(), req.User.EID, req.User.Name, roleIDs(req.User.Roles)); err != nil {
		h.fail(w, "create user", err)
		return
	}
	httpjson.Write(w, http.StatusOK, MessageResponse{Message: "User Saved"})
}

// UpdateUser sets name and roles of user {id}.
func (h *APIHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	target, ok := pathID(r)
	if !ok {
		httpjson.Error(w, http.StatusUnprocessableEntity, msgUserNotFound)
		return
	}
	var req UserRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, msgBadRequest)
		return
	}
	if err := h.users.Update(r.Context(), target, req.User.Name, roleIDs(req.User.Roles)); err != nil {
		h.fail(w, "update user", err)
		return
	}
	httpjson.Write(w, http.StatusOK, MessageResponse{Message: "User Saved"})
}

// DeleteUser removes user {id}. Admins cannot delete themselves.
func (h *APIHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	target, ok := pathID(r)
	if !ok {
		httpjson.Error(w, http.StatusUnprocessableEntity, msgUserNotFound)
		return
	}
	id, _ := middleware.IdentityFromContext(r.Context())
	if err := h.users.Delete(r.Context(), id.UserID, target); err != nil {
		h.fail(w, "delete user", err)
		return
	}
	httpjson.Write(w, http.StatusOK, MessageResponse{Message: "User Deleted"})
}

// ListAudit pages through the audit log, newest first. Query: limit (default 50, max 500), offset.
func (h *APIHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultAuditPage)
	if limit <= 0 || limit > maxAuditPage {
		limit = defaultAuditPage
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	entries, err := h.audits.List(r.Context(), int32(limit), int32(offset))
	if err != nil {
		h.fail(w, "list audit", err)
		return
	}
	out := make([]AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toAuditResponse(e))
	}
	httpjson.Write(w, http.StatusOK, out)
}

// fail maps directory errors to 422 with a client message; everything else is logged and a 500.
func (h *APIHandler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, userservice.ErrUserNotFound):
		httpjson.Error(w, http.StatusUnprocessableEntity, msgUserNotFound)
	case errors.Is(err, userservice.ErrCannotDeleteSelf):
		httpjson.Error(w, http.StatusUnprocessableEntity, msgDeleteSelf)
	case errors.Is(err, userservice.ErrUserExists):
		httpjson.Error(w, http.StatusUnprocessableEntity, msgUserExists)
	case errors.Is(err, userservice.ErrUnknownRole):
		httpjson.Error(w, http.StatusUnprocessableEntity, msgUnknownRole)
	case errors.Is(err, userservice.ErrInvalidEID):
		httpjson.Error(w, http.StatusUnprocessableEntity, msgInvalidEID)
	default:
		h.logger.Error(op, zap.Error(err))
		httpjson.Error(w, http.StatusInternalServerError, msgInternal)
	}
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id, err == nil && id > 0
}

func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func roleIDs(roles []RoleResponse) []int64 {
	ids := make([]int64, 0, len(roles))
	for _, r := range roles {
		ids = append(ids, r.ID)
	}
	return ids
}

func toRoleResponses(roles []userdomain.Role) []RoleResponse {
	out := make([]RoleResponse, 0, len(roles))
	for _, r := range roles {
		out = append(out, RoleResponse{ID: r.ID, Name: r.Name})
	}
	return out
}

func toUserResponse(u *userdomain.User) UserResponse {
	return UserResponse{ID: u.ID, EID: u.EID, Name: u.Name, Roles: toRoleResponses(u.Roles)}
}

func toAuditResponse(e *auditdomain.AuditLog) AuditEntryResponse {
	return AuditEntryResponse{
		ID:        e.ID,
		UserID:    e.UserID,
		EID:       e.EID,
		Action:    e.Action,
		Resource:  e.Resource,
		IP:        e.IP,
		Metadata:  e.Metadata,
		CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339),
	}
}
