package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/mux"

	auditdomain "outreach-tracker/backend/internal/audit/domain"
	auditrepo "outreach-tracker/backend/internal/audit/repository"
	"outreach-tracker/backend/internal/policy/engine"
	"outreach-tracker/backend/internal/server/middleware"
	userrepo "outreach-tracker/backend/internal/user/repository"
	userservice "outreach-tracker/backend/internal/user/service"
)

type harness struct {
	router *mux.Router
	dir    *userservice.Directory
	audits *auditrepo.MemoryRepository
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := userservice.NewDirectory(userrepo.NewMemoryRepository(), nil)
	audits := auditrepo.NewMemoryRepository()
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()
	NewAPIHandler(dir, audits, engine.SetAuthorizer{}, nil).Register(api)
	return &harness{router: r, dir: dir, audits: audits}
}

// do serves a request as identity id, skipping token verification.
func (h *harness) do(t *testing.T, id middleware.Identity, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req = req.WithContext(middleware.WithIdentity(req.Context(), id))
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func (h *harness) seed(t *testing.T, eid string, roleIDs ...int64) int64 {
	t.Helper()
	u, err := h.dir.Create(context.Background(), eid, eid+" name", roleIDs)
	if err != nil {
		t.Fatalf("Create %s: %v", eid, err)
	}
	return u.ID
}

func TestVersion(t *testing.T) {
	h := newHarness(t)

	var got VersionResponse
	rec := h.do(t, middleware.Identity{UserID: 4, Roles: []string{"admin"}}, http.MethodGet, "/api/v1/", nil)
	decode(t, rec, &got)
	if rec.Code != http.StatusOK || got.Version != 1.0 || got.UserID != 4 || got.IsAdmin != 1 {
		t.Errorf("admin: %d %+v", rec.Code, got)
	}

	rec = h.do(t, middleware.Identity{UserID: 5, Roles: []string{}}, http.MethodGet, "/api/v1/", nil)
	got = VersionResponse{}
	decode(t, rec, &got)
	if got.UserID != 5 || got.IsAdmin != 0 {
		t.Errorf("no roles: %+v", got)
	}
}

func TestProfile(t *testing.T) {
	h := newHarness(t)
	id := h.seed(t, "student", 2)
	caller := middleware.Identity{UserID: id, EID: "student", Roles: []string{"user"}}

	rec := h.do(t, caller, http.MethodPost, "/api/v1/profile", UserRequest{User: UserPayload{Name: "Renamed"}})
	var msg MessageResponse
	decode(t, rec, &msg)
	if rec.Code != http.StatusOK || msg.Message != "Profile Saved" {
		t.Fatalf("save: %d %+v", rec.Code, msg)
	}

	rec = h.do(t, caller, http.MethodGet, "/api/v1/profile", nil)
	var u UserResponse
	decode(t, rec, &u)
	if u.ID != id || u.EID != "student" || u.Name != "Renamed" {
		t.Errorf("profile = %+v", u)
	}
}

func TestProfile_RequiresRole(t *testing.T) {
	h := newHarness(t)
	id := h.seed(t, "new-user")

	rec := h.do(t, middleware.Identity{UserID: id, Roles: []string{}}, http.MethodGet, "/api/v1/profile", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	var body map[string]string
	decode(t, rec, &body)
	if body["error"] != "Users or Admins Only" {
		t.Errorf("error = %q", body["error"])
	}
}

func TestAdminRoutes_ForbiddenForUsers(t *testing.T) {
	h := newHarness(t)
	caller := middleware.Identity{UserID: 1, Roles: []string{"user"}}
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/roles"},
		{http.MethodGet, "/api/v1/users"},
		{http.MethodPut, "/api/v1/users"},
		{http.MethodPost, "/api/v1/users/1"},
		{http.MethodDelete, "/api/v1/users/1"},
		{http.MethodGet, "/api/v1/audit"},
	} {
		rec := h.do(t, caller, tc.method, tc.path, UserRequest{})
		if rec.Code != http.StatusForbidden {
			t.Errorf("%s %s = %d, want 403", tc.method, tc.path, rec.Code)
		}
	}
}

func TestUsers_CreateListUpdateDelete(t *testing.T) {
	h := newHarness(t)
	adminID := h.seed(t, "test-admin", 1)
	admin := middleware.Identity{UserID: adminID, EID: "test-admin", Roles: []string{"admin"}}

	rec := h.do(t, admin, http.MethodPut, "/api/v1/users", UserRequest{User: UserPayload{
		EID: "student", Name: "Student", Roles: []RoleResponse{{ID: 2}},
	}})
	var msg MessageResponse
	decode(t, rec, &msg)
	if rec.Code != http.StatusOK || msg.Message != "User Saved" {
		t.Fatalf("create: %d %+v", rec.Code, msg)
	}

	rec = h.do(t, admin, http.MethodPut, "/api/v1/users", UserRequest{User: UserPayload{EID: "student"}})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("duplicate create = %d, want 422", rec.Code)
	}

	var users []UserResponse
	decode(t, h.do(t, admin, http.MethodGet, "/api/v1/users", nil), &users)
	if len(users) != 2 {
		t.Fatalf("users = %+v", users)
	}
	var student UserResponse
	for _, u := range users {
		if u.EID == "student" {
			student = u
		}
	}
	if len(student.Roles) != 1 || student.Roles[0].Name != "user" {
		t.Fatalf("student = %+v", student)
	}

	path := "/api/v1/users/" + strconv.FormatInt(student.ID, 10)
	rec = h.do(t, admin, http.MethodPost, path, UserRequest{User: UserPayload{
		Name: "Promoted", Roles: []RoleResponse{{ID: 1}, {ID: 2}},
	}})
	if rec.Code != http.StatusOK {
		t.Fatalf("update = %d %s", rec.Code, rec.Body)
	}
	u, _ := h.dir.FindByID(context.Background(), student.ID)
	if u.Name != "Promoted" || !u.IsAdmin() {
		t.Errorf("after update = %+v", u)
	}

	rec = h.do(t, admin, http.MethodDelete, path, nil)
	decode(t, rec, &msg)
	if rec.Code != http.StatusOK || msg.Message != "User Deleted" {
		t.Fatalf("delete: %d %+v", rec.Code, msg)
	}

	rec = h.do(t, admin, http.MethodDelete, path, nil)
	var body map[string]string
	decode(t, rec, &body)
	if rec.Code != http.StatusUnprocessableEntity || body["error"] != "User Not Found" {
		t.Errorf("second delete: %d %v", rec.Code, body)
	}
}

func TestUsers_CannotDeleteSelf(t *testing.T) {
	h := newHarness(t)
	adminID := h.seed(t, "test-admin", 1)
	admin := middleware.Identity{UserID: adminID, Roles: []string{"admin"}}

	rec := h.do(t, admin, http.MethodDelete, "/api/v1/users/"+strconv.FormatInt(adminID, 10), nil)
	var body map[string]string
	decode(t, rec, &body)
	if rec.Code != http.StatusUnprocessableEntity || body["error"] != "Cannot Delete Yourself" {
		t.Errorf("self delete: %d %v", rec.Code, body)
	}
}

func TestUsers_MalformedBody(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/users", bytes.NewBufferString("{not json"))
	req = req.WithContext(middleware.WithIdentity(req.Context(), middleware.Identity{UserID: 1, Roles: []string{"admin"}}))
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestRoles(t *testing.T) {
	h := newHarness(t)
	var roles []RoleResponse
	decode(t, h.do(t, middleware.Identity{UserID: 1, Roles: []string{"admin"}}, http.MethodGet, "/api/v1/roles", nil), &roles)
	if len(roles) != 2 || roles[0].Name != "admin" || roles[1].Name != "user" {
		t.Errorf("roles = %+v", roles)
	}
}

func TestAudit_Paging(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, action := range []string{"create", "update", "delete"} {
		_ = h.audits.Create(ctx, &auditdomain.AuditLog{ID: action, Action: action, Resource: "user", CreatedAt: time.Now()})
	}
	admin := middleware.Identity{UserID: 1, Roles: []string{"admin"}}

	var page []AuditEntryResponse
	decode(t, h.do(t, admin, http.MethodGet, "/api/v1/audit?limit=2", nil), &page)
	if len(page) != 2 || page[0].Action != "delete" || page[1].Action != "update" {
		t.Fatalf("page 1 = %+v", page)
	}
	page = nil
	decode(t, h.do(t, admin, http.MethodGet, "/api/v1/audit?limit=2&offset=2", nil), &page)
	if len(page) != 1 || page[0].Action != "create" {
		t.Errorf("page 2 = %+v", page)
	}
}
