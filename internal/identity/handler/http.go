// Package handler serves the session gateway over HTTP: /auth/login, /auth/token, /auth/logout and the
// session-aware index route.
package handler

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"outreach-tracker/backend/internal/identity/service"
	"outreach-tracker/backend/internal/platform/httpjson"
	"outreach-tracker/backend/internal/server/middleware"
	sessiondomain "outreach-tracker/backend/internal/session/domain"
	sessionservice "outreach-tracker/backend/internal/session/service"
)

const msgInternal = "Internal Server Error"

// TokenResponse is the body of both /auth/token endpoints.
type TokenResponse struct {
	Token string `json:"token"`
}

// RefreshRequest is the body of POST /auth/token.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// IndexResponse describes the session user. All fields are omitted for anonymous sessions.
type IndexResponse struct {
	ID    int64  `json:"id,omitempty"`
	EID   string `json:"eid,omitempty"`
	Name  string `json:"name,omitempty"`
	Admin *bool  `json:"admin,omitempty"`
}

// AuthHandler serves the gateway endpoints.
type AuthHandler struct {
	auth     *service.AuthService
	sessions *sessionservice.Manager
	logger   *zap.Logger
}

// NewAuthHandler returns an AuthHandler.
func NewAuthHandler(auth *service.AuthService, sessions *sessionservice.Manager, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{auth: auth, sessions: sessions, logger: logger.Named("auth_handler")}
}

// Register mounts the routes on r.
func (h *AuthHandler) Register(r *mux.Router) {
	r.HandleFunc("/", h.Index).Methods(http.MethodGet)
	r.HandleFunc("/auth/login", h.Login).Methods(http.MethodGet)
	r.HandleFunc("/auth/token", h.Token).Methods(http.MethodGet)
	r.HandleFunc("/auth/token", h.Refresh).Methods(http.MethodPost)
	r.HandleFunc("/auth/logout", h.Logout).Methods(http.MethodGet)
}

// Login always answers with a redirect: to CAS while sign-on is pending, home otherwise.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Begin(r)
	if err != nil {
		h.internal(w, "begin session", err)
		return
	}
	q := r.URL.Query()
	res, err := h.auth.Login(r.Context(), sess, service.LoginRequest{EID: q.Get("eid"), Ticket: q.Get("ticket")})
	if err != nil {
		h.internal(w, "login", err)
		return
	}
	if res.SaveSession {
		if err := h.sessions.Save(r.Context(), w, sess); err != nil {
			h.internal(w, "save session", err)
			return
		}
	}
	if sess.Authenticated() {
		middleware.SetRemoteUser(r.Context(), "s:"+sess.EID)
	}
	http.Redirect(w, r, res.Redirect, http.StatusFound)
}

// Token issues an access token for the cookie session. A session whose user was deleted is destroyed.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Load(r)
	if err != nil {
		h.internal(w, "load session", err)
		return
	}
	if sess.Authenticated() {
		middleware.SetRemoteUser(r.Context(), "s:"+sess.EID)
	}
	res, err := h.auth.Token(r.Context(), sess)
	if errors.Is(err, service.ErrSessionUserGone) {
		h.destroy(w, r, sess)
	}
	if err != nil {
		h.fail(w, "token", err)
		return
	}
	httpjson.Write(w, http.StatusOK, TokenResponse{Token: res.Token})
}

// Refresh exchanges {refresh_token} for a new access token. No session is required.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := httpjson.Decode(r, &req); err != nil {
		req.RefreshToken = ""
	}
	res, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.fail(w, "refresh", err)
		return
	}
	httpjson.Write(w, http.StatusOK, TokenResponse{Token: res.Token})
}

// Logout invalidates the user's refresh tokens, destroys the session and redirects.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Load(r)
	if err != nil {
		h.internal(w, "load session", err)
		return
	}
	redirect, err := h.auth.Logout(r.Context(), sess)
	if err != nil {
		h.internal(w, "logout", err)
		return
	}
	h.destroy(w, r, sess)
	http.Redirect(w, r, redirect, http.StatusFound)
}

// Index reports the session user. A session whose user was deleted is destroyed.
func (h *AuthHandler) Index(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Load(r)
	if err != nil {
		h.internal(w, "load session", err)
		return
	}
	u, err := h.auth.CurrentUser(r.Context(), sess)
	if errors.Is(err, service.ErrSessionUserGone) {
		h.destroy(w, r, sess)
		httpjson.Write(w, http.StatusOK, IndexResponse{})
		return
	}
	if err != nil {
		h.internal(w, "current user", err)
		return
	}
	if u == nil {
		httpjson.Write(w, http.StatusOK, IndexResponse{})
		return
	}
	middleware.SetRemoteUser(r.Context(), "s:"+u.EID)
	admin := u.IsAdmin()
	httpjson.Write(w, http.StatusOK, IndexResponse{ID: u.ID, EID: u.EID, Name: u.Name, Admin: &admin})
}

func (h *AuthHandler) destroy(w http.ResponseWriter, r *http.Request, sess *sessiondomain.Session) {
	if err := h.sessions.Destroy(r.Context(), w, sess); err != nil {
		h.logger.Warn("destroy session", zap.Error(err))
	}
}

// fail answers gateway errors with 401 and their client message; anything else is a 500.
func (h *AuthHandler) fail(w http.ResponseWriter, op string, err error) {
	if msg := service.Message(err); msg != "" {
		httpjson.Error(w, http.StatusUnauthorized, msg)
		return
	}
	h.internal(w, op, err)
}

func (h *AuthHandler) internal(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, zap.Error(err))
	httpjson.Error(w, http.StatusInternalServerError, msgInternal)
}
