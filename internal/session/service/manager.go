// Package service binds server-side sessions to browser cookies and sweeps expired sessions.
package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"outreach-tracker/backend/internal/platform/clientip"
	"outreach-tracker/backend/internal/session/domain"
	"outreach-tracker/backend/internal/session/repository"
)

// Options configures the session cookie.
type Options struct {
	CookieName string
	TTL        time.Duration
	Secure     bool
}

// Manager loads and stores sessions addressed by an opaque cookie id. It keeps no session state
// in process; every call goes to the repository.
type Manager struct {
	repo   repository.Repository
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

// NewManager returns a Manager over repo.
func NewManager(repo repository.Repository, opts Options, logger *zap.Logger) *Manager {
	if opts.CookieName == "" {
		opts.CookieName = "connect.sid"
	}
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{repo: repo, opts: opts, logger: logger.Named("sessions"), now: time.Now}
}

// CookieName returns the name of the session cookie.
func (m *Manager) CookieName() string { return m.opts.CookieName }

// Load returns the session referenced by the request cookie, or nil when there is no cookie or
// the session is unknown or expired. Expired sessions are deleted.
func (m *Manager) Load(r *http.Request) (*domain.Session, error) {
	c, err := r.Cookie(m.opts.CookieName)
	if err != nil || c.Value == "" {
		return nil, nil
	}
	s, err := m.repo.Get(r.Context(), c.Value)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if s == nil {
		return nil, nil
	}
	if s.Expired(m.now()) {
		if err := m.repo.Delete(r.Context(), s.ID); err != nil {
			m.logger.Warn("delete expired session", zap.Error(err))
		}
		return nil, nil
	}
	return s, nil
}

// Begin returns the current session or a new anonymous one. New sessions are not persisted until Save.
func (m *Manager) Begin(r *http.Request) (*domain.Session, error) {
	s, err := m.Load(r)
	if err != nil || s != nil {
		return s, err
	}
	id, err := newSessionID()
	if err != nil {
		return nil, err
	}
	now := m.now().UTC()
	return &domain.Session{
		ID:        id,
		IPAddress: clientip.FromRequest(r),
		CreatedAt: now,
		ExpiresAt: now.Add(m.opts.TTL),
	}, nil
}

// Save persists s with a renewed expiry and sets the session cookie.
func (m *Manager) Save(ctx context.Context, w http.ResponseWriter, s *domain.Session) error {
	now := m.now().UTC()
	s.LastSeenAt = now
	s.ExpiresAt = now.Add(m.opts.TTL)
	if err := m.repo.Save(ctx, s); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.opts.CookieName,
		Value:    s.ID,
		Path:     "/",
		Expires:  s.ExpiresAt,
		HttpOnly: true,
		Secure:   m.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Destroy deletes the session and expires the cookie. s may be nil.
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, s *domain.Session) error {
	http.SetCookie(w, &http.Cookie{
		Name:     m.opts.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	if s == nil {
		return nil
	}
	if err := m.repo.Delete(ctx, s.ID); err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}
	return nil
}

func newSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
