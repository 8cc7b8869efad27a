package client

import (
	"slices"

	"github.com/golang-jwt/jwt/v5"

	"outreach-tracker/backend/internal/security"
	userdomain "outreach-tracker/backend/internal/user/domain"
)

// TokenStore holds the current access token and decodes its claims locally. Claims are read
// without verifying the signature; the server verifies every request.
type TokenStore struct {
	storage Storage
}

// NewTokenStore returns a TokenStore over storage. A nil storage keeps the token in memory.
func NewTokenStore(storage Storage) *TokenStore {
	if storage == nil {
		storage = &MemoryStore{}
	}
	return &TokenStore{storage: storage}
}

// Token returns the cached access token, or "".
func (s *TokenStore) Token() string {
	t, err := s.storage.Load()
	if err != nil {
		return ""
	}
	return t
}

// Set replaces the cached token.
func (s *TokenStore) Set(token string) error { return s.storage.Save(token) }

// Clear drops the cached token.
func (s *TokenStore) Clear() error { return s.storage.Clear() }

func (s *TokenStore) claims() *security.AccessClaims {
	t := s.Token()
	if t == "" {
		return nil
	}
	var c security.AccessClaims
	if _, _, err := jwt.NewParser().ParseUnverified(t, &c); err != nil {
		return nil
	}
	return &c
}

// RefreshToken returns the refresh JWT embedded in the access token.
func (s *TokenStore) RefreshToken() string {
	if c := s.claims(); c != nil {
		return c.RefreshToken
	}
	return ""
}

// EID returns the caller's external identity.
func (s *TokenStore) EID() string {
	if c := s.claims(); c != nil {
		return c.EID
	}
	return ""
}

// UserID returns the caller's internal id, or 0.
func (s *TokenStore) UserID() int64 {
	if c := s.claims(); c != nil {
		return c.UserID
	}
	return 0
}

// Roles returns the role names in the token.
func (s *TokenStore) Roles() []string {
	if c := s.claims(); c != nil {
		return c.Roles
	}
	return nil
}

// IsAdmin reports whether the token carries the admin role.
func (s *TokenStore) IsAdmin() bool { return slices.Contains(s.Roles(), userdomain.RoleAdmin) }

// IsUser reports whether the token carries the user role.
func (s *TokenStore) IsUser() bool { return slices.Contains(s.Roles(), userdomain.RoleUser) }
