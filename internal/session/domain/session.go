package domain

import "time"

// Session is server-side browser state keyed by an opaque cookie identifier.
// It is anonymous until login stores a user id.
type Session struct {
	ID string
	// UserID and EID are set once the session is authenticated.
	UserID int64
	EID    string
	// CASUser is the identity confirmed by CAS, empty for forced-auth sessions.
	CASUser    string
	IPAddress  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	LastSeenAt time.Time
}

// Authenticated reports whether login has completed for this session.
func (s *Session) Authenticated() bool {
	return s != nil && s.UserID != 0
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}
