package domain

import (
	"errors"
	"strings"
	"time"
)

// Role names with built-in meaning to the role guard.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// MaxEIDLength matches the width of users.eid.
const MaxEIDLength = 20

// ErrInvalidEID is returned when an external identity is empty or too long.
var ErrInvalidEID = errors.New("eid must be 1 to 20 characters")

// User is an account keyed by its external identity (eid).
type User struct {
	ID   int64
	EID  string
	Name string
	// RefreshToken is the opaque refresh value currently accepted for this user. Empty when none is issued.
	RefreshToken string
	Roles        []Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CreatedBy    string
	UpdatedBy    string
}

// Role is a named permission class.
type Role struct {
	ID   int64
	Name string
}

// RoleNames returns the names of the user's roles. Never nil.
func (u *User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.Name)
	}
	return names
}

// HasRole reports whether the user holds the named role.
func (u *User) HasRole(name string) bool {
	for _, r := range u.Roles {
		if r.Name == name {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool { return u.HasRole(RoleAdmin) }

// NormalizeEID trims eid and checks its length.
func NormalizeEID(eid string) (string, error) {
	eid = strings.TrimSpace(eid)
	if eid == "" || len(eid) > MaxEIDLength {
		return "", ErrInvalidEID
	}
	return eid, nil
}
