package repository

import (
	"context"
	"errors"

	"outreach-tracker/backend/internal/user/domain"
)

var (
	// ErrDuplicateEID is returned by Create when another user already holds the eid.
	ErrDuplicateEID = errors.New("user with this eid already exists")
	// ErrUnknownRole is returned by Create and Update when a role id does not exist. Nothing is written.
	ErrUnknownRole = errors.New("unknown role")
)

// Repository defines persistence for users and their roles.
// Lookups return (nil, nil) when no row matches.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByEID(ctx context.Context, eid string) (*domain.User, error)
	// GetByRefreshToken returns the user whose stored refresh value equals value.
	GetByRefreshToken(ctx context.Context, value string) (*domain.User, error)
	List(ctx context.Context) ([]*domain.User, error)
	// Create inserts u with roleIDs and sets its ID and timestamps, all or nothing.
	// Returns ErrDuplicateEID on a unique violation.
	Create(ctx context.Context, u *domain.User, roleIDs []int64) error
	// Update sets the display name and replaces the role set in one step. Returns false when the user does not exist.
	Update(ctx context.Context, id int64, name string, roleIDs []int64) (bool, error)
	// UpdateName sets the display name. Returns false when the user does not exist.
	UpdateName(ctx context.Context, id int64, name string) (bool, error)
	// InitRefreshToken stores value only if the user has no refresh value and returns the value now stored.
	InitRefreshToken(ctx context.Context, userID int64, value string) (string, error)
	// SetRefreshToken overwrites the stored refresh value. An empty value clears it.
	SetRefreshToken(ctx context.Context, userID int64, value string) error
	// Delete removes the user. Returns false when the user does not exist.
	Delete(ctx context.Context, id int64) (bool, error)
	ListRoles(ctx context.Context) ([]domain.Role, error)
}
