// Package service implements the user directory: identity lookup, find-or-create on first login,
// refresh value bookkeeping and the admin user management operations.
package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"outreach-tracker/backend/internal/security"
	"outreach-tracker/backend/internal/user/domain"
	"outreach-tracker/backend/internal/user/repository"
)

var (
	// ErrUserNotFound is returned when the user id does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists is returned when creating a user whose eid is taken.
	ErrUserExists = repository.ErrDuplicateEID
	// ErrUnknownRole is returned when a role id does not exist.
	ErrUnknownRole = repository.ErrUnknownRole
	// ErrCannotDeleteSelf is returned when an admin tries to delete their own account.
	ErrCannotDeleteSelf = errors.New("cannot delete yourself")
	// ErrInvalidEID is returned for empty or oversized external identities.
	ErrInvalidEID = domain.ErrInvalidEID
)

// Directory is the user directory service.
type Directory struct {
	repo          repository.Repository
	logger        *zap.Logger
	newRefreshVal func() (string, error)
}

// NewDirectory returns a Directory backed by repo.
func NewDirectory(repo repository.Repository, logger *zap.Logger) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{
		repo:          repo,
		logger:        logger.Named("users"),
		newRefreshVal: security.GenerateRefreshValue,
	}
}

// FindOrCreate returns the user for eid, creating it with no roles when absent.
// A concurrent creation of the same eid surfaces as a unique violation and resolves to the existing row.
func (d *Directory) FindOrCreate(ctx context.Context, eid string) (*domain.User, error) {
	eid, err := domain.NormalizeEID(eid)
	if err != nil {
		return nil, err
	}
	u, err := d.repo.GetByEID(ctx, eid)
	if err != nil {
		return nil, fmt.Errorf("find user %q: %w", eid, err)
	}
	if u != nil {
		return u, nil
	}

	u = &domain.User{EID: eid}
	err = d.repo.Create(ctx, u, nil)
	if err == nil {
		d.logger.Info("user created", zap.String("eid", eid), zap.Int64("user_id", u.ID))
		return u, nil
	}
	if !errors.Is(err, repository.ErrDuplicateEID) {
		return nil, fmt.Errorf("create user %q: %w", eid, err)
	}
	existing, err := d.repo.GetByEID(ctx, eid)
	if err != nil {
		return nil, fmt.Errorf("find user %q: %w", eid, err)
	}
	if existing == nil {
		return nil, fmt.Errorf("user %q reported duplicate but not found", eid)
	}
	return existing, nil
}

// FindByID returns the user with roles, or ErrUserNotFound.
func (d *Directory) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	u, err := d.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}

// FindByRefreshToken returns the user currently holding value, or nil when no user does
// (the value was cleared by logout, replaced, or never issued).
func (d *Directory) FindByRefreshToken(ctx context.Context, value string) (*domain.User, error) {
	return d.repo.GetByRefreshToken(ctx, value)
}

// EnsureRefreshToken returns the user's stored refresh value, generating and storing one when absent.
// The stored value is reused across issuances so that refresh tokens already held by other clients stay valid.
func (d *Directory) EnsureRefreshToken(ctx context.Context, userID int64) (string, error) {
	u, err := d.FindByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if u.RefreshToken != "" {
		return u.RefreshToken, nil
	}
	value, err := d.newRefreshVal()
	if err != nil {
		return "", fmt.Errorf("generate refresh value: %w", err)
	}
	stored, err := d.repo.InitRefreshToken(ctx, userID, value)
	if err != nil {
		return "", err
	}
	if stored == "" {
		return "", ErrUserNotFound
	}
	return stored, nil
}

// SetRefreshToken replaces the stored refresh value.
func (d *Directory) SetRefreshToken(ctx context.Context, userID int64, value string) error {
	return d.repo.SetRefreshToken(ctx, userID, value)
}

// ClearRefreshToken removes the stored refresh value; every refresh token issued for it stops working.
func (d *Directory) ClearRefreshToken(ctx context.Context, userID int64) error {
	return d.repo.SetRefreshToken(ctx, userID, "")
}

// List returns all users with their roles.
func (d *Directory) List(ctx context.Context) ([]*domain.User, error) {
	return d.repo.List(ctx)
}

// ListRoles returns all roles.
func (d *Directory) ListRoles(ctx context.Context) ([]domain.Role, error) {
	return d.repo.ListRoles(ctx)
}

// Create adds a user with the given name and role ids. An unknown role id leaves no user behind.
func (d *Directory) Create(ctx context.Context, eid, name string, roleIDs []int64) (*domain.User, error) {
	eid, err := domain.NormalizeEID(eid)
	if err != nil {
		return nil, err
	}
	u := &domain.User{EID: eid, Name: name}
	if err := d.repo.Create(ctx, u, roleIDs); err != nil {
		return nil, err
	}
	return d.FindByID(ctx, u.ID)
}

// Update sets the name and replaces the role set of user id. Either both change or neither does.
func (d *Directory) Update(ctx context.Context, id int64, name string, roleIDs []int64) error {
	ok, err := d.repo.Update(ctx, id, name, roleIDs)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUserNotFound
	}
	return nil
}

// UpdateProfile sets the user's own display name.
func (d *Directory) UpdateProfile(ctx context.Context, id int64, name string) error {
	ok, err := d.repo.UpdateName(ctx, id, name)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUserNotFound
	}
	return nil
}

// Delete removes user id on behalf of actorID. An admin cannot delete themselves.
func (d *Directory) Delete(ctx context.Context, actorID, id int64) error {
	if actorID == id {
		return ErrCannotDeleteSelf
	}
	ok, err := d.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUserNotFound
	}
	d.logger.Info("user deleted", zap.Int64("user_id", id), zap.Int64("actor_id", actorID))
	return nil
}
