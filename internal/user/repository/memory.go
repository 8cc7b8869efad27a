package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"outreach-tracker/backend/internal/audit"
	"outreach-tracker/backend/internal/user/domain"
)

// DefaultRoles are the roles seeded by the initial migration.
var DefaultRoles = []domain.Role{
	{ID: 1, Name: domain.RoleAdmin},
	{ID: 2, Name: domain.RoleUser},
}

// MemoryRepository is an in-process Repository for single-instance deployments and tests.
// Reads return copies so callers cannot mutate stored records.
type MemoryRepository struct {
	mu        sync.RWMutex
	nextID    int64
	users     map[int64]*domain.User
	byEID     map[string]int64
	roles     map[int64]domain.Role
	userRoles map[int64]map[int64]struct{}
	now       func() time.Time
}

// NewMemoryRepository returns an empty repository holding DefaultRoles.
func NewMemoryRepository() *MemoryRepository {
	r := &MemoryRepository{
		users:     make(map[int64]*domain.User),
		byEID:     make(map[string]int64),
		roles:     make(map[int64]domain.Role),
		userRoles: make(map[int64]map[int64]struct{}),
		now:       time.Now,
	}
	for _, role := range DefaultRoles {
		r.roles[role.ID] = role
	}
	return r
}

// GetByID returns a copy of the user, or nil.
func (r *MemoryRepository) GetByID(_ context.Context, id int64) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.copyUser(r.users[id]), nil
}

// GetByEID returns a copy of the user with eid, or nil.
func (r *MemoryRepository) GetByEID(_ context.Context, eid string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEID[eid]
	if !ok {
		return nil, nil
	}
	return r.copyUser(r.users[id]), nil
}

// GetByRefreshToken returns a copy of the user holding value, or nil.
func (r *MemoryRepository) GetByRefreshToken(_ context.Context, value string) (*domain.User, error) {
	if value == "" {
		return nil, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.RefreshToken == value {
			return r.copyUser(u), nil
		}
	}
	return nil, nil
}

// List returns copies of all users ordered by id.
func (r *MemoryRepository) List(_ context.Context) ([]*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, r.copyUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Create inserts u with roleIDs, enforcing eid uniqueness. Role ids are checked before anything is stored.
func (r *MemoryRepository) Create(ctx context.Context, u *domain.User, roleIDs []int64) error {
	actor := audit.ActorFromContext(ctx)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byEID[u.EID]; exists {
		return ErrDuplicateEID
	}
	set, err := r.roleSet(roleIDs)
	if err != nil {
		return err
	}
	r.nextID++
	now := r.now().UTC()
	u.ID = r.nextID
	u.CreatedAt, u.UpdatedAt = now, now
	u.CreatedBy, u.UpdatedBy = actor, actor
	stored := *u
	stored.Roles = nil
	r.users[u.ID] = &stored
	r.byEID[u.EID] = u.ID
	r.userRoles[u.ID] = set
	return nil
}

// Update sets the name and replaces the role set. Role ids are checked before anything changes.
func (r *MemoryRepository) Update(ctx context.Context, id int64, name string, roleIDs []int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return false, nil
	}
	set, err := r.roleSet(roleIDs)
	if err != nil {
		return false, err
	}
	u.Name = name
	r.userRoles[id] = set
	r.touch(ctx, u)
	return true, nil
}

// UpdateName sets the display name.
func (r *MemoryRepository) UpdateName(ctx context.Context, id int64, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return false, nil
	}
	u.Name = name
	r.touch(ctx, u)
	return true, nil
}

// roleSet must be called with r.mu held.
func (r *MemoryRepository) roleSet(roleIDs []int64) (map[int64]struct{}, error) {
	set := make(map[int64]struct{}, len(roleIDs))
	for _, id := range roleIDs {
		if _, ok := r.roles[id]; !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnknownRole, id)
		}
		set[id] = struct{}{}
	}
	return set, nil
}

// InitRefreshToken stores value unless one is already present.
func (r *MemoryRepository) InitRefreshToken(_ context.Context, userID int64, value string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return "", nil
	}
	if u.RefreshToken == "" {
		u.RefreshToken = value
		u.UpdatedAt = r.now().UTC()
	}
	return u.RefreshToken, nil
}

// SetRefreshToken overwrites or clears the stored refresh value.
func (r *MemoryRepository) SetRefreshToken(ctx context.Context, userID int64, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[userID]; ok {
		u.RefreshToken = value
		r.touch(ctx, u)
	}
	return nil
}

// Delete removes the user and its role assignments.
func (r *MemoryRepository) Delete(_ context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return false, nil
	}
	delete(r.byEID, u.EID)
	delete(r.users, id)
	delete(r.userRoles, id)
	return true, nil
}

// ListRoles returns all roles ordered by id.
func (r *MemoryRepository) ListRoles(_ context.Context) ([]domain.Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Role, 0, len(r.roles))
	for _, role := range r.roles {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepository) touch(ctx context.Context, u *domain.User) {
	u.UpdatedAt = r.now().UTC()
	u.UpdatedBy = audit.ActorFromContext(ctx)
}

// copyUser must be called with r.mu held.
func (r *MemoryRepository) copyUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	c := *u
	c.Roles = nil
	for id := range r.userRoles[u.ID] {
		c.Roles = append(c.Roles, r.roles[id])
	}
	sort.Slice(c.Roles, func(i, j int) bool { return c.Roles[i].ID < c.Roles[j].ID })
	return &c
}
