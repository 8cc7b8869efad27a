package repository

import (
	"context"
	"sync"

	"outreach-tracker/backend/internal/audit/domain"
)

// MemoryRepository keeps audit entries in process.
type MemoryRepository struct {
	mu      sync.Mutex
	entries []*domain.AuditLog
}

// NewMemoryRepository returns an empty in-memory audit store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

// Create appends a copy of a.
func (r *MemoryRepository) Create(_ context.Context, a *domain.AuditLog) error {
	c := *a
	r.mu.Lock()
	r.entries = append(r.entries, &c)
	r.mu.Unlock()
	return nil
}

// List returns entries newest first.
func (r *MemoryRepository) List(_ context.Context, limit, offset int32) ([]*domain.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.AuditLog, 0, limit)
	for i := len(r.entries) - 1 - int(offset); i >= 0 && len(out) < int(limit); i-- {
		c := *r.entries[i]
		out = append(out, &c)
	}
	return out, nil
}
