package repository

import (
	"context"
	"time"

	"outreach-tracker/backend/internal/session/domain"
)

// Repository defines persistence for sessions. Implementations shared by several server
// instances make a session established on one instance visible to all of them.
type Repository interface {
	// Get returns the session for id, or nil if not found.
	Get(ctx context.Context, id string) (*domain.Session, error)
	// Save inserts or replaces the session.
	Save(ctx context.Context, s *domain.Session) error
	Delete(ctx context.Context, id string) error
	// DeleteExpired removes sessions that expired at or before now and returns how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
