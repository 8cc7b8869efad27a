package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"outreach-tracker/backend/internal/session/domain"
)

// PostgresRepository stores sessions in the sessions table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Get returns the session for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*domain.Session, error) {
	var s domain.Session
	var userID sql.NullInt64
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, COALESCE(eid, ''), COALESCE(cas_user, ''), COALESCE(ip_address, ''),
			created_at, expires_at, last_seen_at
		FROM sessions WHERE id = $1`, id,
	).Scan(&s.ID, &userID, &s.EID, &s.CASUser, &s.IPAddress, &s.CreatedAt, &s.ExpiresAt, &s.LastSeenAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	s.UserID = userID.Int64
	s.CreatedAt, s.ExpiresAt, s.LastSeenAt = s.CreatedAt.UTC(), s.ExpiresAt.UTC(), s.LastSeenAt.UTC()
	return &s, nil
}

// Save upserts the session row.
func (r *PostgresRepository) Save(ctx context.Context, s *domain.Session) error {
	userID := sql.NullInt64{Int64: s.UserID, Valid: s.UserID != 0}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, eid, cas_user, ip_address, created_at, expires_at, last_seen_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			eid = EXCLUDED.eid,
			cas_user = EXCLUDED.cas_user,
			ip_address = EXCLUDED.ip_address,
			expires_at = EXCLUDED.expires_at,
			last_seen_at = EXCLUDED.last_seen_at`,
		s.ID, userID, s.EID, s.CASUser, s.IPAddress, s.CreatedAt, s.ExpiresAt, s.LastSeenAt,
	)
	return err
}

// Delete removes the session row. Deleting a missing session is not an error.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

// DeleteExpired removes sessions with expires_at <= now.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
