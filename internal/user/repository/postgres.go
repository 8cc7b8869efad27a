package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"outreach-tracker/backend/internal/audit"
	"outreach-tracker/backend/internal/user/domain"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"

	userColumns = `id, eid, COALESCE(name, ''), COALESCE(refresh_token, ''),
		created_at, updated_at, COALESCE(created_by, ''), COALESCE(updated_by, '')`
)

type scanner interface {
	Scan(dest ...any) error
}

// PostgresRepository stores users in the users, roles and user_roles tables.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a user repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the user for id with roles, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByEID returns the user with the given eid, or nil if not found.
func (r *PostgresRepository) GetByEID(ctx context.Context, eid string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE eid = $1`, eid)
}

// GetByRefreshToken returns the user currently holding value, or nil.
func (r *PostgresRepository) GetByRefreshToken(ctx context.Context, value string) (*domain.User, error) {
	if value == "" {
		return nil, nil
	}
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE refresh_token = $1`, value)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	roles, err := r.rolesFor(ctx, []int64{u.ID})
	if err != nil {
		return nil, err
	}
	u.Roles = roles[u.ID]
	return u, nil
}

// List returns all users ordered by id, each with its roles.
func (r *PostgresRepository) List(ctx context.Context) ([]*domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*domain.User
	var ids []int64
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
		ids = append(ids, u.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return users, nil
	}
	roles, err := r.rolesFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		u.Roles = roles[u.ID]
	}
	return users, nil
}

// Create inserts the user and its roles in one transaction. The actor in ctx is recorded as created_by and
// updated_by.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User, roleIDs []int64) error {
	actor := audit.ActorFromContext(ctx)
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO users (eid, name, created_by, updated_by)
		VALUES ($1, NULLIF($2, ''), $3, $3)
		RETURNING id, created_at, updated_at`,
		u.EID, u.Name, actor,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		u.ID = 0
		if pgCode(err) == pgUniqueViolation {
			return ErrDuplicateEID
		}
		return err
	}
	if err := insertRoles(ctx, tx, u.ID, roleIDs); err != nil {
		u.ID = 0
		return err
	}
	if err := tx.Commit(); err != nil {
		u.ID = 0
		return err
	}
	u.CreatedBy, u.UpdatedBy = actor, actor
	return nil
}

// Update sets the name and replaces the role set in one transaction.
func (r *PostgresRepository) Update(ctx context.Context, id int64, name string, roleIDs []int64) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE users SET name = NULLIF($2, ''), updated_at = now(), updated_by = $3
		WHERE id = $1`,
		id, name, audit.ActorFromContext(ctx),
	)
	if err != nil {
		return false, err
	}
	if ok, err := affected(res); err != nil || !ok {
		return false, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = $1`, id); err != nil {
		return false, err
	}
	if err := insertRoles(ctx, tx, id, roleIDs); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// UpdateName sets the display name.
func (r *PostgresRepository) UpdateName(ctx context.Context, id int64, name string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET name = NULLIF($2, ''), updated_at = now(), updated_by = $3
		WHERE id = $1`,
		id, name, audit.ActorFromContext(ctx),
	)
	if err != nil {
		return false, err
	}
	return affected(res)
}

func insertRoles(ctx context.Context, tx *sql.Tx, userID int64, roleIDs []int64) error {
	for _, roleID := range roleIDs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, userID, roleID)
		if err != nil {
			if pgCode(err) == pgForeignKeyViolation {
				return fmt.Errorf("%w: %d", ErrUnknownRole, roleID)
			}
			return err
		}
	}
	return nil
}

// InitRefreshToken stores value unless a refresh value is already present; the row lock taken by
// UPDATE makes concurrent callers agree on a single value.
func (r *PostgresRepository) InitRefreshToken(ctx context.Context, userID int64, value string) (string, error) {
	var stored string
	err := r.db.QueryRowContext(ctx, `
		UPDATE users SET
			updated_at = CASE WHEN refresh_token IS NULL THEN now() ELSE updated_at END,
			refresh_token = COALESCE(refresh_token, $2)
		WHERE id = $1
		RETURNING refresh_token`,
		userID, value,
	).Scan(&stored)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return stored, nil
}

// SetRefreshToken overwrites or, for an empty value, clears the stored refresh value.
func (r *PostgresRepository) SetRefreshToken(ctx context.Context, userID int64, value string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET refresh_token = NULLIF($2, ''), updated_at = now(), updated_by = $3
		WHERE id = $1`,
		userID, value, audit.ActorFromContext(ctx),
	)
	return err
}

// Delete removes the user; user_roles and sessions rows cascade.
func (r *PostgresRepository) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// ListRoles returns all roles ordered by id.
func (r *PostgresRepository) ListRoles(ctx context.Context) ([]domain.Role, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM roles ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []domain.Role
	for rows.Next() {
		var role domain.Role
		if err := rows.Scan(&role.ID, &role.Name); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (r *PostgresRepository) rolesFor(ctx context.Context, userIDs []int64) (map[int64][]domain.Role, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ur.user_id, r.id, r.name
		FROM user_roles ur JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = ANY($1)
		ORDER BY r.id`, userIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64][]domain.Role, len(userIDs))
	for rows.Next() {
		var userID int64
		var role domain.Role
		if err := rows.Scan(&userID, &role.ID, &role.Name); err != nil {
			return nil, err
		}
		out[userID] = append(out[userID], role)
	}
	return out, rows.Err()
}

func scanUser(s scanner) (*domain.User, error) {
	var u domain.User
	var created, updated time.Time
	if err := s.Scan(&u.ID, &u.EID, &u.Name, &u.RefreshToken, &created, &updated, &u.CreatedBy, &u.UpdatedBy); err != nil {
		return nil, err
	}
	u.CreatedAt, u.UpdatedAt = created.UTC(), updated.UTC()
	return &u, nil
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
