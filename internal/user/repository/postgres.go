package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"online-status/internal/user/domain"
)

const (
	userColumns = `id, display_name, email, roles, created_at, updated_at`
	getUserSQL  = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	getUsersSQL = `SELECT ` + userColumns + ` FROM users WHERE id = ANY($1)`
)

const (
	upsertUserSQL = `INSERT INTO users (id, display_name, email, roles, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)
ON CONFLICT (id) DO UPDATE SET
	display_name = EXCLUDED.display_name,
	email = EXCLUDED.email,
	roles = EXCLUDED.roles,
	updated_at = EXCLUDED.updated_at`
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a user repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(s rowScanner) (*domain.User, error) {
	var (
		u     domain.User
		roles string
	)
	if err := s.Scan(&u.ID, &u.DisplayName, &u.Email, &roles, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Roles = domain.DecodeRoles(roles)
	return &u, nil
}

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, getUserSQL, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}

// GetByIDs loads all requested users in one query.
func (r *PostgresRepository) GetByIDs(ctx context.Context, ids []int64) (map[int64]*domain.User, error) {
	out := make(map[int64]*domain.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.db.QueryContext(ctx, getUsersSQL, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out[u.ID] = u
	}
	return out, rows.Err()
}

// Upsert validates u and writes it. CreatedAt is kept for existing users.
func (r *PostgresRepository) Upsert(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, upsertUserSQL, u.ID, u.DisplayName, u.Email, domain.EncodeRoles(u.Roles), now)
	return err
}
