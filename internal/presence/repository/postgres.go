package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"online-status/internal/presence/domain"
)

const (
	upsertRecordSQL = `INSERT INTO user_online_status (user_id, last_activity, ip_address, user_agent, page_url)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id) DO UPDATE SET
	last_activity = EXCLUDED.last_activity,
	ip_address = EXCLUDED.ip_address,
	user_agent = EXCLUDED.user_agent,
	page_url = EXCLUDED.page_url`
	getRecordSQL = `SELECT user_id, last_activity, ip_address, user_agent, page_url
FROM user_online_status WHERE user_id = $1`
	deleteRecordSQL = `DELETE FROM user_online_status WHERE user_id = $1`
	listIdleSQL     = `SELECT user_id FROM user_online_status WHERE last_activity < $1 ORDER BY user_id`
	deleteIdleSQL   = `DELETE FROM user_online_status
WHERE user_id = ANY($1) AND last_activity < $2
RETURNING user_id`
	listActiveSQL = `SELECT user_id, last_activity, ip_address, user_agent, page_url
FROM user_online_status WHERE last_activity >= $1
ORDER BY last_activity DESC, user_id`
	countActiveSQL = `SELECT COUNT(*) FROM user_online_status WHERE last_activity >= $1`
)

// PostgresRepository stores presence records in the user_online_status table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a presence repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Upsert uses INSERT .. ON CONFLICT so concurrent writers for one user never produce two rows.
func (r *PostgresRepository) Upsert(ctx context.Context, rec *domain.Record) error {
	_, err := r.db.ExecContext(ctx, upsertRecordSQL,
		rec.UserID, rec.LastActivity.UTC(), rec.IPAddress, rec.UserAgent, rec.PageURL)
	return err
}

// Get returns the record for userID, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) Get(ctx context.Context, userID int64) (*domain.Record, error) {
	var rec domain.Record
	err := r.db.QueryRowContext(ctx, getRecordSQL, userID).Scan(
		&rec.UserID, &rec.LastActivity, &rec.IPAddress, &rec.UserAgent, &rec.PageURL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rec.LastActivity = rec.LastActivity.UTC()
	return &rec, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx, deleteRecordSQL, userID)
	return err
}

func (r *PostgresRepository) ListIdle(ctx context.Context, before time.Time) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, listIdleSQL, before.UTC())
	if err != nil {
		return nil, err
	}
	return scanIDs(rows)
}

// DeleteWhere re-checks last_activity so a user who became active after ListIdle is kept.
func (r *PostgresRepository) DeleteWhere(ctx context.Context, before time.Time, userIDs []int64) ([]int64, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, deleteIdleSQL, userIDs, before.UTC())
	if err != nil {
		return nil, err
	}
	return scanIDs(rows)
}

func (r *PostgresRepository) ListActiveSince(ctx context.Context, since time.Time) ([]*domain.Record, error) {
	rows, err := r.db.QueryContext(ctx, listActiveSQL, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Record
	for rows.Next() {
		var rec domain.Record
		if err := rows.Scan(&rec.UserID, &rec.LastActivity, &rec.IPAddress, &rec.UserAgent, &rec.PageURL); err != nil {
			return nil, err
		}
		rec.LastActivity = rec.LastActivity.UTC()
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) CountActiveSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, countActiveSQL, since.UTC()).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func scanIDs(rows *sql.Rows) ([]int64, error) {
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
