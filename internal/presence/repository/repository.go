// Package repository persists presence records (one row per user) and answers the recency queries
// used by the tracker and the expiry sweeper.
package repository

import (
	"context"
	"time"

	"online-status/internal/presence/domain"
)

// Repository defines persistence for presence records.
type Repository interface {
	// Upsert inserts the record or replaces the mutable fields of the existing row for rec.UserID.
	// Concurrent upserts for one user must not create duplicate rows; the last writer wins.
	Upsert(ctx context.Context, rec *domain.Record) error
	// Get returns the record for userID, or nil if not found.
	Get(ctx context.Context, userID int64) (*domain.Record, error)
	// Delete removes the record for userID. Deleting a missing record is not an error.
	Delete(ctx context.Context, userID int64) error
	// ListIdle returns the user ids whose last activity is strictly before the given time.
	ListIdle(ctx context.Context, before time.Time) ([]int64, error)
	// DeleteWhere deletes those of userIDs whose last activity is still before the given time and returns the ids
	// actually deleted. Callers pass bounded batches so each call is one short statement.
	DeleteWhere(ctx context.Context, before time.Time, userIDs []int64) ([]int64, error)
	// ListActiveSince returns records with last activity at or after since, most recent first.
	ListActiveSince(ctx context.Context, since time.Time) ([]*domain.Record, error)
	// CountActiveSince counts records with last activity at or after since.
	CountActiveSince(ctx context.Context, since time.Time) (int64, error)
}
