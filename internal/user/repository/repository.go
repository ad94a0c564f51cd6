package repository

import (
	"context"

	"online-status/internal/user/domain"
)

// Repository defines persistence for users.
type Repository interface {
	// GetByID returns the user, or nil if not found.
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	// GetByIDs returns the users found among ids keyed by id. Missing ids are absent from the map.
	GetByIDs(ctx context.Context, ids []int64) (map[int64]*domain.User, error)
	// Upsert creates the user or replaces its display name, email and roles.
	Upsert(ctx context.Context, u *domain.User) error
}
