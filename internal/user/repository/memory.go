package repository

import (
	"context"
	"sync"
	"time"

	"online-status/internal/user/domain"
)

// MemoryRepository keeps users in process memory. Used with the memory store driver and in tests.
type MemoryRepository struct {
	mu    sync.RWMutex
	users map[int64]domain.User
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{users: make(map[int64]domain.User)}
}

func cloneUser(u domain.User) *domain.User {
	u.Roles = append([]string(nil), u.Roles...)
	return &u
}

func (r *MemoryRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	return cloneUser(u), nil
}

func (r *MemoryRepository) GetByIDs(ctx context.Context, ids []int64) (map[int64]*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[int64]*domain.User, len(ids))
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			out[id] = cloneUser(u)
		}
	}
	return out, nil
}

func (r *MemoryRepository) Upsert(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	stored := *cloneUser(*u)
	if existing, ok := r.users[u.ID]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	r.users[u.ID] = stored
	return nil
}
