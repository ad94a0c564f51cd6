package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"online-status/internal/presence/domain"
)

// MemoryRepository is an in-process Repository. Used for tests and when no database is configured.
type MemoryRepository struct {
	mu   sync.RWMutex
	rows map[int64]domain.Record
}

// NewMemoryRepository returns an empty in-memory presence repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: make(map[int64]domain.Record)}
}

func (r *MemoryRepository) Upsert(ctx context.Context, rec *domain.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[rec.UserID] = *rec
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, userID int64) (*domain.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.rows[userID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (r *MemoryRepository) Delete(ctx context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, userID)
	return nil
}

func (r *MemoryRepository) ListIdle(ctx context.Context, before time.Time) ([]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []int64
	for id, rec := range r.rows {
		if rec.LastActivity.Before(before) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *MemoryRepository) DeleteWhere(ctx context.Context, before time.Time, userIDs []int64) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	deleted := make([]int64, 0, len(userIDs))
	for _, id := range userIDs {
		rec, ok := r.rows[id]
		if !ok || !rec.LastActivity.Before(before) {
			continue
		}
		delete(r.rows, id)
		deleted = append(deleted, id)
	}
	return deleted, nil
}

func (r *MemoryRepository) ListActiveSince(ctx context.Context, since time.Time) ([]*domain.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Record, 0, len(r.rows))
	for _, rec := range r.rows {
		if rec.LastActivity.Before(since) {
			continue
		}
		rec := rec
		out = append(out, &rec)
	}
	sortByRecency(out)
	return out, nil
}

func (r *MemoryRepository) CountActiveSince(ctx context.Context, since time.Time) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n int64
	for _, rec := range r.rows {
		if !rec.LastActivity.Before(since) {
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored records.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rows)
}

// sortByRecency orders records by last activity descending, ties broken by user id.
func sortByRecency(recs []*domain.Record) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].LastActivity.Equal(recs[j].LastActivity) {
			return recs[i].UserID < recs[j].UserID
		}
		return recs[i].LastActivity.After(recs[j].LastActivity)
	})
}
