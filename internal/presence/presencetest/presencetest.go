// Package presencetest provides a controllable clock and a fault-injecting repository for presence tests.
package presencetest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"online-status/internal/presence/domain"
	"online-status/internal/presence/repository"
)

// ErrInjected is returned by FaultyRepository when a fault is armed.
var ErrInjected = errors.New("injected store failure")

// Clock is a manually advanced clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock starting at a fixed UTC instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// FaultyRepository wraps a repository, counts calls and fails selected operations on demand.
type FaultyRepository struct {
	repository.Repository

	Upserts atomic.Int64
	Gets    atomic.Int64

	FailUpsert atomic.Bool
	FailGet    atomic.Bool
	FailList   atomic.Bool

	mu sync.Mutex
	// failDeleteBatch holds 1-based DeleteWhere call numbers that fail.
	failDeleteBatch map[int]bool
	deleteCalls     int
	// getGate, when set, blocks Get until closed.
	getGate chan struct{}
	// holdGet, when set, blocks Get after the read until released.
	holdGet *readHold
}

type readHold struct {
	read    chan struct{}
	release chan struct{}
}

// NewFaultyRepository wraps inner.
func NewFaultyRepository(inner repository.Repository) *FaultyRepository {
	return &FaultyRepository{Repository: inner, failDeleteBatch: make(map[int]bool)}
}

// FailDeleteCall makes the n-th DeleteWhere call (1-based) fail.
func (r *FaultyRepository) FailDeleteCall(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failDeleteBatch[n] = true
}

// DeleteCalls returns the number of DeleteWhere calls made.
func (r *FaultyRepository) DeleteCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deleteCalls
}

// GateGets makes Get block until the returned release function is called.
func (r *FaultyRepository) GateGets() (release func()) {
	gate := make(chan struct{})
	r.mu.Lock()
	r.getGate = gate
	r.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// HoldGetResults makes Get perform its read, signal on read, then block until release is called
// before returning the result it read.
func (r *FaultyRepository) HoldGetResults() (read <-chan struct{}, release func()) {
	h := &readHold{read: make(chan struct{}, 1), release: make(chan struct{})}
	r.mu.Lock()
	r.holdGet = h
	r.mu.Unlock()
	var once sync.Once
	return h.read, func() { once.Do(func() { close(h.release) }) }
}

func (r *FaultyRepository) Upsert(ctx context.Context, rec *domain.Record) error {
	if r.FailUpsert.Load() {
		return ErrInjected
	}
	r.Upserts.Add(1)
	return r.Repository.Upsert(ctx, rec)
}

func (r *FaultyRepository) Get(ctx context.Context, userID int64) (*domain.Record, error) {
	r.Gets.Add(1)
	r.mu.Lock()
	gate, hold := r.getGate, r.holdGet
	r.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.FailGet.Load() {
		return nil, ErrInjected
	}
	rec, err := r.Repository.Get(ctx, userID)
	if hold != nil {
		select {
		case hold.read <- struct{}{}:
		default:
		}
		<-hold.release
	}
	return rec, err
}

func (r *FaultyRepository) ListIdle(ctx context.Context, before time.Time) ([]int64, error) {
	if r.FailList.Load() {
		return nil, ErrInjected
	}
	return r.Repository.ListIdle(ctx, before)
}

func (r *FaultyRepository) DeleteWhere(ctx context.Context, before time.Time, userIDs []int64) ([]int64, error) {
	r.mu.Lock()
	r.deleteCalls++
	fail := r.failDeleteBatch[r.deleteCalls]
	r.mu.Unlock()
	if fail {
		return nil, ErrInjected
	}
	return r.Repository.DeleteWhere(ctx, before, userIDs)
}

func (r *FaultyRepository) ListActiveSince(ctx context.Context, since time.Time) ([]*domain.Record, error) {
	if r.FailList.Load() {
		return nil, ErrInjected
	}
	return r.Repository.ListActiveSince(ctx, since)
}

func (r *FaultyRepository) CountActiveSince(ctx context.Context, since time.Time) (int64, error) {
	if r.FailList.Load() {
		return 0, ErrInjected
	}
	return r.Repository.CountActiveSince(ctx, since)
}
