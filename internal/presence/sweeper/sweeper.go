// Package sweeper purges presence records that have been idle longer than the online timeout.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"online-status/internal/presence/cache"
	"online-status/internal/presence/domain"
	"online-status/internal/presence/repository"
	"online-status/internal/telemetry"
	telemetrydomain "online-status/internal/telemetry/domain"
)

// ErrPartialSweep is returned by Run when at least one batch failed. The remaining batches still ran.
var ErrPartialSweep = errors.New("partial sweep")

// Defaults for Options fields left zero.
const (
	DefaultBatchSize  = 100
	DefaultBatchPause = 100 * time.Millisecond
)

// Options configures a Sweeper. Zero values take the defaults.
type Options struct {
	OnlineTimeout time.Duration
	BatchSize     int
	BatchPause    time.Duration
	Now           func() time.Time
	Emitter       telemetry.EventEmitter
}

// Result summarizes one sweep.
type Result struct {
	Candidates    int
	Deleted       []int64
	Batches       int
	FailedBatches int
}

// Sweeper deletes idle records in bounded batches and invalidates their cache entries.
type Sweeper struct {
	repo  repository.Repository
	cache cache.Cache
	opts  Options
	sleep func(ctx context.Context, d time.Duration) error
}

// New returns a sweeper over repo and c.
func New(repo repository.Repository, c cache.Cache, opts Options) *Sweeper {
	if opts.OnlineTimeout <= 0 {
		opts.OnlineTimeout = 300 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.BatchPause < 0 {
		opts.BatchPause = 0
	} else if opts.BatchPause == 0 {
		opts.BatchPause = DefaultBatchPause
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Sweeper{repo: repo, cache: c, opts: opts, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run performs one sweep: every record with last activity before now - online timeout is deleted,
// one batch at a time, and the deleted users' guard and status entries are removed. A failed batch is
// logged and skipped; Run then returns the partial Result with an error wrapping ErrPartialSweep.
// Cancelling ctx stops between batches.
func (s *Sweeper) Run(ctx context.Context) (Result, error) {
	var res Result
	threshold := s.opts.Now().UTC().Add(-s.opts.OnlineTimeout)
	ids, err := s.repo.ListIdle(ctx, threshold)
	if err != nil {
		return res, fmt.Errorf("list idle records: %w: %w", domain.ErrStoreUnavailable, err)
	}
	res.Candidates = len(ids)

	var batchErrs []error
	for start := 0; start < len(ids); start += s.opts.BatchSize {
		if start > 0 {
			if err := s.sleep(ctx, s.opts.BatchPause); err != nil {
				return res, s.finish(res, append(batchErrs, err))
			}
		}
		end := min(start+s.opts.BatchSize, len(ids))
		res.Batches++
		deleted, err := s.repo.DeleteWhere(ctx, threshold, ids[start:end])
		if err != nil {
			res.FailedBatches++
			log.Printf("sweeper: delete batch %d (%d users): %v", res.Batches, end-start, err)
			batchErrs = append(batchErrs, fmt.Errorf("batch %d: %w: %w", res.Batches, domain.ErrStoreUnavailable, err))
			continue
		}
		res.Deleted = append(res.Deleted, deleted...)
		s.invalidate(ctx, deleted)
	}
	return res, s.finish(res, batchErrs)
}

func (s *Sweeper) invalidate(ctx context.Context, userIDs []int64) {
	for _, id := range userIDs {
		if err := s.cache.Delete(ctx, cache.UserKeys(id)...); err != nil {
			log.Printf("sweeper: invalidate cache for user %d: %v", id, err)
		}
	}
}

func (s *Sweeper) finish(res Result, errs []error) error {
	if len(res.Deleted) > 0 || res.FailedBatches > 0 {
		telemetry.EmitAsync(s.opts.Emitter, telemetrydomain.NewEvent(telemetrydomain.EventSweep, 0, map[string]int{
			"candidates":     res.Candidates,
			"deleted":        len(res.Deleted),
			"batches":        res.Batches,
			"failed_batches": res.FailedBatches,
		}, s.opts.Now()))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPartialSweep, errors.Join(errs...))
}

// Start runs Run every interval until ctx is done. Errors are logged.
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		log.Printf("sweeper: disabled (interval %v)", interval)
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := s.Run(ctx)
			if err != nil {
				log.Printf("sweeper: %v", err)
			}
			if len(res.Deleted) > 0 {
				log.Printf("sweeper: removed %d idle records in %d batches", len(res.Deleted), res.Batches)
			}
		}
	}
}
