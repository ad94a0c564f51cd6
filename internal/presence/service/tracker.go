// Package service implements presence tracking: heartbeat recording with write coalescing,
// cached online verdicts, online-user queries and the login/logout transitions.
package service

import (
	"context"
	"log"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"online-status/internal/presence/cache"
	"online-status/internal/presence/domain"
	"online-status/internal/presence/repository"
	"online-status/internal/security"
	"online-status/internal/telemetry"
	telemetrydomain "online-status/internal/telemetry/domain"
)

// Defaults for Options fields left zero.
const (
	DefaultOnlineTimeout  = 300 * time.Second
	DefaultDebounceWindow = 30 * time.Second
	DefaultStatusCacheTTL = 30 * time.Second
)

const (
	meterName  = "online-status.presence"
	guardValue = "1"

	// sharedReadTimeout bounds the store read behind concurrent IsOnline misses.
	sharedReadTimeout = 10 * time.Second
)

// IdentityResolver looks up display identities for users. A nil identity with a nil error means unknown.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, userID int64) (*domain.Identity, error)
}

// BatchIdentityResolver is implemented by resolvers that can look up many users at once.
// GetOnlineUsers uses it when available.
type BatchIdentityResolver interface {
	ResolveIdentities(ctx context.Context, userIDs []int64) (map[int64]*domain.Identity, error)
}

// TokenVerifier validates heartbeat identity tokens.
type TokenVerifier interface {
	ValidateAccess(token string) (*security.Principal, error)
}

// Options configures a Tracker. Zero durations take the package defaults.
type Options struct {
	OnlineTimeout  time.Duration
	DebounceWindow time.Duration
	StatusCacheTTL time.Duration
	// Now is the clock; defaults to time.Now in UTC.
	Now func() time.Time
	// Meter records heartbeat and status lookup counters; defaults to the global meter.
	Meter metric.Meter
	// Emitter receives login/logout events; may be nil.
	Emitter telemetry.EventEmitter
}

func (o Options) withDefaults() Options {
	if o.OnlineTimeout <= 0 {
		o.OnlineTimeout = DefaultOnlineTimeout
	}
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = DefaultDebounceWindow
	}
	if o.StatusCacheTTL <= 0 {
		o.StatusCacheTTL = DefaultStatusCacheTTL
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	if o.Meter == nil {
		o.Meter = otel.Meter(meterName)
	}
	return o
}

// Outcome is what RecordHeartbeat did with a heartbeat.
type Outcome int

const (
	// OutcomeWritten means the record was upserted.
	OutcomeWritten Outcome = iota
	// OutcomeCoalesced means a write already happened within the debounce window.
	OutcomeCoalesced
	// OutcomeFailed means the store write failed; the next heartbeat retries.
	OutcomeFailed
	// OutcomeRejected means the user id was not valid.
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeWritten:
		return "written"
	case OutcomeCoalesced:
		return "coalesced"
	case OutcomeFailed:
		return "failed"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Tracker is the process-wide presence tracker. It is safe for concurrent use.
type Tracker struct {
	repo       repository.Repository
	cache      cache.Cache
	identities IdentityResolver
	tokens     TokenVerifier
	opts       Options
	group      singleflight.Group

	heartbeats    metric.Int64Counter
	statusLookups metric.Int64Counter
}

// NewTracker returns a tracker over repo and c. identities and tokens may be nil: without identities every
// online user renders as a guest; without tokens every signal is treated as anonymous.
func NewTracker(repo repository.Repository, c cache.Cache, identities IdentityResolver, tokens TokenVerifier, opts Options) *Tracker {
	opts = opts.withDefaults()
	t := &Tracker{
		repo:       repo,
		cache:      c,
		identities: identities,
		tokens:     tokens,
		opts:       opts,
	}
	var err error
	if t.heartbeats, err = opts.Meter.Int64Counter("presence.heartbeats",
		metric.WithDescription("Heartbeats received, by outcome")); err != nil {
		log.Printf("presence: heartbeat counter: %v", err)
	}
	if t.statusLookups, err = opts.Meter.Int64Counter("presence.status_lookups",
		metric.WithDescription("IsOnline lookups, by status cache result")); err != nil {
		log.Printf("presence: status lookup counter: %v", err)
	}
	return t
}

// Options returns the effective options.
func (t *Tracker) Options() Options {
	return t.opts
}

func (t *Tracker) now() time.Time {
	return t.opts.Now().UTC()
}

func (t *Tracker) count(ctx context.Context, c metric.Int64Counter, key, value string) {
	if c != nil {
		c.Add(ctx, 1, metric.WithAttributes(attribute.String(key, value)))
	}
}

// RecordHeartbeat records activity for userID. Unless force is set, at most one store write happens per
// debounce window: the guard entry is claimed with an atomic set-if-absent and later heartbeats inside the
// window are dropped. Store failures are logged, release the guard so the next heartbeat retries, and
// are never returned.
func (t *Tracker) RecordHeartbeat(ctx context.Context, userID int64, meta domain.ClientMetadata, force bool) Outcome {
	outcome := t.recordHeartbeat(ctx, userID, meta, force)
	t.count(ctx, t.heartbeats, "outcome", outcome.String())
	return outcome
}

func (t *Tracker) recordHeartbeat(ctx context.Context, userID int64, meta domain.ClientMetadata, force bool) Outcome {
	if userID <= 0 {
		return OutcomeRejected
	}
	guard := cache.GuardKey(userID)
	if force {
		if err := t.cache.Set(ctx, guard, guardValue, t.opts.DebounceWindow); err != nil {
			log.Printf("presence: set debounce guard for user %d: %v", userID, err)
		}
	} else {
		claimed, err := t.cache.SetNX(ctx, guard, guardValue, t.opts.DebounceWindow)
		if err != nil {
			// Without a working guard every heartbeat writes; the store upsert keeps that correct.
			log.Printf("presence: claim debounce guard for user %d: %v", userID, err)
		} else if !claimed {
			return OutcomeCoalesced
		}
	}

	meta = meta.Sanitize()
	rec := &domain.Record{
		UserID:       userID,
		LastActivity: t.now(),
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
		PageURL:      meta.PageURL,
	}
	if err := t.repo.Upsert(ctx, rec); err != nil {
		log.Printf("presence: record heartbeat for user %d: %v", userID, err)
		if err := t.cache.Delete(ctx, guard); err != nil {
			log.Printf("presence: release debounce guard for user %d: %v", userID, err)
		}
		return OutcomeFailed
	}
	if err := t.cache.Set(ctx, cache.StatusKey(userID), domain.StatusOnline, t.onlineTTL(rec, rec.LastActivity)); err != nil {
		log.Printf("presence: cache status for user %d: %v", userID, err)
	}
	return OutcomeWritten
}

// onlineTTL is how long an online verdict for rec may be cached at now: the status cache TTL, capped so it
// never outlives the moment the user times out.
func (t *Tracker) onlineTTL(rec *domain.Record, now time.Time) time.Duration {
	ttl := t.opts.StatusCacheTTL
	if remaining := rec.LastActivity.Add(t.opts.OnlineTimeout).Sub(now) + time.Nanosecond; remaining < ttl {
		ttl = remaining
	}
	return ttl
}

// IsOnline reports whether userID had activity within the online timeout. Verdicts are cached for at most
// the status cache TTL, and an online verdict never outlives the moment the user would time out.
// Concurrent misses for the same user share one store read. A verdict computed on a miss is only cached
// when no snapshot exists, so it never replaces one written by a heartbeat, login or logout in the
// meantime. Store failures yield false and are not cached.
func (t *Tracker) IsOnline(ctx context.Context, userID int64) bool {
	if userID <= 0 {
		return false
	}
	key := cache.StatusKey(userID)
	v, ok, err := t.cache.Get(ctx, key)
	if err != nil {
		log.Printf("presence: read status snapshot for user %d: %v", userID, err)
	} else if ok {
		t.count(ctx, t.statusLookups, "result", "hit")
		return v == domain.StatusOnline
	}
	t.count(ctx, t.statusLookups, "result", "miss")

	res, err, _ := t.group.Do(strconv.FormatInt(userID, 10), func() (interface{}, error) {
		// The read is shared by every waiting caller, so it must not end with the first caller's context.
		readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedReadTimeout)
		defer cancel()
		rec, err := t.repo.Get(readCtx, userID)
		if err != nil {
			return false, err
		}
		now := t.now()
		online := rec.IsOnline(now, t.opts.OnlineTimeout)
		status, ttl := domain.StatusOffline, t.opts.StatusCacheTTL
		if online {
			status, ttl = domain.StatusOnline, t.onlineTTL(rec, now)
		}
		if _, err := t.cache.SetNX(readCtx, key, status, ttl); err != nil {
			log.Printf("presence: cache status for user %d: %v", userID, err)
		}
		return online, nil
	})
	if err != nil {
		log.Printf("presence: is online for user %d: %v", userID, err)
		return false
	}
	return res.(bool)
}

// GetLastSeen returns the last activity time of userID. ok is false when there is no record or the store failed.
func (t *Tracker) GetLastSeen(ctx context.Context, userID int64) (lastSeen time.Time, ok bool) {
	if userID <= 0 {
		return time.Time{}, false
	}
	rec, err := t.repo.Get(ctx, userID)
	if err != nil {
		log.Printf("presence: last seen for user %d: %v", userID, err)
		return time.Time{}, false
	}
	if rec == nil {
		return time.Time{}, false
	}
	return rec.LastActivity, true
}

// GetOnlineUsers returns users active within the online timeout, most recent first, joined with their
// identities. Users the identity provider does not know (or cannot resolve) are returned as guests.
// A store failure yields an empty result.
func (t *Tracker) GetOnlineUsers(ctx context.Context) []domain.OnlineUser {
	recs, err := t.repo.ListActiveSince(ctx, t.now().Add(-t.opts.OnlineTimeout))
	if err != nil {
		log.Printf("presence: list online users: %v", err)
		return nil
	}
	identities := t.resolveIdentities(ctx, recs)
	out := make([]domain.OnlineUser, 0, len(recs))
	for _, rec := range recs {
		u := domain.OnlineUser{Record: *rec}
		if id := identities[rec.UserID]; id != nil {
			u.Identity = *id
		} else {
			u.Identity = domain.GuestIdentity()
			u.Guest = true
		}
		out = append(out, u)
	}
	return out
}

func (t *Tracker) resolveIdentities(ctx context.Context, recs []*domain.Record) map[int64]*domain.Identity {
	out := make(map[int64]*domain.Identity, len(recs))
	if t.identities == nil || len(recs) == 0 {
		return out
	}
	if batch, ok := t.identities.(BatchIdentityResolver); ok {
		ids := make([]int64, len(recs))
		for i, rec := range recs {
			ids[i] = rec.UserID
		}
		resolved, err := batch.ResolveIdentities(ctx, ids)
		if err != nil {
			log.Printf("presence: resolve identities: %v", err)
			return out
		}
		return resolved
	}
	for _, rec := range recs {
		id, err := t.identities.ResolveIdentity(ctx, rec.UserID)
		if err != nil {
			log.Printf("presence: resolve identity for user %d: %v", rec.UserID, err)
			continue
		}
		if id != nil {
			out[rec.UserID] = id
		}
	}
	return out
}

// GetOnlineCount returns the number of users active within the online timeout, or 0 when the store fails.
func (t *Tracker) GetOnlineCount(ctx context.Context) int64 {
	n, err := t.repo.CountActiveSince(ctx, t.now().Add(-t.opts.OnlineTimeout))
	if err != nil {
		log.Printf("presence: count online users: %v", err)
		return 0
	}
	return n
}

// OnLogin records a forced heartbeat so the user is online immediately after authentication.
func (t *Tracker) OnLogin(ctx context.Context, userID int64, meta domain.ClientMetadata) {
	if t.RecordHeartbeat(ctx, userID, meta, true) == OutcomeRejected {
		return
	}
	meta = meta.Sanitize()
	telemetry.EmitAsync(t.opts.Emitter, telemetrydomain.NewEvent(telemetrydomain.EventLogin, userID, map[string]string{
		"ip_address": meta.IPAddress,
		"page_url":   meta.PageURL,
	}, t.now()))
}

// OnLogout removes the user's record and debounce guard and caches an offline verdict, so the user is
// offline immediately and an IsOnline read still in flight cannot cache the old online verdict.
func (t *Tracker) OnLogout(ctx context.Context, userID int64) {
	if userID <= 0 {
		return
	}
	if err := t.repo.Delete(ctx, userID); err != nil {
		log.Printf("presence: delete record for user %d: %v", userID, err)
	}
	if err := t.cache.Delete(ctx, cache.GuardKey(userID)); err != nil {
		log.Printf("presence: release debounce guard for user %d: %v", userID, err)
	}
	if err := t.cache.Set(ctx, cache.StatusKey(userID), domain.StatusOffline, t.opts.StatusCacheTTL); err != nil {
		log.Printf("presence: cache offline status for user %d: %v", userID, err)
		if err := t.cache.Delete(ctx, cache.StatusKey(userID)); err != nil {
			log.Printf("presence: drop status snapshot for user %d: %v", userID, err)
		}
	}
	telemetry.EmitAsync(t.opts.Emitter, telemetrydomain.NewEvent(telemetrydomain.EventLogout, userID, nil, t.now()))
}

// AcceptSignal handles a heartbeat signal from a client. Signals without a valid identity token are
// acknowledged as offline and never touch the store. Valid signals are recorded (subject to debounce)
// and acknowledged as online.
func (t *Tracker) AcceptSignal(ctx context.Context, sig domain.Signal) domain.Ack {
	userID, err := t.identify(sig.Token)
	if err != nil {
		return domain.Ack{Status: domain.StatusOffline}
	}
	t.RecordHeartbeat(ctx, userID, sig.Meta, false)
	return domain.Ack{Status: domain.StatusOnline}
}

func (t *Tracker) identify(token string) (int64, error) {
	if t.tokens == nil || token == "" {
		return 0, domain.ErrInvalidIdentity
	}
	p, err := t.tokens.ValidateAccess(token)
	if err != nil || p == nil || p.UserID <= 0 {
		return 0, domain.ErrInvalidIdentity
	}
	return p.UserID, nil
}
