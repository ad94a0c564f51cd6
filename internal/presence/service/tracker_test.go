package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"online-status/internal/presence/cache"
	"online-status/internal/presence/domain"
	"online-status/internal/presence/presencetest"
	"online-status/internal/presence/repository"
	"online-status/internal/security"
	telemetrydomain "online-status/internal/telemetry/domain"
)

type fixture struct {
	clock   *presencetest.Clock
	repo    *presencetest.FaultyRepository
	mem     *repository.MemoryRepository
	cache   *cache.MemoryCache
	tracker *Tracker
}

func newFixture(t *testing.T, identities IdentityResolver, tokens TokenVerifier, opts Options) *fixture {
	t.Helper()
	clock := presencetest.NewClock()
	mem := repository.NewMemoryRepository()
	repo := presencetest.NewFaultyRepository(mem)
	c := cache.NewMemoryCacheWithClock(0, clock.Now)
	opts.Now = clock.Now
	return &fixture{
		clock:   clock,
		repo:    repo,
		mem:     mem,
		cache:   c,
		tracker: NewTracker(repo, c, identities, tokens, opts),
	}
}

var meta = domain.ClientMetadata{IPAddress: "1.2.3.4", UserAgent: "Mozilla/5.0", PageURL: "/wiki/Main_Page"}

type mapIdentities map[int64]*domain.Identity

func (m mapIdentities) ResolveIdentity(ctx context.Context, userID int64) (*domain.Identity, error) {
	return m[userID], nil
}

type batchIdentities struct {
	m     map[int64]*domain.Identity
	err   error
	calls int
}

func (b *batchIdentities) ResolveIdentity(ctx context.Context, userID int64) (*domain.Identity, error) {
	panic("batch resolver should be used")
}

func (b *batchIdentities) ResolveIdentities(ctx context.Context, userIDs []int64) (map[int64]*domain.Identity, error) {
	b.calls++
	if b.err != nil {
		return nil, b.err
	}
	out := make(map[int64]*domain.Identity)
	for _, id := range userIDs {
		if v, ok := b.m[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

type failingIdentities struct{}

func (failingIdentities) ResolveIdentity(context.Context, int64) (*domain.Identity, error) {
	return nil, errors.New("directory down")
}

type mapTokens map[string]int64

func (m mapTokens) ValidateAccess(token string) (*security.Principal, error) {
	id, ok := m[token]
	if !ok {
		return nil, security.ErrInvalidToken
	}
	return &security.Principal{UserID: id}, nil
}

type captureEmitter struct {
	ch chan *telemetrydomain.Event
}

func (c *captureEmitter) Emit(ctx context.Context, ev *telemetrydomain.Event) error {
	c.ch <- ev
	return nil
}

func (c *captureEmitter) next(t *testing.T) *telemetrydomain.Event {
	t.Helper()
	select {
	case ev := <-c.ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no telemetry event emitted")
		return nil
	}
}

func TestRecordHeartbeat_CoalescesWithinDebounceWindow(t *testing.T) {
	f := newFixture(t, nil, nil, Options{})
	ctx := context.Background()

	if got := f.tracker.RecordHeartbeat(ctx, 7, meta, false); got != OutcomeWritten {
		t.Fatalf("first heartbeat = %v, want written", got)
	}
	for i := 0; i < 9; i++ {
		f.clock.Advance(3 * time.Second)
		if got := f.tracker.RecordHeartbeat(ctx, 7, meta, false); got != OutcomeCoalesced {
			t.Fatalf("heartbeat %d inside window = %v, want coalesced", i, got)
		}
	}
	if n := f.repo.Upserts.Load(); n != 1 {
		t.Fatalf("store writes inside window = %d, want 1", n)
	}
	f.clock.Advance(3 * time.Second) // t=30s, guard expired
	if got := f.tracker.RecordHeartbeat(ctx, 7, meta, false); got != OutcomeWritten {
		t.Fatalf("heartbeat after window = %v, want written", got)
	}
	if n := f.repo.Upserts.Load(); n != 2 {
		t.Errorf("store writes = %d, want 2", n)
	}
}

func TestRecordHeartbeat_StoresSanitizedMetadata(t *testing.T) {
	f := newFixture(t, nil, nil, Options{})
	ctx := context.Background()
	f.tracker.RecordHeartbeat(ctx, 3, domain.ClientMetadata{UserAgent: " curl\n", PageURL: "/p"}, false)

	rec, _ := f.mem.Get(ctx, 3)
	if rec == nil {
		t.Fatal("record not written")
	}
	if rec.IPAddress != domain.UnknownIP || rec.UserAgent != "curl" || rec.PageURL != "/p" {
		t.Errorf("record = %+v", rec)
	}
	if !rec.LastActivity.Equal(f.clock.Now()) {
		t.Errorf("LastActivity = %v, want %v", rec.LastActivity, f.clock.Now())
	}
}

func TestRecordHeartbeat_RejectsInvalidUser(t *testing.T) {
	f := newFixture(t, nil, nil, Options{})
	for _, id := range []int64{0, -1} {
		if got := f.tracker.RecordHeartbeat(context.Background(), id, meta, true); got != OutcomeRejected {
			t.Errorf("RecordHeartbeat(%d) = %v, want rejected", id, got)
		}
	}
	if f.mem.Len() != 0 || f.cache.Len() != 0 {
		t.Error("rejected heartbeats must not touch store or cache")
	}
}

func TestRecordHeartbeat_ForceBypassesDebounce(t *testing.T) {
	f := newFixture(t, nil, nil, Options{})
	ctx := context.Background()
	f.tracker.RecordHeartbeat(ctx, 7, meta, false)
	f.clock.Advance(time.Second)
	if got := f.tracker.RecordHeartbeat(ctx, 7, meta, true); got != OutcomeWritten {
		t.Fatalf("forced heartbeat = %v, want written", got)
	}
	if n := f.repo.Upserts.Load(); n != 2 {
		t.Errorf("store writes = %d, want 2", n)
	}
	// The forced write re-arms the guard.
	if got := f.tracker.RecordHeartbeat(ctx, 7, meta, false); got != OutcomeCoalesced {
		t.Errorf("heartbeat after forced write = %v, want coalesced", got)
	}
}

func TestRecordHeartbeat_StoreFailureRetriesOnNextHeartbeat(t *testing.T) {
	f := newFixture(t, nil, nil, Options{})
	ctx := context.Background()

	f.repo.FailUpsert.Store(true)
	if got := f.tracker.RecordHeartbeat(ctx, 5, meta, false); got != OutcomeFailed {
		t.Fatalf("heartbeat with failing store = %v, want failed", got)
	}
	if _, ok, _ := f.cache.Get(ctx, cache.GuardKey(5)); ok {
		t.Fatal("guard must be released after a failed write")
	}

	f.repo.FailUpsert.Store(false)
	f.clock.Advance(time.Second)
	if got := f.tracker.RecordHeartbeat(ctx, 5, meta, false); got != OutcomeWritten {
		t.Fatalf("retry heartbeat = %v, want written", got)
	}
	if !f.tracker.IsOnline(ctx, 5) {
		t.Error("user should be online after the retry")
	}
}

func TestIsOnline_NoRecord(t *testing.T) {
	f := newFixture(t, nil, nil, Options{})
	if f.tracker.IsOnline(context.Background(), 42) {
		t.Error("user without a record must be offline")
	}
	if f.tracker.IsOnline(context.Background(), 0) {
		t.Error("invalid user must be offline")
	}
}

func TestIsOnline_TimeoutScenario(t *testing.T) {
	f := newFixture(t, nil, nil, Options{})
	ctx := context.Background()

	f.tracker.RecordHeartbeat(ctx, 7, domain.ClientMetadata{IPAddress: "1.2.3.4"}, false)
	if !f.tracker.IsOnline(ctx, 7) {
		t.Fatal("IsOnline(7) at t=0 should be true")
	}
	f.clock.Advance(301 * time.Second)
	if f.tracker.IsOnline(ctx, 7) {
		t.Fatal("IsOnline(7) at t=301s should be false")
	}
}

func TestIsOnline_BoundaryIsInclusive(t *testing.T) {
	f := newFixture(t, nil, nil, Options{})
	ctx := context.Background()
	f.tracker.RecordHeartbeat(ctx, 7, meta, false)
	f.clock.Advance(300 * time.Second)
	if !f.tracker.IsOnline(ctx, 7) {
		t.Error("now - last_activity == timeout should still be online")
	}
}

func TestIsOnline_OnlineSnapshotNeverOutlivesTimeout(t *testing.T) {
	f := newFixture(t, nil, nil, Options{})
	ctx := context.Background()
	f.tracker.RecordHeartbeat(ctx, 7, meta, false)

	f.clock.Advance(290 * time.Second)
	if !f.tracker.IsOnline(ctx, 7) {
		t.Fatal("should be online at t=290s")
	}
	f.clock.Advance(11 * time.Second) // snapshot TTL would allow 30s, timeout passed at 300s
	if f.tracker.IsOnline(ctx, 7) {
		t.Error("cached online verdict must not be served after the user timed out")
	}
}

func TestIsOnline_UsesStatusSnapshot(t *testing.T) {
	f := newFixture(t, nil, nil, Options{})
	ctx := context.Background()
	f.tracker.RecordHeartbeat(ctx, 7, meta, false)

	for i := 0; i < 5; i++ {
		if !f.tracker.IsOnline(ctx, 7) {
			t.Fatal("should be online")
		}
	}
	if n := f.repo.Gets.Load(); n != 0 {
		t.Errorf("store reads = %d, want 0 (served from the snapshot the heartbeat wrote)", n)
	}
	f.clock.Advance(31 * time.Second)
	for i := 0; i < 5; i++ {
		if !f.tracker.IsOnline(ctx, 7) {
			t.Fatal("should be online at t=31s")
		}
	}
	if n := f.repo.Gets.Load(); n != 1 {
		t.Errorf("store reads after snapshot TTL = %d, want 1", n)
	}
}

func TestIsOnline_OfflineSnapshotReplacedByHeartbeat(t *testing.T) {
	f := newFixture(t, nil, nil, Options{})
	ctx := context.Background()
	if f.tracker.IsOnline(ctx, 8) {
		t.Fatal("should be offline before any heartbeat")
	}
	f.tracker.RecordHeartbeat(ctx, 8, meta, false)
	if v, ok, _ := f.cache.Get(ctx, cache.StatusKey(8)); !ok || v != domain.StatusOnline {
		t.Errorf("status snapshot = %q, %v; want online", v, ok)
	}
	if !f.tracker.IsOnline(ctx, 8) {
		t.Error("a written heartbeat must replace the cached offline verdict")
	}
}

func TestIsOnline_StoreErrorDegradesToOfflineWithoutCaching(t *testing.T) {
	f := newFixture(t, nil, nil, Options{})
	ctx := context.Background()
	f.tracker.RecordHeartbeat(ctx, 7, meta, false)
	f.clock.Advance(31 * time.Second) // past the snapshot written by the heartbeat

	f.repo.FailGet.Store(true)
	if f.tracker.IsOnline(ctx, 7) {
		t.Fatal("store failure should degrade to offline")
	}
	if _, ok, _ := f.cache.Get(ctx, cache.StatusKey(7)); ok {
		t.Fatal("a failed lookup must not be cached")
	}
	f.repo.FailGet.Store(false)
	if !f.tracker.IsOnline(ctx, 7) {
		t.Error("should be online once the store recovers")
	}
}

func TestIsOnline_ConcurrentMissesShareOneRead(t *testing.T) {
	f := newFixture(t, nil, nil, Options{})
	ctx := context.Background()
	f.tracker.RecordHeartbeat(ctx, 7, meta, false)
	f.clock.Advance(31 * time.Second)

	release := f.repo.GateGets()
	var wg sync.WaitGroup
	results := make(chan bool, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- f.tracker.IsOnline(ctx, 7)
		}()
	}
	deadline := time.Now().Add(2 * time.Second)
	for f.repo.Gets.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	release()
	wg.Wait()
	close(results)

	for online := range results {
		if !online {
			t.Error("every caller should see online")
		}
	}
	if n := f.repo.Gets.Load(); n != 1 {
		t.Errorf("store reads = %d, want 1", n)
	}
}

func TestIsOnline_SharedReadSurvivesFirstCallerCancel(t *testing.T) {
	f := newFixture(t, nil, nil, Options{})
	ctx := context.Background()
	f.tracker.RecordHeartbeat(ctx, 7, meta, false)
	f.clock.Advance(31 * time.Second)

	release := f.repo.GateGets()
	firstCtx, cancel := context.WithCancel(ctx)
	first := make(chan bool, 1)
	go func() { first <- f.tracker.IsOnline(firstCtx, 7) }()
	deadline := time.Now().Add(2 * time.Second)
	for f.repo.Gets.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	second := make(chan bool, 1)
	go func() { second <- f.tracker.IsOnline(ctx, 7) }()
	time.Sleep(50 * time.Millisecond)

	cancel()
	release()
	if !<-second {
		t.Error("a caller with a live context must not inherit another caller's cancellation")
	}
	<-first
	if n := f.repo.Gets.Load(); n != 1 {
		t.Errorf("store reads = %d, want 1", n)
	}
}

// waitRead waits for a held repository read to complete.
func waitRead(t *testing.T, read <-chan struct{}) {
	t.Helper()
	select {
	case <-read:
	case <-time.After(2 * time.Second):
		t.Fatal("store read did not happen")
	}
}

func TestIsOnline_InFlightReadCannotUndoLogout(t *testing.T) {
	f := newFixture(t, nil, nil, Options{})
	ctx := context.Background()
	f.tracker.RecordHeartbeat(ctx, 7, meta, false)
	f.clock.Advance(31 * time.Second)

	read, release := f.repo.HoldGetResults()
	done := make(chan bool, 1)
	go func() { done <- f.tracker.IsOnline(ctx, 7) }()
	waitRead(t, read) // the record was read while the user was still online

	f.tracker.OnLogout(ctx, 7)
	release()
	<-done

	f.clock.Advance(10 * time.Second)
	if _, ok := f.tracker.GetLastSeen(ctx, 7); ok {
		t.Fatal("record must be gone after logout")
	}
	if f.tracker.IsOnline(ctx, 7) {
		t.Error("a read that started before logout must not make the user online again")
	}
}

func TestIsOnline_InFlightReadCannotUndoLogin(t *testing.T) {
	f := newFixture(t, nil, nil, Options{})
	ctx := context.Background()

	read, release := f.repo.HoldGetResults()
	done := make(chan bool, 1)
	go func() { done <- f.tracker.IsOnline(ctx, 9) }()
	waitRead(t, read) // no record yet

	f.tracker.OnLogin(ctx, 9, meta)
	release()
	<-done

	if !f.tracker.IsOnline(ctx, 9) {
		t.Error("a read that started before login must not make the user offline again")
	}
}

func TestGetLastSeen(t *testing.T) {
	f := newFixture(t, nil, nil, Options{})
	ctx := context.Background()
	if _, ok := f.tracker.GetLastSeen(ctx, 7); ok {
		t.Fatal("no record: GetLastSeen should be absent")
	}
	at := f.clock.Now()
	f.tracker.RecordHeartbeat(ctx, 7, meta, false)
	f.clock.Advance(time.Hour)
	got, ok := f.tracker.GetLastSeen(ctx, 7)
	if !ok || !got.Equal(at) {
		t.Errorf("GetLastSeen = %v, %v; want %v", got, ok, at)
	}
	f.repo.FailGet.Store(true)
	if _, ok := f.tracker.GetLastSeen(ctx, 7); ok {
		t.Error("store failure should report absent")
	}
}

func TestOnLogout_IsImmediate(t *testing.T) {
	emitter := &captureEmitter{ch: make(chan *telemetrydomain.Event, 4)}
	f := newFixture(t, nil, nil, Options{Emitter: emitter})
	ctx := context.Background()

	f.tracker.RecordHeartbeat(ctx, 7, meta, false)
	if !f.tracker.IsOnline(ctx, 7) {
		t.Fatal("should be online")
	}
	f.tracker.OnLogout(ctx, 7)

	if f.tracker.IsOnline(ctx, 7) {
		t.Error("IsOnline must be false right after logout")
	}
	if _, ok := f.tracker.GetLastSeen(ctx, 7); ok {
		t.Error("GetLastSeen must be absent after logout")
	}
	if _, ok, _ := f.cache.Get(ctx, cache.GuardKey(7)); ok {
		t.Error("debounce guard must be gone after logout")
	}
	if v, ok, _ := f.cache.Get(ctx, cache.StatusKey(7)); !ok || v != domain.StatusOffline {
		t.Errorf("status snapshot after logout = %q, %v; want offline", v, ok)
	}
	if ev := emitter.next(t); ev.EventType != telemetrydomain.EventLogout || ev.UserID != 7 {
		t.Errorf("event = %+v", ev)
	}
}

func TestOnLogin_IsImmediateRegardlessOfDebounce(t *testing.T) {
	emitter := &captureEmitter{ch: make(chan *telemetrydomain.Event, 4)}
	f := newFixture(t, nil, nil, Options{Emitter: emitter})
	ctx := context.Background()

	// A live guard and a cached offline verdict from before the login.
	if _, err := f.cache.SetNX(ctx, cache.GuardKey(7), "1", time.Minute); err != nil {
		t.Fatal(err)
	}
	if f.tracker.IsOnline(ctx, 7) {
		t.Fatal("should be offline before login")
	}
	f.tracker.OnLogin(ctx, 7, meta)
	if !f.tracker.IsOnline(ctx, 7) {
		t.Error("IsOnline must be true right after login")
	}
	ev := emitter.next(t)
	if ev.EventType != telemetrydomain.EventLogin || ev.UserID != 7 {
		t.Errorf("event = %+v", ev)
	}
}

func TestOnLoginLogoutOrdering(t *testing.T) {
	f := newFixture(t, nil, nil, Options{})
	ctx := context.Background()
	f.tracker.OnLogin(ctx, 7, meta)
	f.tracker.OnLogout(ctx, 7)
	f.tracker.OnLogin(ctx, 7, meta)
	if !f.tracker.IsOnline(ctx, 7) {
		t.Error("login after logout should be online")
	}
	if f.mem.Len() != 1 {
		t.Errorf("records = %d, want 1", f.mem.Len())
	}
}

func TestGetOnlineUsers_OrderAndFilter(t *testing.T) {
	identities := mapIdentities{
		1: {DisplayName: "Ada", Contact: "ada@example.com", Roles: []string{"administrator"}},
		3: {DisplayName: "Grace", Contact: "grace@example.com", Roles: []string{"editor"}},
	}
	f := newFixture(t, identities, nil, Options{})
	ctx := context.Background()

	f.tracker.RecordHeartbeat(ctx, 4, meta, false) // t=0, will be stale
	f.clock.Advance(200 * time.Second)
	f.tracker.RecordHeartbeat(ctx, 1, meta, false) // t=200
	f.clock.Advance(50 * time.Second)
	f.tracker.RecordHeartbeat(ctx, 2, meta, false) // t=250
	f.clock.Advance(10 * time.Second)
	f.tracker.RecordHeartbeat(ctx, 3, meta, false) // t=260
	f.clock.Advance(50 * time.Second)              // t=310: user 4 is 310s old

	users := f.tracker.GetOnlineUsers(ctx)
	var ids []int64
	for _, u := range users {
		ids = append(ids, u.UserID)
	}
	want := []int64{3, 2, 1}
	if len(ids) != len(want) {
		t.Fatalf("online users = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("online users = %v, want %v", ids, want)
		}
	}
	for i := 1; i < len(users); i++ {
		if users[i].LastActivity.After(users[i-1].LastActivity) {
			t.Error("users must be ordered by last activity descending")
		}
	}
	if users[0].DisplayName != "Grace" || users[0].Guest {
		t.Errorf("user 3 = %+v", users[0])
	}
	if !users[1].Guest || users[1].DisplayName != "Guest" || users[1].Roles[0] != "none" {
		t.Errorf("unknown user 2 should be a guest: %+v", users[1])
	}
	if n := f.tracker.GetOnlineCount(ctx); n != 3 {
		t.Errorf("GetOnlineCount = %d, want 3", n)
	}
}

func TestGetOnlineUsers_BatchResolver(t *testing.T) {
	batch := &batchIdentities{m: map[int64]*domain.Identity{1: {DisplayName: "Ada"}}}
	f := newFixture(t, batch, nil, Options{})
	ctx := context.Background()
	f.tracker.RecordHeartbeat(ctx, 1, meta, false)
	f.tracker.RecordHeartbeat(ctx, 2, meta, false)

	users := f.tracker.GetOnlineUsers(ctx)
	if batch.calls != 1 {
		t.Errorf("batch resolver calls = %d, want 1", batch.calls)
	}
	if len(users) != 2 {
		t.Fatalf("users = %d, want 2", len(users))
	}
	byID := map[int64]domain.OnlineUser{}
	for _, u := range users {
		byID[u.UserID] = u
	}
	if byID[1].DisplayName != "Ada" || !byID[2].Guest {
		t.Errorf("users = %+v", users)
	}

	batch.err = errors.New("directory down")
	for _, u := range f.tracker.GetOnlineUsers(ctx) {
		if !u.Guest {
			t.Errorf("resolver failure should render guests, got %+v", u)
		}
	}
}

func TestGetOnlineUsers_ResolverErrorsRenderGuests(t *testing.T) {
	f := newFixture(t, failingIdentities{}, nil, Options{})
	ctx := context.Background()
	f.tracker.RecordHeartbeat(ctx, 1, meta, false)
	users := f.tracker.GetOnlineUsers(ctx)
	if len(users) != 1 || !users[0].Guest {
		t.Errorf("users = %+v, want one guest", users)
	}
}

func TestQueries_StoreFailureDegrades(t *testing.T) {
	f := newFixture(t, nil, nil, Options{})
	ctx := context.Background()
	f.tracker.RecordHeartbeat(ctx, 1, meta, false)
	f.repo.FailList.Store(true)
	if users := f.tracker.GetOnlineUsers(ctx); len(users) != 0 {
		t.Errorf("GetOnlineUsers on failure = %v, want empty", users)
	}
	if n := f.tracker.GetOnlineCount(ctx); n != 0 {
		t.Errorf("GetOnlineCount on failure = %d, want 0", n)
	}
}

func TestAcceptSignal(t *testing.T) {
	tokens := mapTokens{"good": 12}
	f := newFixture(t, nil, tokens, Options{})
	ctx := context.Background()

	testCases := []struct {
		name  string
		token string
		want  string
	}{
		{"anonymous", "", domain.StatusOffline},
		{"invalid token", "forged", domain.StatusOffline},
		{"valid token", "good", domain.StatusOnline},
		{"valid token coalesced", "good", domain.StatusOnline},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ack := f.tracker.AcceptSignal(ctx, domain.Signal{Token: tc.token, Meta: meta})
			if ack.Status != tc.want {
				t.Errorf("Ack = %q, want %q", ack.Status, tc.want)
			}
		})
	}
	if f.mem.Len() != 1 {
		t.Errorf("records = %d, want only the authenticated user's", f.mem.Len())
	}
	if n := f.repo.Upserts.Load(); n != 1 {
		t.Errorf("store writes = %d, want 1", n)
	}
	if !f.tracker.IsOnline(ctx, 12) {
		t.Error("authenticated signal should mark the user online")
	}
}

func TestAcceptSignal_NoVerifierTreatsEverySignalAsAnonymous(t *testing.T) {
	f := newFixture(t, nil, nil, Options{})
	ack := f.tracker.AcceptSignal(context.Background(), domain.Signal{Token: "anything", Meta: meta})
	if ack.Status != domain.StatusOffline || f.mem.Len() != 0 {
		t.Errorf("Ack = %+v, records = %d", ack, f.mem.Len())
	}
}

func TestRecordHeartbeat_ConcurrentSameUser(t *testing.T) {
	f := newFixture(t, nil, nil, Options{})
	ctx := context.Background()
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			f.tracker.RecordHeartbeat(ctx, 9, meta, false)
		}()
	}
	close(start)
	wg.Wait()

	if n := f.repo.Upserts.Load(); n < 1 || n > 2 {
		t.Errorf("store writes = %d, want 1 or 2", n)
	}
	if f.mem.Len() != 1 {
		t.Errorf("records = %d, want exactly 1", f.mem.Len())
	}
	if !f.tracker.IsOnline(ctx, 9) {
		t.Error("user 9 should be online")
	}
}

func TestTracker_HeartbeatCounter(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	f := newFixture(t, nil, nil, Options{Meter: provider.Meter("test")})
	ctx := context.Background()
	f.tracker.RecordHeartbeat(ctx, 1, meta, false)
	f.tracker.RecordHeartbeat(ctx, 1, meta, false)
	f.tracker.RecordHeartbeat(ctx, 1, meta, false)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	got := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "presence.heartbeats" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("presence.heartbeats data = %T", m.Data)
			}
			for _, dp := range sum.DataPoints {
				v, _ := dp.Attributes.Value("outcome")
				got[v.AsString()] = dp.Value
			}
		}
	}
	if got["written"] != 1 || got["coalesced"] != 2 {
		t.Errorf("heartbeat counts = %v, want written=1 coalesced=2", got)
	}
}

func TestOptions_Defaults(t *testing.T) {
	o := Options{}.withDefaults()
	if o.OnlineTimeout != 300*time.Second || o.DebounceWindow != 30*time.Second || o.StatusCacheTTL != 30*time.Second {
		t.Errorf("defaults = %+v", o)
	}
	if o.Now == nil || o.Meter == nil {
		t.Error("clock and meter should default")
	}
}

func TestOutcome_String(t *testing.T) {
	for o, want := range map[Outcome]string{
		OutcomeWritten: "written", OutcomeCoalesced: "coalesced", OutcomeFailed: "failed",
		OutcomeRejected: "rejected", Outcome(99): "unknown",
	} {
		if o.String() != want {
			t.Errorf("Outcome(%d).String() = %q, want %q", o, o.String(), want)
		}
	}
}
