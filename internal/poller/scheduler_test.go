package poller

import (
	"context"
	"sync"
	"testing"
	"time"

	testclock "k8s.io/utils/clock/testing"

	"github.com/five82/pulse/internal/sheets"
	"github.com/five82/pulse/internal/synccache"
)

var epoch = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

type poll struct {
	force bool
}

type fakeSource struct {
	clock *testclock.FakeClock

	mu      sync.Mutex
	rows    []sheets.Row
	stale   bool
	pending bool
	backoff time.Duration
	calls   int
	polls   chan poll
}

func newFakeSource(clk *testclock.FakeClock) *fakeSource {
	return &fakeSource{clock: clk, polls: make(chan poll, 64)}
}

func (f *fakeSource) GetData(_ context.Context, force bool) synccache.Result {
	f.mu.Lock()
	f.calls++
	res := synccache.Result{
		Rows:       sheets.CloneRows(f.rows),
		LastSyncAt: f.clock.Now(),
		IsStale:    f.stale,
		Origin:     synccache.OriginNetwork,
	}
	f.mu.Unlock()
	f.polls <- poll{force: force}
	return res
}

func (f *fakeSource) BackoffRemaining() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.backoff
}

func (f *fakeSource) HasPendingWork() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending
}

func (f *fakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeSource) update(fn func(*fakeSource)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

type fakeObserver struct {
	mu      sync.Mutex
	visible bool
	idle    time.Duration
}

func (o *fakeObserver) IsVisible() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.visible
}

func (o *fakeObserver) TimeSinceLastActivity() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.idle
}

func (o *fakeObserver) set(visible bool, idle time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.visible = visible
	o.idle = idle
}

type updates struct {
	ch chan Update
}

func newUpdates() *updates {
	return &updates{ch: make(chan Update, 64)}
}

func (u *updates) consume(up Update) {
	u.ch <- up
}

type harness struct {
	clock    *testclock.FakeClock
	source   *fakeSource
	observer *fakeObserver
	updates  *updates
	sched    *Scheduler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clk := testclock.NewFakeClock(epoch)
	h := &harness{
		clock:    clk,
		source:   newFakeSource(clk),
		observer: &fakeObserver{visible: true, idle: time.Hour},
		updates:  newUpdates(),
	}
	h.sched = New(h.source, h.observer, h.updates.consume, DefaultConfig(), WithClock(clk))
	t.Cleanup(h.sched.Stop)
	return h
}

func (h *harness) expectPoll(t *testing.T) poll {
	t.Helper()
	select {
	case p := <-h.source.polls:
		return p
	case <-time.After(2 * time.Second):
		t.Fatalf("expected a poll")
		return poll{}
	}
}

func (h *harness) expectNoPoll(t *testing.T) {
	t.Helper()
	select {
	case <-h.source.polls:
		t.Fatalf("unexpected poll")
	case <-time.After(50 * time.Millisecond):
	}
}

func (h *harness) expectUpdate(t *testing.T) Update {
	t.Helper()
	select {
	case u := <-h.updates.ch:
		return u
	case <-time.After(2 * time.Second):
		t.Fatalf("expected an update")
		return Update{}
	}
}

func (h *harness) expectNoUpdate(t *testing.T) {
	t.Helper()
	select {
	case u := <-h.updates.ch:
		t.Fatalf("unexpected update %#v", u)
	case <-time.After(50 * time.Millisecond):
	}
}

// waitForTimer blocks until the loop has armed (or, with armed false,
// released) its timer.
func (h *harness) waitForTimer(t *testing.T, armed bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.clock.HasWaiters() != armed {
		if time.Now().After(deadline) {
			t.Fatalf("timer armed = %v never reached", armed)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSelectTier(t *testing.T) {
	tests := []struct {
		name    string
		visible bool
		idle    time.Duration
		pending bool
		backoff time.Duration
		want    Tier
	}{
		{name: "idle no pending", visible: true, idle: 10 * time.Minute, want: TierSlow},
		{name: "pending while idle", visible: true, idle: 10 * time.Minute, pending: true, want: TierFast},
		{name: "recently active", visible: true, idle: 30 * time.Second, want: TierMedium},
		{name: "pending beats active", visible: true, idle: time.Second, pending: true, want: TierFast},
		{name: "backoff beats pending", visible: true, pending: true, backoff: time.Minute, want: TierBackoff},
		{name: "hidden beats all", visible: false, pending: true, backoff: time.Minute, want: TierHidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.observer.set(tt.visible, tt.idle)
			h.source.update(func(f *fakeSource) {
				f.pending = tt.pending
				f.backoff = tt.backoff
			})
			if got := h.sched.SelectTier(); got != tt.want {
				t.Fatalf("SelectTier = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestStartPollsImmediatelyThenOnCadence(t *testing.T) {
	h := newHarness(t)
	h.observer.set(true, 10*time.Minute)

	h.sched.Start(context.Background())
	if p := h.expectPoll(t); p.force {
		t.Fatalf("scheduled poll was forced")
	}
	u := h.expectUpdate(t)
	if u.Reason != ReasonInitial || u.Tier != TierSlow || u.Paused {
		t.Fatalf("first update = %#v", u)
	}

	h.waitForTimer(t, true)
	h.clock.Step(time.Minute)
	h.expectNoPoll(t)

	h.clock.Step(4 * time.Minute)
	h.expectPoll(t)
}

func TestPendingRowsSelectFastCadence(t *testing.T) {
	h := newHarness(t)
	h.observer.set(true, 10*time.Minute)
	h.source.update(func(f *fakeSource) { f.pending = true })

	h.sched.Start(context.Background())
	h.expectPoll(t)
	h.waitForTimer(t, true)

	h.clock.Step(15 * time.Second)
	h.expectPoll(t)
}

func TestStopCancelsSchedule(t *testing.T) {
	h := newHarness(t)
	h.sched.Start(context.Background())
	h.expectPoll(t)
	h.expectUpdate(t)
	h.waitForTimer(t, true)

	h.sched.Stop()
	if !h.sched.Paused() {
		t.Fatalf("Paused = false after Stop")
	}
	paused := h.expectUpdate(t)
	if paused.Reason != ReasonPaused || !paused.Paused {
		t.Fatalf("pause update = %#v", paused)
	}

	h.waitForTimer(t, false)
	h.clock.Step(time.Hour)
	h.expectNoPoll(t)
	if h.source.Calls() != 1 {
		t.Fatalf("calls = %d after Stop, want 1", h.source.Calls())
	}

	h.sched.Start(context.Background())
	resumed := h.expectUpdate(t)
	if resumed.Reason != ReasonResumed || resumed.Paused {
		t.Fatalf("resume update = %#v", resumed)
	}
	h.expectPoll(t)
	if h.source.Calls() != 2 {
		t.Fatalf("calls = %d after restart, want 2", h.source.Calls())
	}
}

func TestHiddenSuspendsUntilVisible(t *testing.T) {
	h := newHarness(t)
	h.sched.Start(context.Background())
	h.expectPoll(t)
	h.waitForTimer(t, true)

	h.observer.set(false, time.Hour)
	h.sched.VisibilityChanged(false)
	h.waitForTimer(t, false)

	h.clock.Step(time.Hour)
	h.expectNoPoll(t)

	h.observer.set(true, time.Hour)
	h.sched.VisibilityChanged(true)
	h.expectPoll(t)
	h.waitForTimer(t, true)
	h.expectNoPoll(t)
	if h.source.Calls() != 2 {
		t.Fatalf("calls = %d, want exactly one poll after becoming visible", h.source.Calls())
	}
}

func TestStartWhileHiddenDoesNotPoll(t *testing.T) {
	h := newHarness(t)
	h.observer.set(false, time.Hour)
	h.sched.Start(context.Background())
	h.expectNoPoll(t)

	h.observer.set(true, time.Hour)
	h.sched.VisibilityChanged(true)
	h.expectPoll(t)
}

func TestBackoffDelaysNextPoll(t *testing.T) {
	h := newHarness(t)
	h.observer.set(true, 10*time.Minute)
	h.sched.Start(context.Background())
	h.expectPoll(t)
	h.waitForTimer(t, true)

	h.source.update(func(f *fakeSource) { f.backoff = 10 * time.Minute })
	h.sched.ActivityChanged()
	h.waitForTimer(t, true)

	// The slow interval elapses but backoff is still active.
	h.clock.Step(5 * time.Minute)
	h.expectNoPoll(t)

	h.source.update(func(f *fakeSource) { f.backoff = 0 })
	h.sched.ActivityChanged()
	h.expectPoll(t)
}

func TestActivityDoesNotPostponePoll(t *testing.T) {
	h := newHarness(t)
	h.observer.set(true, time.Second)
	h.sched.Start(context.Background())
	h.expectPoll(t)

	for i := 0; i < 5; i++ {
		h.waitForTimer(t, true)
		h.clock.Step(10 * time.Second)
		h.sched.ActivityChanged()
	}
	h.expectNoPoll(t)
	h.waitForTimer(t, true)
	h.clock.Step(10 * time.Second)
	h.expectPoll(t)
}

func TestForceUpdate(t *testing.T) {
	h := newHarness(t)
	h.sched.Start(context.Background())
	h.expectPoll(t)
	h.expectUpdate(t)
	h.waitForTimer(t, true)

	h.clock.Step(time.Minute)
	h.source.update(func(f *fakeSource) { f.rows = []sheets.Row{{ID: "1", Status: "won"}} })
	h.sched.ForceUpdate(context.Background())
	if p := h.expectPoll(t); !p.force {
		t.Fatalf("ForceUpdate did not force")
	}
	u := h.expectUpdate(t)
	if u.Reason != ReasonChanged || len(u.Rows) != 1 {
		t.Fatalf("forced update = %#v", u)
	}

	// Rescheduled from the forced poll: the slow interval restarts.
	h.waitForTimer(t, true)
	h.clock.Step(4 * time.Minute)
	h.expectNoPoll(t)
	h.clock.Step(time.Minute)
	h.expectPoll(t)
}

func TestForceUpdateWhilePausedReportsPaused(t *testing.T) {
	h := newHarness(t)
	h.sched.ForceUpdate(context.Background())
	h.expectPoll(t)
	u := h.expectUpdate(t)
	if !u.Paused || u.Reason != ReasonInitial {
		t.Fatalf("update = %#v, want paused initial", u)
	}
}

func TestNotificationsOnlyOnChange(t *testing.T) {
	h := newHarness(t)
	rows := []sheets.Row{{ID: "1", Status: "won"}, {ID: "2", Status: "lost"}}
	h.source.update(func(f *fakeSource) { f.rows = rows })

	h.sched.ForceUpdate(context.Background())
	h.expectUpdate(t)

	h.clock.Step(time.Second)
	h.source.update(func(f *fakeSource) { f.rows = []sheets.Row{rows[1], rows[0]} })
	h.sched.ForceUpdate(context.Background())
	h.expectNoUpdate(t)

	h.clock.Step(time.Second)
	h.source.update(func(f *fakeSource) { f.stale = true })
	h.sched.ForceUpdate(context.Background())
	u := h.expectUpdate(t)
	if u.Reason != ReasonStale || !u.IsStale {
		t.Fatalf("stale flip update = %#v", u)
	}

	h.clock.Step(time.Second)
	h.sched.ForceUpdate(context.Background())
	h.expectNoUpdate(t)
}

type scriptedSource struct {
	*fakeSource
	results chan synccache.Result
}

func (s *scriptedSource) GetData(ctx context.Context, force bool) synccache.Result {
	s.fakeSource.GetData(ctx, force)
	return <-s.results
}

func TestOlderResultIsNotDelivered(t *testing.T) {
	clk := testclock.NewFakeClock(epoch)
	src := &scriptedSource{fakeSource: newFakeSource(clk), results: make(chan synccache.Result, 2)}
	up := newUpdates()
	sched := New(src, &fakeObserver{visible: true, idle: time.Hour}, up.consume, DefaultConfig(), WithClock(clk))

	src.results <- synccache.Result{Rows: []sheets.Row{{ID: "new"}}, LastSyncAt: epoch}
	sched.ForceUpdate(context.Background())
	<-up.ch

	src.results <- synccache.Result{Rows: []sheets.Row{{ID: "old"}}, LastSyncAt: epoch.Add(-time.Minute), IsStale: true}
	sched.ForceUpdate(context.Background())
	select {
	case u := <-up.ch:
		t.Fatalf("older snapshot delivered: %#v", u)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCadenceAnchorsOnFetchTime(t *testing.T) {
	clk := testclock.NewFakeClock(epoch)
	src := &scriptedSource{fakeSource: newFakeSource(clk), results: make(chan synccache.Result, 2)}
	up := newUpdates()
	sched := New(src, &fakeObserver{visible: true, idle: time.Hour}, up.consume, DefaultConfig(), WithClock(clk))
	t.Cleanup(sched.Stop)

	fetched := epoch.Add(2 * time.Second)
	src.results <- synccache.Result{Rows: []sheets.Row{{ID: "1"}}, LastSyncAt: fetched, Origin: synccache.OriginNetwork}
	src.results <- synccache.Result{Rows: []sheets.Row{{ID: "1"}}, LastSyncAt: fetched.Add(5 * time.Minute), Origin: synccache.OriginNetwork}

	sched.Start(context.Background())
	<-src.polls
	<-up.ch

	h := &harness{clock: clk, source: src.fakeSource}
	h.waitForTimer(t, true)
	clk.Step(5 * time.Minute)
	h.expectNoPoll(t)

	clk.Step(2 * time.Second)
	h.expectPoll(t)
}

func TestFetchAcrossStopIsNotDelivered(t *testing.T) {
	clk := testclock.NewFakeClock(epoch)
	src := &scriptedSource{fakeSource: newFakeSource(clk), results: make(chan synccache.Result)}
	up := newUpdates()
	sched := New(src, &fakeObserver{visible: true, idle: time.Hour}, up.consume, DefaultConfig(), WithClock(clk))

	sched.Start(context.Background())
	<-src.polls
	sched.Stop()
	if u := <-up.ch; u.Reason != ReasonPaused {
		t.Fatalf("update = %#v, want pause", u)
	}

	src.results <- synccache.Result{Rows: []sheets.Row{{ID: "late"}}, LastSyncAt: epoch}
	select {
	case u := <-up.ch:
		t.Fatalf("result from stopped schedule delivered: %#v", u)
	case <-time.After(50 * time.Millisecond):
	}
}

// timedFetcher advances the fake clock by took on every fetch.
type timedFetcher struct {
	clock   *testclock.FakeClock
	took    time.Duration
	rows    []sheets.Row
	fetches chan struct{}
}

func (f *timedFetcher) Fetch(context.Context) ([]sheets.Row, error) {
	f.clock.Step(f.took)
	f.fetches <- struct{}{}
	return sheets.CloneRows(f.rows), nil
}

func TestFastCadenceReachesUpstreamEveryInterval(t *testing.T) {
	clk := testclock.NewFakeClock(epoch)
	src := &timedFetcher{
		clock:   clk,
		took:    time.Second,
		rows:    []sheets.Row{{ID: "1", Status: "pending"}},
		fetches: make(chan struct{}, 8),
	}
	cfg := DefaultConfig()
	if ttl := synccache.DefaultTTLPolicy().Pending; ttl != cfg.Fast {
		t.Fatalf("pending TTL %s != fast interval %s", ttl, cfg.Fast)
	}
	cache := synccache.New(src, nil, synccache.WithClock(clk))
	h := &harness{clock: clk, observer: &fakeObserver{visible: true, idle: time.Hour}, updates: newUpdates()}
	sched := New(cache, h.observer, h.updates.consume, cfg, WithClock(clk))
	t.Cleanup(sched.Stop)

	expectFetch := func(round int) {
		t.Helper()
		select {
		case <-src.fetches:
		case <-time.After(2 * time.Second):
			t.Fatalf("round %d: fast poll was answered from cache", round)
		}
	}

	sched.Start(context.Background())
	expectFetch(0)
	for round := 1; round <= 4; round++ {
		h.waitForTimer(t, true)
		if tier := sched.SelectTier(); tier != TierFast {
			t.Fatalf("round %d: tier = %s, want fast", round, tier)
		}
		clk.Step(cfg.Fast - src.took)
		expectFetch(round)
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{Fast: time.Second}.withDefaults()
	if cfg.Fast != time.Second || cfg.Medium != time.Minute || cfg.Slow != 5*time.Minute || cfg.ActiveWindow != 2*time.Minute {
		t.Fatalf("withDefaults = %#v", cfg)
	}
	if _, ok := cfg.Interval(TierHidden); ok {
		t.Fatalf("hidden tier should not have an interval")
	}
}
