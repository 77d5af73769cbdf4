package synccache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	testclock "k8s.io/utils/clock/testing"

	"github.com/five82/pulse/internal/sheets"
	"github.com/five82/pulse/internal/snapshot"
)

var epoch = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu      sync.Mutex
	calls   int
	rows    []sheets.Row
	err     error
	release chan struct{}
	started chan struct{}
}

func (f *fakeSource) Fetch(ctx context.Context) ([]sheets.Row, error) {
	f.mu.Lock()
	f.calls++
	rows, err := f.rows, f.err
	release, started := f.release, f.started
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		<-release
	}
	return rows, err
}

func (f *fakeSource) set(rows []sheets.Row, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = rows
	f.err = err
}

func (f *fakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeStore struct {
	mu      sync.Mutex
	saved   []snapshot.Snapshot
	stored  *snapshot.Snapshot
	saveErr error
	loadErr error
}

func (s *fakeStore) Save(_ context.Context, snap snapshot.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, snap)
	s.stored = &snap
	return nil
}

func (s *fakeStore) Load(context.Context) (snapshot.Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return snapshot.Snapshot{}, false, s.loadErr
	}
	if s.stored == nil {
		return snapshot.Snapshot{}, false, nil
	}
	return *s.stored, true, nil
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

var (
	quotaErr     = &sheets.QuotaError{StatusCode: 429}
	transientErr = errors.New("connection reset")
	closedRows   = []sheets.Row{{ID: "1", Status: "won"}, {ID: "2", Status: "lost"}}
	pendingRows  = []sheets.Row{{ID: "1", Status: "won"}, {ID: "2", Status: "pending"}}
)

func newTestCache(src *fakeSource, store snapshot.Store) (*Cache, *testclock.FakeClock) {
	clk := testclock.NewFakeClock(epoch)
	return New(src, store, WithClock(clk)), clk
}

func TestGetData_TTLHitSkipsNetwork(t *testing.T) {
	src := &fakeSource{rows: closedRows}
	cache, clk := newTestCache(src, nil)
	ctx := context.Background()

	first := cache.GetData(ctx, false)
	if first.IsStale || first.Origin != OriginNetwork || len(first.Rows) != 2 {
		t.Fatalf("first = %#v, want fresh network result", first)
	}
	if !first.LastSyncAt.Equal(epoch) {
		t.Fatalf("LastSyncAt = %s, want %s", first.LastSyncAt, epoch)
	}

	clk.Step(59 * time.Second)
	second := cache.GetData(ctx, false)
	if src.Calls() != 1 {
		t.Fatalf("calls = %d, want 1 within TTL", src.Calls())
	}
	if second.IsStale || second.Origin != OriginMemory || !second.LastSyncAt.Equal(first.LastSyncAt) {
		t.Fatalf("second = %#v, want identical fresh memory result", second)
	}

	clk.Step(time.Second)
	cache.GetData(ctx, false)
	if src.Calls() != 2 {
		t.Fatalf("calls = %d, want 2 after TTL expiry", src.Calls())
	}
}

func TestGetData_StampsRequestTime(t *testing.T) {
	src := &fakeSource{rows: pendingRows, release: make(chan struct{}), started: make(chan struct{}, 1)}
	cache, clk := newTestCache(src, nil)
	ctx := context.Background()

	done := make(chan Result, 1)
	go func() { done <- cache.GetData(ctx, false) }()
	<-src.started
	clk.Step(time.Second)
	close(src.release)

	res := <-done
	if !res.LastSyncAt.Equal(epoch) {
		t.Fatalf("LastSyncAt = %s, want request time %s", res.LastSyncAt, epoch)
	}

	clk.Step(DefaultTTLPolicy().Pending - time.Second)
	cache.GetData(ctx, false)
	if got := src.Calls(); got != 2 {
		t.Fatalf("calls = %d, want a refetch once the pending TTL has elapsed since the request", got)
	}
}

func TestGetData_ForceBypassesTTL(t *testing.T) {
	src := &fakeSource{rows: closedRows}
	cache, _ := newTestCache(src, nil)

	cache.GetData(context.Background(), false)
	cache.GetData(context.Background(), true)
	if src.Calls() != 2 {
		t.Fatalf("calls = %d, want 2", src.Calls())
	}
}

func TestTTLPolicy(t *testing.T) {
	src := &fakeSource{rows: closedRows}
	cache, _ := newTestCache(src, nil)

	if got := cache.TTL(); got != 60*time.Second {
		t.Fatalf("TTL before data = %s, want 60s", got)
	}
	cache.GetData(context.Background(), false)
	if cache.HasPendingWork() {
		t.Fatalf("closed rows reported as pending")
	}

	src.set(pendingRows, nil)
	cache.GetData(context.Background(), true)
	if !cache.HasPendingWork() {
		t.Fatalf("pending rows not detected")
	}
	if got := cache.TTL(); got != 15*time.Second {
		t.Fatalf("TTL with pending rows = %s, want 15s", got)
	}

	src.set(nil, quotaErr)
	cache.GetData(context.Background(), true)
	if got := cache.TTL(); got != 5*time.Minute {
		t.Fatalf("TTL under quota = %s, want 5m", got)
	}
}

func TestBackoffMultiplierSequence(t *testing.T) {
	src := &fakeSource{err: quotaErr}
	cache, _ := newTestCache(src, nil)
	ctx := context.Background()

	seq := []int{cache.Backoff().Multiplier}
	for i := 0; i < 3; i++ {
		cache.GetData(ctx, true)
		seq = append(seq, cache.Backoff().Multiplier)
	}
	want := []int{1, 2, 4, 8}
	for i := range want {
		if seq[i] != want[i] {
			t.Fatalf("multiplier sequence = %v, want %v", seq, want)
		}
	}

	for i := 0; i < 5; i++ {
		cache.GetData(ctx, true)
	}
	if got := cache.Backoff().Multiplier; got != MaxMultiplier {
		t.Fatalf("multiplier = %d, want cap %d", got, MaxMultiplier)
	}

	src.set(closedRows, nil)
	res := cache.GetData(ctx, true)
	state := cache.Backoff()
	if state.Multiplier != 1 || state.QuotaExceeded {
		t.Fatalf("backoff after success = %#v, want reset", state)
	}
	if res.IsStale {
		t.Fatalf("successful fetch returned stale result")
	}
}

func TestTransientFailureKeepsMultiplier(t *testing.T) {
	src := &fakeSource{err: quotaErr}
	cache, clk := newTestCache(src, nil)
	ctx := context.Background()

	cache.GetData(ctx, true)
	clk.Step(time.Second)
	src.set(nil, transientErr)
	cache.GetData(ctx, true)

	state := cache.Backoff()
	if state.Multiplier != 2 || !state.QuotaExceeded {
		t.Fatalf("backoff = %#v, want multiplier 2 still quota", state)
	}
	if !state.LastAttemptAt.Equal(epoch.Add(time.Second)) {
		t.Fatalf("LastAttemptAt = %s, want %s", state.LastAttemptAt, epoch.Add(time.Second))
	}
}

func TestGetData_BackoffSkipsNetwork(t *testing.T) {
	src := &fakeSource{rows: closedRows}
	cache, clk := newTestCache(src, nil)
	ctx := context.Background()

	cache.GetData(ctx, false)
	clk.Step(5 * time.Minute)
	src.set(nil, quotaErr)
	failed := cache.GetData(ctx, false)
	if !failed.IsStale || failed.Origin != OriginMemory || len(failed.Rows) != 2 {
		t.Fatalf("failed = %#v, want stale memory rows", failed)
	}
	if got := cache.BackoffRemaining(); got != 2*DefaultBackoffBase {
		t.Fatalf("BackoffRemaining = %s, want %s", got, 2*DefaultBackoffBase)
	}

	// Past the quota TTL but still inside the backoff window.
	cache = New(src, nil, WithClock(clk), WithTTLPolicy(TTLPolicy{Quota: time.Second}))
	src.set(closedRows, nil)
	cache.GetData(ctx, false)
	src.set(nil, quotaErr)
	cache.GetData(ctx, true)
	calls := src.Calls()

	clk.Step(30 * time.Second)
	skipped := cache.GetData(ctx, false)
	if src.Calls() != calls {
		t.Fatalf("fetch issued during backoff")
	}
	if !skipped.IsStale {
		t.Fatalf("backoff skip returned fresh result")
	}

	clk.Step(30 * time.Second)
	if got := cache.BackoffRemaining(); got != 0 {
		t.Fatalf("BackoffRemaining = %s, want 0", got)
	}
	cache.GetData(ctx, false)
	if src.Calls() != calls+1 {
		t.Fatalf("fetch not issued after backoff cleared")
	}
}

func TestGetData_NeverFailsWithEmptyStore(t *testing.T) {
	src := &fakeSource{err: transientErr}
	cache, _ := newTestCache(src, nil)

	for _, force := range []bool{false, true, false} {
		res := cache.GetData(context.Background(), force)
		if res.Rows == nil || len(res.Rows) != 0 {
			t.Fatalf("rows = %#v, want empty non-nil slice", res.Rows)
		}
		if !res.IsStale || res.Origin != OriginNone || !res.LastSyncAt.IsZero() {
			t.Fatalf("result = %#v, want stale empty", res)
		}
	}
}

type panicSource struct{}

func (panicSource) Fetch(context.Context) ([]sheets.Row, error) { panic("boom") }

func TestGetData_RecoversFromPanickingSource(t *testing.T) {
	cache := New(panicSource{}, nil, WithClock(testclock.NewFakeClock(epoch)))
	res := cache.GetData(context.Background(), false)
	if !res.IsStale || len(res.Rows) != 0 {
		t.Fatalf("result = %#v, want stale empty", res)
	}
	if cache.Backoff().QuotaExceeded {
		t.Fatalf("panic classified as quota")
	}
}

func TestGetData_ConcurrentCallsShareOneFetch(t *testing.T) {
	src := &fakeSource{
		rows:    closedRows,
		release: make(chan struct{}),
		started: make(chan struct{}, 4),
	}
	cache, _ := newTestCache(src, nil)
	ctx := context.Background()

	results := make(chan Result, 2)
	go func() { results <- cache.GetData(ctx, true) }()
	<-src.started
	go func() { results <- cache.GetData(ctx, true) }()

	time.Sleep(50 * time.Millisecond)
	close(src.release)

	a, b := <-results, <-results
	if src.Calls() != 1 {
		t.Fatalf("calls = %d, want 1", src.Calls())
	}
	if a.Origin != OriginNetwork || b.Origin != OriginNetwork || !a.LastSyncAt.Equal(b.LastSyncAt) {
		t.Fatalf("results differ: %#v vs %#v", a, b)
	}
}

func TestGetData_CallerCancelStillCachesFetch(t *testing.T) {
	src := &fakeSource{
		rows:    closedRows,
		release: make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	store := &fakeStore{}
	cache, _ := newTestCache(src, store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Result, 1)
	go func() { done <- cache.GetData(ctx, false) }()
	<-src.started
	cancel()

	res := <-done
	if !res.IsStale || res.Origin != OriginNone {
		t.Fatalf("cancelled caller = %#v, want stale empty", res)
	}

	close(src.release)
	deadline := time.Now().Add(2 * time.Second)
	for store.Saves() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	fresh := cache.GetData(context.Background(), false)
	if fresh.IsStale || len(fresh.Rows) != 2 {
		t.Fatalf("after completion = %#v, want cached rows", fresh)
	}
	if src.Calls() != 1 {
		t.Fatalf("calls = %d, want 1", src.Calls())
	}
}

func TestPersistence(t *testing.T) {
	ctx := context.Background()

	t.Run("success is mirrored", func(t *testing.T) {
		store := &fakeStore{}
		cache, _ := newTestCache(&fakeSource{rows: closedRows}, store)
		cache.GetData(ctx, false)
		if store.Saves() != 1 {
			t.Fatalf("saves = %d, want 1", store.Saves())
		}
		if !store.stored.FetchedAt.Equal(epoch) || len(store.stored.Rows) != 2 {
			t.Fatalf("stored = %#v", store.stored)
		}
	})

	t.Run("persisted fallback", func(t *testing.T) {
		saved := epoch.Add(-time.Hour)
		store := &fakeStore{stored: &snapshot.Snapshot{Rows: pendingRows, FetchedAt: saved}}
		cache, _ := newTestCache(&fakeSource{err: transientErr}, store)

		res := cache.GetData(ctx, false)
		if res.Origin != OriginPersisted || !res.IsStale || len(res.Rows) != 2 {
			t.Fatalf("result = %#v, want stale persisted rows", res)
		}
		if !res.LastSyncAt.Equal(saved) {
			t.Fatalf("LastSyncAt = %s, want %s", res.LastSyncAt, saved)
		}
	})

	t.Run("memory preferred over persisted", func(t *testing.T) {
		store := &fakeStore{stored: &snapshot.Snapshot{Rows: pendingRows[:1], FetchedAt: epoch.Add(-time.Hour)}}
		src := &fakeSource{rows: closedRows}
		cache, _ := newTestCache(src, store)
		cache.GetData(ctx, false)

		src.set(nil, transientErr)
		res := cache.GetData(ctx, true)
		if res.Origin != OriginMemory || len(res.Rows) != 2 {
			t.Fatalf("result = %#v, want memory rows", res)
		}
	})

	t.Run("store failures are swallowed", func(t *testing.T) {
		store := &fakeStore{saveErr: errors.New("disk full"), loadErr: errors.New("corrupt")}
		src := &fakeSource{rows: closedRows}
		cache, _ := newTestCache(src, store)

		res := cache.GetData(ctx, false)
		if res.IsStale || len(res.Rows) != 2 {
			t.Fatalf("save failure leaked into result: %#v", res)
		}

		fresh, _ := newTestCache(&fakeSource{err: transientErr}, store)
		res = fresh.GetData(ctx, false)
		if res.Origin != OriginNone || len(res.Rows) != 0 || !res.IsStale {
			t.Fatalf("load failure = %#v, want stale empty", res)
		}
	})
}

func TestResultRowsAreCopies(t *testing.T) {
	src := &fakeSource{rows: []sheets.Row{{ID: "1", Status: "won"}}}
	cache, _ := newTestCache(src, nil)

	res := cache.GetData(context.Background(), false)
	res.Rows[0].Status = "mutated"

	again := cache.GetData(context.Background(), false)
	if again.Rows[0].Status != "won" {
		t.Fatalf("cached rows mutated through result")
	}
}
