package synccache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/five82/pulse/internal/sheets"
	"github.com/five82/pulse/internal/snapshot"
	"github.com/five82/pulse/internal/telemetry"
)

const (
	// DefaultBackoffBase is the delay multiplied by BackoffState.Multiplier.
	DefaultBackoffBase = 30 * time.Second
	// MaxMultiplier caps the quota backoff multiplier.
	MaxMultiplier = 32

	persistTimeout = 5 * time.Second
)

// Origin names the tier of the resolution chain that produced a Result.
type Origin string

const (
	OriginNetwork   Origin = "network"
	OriginMemory    Origin = "memory"
	OriginPersisted Origin = "persisted"
	OriginNone      Origin = "none"
)

// Result is what GetData hands back. LastSyncAt is zero when no successful
// fetch has ever been observed.
type Result struct {
	Rows       []sheets.Row
	LastSyncAt time.Time
	IsStale    bool
	Origin     Origin
}

// Entry is the live cached row set.
type Entry struct {
	Rows []sheets.Row
	// FetchedAt is when the request was sent, so the TTL and the poll
	// interval are measured from the same instant.
	FetchedAt time.Time
}

// BackoffState tracks quota backoff. A zero LastAttemptAt means no fetch has
// completed yet.
type BackoffState struct {
	QuotaExceeded bool
	Multiplier    int
	LastAttemptAt time.Time
}

// TTLPolicy holds the three freshness windows.
type TTLPolicy struct {
	Pending time.Duration
	Default time.Duration
	Quota   time.Duration
}

// DefaultTTLPolicy returns the stock freshness windows.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		Pending: 15 * time.Second,
		Default: 60 * time.Second,
		Quota:   5 * time.Minute,
	}
}

type fetchCall struct {
	done   chan struct{}
	result Result
}

// Cache is the sync cache. Construct it with New.
type Cache struct {
	source      sheets.Fetcher
	store       snapshot.Store
	clock       clock.PassiveClock
	ttl         TTLPolicy
	backoffBase time.Duration
	rule        sheets.PendingRule
	metrics     *telemetry.CacheMetrics

	mu       sync.Mutex
	entry    *Entry
	backoff  BackoffState
	inflight *fetchCall
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock sets the time source.
func WithClock(c clock.PassiveClock) Option {
	return func(cache *Cache) {
		if c != nil {
			cache.clock = c
		}
	}
}

// WithTTLPolicy overrides the freshness windows. Non-positive fields keep
// their defaults.
func WithTTLPolicy(p TTLPolicy) Option {
	return func(cache *Cache) {
		if p.Pending > 0 {
			cache.ttl.Pending = p.Pending
		}
		if p.Default > 0 {
			cache.ttl.Default = p.Default
		}
		if p.Quota > 0 {
			cache.ttl.Quota = p.Quota
		}
	}
}

// WithBackoffBase sets the base delay for quota backoff.
func WithBackoffBase(d time.Duration) Option {
	return func(cache *Cache) {
		if d > 0 {
			cache.backoffBase = d
		}
	}
}

// WithPendingRule sets the rule deciding which rows count as pending work.
func WithPendingRule(rule sheets.PendingRule) Option {
	return func(cache *Cache) {
		cache.rule = rule
	}
}

// WithCacheMetrics sets the cache metrics recorder.
func WithCacheMetrics(m *telemetry.CacheMetrics) Option {
	return func(cache *Cache) {
		cache.metrics = m
	}
}

// New returns a Cache reading from source and mirroring successes to store.
// A nil store disables persistence.
func New(source sheets.Fetcher, store snapshot.Store, opts ...Option) *Cache {
	if store == nil {
		store = snapshot.Nop{}
	}
	c := &Cache{
		source:      source,
		store:       store,
		clock:       clock.RealClock{},
		ttl:         DefaultTTLPolicy(),
		backoffBase: DefaultBackoffBase,
		rule:        sheets.DefaultPendingRule(),
		backoff:     BackoffState{Multiplier: 1},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetData returns the best available row set. It never fails; problems are
// reported through Result.IsStale.
func (c *Cache) GetData(ctx context.Context, force bool) Result {
	c.mu.Lock()
	now := c.clock.Now()

	if !force && c.entry != nil && now.Sub(c.entry.FetchedAt) < c.ttlLocked() {
		res := memoryResult(c.entry, false)
		c.mu.Unlock()
		c.metrics.RecordRead(ctx, string(res.Origin), res.IsStale)
		return res
	}

	if call := c.inflight; call != nil {
		c.mu.Unlock()
		return c.await(ctx, call)
	}

	if !force && c.backedOffLocked(now) {
		c.mu.Unlock()
		slog.Debug("Skipping fetch during quota backoff", "remaining", c.BackoffRemaining())
		return c.stale(ctx)
	}

	call := &fetchCall{done: make(chan struct{})}
	c.inflight = call
	c.mu.Unlock()

	go c.runFetch(context.WithoutCancel(ctx), call)
	return c.await(ctx, call)
}

// Backoff returns a copy of the backoff state.
func (c *Cache) Backoff() BackoffState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backoff
}

// BackoffRemaining returns how long quota backoff still suppresses fetches,
// or 0 when it is not active.
func (c *Cache) BackoffRemaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backoffRemainingLocked(c.clock.Now())
}

// HasPendingWork reports whether the live entry contains pending rows.
func (c *Cache) HasPendingWork() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entry != nil && sheets.CountPending(c.entry.Rows, c.rule) > 0
}

// TTL returns the freshness window currently in effect.
func (c *Cache) TTL() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ttlLocked()
}

func (c *Cache) await(ctx context.Context, call *fetchCall) Result {
	select {
	case <-call.done:
		res := call.result
		res.Rows = cloneOrEmpty(res.Rows)
		return res
	case <-ctx.Done():
		return c.stale(ctx)
	}
}

func (c *Cache) runFetch(ctx context.Context, call *fetchCall) {
	start := c.clock.Now()
	rows, err := c.safeFetch(ctx)
	duration := c.clock.Since(start)

	c.mu.Lock()
	now := c.clock.Now()
	c.backoff.LastAttemptAt = now
	var res Result
	quota := false
	if err == nil {
		c.entry = &Entry{Rows: rows, FetchedAt: start}
		c.backoff.QuotaExceeded = false
		c.backoff.Multiplier = 1
		res = Result{Rows: rows, LastSyncAt: start, Origin: OriginNetwork}
	} else {
		quota = sheets.IsQuotaExceeded(err)
		if quota {
			c.backoff.QuotaExceeded = true
			c.backoff.Multiplier = min(c.backoff.Multiplier*2, MaxMultiplier)
		}
		if c.entry != nil {
			res = memoryResult(c.entry, true)
		}
	}
	backoff := c.backoff
	c.mu.Unlock()

	c.metrics.RecordBackoff(ctx, backoff.Multiplier, backoff.QuotaExceeded)
	switch {
	case err == nil:
		c.metrics.RecordFetch(ctx, telemetry.OutcomeSuccess, duration)
		c.metrics.RecordRows(ctx, len(rows), sheets.CountPending(rows, c.rule))
		slog.Debug("Fetched rows", "rows", len(rows), "duration", duration)
		c.persist(ctx, snapshot.Snapshot{Rows: rows, FetchedAt: start})
	case quota:
		c.metrics.RecordFetch(ctx, telemetry.OutcomeQuota, duration)
		slog.Warn("Upstream quota exceeded",
			"error", err,
			"multiplier", backoff.Multiplier,
			"backoff", c.backoffBase*time.Duration(backoff.Multiplier),
		)
	default:
		c.metrics.RecordFetch(ctx, telemetry.OutcomeError, duration)
		slog.Warn("Fetch failed", "error", err)
	}
	if res.Origin == "" {
		res = c.persistedOrEmpty(ctx)
	}
	c.metrics.RecordRead(ctx, string(res.Origin), res.IsStale)

	call.result = res
	c.mu.Lock()
	c.inflight = nil
	c.mu.Unlock()
	close(call.done)
}

func (c *Cache) safeFetch(ctx context.Context) (rows []sheets.Row, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fetch panicked: %v", r)
		}
	}()
	if c.source == nil {
		return nil, fmt.Errorf("no data source configured")
	}
	return c.source.Fetch(ctx)
}

func (c *Cache) persist(ctx context.Context, snap snapshot.Snapshot) {
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("Snapshot save panicked", "panic", r)
		}
	}()
	if err := c.store.Save(ctx, snap); err != nil {
		slog.Warn("Failed to persist snapshot", "error", err)
	}
}

// stale resolves memory, then the persisted snapshot, then nothing.
func (c *Cache) stale(ctx context.Context) Result {
	c.mu.Lock()
	if c.entry != nil {
		res := memoryResult(c.entry, true)
		c.mu.Unlock()
		c.metrics.RecordRead(ctx, string(res.Origin), res.IsStale)
		return res
	}
	c.mu.Unlock()

	res := c.persistedOrEmpty(ctx)
	c.metrics.RecordRead(ctx, string(res.Origin), res.IsStale)
	return res
}

func (c *Cache) persistedOrEmpty(ctx context.Context) (res Result) {
	res = Result{Rows: []sheets.Row{}, IsStale: true, Origin: OriginNone}
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("Snapshot load panicked", "panic", r)
			res = Result{Rows: []sheets.Row{}, IsStale: true, Origin: OriginNone}
		}
	}()

	loadCtx := context.WithoutCancel(ctx)
	loadCtx, cancel := context.WithTimeout(loadCtx, persistTimeout)
	defer cancel()
	snap, ok, err := c.store.Load(loadCtx)
	if err != nil {
		slog.Warn("Failed to load persisted snapshot", "error", err)
		return res
	}
	if !ok {
		return res
	}
	return Result{
		Rows:       cloneOrEmpty(snap.Rows),
		LastSyncAt: snap.FetchedAt,
		IsStale:    true,
		Origin:     OriginPersisted,
	}
}

func (c *Cache) ttlLocked() time.Duration {
	if c.backoff.QuotaExceeded {
		return c.ttl.Quota
	}
	if c.entry != nil && sheets.CountPending(c.entry.Rows, c.rule) > 0 {
		return c.ttl.Pending
	}
	return c.ttl.Default
}

func (c *Cache) backedOffLocked(now time.Time) bool {
	return c.backoffRemainingLocked(now) > 0
}

func (c *Cache) backoffRemainingLocked(now time.Time) time.Duration {
	if !c.backoff.QuotaExceeded || c.backoff.LastAttemptAt.IsZero() {
		return 0
	}
	delay := c.backoffBase * time.Duration(c.backoff.Multiplier)
	remaining := delay - now.Sub(c.backoff.LastAttemptAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func memoryResult(entry *Entry, stale bool) Result {
	return Result{
		Rows:       cloneOrEmpty(entry.Rows),
		LastSyncAt: entry.FetchedAt,
		IsStale:    stale,
		Origin:     OriginMemory,
	}
}

func cloneOrEmpty(rows []sheets.Row) []sheets.Row {
	if len(rows) == 0 {
		return []sheets.Row{}
	}
	return sheets.CloneRows(rows)
}
