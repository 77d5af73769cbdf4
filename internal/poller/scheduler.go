package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/five82/pulse/internal/activity"
	"github.com/five82/pulse/internal/delta"
	"github.com/five82/pulse/internal/sheets"
	"github.com/five82/pulse/internal/synccache"
	"github.com/five82/pulse/internal/telemetry"
)

// Tier is the cadence currently selected.
type Tier string

const (
	TierFast    Tier = "fast"
	TierMedium  Tier = "medium"
	TierSlow    Tier = "slow"
	TierBackoff Tier = "backoff"
	TierHidden  Tier = "hidden"
)

// Reason explains why the consumer received an Update.
type Reason string

const (
	ReasonInitial Reason = "initial"
	ReasonChanged Reason = "changed"
	ReasonStale   Reason = "stale"
	ReasonPaused  Reason = "paused"
	ReasonResumed Reason = "resumed"
)

// Update is delivered to the consumer.
type Update struct {
	Rows       []sheets.Row `json:"rows"`
	LastSyncAt time.Time    `json:"lastSyncAt"`
	IsStale    bool         `json:"isStale"`
	Paused     bool         `json:"paused"`
	Reason     Reason       `json:"reason"`
	Tier       Tier         `json:"tier"`
}

// Consumer receives updates. It is called from scheduler goroutines, must
// not block for long and must not call back into the Scheduler.
type Consumer func(Update)

// Source is the part of the sync cache the scheduler drives.
type Source interface {
	GetData(ctx context.Context, force bool) synccache.Result
	BackoffRemaining() time.Duration
	HasPendingWork() bool
}

var _ Source = (*synccache.Cache)(nil)

// Config holds the cadence intervals.
type Config struct {
	Fast         time.Duration
	Medium       time.Duration
	Slow         time.Duration
	ActiveWindow time.Duration
}

// DefaultConfig returns the stock cadence.
func DefaultConfig() Config {
	return Config{
		Fast:         15 * time.Second,
		Medium:       60 * time.Second,
		Slow:         5 * time.Minute,
		ActiveWindow: 2 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Fast <= 0 {
		c.Fast = d.Fast
	}
	if c.Medium <= 0 {
		c.Medium = d.Medium
	}
	if c.Slow <= 0 {
		c.Slow = d.Slow
	}
	if c.ActiveWindow <= 0 {
		c.ActiveWindow = d.ActiveWindow
	}
	return c
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the clock used for timers.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithPollerMetrics sets the poller metrics recorder.
func WithPollerMetrics(m *telemetry.PollerMetrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// Scheduler is the adaptive poll loop.
type Scheduler struct {
	source   Source
	observer activity.Observer
	consumer Consumer
	cfg      Config
	clock    clock.Clock
	metrics  *telemetry.PollerMetrics

	mu         sync.Mutex
	running    bool
	started    bool
	gen        uint64
	lastPollAt time.Time
	stop       chan struct{}
	wake       chan struct{}
	pollNow    chan struct{}

	notifyMu sync.Mutex
	detector delta.Detector
	shown    bool
	last     Update
}

// New returns a stopped Scheduler.
func New(source Source, observer activity.Observer, consumer Consumer, cfg Config, opts ...Option) *Scheduler {
	if observer == nil {
		observer = activity.Static{}
	}
	if consumer == nil {
		consumer = func(Update) {}
	}
	s := &Scheduler{
		source:   source,
		observer: observer,
		consumer: consumer,
		cfg:      cfg.withDefaults(),
		clock:    clock.RealClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start polls once and begins scheduling. Calling Start on a running
// Scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	resumed := s.started
	s.running = true
	s.started = true
	s.gen++
	gen := s.gen
	stop := make(chan struct{})
	s.stop = stop
	s.wake = make(chan struct{}, 1)
	s.pollNow = make(chan struct{}, 1)
	wake, pollNow := s.wake, s.pollNow
	s.mu.Unlock()

	slog.Info("Poll scheduler started", "resumed", resumed)
	if resumed {
		s.notifyStatus(ReasonResumed)
	}
	go s.loop(ctx, gen, stop, wake, pollNow)
}

// Stop cancels every pending timer and marks the Scheduler paused.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.gen++
	close(s.stop)
	s.mu.Unlock()

	slog.Info("Poll scheduler stopped")
	s.notifyStatus(ReasonPaused)
}

// Paused reports whether the Scheduler is stopped.
func (s *Scheduler) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.running
}

// ForceUpdate fetches bypassing cadence and TTL, delivers the result and
// reschedules from now. It blocks until the fetch completes or ctx is done.
func (s *Scheduler) ForceUpdate(ctx context.Context) {
	s.mu.Lock()
	gen := s.gen
	s.lastPollAt = s.clock.Now()
	s.mu.Unlock()

	tier := s.SelectTier()
	s.metrics.RecordPoll(ctx, string(tier), true)
	slog.Debug("Forced poll", "tier", tier)
	res := s.source.GetData(ctx, true)
	s.alignPoll(gen, res)
	s.deliver(ctx, gen, res, tier)
	s.signal(func() chan struct{} { return s.wake })
}

// VisibilityChanged implements activity.Listener.
func (s *Scheduler) VisibilityChanged(visible bool) {
	if visible {
		s.signal(func() chan struct{} { return s.pollNow })
		return
	}
	s.signal(func() chan struct{} { return s.wake })
}

// ActivityChanged implements activity.Listener.
func (s *Scheduler) ActivityChanged() {
	s.signal(func() chan struct{} { return s.wake })
}

var _ activity.Listener = (*Scheduler)(nil)

// SelectTier evaluates the cadence rule against the current state.
func (s *Scheduler) SelectTier() Tier {
	switch {
	case !s.observer.IsVisible():
		return TierHidden
	case s.source.BackoffRemaining() > 0:
		return TierBackoff
	case s.source.HasPendingWork():
		return TierFast
	case s.observer.TimeSinceLastActivity() < s.cfg.ActiveWindow:
		return TierMedium
	default:
		return TierSlow
	}
}

// Interval returns the poll interval for tier, or false when the tier
// suspends polling.
func (c Config) Interval(tier Tier) (time.Duration, bool) {
	switch tier {
	case TierFast:
		return c.Fast, true
	case TierMedium:
		return c.Medium, true
	case TierSlow:
		return c.Slow, true
	default:
		return 0, false
	}
}

func (s *Scheduler) signal(pick func() chan struct{}) {
	s.mu.Lock()
	ch := pick()
	running := s.running
	s.mu.Unlock()
	if !running || ch == nil {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop(ctx context.Context, gen uint64, stop, wake, pollNow chan struct{}) {
	defer func() {
		s.mu.Lock()
		if s.gen == gen && s.running {
			s.running = false
			s.gen++
		}
		s.mu.Unlock()
	}()

	s.tick(ctx, gen)
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		default:
		}

		delay, armed := s.nextDelay()
		if armed && delay <= 0 {
			s.tick(ctx, gen)
			continue
		}
		var timer clock.Timer
		var fire <-chan time.Time
		if armed {
			timer = s.clock.NewTimer(delay)
			fire = timer.C()
		}

		select {
		case <-ctx.Done():
			stopTimer(timer)
			return
		case <-stop:
			stopTimer(timer)
			return
		case <-wake:
			stopTimer(timer)
		case <-pollNow:
			stopTimer(timer)
			s.tick(ctx, gen)
		case <-fire:
			// Re-evaluated at the top of the loop; a timer armed before a
			// reschedule may fire early.
		}
	}
}

// tick runs one scheduled poll unless the cadence rule suspends it.
func (s *Scheduler) tick(ctx context.Context, gen uint64) {
	tier := s.SelectTier()
	if tier == TierHidden || tier == TierBackoff {
		slog.Debug("Poll suspended", "tier", tier)
		return
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.lastPollAt = s.clock.Now()
	s.mu.Unlock()

	s.metrics.RecordPoll(ctx, string(tier), false)
	slog.Debug("Polling", "tier", tier)
	res := s.source.GetData(ctx, false)
	s.alignPoll(gen, res)
	s.deliver(ctx, gen, res, tier)
}

// alignPoll anchors the cadence on the timestamp of fresh network data, so
// the next poll is due no earlier than the cache entry's TTL.
func (s *Scheduler) alignPoll(gen uint64, res synccache.Result) {
	if res.Origin != synccache.OriginNetwork || res.IsStale {
		return
	}
	s.mu.Lock()
	if s.gen == gen && res.LastSyncAt.After(s.lastPollAt) {
		s.lastPollAt = res.LastSyncAt
	}
	s.mu.Unlock()
}

func (s *Scheduler) nextDelay() (time.Duration, bool) {
	tier := s.SelectTier()
	if tier == TierBackoff {
		return s.source.BackoffRemaining(), true
	}
	interval, ok := s.cfg.Interval(tier)
	if !ok {
		return 0, false
	}

	s.mu.Lock()
	last := s.lastPollAt
	s.mu.Unlock()
	delay := interval - s.clock.Since(last)
	if last.IsZero() || delay < 0 {
		delay = 0
	}
	return delay, true
}

func (s *Scheduler) deliver(ctx context.Context, gen uint64, res synccache.Result, tier Tier) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	current := s.gen == gen
	paused := !s.running
	s.mu.Unlock()
	if !current {
		slog.Debug("Discarding result from a stopped schedule", "last_sync", res.LastSyncAt)
		return
	}
	if s.shown && res.LastSyncAt.Before(s.last.LastSyncAt) {
		slog.Debug("Discarding older result", "last_sync", res.LastSyncAt, "shown", s.last.LastSyncAt)
		return
	}

	changed := s.detector.HasChanged(res.Rows)
	var reason Reason
	switch {
	case !s.shown:
		reason = ReasonInitial
	case changed:
		reason = ReasonChanged
	case res.IsStale != s.last.IsStale:
		reason = ReasonStale
	default:
		return
	}

	u := Update{
		Rows:       res.Rows,
		LastSyncAt: res.LastSyncAt,
		IsStale:    res.IsStale,
		Paused:     paused,
		Reason:     reason,
		Tier:       tier,
	}
	s.shown = true
	s.last = u
	s.emit(ctx, u)
}

func (s *Scheduler) notifyStatus(reason Reason) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	u := s.last
	if u.Rows == nil {
		u.Rows = []sheets.Row{}
	}
	u.Paused = reason == ReasonPaused
	u.Reason = reason
	if u.Paused {
		u.Tier = ""
	}
	if s.shown {
		s.last = u
	}
	s.emit(context.Background(), u)
}

func (s *Scheduler) emit(ctx context.Context, u Update) {
	s.metrics.RecordNotification(ctx, string(u.Reason))
	slog.Debug("Notifying consumer", "reason", u.Reason, "rows", len(u.Rows), "stale", u.IsStale, "paused", u.Paused)
	s.consumer(u)
}

func stopTimer(t clock.Timer) {
	if t != nil {
		t.Stop()
	}
}
