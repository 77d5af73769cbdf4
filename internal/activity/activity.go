// Package activity tracks whether the dashboard is visible and when the user
// last interacted with it.
package activity

import (
	"math"
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// DefaultDebounce coalesces bursts of input events into one update.
const DefaultDebounce = time.Second

// Observer is the read side consumed by the poll scheduler.
type Observer interface {
	IsVisible() bool
	TimeSinceLastActivity() time.Duration
}

// Listener is told about visibility flips and debounced activity.
type Listener interface {
	VisibilityChanged(visible bool)
	ActivityChanged()
}

// Tracker records raw host signals. Touch may be called for every key press
// or mouse event; listeners see at most one ActivityChanged per debounce
// window.
type Tracker struct {
	clock    clock.Clock
	debounce time.Duration

	mu           sync.Mutex
	visible      bool
	lastActivity time.Time
	pendingAt    time.Time
	pending      bool
	listeners    []Listener
	closed       bool
	stop         chan struct{}
}

// NewTracker returns a visible Tracker whose last activity is now.
func NewTracker(clk clock.Clock, debounce time.Duration) *Tracker {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Tracker{
		clock:        clk,
		debounce:     debounce,
		visible:      true,
		lastActivity: clk.Now(),
		stop:         make(chan struct{}),
	}
}

// Subscribe registers l for future notifications.
func (t *Tracker) Subscribe(l Listener) {
	if l == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, l)
}

// Touch records one user interaction.
func (t *Tracker) Touch() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.pendingAt = t.clock.Now()
	if t.pending {
		t.mu.Unlock()
		return
	}
	t.pending = true
	timer := t.clock.NewTimer(t.debounce)
	t.mu.Unlock()

	go t.flush(timer)
}

func (t *Tracker) flush(timer clock.Timer) {
	select {
	case <-timer.C():
	case <-t.stop:
		timer.Stop()
		return
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.lastActivity = t.pendingAt
	t.pending = false
	listeners := append([]Listener(nil), t.listeners...)
	t.mu.Unlock()

	for _, l := range listeners {
		l.ActivityChanged()
	}
}

// SetVisible records a visibility change. Listeners are called synchronously
// and only when the value actually flips.
func (t *Tracker) SetVisible(visible bool) {
	t.mu.Lock()
	if t.closed || t.visible == visible {
		t.mu.Unlock()
		return
	}
	t.visible = visible
	listeners := append([]Listener(nil), t.listeners...)
	t.mu.Unlock()

	for _, l := range listeners {
		l.VisibilityChanged(visible)
	}
}

// IsVisible reports the last recorded visibility.
func (t *Tracker) IsVisible() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.visible
}

// TimeSinceLastActivity returns the time since the last debounced activity.
func (t *Tracker) TimeSinceLastActivity() time.Duration {
	t.mu.Lock()
	last := t.lastActivity
	t.mu.Unlock()
	return t.clock.Since(last)
}

// Close drops pending debounce timers. Later calls are ignored.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	close(t.stop)
}

// Static is an Observer with fixed answers for hosts that have no notion of
// focus or input, such as the headless watcher. The zero value is visible
// and has never seen activity.
type Static struct {
	Hidden bool
	Idle   time.Duration
}

// IsVisible implements Observer.
func (s Static) IsVisible() bool { return !s.Hidden }

// TimeSinceLastActivity implements Observer.
func (s Static) TimeSinceLastActivity() time.Duration {
	if s.Idle <= 0 {
		return time.Duration(math.MaxInt64)
	}
	return s.Idle
}

var (
	_ Observer = (*Tracker)(nil)
	_ Observer = Static{}
)
