package state

import (
	"sync"
	"time"

	"github.com/five82/pulse/internal/poller"
	"github.com/five82/pulse/internal/sheets"
)

// Indicator is the sync status shown next to the rows.
type Indicator string

const (
	IndicatorWaiting Indicator = "waiting"
	IndicatorLive    Indicator = "live"
	IndicatorDelayed Indicator = "delayed"
	IndicatorOffline Indicator = "offline"
	IndicatorPaused  Indicator = "paused"
)

// Snapshot represents the latest data available to the UI.
type Snapshot struct {
	Rows       []sheets.Row
	LastSyncAt time.Time
	IsStale    bool
	Paused     bool
	Tier       poller.Tier
	Reason     poller.Reason
	HasData    bool      // at least one data update has arrived
	ReceivedAt time.Time // when the last update of any kind arrived
	StaleSince time.Time // start of the current stale run, zero when fresh
	Updates    int
}

// IsOffline returns true when the engine is stale and has nothing to show.
func (s Snapshot) IsOffline() bool {
	return s.HasData && s.IsStale && (len(s.Rows) == 0 || s.LastSyncAt.IsZero())
}

// Indicator derives the sync status badge.
func (s Snapshot) Indicator() Indicator {
	switch {
	case s.Paused:
		return IndicatorPaused
	case !s.HasData:
		return IndicatorWaiting
	case s.IsOffline():
		return IndicatorOffline
	case s.IsStale:
		return IndicatorDelayed
	default:
		return IndicatorLive
	}
}

// Age returns how old the shown data is at now, or 0 when it was never synced.
func (s Snapshot) Age(now time.Time) time.Duration {
	if s.LastSyncAt.IsZero() {
		return 0
	}
	age := now.Sub(s.LastSyncAt)
	if age < 0 {
		return 0
	}
	return age
}

// Store coordinates concurrent updates to the snapshot.
type Store struct {
	mu       sync.RWMutex
	snapshot Snapshot
}

// Notify records an update from the poll scheduler. It has the
// poller.Consumer signature.
func (s *Store) Notify(u poller.Update) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	status := u.Reason == poller.ReasonPaused || u.Reason == poller.ReasonResumed
	if !status || s.snapshot.HasData {
		s.snapshot.Rows = sheets.CloneRows(u.Rows)
		s.snapshot.LastSyncAt = u.LastSyncAt
		s.snapshot.IsStale = u.IsStale
	}
	if !status {
		s.snapshot.HasData = true
	}
	if s.snapshot.IsStale {
		if s.snapshot.StaleSince.IsZero() {
			s.snapshot.StaleSince = now
		}
	} else {
		s.snapshot.StaleSince = time.Time{}
	}
	s.snapshot.Paused = u.Paused
	s.snapshot.Tier = u.Tier
	s.snapshot.Reason = u.Reason
	s.snapshot.ReceivedAt = now
	s.snapshot.Updates++
}

// Snapshot returns a copy of the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.snapshot
	snap.Rows = sheets.CloneRows(s.snapshot.Rows)
	return snap
}
