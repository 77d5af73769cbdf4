// Package state provides thread-safe state management for the pulse dashboard.
//
// # Overview
//
// This package implements the consumer side of the sync engine: a small
// store that receives poller.Update notifications and hands immutable
// snapshots to the UI refresh loop.
//
// # Architecture
//
// The package follows a producer-consumer pattern:
//
//	Producer (Scheduler):          Consumer (UI):
//	┌──────────────────┐          ┌──────────────────┐
//	│ GetData()        │          │                  │
//	│      ↓           │          │                  │
//	│ delta filter     │          │                  │
//	│      ↓           │          │                  │
//	│ store.Notify()   │─────────→│ store.Snapshot() │
//	└──────────────────┘ (mutex)  │      ↓           │
//	                              │  render table    │
//	                              └──────────────────┘
//
// Notify takes the write lock, Snapshot the read lock. Both copy the row
// slice so neither side can mutate what the other holds.
//
// # Status Updates
//
// Pause and resume notifications only change the paused flag and cadence
// tier; the rows and sync time of the last data update are kept. Before the
// first data update the snapshot reports IndicatorWaiting.
//
// # Indicator
//
// Snapshot.Indicator maps the state onto the badge shown in the header:
//
//   - paused: the scheduler is stopped
//   - waiting: nothing has arrived yet
//   - offline: stale with no rows to show
//   - delayed: stale rows from memory or the persisted snapshot
//   - live: fresh rows
//
// Stale data is never expired. Age reports how old it is and StaleSince
// when the current stale run began, so the UI can say how long it has been
// delayed.
//
// # Testing Considerations
//
// The Store is safe to construct with zero value:
//
//	store := &state.Store{}  // Ready to use immediately
package state
