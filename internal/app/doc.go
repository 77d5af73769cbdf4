// Package app is the composition root for pulse.
//
// # Overview
//
// The app package wires configuration, logging, the data source, the snapshot
// store, metrics, the sync cache and the poll scheduler together, then hands
// control to either the terminal dashboard or the headless watcher.
//
// # Entry Points
//
//   - Run: the dashboard. Logs go to a file so the terminal stays clean, the
//     activity tracker is fed by terminal focus and input, and updates land
//     in a state.Store the UI reads every refresh tick.
//   - Watch: headless. Logs go to stderr, the observer is activity.Static and
//     every update is written to stdout as one JSON line.
//   - PrintSnapshot: prints the persisted snapshot without touching the
//     network. Useful to check what the dashboard will show when offline.
//
// # Data Flow
//
//	┌──────────────┐
//	│   Run()      │
//	└──────┬───────┘
//	       ├─────> config.Load()        TOML + PULSE_* env
//	       ├─────> logging.Setup()      slog to $XDG_STATE_HOME/pulse/pulse.log
//	       ├─────> newEngine()
//	       │        ├─> sheets.NewClient()
//	       │        ├─> snapshot.Open()
//	       │        ├─> telemetry.Setup()
//	       │        ├─> synccache.New()
//	       │        └─> poller.New()
//	       ├─────> errgroup: telemetry.Serve() (when metrics_addr is set)
//	       └─────> errgroup: ui.Run()            (blocks until quit)
//
// # Error Handling
//
// Fatal errors returned from Run and Watch:
//   - Configuration unreadable or invalid (missing source.url, bad durations)
//   - Snapshot database cannot be opened
//   - Metrics listener cannot bind
//
// Everything that happens while polling (network failures, quota errors,
// persistence failures) is absorbed by the sync cache and only logged.
package app
