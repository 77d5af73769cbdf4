// Package ui provides the terminal dashboard for pulse.
//
// # Architecture Overview
//
// The dashboard is a Bubble Tea program. It never talks to the data source
// itself: the poll scheduler delivers updates into a state.Store and the
// model copies a snapshot out of that store on every refresh tick. The UI is
// therefore a thin consumer that renders rows and the sync indicator only.
//
// The terminal also acts as the presence substrate for the scheduler:
//
//   - Focus and blur reports (tea.WithReportFocus) drive Activity.SetVisible
//   - Every key press and mouse event calls Activity.Touch
//
// # Package Structure
//
//   - app.go: Model, Update/View, commands and Run
//   - header.go: status bar with the sync indicator, data age and counts
//   - table.go: rows table (bubbles/table), pending-first ordering, extra columns
//   - logs.go: engine log panel fed by logtail
//   - theme.go: lipgloss themes (Nightfox, Kanagawa, Slate)
//   - keys.go: key bindings and help (bubbles/key, bubbles/help)
//
// # Sync Indicator
//
// The badge in the header comes from state.Snapshot.Indicator:
//
//   - WAITING: no data has arrived yet
//   - LIVE: the last poll succeeded
//   - DELAYED: showing cached data after a failed or rate-limited poll
//   - OFFLINE: stale and nothing cached to show
//   - PAUSED: polling was stopped with p
//
// Next to it the header shows how long ago the data was synced and, when
// stale, for how long it has been stale. Stale data never expires; the age
// is always visible instead.
//
// # Key Bindings
//
//   - r: Refresh now (bypasses cadence and TTL)
//   - p: Pause or resume polling (remembered in prefs)
//   - l: Toggle the log panel; f cycles its minimum level
//   - t: Cycle theme
//   - j/k, g/G: Move through rows
//   - ?: Toggle full help
//   - q or Ctrl+C: Exit
package ui
