// Package poller decides when the sync cache is asked for fresh data and
// forwards meaningful results to the dashboard.
//
// # Cadence
//
// The cadence tier is re-evaluated before every scheduled poll and whenever
// visibility or activity changes:
//
//   - Hidden: no timer is armed, nothing polls
//   - Backoff: the timer waits out the remaining quota backoff
//   - Fast: the last known rows contain pending work
//   - Medium: the user was active within Config.ActiveWindow
//   - Slow: idle with no pending work
//
// Timers are anchored to the last poll, so a stream of activity updates
// changes the interval without postponing the next poll indefinitely.
//
// # Lifecycle
//
// Start polls once immediately and then runs the cadence loop in its own
// goroutine. Stop bumps a generation counter and closes the loop. Any poll
// or result that belongs to an older generation is discarded, so nothing
// scheduled before Stop reaches the consumer after it. A fetch that is
// already running completes and is cached by the sync cache but is not
// delivered.
//
// ForceUpdate bypasses the cadence and the cache TTL, delivers the result
// and re-anchors the schedule at that moment.
//
// # Notifications
//
// The consumer receives an Update only when:
//
//   - It is the first result shown
//   - The delta detector reports changed rows
//   - The stale flag flips with unchanged rows
//   - The scheduler is paused or resumed
//
// An update is never delivered when its LastSyncAt is older than the one
// already shown.
package poller
