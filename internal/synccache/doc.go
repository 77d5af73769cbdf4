// Package synccache owns the last known good row set and decides when the
// upstream proxy is actually called.
//
// # Overview
//
// Cache.GetData answers every read from a single critical section that
// guards three pieces of state: the live Entry, the BackoffState and the
// in-flight fetch marker. A read is resolved in this order:
//
//  1. A fresh Entry (younger than the current TTL) is returned as is
//  2. A fetch already in flight is awaited, never duplicated
//  3. While quota backoff is active the network is skipped and stale data
//     is returned
//  4. Otherwise a new fetch is started
//
// Forced reads skip steps 1 and 3 but still share an in-flight fetch.
//
// # TTL Policy
//
// The freshness window depends on the data and the upstream:
//
//   - Quota backoff active: TTLPolicy.Quota (long, to stay off a throttled endpoint)
//   - Entry holds pending rows: TTLPolicy.Pending (short, to catch progress)
//   - Otherwise: TTLPolicy.Default
//
// # Failure Handling
//
// GetData never returns an error. Failed fetches resolve to stale data from
// memory, then from the persisted snapshot, then to an empty row set, all
// with IsStale set. Quota failures double the backoff multiplier up to
// MaxMultiplier; transient failures only record the attempt time. Any
// success resets the multiplier to 1 and mirrors the rows to the snapshot
// store. Snapshot store failures are logged and ignored.
//
// # Concurrency
//
// The fetch itself runs in its own goroutine with a context detached from
// the caller, so a caller that gives up (for example because the scheduler
// was stopped) gets stale data immediately while the fetch still completes
// and lands in the cache.
package synccache
