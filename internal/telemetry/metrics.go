// Package telemetry provides OpenTelemetry instrumentation for the sync engine.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// CacheMeterName is the name used for the sync cache meter
	CacheMeterName = "github.com/five82/pulse/synccache"

	// PollerMeterName is the name used for the poll scheduler meter
	PollerMeterName = "github.com/five82/pulse/poller"
)

// Fetch outcomes recorded by RecordFetch.
const (
	OutcomeSuccess = "success"
	OutcomeQuota   = "quota"
	OutcomeError   = "error"
)

// CacheMetrics holds the OpenTelemetry instruments for the sync cache
type CacheMetrics struct {
	fetches       metric.Int64Counter
	fetchDuration metric.Float64Histogram
	served        metric.Int64Counter
	multiplier    metric.Int64Gauge
	rows          metric.Int64Gauge
}

// NewCacheMetrics creates a new CacheMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewCacheMetrics(provider metric.MeterProvider) (*CacheMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(CacheMeterName)

	fetches, err := meter.Int64Counter(
		"pulse_fetches_total",
		metric.WithDescription("Upstream fetches by outcome"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return nil, err
	}

	fetchDuration, err := meter.Float64Histogram(
		"pulse_fetch_duration_seconds",
		metric.WithDescription("Duration of upstream fetches in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30),
	)
	if err != nil {
		return nil, err
	}

	served, err := meter.Int64Counter(
		"pulse_cache_reads_total",
		metric.WithDescription("Cache reads by the origin of the returned data"),
		metric.WithUnit("{read}"),
	)
	if err != nil {
		return nil, err
	}

	multiplier, err := meter.Int64Gauge(
		"pulse_backoff_multiplier",
		metric.WithDescription("Current quota backoff multiplier"),
	)
	if err != nil {
		return nil, err
	}

	rows, err := meter.Int64Gauge(
		"pulse_rows",
		metric.WithDescription("Rows in the last successful fetch"),
		metric.WithUnit("{row}"),
	)
	if err != nil {
		return nil, err
	}

	return &CacheMetrics{
		fetches:       fetches,
		fetchDuration: fetchDuration,
		served:        served,
		multiplier:    multiplier,
		rows:          rows,
	}, nil
}

// RecordFetch records one completed upstream fetch
func (m *CacheMetrics) RecordFetch(ctx context.Context, outcome string, duration time.Duration) {
	if m == nil || m.fetches == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.fetches.Add(ctx, 1, attrs)
	m.fetchDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordRead records which tier of the stale resolution chain served a read
func (m *CacheMetrics) RecordRead(ctx context.Context, origin string, stale bool) {
	if m == nil || m.served == nil {
		return
	}
	m.served.Add(ctx, 1, metric.WithAttributes(
		attribute.String("origin", origin),
		attribute.Bool("stale", stale),
	))
}

// RecordBackoff records the backoff multiplier after a fetch completes
func (m *CacheMetrics) RecordBackoff(ctx context.Context, multiplier int, quotaExceeded bool) {
	if m == nil || m.multiplier == nil {
		return
	}
	m.multiplier.Record(ctx, int64(multiplier), metric.WithAttributes(attribute.Bool("quota_exceeded", quotaExceeded)))
}

// RecordRows records the size of the latest successful fetch
func (m *CacheMetrics) RecordRows(ctx context.Context, total, pending int) {
	if m == nil || m.rows == nil {
		return
	}
	m.rows.Record(ctx, int64(total), metric.WithAttributes(attribute.String("kind", "total")))
	m.rows.Record(ctx, int64(pending), metric.WithAttributes(attribute.String("kind", "pending")))
}

// PollerMetrics holds the OpenTelemetry instruments for the poll scheduler
type PollerMetrics struct {
	polls         metric.Int64Counter
	notifications metric.Int64Counter
}

// NewPollerMetrics creates a new PollerMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewPollerMetrics(provider metric.MeterProvider) (*PollerMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(PollerMeterName)

	polls, err := meter.Int64Counter(
		"pulse_polls_total",
		metric.WithDescription("Polls issued by the scheduler by cadence tier"),
		metric.WithUnit("{poll}"),
	)
	if err != nil {
		return nil, err
	}

	notifications, err := meter.Int64Counter(
		"pulse_notifications_total",
		metric.WithDescription("Consumer notifications by reason"),
		metric.WithUnit("{notification}"),
	)
	if err != nil {
		return nil, err
	}

	return &PollerMetrics{
		polls:         polls,
		notifications: notifications,
	}, nil
}

// RecordPoll records one poll and the cadence tier that scheduled it
func (m *PollerMetrics) RecordPoll(ctx context.Context, tier string, forced bool) {
	if m == nil || m.polls == nil {
		return
	}
	m.polls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tier", tier),
		attribute.Bool("forced", forced),
	))
}

// RecordNotification records one consumer notification
func (m *PollerMetrics) RecordNotification(ctx context.Context, reason string) {
	if m == nil || m.notifications == nil {
		return
	}
	m.notifications.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
