package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/five82/pulse/internal/activity"
	"github.com/five82/pulse/internal/config"
	"github.com/five82/pulse/internal/poller"
	"github.com/five82/pulse/internal/sheets"
	"github.com/five82/pulse/internal/snapshot"
	"github.com/five82/pulse/internal/synccache"
	"github.com/five82/pulse/internal/telemetry"
)

const closeTimeout = 5 * time.Second

// engine is the wired sync engine shared by the dashboard and the headless
// watcher.
type engine struct {
	store     snapshot.Store
	cache     *synccache.Cache
	scheduler *poller.Scheduler
	metrics   *telemetry.Provider
}

func newEngine(cfg config.Config, observer activity.Observer, consumer poller.Consumer) (*engine, error) {
	client, err := sheets.NewClient(sourceOptions(cfg.Source))
	if err != nil {
		return nil, fmt.Errorf("init source client: %w", err)
	}

	store, err := snapshot.Open(cfg.Store.Type, cfg.StorePath())
	if err != nil {
		return nil, fmt.Errorf("open snapshot store: %w", err)
	}

	provider, err := telemetry.Setup(cfg.MetricsAddr != "")
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	cacheMetrics, err := telemetry.NewCacheMetrics(provider.MeterProvider)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("init cache metrics: %w", err)
	}
	pollerMetrics, err := telemetry.NewPollerMetrics(provider.MeterProvider)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("init poller metrics: %w", err)
	}

	cache := synccache.New(client, store,
		synccache.WithTTLPolicy(ttlPolicy(cfg.Cache)),
		synccache.WithBackoffBase(cfg.Cache.BackoffBase.Std()),
		synccache.WithPendingRule(pendingRule(cfg.Pending)),
		synccache.WithCacheMetrics(cacheMetrics),
	)
	scheduler := poller.New(cache, observer, consumer, pollConfig(cfg.Poll),
		poller.WithPollerMetrics(pollerMetrics),
	)

	return &engine{
		store:     store,
		cache:     cache,
		scheduler: scheduler,
		metrics:   provider,
	}, nil
}

// serveMetrics adds the /metrics server to g when metrics are enabled.
func (e *engine) serveMetrics(ctx context.Context, g *errgroup.Group, addr string) {
	if e.metrics.Handler == nil || addr == "" {
		return
	}
	g.Go(func() error {
		return telemetry.Serve(ctx, addr, e.metrics.Handler)
	})
}

func (e *engine) close() error {
	e.scheduler.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	return errors.Join(
		e.metrics.Shutdown(ctx),
		e.store.Close(),
	)
}

func sourceOptions(src config.Source) sheets.Options {
	return sheets.Options{
		URL:          src.URL,
		APIKey:       src.APIKey,
		APIKeyHeader: src.APIKeyHeader,
		RowsPath:     src.RowsPath,
		Timeout:      src.Timeout.Std(),
		Columns: sheets.Columns{
			ID:            src.Columns.ID,
			Status:        src.Columns.Status,
			Approval:      src.Columns.Approval,
			LastProcessed: src.Columns.LastProcessed,
		},
	}
}

func ttlPolicy(c config.Cache) synccache.TTLPolicy {
	return synccache.TTLPolicy{
		Pending: c.TTLPending.Std(),
		Default: c.TTLDefault.Std(),
		Quota:   c.TTLQuota.Std(),
	}
}

func pollConfig(p config.Poll) poller.Config {
	return poller.Config{
		Fast:         p.Fast.Std(),
		Medium:       p.Medium.Std(),
		Slow:         p.Slow.Std(),
		ActiveWindow: p.ActiveWindow.Std(),
	}
}

func pendingRule(p config.Pending) sheets.PendingRule {
	return sheets.PendingRule{
		Statuses:       p.Statuses,
		ApprovedMarker: p.ApprovedMarker,
	}
}
