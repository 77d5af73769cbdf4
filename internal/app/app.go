package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/five82/pulse/internal/activity"
	"github.com/five82/pulse/internal/config"
	"github.com/five82/pulse/internal/logging"
	"github.com/five82/pulse/internal/prefs"
	"github.com/five82/pulse/internal/state"
	"github.com/five82/pulse/internal/ui"
)

// Options configure the pulse application.
type Options struct {
	ConfigPath  string
	PrefsPath   string // empty uses $XDG_CONFIG_HOME/pulse/prefs.toml
	StartPaused bool   // dashboard starts without polling, regardless of prefs
	Once        bool   // Watch fetches once and exits
	LogWriter   io.Writer
}

// Run boots the dashboard until the user quits or the context is cancelled.
func Run(ctx context.Context, opts Options) error {
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}

	closeLog, err := logging.Setup(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.LogPath(),
	})
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer func() { _ = closeLog() }()

	prefsPath := opts.PrefsPath
	if prefsPath == "" {
		prefsPath = prefs.DefaultPath()
	}
	userPrefs, err := prefs.Load(prefsPath)
	if err != nil {
		slog.Warn("Using default preferences", "error", err)
	}

	store := &state.Store{}
	tracker := activity.NewTracker(clock.RealClock{}, cfg.Poll.Debounce.Std())
	defer tracker.Close()

	eng, err := newEngine(cfg, tracker, store.Notify)
	if err != nil {
		return err
	}
	defer func() {
		if err := eng.close(); err != nil {
			slog.Warn("Shutdown incomplete", "error", err)
		}
	}()
	tracker.Subscribe(eng.scheduler)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	eng.serveMetrics(gctx, g, cfg.MetricsAddr)

	if opts.StartPaused || userPrefs.StartPaused {
		slog.Info("Starting paused")
	} else {
		eng.scheduler.Start(gctx)
	}

	g.Go(func() error {
		defer cancel()
		return ui.Run(ui.Options{
			Context:     gctx,
			Store:       store,
			Controller:  eng.scheduler,
			Activity:    tracker,
			PendingRule: pendingRule(cfg.Pending),
			Columns:     cfg.Dashboard.Columns,
			LogPath:     cfg.LogPath(),
			Refresh:     cfg.Dashboard.Refresh.Std(),
			Prefs:       userPrefs,
			PrefsPath:   prefsPath,
		})
	})
	return g.Wait()
}

func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
