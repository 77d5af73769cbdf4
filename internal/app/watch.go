package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/five82/pulse/internal/activity"
	"github.com/five82/pulse/internal/config"
	"github.com/five82/pulse/internal/logging"
	"github.com/five82/pulse/internal/poller"
	"github.com/five82/pulse/internal/sheets"
	"github.com/five82/pulse/internal/snapshot"
)

// ErrNoSnapshot is returned by PrintSnapshot when nothing has been persisted.
var ErrNoSnapshot = errors.New("no snapshot has been saved yet")

// Watch runs the engine without a terminal UI and writes every update as one
// JSON line to w. The headless observer is always visible and never active,
// so the cadence only speeds up while rows are pending.
func Watch(ctx context.Context, opts Options, w io.Writer) error {
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}

	closeLog, err := logging.Setup(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
		Writer: opts.LogWriter,
	})
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer func() { _ = closeLog() }()

	enc := json.NewEncoder(w)
	consumer := func(u poller.Update) {
		if err := enc.Encode(u); err != nil {
			slog.Warn("Failed to write update", "error", err)
		}
	}

	eng, err := newEngine(cfg, activity.Static{}, consumer)
	if err != nil {
		return err
	}
	defer func() {
		if err := eng.close(); err != nil {
			slog.Warn("Shutdown incomplete", "error", err)
		}
	}()

	if opts.Once {
		eng.scheduler.ForceUpdate(ctx)
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	eng.serveMetrics(gctx, g, cfg.MetricsAddr)
	eng.scheduler.Start(gctx)
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	return g.Wait()
}

type snapshotReport struct {
	Store     string       `json:"store"`
	Path      string       `json:"path"`
	FetchedAt time.Time    `json:"fetchedAt"`
	Age       string       `json:"age"`
	RowCount  int          `json:"rowCount"`
	Pending   int          `json:"pending"`
	Rows      []sheets.Row `json:"rows"`
}

// PrintSnapshot writes the persisted snapshot as indented JSON. It does not
// contact the data source.
func PrintSnapshot(ctx context.Context, opts Options, w io.Writer) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := snapshot.Open(cfg.Store.Type, cfg.StorePath())
	if err != nil {
		return fmt.Errorf("open snapshot store: %w", err)
	}
	defer func() { _ = store.Close() }()

	snap, ok, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if !ok {
		return ErrNoSnapshot
	}

	rows := snap.Rows
	if rows == nil {
		rows = []sheets.Row{}
	}
	report := snapshotReport{
		Store:     cfg.Store.Type,
		Path:      cfg.StorePath(),
		FetchedAt: snap.FetchedAt,
		Age:       time.Since(snap.FetchedAt).Round(time.Second).String(),
		RowCount:  len(rows),
		Pending:   sheets.CountPending(rows, pendingRule(cfg.Pending)),
		Rows:      rows,
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}
