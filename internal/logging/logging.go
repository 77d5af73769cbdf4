// Package logging installs the process-wide slog logger.
//
// The dashboard writes to a log file so the terminal stays clean; headless
// commands write to stderr. Either way packages log through the package-level
// slog functions after Setup has run.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Options select the destination and encoding of the engine log.
type Options struct {
	Level  string
	Format string // "text" or "json"
	File   string // empty logs to Writer
	Writer io.Writer
}

// ParseLevel maps debug|info|warn|error to a slog.Level. Empty means info.
func ParseLevel(value string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", value)
	}
}

// New builds a logger without installing it. The returned close function
// releases the log file, if one was opened.
func New(opts Options) (*slog.Logger, func() error, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	out := opts.Writer
	if out == nil {
		out = os.Stderr
	}
	closeFn := func() error { return nil }
	if path := strings.TrimSpace(opts.File); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = file
		closeFn = file.Close
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "json":
		handler = slog.NewJSONHandler(out, handlerOpts)
	case "text", "":
		handler = slog.NewTextHandler(out, handlerOpts)
	default:
		_ = closeFn()
		return nil, nil, fmt.Errorf("unknown log format %q", opts.Format)
	}
	return slog.New(handler), closeFn, nil
}

// Setup builds the logger described by opts and makes it the default.
func Setup(opts Options) (func() error, error) {
	logger, closeFn, err := New(opts)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return closeFn, nil
}
