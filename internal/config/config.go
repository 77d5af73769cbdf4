package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/caarlos0/env/v11"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/five82/pulse/internal/snapshot"
)

const appName = "pulse"

// Duration is a time.Duration written as a Go duration string ("15s", "5m").
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the complete pulse configuration.
type Config struct {
	Source      Source    `toml:"source"`
	Pending     Pending   `toml:"pending"`
	Cache       Cache     `toml:"cache"`
	Poll        Poll      `toml:"poll"`
	Store       Store     `toml:"store"`
	Log         Log       `toml:"log"`
	Dashboard   Dashboard `toml:"dashboard"`
	MetricsAddr string    `toml:"metrics_addr" env:"PULSE_METRICS_ADDR"`
}

// Source describes the spreadsheet proxy.
type Source struct {
	URL          string   `toml:"url" env:"PULSE_SOURCE_URL"`
	APIKey       string   `toml:"api_key" env:"PULSE_API_KEY"`
	APIKeyHeader string   `toml:"api_key_header"`
	RowsPath     string   `toml:"rows_path"`
	Timeout      Duration `toml:"timeout"`
	Columns      Columns  `toml:"columns"`
}

// Columns names the interpreted upstream columns.
type Columns struct {
	ID            string `toml:"id"`
	Status        string `toml:"status"`
	Approval      string `toml:"approval"`
	LastProcessed string `toml:"last_processed"`
}

// Pending decides which rows count as unfinished work.
type Pending struct {
	Statuses       []string `toml:"statuses"`
	ApprovedMarker string   `toml:"approved_marker"`
}

// Cache holds the freshness and backoff settings.
type Cache struct {
	TTLPending  Duration `toml:"ttl_pending"`
	TTLDefault  Duration `toml:"ttl_default"`
	TTLQuota    Duration `toml:"ttl_quota"`
	BackoffBase Duration `toml:"backoff_base"`
}

// Poll holds the cadence settings.
type Poll struct {
	Fast         Duration `toml:"fast"`
	Medium       Duration `toml:"medium"`
	Slow         Duration `toml:"slow"`
	ActiveWindow Duration `toml:"active_window"`
	Debounce     Duration `toml:"debounce"`
}

// Store selects the snapshot store.
type Store struct {
	Type string `toml:"type" env:"PULSE_STORE_TYPE"`
	Path string `toml:"path" env:"PULSE_STORE_PATH"`
}

// Log configures the engine log.
type Log struct {
	Level  string `toml:"level" env:"PULSE_LOG_LEVEL"`
	Format string `toml:"format" env:"PULSE_LOG_FORMAT"`
	File   string `toml:"file" env:"PULSE_LOG_FILE"`
}

// Dashboard tunes the terminal UI.
type Dashboard struct {
	Columns []string `toml:"columns"` // header name or gjson path, shown on wide terminals
	Refresh Duration `toml:"refresh"`
}

// Default returns the built-in configuration. The source URL has no default.
func Default() Config {
	return Config{
		Source: Source{
			APIKeyHeader: "X-API-Key",
			RowsPath:     "rows",
			Timeout:      Duration(20 * time.Second),
			Columns: Columns{
				ID:            "id",
				Status:        "status",
				Approval:      "approval",
				LastProcessed: "lastProcessed",
			},
		},
		Pending: Pending{
			Statuses:       []string{"pending", "processing", "queued", "in progress"},
			ApprovedMarker: "approved",
		},
		Cache: Cache{
			TTLPending:  Duration(15 * time.Second),
			TTLDefault:  Duration(60 * time.Second),
			TTLQuota:    Duration(5 * time.Minute),
			BackoffBase: Duration(30 * time.Second),
		},
		Poll: Poll{
			Fast:         Duration(15 * time.Second),
			Medium:       Duration(60 * time.Second),
			Slow:         Duration(5 * time.Minute),
			ActiveWindow: Duration(2 * time.Minute),
			Debounce:     Duration(time.Second),
		},
		Store:     Store{Type: snapshot.KindFile},
		Log:       Log{Level: "info", Format: "text"},
		Dashboard: Dashboard{Refresh: Duration(time.Second)},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/pulse/config.toml.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, appName, "config.toml")
}

// DefaultStateDir returns $XDG_STATE_HOME/pulse.
func DefaultStateDir() string {
	return filepath.Join(xdg.StateHome, appName)
}

// Load reads the config file, falling back to defaults when it is missing,
// then applies PULSE_* environment overrides.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config

	file, err := os.Open(resolved)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("open config: %w", err)
	default:
		defer file.Close()
		bytes, err := io.ReadAll(file)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(bytes, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// Validate reports the first setting that would keep the engine from running.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Source.URL) == "" {
		return fmt.Errorf("source.url is required (or set PULSE_SOURCE_URL)")
	}
	switch c.Store.Type {
	case snapshot.KindFile, snapshot.KindSQLite, snapshot.KindNone:
	default:
		return fmt.Errorf("store.type %q is not one of file, sqlite, none", c.Store.Type)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q is not one of text, json", c.Log.Format)
	}

	durations := []struct {
		name  string
		value Duration
	}{
		{"source.timeout", c.Source.Timeout},
		{"cache.ttl_pending", c.Cache.TTLPending},
		{"cache.ttl_default", c.Cache.TTLDefault},
		{"cache.ttl_quota", c.Cache.TTLQuota},
		{"cache.backoff_base", c.Cache.BackoffBase},
		{"poll.fast", c.Poll.Fast},
		{"poll.medium", c.Poll.Medium},
		{"poll.slow", c.Poll.Slow},
		{"poll.active_window", c.Poll.ActiveWindow},
		{"poll.debounce", c.Poll.Debounce},
		{"dashboard.refresh", c.Dashboard.Refresh},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.value.Std())
		}
	}
	return nil
}

// StorePath returns the snapshot location, defaulting into the state dir.
func (c Config) StorePath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	name := "snapshot.json"
	if c.Store.Type == snapshot.KindSQLite {
		name = "pulse.db"
	}
	return filepath.Join(DefaultStateDir(), name)
}

// LogPath returns the engine log file used by the dashboard.
func (c Config) LogPath() string {
	if c.Log.File != "" {
		return c.Log.File
	}
	return filepath.Join(DefaultStateDir(), "pulse.log")
}

// applyDefaults trims every value and fills empty ones from Default.
func (c *Config) applyDefaults() {
	defaults := Default()

	c.Source.URL = strings.TrimSpace(c.Source.URL)
	c.Source.APIKey = strings.TrimSpace(c.Source.APIKey)
	c.Source.APIKeyHeader = orDefault(c.Source.APIKeyHeader, defaults.Source.APIKeyHeader)
	c.Source.RowsPath = orDefault(c.Source.RowsPath, defaults.Source.RowsPath)
	c.Source.Columns.ID = orDefault(c.Source.Columns.ID, defaults.Source.Columns.ID)
	c.Source.Columns.Status = orDefault(c.Source.Columns.Status, defaults.Source.Columns.Status)
	c.Source.Columns.Approval = orDefault(c.Source.Columns.Approval, defaults.Source.Columns.Approval)
	c.Source.Columns.LastProcessed = orDefault(c.Source.Columns.LastProcessed, defaults.Source.Columns.LastProcessed)

	c.Source.Timeout = durationOr(c.Source.Timeout, defaults.Source.Timeout)

	c.Pending.ApprovedMarker = orDefault(c.Pending.ApprovedMarker, defaults.Pending.ApprovedMarker)
	var statuses []string
	for _, s := range c.Pending.Statuses {
		if s = strings.TrimSpace(s); s != "" {
			statuses = append(statuses, s)
		}
	}
	if len(statuses) == 0 {
		statuses = defaults.Pending.Statuses
	}
	c.Pending.Statuses = statuses

	c.Cache.TTLPending = durationOr(c.Cache.TTLPending, defaults.Cache.TTLPending)
	c.Cache.TTLDefault = durationOr(c.Cache.TTLDefault, defaults.Cache.TTLDefault)
	c.Cache.TTLQuota = durationOr(c.Cache.TTLQuota, defaults.Cache.TTLQuota)
	c.Cache.BackoffBase = durationOr(c.Cache.BackoffBase, defaults.Cache.BackoffBase)
	c.Poll.Fast = durationOr(c.Poll.Fast, defaults.Poll.Fast)
	c.Poll.Medium = durationOr(c.Poll.Medium, defaults.Poll.Medium)
	c.Poll.Slow = durationOr(c.Poll.Slow, defaults.Poll.Slow)
	c.Poll.ActiveWindow = durationOr(c.Poll.ActiveWindow, defaults.Poll.ActiveWindow)
	c.Poll.Debounce = durationOr(c.Poll.Debounce, defaults.Poll.Debounce)

	c.Store.Type = strings.ToLower(orDefault(c.Store.Type, defaults.Store.Type))
	if c.Store.Path = strings.TrimSpace(c.Store.Path); c.Store.Path != "" {
		c.Store.Path = mustExpand(c.Store.Path)
	}
	c.Log.Level = strings.ToLower(orDefault(c.Log.Level, defaults.Log.Level))
	c.Log.Format = strings.ToLower(orDefault(c.Log.Format, defaults.Log.Format))
	if c.Log.File = strings.TrimSpace(c.Log.File); c.Log.File != "" {
		c.Log.File = mustExpand(c.Log.File)
	}
	c.Dashboard.Refresh = durationOr(c.Dashboard.Refresh, defaults.Dashboard.Refresh)
	var columns []string
	for _, col := range c.Dashboard.Columns {
		if col = strings.TrimSpace(col); col != "" {
			columns = append(columns, col)
		}
	}
	c.Dashboard.Columns = columns
	c.MetricsAddr = strings.TrimSpace(c.MetricsAddr)
}

func orDefault(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

func durationOr(value, fallback Duration) Duration {
	if value == 0 {
		return fallback
	}
	return value
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultPath(), nil
	}
	return ExpandPath(path)
}

func mustExpand(path string) string {
	expanded, err := ExpandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

// ExpandPath resolves a leading ~ and returns an absolute path.
func ExpandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
