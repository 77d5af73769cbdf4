// Package prefs keeps the dashboard toggles that survive a restart in
// $XDG_CONFIG_HOME/pulse/prefs.toml.
//
// A missing, unreadable or malformed file yields Default so the dashboard
// always starts. Writes go through a temp file and a rename.
package prefs

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/five82/pulse/internal/config"
)

// DefaultTheme is shown until the user picks another one.
const DefaultTheme = "Nightfox"

// Prefs are the remembered dashboard toggles.
type Prefs struct {
	Theme       string `toml:"theme"`
	StartPaused bool   `toml:"start_paused"`
	ShowLog     bool   `toml:"show_log"`
}

// Default returns the preferences of a first launch.
func Default() Prefs {
	return Prefs{Theme: DefaultTheme}
}

// DefaultPath returns $XDG_CONFIG_HOME/pulse/prefs.toml.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, "pulse", "prefs.toml")
}

// Load reads path, or DefaultPath when path is empty. The only error is a
// path that cannot be resolved; the returned Prefs are usable either way.
func Load(path string) (Prefs, error) {
	resolved, err := resolve(path)
	if err != nil {
		return Default(), err
	}

	data, err := os.ReadFile(resolved)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		slog.Debug("Ignoring unreadable preferences", "path", resolved, "error", err)
		return Default(), nil
	}

	p := Default()
	if err := toml.Unmarshal(data, &p); err != nil {
		slog.Debug("Ignoring malformed preferences", "path", resolved, "error", err)
		return Default(), nil
	}
	p.Theme = strings.TrimSpace(p.Theme)
	if p.Theme == "" {
		p.Theme = DefaultTheme
	}
	return p, nil
}

// Save replaces the file at path with p.
func Save(path string, p Prefs) error {
	resolved, err := resolve(path)
	if err != nil {
		return err
	}
	data, err := toml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode prefs: %w", err)
	}

	dir := filepath.Dir(resolved)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".prefs-*.toml")
	if err != nil {
		return fmt.Errorf("create temp prefs: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write prefs: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write prefs: %w", err)
	}
	if err := os.Rename(tmpPath, resolved); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace prefs: %w", err)
	}
	return nil
}

// Update applies fn to the stored preferences and saves the result, keeping
// fields another pulse process changed in the meantime.
func Update(path string, fn func(*Prefs)) (Prefs, error) {
	p, err := Load(path)
	if err != nil {
		return p, err
	}
	fn(&p)
	return p, Save(path, p)
}

func resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultPath(), nil
	}
	resolved, err := config.ExpandPath(path)
	if err != nil {
		return "", fmt.Errorf("resolve prefs path: %w", err)
	}
	return resolved, nil
}
