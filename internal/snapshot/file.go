package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"
)

// FileStore keeps the snapshot in a JSON file. Writes go to a temporary file
// that is renamed into place, and a sibling lock file serialises access
// between several pulse processes sharing one state directory.
type FileStore struct {
	mu   sync.Mutex
	path string
	lock *flock.Flock
}

// NewFileStore returns a FileStore writing to path. The parent directory is
// created on demand.
func NewFileStore(path string) (*FileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("snapshot path is required")
	}
	path = filepath.Clean(path)
	return &FileStore{
		path: path,
		lock: flock.New(path + ".lock"),
	}, nil
}

// Path returns the snapshot file location.
func (s *FileStore) Path() string {
	return s.path
}

// Save writes snap atomically.
func (s *FileStore) Save(_ context.Context, snap Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock snapshot: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o600); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot file. A missing file is not an error.
func (s *FileStore) Load(_ context.Context) (Snapshot, bool, error) {
	if _, err := os.Stat(filepath.Dir(s.path)); os.IsNotExist(err) {
		return Snapshot{}, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.lock.RLock(); err != nil {
		return Snapshot{}, false, fmt.Errorf("lock snapshot: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, fmt.Errorf("read snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, true, nil
}

// Close releases the lock file handle.
func (s *FileStore) Close() error {
	return s.lock.Close()
}
