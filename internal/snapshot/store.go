// Package snapshot persists the last successfully fetched row set so the
// dashboard has something to show after a restart while the upstream is
// unreachable.
//
// Persistence is best effort. Callers log failures from Save and Load and
// carry on as if the call had not happened.
package snapshot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/five82/pulse/internal/sheets"
)

// Snapshot is the persisted copy of one successful fetch.
type Snapshot struct {
	Rows      []sheets.Row `json:"rows"`
	FetchedAt time.Time    `json:"fetchedAt"`
}

// Store saves and loads the single persisted snapshot.
type Store interface {
	// Save replaces the stored snapshot.
	Save(ctx context.Context, snap Snapshot) error
	// Load returns the stored snapshot. ok is false when nothing has been
	// saved yet.
	Load(ctx context.Context) (snap Snapshot, ok bool, err error)
	Close() error
}

// Store kinds accepted by Open.
const (
	KindFile   = "file"
	KindSQLite = "sqlite"
	KindNone   = "none"
)

// Open returns the Store implementation named by kind.
func Open(kind, path string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindFile:
		store, err := NewFileStore(path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case KindSQLite:
		store, err := OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case KindNone:
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown snapshot store type %q", kind)
	}
}

// Nop discards saves and never has a snapshot.
type Nop struct{}

func (Nop) Save(context.Context, Snapshot) error { return nil }

func (Nop) Load(context.Context) (Snapshot, bool, error) { return Snapshot{}, false, nil }

func (Nop) Close() error { return nil }
