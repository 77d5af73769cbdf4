package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/five82/pulse/internal/sheets"
)

func sampleSnapshot() Snapshot {
	return Snapshot{
		Rows: []sheets.Row{
			{ID: "1", Status: "pending", Fields: []byte(`{"id":"1","owner":"kim"}`)},
			{ID: "2", Status: "won", Approval: "approved", LastProcessed: "2026-04-01"},
		},
		FetchedAt: time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC),
	}
}

func checkRoundTrip(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := store.Load(ctx); err != nil || ok {
		t.Fatalf("Load on empty store = ok %v err %v, want false nil", ok, err)
	}

	want := sampleSnapshot()
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	got, ok, err := store.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("Load = ok %v err %v, want true nil", ok, err)
	}
	if !got.FetchedAt.Equal(want.FetchedAt) {
		t.Fatalf("FetchedAt = %s, want %s", got.FetchedAt, want.FetchedAt)
	}
	if len(got.Rows) != 2 || got.Rows[1].LastProcessed != "2026-04-01" {
		t.Fatalf("Rows = %#v", got.Rows)
	}
	if got.Rows[0].Field("owner") != "kim" {
		t.Fatalf("pass-through fields lost: %s", got.Rows[0].Fields)
	}

	next := Snapshot{Rows: want.Rows[:1], FetchedAt: want.FetchedAt.Add(time.Minute)}
	if err := store.Save(ctx, next); err != nil {
		t.Fatalf("second Save returned error: %v", err)
	}
	got, _, _ = store.Load(ctx)
	if len(got.Rows) != 1 || !got.FetchedAt.Equal(next.FetchedAt) {
		t.Fatalf("second Load = %#v, want overwritten snapshot", got)
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "nested", "snapshot.json"))
	if err != nil {
		t.Fatalf("NewFileStore returned error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	checkRoundTrip(t, store)

	if _, err := os.Stat(store.Path() + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temporary file left behind: %v", err)
	}
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore returned error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if _, ok, err := store.Load(context.Background()); err == nil || ok {
		t.Fatalf("Load corrupt = ok %v err %v, want error", ok, err)
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "db", "pulse.db"))
	if err != nil {
		t.Fatalf("OpenSQLite returned error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	checkRoundTrip(t, store)
}

func TestSQLiteStorePragmas(t *testing.T) {
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "pulse.db"))
	if err != nil {
		t.Fatalf("OpenSQLite returned error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	var mode string
	if err := store.sqlDB.QueryRow(`PRAGMA journal_mode`).Scan(&mode); err != nil {
		t.Fatalf("read journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Fatalf("journal_mode = %q, want wal", mode)
	}
	var timeout int
	if err := store.sqlDB.QueryRow(`PRAGMA busy_timeout`).Scan(&timeout); err != nil {
		t.Fatalf("read busy_timeout: %v", err)
	}
	if timeout != 5000 {
		t.Fatalf("busy_timeout = %d, want 5000", timeout)
	}
	var syncMode int
	if err := store.sqlDB.QueryRow(`PRAGMA synchronous`).Scan(&syncMode); err != nil {
		t.Fatalf("read synchronous: %v", err)
	}
	if syncMode != 1 {
		t.Fatalf("synchronous = %d, want 1 (NORMAL)", syncMode)
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		kind    string
		wantErr bool
		want    string
	}{
		{kind: "", want: "*snapshot.FileStore"},
		{kind: "File", want: "*snapshot.FileStore"},
		{kind: "sqlite", want: "*snapshot.SQLiteStore"},
		{kind: "none", want: "snapshot.Nop"},
		{kind: "redis", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			store, err := Open(tt.kind, filepath.Join(dir, "s-"+tt.kind))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for kind %q", tt.kind)
				}
				return
			}
			if err != nil {
				t.Fatalf("Open(%q) returned error: %v", tt.kind, err)
			}
			t.Cleanup(func() { _ = store.Close() })
			if got := typeName(store); got != tt.want {
				t.Fatalf("Open(%q) = %s, want %s", tt.kind, got, tt.want)
			}
		})
	}

	if _, err := Open("file", " "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestNop(t *testing.T) {
	var store Store = Nop{}
	if err := store.Save(context.Background(), sampleSnapshot()); err != nil {
		t.Fatalf("Nop.Save returned error: %v", err)
	}
	if _, ok, err := store.Load(context.Background()); ok || err != nil {
		t.Fatalf("Nop.Load = ok %v err %v", ok, err)
	}
}

func typeName(v any) string {
	switch v.(type) {
	case *FileStore:
		return "*snapshot.FileStore"
	case *SQLiteStore:
		return "*snapshot.SQLiteStore"
	case Nop:
		return "snapshot.Nop"
	default:
		return "unknown"
	}
}
