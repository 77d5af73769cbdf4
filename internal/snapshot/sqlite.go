package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS snapshots (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	rows_json BLOB NOT NULL,
	fetched_at INTEGER NOT NULL,
	saved_at INTEGER NOT NULL
)`

// sqlitePragmas are applied by the modernc driver on every new connection.
const sqlitePragmas = "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

// SQLiteStore keeps the snapshot in a single-row SQLite table.
type SQLiteStore struct {
	sqlDB *sql.DB
}

// OpenSQLite opens (creating when needed) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o750); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}

	dsn := cleanPath + "?" + sqlitePragmas
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(sqliteSchema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{sqlDB: sqlDB}, nil
}

// Save upserts the snapshot row.
func (s *SQLiteStore) Save(ctx context.Context, snap Snapshot) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	payload, err := json.Marshal(snap.Rows)
	if err != nil {
		return fmt.Errorf("encode rows: %w", err)
	}
	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO snapshots (id, rows_json, fetched_at, saved_at)
		 VALUES (1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		    rows_json = excluded.rows_json,
		    fetched_at = excluded.fetched_at,
		    saved_at = excluded.saved_at`,
		payload,
		toMillis(snap.FetchedAt),
		toMillis(time.Now().UTC()),
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot row.
func (s *SQLiteStore) Load(ctx context.Context) (Snapshot, bool, error) {
	if s == nil || s.sqlDB == nil {
		return Snapshot{}, false, fmt.Errorf("storage is not configured")
	}
	var payload []byte
	var fetchedAt int64
	err := s.sqlDB.QueryRowContext(ctx, `SELECT rows_json, fetched_at FROM snapshots WHERE id = 1`).Scan(&payload, &fetchedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, fmt.Errorf("load snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(payload, &snap.Rows); err != nil {
		return Snapshot{}, false, fmt.Errorf("decode rows: %w", err)
	}
	snap.FetchedAt = fromMillis(fetchedAt)
	return snap, true, nil
}

// Close releases the underlying SQLite connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
