// Package storage is the row-store facade: four repositories (events,
// context, sessions, stats) sharing one connection and one mutex, matching
// the Design Notes' "one owner holding the connection" guidance rather than
// four independently-owned connections.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// Store owns the single SQLite connection used by every repository method.
// The connection pool is pinned to one connection (SetMaxOpenConns(1)) so
// that, combined with mu, there is at most one in-flight write from this
// process at a time (spec section 5, "Storage concurrency").
type Store struct {
	db *sql.DB
	mu sync.Mutex

	Events   *EventsRepo
	Context  *ContextRepo
	Sessions *SessionsRepo
	Stats    *StatsRepo
}

// Open connects to the SQLite database at path, applying the WAL-safe
// pragma sequence from spec section 4.10 in order. If readOnly is true the
// connection is opened with immutable=1, matching the dashboard's
// read-only access mode.
func Open(path string, readOnly bool) (*Store, error) {
	dsn := path
	if readOnly {
		dsn = fmt.Sprintf("file:%s?immutable=1", path)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA journal_mode=DELETE",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA mmap_size=268435456",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("storage: apply pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	s.Events = &EventsRepo{store: s}
	s.Context = &ContextRepo{store: s}
	s.Sessions = &SessionsRepo{store: s}
	s.Stats = &StatsRepo{store: s}

	if err := s.ensureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Compact runs the storage-compaction operation (spec section 4.11): a
// blocking VACUUM that rebuilds the database file and reclaims space freed
// by prior deletes.
func (s *Store) Compact(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `VACUUM`); err != nil {
		return fmt.Errorf("storage: compact: %w", err)
	}
	return nil
}

// ensureSchema creates every table this facade owns if absent. Sessions
// also gets its own EnsureTable per spec section 4.10 item "Sessions"; this
// call makes that idempotent at startup for the raw_events/context tables
// too.
func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS raw_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_uuid TEXT,
			timestamp_utc TEXT,
			unix_time INTEGER NOT NULL,
			process_name TEXT NOT NULL,
			window_title TEXT NOT NULL,
			window_hwnd INTEGER,
			roi_left INTEGER,
			roi_top INTEGER,
			roi_right INTEGER,
			roi_bottom INTEGER,
			input_idle_ms INTEGER,
			input_intensity INTEGER,
			is_processed INTEGER NOT NULL DEFAULT 0,
			has_screenshot INTEGER NOT NULL DEFAULT 0,
			screenshot_hash TEXT,
			screenshot_path TEXT,
			vlm_description TEXT,
			user_intent TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS context_enrichment (
			event_id INTEGER PRIMARY KEY,
			accessibility_tree_json TEXT,
			ocr_content TEXT,
			vlm_description TEXT,
			user_intent TEXT,
			generated_wikilinks TEXT,
			generated_tags TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_uuid TEXT UNIQUE NOT NULL,
			start_time INTEGER NOT NULL,
			end_time INTEGER NOT NULL,
			duration_seconds INTEGER NOT NULL,
			primary_process TEXT,
			primary_window TEXT,
			window_transitions TEXT,
			event_count INTEGER,
			avg_input_intensity REAL,
			activity_summary TEXT,
			generated_tags TEXT,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_time ON sessions(start_time, end_time)`,
		`CREATE INDEX IF NOT EXISTS idx_raw_events_processed ON raw_events(is_processed, unix_time)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("storage: ensure schema: %w", err)
		}
	}
	return nil
}
