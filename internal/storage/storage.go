package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	_ "modernc.org/sqlite"
)

// migration is a numbered schema change. Migrations are applied in order
// and tracked in the schema_migrations table so each runs exactly once.
type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "create slices table",
		SQL: `
CREATE TABLE IF NOT EXISTS slices (
    name        TEXT PRIMARY KEY,
    value       TEXT NOT NULL,
    rev         INTEGER NOT NULL,
    updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
);`,
	},
	{
		Version:     2,
		Description: "record which surface wrote each slice",
		SQL:         `ALTER TABLE slices ADD COLUMN writer TEXT NOT NULL DEFAULT '';`,
	},
}

// OpenDB opens (or creates) a SQLite database at the given path.
// It creates parent directories if needed, enables WAL mode so several
// surfaces can share the file, and runs any pending migrations.
func OpenDB(path string) (*sql.DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version     INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	for _, m := range migrations {
		var exists int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.Version).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if exists > 0 {
			continue
		}

		if _, err := db.Exec(m.SQL); err != nil {
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := db.Exec(
			"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
	}
	return nil
}

// DefaultDBPath returns the default database file path:
// ~/.local/share/command-bar/state.db
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "command-bar", "state.db"), nil
}

// Change announces that the named slices were rewritten.
type Change struct {
	Names  []string
	Rev    int64
	Writer string
	// External is true when the write came from another process sharing the
	// database file.
	External bool
}

// KV is a durable key-value store of named slices. Values are opaque bytes
// (the prefs gateway stores JSON). Every successful Set notifies all
// subscribers.
type KV struct {
	db     *sql.DB
	writer string

	mu   sync.Mutex
	subs map[int]chan Change
	next int
	seen map[string]int64
}

// NewKV wraps db. writer identifies this surface in change notifications.
func NewKV(db *sql.DB, writer string) *KV {
	return &KV{
		db:     db,
		writer: writer,
		subs:   make(map[int]chan Change),
		seen:   make(map[string]int64),
	}
}

// Writer returns the identity stamped on this store's writes.
func (s *KV) Writer() string {
	return s.writer
}

// Get returns the stored values for names. Missing slices are absent from
// the result.
func (s *KV) Get(ctx context.Context, names ...string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(names))
	for _, name := range names {
		var value string
		var rev int64
		err := s.db.QueryRowContext(ctx, "SELECT value, rev FROM slices WHERE name = ?", name).Scan(&value, &rev)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get slice %q: %w", name, err)
		}
		out[name] = []byte(value)
		s.markSeen(name, rev)
	}
	return out, nil
}

// Set writes all values in a single transaction under one new revision and
// then notifies subscribers.
func (s *KV) Set(ctx context.Context, values map[string][]byte) (int64, error) {
	if len(values) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var rev int64
	if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(rev), 0) + 1 FROM slices").Scan(&rev); err != nil {
		return 0, fmt.Errorf("compute next rev: %w", err)
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO slices (name, value, rev, writer, updated_at) VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
			 ON CONFLICT(name) DO UPDATE SET value = excluded.value, rev = excluded.rev,
			     writer = excluded.writer, updated_at = excluded.updated_at`,
			name, string(values[name]), rev, s.writer,
		)
		if err != nil {
			return 0, fmt.Errorf("write slice %q: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}

	for _, name := range names {
		s.markSeen(name, rev)
	}
	s.publish(Change{Names: names, Rev: rev, Writer: s.writer})
	return rev, nil
}

// Revisions returns the current revision of every stored slice.
func (s *KV) Revisions(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, rev FROM slices")
	if err != nil {
		return nil, fmt.Errorf("query revisions: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var name string
		var rev int64
		if err := rows.Scan(&name, &rev); err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		out[name] = rev
	}
	return out, rows.Err()
}

// Subscribe registers for change notifications. Delivery is best-effort:
// a subscriber that falls behind misses notifications rather than blocking
// writers. The returned func unsubscribes.
func (s *KV) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, 32)
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
		s.mu.Unlock()
	}
}

// detectExternal compares stored revisions against the last ones this
// process saw and publishes the slices that moved.
func (s *KV) detectExternal(ctx context.Context) error {
	revs, err := s.Revisions(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	var changed []string
	var maxRev int64
	for name, rev := range revs {
		if rev > s.seen[name] {
			changed = append(changed, name)
			s.seen[name] = rev
			if rev > maxRev {
				maxRev = rev
			}
		}
	}
	s.mu.Unlock()

	if len(changed) == 0 {
		return nil
	}
	sort.Strings(changed)
	s.publish(Change{Names: changed, Rev: maxRev, External: true})
	return nil
}

func (s *KV) markSeen(name string, rev int64) {
	s.mu.Lock()
	if rev > s.seen[name] {
		s.seen[name] = rev
	}
	s.mu.Unlock()
}

func (s *KV) publish(c Change) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- c:
		default:
		}
	}
}
