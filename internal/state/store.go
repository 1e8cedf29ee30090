// Package state persists the agent's registration history in a local SQLite
// database so operators can see which server identity the host holds.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// ErrNoRegistration is returned when no registration has been recorded.
var ErrNoRegistration = errors.New("no registration recorded")

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Registration is one accepted handshake with the ingest API.
type Registration struct {
	ServerID     string
	APIURL       string
	AgentName    string
	AgentVersion string
	RegisteredAt time.Time
}

// migration is a forward-only schema step.
type migration struct {
	version     int
	description string
	stmt        string
}

var migrations = []migration{
	{
		version:     1,
		description: "create registrations table",
		stmt: `
			CREATE TABLE registrations (
				id            INTEGER PRIMARY KEY AUTOINCREMENT,
				server_id     TEXT     NOT NULL,
				api_url       TEXT     NOT NULL,
				agent_name    TEXT     NOT NULL,
				agent_version TEXT     NOT NULL,
				registered_at DATETIME NOT NULL
			)`,
	},
	{
		version:     2,
		description: "index registrations by time",
		stmt:        `CREATE INDEX idx_registrations_registered_at ON registrations (registered_at)`,
	},
}

// Store is the SQLite-backed registration record.
type Store struct {
	db *sql.DB
	mu sync.Mutex // Serialize migrations
}

// Open opens (or creates) the database at path, applies pragmas and runs
// pending migrations. Parent directories are created as needed.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("create state directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	// One connection keeps ":memory:" databases coherent and writes serialized.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %q: %w", path, err)
	}

	// modernc.org/sqlite requires pragmas as statements, not DSN params.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// DB returns the underlying *sql.DB for direct queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRegistration appends r to the history.
func (s *Store) RecordRegistration(ctx context.Context, r Registration) error {
	if r.RegisteredAt.IsZero() {
		r.RegisteredAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO registrations (server_id, api_url, agent_name, agent_version, registered_at)
		 VALUES (?, ?, ?, ?, ?)`,
		r.ServerID, r.APIURL, r.AgentName, r.AgentVersion, r.RegisteredAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record registration: %w", err)
	}
	return nil
}

// LastRegistration returns the most recent record or ErrNoRegistration.
func (s *Store) LastRegistration(ctx context.Context) (*Registration, error) {
	list, err := s.Registrations(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNoRegistration
	}
	return &list[0], nil
}

// Registrations returns up to limit records, newest first.
func (s *Store) Registrations(ctx context.Context, limit int) ([]Registration, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT server_id, api_url, agent_name, agent_version, registered_at
		 FROM registrations ORDER BY registered_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query registrations: %w", err)
	}
	defer rows.Close()

	var out []Registration
	for rows.Next() {
		var r Registration
		if err := rows.Scan(&r.ServerID, &r.APIURL, &r.AgentName, &r.AgentVersion, &r.RegisteredAt); err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// tx executes fn within a transaction, committing if fn returns nil.
func (s *Store) tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original: %w)", rbErr, err)
		}
		return err
	}

	return tx.Commit()
}

// migrate applies every migration newer than the recorded schema version.
func (s *Store) migrate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS _migrations (
			version     INTEGER PRIMARY KEY,
			description TEXT     NOT NULL,
			applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM _migrations").Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		err := s.tx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.stmt); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				"INSERT INTO _migrations (version, description) VALUES (?, ?)",
				m.version, m.description,
			)
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.description, err)
		}
	}
	return nil
}

// SchemaVersion returns the highest applied migration.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM _migrations").Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}
