package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned by single-record reads when no row matches.
var ErrNotFound = errors.New("not found")

// CommitHook runs inside the commit transaction after every write and
// before COMMIT. A non-nil error rolls the whole cycle back.
type CommitHook func(ctx context.Context, tx *sql.Tx) error

// Option configures a Store.
type Option func(*Store)

// WithCommitHook installs a hook that runs at the end of every CommitCycle
// transaction. Used for fault injection.
func WithCommitHook(h CommitHook) Option {
	return func(s *Store) {
		s.commitHook = h
	}
}

// Store is the canonical relational store: documents, snapshots, the
// changelog, its sequence counter, cycle runs and delivery cursors.
type Store struct {
	db         *sql.DB
	commitHook CommitHook
}

// connPragmas run once per Open. With a single pooled connection they hold
// for every statement the store issues.
var connPragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA foreign_keys = ON",
}

// migration upgrades a database whose user_version is below version.
type migration struct {
	version int
	name    string
	stmt    string
}

// migrations run in order after schema.sql. Append only; user_version ends
// at the last entry's version.
var migrations = []migration{
	{
		version: 1,
		name:    "index changelog by document",
		stmt:    `CREATE INDEX IF NOT EXISTS idx_changelog_document ON changelog(document_id, seq)`,
	},
}

// Open creates or opens the SQLite database at path (":memory:" works for
// tests), applies pragmas, the base schema and any pending migrations.
// Opening an existing database again is a no-op beyond the pragmas.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows one writer; a single connection also serializes commits
	// and keeps a ":memory:" database alive for the life of the Store.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, p := range connPragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply pragma %q: %w", p, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func migrate(db *sql.DB) error {
	var current int
	if err := db.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("migrate to v%d: %w", m.version, err)
		}
		if _, err := tx.Exec(m.stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("migrate to v%d (%s): %w", m.version, m.name, err)
		}
		// PRAGMA does not take bind parameters.
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migrate to v%d: set user_version: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migrate to v%d: %w", m.version, err)
		}
		current = m.version
	}
	return nil
}
