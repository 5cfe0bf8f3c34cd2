package store

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking (PRAGMA user_version):
// 0 - commits and thumbnails tables as created by schema.sql
// 1 - Index on thumbnails.seq so PruneThumbnails avoids a table scan
const currentSchemaVersion = 1

// Store is the SQLite commit journal and thumbnail cache of one or more
// sessions. Sessions sharing a journal file share one Store per process;
// separate processes rely on WAL and the busy timeout.
type Store struct {
	db *sql.DB
}

// Open creates or opens the journal database at path. ":memory:" gives a
// throwaway journal, which is what scenarios without a journal_path use.
//
// Every connection is configured with:
//   - WAL so journal and show can read while a session appends
//   - synchronous=NORMAL: a crash may lose the last commits, never corrupt
//     earlier ones
//   - a 5s busy timeout for writers in other processes
//   - foreign key enforcement
//
// Opening an existing journal runs any pending migrations and is otherwise
// a no-op on its contents.
func Open(path string) (*Store, error) {
	// Creates the file on first use
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// sql.Open is lazy; fail here rather than on the first commit
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows a single writer. One pooled connection also keeps a
	// ":memory:" database alive: each new connection would see an empty one.
	db.SetMaxOpenConns(1) // serialise journal writes instead of SQLITE_BUSY
	db.SetMaxIdleConns(1) // never drop the connection while idle

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection. Closing a zero Store is a no-op.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for ad hoc queries, mostly from tests.
// Writes should go through RecordCommit and PutThumbnail.
func (s *Store) DB() *sql.DB {
	return s.db
}

// applyPragmas configures the connection. journal_mode is persistent in the
// file; the others are per connection, which is why the pool holds one.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates missing tables and indexes, then migrates. Every
// statement in schema.sql is IF NOT EXISTS, so reopening is safe.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations brings an older journal up to currentSchemaVersion, one
// step at a time, then records the version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 indexes thumbnails by insertion seq. Journals written before
// the cache was bounded lack it.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_thumbnails_seq
		ON thumbnails(seq)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value. Tests use
// it to confirm Open configured the connection.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
