package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/roach88/stockbook/internal/store/migrate"
)

const driverName = "sqlite3"

// Store wraps a single SQLite connection to an inventory store file.
// Uses WAL mode so readers keep seeing the last committed state while a
// sale transaction holds the write lock.
type Store struct {
	db       *sqlx.DB
	path     string
	readOnly bool
	report   migrate.Report
}

// Open creates or opens the store at path, applies the required pragmas and
// brings the schema up to the current version. Missing parent directories
// are created.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// A brand-new file receives the full current schema directly. A store written
// by an older version is migrated forward step by step. Any migration failure
// is fatal: the handle is closed and the error returned.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("open store: create directory: %w", err)
	}

	s, err := open(ctx, path, false)
	if err != nil {
		return nil, err
	}

	report, err := migrate.Default().Run(ctx, s.db)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}
	s.report = report

	return s, nil
}

// OpenExisting opens a store that must already exist, without running
// migrations. Used by operations that must not trigger schema writes, such as
// checkpointing before a backup.
func OpenExisting(ctx context.Context, path string) (*Store, error) {
	if err := mustExist(path); err != nil {
		return nil, err
	}
	return open(ctx, path, false)
}

// OpenReadOnly opens an existing store file in read-only, immutable mode. No
// pragma that writes to the file is applied and no migration runs. Only the
// main file is read; pending frames in a -wal side file are not seen.
func OpenReadOnly(ctx context.Context, path string) (*Store, error) {
	if err := mustExist(path); err != nil {
		return nil, err
	}
	return open(ctx, path, true)
}

func open(ctx context.Context, path string, readOnly bool) (*Store, error) {
	dsn, err := buildDSN(path, readOnly)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect store %s: %w", path, classify(err))
	}

	if err := applyPragmas(ctx, db, readOnly); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure store %s: %w", path, classify(err))
	}

	return &Store{db: db, path: path, readOnly: readOnly}, nil
}

// buildDSN turns a filesystem path into a file: URI understood by go-sqlite3.
// Foreign keys and the busy timeout are passed as connection parameters so
// they hold on every connection the pool ever opens.
func buildDSN(path string, readOnly bool) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve store path %s: %w", path, err)
	}

	q := url.Values{}
	q.Set("_foreign_keys", "1")
	q.Set("_busy_timeout", "5000")
	if !readOnly {
		// Writers take the RESERVED lock at BEGIN, so a transaction that reads
		// then writes never fails midway on a lock upgrade.
		q.Set("_txlock", "immediate")
	} else {
		// immutable skips locking and the -wal/-shm files entirely, which is
		// what lets a WAL-mode file be read without write access.
		q.Set("mode", "ro")
		q.Set("immutable", "1")
	}

	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs), RawQuery: q.Encode()}
	return u.String(), nil
}

func mustExist(path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrStoreNotFound, path)
	}
	if err != nil {
		return fmt.Errorf("stat store %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrNotAStore, path)
	}
	return nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(ctx context.Context, db *sqlx.DB, readOnly bool) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	if !readOnly {
		pragmas = append(pragmas,
			"PRAGMA journal_mode = WAL",
			"PRAGMA synchronous = NORMAL",
		)
	} else {
		// Forces the header to be read so a non-database file fails here
		// rather than on the first real query.
		pragmas = append(pragmas, "PRAGMA schema_version")
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying connection pool.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Path returns the filesystem path the store was opened from.
func (s *Store) Path() string {
	return s.path
}

// ReadOnly reports whether the store was opened with OpenReadOnly.
func (s *Store) ReadOnly() bool {
	return s.readOnly
}

// Migration returns what the schema migrator did when the store was opened.
// The zero Report is returned for handles that skip migrations.
func (s *Store) Migration() migrate.Report {
	return s.report
}

// SchemaVersion returns the recorded schema version (PRAGMA user_version).
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	return migrate.Current(ctx, s.db)
}

// Checkpoint folds the write-ahead log back into the main database file and
// truncates the log, so that a plain copy of the main file is complete.
//
// Returns ErrCheckpointBusy when SQLite reports that the checkpoint could not
// run to completion (another connection holds a conflicting lock).
func (s *Store) Checkpoint(ctx context.Context) error {
	var busy, logFrames, checkpointed int
	err := s.db.QueryRowxContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)").Scan(&busy, &logFrames, &checkpointed)
	if err != nil {
		return fmt.Errorf("checkpoint %s: %w", s.path, err)
	}
	if busy != 0 {
		return fmt.Errorf("checkpoint %s: %w (log=%d, checkpointed=%d)", s.path, ErrCheckpointBusy, logFrames, checkpointed)
	}
	return nil
}

// Tables lists the user tables in the store, sorted by name.
func (s *Store) Tables(ctx context.Context) ([]string, error) {
	var names []string
	err := s.db.SelectContext(ctx, &names, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", classify(err))
	}
	return names, nil
}

// HasTable reports whether a table with the given name exists.
func (s *Store) HasTable(ctx context.Context, name string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name)
	if err != nil {
		return false, fmt.Errorf("lookup table %s: %w", name, classify(err))
	}
	return count > 0, nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
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

// classify maps driver errors onto the package sentinels while keeping the
// original error in the chain.
func classify(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrNotADB {
		return fmt.Errorf("%w: %w", ErrNotAStore, err)
	}
	return err
}
