package migrate

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

//go:embed schema.sql
var schemaSQL string

const historyTable = "schema_migrations"

// ErrSchemaTooNew is returned when a store records a schema version newer
// than any step this build knows about. Migrations are forward-only, so the
// store cannot be used.
var ErrSchemaTooNew = errors.New("store schema is newer than this application")

// Step is a single, additive schema change.
//
// Apply runs inside a transaction that also bumps user_version and records the
// step in schema_migrations, so a step is either fully applied and recorded or
// not at all. Apply must be idempotent: it checks for the column or table it
// adds before adding it.
type Step struct {
	Version int
	Name    string
	Apply   func(ctx context.Context, tx *sqlx.Tx) error
}

// Report describes what a Run did.
type Report struct {
	From    int      `json:"from"`
	To      int      `json:"to"`
	Fresh   bool     `json:"fresh"`
	Applied []string `json:"applied,omitempty"`
}

// MigrationError is returned when a step fails. The store is left at the
// version of the last step that committed.
type MigrationError struct {
	Version int
	Name    string
	Err     error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration %d (%s) failed: %v", e.Version, e.Name, e.Err)
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}

// IsMigrationError reports whether err carries a *MigrationError.
func IsMigrationError(err error) bool {
	var me *MigrationError
	return errors.As(err, &me)
}

// Migrator applies an ordered list of steps to a store.
type Migrator struct {
	steps  []Step
	schema string
	now    func() time.Time
}

// New builds a migrator over steps and the full schema given to fresh stores.
// Steps must be numbered 1..n in order; New panics otherwise since that is a
// programming error, not a runtime condition.
func New(steps []Step, freshSchema string) *Migrator {
	for i, s := range steps {
		if s.Version != i+1 {
			panic(fmt.Sprintf("migrate: step %q has version %d, want %d", s.Name, s.Version, i+1))
		}
	}
	return &Migrator{steps: steps, schema: freshSchema, now: time.Now}
}

// Default returns the migrator for the current application schema.
func Default() *Migrator {
	return New(Steps(), schemaSQL)
}

// Latest returns the schema version a fully migrated store has.
func (m *Migrator) Latest() int {
	return len(m.steps)
}

// Steps returns the migrator's steps in version order.
func (m *Migrator) Steps() []Step {
	return append([]Step(nil), m.steps...)
}

// Current returns the schema version recorded in the store.
func Current(ctx context.Context, q sqlx.QueryerContext) (int, error) {
	var version int
	if err := sqlx.GetContext(ctx, q, &version, "PRAGMA user_version"); err != nil {
		return 0, fmt.Errorf("get user_version: %w", err)
	}
	return version, nil
}

// Run brings the store up to Latest.
//
// A store with no application tables is treated as brand new: it receives the
// full schema in one transaction and every step is recorded as applied. An
// existing store gets only the steps newer than its recorded version, each in
// its own transaction.
func (m *Migrator) Run(ctx context.Context, db *sqlx.DB) (Report, error) {
	from, err := Current(ctx, db)
	if err != nil {
		return Report{}, err
	}
	report := Report{From: from, To: from}

	if from > m.Latest() {
		return report, fmt.Errorf("%w: store is at version %d, latest known is %d", ErrSchemaTooNew, from, m.Latest())
	}

	fresh, err := isFresh(ctx, db)
	if err != nil {
		return report, err
	}

	if fresh {
		if err := m.initFresh(ctx, db); err != nil {
			return report, err
		}
		report.Fresh = true
		report.To = m.Latest()
		for _, s := range m.steps {
			report.Applied = append(report.Applied, s.Name)
		}
		return report, nil
	}

	if _, err := db.ExecContext(ctx, historySchema); err != nil {
		return report, fmt.Errorf("ensure %s: %w", historyTable, err)
	}

	for _, step := range m.steps {
		if step.Version <= from {
			continue
		}
		if err := m.apply(ctx, db, step); err != nil {
			return report, err
		}
		report.To = step.Version
		report.Applied = append(report.Applied, step.Name)
	}

	return report, nil
}

const historySchema = `
CREATE TABLE IF NOT EXISTS ` + historyTable + ` (
    version    INTEGER PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TEXT NOT NULL
)`

func (m *Migrator) initFresh(ctx context.Context, db *sqlx.DB) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("initialize schema: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := tx.ExecContext(ctx, m.schema); err != nil {
		return &MigrationError{Version: 0, Name: "initial_schema", Err: err}
	}
	if _, err := tx.ExecContext(ctx, historySchema); err != nil {
		return fmt.Errorf("initialize schema: ensure %s: %w", historyTable, err)
	}
	for _, step := range m.steps {
		if err := m.record(ctx, tx, step); err != nil {
			return err
		}
	}
	if err := setVersion(ctx, tx, m.Latest()); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("initialize schema: commit: %w", err)
	}
	return nil
}

func (m *Migrator) apply(ctx context.Context, db *sqlx.DB, step Step) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return &MigrationError{Version: step.Version, Name: step.Name, Err: fmt.Errorf("begin tx: %w", err)}
	}
	defer tx.Rollback() // No-op if committed

	if err := step.Apply(ctx, tx); err != nil {
		return &MigrationError{Version: step.Version, Name: step.Name, Err: err}
	}
	if err := m.record(ctx, tx, step); err != nil {
		return err
	}
	if err := setVersion(ctx, tx, step.Version); err != nil {
		return &MigrationError{Version: step.Version, Name: step.Name, Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &MigrationError{Version: step.Version, Name: step.Name, Err: fmt.Errorf("commit: %w", err)}
	}
	return nil
}

func (m *Migrator) record(ctx context.Context, tx *sqlx.Tx, step Step) error {
	_, err := tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO "+historyTable+" (version, name, applied_at) VALUES (?, ?, ?)",
		step.Version, step.Name, m.now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return &MigrationError{Version: step.Version, Name: step.Name, Err: fmt.Errorf("record: %w", err)}
	}
	return nil
}

// setVersion writes user_version. PRAGMA arguments cannot be bound, the value
// is always an int.
func setVersion(ctx context.Context, tx *sqlx.Tx, version int) error {
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// isFresh reports whether the store has no application tables yet.
func isFresh(ctx context.Context, db *sqlx.DB) (bool, error) {
	var count int
	err := db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%' AND name <> ?
	`, historyTable)
	if err != nil {
		return false, fmt.Errorf("inspect schema: %w", err)
	}
	return count == 0, nil
}

// Applied is one row of the migration history.
type Applied struct {
	Version   int    `db:"version" json:"version"`
	Name      string `db:"name" json:"name"`
	AppliedAt string `db:"applied_at" json:"applied_at"`
}

// History returns the recorded migration history in version order. A store
// that predates the history table yields an empty list.
func History(ctx context.Context, q sqlx.QueryerContext) ([]Applied, error) {
	ok, err := TableExists(ctx, q, historyTable)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var rows []Applied
	err = sqlx.SelectContext(ctx, q, &rows,
		"SELECT version, name, applied_at FROM "+historyTable+" ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", historyTable, err)
	}
	return rows, nil
}
