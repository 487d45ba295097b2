package migrate

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// legacySchema is the shape of a store written by the first release,
// before any step existed (user_version 0).
const legacySchema = `
CREATE TABLE categories (
    id   INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL
);
CREATE TABLE products (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    name        TEXT NOT NULL,
    category_id INTEGER REFERENCES categories(id),
    image_path  TEXT,
    stock       INTEGER NOT NULL DEFAULT 0,
    price       REAL NOT NULL DEFAULT 0,
    created_at  TEXT,
    updated_at  TEXT
);
CREATE TABLE sales (
    id    INTEGER PRIMARY KEY AUTOINCREMENT,
    date  TEXT NOT NULL,
    total REAL NOT NULL
);
CREATE TABLE sold_line_items (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    sale_id    INTEGER NOT NULL REFERENCES sales(id) ON DELETE CASCADE,
    product_id INTEGER NOT NULL,
    quantity   INTEGER NOT NULL,
    unit_price REAL NOT NULL,
    subtotal   REAL NOT NULL
);
`

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "migrate.db")
	db, err := sqlx.Open("sqlite3", "file:"+path+"?_foreign_keys=1")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Fatalf("close db: %v", err)
		}
	})
	return db
}

func openLegacyDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db := openTestDB(t)
	if _, err := db.Exec(legacySchema); err != nil {
		t.Fatalf("create legacy schema: %v", err)
	}
	return db
}

func schemaDump(t *testing.T, db *sqlx.DB) string {
	t.Helper()
	var stmts []string
	err := db.Select(&stmts, `
		SELECT sql FROM sqlite_master
		WHERE sql IS NOT NULL AND name <> 'schema_migrations'
		ORDER BY type, name
	`)
	if err != nil {
		t.Fatalf("dump schema: %v", err)
	}
	return strings.Join(stmts, ";\n")
}

func columns(t *testing.T, db *sqlx.DB, table string) []string {
	t.Helper()
	var names []string
	if err := db.Select(&names, "SELECT name FROM pragma_table_info(?)", table); err != nil {
		t.Fatalf("columns of %s: %v", table, err)
	}
	return names
}

func contains(list []string, item string) bool {
	for _, v := range list {
		if v == item {
			return true
		}
	}
	return false
}

func TestRun_FreshStoreGetsFullSchema(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	report, err := Default().Run(ctx, db)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if !report.Fresh {
		t.Error("expected fresh report for empty store")
	}
	if report.To != Default().Latest() {
		t.Errorf("report.To = %d, want %d", report.To, Default().Latest())
	}

	version, err := Current(ctx, db)
	if err != nil {
		t.Fatalf("Current() failed: %v", err)
	}
	if version != Default().Latest() {
		t.Errorf("user_version = %d, want %d", version, Default().Latest())
	}

	var recorded int
	if err := db.Get(&recorded, "SELECT COUNT(*) FROM schema_migrations"); err != nil {
		t.Fatalf("count history: %v", err)
	}
	if recorded != len(Steps()) {
		t.Errorf("history rows = %d, want %d", recorded, len(Steps()))
	}

	for _, table := range []string{"categories", "products", "sales", "sold_line_items", "profile"} {
		ok, err := TableExists(ctx, db, table)
		if err != nil {
			t.Fatalf("TableExists(%s): %v", table, err)
		}
		if !ok {
			t.Errorf("table %q missing from fresh schema", table)
		}
	}
}

func TestRun_LegacyStoreMigratesAndBackfills(t *testing.T) {
	db := openLegacyDB(t)
	ctx := context.Background()

	_, err := db.Exec(`
		INSERT INTO products (id, name, stock, price) VALUES (1, 'Lipstick', 4, 12.5);
		INSERT INTO sales (id, date, total) VALUES (1, '2024-01-02 10:00:00', 25.0);
		INSERT INTO sold_line_items (sale_id, product_id, quantity, unit_price, subtotal)
		VALUES (1, 1, 2, 12.5, 25.0), (1, 99, 1, 1.0, 1.0);
	`)
	if err != nil {
		t.Fatalf("seed legacy rows: %v", err)
	}

	report, err := Default().Run(ctx, db)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if report.Fresh {
		t.Error("legacy store must not be treated as fresh")
	}
	if report.From != 0 || report.To != 6 {
		t.Errorf("report = %+v, want from 0 to 6", report)
	}
	if len(report.Applied) != 6 {
		t.Errorf("applied %d steps, want 6", len(report.Applied))
	}

	for table, want := range map[string][]string{
		"products":        {"thumbnail", "active"},
		"sales":           {"customer_name", "payment_type"},
		"sold_line_items": {"name_snapshot"},
	} {
		cols := columns(t, db, table)
		for _, c := range want {
			if !contains(cols, c) {
				t.Errorf("%s missing column %q after migration", table, c)
			}
		}
	}

	var snapshots []string
	if err := db.Select(&snapshots, "SELECT name_snapshot FROM sold_line_items ORDER BY id"); err != nil {
		t.Fatalf("read snapshots: %v", err)
	}
	if len(snapshots) != 2 || snapshots[0] != "Lipstick" || snapshots[1] != "" {
		t.Errorf("snapshots = %q, want [Lipstick, \"\"]", snapshots)
	}

	var active int
	if err := db.Get(&active, "SELECT active FROM products WHERE id = 1"); err != nil {
		t.Fatalf("read active: %v", err)
	}
	if active != 1 {
		t.Errorf("active = %d, want 1", active)
	}

	var paymentType string
	if err := db.Get(&paymentType, "SELECT payment_type FROM sales WHERE id = 1"); err != nil {
		t.Fatalf("read payment_type: %v", err)
	}
	if paymentType != "paid_in_full" {
		t.Errorf("payment_type = %q, want paid_in_full", paymentType)
	}
}

func TestRun_TwiceIsIdempotent(t *testing.T) {
	db := openLegacyDB(t)
	ctx := context.Background()

	if _, err := Default().Run(ctx, db); err != nil {
		t.Fatalf("first Run() failed: %v", err)
	}
	before := schemaDump(t, db)

	report, err := Default().Run(ctx, db)
	if err != nil {
		t.Fatalf("second Run() failed: %v", err)
	}
	if len(report.Applied) != 0 {
		t.Errorf("second run applied %v, want nothing", report.Applied)
	}

	after := schemaDump(t, db)
	if before != after {
		t.Errorf("schema changed on second run:\nbefore:\n%s\nafter:\n%s", before, after)
	}
}

func TestRun_StepsToleratePreexistingColumns(t *testing.T) {
	db := openLegacyDB(t)
	ctx := context.Background()

	// Early builds added some columns ad hoc without bumping the version.
	if _, err := db.Exec("ALTER TABLE products ADD COLUMN thumbnail TEXT"); err != nil {
		t.Fatalf("pre-add column: %v", err)
	}
	if _, err := db.Exec("CREATE TABLE profile (id INTEGER PRIMARY KEY, name TEXT NOT NULL, role TEXT NOT NULL, photo_path TEXT, thumbnail TEXT)"); err != nil {
		t.Fatalf("pre-create profile: %v", err)
	}

	if _, err := Default().Run(ctx, db); err != nil {
		t.Fatalf("Run() failed on store with pre-existing columns: %v", err)
	}

	version, err := Current(ctx, db)
	if err != nil {
		t.Fatalf("Current() failed: %v", err)
	}
	if version != 6 {
		t.Errorf("user_version = %d, want 6", version)
	}
}

func TestRun_FailedStepAbortsAndKeepsLastVersion(t *testing.T) {
	db := openLegacyDB(t)
	ctx := context.Background()

	boom := errors.New("boom")
	m := New([]Step{
		{Version: 1, Name: "ok", Apply: addColumn("products", "thumbnail", "TEXT")},
		{Version: 2, Name: "bad", Apply: func(ctx context.Context, tx *sqlx.Tx) error {
			if _, err := tx.ExecContext(ctx, "ALTER TABLE products ADD COLUMN half_done TEXT"); err != nil {
				return err
			}
			return boom
		}},
		{Version: 3, Name: "never", Apply: addColumn("sales", "customer_name", "TEXT")},
	}, schemaSQL)

	_, err := m.Run(ctx, db)
	if err == nil {
		t.Fatal("expected failing step to abort the run")
	}
	var me *MigrationError
	if !errors.As(err, &me) {
		t.Fatalf("expected *MigrationError, got %T: %v", err, err)
	}
	if me.Version != 2 || me.Name != "bad" {
		t.Errorf("MigrationError = %+v, want version 2 (bad)", me)
	}
	if !errors.Is(err, boom) {
		t.Errorf("expected original cause in chain, got %v", err)
	}

	version, err := Current(ctx, db)
	if err != nil {
		t.Fatalf("Current() failed: %v", err)
	}
	if version != 1 {
		t.Errorf("user_version = %d, want 1", version)
	}
	if contains(columns(t, db, "products"), "half_done") {
		t.Error("partial step was not rolled back")
	}
	if contains(columns(t, db, "sales"), "customer_name") {
		t.Error("step after the failure must not run")
	}
}

func TestRun_RejectsNewerSchema(t *testing.T) {
	db := openLegacyDB(t)
	if _, err := db.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatalf("set user_version: %v", err)
	}

	_, err := Default().Run(context.Background(), db)
	if !errors.Is(err, ErrSchemaTooNew) {
		t.Fatalf("expected ErrSchemaTooNew, got %v", err)
	}
}

func TestNew_PanicsOnMisnumberedSteps(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for out-of-order steps")
		}
	}()
	New([]Step{{Version: 2, Name: "skips_one"}}, "")
}

func TestSteps_AreVersionOrdered(t *testing.T) {
	for i, s := range Steps() {
		if s.Version != i+1 {
			t.Errorf("step %q has version %d at index %d", s.Name, s.Version, i)
		}
		if s.Apply == nil {
			t.Errorf("step %q has no Apply", s.Name)
		}
	}
}

func TestHistory(t *testing.T) {
	ctx := context.Background()

	legacy := openLegacyDB(t)
	rows, err := History(ctx, legacy)
	if err != nil {
		t.Fatalf("History() on legacy store: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("legacy history = %v, want empty", rows)
	}

	if _, err := Default().Run(ctx, legacy); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	rows, err = History(ctx, legacy)
	if err != nil {
		t.Fatalf("History() failed: %v", err)
	}
	if len(rows) != len(Steps()) {
		t.Fatalf("history rows = %d, want %d", len(rows), len(Steps()))
	}
	for i, row := range rows {
		if row.Version != i+1 || row.Name != Steps()[i].Name {
			t.Errorf("history[%d] = %+v, want version %d (%s)", i, row, i+1, Steps()[i].Name)
		}
		if row.AppliedAt == "" {
			t.Errorf("history[%d] has no applied_at", i)
		}
	}
}
