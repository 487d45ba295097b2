package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/roach88/stockbook/internal/store"
)

// NewStorePath creates a migrated, empty store in a temp dir and returns its
// path. The handle used to create it is already closed.
func NewStorePath(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "inventory.db")
	s, err := store.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("create test store: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close test store: %v", err)
	}
	return path
}

// Exec runs statements against the store at path, for seeding fixtures
// without going through the code under test.
func Exec(t *testing.T, path string, query string, args ...any) {
	t.Helper()
	WithDB(t, path, func(db *sqlx.DB) {
		if _, err := db.Exec(query, args...); err != nil {
			t.Fatalf("exec fixture: %v\n%s", err, query)
		}
	})
}

// WithDB opens the store at path for the duration of fn.
func WithDB(t *testing.T, path string, fn func(db *sqlx.DB)) {
	t.Helper()
	s, err := store.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	defer s.Close()
	fn(s.DB())
}

// SeedProduct inserts an active product and returns its id.
func SeedProduct(t *testing.T, path, name string, stock int64, price string) int64 {
	t.Helper()
	var id int64
	WithDB(t, path, func(db *sqlx.DB) {
		res, err := db.Exec(
			"INSERT INTO products (name, stock, price, active) VALUES (?, ?, ?, 1)", name, stock, price)
		if err != nil {
			t.Fatalf("seed product %q: %v", name, err)
		}
		if id, err = res.LastInsertId(); err != nil {
			t.Fatalf("seed product %q: %v", name, err)
		}
	})
	return id
}

// Snapshot dumps every row of the given tables as strings, ordered by rowid,
// so tests can assert a store is unchanged byte for byte.
func Snapshot(t *testing.T, path string, tables ...string) map[string][][]string {
	t.Helper()
	out := make(map[string][][]string, len(tables))
	WithDB(t, path, func(db *sqlx.DB) {
		for _, table := range tables {
			rows, err := db.Queryx("SELECT * FROM " + table + " ORDER BY rowid")
			if err != nil {
				t.Fatalf("snapshot %s: %v", table, err)
			}
			var dump [][]string
			for rows.Next() {
				cols, err := rows.SliceScan()
				if err != nil {
					rows.Close()
					t.Fatalf("snapshot %s: %v", table, err)
				}
				row := make([]string, len(cols))
				for i, c := range cols {
					row[i] = stringify(c)
				}
				dump = append(dump, row)
			}
			if err := rows.Err(); err != nil {
				t.Fatalf("snapshot %s: %v", table, err)
			}
			rows.Close()
			out[table] = dump
		}
	})
	return out
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}
