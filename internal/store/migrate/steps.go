package migrate

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Schema version history:
// 0 - Initial release: categories, products, sales, sold_line_items
// 1 - products.thumbnail
// 2 - products.active (soft delete)
// 3 - sales.customer_name
// 4 - sales.payment_type
// 5 - sold_line_items.name_snapshot, backfilled from products
// 6 - profile table

// Steps returns the application's migration steps in version order.
func Steps() []Step {
	return []Step{
		{Version: 1, Name: "products_add_thumbnail", Apply: addColumn("products", "thumbnail", "TEXT")},
		{Version: 2, Name: "products_add_active", Apply: addColumn("products", "active", "INTEGER NOT NULL DEFAULT 1")},
		{Version: 3, Name: "sales_add_customer_name", Apply: addColumn("sales", "customer_name", "TEXT NOT NULL DEFAULT ''")},
		{Version: 4, Name: "sales_add_payment_type", Apply: addColumn("sales", "payment_type", "TEXT NOT NULL DEFAULT 'paid_in_full'")},
		{Version: 5, Name: "sold_line_items_add_name_snapshot", Apply: addNameSnapshot},
		{Version: 6, Name: "create_profile", Apply: createProfile},
	}
}

// addColumn returns a step body that adds table.column unless it is already
// present. Stores written by early builds sometimes carry columns ahead of
// their recorded version.
func addColumn(table, column, definition string) func(context.Context, *sqlx.Tx) error {
	return func(ctx context.Context, tx *sqlx.Tx) error {
		exists, err := ColumnExists(ctx, tx, table, column)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition)
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("add column %s.%s: %w", table, column, err)
		}
		return nil
	}
}

// addNameSnapshot adds the historical product name to line items and fills it
// for existing rows from the current product name. Rows whose product is gone
// keep the empty default.
func addNameSnapshot(ctx context.Context, tx *sqlx.Tx) error {
	if err := addColumn("sold_line_items", "name_snapshot", "TEXT NOT NULL DEFAULT ''")(ctx, tx); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE sold_line_items
		SET name_snapshot = COALESCE(
			(SELECT p.name FROM products p WHERE p.id = sold_line_items.product_id), '')
		WHERE name_snapshot = ''
	`)
	if err != nil {
		return fmt.Errorf("backfill name_snapshot: %w", err)
	}
	return nil
}

func createProfile(ctx context.Context, tx *sqlx.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS profile (
			id         INTEGER PRIMARY KEY CHECK (id = 1),
			name       TEXT NOT NULL,
			role       TEXT NOT NULL,
			photo_path TEXT,
			thumbnail  TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

// ColumnExists reports whether table has a column named column.
func ColumnExists(ctx context.Context, q sqlx.QueryerContext, table, column string) (bool, error) {
	var count int
	err := sqlx.GetContext(ctx, q, &count,
		"SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?", table, column)
	if err != nil {
		return false, fmt.Errorf("inspect %s columns: %w", table, err)
	}
	return count > 0, nil
}

// TableExists reports whether a table named name exists.
func TableExists(ctx context.Context, q sqlx.QueryerContext, name string) (bool, error) {
	var count int
	err := sqlx.GetContext(ctx, q, &count,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name)
	if err != nil {
		return false, fmt.Errorf("inspect tables: %w", err)
	}
	return count > 0, nil
}
