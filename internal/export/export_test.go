package export

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stockbook/internal/store"
	"github.com/roach88/stockbook/internal/testutil"
)

func seed(t *testing.T) string {
	t.Helper()
	path := testutil.NewStorePath(t)
	testutil.Exec(t, path, `
		INSERT INTO categories (id, name) VALUES (1, 'Makeup'), (2, 'Skin, Care');
		INSERT INTO products (id, name, category_id, stock, price, active, created_at, updated_at)
		VALUES (1, 'Lipstick "Red"', 1, 3, '10', 1, '2024-01-15 10:30:00', '2024-01-15 10:30:00'),
		       (2, 'Cream', NULL, 0, '5.5', 0, NULL, NULL);
		INSERT INTO sales (id, date, customer_name, total, payment_type)
		VALUES (1, '2024-01-15 10:30:00', 'Lucia', '25.5', 'on_credit');
		INSERT INTO sold_line_items (id, sale_id, product_id, name_snapshot, quantity, unit_price, subtotal)
		VALUES (1, 1, 1, 'Lipstick "Red"', 2, '10', '20'), (2, 1, 2, 'Cream', 1, '5.5', '5.5');
	`)
	return path
}

func TestWriteCSV_Golden(t *testing.T) {
	path := seed(t)

	var buf bytes.Buffer
	var counts Counts
	testutil.WithDB(t, path, func(db *sqlx.DB) {
		var err error
		counts, err = WriteCSV(context.Background(), db, &buf)
		require.NoError(t, err)
	})

	assert.Equal(t, Counts{Categories: 2, Products: 2, Sales: 1, SoldLineItems: 2}, counts)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "export_all", buf.Bytes())
}

func TestToFile(t *testing.T) {
	path := seed(t)
	dest := filepath.Join(t.TempDir(), "export.csv")

	counts, err := ToFile(context.Background(), store.Provider{Path: path}, dest)
	require.NoError(t, err)
	assert.Equal(t, 2, counts.SoldLineItems)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("CATEGORIES\nid,name\n")))
	assert.Contains(t, string(data), "\nSOLD LINE ITEMS\n")
}
