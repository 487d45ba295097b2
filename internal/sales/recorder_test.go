package sales

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stockbook/internal/apperr"
	"github.com/roach88/stockbook/internal/store"
	"github.com/roach88/stockbook/internal/testutil"
)

var allTables = []string{"categories", "products", "sales", "sold_line_items", "sqlite_sequence"}

func newRecorder(t *testing.T, opts ...Option) (*Recorder, string) {
	t.Helper()
	path := testutil.NewStorePath(t)
	opts = append([]Option{WithClock(testutil.NewFixedClock(testutil.Epoch).Now)}, opts...)
	return NewRecorder(store.Provider{Path: path}, opts...), path
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func stockOf(t *testing.T, path string, id int64) int64 {
	t.Helper()
	var stock int64
	testutil.WithDB(t, path, func(db *sqlx.DB) {
		require.NoError(t, db.Get(&stock, "SELECT stock FROM products WHERE id = ?", id))
	})
	return stock
}

func countRows(t *testing.T, path, table string) int {
	t.Helper()
	var n int
	testutil.WithDB(t, path, func(db *sqlx.DB) {
		require.NoError(t, db.Get(&n, "SELECT COUNT(*) FROM "+table))
	})
	return n
}

func TestRecord_TwoItemScenario(t *testing.T) {
	rec, path := newRecorder(t)
	p1 := testutil.SeedProduct(t, path, "Lipstick", 5, "10.00")
	p2 := testutil.SeedProduct(t, path, "Mascara", 1, "5.00")

	receipt, err := rec.Record(context.Background(), SaleInput{
		CustomerName: "Lucia",
		PaymentType:  OnCredit,
		Items: []LineItemInput{
			{ProductID: p1, Quantity: 2, UnitPrice: dec("10.00")},
			{ProductID: p2, Quantity: 1, UnitPrice: dec("5.00")},
		},
	})
	require.NoError(t, err)

	assert.True(t, receipt.Total.Equal(dec("25.00")), "total = %s", receipt.Total)
	assert.Equal(t, 2, receipt.ItemsRecorded)
	assert.Equal(t, int64(3), stockOf(t, path, p1))
	assert.Equal(t, int64(0), stockOf(t, path, p2))

	detail, err := rec.Get(context.Background(), receipt.SaleID)
	require.NoError(t, err)
	assert.Equal(t, "Lucia", detail.CustomerName)
	assert.Equal(t, OnCredit, detail.PaymentType)
	assert.Equal(t, testutil.Epoch, detail.Date.Time)
	require.Len(t, detail.Items, 2)
	assert.Equal(t, "Lipstick", detail.Items[0].NameSnapshot)
	assert.True(t, detail.Items[0].Subtotal.Equal(dec("20")))
}

func TestRecord_NLineItems(t *testing.T) {
	for n := 1; n <= 6; n++ {
		rec, path := newRecorder(t)
		ctx := context.Background()

		var items []LineItemInput
		var ids []int64
		want := decimal.Zero
		for i := 0; i < n; i++ {
			id := testutil.SeedProduct(t, path, "item", 10, "1")
			ids = append(ids, id)
			li := LineItemInput{ProductID: id, Quantity: int64(i + 1), UnitPrice: dec("0.10")}
			items = append(items, li)
			want = want.Add(li.Subtotal())
		}

		receipt, err := rec.Record(ctx, SaleInput{Items: items})
		require.NoError(t, err, "n=%d", n)

		assert.Equal(t, 1, countRows(t, path, "sales"), "n=%d", n)
		assert.Equal(t, n, countRows(t, path, "sold_line_items"), "n=%d", n)
		assert.True(t, receipt.Total.Equal(want), "n=%d total=%s want=%s", n, receipt.Total, want)

		stored, err := rec.Items(ctx, receipt.SaleID)
		require.NoError(t, err)
		sum := decimal.Zero
		for _, li := range stored {
			sum = sum.Add(li.Subtotal)
		}
		assert.True(t, sum.Equal(receipt.Total), "n=%d", n)

		for i, id := range ids {
			assert.Equal(t, int64(10-(i+1)), stockOf(t, path, id), "n=%d product %d", n, id)
		}
	}
}

func TestRecord_ValidationOrder(t *testing.T) {
	rec, path := newRecorder(t)
	inStock := testutil.SeedProduct(t, path, "Blush", 5, "3")
	low := testutil.SeedProduct(t, path, "Primer", 1, "3")
	retired := testutil.SeedProduct(t, path, "Old", 9, "3")
	testutil.Exec(t, path, "UPDATE products SET active = 0 WHERE id = ?", retired)

	tests := []struct {
		name  string
		items []LineItemInput
		code  apperr.Code
	}{
		{"empty", nil, apperr.CodeValidation},
		{"zero quantity before missing product", []LineItemInput{
			{ProductID: 404, Quantity: 1},
			{ProductID: inStock, Quantity: 0},
		}, apperr.CodeValidation},
		{"negative price", []LineItemInput{{ProductID: inStock, Quantity: 1, UnitPrice: dec("-1")}}, apperr.CodeValidation},
		{"missing product before stock", []LineItemInput{
			{ProductID: low, Quantity: 50},
			{ProductID: 404, Quantity: 1},
		}, apperr.CodeNotFound},
		{"inactive before stock", []LineItemInput{
			{ProductID: low, Quantity: 50},
			{ProductID: retired, Quantity: 1},
		}, apperr.CodeValidation},
		{"stock", []LineItemInput{{ProductID: low, Quantity: 2}}, apperr.CodeInsufficientStock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := rec.Record(context.Background(), SaleInput{Items: tt.items})
			require.Error(t, err)
			assert.Equal(t, tt.code, apperr.CodeOf(err), "err = %v", err)
		})
	}

	_, err := rec.Record(context.Background(), SaleInput{})
	assert.Contains(t, err.Error(), "sale must contain at least one item")

	_, err = rec.Record(context.Background(), SaleInput{
		PaymentType: "barter",
		Items:       []LineItemInput{{ProductID: inStock, Quantity: 1}},
	})
	assert.True(t, apperr.Is(err, apperr.CodeValidation))

	_, err = rec.Record(context.Background(), SaleInput{Items: []LineItemInput{{ProductID: 404, Quantity: 1}}})
	assert.Contains(t, err.Error(), "404")
}

func TestRecord_StockIsCheckedPerProductAcrossLines(t *testing.T) {
	rec, path := newRecorder(t)
	id := testutil.SeedProduct(t, path, "Blush", 5, "3")

	_, err := rec.Record(context.Background(), SaleInput{Items: []LineItemInput{
		{ProductID: id, Quantity: 3, UnitPrice: dec("3")},
		{ProductID: id, Quantity: 3, UnitPrice: dec("3")},
	}})
	require.Error(t, err)

	var ise *InsufficientStockError
	require.True(t, errors.As(err, &ise))
	assert.Equal(t, id, ise.ProductID)
	assert.Equal(t, "Blush", ise.ProductName)
	assert.Equal(t, int64(5), ise.Available)
	assert.Equal(t, int64(6), ise.Requested)
	assert.Equal(t, int64(5), stockOf(t, path, id))
}

func TestRecord_InsufficientStockLeavesStoreUnchanged(t *testing.T) {
	rec, path := newRecorder(t)
	p1 := testutil.SeedProduct(t, path, "Lipstick", 5, "10")
	p2 := testutil.SeedProduct(t, path, "Mascara", 1, "5")

	_, err := rec.Record(context.Background(), SaleInput{Items: []LineItemInput{
		{ProductID: p1, Quantity: 1, UnitPrice: dec("10")},
	}})
	require.NoError(t, err)

	before := testutil.Snapshot(t, path, allTables...)

	_, err = rec.Record(context.Background(), SaleInput{Items: []LineItemInput{
		{ProductID: p1, Quantity: 1, UnitPrice: dec("10")},
		{ProductID: p2, Quantity: 2, UnitPrice: dec("5")},
	}})
	require.True(t, IsInsufficientStock(err), "err = %v", err)

	assert.Equal(t, before, testutil.Snapshot(t, path, allTables...))
}

func TestRecord_LineItemFailureRollsBackEverything(t *testing.T) {
	rec, path := newRecorder(t)
	p1 := testutil.SeedProduct(t, path, "Lipstick", 5, "10")
	p2 := testutil.SeedProduct(t, path, "Mascara", 5, "5")

	// The second line item insert fails after the header, the first line
	// item and the first decrement are already written.
	testutil.Exec(t, path, `
		CREATE TRIGGER reject_mascara BEFORE INSERT ON sold_line_items
		WHEN NEW.product_id = `+itoa(p2)+`
		BEGIN SELECT RAISE(ABORT, 'line item rejected'); END
	`)
	before := testutil.Snapshot(t, path, allTables...)

	_, err := rec.Record(context.Background(), SaleInput{Items: []LineItemInput{
		{ProductID: p1, Quantity: 2, UnitPrice: dec("10")},
		{ProductID: p2, Quantity: 1, UnitPrice: dec("5")},
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record sale: insert line item for product "+itoa(p2))
	assert.Contains(t, err.Error(), "line item rejected")

	assert.Equal(t, before, testutil.Snapshot(t, path, allTables...))
}

func TestRecord_StockChangedAfterValidation(t *testing.T) {
	rec, path := newRecorder(t)
	id := testutil.SeedProduct(t, path, "Lipstick", 5, "10")

	// Simulates a concurrent writer: the decrement sees less stock than the
	// checks did.
	testutil.Exec(t, path, `
		CREATE TRIGGER steal_stock AFTER INSERT ON sold_line_items
		BEGIN UPDATE products SET stock = 0 WHERE id = NEW.product_id; END
	`)
	before := testutil.Snapshot(t, path, allTables...)

	_, err := rec.Record(context.Background(), SaleInput{Items: []LineItemInput{
		{ProductID: id, Quantity: 2, UnitPrice: dec("10")},
	}})
	require.True(t, IsInsufficientStock(err), "err = %v", err)

	assert.Equal(t, before, testutil.Snapshot(t, path, allTables...))
}

func TestRecord_NameSnapshotIsFrozenAndNormalized(t *testing.T) {
	rec, path := newRecorder(t)
	// "Cafe" + combining acute accent, stored decomposed.
	id := testutil.SeedProduct(t, path, "Cafe\u0301 Liner", 5, "4")

	receipt, err := rec.Record(context.Background(), SaleInput{Items: []LineItemInput{
		{ProductID: id, Quantity: 1, UnitPrice: dec("4")},
	}})
	require.NoError(t, err)

	testutil.Exec(t, path, "UPDATE products SET name = 'Renamed' WHERE id = ?", id)

	items, err := rec.Items(context.Background(), receipt.SaleID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Caf\u00e9 Liner", items[0].NameSnapshot)
}

func TestRecord_WaitsForExclusiveHolder(t *testing.T) {
	path := testutil.NewStorePath(t)
	id := testutil.SeedProduct(t, path, "Lipstick", 5, "10")

	importer := store.NewLock(path)
	require.NoError(t, importer.TryExclusive())
	defer importer.Unlock()

	rec := NewRecorder(store.Provider{Path: path}, WithLock(store.NewLock(path)))
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	_, err := rec.Record(ctx, SaleInput{Items: []LineItemInput{{ProductID: id, Quantity: 1, UnitPrice: dec("10")}}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrLocked), "err = %v", err)
	assert.Equal(t, 0, countRows(t, path, "sales"))
}

func TestParsePaymentType(t *testing.T) {
	p, err := ParsePaymentType("")
	require.NoError(t, err)
	assert.Equal(t, PaidInFull, p)

	p, err = ParsePaymentType(" On_Credit ")
	require.NoError(t, err)
	assert.Equal(t, OnCredit, p)

	_, err = ParsePaymentType("cash")
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
