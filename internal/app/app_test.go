package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stockbook/internal/catalog"
	"github.com/roach88/stockbook/internal/config"
	"github.com/roach88/stockbook/internal/media"
	"github.com/roach88/stockbook/internal/money"
	"github.com/roach88/stockbook/internal/sales"
	"github.com/roach88/stockbook/internal/store"
	"github.com/roach88/stockbook/internal/testutil"
)

func newApp(t *testing.T) *App {
	t.Helper()
	cfg := config.Default()
	cfg.Store = filepath.Join(t.TempDir(), "inventory.db")
	a := NewWithLogger(cfg, nil)
	a.Clock = testutil.NewFixedClock(testutil.Epoch).Now
	return a
}

func TestInit_CreatesStore(t *testing.T) {
	a := newApp(t)

	report, err := a.Init(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Fresh)
	assert.FileExists(t, a.Config.Store)

	again, err := a.Init(context.Background())
	require.NoError(t, err)
	assert.False(t, again.Fresh)
	assert.Empty(t, again.Applied)
}

func TestInit_CreatesDefaultDataDirectory(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	a := NewWithLogger(config.Default(), nil)

	report, err := a.Init(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Fresh)
	assert.FileExists(t, filepath.Join(os.Getenv("XDG_DATA_HOME"), "stockbook", "inventory.db"))
}

func TestMigrationStatus(t *testing.T) {
	a := newApp(t)

	_, err := a.MigrationStatus(context.Background())
	assert.ErrorIs(t, err, store.ErrStoreNotFound)

	_, err = a.Init(context.Background())
	require.NoError(t, err)

	status, err := a.MigrationStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, status.Latest, status.Version)
	assert.Empty(t, status.Pending)
	assert.Len(t, status.History, status.Latest)
}

func TestServices_ShareTheStore(t *testing.T) {
	a := newApp(t)
	ctx := context.Background()

	p, err := a.Catalog().CreateProduct(ctx, catalog.ProductInput{
		Name:  "Lipstick",
		Stock: 10,
		Price: money.MustParse("12.50"),
	})
	require.NoError(t, err)

	receipt, err := a.Sales().Record(ctx, sales.SaleInput{
		Items: []sales.LineItemInput{{ProductID: p.ID, Quantity: 2, UnitPrice: p.Price}},
	})
	require.NoError(t, err)
	assert.Equal(t, "25.00", money.Fixed(receipt.Total))

	sale, err := a.Sales().Get(ctx, receipt.SaleID)
	require.NoError(t, err)
	assert.True(t, sale.Date.Time.Equal(testutil.Epoch), "sale date = %s", sale.Date)

	dest := filepath.Join(t.TempDir(), "copy.db")
	_, err = a.Backups().Backup(ctx, dest)
	require.NoError(t, err)
	assert.FileExists(t, dest)
}

func TestCatalog_UsesConfiguredPolicy(t *testing.T) {
	a := newApp(t)
	a.Config.Catalog.CategoryDeletePolicy = string(catalog.PolicyRestrict)
	assert.Equal(t, catalog.PolicyRestrict, a.Catalog().Policy())
}

func TestMedia_DefaultsBesideStore(t *testing.T) {
	a := newApp(t)
	a.NewID = testutil.FixedID("abc")

	path, err := a.Media().Save(media.KindProduct, "png", []byte{1})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(a.Config.Store), "media", "product_abc.png"), path)

	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestMoney_UsesDisplayConfig(t *testing.T) {
	a := newApp(t)
	f, err := a.Money()
	require.NoError(t, err)
	assert.Equal(t, "$1,234.50", f.Format(money.MustParse("1234.5")))
}
