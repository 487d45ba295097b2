// Package export writes the whole store as one sectioned CSV document.
//
// Sections appear in a fixed order (CATEGORIES, PRODUCTS, SALES,
// SOLD LINE ITEMS), each a title line, a column header and the rows, with a
// blank line between sections. Amounts are rendered with two decimals.
package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/gocarina/gocsv"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/roach88/stockbook/internal/money"
	"github.com/roach88/stockbook/internal/store"
)

type categoryRow struct {
	ID   int64  `db:"id" csv:"id"`
	Name string `db:"name" csv:"name"`
}

type productRow struct {
	ID         int64  `csv:"id"`
	Name       string `csv:"name"`
	CategoryID string `csv:"category_id"`
	Stock      int64  `csv:"stock"`
	Price      string `csv:"price"`
	Active     bool   `csv:"active"`
	CreatedAt  string `csv:"created_at"`
	UpdatedAt  string `csv:"updated_at"`
}

type saleRow struct {
	ID           int64  `csv:"id"`
	Date         string `csv:"date"`
	CustomerName string `csv:"customer_name"`
	Total        string `csv:"total"`
	PaymentType  string `csv:"payment_type"`
}

type lineItemRow struct {
	ID           int64  `csv:"id"`
	SaleID       int64  `csv:"sale_id"`
	ProductID    int64  `csv:"product_id"`
	NameSnapshot string `csv:"name_snapshot"`
	Quantity     int64  `csv:"quantity"`
	UnitPrice    string `csv:"unit_price"`
	Subtotal     string `csv:"subtotal"`
}

// Counts reports how many rows each section holds.
type Counts struct {
	Categories    int `json:"categories"`
	Products      int `json:"products"`
	Sales         int `json:"sales"`
	SoldLineItems int `json:"sold_line_items"`
}

// WriteCSV writes every section to w.
func WriteCSV(ctx context.Context, q sqlx.QueryerContext, w io.Writer) (Counts, error) {
	var counts Counts

	var categories []categoryRow
	if err := sqlx.SelectContext(ctx, q, &categories, "SELECT id, name FROM categories ORDER BY id"); err != nil {
		return counts, fmt.Errorf("export categories: %w", err)
	}
	counts.Categories = len(categories)

	products, err := loadProducts(ctx, q)
	if err != nil {
		return counts, err
	}
	counts.Products = len(products)

	sales, err := loadSales(ctx, q)
	if err != nil {
		return counts, err
	}
	counts.Sales = len(sales)

	items, err := loadLineItems(ctx, q)
	if err != nil {
		return counts, err
	}
	counts.SoldLineItems = len(items)

	sections := []struct {
		title string
		rows  any
	}{
		{"CATEGORIES", &categories},
		{"PRODUCTS", &products},
		{"SALES", &sales},
		{"SOLD LINE ITEMS", &items},
	}
	for i, s := range sections {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return counts, fmt.Errorf("export: %w", err)
			}
		}
		if err := writeSection(w, s.title, s.rows); err != nil {
			return counts, err
		}
	}
	return counts, nil
}

// ToFile exports the store behind opener to dest.
func ToFile(ctx context.Context, opener store.Opener, dest string) (Counts, error) {
	st, err := opener.Open(ctx)
	if err != nil {
		return Counts{}, fmt.Errorf("export: %w", err)
	}
	defer st.Close()

	var buf bytes.Buffer
	counts, err := WriteCSV(ctx, st.DB(), &buf)
	if err != nil {
		return Counts{}, err
	}
	if err := os.WriteFile(dest, buf.Bytes(), 0o644); err != nil {
		return Counts{}, fmt.Errorf("export: write %s: %w", dest, err)
	}
	return counts, nil
}

func writeSection(w io.Writer, title string, rows any) error {
	if _, err := io.WriteString(w, title+"\n"); err != nil {
		return fmt.Errorf("export %s: %w", title, err)
	}
	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("export %s: %w", title, err)
	}
	return nil
}

func loadProducts(ctx context.Context, q sqlx.QueryerContext) ([]productRow, error) {
	var rows []struct {
		ID         int64           `db:"id"`
		Name       string          `db:"name"`
		CategoryID *int64          `db:"category_id"`
		Stock      int64           `db:"stock"`
		Price      decimal.Decimal `db:"price"`
		Active     bool            `db:"active"`
		CreatedAt  store.Time      `db:"created_at"`
		UpdatedAt  store.Time      `db:"updated_at"`
	}
	err := sqlx.SelectContext(ctx, q, &rows, `
		SELECT id, name, category_id, stock, price, active, created_at, updated_at
		FROM products ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("export products: %w", err)
	}

	out := make([]productRow, len(rows))
	for i, r := range rows {
		out[i] = productRow{
			ID:        r.ID,
			Name:      r.Name,
			Stock:     r.Stock,
			Price:     money.Fixed(r.Price),
			Active:    r.Active,
			CreatedAt: r.CreatedAt.String(),
			UpdatedAt: r.UpdatedAt.String(),
		}
		if r.CategoryID != nil {
			out[i].CategoryID = strconv.FormatInt(*r.CategoryID, 10)
		}
	}
	return out, nil
}

func loadSales(ctx context.Context, q sqlx.QueryerContext) ([]saleRow, error) {
	var rows []struct {
		ID           int64           `db:"id"`
		Date         store.Time      `db:"date"`
		CustomerName string          `db:"customer_name"`
		Total        decimal.Decimal `db:"total"`
		PaymentType  string          `db:"payment_type"`
	}
	err := sqlx.SelectContext(ctx, q, &rows,
		"SELECT id, date, customer_name, total, payment_type FROM sales ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("export sales: %w", err)
	}

	out := make([]saleRow, len(rows))
	for i, r := range rows {
		out[i] = saleRow{
			ID:           r.ID,
			Date:         r.Date.String(),
			CustomerName: r.CustomerName,
			Total:        money.Fixed(r.Total),
			PaymentType:  r.PaymentType,
		}
	}
	return out, nil
}

func loadLineItems(ctx context.Context, q sqlx.QueryerContext) ([]lineItemRow, error) {
	var rows []struct {
		ID           int64           `db:"id"`
		SaleID       int64           `db:"sale_id"`
		ProductID    int64           `db:"product_id"`
		NameSnapshot string          `db:"name_snapshot"`
		Quantity     int64           `db:"quantity"`
		UnitPrice    decimal.Decimal `db:"unit_price"`
		Subtotal     decimal.Decimal `db:"subtotal"`
	}
	err := sqlx.SelectContext(ctx, q, &rows, `
		SELECT id, sale_id, product_id, name_snapshot, quantity, unit_price, subtotal
		FROM sold_line_items ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("export sold line items: %w", err)
	}

	out := make([]lineItemRow, len(rows))
	for i, r := range rows {
		out[i] = lineItemRow{
			ID:           r.ID,
			SaleID:       r.SaleID,
			ProductID:    r.ProductID,
			NameSnapshot: r.NameSnapshot,
			Quantity:     r.Quantity,
			UnitPrice:    money.Fixed(r.UnitPrice),
			Subtotal:     money.Fixed(r.Subtotal),
		}
	}
	return out, nil
}
