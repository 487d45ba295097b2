package sales

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/roach88/stockbook/internal/apperr"
	"github.com/roach88/stockbook/internal/store"
)

const saleColumns = `id, date, customer_name, total, payment_type`

// DefaultTopLimit is how many best sellers TopProducts returns for limit <= 0.
const DefaultTopLimit = 5

// ListFilter narrows List. Zero values mean no bound.
type ListFilter struct {
	Since time.Time
	Limit int
}

func (r *Recorder) withStore(ctx context.Context, fn func(*store.Store) error) error {
	st, err := r.opener.Open(ctx)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(st)
}

// Get returns a sale with its line items.
func (r *Recorder) Get(ctx context.Context, id int64) (*Detail, error) {
	var d Detail
	err := r.withStore(ctx, func(st *store.Store) error {
		sale, err := getSale(ctx, st.DB(), id)
		if err != nil {
			return err
		}
		d.Sale = *sale
		d.Items, err = items(ctx, st.DB(), id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get sale: %w", err)
	}
	return &d, nil
}

// List returns sale headers, newest first.
func (r *Recorder) List(ctx context.Context, f ListFilter) ([]Sale, error) {
	var (
		where []string
		args  []any
	)
	if !f.Since.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, store.NewTime(f.Since))
	}

	query := `SELECT ` + saleColumns + ` FROM sales`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY date DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	var sales []Sale
	err := r.withStore(ctx, func(st *store.Store) error {
		return st.DB().SelectContext(ctx, &sales, query, args...)
	})
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	return sales, nil
}

// Items returns the line items of a sale in insertion order.
func (r *Recorder) Items(ctx context.Context, saleID int64) ([]LineItem, error) {
	var out []LineItem
	err := r.withStore(ctx, func(st *store.Store) error {
		if _, err := getSale(ctx, st.DB(), saleID); err != nil {
			return err
		}
		var err error
		out, err = items(ctx, st.DB(), saleID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list items of sale %d: %w", saleID, err)
	}
	return out, nil
}

// UpdateHeader edits date, customer and payment type. The total was fixed
// when the sale was recorded and is never recomputed.
func (r *Recorder) UpdateHeader(ctx context.Context, id int64, u HeaderUpdate) (*Sale, error) {
	if u.PaymentType == "" {
		u.PaymentType = PaidInFull
	}
	if !u.PaymentType.Valid() {
		return nil, fmt.Errorf("update sale %d: %w", id, apperr.Validation("unknown payment type %q", u.PaymentType))
	}
	if u.Date.IsZero() {
		return nil, fmt.Errorf("update sale %d: %w", id, apperr.Validation("sale date is required"))
	}

	var sale *Sale
	err := r.withStore(ctx, func(st *store.Store) error {
		res, err := st.DB().ExecContext(ctx, `
			UPDATE sales SET date = ?, customer_name = ?, payment_type = ?
			WHERE id = ?
		`, store.NewTime(u.Date), strings.TrimSpace(u.CustomerName), string(u.PaymentType), id)
		if err != nil {
			return fmt.Errorf("update: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.NotFound("sale", id)
		}
		sale, err = getSale(ctx, st.DB(), id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("update sale %d: %w", id, err)
	}
	return sale, nil
}

// Delete removes a sale; its line items go with it. Stock is not restored.
func (r *Recorder) Delete(ctx context.Context, id int64) error {
	err := r.withStore(ctx, func(st *store.Store) error {
		res, err := st.DB().ExecContext(ctx, "DELETE FROM sales WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("delete: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.NotFound("sale", id)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete sale %d: %w", id, err)
	}
	r.logger.Info("sale deleted", zap.Int64("sale_id", id))
	return nil
}

// TopProducts ranks products by revenue, grouped by the name they were sold
// under. Ties break on quantity, then name.
func (r *Recorder) TopProducts(ctx context.Context, limit int) ([]ProductTotal, error) {
	if limit <= 0 {
		limit = DefaultTopLimit
	}

	var rows []struct {
		Name     string          `db:"name_snapshot"`
		Quantity int64           `db:"quantity"`
		Subtotal decimal.Decimal `db:"subtotal"`
	}
	err := r.withStore(ctx, func(st *store.Store) error {
		return st.DB().SelectContext(ctx, &rows,
			"SELECT name_snapshot, quantity, subtotal FROM sold_line_items")
	})
	if err != nil {
		return nil, fmt.Errorf("top products: %w", err)
	}

	// Subtotals are decimal text; summing in SQL would go through floats.
	byName := make(map[string]*ProductTotal)
	for _, row := range rows {
		pt, ok := byName[row.Name]
		if !ok {
			pt = &ProductTotal{Name: row.Name, Revenue: decimal.Zero}
			byName[row.Name] = pt
		}
		pt.Quantity += row.Quantity
		pt.Revenue = pt.Revenue.Add(row.Subtotal)
	}

	out := make([]ProductTotal, 0, len(byName))
	for _, pt := range byName {
		out = append(out, *pt)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Revenue.Cmp(out[j].Revenue); c != 0 {
			return c > 0
		}
		if out[i].Quantity != out[j].Quantity {
			return out[i].Quantity > out[j].Quantity
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// TotalsSince counts and sums sales dated on or after the start of since's
// day (UTC).
func (r *Recorder) TotalsSince(ctx context.Context, since time.Time) (Totals, error) {
	day := startOfDay(since)
	var amounts []decimal.Decimal
	err := r.withStore(ctx, func(st *store.Store) error {
		return st.DB().SelectContext(ctx, &amounts,
			"SELECT total FROM sales WHERE DATE(date) >= DATE(?)", store.NewTime(day))
	})
	if err != nil {
		return Totals{}, fmt.Errorf("sales totals: %w", err)
	}
	return Totals{Since: day, Count: len(amounts), Amount: sumDecimals(amounts)}, nil
}

// Summary returns totals for today and for the last 30 days, both relative
// to the recorder's clock.
func (r *Recorder) Summary(ctx context.Context) (Summary, error) {
	now := r.now()
	today, err := r.TotalsSince(ctx, now)
	if err != nil {
		return Summary{}, err
	}
	month, err := r.TotalsSince(ctx, now.AddDate(0, 0, -30))
	if err != nil {
		return Summary{}, err
	}
	return Summary{Today: today, Last30Days: month}, nil
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func getSale(ctx context.Context, q sqlx.QueryerContext, id int64) (*Sale, error) {
	var s Sale
	err := sqlx.GetContext(ctx, q, &s, `SELECT `+saleColumns+` FROM sales WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("sale", id)
	}
	if err != nil {
		return nil, fmt.Errorf("select sale %d: %w", id, err)
	}
	return &s, nil
}

func items(ctx context.Context, q sqlx.QueryerContext, saleID int64) ([]LineItem, error) {
	var out []LineItem
	err := sqlx.SelectContext(ctx, q, &out, `
		SELECT id, sale_id, product_id, name_snapshot, quantity, unit_price, subtotal
		FROM sold_line_items WHERE sale_id = ? ORDER BY id
	`, saleID)
	if err != nil {
		return nil, fmt.Errorf("select items of sale %d: %w", saleID, err)
	}
	return out, nil
}

// sumDecimals adds decimal values exactly.
func sumDecimals(values []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
