package sales

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/stockbook/internal/apperr"
	"github.com/roach88/stockbook/internal/store"
)

// Recorder records sales and answers sales queries against one store.
type Recorder struct {
	opener store.Opener
	lock   *store.Lock
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLock makes Record hold lock in shared mode for its duration, so an
// import cannot replace the store file mid-sale.
func WithLock(l *store.Lock) Option {
	return func(r *Recorder) { r.lock = l }
}

// WithClock replaces time.Now for default sale dates and report windows.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(l *zap.Logger) Option {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRecorder returns a Recorder over opener.
func NewRecorder(opener store.Opener, opts ...Option) *Recorder {
	r := &Recorder{
		opener: opener,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// stockRow is what validation needs to know about a product.
type stockRow struct {
	ID     int64  `db:"id"`
	Name   string `db:"name"`
	Stock  int64  `db:"stock"`
	Active bool   `db:"active"`
}

// Record validates and stores a sale with all its line items, decrementing
// stock, as a single transaction.
func (r *Recorder) Record(ctx context.Context, in SaleInput) (Receipt, error) {
	if err := in.validate(); err != nil {
		return Receipt{}, fmt.Errorf("record sale: %w", err)
	}
	if in.PaymentType == "" {
		in.PaymentType = PaidInFull
	}
	if in.Date.IsZero() {
		in.Date = r.now()
	}
	in.CustomerName = strings.TrimSpace(in.CustomerName)

	if r.lock != nil {
		if err := r.lock.Shared(ctx); err != nil {
			return Receipt{}, fmt.Errorf("record sale: %w", err)
		}
		defer r.lock.Unlock()
	}

	st, err := r.opener.Open(ctx)
	if err != nil {
		return Receipt{}, fmt.Errorf("record sale: %w", err)
	}
	defer st.Close()

	receipt, err := r.record(ctx, st.DB(), in)
	if err != nil {
		r.logger.Debug("sale rejected", zap.Error(err), zap.Int("items", len(in.Items)))
		return Receipt{}, fmt.Errorf("record sale: %w", err)
	}

	r.logger.Info("sale recorded",
		zap.Int64("sale_id", receipt.SaleID),
		zap.String("total", receipt.Total.String()),
		zap.Int("items", receipt.ItemsRecorded),
	)
	return receipt, nil
}

func (r *Recorder) record(ctx context.Context, db *sqlx.DB, in SaleInput) (Receipt, error) {
	// Checks read outside the transaction so a rejected sale never takes
	// the write lock. The guarded decrement below catches stock that moved
	// in between.
	products, err := loadProducts(ctx, db, in.Items)
	if err != nil {
		return Receipt{}, err
	}
	if err := checkProducts(in.Items, products); err != nil {
		return Receipt{}, err
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return Receipt{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	total := in.Total()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO sales (date, customer_name, total, payment_type)
		VALUES (?, ?, ?, ?)
	`, store.NewTime(in.Date), in.CustomerName, total, string(in.PaymentType))
	if err != nil {
		return Receipt{}, fmt.Errorf("insert sale header: %w", err)
	}
	saleID, err := res.LastInsertId()
	if err != nil {
		return Receipt{}, fmt.Errorf("insert sale header: last id: %w", err)
	}

	stamp := store.NewTime(r.now())
	for _, li := range in.Items {
		p := products[li.ProductID]

		_, err := tx.ExecContext(ctx, `
			INSERT INTO sold_line_items (sale_id, product_id, name_snapshot, quantity, unit_price, subtotal)
			VALUES (?, ?, ?, ?, ?, ?)
		`, saleID, li.ProductID, norm.NFC.String(p.Name), li.Quantity, li.UnitPrice, li.Subtotal())
		if err != nil {
			return Receipt{}, fmt.Errorf("insert line item for product %d: %w", li.ProductID, err)
		}

		if err := decrementStock(ctx, tx, p, li.Quantity, stamp); err != nil {
			return Receipt{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return Receipt{}, fmt.Errorf("commit: %w", err)
	}

	return Receipt{SaleID: saleID, Total: total, ItemsRecorded: len(in.Items)}, nil
}

func loadProducts(ctx context.Context, db *sqlx.DB, items []LineItemInput) (map[int64]stockRow, error) {
	ids := make([]int64, 0, len(items))
	seen := make(map[int64]bool, len(items))
	for _, li := range items {
		if !seen[li.ProductID] {
			seen[li.ProductID] = true
			ids = append(ids, li.ProductID)
		}
	}

	query, args, err := sqlx.In("SELECT id, name, stock, active FROM products WHERE id IN (?)", ids)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	var rows []stockRow
	if err := db.SelectContext(ctx, &rows, db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}

	products := make(map[int64]stockRow, len(rows))
	for _, row := range rows {
		products[row.ID] = row
	}
	return products, nil
}

// checkProducts runs the store-backed validation steps, each across every
// item before the next begins.
func checkProducts(items []LineItemInput, products map[int64]stockRow) error {
	for _, li := range items {
		if _, ok := products[li.ProductID]; !ok {
			return apperr.NotFound("product", li.ProductID)
		}
	}
	for _, li := range items {
		if p := products[li.ProductID]; !p.Active {
			return apperr.Validation("product %d (%s) is discontinued and cannot be sold", p.ID, p.Name)
		}
	}

	requested := make(map[int64]int64, len(products))
	var order []int64
	for _, li := range items {
		if _, ok := requested[li.ProductID]; !ok {
			order = append(order, li.ProductID)
		}
		requested[li.ProductID] += li.Quantity
	}
	for _, id := range order {
		p := products[id]
		if requested[id] > p.Stock {
			return &InsufficientStockError{
				ProductID:   id,
				ProductName: p.Name,
				Available:   p.Stock,
				Requested:   requested[id],
			}
		}
	}
	return nil
}

// decrementStock lowers stock only while it stays non-negative. Zero affected
// rows means another writer got there first.
func decrementStock(ctx context.Context, tx *sqlx.Tx, p stockRow, qty int64, stamp store.Time) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE products SET stock = stock - ?, updated_at = ?
		WHERE id = ? AND stock >= ?
	`, qty, stamp, p.ID, qty)
	if err != nil {
		return fmt.Errorf("decrement stock for product %d: %w", p.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("decrement stock for product %d: %w", p.ID, err)
	}
	if n == 0 {
		var available int64
		if err := tx.GetContext(ctx, &available, "SELECT stock FROM products WHERE id = ?", p.ID); err != nil {
			return fmt.Errorf("decrement stock for product %d: %w", p.ID, err)
		}
		return &InsufficientStockError{ProductID: p.ID, ProductName: p.Name, Available: available, Requested: qty}
	}
	return nil
}
