package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/stockbook/internal/apperr"
	"github.com/roach88/stockbook/internal/catalog"
	"github.com/roach88/stockbook/internal/money"
	"github.com/roach88/stockbook/internal/sales"
	"github.com/roach88/stockbook/internal/store"
	"github.com/roach88/stockbook/internal/testutil"
)

// Harness runs one scenario against its own store.
type Harness struct {
	store    store.Provider
	catalog  *catalog.Service
	sales    *sales.Recorder
	logger   *zap.Logger
	products map[string]*catalog.Product
	saleIDs  map[string]int64
}

// Option configures a run.
type Option func(*options)

type options struct {
	logger *zap.Logger
	dir    string
}

// WithLogger sends service logs to l. Runs are silent by default.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithDir places the scenario store under dir instead of a fresh temp
// directory. The directory is left in place afterwards.
func WithDir(dir string) Option {
	return func(o *options) { o.dir = dir }
}

// Run executes a scenario and returns the result.
//
// Each run gets a brand-new store file and a step clock starting at
// testutil.Epoch, so two runs of the same scenario produce identical
// traces. An error is returned only when the harness itself cannot
// proceed (setup failed, store unusable); failed expectations are reported
// in Result.Errors.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	dir := o.dir
	if dir == "" {
		tmp, err := os.MkdirTemp("", "stockbook-scenario-")
		if err != nil {
			return nil, fmt.Errorf("create scenario dir: %w", err)
		}
		defer os.RemoveAll(tmp)
		dir = tmp
	}

	provider := store.Provider{Path: filepath.Join(dir, scenario.Name+".db")}
	clock := testutil.NewStepClock(testutil.Epoch, time.Minute)
	logger := o.logger.With(zap.String("scenario", scenario.Name))

	h := &Harness{
		store:    provider,
		catalog:  catalog.NewService(provider, catalog.WithClock(clock.Now), catalog.WithLogger(logger)),
		sales:    sales.NewRecorder(provider, sales.WithClock(clock.Now), sales.WithLogger(logger)),
		logger:   logger,
		products: make(map[string]*catalog.Product),
		saleIDs:  make(map[string]int64),
	}

	if err := h.executeSetup(ctx, scenario.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Flow {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("flow step %d: %w", i, err)
		}
	}

	for _, msg := range h.evaluateAssertions(ctx, result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) executeSetup(ctx context.Context, setup Setup) error {
	categories := make(map[string]int64, len(setup.Categories))
	for _, name := range setup.Categories {
		c, err := h.catalog.CreateCategory(ctx, name)
		if err != nil {
			return err
		}
		categories[name] = c.ID
	}

	for _, seed := range setup.Products {
		in := catalog.ProductInput{Name: seed.Name, Stock: seed.Stock, Price: money.MustParse(seed.Price)}
		if seed.Category != "" {
			id, ok := categories[seed.Category]
			if !ok {
				return fmt.Errorf("product %q: unknown category %q", seed.Key, seed.Category)
			}
			in.CategoryID = &id
		}
		p, err := h.catalog.CreateProduct(ctx, in)
		if err != nil {
			return fmt.Errorf("product %q: %w", seed.Key, err)
		}
		h.products[seed.Key] = p
	}

	h.logger.Debug("setup completed",
		zap.Int("categories", len(categories)),
		zap.Int("products", len(h.products)),
	)
	return nil
}

// executeStep runs one flow step and records it in the trace. Operation
// errors become the step outcome; only harness failures are returned.
func (h *Harness) executeStep(ctx context.Context, i int, step FlowStep, result *Result) error {
	var (
		args    map[string]any
		details map[string]string
		opErr   error
	)

	switch step.Action {
	case ActionRecordSale:
		in, err := h.saleInput(step.Sale)
		if err != nil {
			return err
		}
		args = saleArgs(step.Sale)
		receipt, err := h.sales.Record(ctx, in)
		opErr = err
		if err == nil {
			details = map[string]string{
				"sale_id": fmt.Sprintf("%d", receipt.SaleID),
				"total":   money.Fixed(receipt.Total),
				"items":   fmt.Sprintf("%d", receipt.ItemsRecorded),
			}
			if step.Ref != "" {
				h.saleIDs[step.Ref] = receipt.SaleID
			}
		}

	case ActionDeleteSale:
		args = map[string]any{"ref": step.Ref}
		opErr = h.sales.Delete(ctx, h.saleIDs[step.Ref])

	case ActionDeleteProduct:
		args = map[string]any{"product": step.Product}
		res, err := h.catalog.DeleteProduct(ctx, h.products[step.Product].ID)
		opErr = err
		if err == nil {
			details = map[string]string{"deactivated": fmt.Sprintf("%t", res.Deactivated)}
		}

	case ActionSetStock, ActionRenameProduct:
		args = map[string]any{"product": step.Product}
		cur, err := h.catalog.GetProduct(ctx, h.products[step.Product].ID)
		if err != nil {
			return err
		}
		in := catalog.ProductInput{
			Name:       cur.Name,
			CategoryID: cur.CategoryID,
			ImagePath:  cur.ImagePath,
			Thumbnail:  cur.Thumbnail,
			Stock:      cur.Stock,
			Price:      cur.Price,
		}
		if step.Action == ActionSetStock {
			in.Stock = step.Stock
			args["stock"] = step.Stock
		} else {
			in.Name = step.Name
			args["name"] = step.Name
		}
		_, opErr = h.catalog.UpdateProduct(ctx, cur.ID, in)
	}

	outcome := OutcomeOK
	if opErr != nil {
		outcome = string(apperr.CodeOf(opErr))
		details = map[string]string{"error": opErr.Error()}
	}
	result.AddTrace(step.Action, args, outcome, details)

	h.logger.Debug("flow step completed",
		zap.Int("step", i),
		zap.String("action", step.Action),
		zap.String("outcome", outcome),
	)

	if step.Expect == nil {
		return nil
	}
	if step.Expect.Outcome != outcome {
		msg := fmt.Sprintf("flow[%d] %s: expected outcome %s, got %s", i, step.Action, step.Expect.Outcome, outcome)
		if opErr != nil {
			msg += " (" + opErr.Error() + ")"
		}
		result.AddError(msg)
		return nil
	}
	if step.Expect.Total != "" && outcome == OutcomeOK {
		want := money.Fixed(money.MustParse(step.Expect.Total))
		if got := details["total"]; got != want {
			result.AddError(fmt.Sprintf("flow[%d] %s: expected total %s, got %s", i, step.Action, want, got))
		}
	}
	return nil
}

// saleInput resolves product keys to ids. An unknown key maps to an id no
// product has, so the sale fails with NOT_FOUND the way a stale id would.
func (h *Harness) saleInput(args *SaleArgs) (sales.SaleInput, error) {
	pt, err := sales.ParsePaymentType(args.PaymentType)
	if err != nil {
		// Pass the raw value through so Record reports it.
		pt = sales.PaymentType(args.PaymentType)
	}

	in := sales.SaleInput{CustomerName: args.Customer, PaymentType: pt}
	for _, item := range args.Items {
		li := sales.LineItemInput{ProductID: missingProductID, Quantity: item.Quantity}
		if p, ok := h.products[item.Product]; ok {
			li.ProductID = p.ID
			li.UnitPrice = p.Price
		}
		if item.UnitPrice != "" {
			price, err := money.Parse(item.UnitPrice)
			if err != nil {
				return sales.SaleInput{}, err
			}
			li.UnitPrice = price
		}
		in.Items = append(in.Items, li)
	}
	return in, nil
}

const missingProductID = 999999

func saleArgs(args *SaleArgs) map[string]any {
	items := make([]any, len(args.Items))
	for i, item := range args.Items {
		m := map[string]any{"product": item.Product, "quantity": item.Quantity}
		if item.UnitPrice != "" {
			m["unit_price"] = item.UnitPrice
		}
		items[i] = m
	}
	out := map[string]any{"items": items}
	if args.Customer != "" {
		out["customer"] = args.Customer
	}
	if args.PaymentType != "" {
		out["payment_type"] = args.PaymentType
	}
	return out
}
