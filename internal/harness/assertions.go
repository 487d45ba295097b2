package harness

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/roach88/stockbook/internal/money"
)

// validIdentifier matches valid SQL identifiers (table names).
// row_count interpolates the table name, so nothing else is accepted.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError is a failed assertion with enough context to debug it.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s -> %s\n", ev.Seq, ev.Action, ev.Outcome)
		}
	}
	return buf.String()
}

// evaluateAssertions runs every assertion and returns the failure messages.
func (h *Harness) evaluateAssertions(ctx context.Context, result *Result, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		if err := h.evaluate(ctx, result, a); err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func (h *Harness) evaluate(ctx context.Context, result *Result, a Assertion) error {
	switch a.Type {
	case AssertStock:
		p, err := h.catalog.GetProduct(ctx, h.products[a.Product].ID)
		if err != nil {
			return err
		}
		return compare(a, strconv.FormatInt(p.Stock, 10), nil)

	case AssertProductActive:
		p, err := h.catalog.GetProduct(ctx, h.products[a.Product].ID)
		if err != nil {
			return err
		}
		return compare(a, strconv.FormatBool(p.Active), nil)

	case AssertRowCount:
		n, err := h.rowCount(ctx, a.Table)
		if err != nil {
			return err
		}
		return compare(a, strconv.Itoa(n), nil)

	case AssertOutcomeCount:
		return compare(a, strconv.Itoa(result.Count(a.Action, a.Outcome)), result.Trace)

	case AssertRevenue:
		summary, err := h.sales.Summary(ctx)
		if err != nil {
			return err
		}
		want, err := money.Parse(a.Equals)
		if err != nil {
			return err
		}
		a.Equals = money.Fixed(want)
		return compare(a, money.Fixed(summary.Today.Amount), nil)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func (h *Harness) rowCount(ctx context.Context, table string) (int, error) {
	if !validIdentifier.MatchString(table) {
		return 0, fmt.Errorf("invalid table name %q: must match pattern %s", table, validIdentifier.String())
	}
	st, err := h.store.Open(ctx)
	if err != nil {
		return 0, err
	}
	defer st.Close()

	var n int
	if err := st.DB().GetContext(ctx, &n, "SELECT COUNT(*) FROM "+table); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func compare(a Assertion, actual string, trace []TraceEvent) error {
	if a.Equals == actual {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: describe(a) + " = " + a.Equals,
		Actual:   actual,
		Trace:    trace,
	}
}

func describe(a Assertion) string {
	switch a.Type {
	case AssertStock, AssertProductActive:
		return a.Type + "(" + a.Product + ")"
	case AssertRowCount:
		return "rows(" + a.Table + ")"
	case AssertOutcomeCount:
		action := a.Action
		if action == "" {
			action = "*"
		}
		return "count(" + action + " -> " + a.Outcome + ")"
	}
	return a.Type
}
