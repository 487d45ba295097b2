package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/stockbook/internal/apperr"
	"github.com/roach88/stockbook/internal/money"
	"github.com/roach88/stockbook/internal/store"
)

// parseID reads a positive row id argument.
func parseID(what, s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid %s id %q", what, s)
	}
	return id, nil
}

// parseDate reads a --date or --since value.
func parseDate(flag, s string) (time.Time, error) {
	t, err := store.ParseTime(strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, apperr.Validation("--%s: want YYYY-MM-DD or \"YYYY-MM-DD HH:MM:SS\", got %q", flag, s)
	}
	return t, nil
}

// parseAmount reads a money flag.
func parseAmount(flag, s string) (decimal.Decimal, error) {
	d, err := money.Parse(s)
	if err != nil {
		return decimal.Zero, apperr.Validation("--%s: %v", flag, err)
	}
	return d, nil
}

// itemSpec is a parsed --item flag: PRODUCT_ID:QUANTITY[:UNIT_PRICE].
type itemSpec struct {
	ProductID int64
	Quantity  int64
	UnitPrice *decimal.Decimal
}

func parseItem(s string) (itemSpec, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return itemSpec{}, apperr.Validation("--item %q: want PRODUCT_ID:QUANTITY[:UNIT_PRICE]", s)
	}

	id, err := parseID("product", parts[0])
	if err != nil {
		return itemSpec{}, err
	}
	// Zero and negative quantities parse; the recorder rejects them.
	qty, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return itemSpec{}, apperr.Validation("--item %q: invalid quantity", s)
	}

	spec := itemSpec{ProductID: id, Quantity: qty}
	if len(parts) == 3 {
		price, err := parseAmount("item", parts[2])
		if err != nil {
			return itemSpec{}, err
		}
		spec.UnitPrice = &price
	}
	return spec, nil
}

func parseItems(raw []string) ([]itemSpec, error) {
	specs := make([]itemSpec, 0, len(raw))
	for _, s := range raw {
		spec, err := parseItem(s)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func derefOr(p *string, fallback string) string {
	if p == nil || *p == "" {
		return fallback
	}
	return *p
}

func errUsage(format string, args ...any) error {
	return NewExitError(ExitCommandError, fmt.Sprintf(format, args...))
}
