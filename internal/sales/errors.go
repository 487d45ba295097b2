package sales

import (
	"errors"
	"fmt"

	"github.com/roach88/stockbook/internal/apperr"
)

// InsufficientStockError is returned when a sale asks for more units of a
// product than are in stock. Requested is the total across all lines for
// that product.
type InsufficientStockError struct {
	ProductID   int64
	ProductName string
	Available   int64
	Requested   int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q (product %d): available %d, requested %d",
		e.ProductName, e.ProductID, e.Available, e.Requested)
}

// ErrorCode implements apperr.Coder.
func (e *InsufficientStockError) ErrorCode() apperr.Code {
	return apperr.CodeInsufficientStock
}

// IsInsufficientStock reports whether err carries an *InsufficientStockError.
func IsInsufficientStock(err error) bool {
	var ise *InsufficientStockError
	return errors.As(err, &ise)
}
