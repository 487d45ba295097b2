package catalog

import (
	"errors"
	"fmt"

	"github.com/roach88/stockbook/internal/apperr"
)

// InUseError is returned when a delete is refused because other rows still
// reference the record.
type InUseError struct {
	Entity     string
	ID         int64
	References int
}

func (e *InUseError) Error() string {
	return fmt.Sprintf("%s %d is still referenced by %d product(s)", e.Entity, e.ID, e.References)
}

// ErrorCode implements apperr.Coder.
func (e *InUseError) ErrorCode() apperr.Code {
	return apperr.CodeInUse
}

// IsInUseError reports whether err carries an *InUseError.
func IsInUseError(err error) bool {
	var iu *InUseError
	return errors.As(err, &iu)
}
