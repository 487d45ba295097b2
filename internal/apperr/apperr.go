// Package apperr holds the error taxonomy shared by the inventory packages.
//
// Every error a caller may want to branch on carries a machine-checkable Code.
// Packages with richer errors (insufficient stock, import rejections) define
// their own types and implement Coder so the CLI can map them uniformly.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Code categorizes an error for callers.
type Code string

const (
	// CodeValidation: the input is structurally wrong or breaks a business rule.
	CodeValidation Code = "VALIDATION"

	// CodeNotFound: a referenced id does not exist.
	CodeNotFound Code = "NOT_FOUND"

	// CodeInsufficientStock: a sale asks for more units than are in stock.
	CodeInsufficientStock Code = "INSUFFICIENT_STOCK"

	// CodeInUse: a delete is refused because other rows still reference the record.
	CodeInUse Code = "IN_USE"

	// CodeIO: a file could not be read, written or found.
	CodeIO Code = "IO"

	// CodeMigration: the schema could not be brought to the current version.
	CodeMigration Code = "MIGRATION_FAILED"

	// CodeInternal is reported for errors that carry no code.
	CodeInternal Code = "INTERNAL"
)

// Coder is implemented by errors that carry a Code.
type Coder interface {
	ErrorCode() Code
}

// Error is the general coded error.
type Error struct {
	Code    Code
	Message string
	Details map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorCode implements Coder.
func (e *Error) ErrorCode() Code {
	return e.Code
}

// DetailString renders Details as sorted key=value pairs.
func (e *Error) DetailString() string {
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + e.Details[k]
	}
	return strings.Join(parts, " ")
}

// Validation returns a CodeValidation error.
func Validation(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound returns a CodeNotFound error naming the entity and id.
func NotFound(entity string, id int64) *Error {
	return &Error{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s %d not found", entity, id),
		Details: map[string]string{"entity": entity, "id": fmt.Sprintf("%d", id)},
	}
}

// IO wraps a filesystem failure.
func IO(message string, err error) *Error {
	return &Error{Code: CodeIO, Message: message, Err: err}
}

// CodeOf returns the Code carried by err or anything it wraps, and
// CodeInternal when there is none.
func CodeOf(err error) Code {
	var c Coder
	if errors.As(err, &c) {
		return c.ErrorCode()
	}
	return CodeInternal
}

// Is reports whether err carries code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
