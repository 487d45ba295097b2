package backup

import (
	"errors"
	"fmt"

	"github.com/roach88/stockbook/internal/apperr"
)

// Code identifies why a backup or import was refused or failed.
type Code string

const (
	CodeFileNotFound       Code = "FILE_NOT_FOUND"
	CodeInvalidExtension   Code = "INVALID_EXTENSION"
	CodeNotSQLite          Code = "NOT_SQLITE"
	CodeCorruptDB          Code = "CORRUPT_DB"
	CodeMissingTable       Code = "MISSING_TABLE"
	CodeStoreBusy          Code = "STORE_BUSY"
	CodeCheckpointFailed   Code = "CHECKPOINT_FAILED"
	CodeSafetyBackupFailed Code = "SAFETY_BACKUP_FAILED"
	CodeCopyFailed         Code = "COPY_FAILED"
	CodeReinitFailed       Code = "REINIT_FAILED"
)

// Error is a backup or import failure with a machine-checkable code.
type Error struct {
	Code Code
	// Table names the missing table for CodeMissingTable.
	Table string
	// Path is the file the failure concerns.
	Path string
	// SafetyBackup is set once a pre-import copy exists, so a failed
	// re-initialization can point the user at it.
	SafetyBackup string

	Err error
}

// FullCode is the code as reported to callers, e.g. "MISSING_TABLE:sales".
func (e *Error) FullCode() string {
	if e.Code == CodeMissingTable && e.Table != "" {
		return string(e.Code) + ":" + e.Table
	}
	return string(e.Code)
}

func (e *Error) Error() string {
	msg := e.FullCode()
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.SafetyBackup != "" {
		msg += "; previous store saved at " + e.SafetyBackup
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorCode implements apperr.Coder.
func (e *Error) ErrorCode() apperr.Code {
	return apperr.Code(e.FullCode())
}

// CodeOf returns the full code of a backup *Error in err's chain, or "".
func CodeOf(err error) string {
	var be *Error
	if errors.As(err, &be) {
		return be.FullCode()
	}
	return ""
}
