package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/stockbook/internal/apperr"
	"github.com/roach88/stockbook/internal/backup"
	"github.com/roach88/stockbook/internal/store"
	"github.com/roach88/stockbook/internal/store/migrate"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Rejected operation (validation, stock, import checks, failed scenarios)
	ExitCommandError = 2 // Command error (bad flags, unreadable store, internal failure)
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// silentExit carries an exit code for a command that has already written
// its own output.
type silentExit struct {
	code int
}

func (e *silentExit) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// GetExitCode extracts the exit code from an error. Errors that carry a
// domain code are rejections (ExitFailure); anything else is a command error.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var silent *silentExit
	if errors.As(err, &silent) {
		return silent.code
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	switch ErrorCode(err) {
	case "IO", "INTERNAL", "MIGRATION_FAILED", "STORE_NOT_FOUND", "NOT_A_STORE":
		return ExitCommandError
	}
	return ExitFailure
}

// ErrorCode maps an error onto the machine code shown in the envelope.
// Backup errors keep their full code, including the missing table.
func ErrorCode(err error) string {
	if code := backup.CodeOf(err); code != "" {
		return code
	}
	switch {
	case migrate.IsMigrationError(err), errors.Is(err, migrate.ErrSchemaTooNew):
		return string(apperr.CodeMigration)
	case errors.Is(err, store.ErrLocked):
		return string(backup.CodeStoreBusy)
	case errors.Is(err, store.ErrStoreNotFound):
		return "STORE_NOT_FOUND"
	case errors.Is(err, store.ErrNotAStore):
		return "NOT_A_STORE"
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Err == nil {
		return "COMMAND"
	}
	return string(apperr.CodeOf(err))
}

// ErrorDetails returns structured context for the envelope, if any.
func ErrorDetails(err error) map[string]string {
	var be *backup.Error
	if errors.As(err, &be) {
		d := map[string]string{}
		if be.Path != "" {
			d["path"] = be.Path
		}
		if be.SafetyBackup != "" {
			d["safety_backup"] = be.SafetyBackup
		}
		if len(d) > 0 {
			return d
		}
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) && len(ae.Details) > 0 {
		return ae.Details
	}
	return nil
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
	TraceID   string
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status  string    `json:"status"`             // "ok" or "error"
	Data    any       `json:"data,omitempty"`     // success payload
	Error   *CLIError `json:"error,omitempty"`    // error details
	TraceID string    `json:"trace_id,omitempty"` // per-invocation correlation id
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // VALIDATION, INSUFFICIENT_STOCK, MISSING_TABLE:sales, ...
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	return f.Render(data, func(w io.Writer) {
		fmt.Fprintln(w, data)
	})
}

// Render emits data in the JSON envelope, or calls text to print it for
// humans.
func (f *OutputFormatter) Render(data any, text func(w io.Writer)) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status:  "ok",
			Data:    data,
			TraceID: f.TraceID,
		})
	}
	text(f.Writer)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
			TraceID: f.TraceID,
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	if f.Verbose && f.TraceID != "" {
		fmt.Fprintf(f.Writer, "Trace: %s\n", f.TraceID)
	}
	return nil
}

// Fail reports err through Error with its mapped code.
func (f *OutputFormatter) Fail(err error) error {
	details := ErrorDetails(err)
	if details == nil {
		return f.Error(ErrorCode(err), err.Error(), nil)
	}
	return f.Error(ErrorCode(err), err.Error(), details)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
