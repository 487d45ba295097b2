package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stockbook/internal/apperr"
	"github.com/roach88/stockbook/internal/backup"
	"github.com/roach88/stockbook/internal/catalog"
	"github.com/roach88/stockbook/internal/store"
	"github.com/roach88/stockbook/internal/store/migrate"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "json",
		Writer:  buf,
		TraceID: "trace-1",
	}

	data := map[string]string{"result": "success"}
	err := formatter.Success(data)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.Equal(t, "trace-1", resp.TraceID)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error("INSUFFICIENT_STOCK", "not enough lipstick", nil)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INSUFFICIENT_STOCK", resp.Error.Code)
	assert.Equal(t, "not enough lipstick", resp.Error.Message)
	assert.Nil(t, resp.Error.Details)
}

func TestOutputFormatter_TextRender(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	err := formatter.Render(map[string]int{"n": 1}, func(w io.Writer) {
		fmt.Fprintln(w, "one thing")
	})
	require.NoError(t, err)
	assert.Equal(t, "one thing\n", buf.String())
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: false,
	}

	err := formatter.Error("VALIDATION", "quantity must be positive", map[string]string{"item": "0"})
	require.NoError(t, err)
	assert.Equal(t, "Error [VALIDATION]: quantity must be positive\n", buf.String())
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
		TraceID: "trace-1",
	}

	err := formatter.Error("NOT_FOUND", "product 9 not found", map[string]string{"id": "9"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [NOT_FOUND]")
	assert.Contains(t, buf.String(), "Details:")
	assert.Contains(t, buf.String(), "Trace: trace-1")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			errOut := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:    "json",
				Writer:    out,
				ErrWriter: errOut,
				Verbose:   tt.verbose,
			}

			formatter.VerboseLog("copying %s", "inventory.db")

			assert.Empty(t, out.String(), "verbose output must not corrupt JSON")
			if tt.wantLog {
				assert.Contains(t, errOut.String(), "copying inventory.db")
			} else {
				assert.Empty(t, errOut.String())
			}
		})
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"validation", apperr.Validation("bad"), "VALIDATION"},
		{"wrapped not found", fmt.Errorf("record sale: %w", apperr.NotFound("product", 3)), "NOT_FOUND"},
		{"in use", &catalog.InUseError{Entity: "category", ID: 1, References: 2}, "IN_USE"},
		{"missing table", &backup.Error{Code: backup.CodeMissingTable, Table: "sales"}, "MISSING_TABLE:sales"},
		{"locked", fmt.Errorf("backup: %w", store.ErrLocked), "STORE_BUSY"},
		{"lock io", apperr.IO("import: lock store", errors.New("is a directory")), "IO"},
		{"store not found", store.ErrStoreNotFound, "STORE_NOT_FOUND"},
		{"not a store", store.ErrNotAStore, "NOT_A_STORE"},
		{"migration", &migrate.MigrationError{Version: 3, Name: "sales", Err: errors.New("boom")}, "MIGRATION_FAILED"},
		{"schema too new", migrate.ErrSchemaTooNew, "MIGRATION_FAILED"},
		{"usage", errUsage("bad flag"), "COMMAND"},
		{"plain", errors.New("boom"), "INTERNAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCode(tt.err))
		})
	}
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(apperr.Validation("bad")))
	assert.Equal(t, ExitFailure, GetExitCode(&backup.Error{Code: backup.CodeNotSQLite}))
	assert.Equal(t, ExitCommandError, GetExitCode(errors.New("boom")))
	assert.Equal(t, ExitCommandError, GetExitCode(store.ErrStoreNotFound))
	assert.Equal(t, ExitCommandError, GetExitCode(errUsage("bad flag")))
	assert.Equal(t, ExitFailure, GetExitCode(&silentExit{code: ExitFailure}))
}

func TestErrorDetails(t *testing.T) {
	err := &backup.Error{Code: backup.CodeReinitFailed, Path: "/tmp/in.db", SafetyBackup: "/tmp/safety.db"}
	assert.Equal(t, map[string]string{"path": "/tmp/in.db", "safety_backup": "/tmp/safety.db"}, ErrorDetails(err))

	nf := fmt.Errorf("get: %w", apperr.NotFound("sale", 4))
	assert.Equal(t, map[string]string{"entity": "sale", "id": "4"}, ErrorDetails(nf))

	assert.Nil(t, ErrorDetails(&backup.Error{Code: backup.CodeStoreBusy}))
	assert.Nil(t, ErrorDetails(errors.New("boom")))
}
