package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/stockbook/internal/apperr"
	"github.com/roach88/stockbook/internal/store"
	"github.com/roach88/stockbook/internal/store/migrate"
)

// RequiredTables must all be present in an importable store, checked in this
// order.
var RequiredTables = []string{"categories", "products", "sales", "sold_line_items"}

// CheckpointStatus says whether a backup's checkpoint ran to completion.
type CheckpointStatus string

const (
	CheckpointOK CheckpointStatus = "ok"
	// CheckpointDegraded: the checkpoint failed and the copy was taken with
	// VACUUM INTO instead. Only possible with best-effort checkpointing.
	CheckpointDegraded CheckpointStatus = "degraded"
)

// BackupResult describes a finished backup.
type BackupResult struct {
	Path       string           `json:"path"`
	Bytes      int64            `json:"bytes"`
	Checkpoint CheckpointStatus `json:"checkpoint"`

	// CheckpointErr is the tolerated failure behind CheckpointDegraded.
	CheckpointErr error `json:"-"`
}

// ImportResult describes a finished import.
type ImportResult struct {
	Path string `json:"path"`

	// SafetyBackup is the copy of the replaced store, empty when there was
	// no store to replace.
	SafetyBackup string         `json:"safety_backup,omitempty"`
	Migration    migrate.Report `json:"migration"`
}

// Manager backs up and replaces the store at one path.
type Manager struct {
	path       string
	lock       *store.Lock
	now        func() time.Time
	logger     *zap.Logger
	bestEffort bool

	checkpoint func(ctx context.Context, s *store.Store) error
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now for safety backup names.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithBestEffortCheckpoint lets Backup continue when the checkpoint fails,
// reporting CheckpointDegraded. Import never tolerates a failed checkpoint.
func WithBestEffortCheckpoint(enabled bool) Option {
	return func(m *Manager) { m.bestEffort = enabled }
}

// NewManager returns a manager for the store at path.
func NewManager(path string, opts ...Option) *Manager {
	m := &Manager{
		path:   path,
		lock:   store.NewLock(path),
		now:    time.Now,
		logger: zap.NewNop(),
		checkpoint: func(ctx context.Context, s *store.Store) error {
			return s.Checkpoint(ctx)
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Path returns the active store path.
func (m *Manager) Path() string {
	return m.path
}

// Backup writes a complete copy of the active store to dest.
func (m *Manager) Backup(ctx context.Context, dest string) (BackupResult, error) {
	ok, err := exists(m.path)
	if err != nil {
		return BackupResult{}, fmt.Errorf("backup: %w", err)
	}
	if !ok {
		return BackupResult{}, &Error{Code: CodeFileNotFound, Path: m.path}
	}

	if err := m.lockExclusive("backup"); err != nil {
		return BackupResult{}, err
	}
	defer m.lock.Unlock()

	st, err := store.OpenExisting(ctx, m.path)
	if err != nil {
		return BackupResult{}, &Error{Code: CodeCheckpointFailed, Path: m.path, Err: err}
	}

	result := BackupResult{Path: dest, Checkpoint: CheckpointOK}
	if cpErr := m.checkpoint(ctx, st); cpErr != nil {
		if !m.bestEffort {
			st.Close()
			return BackupResult{}, &Error{Code: CodeCheckpointFailed, Path: m.path, Err: cpErr}
		}

		m.logger.Warn("checkpoint failed, continuing with VACUUM INTO",
			zap.String("path", m.path), zap.Error(cpErr))
		result.Checkpoint = CheckpointDegraded
		result.CheckpointErr = cpErr

		err := vacuumInto(ctx, st, dest)
		st.Close()
		if err != nil {
			return BackupResult{}, &Error{Code: CodeCopyFailed, Path: dest, Err: err}
		}
		if info, err := os.Stat(dest); err == nil {
			result.Bytes = info.Size()
		}
	} else {
		// The handle must be gone before the copy so no writer can slip in.
		if err := st.Close(); err != nil {
			return BackupResult{}, &Error{Code: CodeCopyFailed, Path: m.path, Err: err}
		}
		n, err := copyFile(m.path, dest)
		if err != nil {
			return BackupResult{}, &Error{Code: CodeCopyFailed, Path: dest, Err: err}
		}
		result.Bytes = n
	}

	m.logger.Info("backup written",
		zap.String("source", m.path),
		zap.String("dest", dest),
		zap.Int64("bytes", result.Bytes),
		zap.String("checkpoint", string(result.Checkpoint)),
	)
	return result, nil
}

// vacuumInto writes a consistent copy that includes committed frames still
// in the WAL. The destination must not exist.
func vacuumInto(ctx context.Context, st *store.Store, dest string) error {
	if err := os.Remove(dest); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear %s: %w", dest, err)
	}
	if _, err := st.DB().ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return fmt.Errorf("vacuum into %s: %w", dest, err)
	}
	return nil
}

// Validate runs the import checks against src without changing anything.
func (m *Manager) Validate(ctx context.Context, src string) error {
	ok, err := exists(src)
	if err != nil {
		return fmt.Errorf("validate import: %w", err)
	}
	if !ok {
		return &Error{Code: CodeFileNotFound, Path: src}
	}

	if !strings.EqualFold(filepath.Ext(src), ".db") {
		return &Error{Code: CodeInvalidExtension, Path: src}
	}

	isSQLite, err := hasSQLiteHeader(src)
	if err != nil {
		return apperr.IO("validate import: read "+src, err)
	}
	if !isSQLite {
		return &Error{Code: CodeNotSQLite, Path: src}
	}

	st, err := store.OpenReadOnly(ctx, src)
	if err != nil {
		return &Error{Code: CodeCorruptDB, Path: src, Err: err}
	}
	defer st.Close()

	var check string
	if err := st.DB().GetContext(ctx, &check, "PRAGMA quick_check(1)"); err != nil {
		return &Error{Code: CodeCorruptDB, Path: src, Err: err}
	}
	if check != "ok" {
		return &Error{Code: CodeCorruptDB, Path: src, Err: errors.New(check)}
	}

	for _, table := range RequiredTables {
		has, err := st.HasTable(ctx, table)
		if err != nil {
			return &Error{Code: CodeCorruptDB, Path: src, Err: err}
		}
		if !has {
			return &Error{Code: CodeMissingTable, Table: table, Path: src}
		}
	}
	return nil
}

// lockExclusive takes the store lock. Only contention is STORE_BUSY; any
// other failure to take the lock is an I/O error.
func (m *Manager) lockExclusive(op string) error {
	err := m.lock.TryExclusive()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrLocked):
		return &Error{Code: CodeStoreBusy, Path: m.path, Err: err}
	default:
		return apperr.IO(op+": lock store", err)
	}
}

// Import replaces the active store with src after validating it.
//
// The current store, when there is one, is checkpointed and copied next to
// itself first; a failure at either step aborts before anything is replaced.
// A failure to re-initialize the replaced store is reported as REINIT_FAILED
// and names the safety copy.
func (m *Manager) Import(ctx context.Context, src string) (ImportResult, error) {
	if err := m.Validate(ctx, src); err != nil {
		return ImportResult{}, err
	}

	// The lock file lives beside the store, so its directory must exist first.
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return ImportResult{}, apperr.IO("import: create store directory", err)
	}
	if err := m.lockExclusive("import"); err != nil {
		return ImportResult{}, err
	}
	defer m.lock.Unlock()

	result := ImportResult{Path: m.path}

	hasActive, err := exists(m.path)
	if err != nil {
		return ImportResult{}, fmt.Errorf("import: %w", err)
	}
	if hasActive {
		safety, err := m.safetyBackup(ctx)
		if err != nil {
			return ImportResult{}, err
		}
		result.SafetyBackup = safety
	}

	if _, err := copyFile(src, m.path); err != nil {
		return ImportResult{}, &Error{Code: CodeCopyFailed, Path: m.path, SafetyBackup: result.SafetyBackup, Err: err}
	}
	if err := removeSideFiles(m.path); err != nil {
		return ImportResult{}, &Error{Code: CodeReinitFailed, Path: m.path, SafetyBackup: result.SafetyBackup, Err: err}
	}

	st, err := store.Open(ctx, m.path)
	if err != nil {
		m.logger.Error("imported store failed to initialize",
			zap.String("path", m.path),
			zap.String("safety_backup", result.SafetyBackup),
			zap.Error(err),
		)
		return ImportResult{}, &Error{Code: CodeReinitFailed, Path: m.path, SafetyBackup: result.SafetyBackup, Err: err}
	}
	result.Migration = st.Migration()
	if err := st.Close(); err != nil {
		return ImportResult{}, &Error{Code: CodeReinitFailed, Path: m.path, SafetyBackup: result.SafetyBackup, Err: err}
	}

	m.logger.Info("store imported",
		zap.String("source", src),
		zap.String("path", m.path),
		zap.String("safety_backup", result.SafetyBackup),
		zap.Strings("migrations", result.Migration.Applied),
	)
	return result, nil
}

// safetyBackup checkpoints the active store and copies it aside. Both steps
// are fatal on failure.
func (m *Manager) safetyBackup(ctx context.Context) (string, error) {
	st, err := store.OpenExisting(ctx, m.path)
	if err != nil {
		return "", &Error{Code: CodeCheckpointFailed, Path: m.path, Err: err}
	}
	if err := m.checkpoint(ctx, st); err != nil {
		st.Close()
		return "", &Error{Code: CodeCheckpointFailed, Path: m.path, Err: err}
	}
	if err := st.Close(); err != nil {
		return "", &Error{Code: CodeCheckpointFailed, Path: m.path, Err: err}
	}

	dest, err := safetyBackupPath(m.path, m.now())
	if err != nil {
		return "", &Error{Code: CodeSafetyBackupFailed, Path: m.path, Err: err}
	}
	if _, err := copyFile(m.path, dest); err != nil {
		return "", &Error{Code: CodeSafetyBackupFailed, Path: dest, Err: err}
	}

	m.logger.Info("safety backup written", zap.String("path", dest))
	return dest, nil
}
