package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const lockRetryDelay = 50 * time.Millisecond

// Lock is an advisory, process-level lock on a store file. It lives next to
// the store as "<path>.lock" so it survives the store file itself being
// replaced by an import.
//
// Destructive operations (import, backup copy) take it exclusively; sale
// recording takes it shared, so an import never swaps the file out from under
// an in-flight sale.
type Lock struct {
	fl *flock.Flock
}

// NewLock returns the lock guarding the store at path. The lock file is
// created lazily on first acquisition.
func NewLock(path string) *Lock {
	return &Lock{fl: flock.New(path + ".lock")}
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.fl.Path()
}

// TryExclusive takes the lock exclusively without waiting.
// Returns ErrLocked if any other holder (shared or exclusive) exists.
func (l *Lock) TryExclusive() error {
	ok, err := l.fl.TryLock()
	if err != nil {
		return fmt.Errorf("acquire store lock %s: %w", l.fl.Path(), err)
	}
	if !ok {
		return ErrLocked
	}
	return nil
}

// Shared takes the lock in shared mode, retrying until ctx is done.
// The store's directory is created if missing, since a sale may be the first
// thing to open a new store.
func (l *Lock) Shared(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(l.fl.Path()), 0o755); err != nil {
		return fmt.Errorf("acquire shared store lock: %w", err)
	}
	ok, err := l.fl.TryRLockContext(ctx, lockRetryDelay)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("acquire shared store lock: %w: %w", ErrLocked, ctx.Err())
		}
		return fmt.Errorf("acquire shared store lock %s: %w", l.fl.Path(), err)
	}
	if !ok {
		return ErrLocked
	}
	return nil
}

// Unlock releases the lock. Safe to call when not held.
func (l *Lock) Unlock() error {
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("release store lock %s: %w", l.fl.Path(), err)
	}
	return nil
}
