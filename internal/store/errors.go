package store

import "errors"

var (
	// ErrStoreNotFound is returned when an operation requires an existing
	// store file and none is present at the given path.
	ErrStoreNotFound = errors.New("store not found")

	// ErrNotAStore is returned when the file exists but is not a SQLite
	// database (SQLITE_NOTADB).
	ErrNotAStore = errors.New("file is not a valid store")

	// ErrCheckpointBusy is returned when a WAL checkpoint could not run to
	// completion because another connection holds a conflicting lock.
	ErrCheckpointBusy = errors.New("wal checkpoint incomplete")

	// ErrLocked is returned by Lock.TryExclusive when another operation
	// holds the store lock.
	ErrLocked = errors.New("store is locked by another operation")
)
