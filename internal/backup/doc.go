// Package backup copies the active store out and replaces it with an
// imported one.
//
// Backup folds the write-ahead log into the main file before copying, so the
// copy is complete on its own. Import validates the source strictly in order
// (exists, .db extension, SQLite header, readable with the required tables),
// then takes a timestamped safety copy of the current store, swaps the file,
// clears stale -wal/-shm side files and re-initializes through store.Open.
//
// Both hold the store's advisory lock exclusively while they touch the active
// file. A held lock is reported as STORE_BUSY rather than waited for.
package backup
