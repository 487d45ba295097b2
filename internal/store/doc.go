// Package store opens the SQLite file that holds an inventory: categories,
// products, sales, sold line items and the owner profile.
//
// Three ways to get a handle:
//   - Open: create or open, apply pragmas, migrate to the current schema
//   - OpenExisting: open a file that must exist, no migrations (backup)
//   - OpenReadOnly: read-only URI, no writes at all (import validation)
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity, on every connection
//
// Schema evolution lives in the migrate subpackage. Each public operation of
// the application opens its own handle and closes it when done; there is no
// long-lived shared connection.
package store
