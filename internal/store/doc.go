// Package store provides SQLite-backed run history.
//
// Every recorded run has:
//   - Runs: one row per execution with status, error and step count
//   - Log Entries: the run log, keyed by (run_id, seq)
//   - Run Variables: Global and main-scenario values at the end of the run
//
// The in-memory run log is a bounded ring; the store keeps every entry the
// host forwards to it, so long runs are not truncated here.
//
// # Ordering
//
//   - Log entries are returned ORDER BY seq ASC
//   - Runs are returned newest first: ORDER BY started_at DESC, id DESC
//   - Variables are returned ORDER BY scope, name COLLATE BINARY
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
