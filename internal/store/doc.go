// Package store provides SQLite-backed storage for the commit journal and
// the thumbnail cache.
//
// The journal is append-only: one row per undo boundary, holding the
// canonical JSON snapshot of the timeline after the commit and its hash.
//
// # Ordering
//
// Rows are ordered by seq, a logical clock owned by the session, never by
// wall time. Every query that returns several rows orders by
// seq ASC, id ASC COLLATE BINARY so reads are deterministic.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
