// Package store provides SQLite-backed storage for taxonomies and
// alignment graphs.
//
// Everything is a quad: (graph, subject, predicate, object). A named graph
// is a partition; taxonomy versions and alignment graphs are each one
// partition, registered in the graphs table with their kind and, for
// alignments, the source and target taxonomy graphs they connect.
//
// # Patterns
//
// Set semantics:
//   - UNIQUE(graph, subject, predicate, object)
//   - Inserts use ON CONFLICT DO NOTHING, so re-inserting is a no-op
//
// Logical time:
//   - Every quad is stamped with seq from a monotonic clock, never a timestamp
//   - The clock resumes from MAX(seq) on open
//
// Deterministic results:
//   - Pattern queries order by their projected columns (see querysql)
//   - Registry listings order by seq ASC, id ASC COLLATE BINARY
//
// Updates are atomic: every statement of one RunUpdate call runs in a single
// transaction.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
