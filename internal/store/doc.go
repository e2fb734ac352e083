// Package store is the canonical relational store for docsync: tracked
// documents, their snapshots, the append-only changelog and its sequence
// counter, cycle runs with their document failures, and notification
// delivery cursors.
//
// # Critical Patterns
//
// One transaction per cycle:
//   - CommitCycle writes changelog entries, document and snapshot changes,
//     failures and the run summary together, or nothing at all
//   - A document has at most one snapshot row (PRIMARY KEY document_id)
//
// Monotonic sequencing:
//   - ReserveSequence hands out contiguous blocks from sequence_counter in
//     its own transaction, so a rolled-back cycle burns its block and the
//     numbers are never reused
//   - CommitCycle refuses entries that do not sort after the committed maximum
//
// Immutable changelog:
//   - Triggers abort any UPDATE or DELETE on the changelog table
//   - Reads are ordered by seq ASC, the commit order
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
