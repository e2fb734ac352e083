// Package engine runs reconciliation cycles.
//
// A Coordinator owns one cycle at a time and drives it through
//
//	Idle -> Fetching -> Diffing -> Committing -> Idle
//
// Document-level fetch or parse failures are recorded against the cycle and
// the remaining documents still commit; such a cycle ends in PartiallyFailed
// before returning to Idle. A failed commit rolls back everything the cycle
// would have written and the run is marked failed.
//
// Sequence numbers are reserved before the commit in their own transaction.
// A reservation whose commit fails is never reused, so changelog sequence
// numbers stay strictly increasing across failed and retried cycles, with
// gaps where cycles rolled back.
//
// The coordinator does not schedule itself. Cadence, manual triggers and
// the single-active-cycle guard live in package scheduler.
package engine
