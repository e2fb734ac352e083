// Package diff compares fetched documents with their last committed
// baseline. Everything here is pure: no storage, no clocks, no I/O.
//
// Content changes carry a unified line diff. The diff is a function of the
// two bodies alone, so replaying the same (previous, current) pair always
// yields byte-identical output.
package diff
