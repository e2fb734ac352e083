// Package scheduler decides when reconciliation cycles run.
//
// Every entry point (the cadence loop, manual triggers and the filesystem
// watcher) goes through one Guard, so at most one cycle is ever active.
// A trigger that finds the guard held is rejected with a
// SCHEDULING_CONFLICT error rather than queued.
package scheduler
