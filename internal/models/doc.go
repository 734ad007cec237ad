// Package models defines the data model for the music acquisition catalog.
//
// The catalog tracks every desired song as a [Track] keyed by a stable
// identity key (see internal/identity). A track's [Status] is a closed
// enumeration; every transition site switches exhaustively over it so that
// adding a status fails loudly at compile review rather than silently at
// runtime.
//
// [WorkItem] and [SyncCycle] are ephemeral: the work queue is fully
// reconstructable from persisted Track state, and cycle records exist only
// for scheduling and status reporting.
package models
