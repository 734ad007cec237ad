// Package tasks orchestrates the sync engine: the scheduler, the per-cycle
// pipeline, and the acquisition worker pool.
//
// # Core Operations
//
// The [Engine] runs one cycle at a time:
//
//  1. Ingest: fetch monitored playlists from the Source, apply per-playlist
//     acquisition strategies, and merge the deduplicated set into the
//     catalog. A Source failure aborts the cycle with catalog state
//     untouched.
//
//  2. Reconcile: verify that acquired tracks still exist on disk and demote
//     any whose file disappeared.
//
//  3. Acquire: rebuild the work queue from catalog state and drain it
//     through the [Dispatcher], a bounded worker pool with rate limiting
//     and per-item retry.
//
// Cycles never overlap. The engine takes a try-lock at cycle start; a
// trigger that arrives while a cycle runs is rejected with
// [shared.ErrSyncRunning], never queued.
//
// # Progress Reporting
//
// Workers publish transfer progress into the [QueueView] and log recent
// events into the [Activity] ring so the HTTP status API can render a live
// queue without touching the database.
package tasks
