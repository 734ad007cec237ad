// Package services holds the outbound clients: the Source that reports
// which tracks the catalog should contain, and the Fetcher that acquires
// audio content through the resolver sidecar.
//
// Both sides are interfaces so the sync engine never depends on a concrete
// provider. Source failures are wrapped in [shared.ErrSourceUnavailable] so
// the engine can abort a cycle without touching catalog state; Fetcher
// failures carry a [FetchReason] so the dispatcher can pick between retry,
// terminal rejection, and backoff.
package services
