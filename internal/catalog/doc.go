// Package catalog persists the desired-track catalog and its status machine.
//
// The catalog is the single durable source of truth: every queue, counter,
// and browsing view is derived from it. Tracks are keyed by identity
// (normalized artist, normalized title, bucketed duration), so re-ingesting
// the same playlist is idempotent. Status transitions for one identity key
// are serialized through striped locks; the catalog version counter bumps
// only when a write materially changed a row.
package catalog
