package services

import (
	"context"
	"fmt"

	"github.com/Daxiongmao87/youspotter/internal/models"
)

// Source reports the desired catalog: monitored playlists and their tracks,
// plus per-artist and per-album listings used by strategy expansion.
type Source interface {
	// Name returns the provider name (e.g. "Spotify").
	Name() string

	// Playlists retrieves the authenticated user's playlists.
	Playlists(ctx context.Context) ([]Playlist, error)

	// PlaylistTracks retrieves every track on a playlist, in playlist order.
	PlaylistTracks(ctx context.Context, playlistID string) ([]models.Descriptor, error)

	// ArtistTracks retrieves every track in an artist's catalog.
	ArtistTracks(ctx context.Context, artistID string) ([]models.Descriptor, error)

	// AlbumTracks retrieves every track on an album.
	AlbumTracks(ctx context.Context, albumID string) ([]models.Descriptor, error)
}

// Playlist represents a monitored playlist from the Source.
type Playlist struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Owner      string `json:"owner"`
	TrackCount int    `json:"track_count"`
}

// Fetcher acquires audio content for one descriptor.
type Fetcher interface {
	// Name returns the fetcher name (e.g. "resolver").
	Name() string

	// Acquire searches for and downloads the requested track, blocking until
	// the transfer finishes or ctx expires.
	Acquire(ctx context.Context, req AcquireRequest) (*AcquireResult, error)
}

// AcquireRequest describes one acquisition handed to the Fetcher.
type AcquireRequest struct {
	Descriptor     models.Descriptor
	Format         string // mp3, flac, m4a, wav
	MinBitrateKbps int
	PathTemplate   string

	// OnProgress, when set, receives transfer percentage updates (0-100).
	OnProgress func(percent int)
}

// AcquireResult reports a completed acquisition.
type AcquireResult struct {
	LocalPath   string `json:"path"`
	BitrateKbps int    `json:"bitrate"`
}

// FetchReason classifies a failed acquisition.
type FetchReason int

const (
	// FetchTransient covers network errors, timeouts, and resolver 5xx
	// responses. Retried within the cycle under the backoff policy.
	FetchTransient FetchReason = iota

	// FetchNotFound means no candidate matched the descriptor. Retried.
	FetchNotFound

	// FetchQualityInsufficient means candidates existed but none met the
	// configured format or bitrate. Terminal for the cycle; no retry until
	// the next cycle.
	FetchQualityInsufficient
)

func (r FetchReason) String() string {
	switch r {
	case FetchTransient:
		return "transient"
	case FetchNotFound:
		return "not_found"
	case FetchQualityInsufficient:
		return "quality_insufficient"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// FetchError is the classified failure returned by [Fetcher.Acquire].
type FetchError struct {
	Reason  FetchReason
	Message string
}

func (e *FetchError) Error() string {
	if e.Message == "" {
		return e.Reason.String()
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

// Retryable reports whether the dispatcher should retry this failure within
// the current cycle.
func (e *FetchError) Retryable() bool {
	return e.Reason != FetchQualityInsufficient
}
