package identity

import (
	"context"

	"github.com/Daxiongmao87/youspotter/internal/models"
	"github.com/charmbracelet/log"
)

// expansionCap bounds how many distinct artist or album ids are expanded per
// cycle so a playlist of compilations cannot explode one ingest.
const expansionCap = 100

// Strategy selects which acquisition scopes a playlist contributes:
// the playlist's own songs, every song by each artist on it, every song on
// each album it references, or any union of the three.
type Strategy struct {
	Song   bool `json:"song"`
	Artist bool `json:"artist"`
	Album  bool `json:"album"`
}

// Lister supplies the per-artist and per-album track listings used by
// strategy expansion. Implemented by the Source client.
type Lister interface {
	ArtistTracks(ctx context.Context, artistID string) ([]models.Descriptor, error)
	AlbumTracks(ctx context.Context, albumID string) ([]models.Descriptor, error)
}

// Expand applies per-playlist strategies to the base descriptor set and
// returns the deduplicated union.
//
// Artist and album scopes are re-resolved against the Source on every call
// so the expansion tracks catalog drift. Listing failures for a single
// artist or album are logged and skipped; they never abort the ingest.
// Dedup relies on identity-key equality, so no descriptor appears twice no
// matter how many playlist entries or expansions produced it.
func Expand(ctx context.Context, base []models.Descriptor, strategies map[string]Strategy, lister Lister, logger *log.Logger) []models.Descriptor {
	artistIDs := make([]string, 0)
	albumIDs := make([]string, 0)
	seenArtist := make(map[string]bool)
	seenAlbum := make(map[string]bool)

	expanded := make([]models.Descriptor, 0, len(base))
	for _, d := range base {
		st := strategies[d.PlaylistID]
		if st.Song || !(st.Artist || st.Album) {
			if d.Origin == "" {
				d.Origin = models.OriginPlaylist
			}
			expanded = append(expanded, d)
		}
		if st.Artist && d.ArtistID != "" && !seenArtist[d.ArtistID] {
			seenArtist[d.ArtistID] = true
			artistIDs = append(artistIDs, d.ArtistID)
		}
		if st.Album && d.AlbumID != "" && !seenAlbum[d.AlbumID] {
			seenAlbum[d.AlbumID] = true
			albumIDs = append(albumIDs, d.AlbumID)
		}
	}

	if lister != nil {
		if len(artistIDs) > expansionCap {
			artistIDs = artistIDs[:expansionCap]
		}
		if len(albumIDs) > expansionCap {
			albumIDs = albumIDs[:expansionCap]
		}

		for _, id := range artistIDs {
			tracks, err := lister.ArtistTracks(ctx, id)
			if err != nil {
				if logger != nil {
					logger.Warn("artist expansion failed", "artist_id", id, "error", err)
				}
				continue
			}
			for _, t := range tracks {
				t.Origin = models.OriginArtist
				expanded = append(expanded, t)
			}
		}

		for _, id := range albumIDs {
			tracks, err := lister.AlbumTracks(ctx, id)
			if err != nil {
				if logger != nil {
					logger.Warn("album expansion failed", "album_id", id, "error", err)
				}
				continue
			}
			for _, t := range tracks {
				t.Origin = models.OriginAlbum
				expanded = append(expanded, t)
			}
		}
	}

	return Dedup(expanded)
}

// Dedup removes descriptors whose identity key was already seen, keeping the
// first occurrence. Descriptors with an empty key (no artist and no title)
// are dropped.
func Dedup(descriptors []models.Descriptor) []models.Descriptor {
	seen := make(map[string]bool, len(descriptors))
	out := make([]models.Descriptor, 0, len(descriptors))
	for _, d := range descriptors {
		key := KeyFor(d)
		if Normalize(d.Artist) == "" && Normalize(d.Title) == "" {
			continue
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, d)
	}
	return out
}
