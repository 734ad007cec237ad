package models

import (
	"fmt"
	"time"
)

// Status is the acquisition state of a catalog track.
type Status int

const (
	StatusUnresolved Status = iota // desired, not yet acquired
	StatusQueued                   // selected by the queue builder this cycle
	StatusAcquiring                // an in-flight Fetcher call owns it
	StatusAcquired                 // on disk at LocalPath
	StatusFailed                   // last attempt failed, RetryAfter gates re-entry
)

func (s Status) String() string {
	switch s {
	case StatusUnresolved:
		return "unresolved"
	case StatusQueued:
		return "queued"
	case StatusAcquiring:
		return "acquiring"
	case StatusAcquired:
		return "acquired"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ParseStatus converts a persisted status string back into a [Status].
func ParseStatus(s string) (Status, error) {
	switch s {
	case "unresolved":
		return StatusUnresolved, nil
	case "queued":
		return StatusQueued, nil
	case "acquiring":
		return StatusAcquiring, nil
	case "acquired":
		return StatusAcquired, nil
	case "failed":
		return StatusFailed, nil
	default:
		return StatusUnresolved, fmt.Errorf("unknown status %q", s)
	}
}

// Origin describes how a descriptor entered the catalog.
const (
	OriginPlaylist = "playlist"
	OriginArtist   = "artist" // all-artist strategy expansion
	OriginAlbum    = "album"  // all-album strategy expansion
)

// Descriptor is a logical track as reported by the Source or handed to the
// Fetcher. It carries enough metadata to compute an identity key and to
// search for the content.
type Descriptor struct {
	SourceID   string `json:"source_id,omitempty"` // opaque Source identifier
	PlaylistID string `json:"playlist_id,omitempty"`
	ArtistID   string `json:"artist_id,omitempty"`
	AlbumID    string `json:"album_id,omitempty"`
	Artist     string `json:"artist"`
	Title      string `json:"title"`
	Album      string `json:"album,omitempty"`
	Duration   int    `json:"duration"` // seconds
	Origin     string `json:"origin,omitempty"`
}

// Track is the persisted catalog entry for one logical song.
//
// Invariants: Status == StatusAcquired implies LocalPath is set and existed
// on disk at the last reconciliation; Status == StatusFailed implies
// RetryAfter is set and Attempts >= 1.
type Track struct {
	Sequence   int64     `json:"sequence"` // insertion order, mirrors Source order
	Identity   string    `json:"identity"`
	Artist     string    `json:"artist"`
	Title      string    `json:"title"`
	Album      string    `json:"album,omitempty"`
	Duration   int       `json:"duration"`
	SourceIDs  []string  `json:"source_ids,omitempty"`
	Origin     string    `json:"origin"`
	Status     Status    `json:"-"`
	LocalPath  string    `json:"local_path,omitempty"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"last_error,omitempty"`
	RetryAfter time.Time `json:"retry_after,omitzero"` // zero when unset
	LastSeen   time.Time `json:"last_seen"`
}

// Descriptor rebuilds the Fetcher descriptor for this track.
func (t Track) Descriptor() Descriptor {
	var sourceID string
	if len(t.SourceIDs) > 0 {
		sourceID = t.SourceIDs[0]
	}
	return Descriptor{
		SourceID: sourceID,
		Artist:   t.Artist,
		Title:    t.Title,
		Album:    t.Album,
		Duration: t.Duration,
		Origin:   t.Origin,
	}
}

// WorkItem is one actionable acquisition derived from catalog state.
// Never persisted; the queue is rebuilt from the catalog every cycle.
type WorkItem struct {
	Identity   string     `json:"identity"`
	Descriptor Descriptor `json:"descriptor"`
	Attempts   int        `json:"attempts"`
}

// Trigger identifies what started a sync cycle.
type Trigger int

const (
	TriggerScheduled Trigger = iota
	TriggerManual
)

func (t Trigger) String() string {
	switch t {
	case TriggerScheduled:
		return "scheduled"
	case TriggerManual:
		return "manual"
	default:
		return fmt.Sprintf("trigger(%d)", int(t))
	}
}

// CycleOutcome classifies how a sync cycle ended.
type CycleOutcome int

const (
	OutcomeRunning CycleOutcome = iota
	OutcomeSuccess
	OutcomeSourceUnavailable
	OutcomeStorageError
	OutcomeCanceled
)

func (o CycleOutcome) String() string {
	switch o {
	case OutcomeRunning:
		return "running"
	case OutcomeSuccess:
		return "success"
	case OutcomeSourceUnavailable:
		return "source_unavailable"
	case OutcomeStorageError:
		return "storage_error"
	case OutcomeCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// SyncCycle is the ephemeral run record for one reconciliation cycle.
type SyncCycle struct {
	ID          string       `json:"id"`
	Trigger     Trigger      `json:"-"`
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt time.Time    `json:"completed_at,omitzero"`
	Outcome     CycleOutcome `json:"-"`
	Error       string       `json:"error,omitempty"`
}

// Counters are the derived per-status aggregates exposed to consumers.
// Nothing here is persisted separately; every value is a query over tracks.
type Counters struct {
	Unresolved int `json:"unresolved"`
	Queued     int `json:"queued"`
	Acquiring  int `json:"acquiring"`
	Acquired   int `json:"acquired"`
	Failed     int `json:"failed"`
	Songs      int `json:"songs"`
	Artists    int `json:"artists"` // distinct artist count
	Albums     int `json:"albums"`  // distinct non-empty album count
}

// ArtistAggregate is a derived browsing row, re-aggregated from tracks.
type ArtistAggregate struct {
	Name      string `json:"name"`
	SongCount int    `json:"song_count"`
}

// AlbumAggregate is a derived browsing row, re-aggregated from tracks.
type AlbumAggregate struct {
	Name       string `json:"name"`
	Artist     string `json:"artist"`
	TrackCount int    `json:"track_count"`
}
