package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/Daxiongmao87/youspotter/internal/identity"
	"github.com/Daxiongmao87/youspotter/internal/models"
	"github.com/Daxiongmao87/youspotter/internal/shared"
	"github.com/charmbracelet/log"
)

// versionKey is the kvstore row holding the catalog version counter.
const versionKey = "catalog_version"

// lockStripes sizes the striped mutex table guarding per-identity writes.
const lockStripes = 64

// Store mediates all reads and writes against the catalog tables.
type Store struct {
	db     *sql.DB
	logger *log.Logger
	locks  [lockStripes]sync.Mutex
}

// NewStore wraps an open database handle. The schema must already be
// migrated (see [shared.RunMigrations]).
func NewStore(db *sql.DB, logger *log.Logger) *Store {
	return &Store{db: db, logger: logger}
}

func (s *Store) lockFor(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &s.locks[h.Sum32()%lockStripes]
}

// UpsertBatch merges a deduplicated descriptor batch into the catalog.
// New identities are inserted as unresolved; existing rows keep their
// status, attempts, and retry gate, with metadata and source ids refreshed.
// last_seen updates on every row, but the catalog version bumps only when
// at least one row was inserted or materially changed. Returns the number
// of changed rows.
func (s *Store) UpsertBatch(ctx context.Context, descriptors []models.Descriptor) (int, error) {
	now := time.Now().Unix()
	changed := 0

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin upsert: %v", shared.ErrStorage, err)
	}
	defer tx.Rollback()

	for _, d := range descriptors {
		key := identity.KeyFor(d)
		rowChanged, err := s.upsertOne(ctx, tx, key, d, now)
		if err != nil {
			return 0, err
		}
		if rowChanged {
			changed++
		}
	}

	if changed > 0 {
		if err := bumpVersion(ctx, tx); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit upsert: %v", shared.ErrStorage, err)
	}
	s.logger.Debug("catalog upsert complete", "descriptors", len(descriptors), "changed", changed)
	return changed, nil
}

func (s *Store) upsertOne(ctx context.Context, tx *sql.Tx, key string, d models.Descriptor, now int64) (bool, error) {
	var (
		artist, title, album, sourceIDs, origin string
		duration                                int
	)
	err := tx.QueryRowContext(ctx,
		`SELECT artist, title, album, duration, source_ids, origin FROM tracks WHERE identity = ?`, key,
	).Scan(&artist, &title, &album, &duration, &sourceIDs, &origin)

	switch {
	case err == sql.ErrNoRows:
		ids, _ := json.Marshal(sourceIDList(nil, d.SourceID))
		_, err = tx.ExecContext(ctx,
			`INSERT INTO tracks (identity, artist, title, album, duration, source_ids, origin, status, last_seen)
			 VALUES (?, ?, ?, ?, ?, ?, ?, 'unresolved', ?)`,
			key, d.Artist, d.Title, d.Album, d.Duration, string(ids), normalizedOrigin(d.Origin), now)
		if err != nil {
			return false, fmt.Errorf("%w: insert track %s: %v", shared.ErrStorage, key, err)
		}
		return true, nil
	case err != nil:
		return false, fmt.Errorf("%w: read track %s: %v", shared.ErrStorage, key, err)
	}

	var existing []string
	if err := json.Unmarshal([]byte(sourceIDs), &existing); err != nil {
		existing = nil
	}
	merged := sourceIDList(existing, d.SourceID)
	mergedJSON, _ := json.Marshal(merged)

	material := artist != d.Artist || title != d.Title || album != d.Album ||
		duration != d.Duration || string(mergedJSON) != sourceIDs

	_, err = tx.ExecContext(ctx,
		`UPDATE tracks SET artist = ?, title = ?, album = ?, duration = ?, source_ids = ?, last_seen = ?
		 WHERE identity = ?`,
		d.Artist, d.Title, d.Album, d.Duration, string(mergedJSON), now, key)
	if err != nil {
		return false, fmt.Errorf("%w: update track %s: %v", shared.ErrStorage, key, err)
	}
	return material, nil
}

func sourceIDList(existing []string, id string) []string {
	if id == "" {
		if existing == nil {
			return []string{}
		}
		return existing
	}
	for _, e := range existing {
		if e == id {
			return existing
		}
	}
	out := append(append([]string{}, existing...), id)
	sort.Strings(out)
	return out
}

func normalizedOrigin(origin string) string {
	if origin == "" {
		return models.OriginPlaylist
	}
	return origin
}

// MarkQueued transitions a set of identities to queued. Rows that are no
// longer candidates (acquired meanwhile, or removed) are skipped.
func (s *Store) MarkQueued(ctx context.Context, keys []string) error {
	for _, key := range keys {
		mu := s.lockFor(key)
		mu.Lock()
		_, err := s.db.ExecContext(ctx,
			`UPDATE tracks SET status = 'queued' WHERE identity = ? AND status IN ('unresolved', 'failed')`, key)
		mu.Unlock()
		if err != nil {
			return fmt.Errorf("%w: mark queued %s: %v", shared.ErrStorage, key, err)
		}
	}
	return nil
}

// MarkAcquiring transitions one queued identity to acquiring.
func (s *Store) MarkAcquiring(ctx context.Context, key string) error {
	mu := s.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE tracks SET status = 'acquiring' WHERE identity = ? AND status = 'queued'`, key)
	if err != nil {
		return fmt.Errorf("%w: mark acquiring %s: %v", shared.ErrStorage, key, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s not queued", shared.ErrTrackUnknown, key)
	}
	return nil
}

// MarkAcquired records a successful acquisition: status acquired, the final
// local path, attempt count, error and retry gate cleared.
func (s *Store) MarkAcquired(ctx context.Context, key, localPath string) error {
	mu := s.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`UPDATE tracks SET status = 'acquired', local_path = ?, attempts = 0, last_error = '', retry_after = NULL
		 WHERE identity = ?`, localPath, key)
	if err != nil {
		return fmt.Errorf("%w: mark acquired %s: %v", shared.ErrStorage, key, err)
	}
	return nil
}

// MarkFailed records a failed acquisition: status failed, the attempt count
// and error message, and the retry gate deciding when the track becomes a
// candidate again.
func (s *Store) MarkFailed(ctx context.Context, key, lastError string, attempts int, retryAfter time.Time) error {
	mu := s.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`UPDATE tracks SET status = 'failed', attempts = ?, last_error = ?, retry_after = ?
		 WHERE identity = ?`, attempts, lastError, retryAfter.Unix(), key)
	if err != nil {
		return fmt.Errorf("%w: mark failed %s: %v", shared.ErrStorage, key, err)
	}
	return nil
}

// MarkMissing demotes an acquired track whose file disappeared from disk
// back to unresolved so the next cycle re-acquires it.
func (s *Store) MarkMissing(ctx context.Context, key string) error {
	mu := s.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`UPDATE tracks SET status = 'unresolved', local_path = '', attempts = 0, last_error = '', retry_after = NULL
		 WHERE identity = ? AND status = 'acquired'`, key)
	if err != nil {
		return fmt.Errorf("%w: mark missing %s: %v", shared.ErrStorage, key, err)
	}
	return nil
}

// ResetTransient returns every queued or acquiring row to unresolved.
// Called once at startup: those states describe in-memory work that did not
// survive the previous process.
func (s *Store) ResetTransient(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tracks SET status = 'unresolved' WHERE status IN ('queued', 'acquiring')`)
	if err != nil {
		return 0, fmt.Errorf("%w: reset transient: %v", shared.ErrStorage, err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info("reset transient statuses", "tracks", n)
	}
	return n, nil
}

// CandidateTracks returns every unresolved or failed track in catalog
// insertion order. The queue builder applies the retry gate; the store does
// not filter on retry_after so the caller can also report gated tracks.
func (s *Store) CandidateTracks(ctx context.Context) ([]models.Track, error) {
	return s.queryTracks(ctx,
		`SELECT `+trackColumns+` FROM tracks WHERE status IN ('unresolved', 'failed') ORDER BY sequence`)
}

// AcquiredTracks returns every acquired track in catalog insertion order.
func (s *Store) AcquiredTracks(ctx context.Context) ([]models.Track, error) {
	return s.queryTracks(ctx,
		`SELECT `+trackColumns+` FROM tracks WHERE status = 'acquired' ORDER BY sequence`)
}

// Tracks returns one page of the catalog, optionally filtered by status,
// in insertion order. Page numbering starts at 1.
func (s *Store) Tracks(ctx context.Context, status string, page, perPage int) ([]models.Track, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 50
	}
	offset := (page - 1) * perPage

	if status == "" {
		return s.queryTracks(ctx,
			`SELECT `+trackColumns+` FROM tracks ORDER BY sequence LIMIT ? OFFSET ?`, perPage, offset)
	}
	return s.queryTracks(ctx,
		`SELECT `+trackColumns+` FROM tracks WHERE status = ? ORDER BY sequence LIMIT ? OFFSET ?`,
		status, perPage, offset)
}

// Get returns one track by identity key.
func (s *Store) Get(ctx context.Context, key string) (models.Track, error) {
	tracks, err := s.queryTracks(ctx, `SELECT `+trackColumns+` FROM tracks WHERE identity = ?`, key)
	if err != nil {
		return models.Track{}, err
	}
	if len(tracks) == 0 {
		return models.Track{}, fmt.Errorf("%w: %s", shared.ErrTrackUnknown, key)
	}
	return tracks[0], nil
}

const trackColumns = `sequence, identity, artist, title, album, duration, source_ids, origin, status, local_path, attempts, last_error, retry_after, last_seen`

func (s *Store) queryTracks(ctx context.Context, query string, args ...any) ([]models.Track, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query tracks: %v", shared.ErrStorage, err)
	}
	defer rows.Close()

	tracks := make([]models.Track, 0)
	for rows.Next() {
		var (
			t          models.Track
			sourceIDs  string
			status     string
			retryAfter sql.NullInt64
			lastSeen   int64
		)
		err := rows.Scan(&t.Sequence, &t.Identity, &t.Artist, &t.Title, &t.Album, &t.Duration,
			&sourceIDs, &t.Origin, &status, &t.LocalPath, &t.Attempts, &t.LastError, &retryAfter, &lastSeen)
		if err != nil {
			return nil, fmt.Errorf("%w: scan track: %v", shared.ErrStorage, err)
		}
		if t.Status, err = models.ParseStatus(status); err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrStorage, err)
		}
		if err := json.Unmarshal([]byte(sourceIDs), &t.SourceIDs); err != nil {
			t.SourceIDs = nil
		}
		if retryAfter.Valid {
			t.RetryAfter = time.Unix(retryAfter.Int64, 0)
		}
		t.LastSeen = time.Unix(lastSeen, 0)
		tracks = append(tracks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate tracks: %v", shared.ErrStorage, err)
	}
	return tracks, nil
}

// Counters aggregates the catalog into per-status and browsing totals.
func (s *Store) Counters(ctx context.Context) (models.Counters, error) {
	var c models.Counters

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tracks GROUP BY status`)
	if err != nil {
		return c, fmt.Errorf("%w: count statuses: %v", shared.ErrStorage, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return c, fmt.Errorf("%w: scan counter: %v", shared.ErrStorage, err)
		}
		st, err := models.ParseStatus(status)
		if err != nil {
			return c, fmt.Errorf("%w: %v", shared.ErrStorage, err)
		}
		switch st {
		case models.StatusUnresolved:
			c.Unresolved = count
		case models.StatusQueued:
			c.Queued = count
		case models.StatusAcquiring:
			c.Acquiring = count
		case models.StatusAcquired:
			c.Acquired = count
		case models.StatusFailed:
			c.Failed = count
		}
		c.Songs += count
	}
	if err := rows.Err(); err != nil {
		return c, fmt.Errorf("%w: iterate counters: %v", shared.ErrStorage, err)
	}

	err = s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT artist) FROM tracks`).Scan(&c.Artists)
	if err != nil {
		return c, fmt.Errorf("%w: count artists: %v", shared.ErrStorage, err)
	}
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT album) FROM tracks WHERE album != ''`).Scan(&c.Albums)
	if err != nil {
		return c, fmt.Errorf("%w: count albums: %v", shared.ErrStorage, err)
	}
	return c, nil
}

// ArtistAggregates re-aggregates the catalog by artist for browsing.
func (s *Store) ArtistAggregates(ctx context.Context) ([]models.ArtistAggregate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT artist, COUNT(*) FROM tracks GROUP BY artist ORDER BY artist`)
	if err != nil {
		return nil, fmt.Errorf("%w: aggregate artists: %v", shared.ErrStorage, err)
	}
	defer rows.Close()

	out := make([]models.ArtistAggregate, 0)
	for rows.Next() {
		var a models.ArtistAggregate
		if err := rows.Scan(&a.Name, &a.SongCount); err != nil {
			return nil, fmt.Errorf("%w: scan artist aggregate: %v", shared.ErrStorage, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AlbumAggregates re-aggregates the catalog by album for browsing.
func (s *Store) AlbumAggregates(ctx context.Context) ([]models.AlbumAggregate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT album, MIN(artist), COUNT(*) FROM tracks WHERE album != '' GROUP BY album ORDER BY album`)
	if err != nil {
		return nil, fmt.Errorf("%w: aggregate albums: %v", shared.ErrStorage, err)
	}
	defer rows.Close()

	out := make([]models.AlbumAggregate, 0)
	for rows.Next() {
		var a models.AlbumAggregate
		if err := rows.Scan(&a.Name, &a.Artist, &a.TrackCount); err != nil {
			return nil, fmt.Errorf("%w: scan album aggregate: %v", shared.ErrStorage, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Version returns the current catalog version counter. A catalog that has
// never changed reports zero.
func (s *Store) Version(ctx context.Context) (int64, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kvstore WHERE key = ?`, versionKey).Scan(&raw)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: read version: %v", shared.ErrStorage, err)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: parse version %q: %v", shared.ErrStorage, raw, err)
	}
	return v, nil
}

func bumpVersion(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO kvstore (key, value) VALUES (?, '1')
		 ON CONFLICT(key) DO UPDATE SET value = CAST(CAST(value AS INTEGER) + 1 AS TEXT)`, versionKey)
	if err != nil {
		return fmt.Errorf("%w: bump version: %v", shared.ErrStorage, err)
	}
	return nil
}

// GetSetting reads one persisted setting, returning fallback when unset.
func (s *Store) GetSetting(ctx context.Context, key, fallback string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return fallback, nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: read setting %s: %v", shared.ErrStorage, key, err)
	}
	return value, nil
}

// SetSetting writes one persisted setting.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("%w: write setting %s: %v", shared.ErrStorage, key, err)
	}
	return nil
}

// GetKV reads one internal key-value row, returning fallback when unset.
func (s *Store) GetKV(ctx context.Context, key, fallback string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kvstore WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return fallback, nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: read kv %s: %v", shared.ErrStorage, key, err)
	}
	return value, nil
}

// SetKV writes one internal key-value row.
func (s *Store) SetKV(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kvstore (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("%w: write kv %s: %v", shared.ErrStorage, key, err)
	}
	return nil
}
