package catalog

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/Daxiongmao87/youspotter/internal/identity"
	"github.com/Daxiongmao87/youspotter/internal/models"
	"github.com/Daxiongmao87/youspotter/internal/shared"
)

func newTestStore(t *testing.T) (*Store, *sql.DB) {
	t.Helper()
	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return NewStore(db, shared.NewLogger(nil)), db
}

func sampleDescriptors() []models.Descriptor {
	return []models.Descriptor{
		{SourceID: "sp1", Artist: "Daft Punk", Title: "One More Time", Album: "Discovery", Duration: 320},
		{SourceID: "sp2", Artist: "Daft Punk", Title: "Aerodynamic", Album: "Discovery", Duration: 207},
		{SourceID: "sp3", Artist: "Justice", Title: "D.A.N.C.E.", Album: "Cross", Duration: 242},
	}
}

func TestUpsertBatchInsertsUnresolved(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	changed, err := store.UpsertBatch(ctx, sampleDescriptors())
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if changed != 3 {
		t.Errorf("expected 3 changed rows, got %d", changed)
	}

	tracks, err := store.CandidateTracks(ctx)
	if err != nil {
		t.Fatalf("candidates failed: %v", err)
	}
	if len(tracks) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(tracks))
	}
	for _, tr := range tracks {
		if tr.Status != models.StatusUnresolved {
			t.Errorf("expected unresolved, got %v", tr.Status)
		}
	}
	// Insertion order survives as sequence order.
	if tracks[0].Title != "One More Time" || tracks[2].Title != "D.A.N.C.E." {
		t.Errorf("candidates out of insertion order: %v, %v", tracks[0].Title, tracks[2].Title)
	}
}

func TestUpsertBatchIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := store.UpsertBatch(ctx, sampleDescriptors()); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	v1, err := store.Version(ctx)
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if v1 != 1 {
		t.Errorf("expected version 1 after first change, got %d", v1)
	}

	changed, err := store.UpsertBatch(ctx, sampleDescriptors())
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	if changed != 0 {
		t.Errorf("expected no changed rows on identical re-ingest, got %d", changed)
	}
	v2, err := store.Version(ctx)
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if v2 != v1 {
		t.Errorf("version must not bump on no-op upsert: %d -> %d", v1, v2)
	}
}

func TestUpsertBatchPreservesStatus(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	descriptors := sampleDescriptors()

	if _, err := store.UpsertBatch(ctx, descriptors); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	key := identity.KeyFor(descriptors[0])
	if err := store.MarkQueued(ctx, []string{key}); err != nil {
		t.Fatalf("mark queued failed: %v", err)
	}
	if err := store.MarkAcquiring(ctx, key); err != nil {
		t.Fatalf("mark acquiring failed: %v", err)
	}
	if err := store.MarkAcquired(ctx, key, "/music/daft punk/one more time.mp3"); err != nil {
		t.Fatalf("mark acquired failed: %v", err)
	}

	// Re-ingesting the same playlist must not reset the acquired status.
	if _, err := store.UpsertBatch(ctx, descriptors); err != nil {
		t.Fatalf("re-upsert failed: %v", err)
	}
	track, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if track.Status != models.StatusAcquired {
		t.Errorf("expected acquired after re-ingest, got %v", track.Status)
	}
	if track.LocalPath == "" {
		t.Error("expected local path preserved")
	}
}

func TestStatusTransitions(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	descriptors := sampleDescriptors()

	if _, err := store.UpsertBatch(ctx, descriptors); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	key := identity.KeyFor(descriptors[0])

	// Acquiring requires queued first.
	if err := store.MarkAcquiring(ctx, key); err == nil {
		t.Error("expected error marking unresolved track acquiring")
	}

	if err := store.MarkQueued(ctx, []string{key}); err != nil {
		t.Fatalf("mark queued failed: %v", err)
	}
	if err := store.MarkAcquiring(ctx, key); err != nil {
		t.Fatalf("mark acquiring failed: %v", err)
	}

	retryAfter := time.Now().Add(30 * time.Minute).Truncate(time.Second)
	if err := store.MarkFailed(ctx, key, "no candidate found", 3, retryAfter); err != nil {
		t.Fatalf("mark failed failed: %v", err)
	}

	track, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if track.Status != models.StatusFailed {
		t.Errorf("expected failed, got %v", track.Status)
	}
	if track.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", track.Attempts)
	}
	if !track.RetryAfter.Equal(retryAfter) {
		t.Errorf("expected retry after %v, got %v", retryAfter, track.RetryAfter)
	}
	if track.LastError != "no candidate found" {
		t.Errorf("unexpected last error %q", track.LastError)
	}

	// A later successful acquisition clears the failure bookkeeping.
	if err := store.MarkQueued(ctx, []string{key}); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkAcquiring(ctx, key); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkAcquired(ctx, key, "/music/daft punk/one more time.mp3"); err != nil {
		t.Fatal(err)
	}
	track, err = store.Get(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if track.Status != models.StatusAcquired {
		t.Errorf("expected acquired, got %v", track.Status)
	}
	if track.Attempts != 0 {
		t.Errorf("expected attempts reset after acquisition, got %d", track.Attempts)
	}
	if track.LastError != "" {
		t.Errorf("expected last error cleared, got %q", track.LastError)
	}
	if !track.RetryAfter.IsZero() {
		t.Errorf("expected retry gate cleared, got %v", track.RetryAfter)
	}
}

func TestMarkMissingDemotesAcquired(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	descriptors := sampleDescriptors()

	if _, err := store.UpsertBatch(ctx, descriptors); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	key := identity.KeyFor(descriptors[0])
	if err := store.MarkQueued(ctx, []string{key}); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkAcquiring(ctx, key); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkAcquired(ctx, key, "/music/gone.mp3"); err != nil {
		t.Fatal(err)
	}

	if err := store.MarkMissing(ctx, key); err != nil {
		t.Fatalf("mark missing failed: %v", err)
	}
	track, err := store.Get(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if track.Status != models.StatusUnresolved {
		t.Errorf("expected unresolved, got %v", track.Status)
	}
	if track.LocalPath != "" {
		t.Errorf("expected local path cleared, got %q", track.LocalPath)
	}
	if track.Attempts != 0 {
		t.Errorf("expected attempts reset, got %d", track.Attempts)
	}
}

func TestResetTransient(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	descriptors := sampleDescriptors()

	if _, err := store.UpsertBatch(ctx, descriptors); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	keys := []string{identity.KeyFor(descriptors[0]), identity.KeyFor(descriptors[1])}
	if err := store.MarkQueued(ctx, keys); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkAcquiring(ctx, keys[0]); err != nil {
		t.Fatal(err)
	}

	n, err := store.ResetTransient(ctx)
	if err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 rows reset, got %d", n)
	}

	counters, err := store.Counters(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counters.Queued != 0 || counters.Acquiring != 0 {
		t.Errorf("expected no transient rows, got queued=%d acquiring=%d", counters.Queued, counters.Acquiring)
	}
	if counters.Unresolved != 3 {
		t.Errorf("expected 3 unresolved, got %d", counters.Unresolved)
	}
}

func TestCounters(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	descriptors := sampleDescriptors()

	if _, err := store.UpsertBatch(ctx, descriptors); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	key := identity.KeyFor(descriptors[0])
	if err := store.MarkQueued(ctx, []string{key}); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkAcquiring(ctx, key); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkAcquired(ctx, key, "/music/track.mp3"); err != nil {
		t.Fatal(err)
	}

	counters, err := store.Counters(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counters.Songs != 3 {
		t.Errorf("expected 3 songs, got %d", counters.Songs)
	}
	if counters.Acquired != 1 {
		t.Errorf("expected 1 acquired, got %d", counters.Acquired)
	}
	if counters.Unresolved != 2 {
		t.Errorf("expected 2 unresolved, got %d", counters.Unresolved)
	}
	if counters.Artists != 2 {
		t.Errorf("expected 2 distinct artists, got %d", counters.Artists)
	}
	if counters.Albums != 2 {
		t.Errorf("expected 2 distinct albums, got %d", counters.Albums)
	}
}

func TestSourceIDMerge(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	first := []models.Descriptor{{SourceID: "sp1", Artist: "Daft Punk", Title: "One More Time", Duration: 320}}
	second := []models.Descriptor{{SourceID: "sp9", Artist: "Daft Punk", Title: "One More Time", Duration: 320}}

	if _, err := store.UpsertBatch(ctx, first); err != nil {
		t.Fatal(err)
	}
	changed, err := store.UpsertBatch(ctx, second)
	if err != nil {
		t.Fatal(err)
	}
	if changed != 1 {
		t.Errorf("expected source id merge to count as a change, got %d", changed)
	}

	track, err := store.Get(ctx, identity.KeyFor(first[0]))
	if err != nil {
		t.Fatal(err)
	}
	if len(track.SourceIDs) != 2 {
		t.Errorf("expected 2 merged source ids, got %v", track.SourceIDs)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	got, err := store.GetSetting(ctx, "bitrate", "192")
	if err != nil {
		t.Fatal(err)
	}
	if got != "192" {
		t.Errorf("expected fallback, got %q", got)
	}

	if err := store.SetSetting(ctx, "bitrate", "320"); err != nil {
		t.Fatal(err)
	}
	got, err = store.GetSetting(ctx, "bitrate", "192")
	if err != nil {
		t.Fatal(err)
	}
	if got != "320" {
		t.Errorf("expected stored value, got %q", got)
	}
}

func TestTracksPagination(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := store.UpsertBatch(ctx, sampleDescriptors()); err != nil {
		t.Fatal(err)
	}

	page1, err := store.Tracks(ctx, "", 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page1) != 2 {
		t.Fatalf("expected 2 tracks on page 1, got %d", len(page1))
	}
	page2, err := store.Tracks(ctx, "", 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page2) != 1 {
		t.Fatalf("expected 1 track on page 2, got %d", len(page2))
	}
	if page1[0].Sequence >= page2[0].Sequence {
		t.Error("pages out of sequence order")
	}
}
