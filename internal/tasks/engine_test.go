package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Daxiongmao87/youspotter/internal/catalog"
	"github.com/Daxiongmao87/youspotter/internal/identity"
	"github.com/Daxiongmao87/youspotter/internal/models"
	"github.com/Daxiongmao87/youspotter/internal/services"
	"github.com/Daxiongmao87/youspotter/internal/shared"
	testutil "github.com/Daxiongmao87/youspotter/internal/testing"
)

func newTestEngine(t *testing.T, source *testutil.MockSource, fetcher *testutil.MockFetcher) (*Engine, *catalog.Store) {
	t.Helper()
	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	logger := shared.NewLogger(nil)
	store := catalog.NewStore(db, logger)
	dispatcher := NewDispatcher(fetcher, store,
		DispatcherOpts{Concurrency: 2, RateLimit: 1000, Backoff: fastBackoff}, logger, nil, nil)
	reconciler := NewReconciler(store, logger)
	engine := NewEngine(source, store, dispatcher, reconciler, time.Hour, logger, NewActivity())
	return engine, store
}

func monitorPlaylist(t *testing.T, engine *Engine, id string) {
	t.Helper()
	err := engine.SetMonitoredPlaylists(context.Background(), []MonitoredPlaylist{
		{ID: id, Name: "Test", Strategy: identity.Strategy{Song: true}},
	})
	if err != nil {
		t.Fatalf("failed to set monitored playlists: %v", err)
	}
}

func TestEngineFullCycle(t *testing.T) {
	source := &testutil.MockSource{
		PlaylistTracksFn: func(ctx context.Context, playlistID string) ([]models.Descriptor, error) {
			return []models.Descriptor{
				{PlaylistID: playlistID, Artist: "Daft Punk", Title: "One More Time", Duration: 320},
				{PlaylistID: playlistID, Artist: "Daft Punk", Title: "Aerodynamic", Duration: 207},
			}, nil
		},
	}
	engine, store := newTestEngine(t, source, &testutil.MockFetcher{})
	monitorPlaylist(t, engine, "pl1")

	cycle, err := engine.RunCycle(context.Background(), models.TriggerManual)
	if err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if cycle.Outcome != models.OutcomeSuccess {
		t.Errorf("expected success, got %v", cycle.Outcome)
	}
	if cycle.Trigger != models.TriggerManual {
		t.Errorf("expected manual trigger, got %v", cycle.Trigger)
	}

	counters, err := store.Counters(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if counters.Acquired != 2 {
		t.Errorf("expected 2 acquired, got %+v", counters)
	}

	version, err := store.Version(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if version != 1 {
		t.Errorf("expected version 1, got %d", version)
	}

	// The next run is one interval after completion, not after start.
	want := cycle.CompletedAt.Add(engine.Interval())
	if !engine.NextRunAt().Equal(want) {
		t.Errorf("expected next run %v, got %v", want, engine.NextRunAt())
	}
}

func TestEngineRejectsConcurrentCycle(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	source := &testutil.MockSource{
		PlaylistTracksFn: func(ctx context.Context, playlistID string) ([]models.Descriptor, error) {
			close(entered)
			<-release
			return nil, nil
		},
	}
	engine, _ := newTestEngine(t, source, &testutil.MockFetcher{})
	monitorPlaylist(t, engine, "pl1")

	done := make(chan error, 1)
	go func() {
		_, err := engine.RunCycle(context.Background(), models.TriggerScheduled)
		done <- err
	}()

	<-entered
	if !engine.Running() {
		t.Error("expected engine running")
	}
	_, err := engine.RunCycle(context.Background(), models.TriggerManual)
	if !errors.Is(err, shared.ErrSyncRunning) {
		t.Errorf("expected ErrSyncRunning, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first cycle failed: %v", err)
	}
	if engine.Running() {
		t.Error("expected lock released after cycle")
	}
}

func TestEngineSourceFailureAbortsCleanly(t *testing.T) {
	source := &testutil.MockSource{
		PlaylistTracksFn: func(ctx context.Context, playlistID string) ([]models.Descriptor, error) {
			return nil, fmt.Errorf("%w: spotify API status 503", shared.ErrSourceUnavailable)
		},
	}
	engine, store := newTestEngine(t, source, &testutil.MockFetcher{})
	monitorPlaylist(t, engine, "pl1")

	cycle, err := engine.RunCycle(context.Background(), models.TriggerScheduled)
	if !errors.Is(err, shared.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
	if cycle.Outcome != models.OutcomeSourceUnavailable {
		t.Errorf("expected source_unavailable outcome, got %v", cycle.Outcome)
	}

	// The abort happened before any catalog write.
	counters, err := store.Counters(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if counters.Songs != 0 {
		t.Errorf("expected untouched catalog, got %+v", counters)
	}
	version, err := store.Version(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if version != 0 {
		t.Errorf("expected version 0, got %d", version)
	}

	// A later cycle can still run: the lock was released.
	if engine.Running() {
		t.Error("expected lock released after abort")
	}
}

func TestEngineCanceledCycleOutcome(t *testing.T) {
	source := &testutil.MockSource{
		PlaylistTracksFn: func(ctx context.Context, playlistID string) ([]models.Descriptor, error) {
			return []models.Descriptor{
				{PlaylistID: playlistID, Artist: "Daft Punk", Title: "One More Time", Duration: 320},
			}, nil
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fetcher := &testutil.MockFetcher{
		AcquireFn: func(_ context.Context, req services.AcquireRequest) (*services.AcquireResult, error) {
			cancel()
			return nil, &services.FetchError{Reason: services.FetchTransient, Message: "interrupted"}
		},
	}
	engine, _ := newTestEngine(t, source, fetcher)
	monitorPlaylist(t, engine, "pl1")

	cycle, err := engine.RunCycle(ctx, models.TriggerScheduled)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if cycle.Outcome != models.OutcomeCanceled {
		t.Errorf("expected canceled outcome, got %v", cycle.Outcome)
	}
	if cycle.Outcome == models.OutcomeStorageError {
		t.Error("shutdown must not be recorded as a storage error")
	}
}

func TestEngineStartupResetsTransient(t *testing.T) {
	engine, store := newTestEngine(t, &testutil.MockSource{}, &testutil.MockFetcher{})
	ctx := context.Background()

	d := models.Descriptor{Artist: "Daft Punk", Title: "One More Time", Duration: 320}
	if _, err := store.UpsertBatch(ctx, []models.Descriptor{d}); err != nil {
		t.Fatal(err)
	}
	key := identity.KeyFor(d)
	if err := store.MarkQueued(ctx, []string{key}); err != nil {
		t.Fatal(err)
	}

	if err := engine.Startup(ctx); err != nil {
		t.Fatalf("startup failed: %v", err)
	}
	track, err := store.Get(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if track.Status != models.StatusUnresolved {
		t.Errorf("expected unresolved after startup, got %v", track.Status)
	}
}

func TestEngineIdempotentCycles(t *testing.T) {
	source := &testutil.MockSource{
		PlaylistTracksFn: func(ctx context.Context, playlistID string) ([]models.Descriptor, error) {
			return []models.Descriptor{
				{PlaylistID: playlistID, Artist: "Daft Punk", Title: "One More Time", Duration: 320},
			}, nil
		},
	}
	// The acquired path must exist on disk or the second cycle's
	// reconciliation would demote and re-fetch the track.
	local := filepath.Join(t.TempDir(), "one more time.mp3")
	if err := os.WriteFile(local, []byte("audio"), 0644); err != nil {
		t.Fatal(err)
	}
	fetcher := &testutil.MockFetcher{
		AcquireFn: func(ctx context.Context, req services.AcquireRequest) (*services.AcquireResult, error) {
			return &services.AcquireResult{LocalPath: local, BitrateKbps: 256}, nil
		},
	}
	engine, store := newTestEngine(t, source, fetcher)
	monitorPlaylist(t, engine, "pl1")

	ctx := context.Background()
	if _, err := engine.RunCycle(ctx, models.TriggerScheduled); err != nil {
		t.Fatalf("first cycle failed: %v", err)
	}
	if _, err := engine.RunCycle(ctx, models.TriggerScheduled); err != nil {
		t.Fatalf("second cycle failed: %v", err)
	}

	// Second cycle found nothing to do: no version bump, no re-fetch.
	version, err := store.Version(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if version != 1 {
		t.Errorf("expected version 1 after identical re-ingest, got %d", version)
	}
	if got := len(fetcher.Calls()); got != 1 {
		t.Errorf("expected 1 fetch across both cycles, got %d", got)
	}
}

func TestSchedulerTriggerWhileRunning(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	source := &testutil.MockSource{
		PlaylistTracksFn: func(ctx context.Context, playlistID string) ([]models.Descriptor, error) {
			close(entered)
			<-release
			return nil, nil
		},
	}
	engine, _ := newTestEngine(t, source, &testutil.MockFetcher{})
	monitorPlaylist(t, engine, "pl1")
	scheduler := NewScheduler(engine, shared.NewLogger(nil))

	done := make(chan error, 1)
	go func() {
		_, err := engine.RunCycle(context.Background(), models.TriggerScheduled)
		done <- err
	}()

	<-entered
	if err := scheduler.TriggerSync(); !errors.Is(err, shared.ErrSyncRunning) {
		t.Errorf("expected ErrSyncRunning, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
}
