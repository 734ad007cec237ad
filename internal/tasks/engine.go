package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Daxiongmao87/youspotter/internal/catalog"
	"github.com/Daxiongmao87/youspotter/internal/identity"
	"github.com/Daxiongmao87/youspotter/internal/models"
	"github.com/Daxiongmao87/youspotter/internal/services"
	"github.com/Daxiongmao87/youspotter/internal/shared"
	"github.com/charmbracelet/log"
)

// monitoredKey is the settings row holding the monitored playlist list.
const monitoredKey = "monitored_playlists"

// MonitoredPlaylist is one playlist the engine keeps in sync, with its
// acquisition strategy.
type MonitoredPlaylist struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Strategy identity.Strategy `json:"strategy"`
}

// Engine runs sync cycles: ingest from the Source, reconcile the library,
// and drain the acquisition queue. One cycle at a time; a trigger during a
// running cycle is rejected, never queued.
type Engine struct {
	source     services.Source
	store      *catalog.Store
	dispatcher *Dispatcher
	reconciler *Reconciler
	interval   time.Duration
	logger     *log.Logger
	activity   *Activity

	// cycleLock has capacity 1; holding the token means a cycle is running
	cycleLock chan struct{}

	mu        sync.Mutex
	lastCycle models.SyncCycle
	nextRunAt time.Time
}

// NewEngine wires the cycle pipeline together.
func NewEngine(source services.Source, store *catalog.Store, dispatcher *Dispatcher, reconciler *Reconciler, interval time.Duration, logger *log.Logger, activity *Activity) *Engine {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	e := &Engine{
		source:     source,
		store:      store,
		dispatcher: dispatcher,
		reconciler: reconciler,
		interval:   interval,
		logger:     logger,
		activity:   activity,
		cycleLock:  make(chan struct{}, 1),
	}
	e.nextRunAt = time.Now().Add(interval)
	return e
}

// Startup restores a consistent catalog after a restart: queued and
// acquiring rows describe work that died with the previous process, so they
// return to unresolved before the first cycle.
func (e *Engine) Startup(ctx context.Context) error {
	n, err := e.store.ResetTransient(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		e.logger.Info("reset interrupted work from previous run", "tracks", n)
	}
	return nil
}

// Running reports whether a cycle is in flight.
func (e *Engine) Running() bool {
	return len(e.cycleLock) > 0
}

// LastCycle returns the most recent cycle record.
func (e *Engine) LastCycle() models.SyncCycle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastCycle
}

// NextRunAt returns when the scheduler will start the next cycle.
func (e *Engine) NextRunAt() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nextRunAt
}

// Interval returns the configured cycle cadence.
func (e *Engine) Interval() time.Duration {
	return e.interval
}

// Dispatcher exposes pause and resume of the worker pool.
func (e *Engine) Dispatcher() *Dispatcher {
	return e.dispatcher
}

// MonitoredPlaylists reads the persisted playlist list.
func (e *Engine) MonitoredPlaylists(ctx context.Context) ([]MonitoredPlaylist, error) {
	raw, err := e.store.GetSetting(ctx, monitoredKey, "[]")
	if err != nil {
		return nil, err
	}
	var playlists []MonitoredPlaylist
	if err := json.Unmarshal([]byte(raw), &playlists); err != nil {
		return nil, fmt.Errorf("%w: parse monitored playlists: %v", shared.ErrStorage, err)
	}
	return playlists, nil
}

// SetMonitoredPlaylists persists the playlist list.
func (e *Engine) SetMonitoredPlaylists(ctx context.Context, playlists []MonitoredPlaylist) error {
	raw, err := json.Marshal(playlists)
	if err != nil {
		return fmt.Errorf("%w: encode monitored playlists: %v", shared.ErrStorage, err)
	}
	return e.store.SetSetting(ctx, monitoredKey, string(raw))
}

// RunCycle executes one full sync cycle and returns its record.
//
// Returns [shared.ErrSyncRunning] without side effects when a cycle is
// already in flight. A Source failure aborts the cycle before any catalog
// write; a storage failure marks the cycle failed. The cycle lock is
// released on every path.
func (e *Engine) RunCycle(ctx context.Context, trigger models.Trigger) (models.SyncCycle, error) {
	select {
	case e.cycleLock <- struct{}{}:
	default:
		return models.SyncCycle{}, shared.ErrSyncRunning
	}
	defer func() { <-e.cycleLock }()

	cycle := models.SyncCycle{
		ID:        shared.GenerateID(),
		Trigger:   trigger,
		StartedAt: time.Now(),
		Outcome:   models.OutcomeRunning,
	}
	e.setLastCycle(cycle)
	e.logger.Info("sync cycle started", "cycle", cycle.ID, "trigger", trigger)
	e.record(ActivityInfo, fmt.Sprintf("sync started (%s)", trigger))

	err := e.runPipeline(ctx, &cycle)
	cycle.CompletedAt = time.Now()

	switch {
	case err == nil:
		cycle.Outcome = models.OutcomeSuccess
		e.record(ActivitySuccess, "sync completed")
	case errors.Is(err, context.Canceled):
		cycle.Outcome = models.OutcomeCanceled
		cycle.Error = err.Error()
	case errors.Is(err, shared.ErrSourceUnavailable):
		cycle.Outcome = models.OutcomeSourceUnavailable
		cycle.Error = err.Error()
		e.record(ActivityWarning, fmt.Sprintf("sync aborted, source unavailable: %v", err))
	default:
		cycle.Outcome = models.OutcomeStorageError
		cycle.Error = err.Error()
		e.record(ActivityError, fmt.Sprintf("sync failed: %v", err))
	}

	e.mu.Lock()
	e.lastCycle = cycle
	e.nextRunAt = cycle.CompletedAt.Add(e.interval)
	e.mu.Unlock()

	e.logger.Info("sync cycle finished", "cycle", cycle.ID, "outcome", cycle.Outcome,
		"duration", cycle.CompletedAt.Sub(cycle.StartedAt))
	return cycle, err
}

func (e *Engine) runPipeline(ctx context.Context, cycle *models.SyncCycle) error {
	playlists, err := e.MonitoredPlaylists(ctx)
	if err != nil {
		return err
	}

	// Ingest. Any Source error aborts here, before the first catalog write.
	base := make([]models.Descriptor, 0)
	strategies := make(map[string]identity.Strategy, len(playlists))
	for _, p := range playlists {
		strategies[p.ID] = p.Strategy
		tracks, err := e.source.PlaylistTracks(ctx, p.ID)
		if err != nil {
			return err
		}
		base = append(base, tracks...)
	}
	desired := identity.Expand(ctx, base, strategies, e.source, e.logger)

	changed, err := e.store.UpsertBatch(ctx, desired)
	if err != nil {
		return err
	}
	if changed > 0 {
		e.logger.Info("catalog updated", "cycle", cycle.ID, "changed", changed)
	}

	demoted, err := e.reconciler.Reconcile(ctx)
	if err != nil {
		return err
	}
	if demoted > 0 {
		e.record(ActivityWarning, fmt.Sprintf("%d tracks missing from disk, re-queued", demoted))
	}

	now := time.Now()
	candidates, err := e.store.CandidateTracks(ctx)
	if err != nil {
		return err
	}
	queue := BuildQueue(candidates, now)
	if len(queue) == 0 {
		return nil
	}

	keys := make([]string, len(queue))
	for i, item := range queue {
		keys[i] = item.Identity
	}
	if err := e.store.MarkQueued(ctx, keys); err != nil {
		return err
	}

	e.logger.Info("acquisition queue built", "cycle", cycle.ID, "items", len(queue))
	return e.dispatcher.Run(ctx, queue, now.Add(e.interval))
}

func (e *Engine) setLastCycle(cycle models.SyncCycle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastCycle = cycle
}

func (e *Engine) record(level ActivityLevel, message string) {
	if e.activity != nil {
		e.activity.Add(level, message)
	}
}
