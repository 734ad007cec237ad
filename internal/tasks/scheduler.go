package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/Daxiongmao87/youspotter/internal/models"
	"github.com/Daxiongmao87/youspotter/internal/shared"
	"github.com/charmbracelet/log"
)

// Scheduler drives the engine on its interval and lets consumers trigger a
// cycle out of band. A manual cycle resets the interval timer: the next
// scheduled run happens one full interval after the manual run completes.
type Scheduler struct {
	engine *Engine
	logger *log.Logger
	kick   chan models.Trigger
}

// NewScheduler wraps an engine.
func NewScheduler(engine *Engine, logger *log.Logger) *Scheduler {
	return &Scheduler{
		engine: engine,
		logger: logger,
		kick:   make(chan models.Trigger),
	}
}

// TriggerSync requests an immediate cycle. Returns [shared.ErrSyncRunning]
// when a cycle is already in flight or the scheduler loop is not draining
// triggers; a trigger is never queued behind a running cycle.
func (s *Scheduler) TriggerSync() error {
	if s.engine.Running() {
		return shared.ErrSyncRunning
	}
	select {
	case s.kick <- models.TriggerManual:
		return nil
	default:
		return shared.ErrSyncRunning
	}
}

// Start runs the scheduling loop until ctx is canceled. Performs startup
// reconciliation, runs one initial cycle, then cycles every interval.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.engine.Startup(ctx); err != nil {
		return err
	}

	s.runCycle(ctx, models.TriggerScheduled)

	timer := time.NewTimer(s.engine.Interval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			s.runCycle(ctx, models.TriggerScheduled)
		case trigger := <-s.kick:
			s.runCycle(ctx, trigger)
		}
		resetAfterCycle(timer, s.engine.NextRunAt())
	}
}

func (s *Scheduler) runCycle(ctx context.Context, trigger models.Trigger) {
	_, err := s.engine.RunCycle(ctx, trigger)
	switch {
	case err == nil:
	case errors.Is(err, shared.ErrSyncRunning):
		s.logger.Warn("cycle trigger rejected, sync already running", "trigger", trigger)
	case errors.Is(err, context.Canceled):
	default:
		s.logger.Error("sync cycle failed", "trigger", trigger, "error", err)
	}
}

// resetAfterCycle re-arms the timer for the engine's next scheduled run.
func resetAfterCycle(timer *time.Timer, nextRunAt time.Time) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	wait := time.Until(nextRunAt)
	if wait < 0 {
		wait = 0
	}
	timer.Reset(wait)
}
