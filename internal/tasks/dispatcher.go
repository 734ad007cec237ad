package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Daxiongmao87/youspotter/internal/catalog"
	"github.com/Daxiongmao87/youspotter/internal/models"
	"github.com/Daxiongmao87/youspotter/internal/services"
	"github.com/Daxiongmao87/youspotter/internal/shared"
	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

// HardConcurrencyCap is the ceiling on simultaneous fetches regardless of
// configuration.
const HardConcurrencyCap = 10

// DispatcherOpts configures the acquisition worker pool.
type DispatcherOpts struct {
	Concurrency    int     // workers (default 3, capped at HardConcurrencyCap)
	MaxAttempts    int     // per-item attempts within one cycle (default 3)
	RateLimit      float64 // fetch starts per second (default 5)
	FetchTimeout   time.Duration
	Format         string
	MinBitrateKbps int
	PathTemplate   string
	Backoff        BackoffPolicy
}

// Dispatcher drains a cycle's work queue through a bounded worker pool.
// Each worker pulls items off a shared channel, rate-limits fetch starts,
// and applies the in-cycle retry policy. All catalog writes go through the
// store so per-identity locking holds.
type Dispatcher struct {
	fetcher  services.Fetcher
	store    *catalog.Store
	opts     DispatcherOpts
	logger   *log.Logger
	activity *Activity
	live     *QueueView

	mu      sync.Mutex
	pauseCh chan struct{} // non-nil while paused, closed on resume
}

// NewDispatcher creates a dispatcher. Zero option fields get defaults;
// concurrency is clamped to [HardConcurrencyCap].
func NewDispatcher(fetcher services.Fetcher, store *catalog.Store, opts DispatcherOpts, logger *log.Logger, activity *Activity, live *QueueView) *Dispatcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 3
	}
	if opts.Concurrency > HardConcurrencyCap {
		opts.Concurrency = HardConcurrencyCap
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5.0
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 5 * time.Minute
	}
	if opts.Backoff == (BackoffPolicy{}) {
		opts.Backoff = DefaultBackoff()
	}
	return &Dispatcher{
		fetcher:  fetcher,
		store:    store,
		opts:     opts,
		logger:   logger,
		activity: activity,
		live:     live,
	}
}

// Pause stops workers from starting new fetches. In-flight transfers run to
// completion.
func (d *Dispatcher) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pauseCh == nil {
		d.pauseCh = make(chan struct{})
	}
}

// Resume releases paused workers.
func (d *Dispatcher) Resume() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pauseCh != nil {
		close(d.pauseCh)
		d.pauseCh = nil
	}
}

// Paused reports whether new fetches are held.
func (d *Dispatcher) Paused() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pauseCh != nil
}

func (d *Dispatcher) awaitResume(ctx context.Context) error {
	d.mu.Lock()
	ch := d.pauseCh
	d.mu.Unlock()
	if ch == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	}
}

// Run drains the queue and blocks until every item reached a terminal state
// for this cycle or ctx was canceled. nextCycleAt gates items that exhaust
// their attempts: they become candidates again only at the next cycle.
//
// The returned error is the first storage failure encountered, or the
// context error on cancellation; fetch failures are per-item state, not a
// Run error.
func (d *Dispatcher) Run(ctx context.Context, items []models.WorkItem, nextCycleAt time.Time) error {
	if len(items) == 0 {
		return nil
	}

	if d.live != nil {
		d.live.BeginCycle(len(items))
	}

	limiter := rate.NewLimiter(rate.Limit(d.opts.RateLimit), 1)
	jobs := make(chan models.WorkItem, len(items))
	for _, item := range items {
		jobs <- item
	}
	close(jobs)

	var (
		wg         sync.WaitGroup
		storageErr error
		errOnce    sync.Once
	)
	recordErr := func(err error) {
		errOnce.Do(func() { storageErr = err })
	}

	for i := 0; i < d.opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}
				if err := d.awaitResume(ctx); err != nil {
					return
				}
				if err := limiter.Wait(ctx); err != nil {
					return
				}
				if err := d.processItem(ctx, item, nextCycleAt); err != nil {
					if errors.Is(err, shared.ErrStorage) {
						recordErr(err)
						return
					}
				}
			}
		}()
	}

	wg.Wait()
	if storageErr != nil {
		return storageErr
	}
	return ctx.Err()
}

// processItem runs the in-cycle attempt loop for one work item.
func (d *Dispatcher) processItem(ctx context.Context, item models.WorkItem, nextCycleAt time.Time) error {
	if err := d.store.MarkAcquiring(ctx, item.Identity); err != nil {
		if errors.Is(err, shared.ErrTrackUnknown) {
			// removed from the catalog since the queue was built
			return nil
		}
		return err
	}

	if d.live != nil {
		d.live.Start(item)
	}

	label := fmt.Sprintf("%s - %s", item.Descriptor.Artist, item.Descriptor.Title)
	req := services.AcquireRequest{
		Descriptor:     item.Descriptor,
		Format:         d.opts.Format,
		MinBitrateKbps: d.opts.MinBitrateKbps,
		PathTemplate:   d.opts.PathTemplate,
		OnProgress: func(percent int) {
			if d.live != nil {
				d.live.Progress(item.Identity, percent)
			}
		},
	}

	var lastErr error
	attemptsMade := 0
	for attempt := 1; attempt <= d.opts.MaxAttempts; attempt++ {
		attemptsMade = attempt
		fetchCtx, cancel := context.WithTimeout(ctx, d.opts.FetchTimeout)
		result, err := d.fetcher.Acquire(fetchCtx, req)
		cancel()

		if err == nil {
			if err := d.store.MarkAcquired(ctx, item.Identity, result.LocalPath); err != nil {
				return err
			}
			d.finish(item.Identity, false, "")
			d.record(ActivitySuccess, fmt.Sprintf("acquired %s", label))
			d.logger.Info("track acquired", "track", label, "path", result.LocalPath, "bitrate", result.BitrateKbps)
			return nil
		}
		lastErr = err

		var fetchErr *services.FetchError
		if errors.As(err, &fetchErr) && !fetchErr.Retryable() {
			// quality rejection: terminal for this cycle, distinct from
			// attempt exhaustion in the recorded error
			msg := fmt.Sprintf("quality insufficient: %s", fetchErr.Message)
			if err := d.store.MarkFailed(ctx, item.Identity, msg, item.Attempts+attempt, nextCycleAt); err != nil {
				return err
			}
			d.finish(item.Identity, true, msg)
			d.record(ActivityWarning, fmt.Sprintf("rejected %s (%s)", label, msg))
			d.logger.Warn("track rejected", "track", label, "error", msg)
			return nil
		}

		if attempt < d.opts.MaxAttempts {
			delay := d.opts.Backoff.Delay(attempt)
			d.logger.Debug("retrying fetch", "track", label, "attempt", attempt, "delay", delay)
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
			case <-time.After(delay):
				continue
			}
		}
		break
	}

	if ctx.Err() != nil {
		// Shutdown mid-item. Leave the row acquiring; the next startup's
		// transient reset returns it to unresolved instead of burning
		// attempts on a failure that never happened.
		return ctx.Err()
	}

	msg := fmt.Sprintf("attempts exhausted: %v", lastErr)
	if err := d.store.MarkFailed(ctx, item.Identity, msg, item.Attempts+attemptsMade, nextCycleAt); err != nil {
		return err
	}
	d.finish(item.Identity, true, msg)
	d.record(ActivityError, fmt.Sprintf("failed %s (%v)", label, lastErr))
	d.logger.Error("track failed", "track", label, "error", lastErr)
	return nil
}

func (d *Dispatcher) finish(identity string, failed bool, errMsg string) {
	if d.live != nil {
		d.live.Finish(identity, failed, errMsg)
	}
}

func (d *Dispatcher) record(level ActivityLevel, message string) {
	if d.activity != nil {
		d.activity.Add(level, message)
	}
}
