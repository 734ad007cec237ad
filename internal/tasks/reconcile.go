package tasks

import (
	"context"
	"io/fs"
	"os"

	"github.com/Daxiongmao87/youspotter/internal/catalog"
	"github.com/charmbracelet/log"
)

// Reconciler verifies that acquired tracks still exist on disk and demotes
// the ones whose file disappeared so the next queue build re-acquires them.
type Reconciler struct {
	store  *catalog.Store
	logger *log.Logger
	statFn func(string) (fs.FileInfo, error)
}

// NewReconciler creates a reconciler using [os.Stat].
func NewReconciler(store *catalog.Store, logger *log.Logger) *Reconciler {
	return &Reconciler{store: store, logger: logger, statFn: os.Stat}
}

// Reconcile checks every acquired track's local path and returns how many
// were demoted to unresolved.
//
// Any stat failure demotes the track, not just a definite not-exist. A
// file we cannot verify is treated as missing so it gets re-acquired
// rather than silently trusted. Stat results are cached per run since many
// tracks can share a path that already failed.
func (r *Reconciler) Reconcile(ctx context.Context) (int, error) {
	tracks, err := r.store.AcquiredTracks(ctx)
	if err != nil {
		return 0, err
	}

	cache := make(map[string]error, len(tracks))
	demoted := 0
	for _, t := range tracks {
		if t.LocalPath == "" {
			continue
		}

		statErr, seen := cache[t.LocalPath]
		if !seen {
			_, statErr = r.statFn(t.LocalPath)
			cache[t.LocalPath] = statErr
		}

		if statErr == nil {
			continue
		}
		if !os.IsNotExist(statErr) {
			r.logger.Warn("could not verify acquired file, treating as missing", "path", t.LocalPath, "error", statErr)
		}
		if err := r.store.MarkMissing(ctx, t.Identity); err != nil {
			return demoted, err
		}
		demoted++
		r.logger.Info("acquired file missing, track demoted", "track", t.Identity, "path", t.LocalPath)
	}
	return demoted, nil
}
