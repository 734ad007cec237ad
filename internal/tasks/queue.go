package tasks

import (
	"sort"
	"time"

	"github.com/Daxiongmao87/youspotter/internal/models"
)

// BuildQueue derives the cycle's work queue from a catalog snapshot.
//
// Pure function of its inputs: unresolved tracks come first in catalog
// insertion order, then failed tracks whose retry gate has passed, ordered
// by ascending retry_after so the longest-waiting track goes first. Failed
// tracks still inside their retry window are excluded entirely. Acquired
// and in-flight tracks never enter the queue.
func BuildQueue(candidates []models.Track, now time.Time) []models.WorkItem {
	unresolved := make([]models.Track, 0, len(candidates))
	retryable := make([]models.Track, 0)

	for _, t := range candidates {
		switch t.Status {
		case models.StatusUnresolved:
			unresolved = append(unresolved, t)
		case models.StatusFailed:
			if t.RetryAfter.IsZero() || !t.RetryAfter.After(now) {
				retryable = append(retryable, t)
			}
		case models.StatusQueued, models.StatusAcquiring, models.StatusAcquired:
			// not candidates
		}
	}

	sort.SliceStable(retryable, func(i, j int) bool {
		return retryable[i].RetryAfter.Before(retryable[j].RetryAfter)
	})

	items := make([]models.WorkItem, 0, len(unresolved)+len(retryable))
	for _, t := range unresolved {
		items = append(items, workItem(t))
	}
	for _, t := range retryable {
		items = append(items, workItem(t))
	}
	return items
}

func workItem(t models.Track) models.WorkItem {
	return models.WorkItem{
		Identity:   t.Identity,
		Descriptor: t.Descriptor(),
		Attempts:   t.Attempts,
	}
}
