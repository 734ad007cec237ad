package ui

import (
	"fmt"
	"strings"

	"github.com/Daxiongmao87/youspotter/internal/models"
	"github.com/Daxiongmao87/youspotter/internal/tasks"
)

// StatusBadge renders a colored label for a track status.
func StatusBadge(s models.Status) string {
	switch s {
	case models.StatusAcquired:
		return OK(s.String())
	case models.StatusFailed:
		return Err(s.String())
	case models.StatusQueued, models.StatusAcquiring:
		return Warn(s.String())
	case models.StatusUnresolved:
		return Help(s.String())
	default:
		return s.String()
	}
}

// RenderCounters formats the catalog counters as a one-screen summary.
func RenderCounters(c models.Counters) string {
	var b strings.Builder
	b.WriteString(Title("Catalog"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "  %s  %d songs, %d artists, %d albums\n", Help("total"), c.Songs, c.Artists, c.Albums)
	fmt.Fprintf(&b, "  %s  %d\n", OK("acquired"), c.Acquired)
	fmt.Fprintf(&b, "  %s  %d\n", Help("unresolved"), c.Unresolved)
	if c.Queued > 0 || c.Acquiring > 0 {
		fmt.Fprintf(&b, "  %s  %d queued, %d acquiring\n", Warn("in flight"), c.Queued, c.Acquiring)
	}
	if c.Failed > 0 {
		fmt.Fprintf(&b, "  %s  %d\n", Err("failed"), c.Failed)
	}
	return b.String()
}

// ProgressBar renders a fixed-width transfer bar for a percentage.
func ProgressBar(percent, width int) string {
	if width <= 0 {
		width = 20
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := percent * width / 100
	return fmt.Sprintf("[%s%s] %3d%%",
		strings.Repeat("#", filled),
		strings.Repeat("-", width-filled),
		percent)
}

// RenderLiveQueue formats the live transfer view for the CLI.
func RenderLiveQueue(snap tasks.LiveSnapshot) string {
	var b strings.Builder
	b.WriteString(Title("Queue"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "  %s %d\n", Help("pending"), snap.Pending)
	for _, t := range snap.Active {
		fmt.Fprintf(&b, "  %s %s - %s\n", ProgressBar(t.Percent, 20), t.Artist, t.Title)
	}
	for _, t := range snap.Completed {
		if t.Failed {
			fmt.Fprintf(&b, "  %s %s - %s (%s)\n", Err("x"), t.Artist, t.Title, t.Error)
		} else {
			fmt.Fprintf(&b, "  %s %s - %s\n", OK("+"), t.Artist, t.Title)
		}
	}
	return b.String()
}
