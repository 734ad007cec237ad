package ui

import (
	"strings"
	"testing"

	"github.com/Daxiongmao87/youspotter/internal/models"
	"github.com/Daxiongmao87/youspotter/internal/tasks"
)

func TestProgressBar(t *testing.T) {
	tests := []struct {
		percent int
		want    string
	}{
		{0, "[--------------------]   0%"},
		{50, "[##########----------]  50%"},
		{100, "[####################] 100%"},
		{-5, "[--------------------]   0%"},
		{150, "[####################] 100%"},
	}
	for _, tt := range tests {
		if got := ProgressBar(tt.percent, 20); got != tt.want {
			t.Errorf("ProgressBar(%d) = %q, want %q", tt.percent, got, tt.want)
		}
	}
}

func TestRenderCounters(t *testing.T) {
	out := RenderCounters(models.Counters{Songs: 10, Artists: 3, Albums: 2, Acquired: 7, Unresolved: 2, Failed: 1})
	if !strings.Contains(out, "10 songs") {
		t.Errorf("expected song total in output: %q", out)
	}
	if !strings.Contains(out, "7") || !strings.Contains(out, "failed") {
		t.Errorf("expected acquired and failed rows: %q", out)
	}
}

func TestRenderLiveQueue(t *testing.T) {
	snap := tasks.LiveSnapshot{
		Pending: 3,
		Active: []tasks.TransferState{
			{Artist: "Daft Punk", Title: "One More Time", Percent: 40},
		},
		Completed: []tasks.TransferState{
			{Artist: "Justice", Title: "D.A.N.C.E.", Done: true},
			{Artist: "Air", Title: "La Femme d'Argent", Done: true, Failed: true, Error: "attempts exhausted"},
		},
	}
	out := RenderLiveQueue(snap)
	for _, want := range []string{"pending", "One More Time", "40%", "D.A.N.C.E.", "attempts exhausted"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}
