package tasks

import (
	"testing"
	"time"
)

func TestBackoffDelayGrowth(t *testing.T) {
	policy := BackoffPolicy{Initial: time.Second, Max: time.Minute, Factor: 2}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{7, time.Minute},  // capped
		{20, time.Minute}, // stays capped
		{0, time.Second},
		{-1, time.Second},
	}

	for _, tt := range tests {
		if got := policy.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestBackoffJitterBounds(t *testing.T) {
	policy := DefaultBackoff()

	for attempt := 1; attempt <= 10; attempt++ {
		for i := 0; i < 50; i++ {
			delay := policy.Delay(attempt)
			if delay < policy.Initial {
				t.Fatalf("Delay(%d) = %v below initial", attempt, delay)
			}
			// Max is the hard ceiling, jitter never pushes past it.
			if delay > policy.Max {
				t.Fatalf("Delay(%d) = %v above cap %v", attempt, delay, policy.Max)
			}
		}
	}
}
