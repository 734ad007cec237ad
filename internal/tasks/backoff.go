package tasks

import (
	"math/rand"
	"time"
)

// BackoffPolicy computes the delay before retrying a failed acquisition
// within a cycle: exponential growth from Initial, capped at Max, plus a
// random jitter fraction so parallel retries spread out.
type BackoffPolicy struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64
	Jitter  float64 // fraction of the delay added at random, 0.25 = up to +25%
}

// DefaultBackoff is the in-cycle retry policy.
func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{
		Initial: time.Second,
		Max:     time.Minute,
		Factor:  2,
		Jitter:  0.25,
	}
}

// Delay returns the wait before the given attempt number, where attempt 1
// is the first retry. Non-positive attempts return Initial.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	delay := float64(p.Initial)
	for i := 1; i < attempt; i++ {
		delay *= p.Factor
		if delay >= float64(p.Max) {
			delay = float64(p.Max)
			break
		}
	}
	if p.Jitter > 0 {
		delay += delay * p.Jitter * rand.Float64()
	}
	// Max bounds the total wait, jitter included.
	if delay > float64(p.Max) {
		delay = float64(p.Max)
	}
	return time.Duration(delay)
}
