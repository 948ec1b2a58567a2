package ingestion

import (
	"math"
	"time"
)

// BackoffPolicy computes the delay before a failed job runs again.
type BackoffPolicy struct {
	Base   time.Duration // delay after the first attempt
	Cap    time.Duration // upper bound before jitter
	Jitter float64       // fraction of the delay added or removed at random
}

// DefaultBackoff waits 2s, 4s, 8s ... up to five minutes, each +/-20%.
var DefaultBackoff = BackoffPolicy{
	Base:   2 * time.Second,
	Cap:    300 * time.Second,
	Jitter: 0.2,
}

// Delay returns min(Base * 2^(attempt-1), Cap) for the attempt that just
// failed. Attempts below 1 count as 1.
func (b BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(b.Base) * math.Pow(2, float64(attempt-1))
	if d > float64(b.Cap) {
		return b.Cap
	}
	return time.Duration(d)
}

// Jittered spreads Delay(attempt) uniformly over [1-Jitter, 1+Jitter].
// rnd returns values in [0, 1); 0.5 yields the exact delay.
func (b BackoffPolicy) Jittered(attempt int, rnd func() float64) time.Duration {
	d := float64(b.Delay(attempt))
	return time.Duration(d * (1 + b.Jitter*(2*rnd()-1)))
}

func (b BackoffPolicy) validate() bool {
	return b.Base > 0 && b.Cap >= b.Base && b.Jitter >= 0 && b.Jitter < 1
}
