package policy

import (
	"math"
	"time"
)

// Backoff computes exponential retry delays: Base * 2^(attempt-1), capped at Max.
type Backoff struct {
	MaxAttempts int
	Base        time.Duration
	Max         time.Duration
}

// Delay returns the wait before the attempt following attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(b.Base) * math.Pow(2, float64(attempt-1))
	if b.Max > 0 && delay > float64(b.Max) {
		return b.Max
	}
	if delay > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}
