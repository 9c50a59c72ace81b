package policy

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// hostPacer enforces a minimum spacing between fetches to the same host.
type hostPacer struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
}

func newHostPacer(spacing time.Duration) *hostPacer {
	limit := rate.Inf
	if spacing > 0 {
		limit = rate.Every(spacing)
	}
	return &hostPacer{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
	}
}

// reserve books the next slot for host and returns how long the caller must wait.
func (h *hostPacer) reserve(host string, now time.Time) time.Duration {
	if h.limit == rate.Inf {
		return 0
	}
	h.mu.Lock()
	limiter, ok := h.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(h.limit, 1)
		h.limiters[host] = limiter
	}
	h.mu.Unlock()

	r := limiter.ReserveN(now, 1)
	if !r.OK() {
		return 0
	}
	return r.DelayFrom(now)
}
