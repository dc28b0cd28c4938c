package admission

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is an in-process token bucket per learner and operation.
type RateLimiter struct {
	mu       sync.Mutex
	rates    map[Operation]RateConfig
	limiters map[string]*rate.Limiter
}

// NewRateLimiter builds a limiter with the rates of a tier.
func NewRateLimiter(tier TierConfig) *RateLimiter {
	return &RateLimiter{
		rates:    tier.Rates,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow takes one token for op at now. When the bucket is empty it reports
// false and how long until a token is available. Operations without a
// configured rate are always allowed.
func (rl *RateLimiter) Allow(userID string, op Operation, now time.Time) (bool, time.Duration) {
	lim := rl.limiter(userID, op)
	if lim == nil {
		return true, 0
	}

	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return false, 0
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (rl *RateLimiter) limiter(userID string, op Operation) *rate.Limiter {
	cfg, ok := rl.rates[op]
	if !ok || cfg.MaxRequests <= 0 || cfg.Window <= 0 {
		return nil
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	key := userID + "\x00" + string(op)
	lim, ok := rl.limiters[key]
	if !ok {
		every := rate.Every(cfg.Window / time.Duration(cfg.MaxRequests))
		lim = rate.NewLimiter(every, cfg.MaxRequests)
		rl.limiters[key] = lim
	}
	return lim
}
