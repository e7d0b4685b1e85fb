package bot

import (
	stdsync "sync"
	"time"

	"golang.org/x/time/rate"
)

// Cooldowns rate limits command use per key, allowing one use per interval
type Cooldowns struct {
	mu       stdsync.Mutex
	interval time.Duration
	limiters map[string]*rate.Limiter
}

// NewCooldowns creates a cooldown tracker. A zero interval disables it.
func NewCooldowns(interval time.Duration) *Cooldowns {
	return &Cooldowns{
		interval: interval,
		limiters: make(map[string]*rate.Limiter),
	}
}

// SetInterval changes the interval and forgets all tracked keys
func (c *Cooldowns) SetInterval(interval time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if interval == c.interval {
		return
	}
	c.interval = interval
	c.limiters = make(map[string]*rate.Limiter)
}

// Wait records a use of key at now. It returns zero when the use is allowed,
// otherwise the remaining cooldown; a refused use is not counted.
func (c *Cooldowns) Wait(key string, now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.interval <= 0 {
		return 0
	}

	lim, ok := c.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(c.interval), 1)
		c.limiters[key] = lim
	}

	r := lim.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return delay
	}
	return 0
}
