package concurrency

import (
	"sync"
	"time"
)

// TokenBucketConfig configures a TokenBucket (spec §4.4).
type TokenBucketConfig struct {
	Capacity         int64
	RefillRate       int64 // tokens per RefillInterval
	RefillIntervalMs int64
	Burst            int64 // initial tokens, capped at Capacity; 0 means Capacity
}

// TokenBucket is a time-based refillable rate limiter. Refill is computed
// lazily from elapsed wall time on every Take, backstopped by a
// background timer that only runs while waiters are queued, so an idle
// bucket holds no goroutines or timers.
type TokenBucket struct {
	clock func() time.Time

	capacity   int64
	refillRate int64
	interval   time.Duration

	mu         sync.Mutex
	tokens     int64
	lastRefill time.Time
	waiters    []chan struct{}
	timerOn    bool
}

// NewTokenBucket creates a TokenBucket. Capacity <= 0 is a configuration
// error per spec §4.4 and panics, mirroring how the rest of the engine
// treats bad configuration as a construction-time failure rather than a
// run-time one.
func NewTokenBucket(cfg TokenBucketConfig, now func() time.Time) *TokenBucket {
	if cfg.Capacity <= 0 {
		panic("concurrency: token bucket capacity must be > 0")
	}
	if now == nil {
		now = time.Now
	}
	burst := cfg.Burst
	if burst <= 0 || burst > cfg.Capacity {
		burst = cfg.Capacity
	}
	interval := time.Duration(cfg.RefillIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}
	return &TokenBucket{
		clock:      now,
		capacity:   cfg.Capacity,
		refillRate: cfg.RefillRate,
		interval:   interval,
		tokens:     burst,
		lastRefill: now(),
	}
}

func (b *TokenBucket) refillLocked() {
	now := b.clock()
	elapsed := now.Sub(b.lastRefill)
	if elapsed < b.interval {
		return
	}
	periods := int64(elapsed / b.interval)
	if periods <= 0 {
		return
	}
	b.tokens += periods * b.refillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = b.lastRefill.Add(time.Duration(periods) * b.interval)
}

// Take consumes one token, blocking until one is available.
func (b *TokenBucket) Take() {
	for {
		b.mu.Lock()
		b.refillLocked()
		if b.tokens > 0 {
			b.tokens--
			b.mu.Unlock()
			return
		}
		ch := make(chan struct{})
		b.waiters = append(b.waiters, ch)
		b.ensureTimerLocked()
		b.mu.Unlock()

		// drainLoop has already taken this waiter's token before waking it.
		<-ch
		return
	}
}

// ensureTimerLocked starts the background drain timer if one isn't
// already running. Must be called with mu held.
func (b *TokenBucket) ensureTimerLocked() {
	if b.timerOn {
		return
	}
	b.timerOn = true
	go b.drainLoop()
}

// drainLoop wakes waiters as tokens become available, and exits once the
// waiter queue is empty so an idle bucket keeps no goroutine alive.
func (b *TokenBucket) drainLoop() {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for range ticker.C {
		b.mu.Lock()
		b.refillLocked()
		for b.tokens > 0 && len(b.waiters) > 0 {
			next := b.waiters[0]
			b.waiters = b.waiters[1:]
			b.tokens--
			close(next)
		}
		if len(b.waiters) == 0 {
			b.timerOn = false
			b.mu.Unlock()
			return
		}
		b.mu.Unlock()
	}
}
