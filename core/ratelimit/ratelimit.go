// Package ratelimit implements a per-route token bucket: elapsed-time
// refill, a double-checked bucket-creation map, and a background cleanup
// goroutine for idle entries. The clock is injectable so refill is
// deterministic in tests.
package ratelimit

import (
	"sync"
	"time"

	"github.com/Megallm/ultrabalancer-sub000/core/atomicx"
)

// Config sizes every route's bucket and the idle-entry cleanup.
type Config struct {
	RequestsPerSecond float64
	BurstSize         float64
	CleanupInterval   time.Duration
	IdleTimeout       time.Duration
}

func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 100,
		BurstSize:         200,
		CleanupInterval:   5 * time.Minute,
		IdleTimeout:       10 * time.Minute,
	}
}

// bucket is a single route's token bucket. lastRefill is a nanosecond
// timestamp off the injected clock, not time.Time, so FakeClock-driven
// tests never touch the wall clock.
type bucket struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	refillRate float64
	lastRefill int64
}

func newBucket(capacity, refillRate float64, now int64) *bucket {
	return &bucket{tokens: capacity, capacity: capacity, refillRate: refillRate, lastRefill: now}
}

// allow refills proportionally to elapsed time since lastRefill, then
// consumes one token if available. Parameterised on an injected "now" in
// nanoseconds so tests control the clock.
func (b *bucket) allow(now int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	elapsedSeconds := float64(now-b.lastRefill) / float64(time.Second)
	if elapsedSeconds > 0 {
		b.tokens += elapsedSeconds * b.refillRate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.lastRefill = now
	}

	if b.tokens >= 1.0 {
		b.tokens -= 1.0
		return true
	}
	return false
}

func (b *bucket) idleSince(now int64) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return time.Duration(now - b.lastRefill)
}

// Limiter manages one token bucket per route name.
type Limiter struct {
	cfg     Config
	clock   atomicx.Clock
	mu      sync.RWMutex
	buckets map[string]*bucket
	stopCh  chan struct{}
	stopOne sync.Once
}

// New constructs a Limiter and starts its background cleanup goroutine.
func New(cfg Config, clock atomicx.Clock) *Limiter {
	if clock == nil {
		clock = atomicx.SystemClock
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultConfig().CleanupInterval
	}
	l := &Limiter{
		cfg:     cfg,
		clock:   clock,
		buckets: make(map[string]*bucket),
		stopCh:  make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Allow reports whether a request for routeName may proceed, creating the
// route's bucket on first use (double-checked under the write lock to
// avoid two goroutines racing to create the same bucket).
func (l *Limiter) Allow(routeName string) bool {
	if routeName == "" {
		routeName = "default"
	}

	l.mu.RLock()
	b, ok := l.buckets[routeName]
	l.mu.RUnlock()

	if !ok {
		l.mu.Lock()
		if b, ok = l.buckets[routeName]; !ok {
			b = newBucket(l.cfg.BurstSize, l.cfg.RequestsPerSecond, l.clock.NowNano())
			l.buckets[routeName] = b
		}
		l.mu.Unlock()
	}

	return b.allow(l.clock.NowNano())
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stopCh:
			return
		}
	}
}

func (l *Limiter) sweep() {
	now := l.clock.NowNano()
	l.mu.Lock()
	defer l.mu.Unlock()
	for name, b := range l.buckets {
		if b.idleSince(now) > l.cfg.IdleTimeout {
			delete(l.buckets, name)
		}
	}
}

// Stop halts the cleanup goroutine. Safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOne.Do(func() { close(l.stopCh) })
}

// ActiveRoutes returns the number of routes currently holding a bucket.
func (l *Limiter) ActiveRoutes() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.buckets)
}
