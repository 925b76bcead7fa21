package ratelimit

import (
	"sync"
	"time"
)

// Keyed is a fixed-window rate limiter tracking each key (caller address,
// client IP) independently.
type Keyed struct {
	mu      sync.Mutex
	entries map[string]*entry
	rate    int
	window  time.Duration
}

// entry tracks request counts within the current window for a single key.
type entry struct {
	count       int
	windowStart time.Time
}

// NewKeyed creates a keyed limiter that allows rate requests per window per
// key. It starts a background goroutine that cleans up stale entries every
// minute.
func NewKeyed(rate int, window time.Duration) *Keyed {
	k := &Keyed{
		entries: make(map[string]*entry),
		rate:    rate,
		window:  window,
	}
	go func() {
		for {
			time.Sleep(time.Minute)
			k.cleanup()
		}
	}()
	return k
}

// Allow returns true if key has not exceeded its rate limit.
func (k *Keyed) Allow(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := time.Now()
	e, exists := k.entries[key]
	if !exists || now.Sub(e.windowStart) > k.window {
		k.entries[key] = &entry{count: 1, windowStart: now}
		return true
	}
	e.count++
	return e.count <= k.rate
}

// cleanup removes entries whose window has expired.
func (k *Keyed) cleanup() {
	k.mu.Lock()
	defer k.mu.Unlock()
	now := time.Now()
	for key, e := range k.entries {
		if now.Sub(e.windowStart) > k.window {
			delete(k.entries, key)
		}
	}
}
