package gateway

import (
	"sync"
	"time"
)

// lockoutTracker counts consecutive pairing failures per caller key and
// enforces a temporary lockout once the threshold is hit. A successful
// pairing resets the count.
type lockoutTracker struct {
	mu        sync.Mutex
	threshold int
	duration  time.Duration
	failures  map[string]int
	until     map[string]time.Time
}

func newLockoutTracker(threshold int, duration time.Duration) *lockoutTracker {
	return &lockoutTracker{
		threshold: threshold,
		duration:  duration,
		failures:  make(map[string]int),
		until:     make(map[string]time.Time),
	}
}

// Locked reports whether key is currently locked out and for how much
// longer. An expired lockout is cleared on sight.
func (t *lockoutTracker) Locked(key string) (bool, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	until, ok := t.until[key]
	if !ok {
		return false, 0
	}
	remaining := time.Until(until)
	if remaining <= 0 {
		delete(t.until, key)
		delete(t.failures, key)
		return false, 0
	}
	return true, remaining
}

// RecordFailure increments the failure count and reports whether this
// failure triggered a lockout
func (t *lockoutTracker) RecordFailure(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.failures[key]++
	if t.failures[key] >= t.threshold {
		t.until[key] = time.Now().Add(t.duration)
		return true
	}
	return false
}

// Reset clears the failure count after a successful attempt
func (t *lockoutTracker) Reset(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.failures, key)
	delete(t.until, key)
}
