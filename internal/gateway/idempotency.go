package gateway

import (
	"sync"
	"time"
)

// idempotencyTable deduplicates caller-supplied keys within a TTL window.
// Expired keys are swept opportunistically on each check, so the table
// needs no background goroutine.
type idempotencyTable struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
}

func newIdempotencyTable(ttl time.Duration) *idempotencyTable {
	return &idempotencyTable{
		ttl:  ttl,
		seen: make(map[string]time.Time),
	}
}

// Check records key on first sight and returns true; a repeat within the
// TTL returns false so the caller can short-circuit the side effect.
func (t *idempotencyTable) Check(key string) bool {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	for k, at := range t.seen {
		if now.Sub(at) > t.ttl {
			delete(t.seen, k)
		}
	}

	if at, ok := t.seen[key]; ok && now.Sub(at) <= t.ttl {
		return false
	}
	t.seen[key] = now
	return true
}

func (t *idempotencyTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen)
}
