package gateway

import (
	"testing"
	"time"
)

func TestSlidingWindowLimits(t *testing.T) {
	limiter := newSlidingWindow(3, time.Minute)

	for i := 0; i < 3; i++ {
		if ok, _ := limiter.Allow("caller"); !ok {
			t.Fatalf("Request %d should pass", i+1)
		}
	}

	ok, retryAfter := limiter.Allow("caller")
	if ok {
		t.Fatal("Fourth request inside the window should be rejected")
	}
	if retryAfter <= 0 || retryAfter > time.Minute {
		t.Errorf("Retry-after hint out of range: %v", retryAfter)
	}

	// another caller has an independent window
	if ok, _ := limiter.Allow("other"); !ok {
		t.Error("Independent key should not be affected")
	}
}

func TestSlidingWindowRecovers(t *testing.T) {
	limiter := newSlidingWindow(2, 50*time.Millisecond)

	limiter.Allow("caller")
	limiter.Allow("caller")
	if ok, _ := limiter.Allow("caller"); ok {
		t.Fatal("Third request should be rejected")
	}

	time.Sleep(60 * time.Millisecond)
	if ok, _ := limiter.Allow("caller"); !ok {
		t.Error("Requests should succeed again after the window elapses")
	}
}

func TestSlidingWindowSweep(t *testing.T) {
	limiter := newSlidingWindow(5, 10*time.Millisecond)
	limiter.Allow("a")
	limiter.Allow("b")

	time.Sleep(20 * time.Millisecond)
	limiter.sweep()

	limiter.mu.Lock()
	n := len(limiter.hits)
	limiter.mu.Unlock()
	if n != 0 {
		t.Errorf("Expected empty hit map after sweep, got %d keys", n)
	}
}

func TestLockoutTracker(t *testing.T) {
	tracker := newLockoutTracker(3, 50*time.Millisecond)

	if locked, _ := tracker.Locked("caller"); locked {
		t.Fatal("Fresh key should not be locked")
	}

	tracker.RecordFailure("caller")
	tracker.RecordFailure("caller")
	if locked, _ := tracker.Locked("caller"); locked {
		t.Fatal("Below threshold should not lock")
	}

	if !tracker.RecordFailure("caller") {
		t.Fatal("Third failure should trigger the lockout")
	}
	locked, remaining := tracker.Locked("caller")
	if !locked || remaining <= 0 {
		t.Fatal("Key should be locked with remaining time")
	}

	time.Sleep(60 * time.Millisecond)
	if locked, _ := tracker.Locked("caller"); locked {
		t.Error("Lockout should expire")
	}
}

func TestLockoutReset(t *testing.T) {
	tracker := newLockoutTracker(3, time.Minute)
	tracker.RecordFailure("caller")
	tracker.RecordFailure("caller")
	tracker.Reset("caller")

	// the count starts over after a successful attempt
	if tracker.RecordFailure("caller") {
		t.Error("Reset should clear the failure count")
	}
}

func TestIdempotencyTable(t *testing.T) {
	table := newIdempotencyTable(50 * time.Millisecond)

	if !table.Check("key-1") {
		t.Fatal("First sight should be new")
	}
	if table.Check("key-1") {
		t.Fatal("Repeat within TTL should be a duplicate")
	}

	time.Sleep(60 * time.Millisecond)
	if !table.Check("key-1") {
		t.Error("Expired key should count as new again")
	}
	if table.size() != 1 {
		t.Errorf("Expired entries should be swept, got %d", table.size())
	}
}
