package registry

import (
	"sync"
	"time"

	"agenthub/internal/protocol"
)

// callTable correlates out-of-band request/response exchanges over a
// worker connection. Every pending entry holds a result channel and a
// timer; both the reply path and the timeout path clear the entry, so
// nothing leaks whichever fires first.
type callTable struct {
	mu      sync.Mutex
	pending map[string]*pendingCall
}

type pendingCall struct {
	ch    chan protocol.Message
	timer *time.Timer
}

func newCallTable() *callTable {
	return &callTable{pending: make(map[string]*pendingCall)}
}

// create registers a pending call. The returned channel yields the reply
// or is closed when the timeout fires.
func (t *callTable) create(correlationID string, timeout time.Duration) <-chan protocol.Message {
	call := &pendingCall{ch: make(chan protocol.Message, 1)}

	// the timer is armed under the lock so resolve can never observe the
	// entry before its timer exists
	t.mu.Lock()
	t.pending[correlationID] = call
	call.timer = time.AfterFunc(timeout, func() {
		t.mu.Lock()
		current, ok := t.pending[correlationID]
		if ok && current == call {
			delete(t.pending, correlationID)
		}
		t.mu.Unlock()
		if ok && current == call {
			close(call.ch)
		}
	})
	t.mu.Unlock()

	return call.ch
}

// resolve delivers a reply to a pending call. Returns false when the call
// already timed out or was never registered.
func (t *callTable) resolve(correlationID string, msg protocol.Message) bool {
	t.mu.Lock()
	call, ok := t.pending[correlationID]
	if ok {
		delete(t.pending, correlationID)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}
	call.timer.Stop()
	call.ch <- msg
	close(call.ch)
	return true
}

// drop cancels a pending call without delivering anything
func (t *callTable) drop(correlationID string) {
	t.mu.Lock()
	call, ok := t.pending[correlationID]
	if ok {
		delete(t.pending, correlationID)
	}
	t.mu.Unlock()

	if ok {
		call.timer.Stop()
		close(call.ch)
	}
}

// size reports the number of outstanding calls
func (t *callTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
