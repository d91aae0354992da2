package coordinator

import (
	"time"

	"agenthub/internal/model"
	"agenthub/internal/protocol"
)

const (
	// maxPartialText caps the accumulated text-delta buffer in characters;
	// the oldest text is truncated first
	maxPartialText = 20000

	// maxStreamBytes caps the raw chunk ring; the oldest chunks are
	// evicted first
	maxStreamBytes = 2000000

	// maxEvents caps the per-task normalized event list
	maxEvents = 500

	// subscriberBuffer is the live-chunk headroom a subscriber gets on top
	// of its replay backlog
	subscriberBuffer = 64
)

// chunkRing retains the most recent stream output under a byte budget.
// Eviction is chunk-granular and oldest-first, so replay is a contiguous
// suffix of the stream, never a reordering.
type chunkRing struct {
	chunks [][]byte
	bytes  int
}

func (r *chunkRing) push(data []byte) {
	if len(data) == 0 {
		return
	}
	if len(data) > maxStreamBytes {
		data = data[len(data)-maxStreamBytes:]
	}
	chunk := make([]byte, len(data))
	copy(chunk, data)
	r.chunks = append(r.chunks, chunk)
	r.bytes += len(chunk)

	evict := 0
	for r.bytes > maxStreamBytes {
		r.bytes -= len(r.chunks[evict])
		evict++
	}
	if evict > 0 {
		r.chunks = append([][]byte(nil), r.chunks[evict:]...)
	}
}

func (r *chunkRing) snapshot() [][]byte {
	out := make([][]byte, len(r.chunks))
	copy(out, r.chunks)
	return out
}

func (r *chunkRing) reset() {
	r.chunks = nil
	r.bytes = 0
}

// appendText appends a delta to the partial-text buffer, truncating the
// oldest characters once the cap is exceeded
func appendText(buf, delta string) string {
	buf += delta
	if len(buf) <= maxPartialText {
		return buf
	}
	runes := []rune(buf)
	if len(runes) <= maxPartialText {
		return buf
	}
	return string(runes[len(runes)-maxPartialText:])
}

// taskRuntime is the live, authoritative state of an in-flight task. It
// exists from creation until delete (or coordinator restart); the durable
// record in the store is an asynchronous mirror.
type taskRuntime struct {
	id             string
	goal           string
	workerID       string
	conversationID string
	status         model.TaskStatus
	createdAt      time.Time
	completedAt    *time.Time
	lastError      string
	result         string

	events      []protocol.ProgressEvent
	partialText string
	ring        chunkRing

	subscribers map[int]chan []byte
	nextSubID   int
}

func newRuntime(id, goal, workerID string) *taskRuntime {
	return &taskRuntime{
		id:          id,
		goal:        goal,
		workerID:    workerID,
		status:      model.TaskStatusPending,
		createdAt:   time.Now(),
		subscribers: make(map[int]chan []byte),
	}
}

func (rt *taskRuntime) appendEvent(e protocol.ProgressEvent) {
	rt.events = append(rt.events, e)
	if len(rt.events) > maxEvents {
		rt.events = append([]protocol.ProgressEvent(nil), rt.events[len(rt.events)-maxEvents:]...)
	}
}

// broadcast fans a live chunk out to every subscriber. A subscriber that
// cannot keep up is closed and dropped rather than blocking the turn.
func (rt *taskRuntime) broadcast(chunk []byte) {
	for id, ch := range rt.subscribers {
		select {
		case ch <- chunk:
		default:
			close(ch)
			delete(rt.subscribers, id)
		}
	}
}

// closeSubscribers ends every active stream. Called on terminal
// transitions and on turn reset; no writes are permitted afterward.
func (rt *taskRuntime) closeSubscribers() {
	for id, ch := range rt.subscribers {
		close(ch)
		delete(rt.subscribers, id)
	}
}

// resetTurn clears all runtime buffers for a new turn. Existing
// subscribers are closed first so no stream ever interleaves two turns.
func (rt *taskRuntime) resetTurn() {
	rt.closeSubscribers()
	rt.events = nil
	rt.partialText = ""
	rt.ring.reset()
	rt.status = model.TaskStatusPending
	rt.completedAt = nil
	rt.lastError = ""
	rt.result = ""
}
