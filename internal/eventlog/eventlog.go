package eventlog

import (
	"sync"
	"time"
)

// DefaultCapacity is the number of entries the ring retains
const DefaultCapacity = 200

// Event kinds
const (
	KindSystem = "system"
	KindTask   = "task"
)

// Severities
const (
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)

// Event is one entry in the merged activity feed
type Event struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	Component string    `json:"component"`
	Severity  string    `json:"severity"`
	WorkerID  string    `json:"worker_id,omitempty"`
	TaskID    string    `json:"task_id,omitempty"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

// Log is a fixed-size ring merging task-activity and system events into
// one chronologically queryable feed. Oldest entries are overwritten once
// the ring is full.
type Log struct {
	mu       sync.RWMutex
	entries  []Event
	start    int
	count    int
	nextID   int64
	capacity int
}

// New creates a Log with the given capacity (DefaultCapacity if <= 0)
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		entries:  make([]Event, capacity),
		nextID:   1,
		capacity: capacity,
	}
}

// Append stamps and stores an event, returning the stored copy
func (l *Log) Append(e Event) Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.ID = l.nextID
	l.nextID++
	if e.At.IsZero() {
		e.At = time.Now()
	}
	if e.Severity == "" {
		e.Severity = SeverityInfo
	}

	idx := (l.start + l.count) % l.capacity
	if l.count == l.capacity {
		l.entries[l.start] = e
		l.start = (l.start + 1) % l.capacity
	} else {
		l.entries[idx] = e
		l.count++
	}
	return e
}

// System appends a system event (connect/disconnect/heartbeat-miss)
func (l *Log) System(component, severity, workerID, message string) Event {
	return l.Append(Event{
		Kind:      KindSystem,
		Component: component,
		Severity:  severity,
		WorkerID:  workerID,
		Message:   message,
	})
}

// Task appends a task-activity event
func (l *Log) Task(component, taskID, message string) Event {
	return l.Append(Event{
		Kind:      KindTask,
		Component: component,
		TaskID:    taskID,
		Message:   message,
	})
}

// Query returns up to limit events with ID greater than since, oldest
// first. limit <= 0 means no limit beyond the ring itself.
func (l *Log) Query(since int64, limit int) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Event, 0, l.count)
	for i := 0; i < l.count; i++ {
		e := l.entries[(l.start+i)%l.capacity]
		if e.ID <= since {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Len returns the number of retained events
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}
