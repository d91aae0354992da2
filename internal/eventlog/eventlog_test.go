package eventlog

import (
	"fmt"
	"testing"
)

func TestAppendAndQuery(t *testing.T) {
	log := New(10)

	log.System("registry", SeverityInfo, "w1", "worker connected")
	log.Task("coordinator", "task-1", "task created")
	log.System("registry", SeverityWarn, "w1", "heartbeat missed")

	events := log.Query(0, 0)
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}

	// chronological, ids strictly increasing
	for i := 1; i < len(events); i++ {
		if events[i].ID <= events[i-1].ID {
			t.Errorf("Events out of order: %d after %d", events[i].ID, events[i-1].ID)
		}
	}

	if events[0].Kind != KindSystem || events[0].WorkerID != "w1" {
		t.Errorf("Unexpected first event: %+v", events[0])
	}
	if events[1].Kind != KindTask || events[1].TaskID != "task-1" {
		t.Errorf("Unexpected second event: %+v", events[1])
	}
}

func TestQuerySinceAndLimit(t *testing.T) {
	log := New(10)
	for i := 0; i < 5; i++ {
		log.System("registry", SeverityInfo, "", fmt.Sprintf("event %d", i))
	}

	events := log.Query(2, 0)
	if len(events) != 3 {
		t.Fatalf("Expected 3 events after id 2, got %d", len(events))
	}
	if events[0].ID != 3 {
		t.Errorf("Expected first event id 3, got %d", events[0].ID)
	}

	events = log.Query(0, 2)
	if len(events) != 2 {
		t.Fatalf("Expected 2 events with limit, got %d", len(events))
	}
}

func TestRingEviction(t *testing.T) {
	log := New(3)
	for i := 0; i < 5; i++ {
		log.System("registry", SeverityInfo, "", fmt.Sprintf("event %d", i))
	}

	if log.Len() != 3 {
		t.Fatalf("Expected ring to hold 3 events, got %d", log.Len())
	}

	events := log.Query(0, 0)
	// oldest two evicted; ids 3,4,5 remain
	if events[0].ID != 3 || events[2].ID != 5 {
		t.Errorf("Unexpected retained ids: first=%d last=%d", events[0].ID, events[2].ID)
	}
}

func TestDefaultSeverity(t *testing.T) {
	log := New(0)
	e := log.Append(Event{Kind: KindSystem, Component: "gateway", Message: "started"})
	if e.Severity != SeverityInfo {
		t.Errorf("Expected default severity info, got %s", e.Severity)
	}
	if e.At.IsZero() {
		t.Error("Expected timestamp to be stamped")
	}
}
