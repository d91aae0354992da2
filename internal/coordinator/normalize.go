package coordinator

import (
	"encoding/json"
	"time"

	"agenthub/internal/protocol"

	"github.com/google/uuid"
)

// normalizeProgress coerces a worker progress payload into the envelope
// shape. Workers on the current protocol emit the envelope directly;
// older ones emit the bare inner event, which gets wrapped with seq 0 so
// downstream consumers see one shape only.
func normalizeProgress(taskID string, raw json.RawMessage) (protocol.ProgressEvent, error) {
	var envelope protocol.ProgressEvent
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Event.Type != "" {
		stamp(&envelope, taskID)
		return envelope, nil
	}

	var inner protocol.InnerEvent
	if err := json.Unmarshal(raw, &inner); err != nil {
		return protocol.ProgressEvent{}, err
	}
	envelope = protocol.ProgressEvent{Seq: 0, Event: inner}
	stamp(&envelope, taskID)
	return envelope, nil
}

func stamp(e *protocol.ProgressEvent, taskID string) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	e.TaskID = taskID
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
}
