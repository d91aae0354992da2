package protocol

import (
	"encoding/json"
	"time"
)

// Inner progress event types
const (
	EventTextDelta  = "text-delta"
	EventToolCall   = "tool-call"
	EventToolResult = "tool-result"
	EventStatus     = "status"
	EventError      = "error"
)

// ProgressEvent is the normalized, ordered envelope around a
// worker-reported progress event. Workers may emit the envelope directly
// or a bare inner event; the hub wraps the latter with Seq 0.
type ProgressEvent struct {
	ID             string     `json:"id"`
	Seq            int64      `json:"seq"`
	TaskID         string     `json:"task_id"`
	ConversationID string     `json:"conversation_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	Model          string     `json:"model,omitempty"`
	Event          InnerEvent `json:"event"`
}

// InnerEvent is the typed payload inside a progress envelope
type InnerEvent struct {
	Type string          `json:"type"`
	Text string          `json:"text,omitempty"`
	Name string          `json:"name,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}
