package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Worker → hub message types
const (
	TypeHello         = "hello"
	TypeHeartbeat     = "heartbeat"
	TypeTaskStarted   = "task_started"
	TypeTaskProgress  = "task_progress"
	TypeTaskStream    = "task_stream"
	TypeTaskCompleted = "task_completed"
	TypeTaskError     = "task_error"
	TypeStatusReport  = "status_report"
	TypeJobListReport = "job_list_report"
	TypeSkillResult   = "skill_result"
	TypeConfigAck     = "config_ack"
)

// Hub → worker message types
const (
	TypeTaskCreate     = "task_create"
	TypeTaskMessage    = "task_message"
	TypeTaskStop       = "task_stop"
	TypeStatusRequest  = "status_request"
	TypeJobListRequest = "job_list_request"
	TypeConfigPush     = "config_push"
	TypeJobPush        = "job_push"
	TypeSkillProvision = "skill_provision"
)

// Message is the wire envelope exchanged over a worker connection.
// CorrelationID ties a reply back to an outstanding request.
type Message struct {
	Type          string          `json:"type"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// NewMessage builds a Message with a marshalled payload
func NewMessage(msgType string, payload any) (Message, error) {
	msg := Message{Type: msgType}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Message{}, fmt.Errorf("marshal %s payload: %w", msgType, err)
		}
		msg.Payload = raw
	}
	return msg, nil
}

// NewRequest builds a correlated request message
func NewRequest(msgType, correlationID string, payload any) (Message, error) {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		return Message{}, err
	}
	msg.CorrelationID = correlationID
	return msg, nil
}

// Hello is the first frame a worker must send after connecting
type Hello struct {
	WorkerID     string   `json:"worker_id"`
	Name         string   `json:"name,omitempty"`
	Version      string   `json:"version,omitempty"`
	Platform     string   `json:"platform,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
	Tools        []string `json:"tools,omitempty"`
	Skills       []string `json:"skills,omitempty"`
}

// Heartbeat carries liveness plus optional telemetry
type Heartbeat struct {
	Status       string            `json:"status,omitempty"`
	CPUPercent   float64           `json:"cpu_percent,omitempty"`
	MemPercent   float64           `json:"mem_percent,omitempty"`
	RunningTasks []string          `json:"running_tasks,omitempty"`
	Capabilities map[string]string `json:"capabilities,omitempty"`
}

// TaskStarted marks the beginning of a task turn on the worker
type TaskStarted struct {
	TaskID         string `json:"task_id"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// TaskProgress wraps a progress payload; the inner bytes may be a full
// envelope or a legacy unwrapped event, normalization happens hub-side
type TaskProgress struct {
	TaskID string          `json:"task_id"`
	Event  json.RawMessage `json:"event"`
}

// TaskStream carries a raw output chunk
type TaskStream struct {
	TaskID string `json:"task_id"`
	Data   []byte `json:"data"`
}

// TaskCompleted marks a successful terminal transition
type TaskCompleted struct {
	TaskID string `json:"task_id"`
	Result string `json:"result,omitempty"`
}

// TaskError marks a failed terminal transition; partial output stays intact
type TaskError struct {
	TaskID string `json:"task_id"`
	Error  string `json:"error"`
}

// StatusReport answers a status_request
type StatusReport struct {
	Status       string    `json:"status"`
	CPUPercent   float64   `json:"cpu_percent,omitempty"`
	MemPercent   float64   `json:"mem_percent,omitempty"`
	RunningTasks []string  `json:"running_tasks,omitempty"`
	ReportedAt   time.Time `json:"reported_at"`
}

// JobInfo is one entry in a job_list_report
type JobInfo struct {
	ID     string `json:"id"`
	Kind   string `json:"kind,omitempty"`
	Status string `json:"status,omitempty"`
}

// JobListReport answers a job listing request
type JobListReport struct {
	Jobs []JobInfo `json:"jobs"`
}

// SkillResult answers a skill_provision request
type SkillResult struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// ConfigAck acknowledges a config_push
type ConfigAck struct {
	Version string `json:"version,omitempty"`
}

// TaskCreate dispatches a new task to a worker
type TaskCreate struct {
	TaskID  string          `json:"task_id"`
	Goal    string          `json:"goal"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// TaskMessage re-dispatches a message onto an existing task
type TaskMessage struct {
	TaskID  string          `json:"task_id"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// TaskStop requests the worker abort a task. The hub does not wait for
// an acknowledgment.
type TaskStop struct {
	TaskID string `json:"task_id"`
}

// ConfigPush sends configuration to a worker
type ConfigPush struct {
	Version string          `json:"version,omitempty"`
	Config  json.RawMessage `json:"config"`
}

// JobPush sends an out-of-band job to a worker
type JobPush struct {
	Job json.RawMessage `json:"job"`
}

// SkillProvision asks a worker to install a skill package
type SkillProvision struct {
	Name   string `json:"name"`
	Source string `json:"source,omitempty"`
}

// DecodePayload returns the typed payload for an inbound worker message.
// The switch is the closed set: adding a message type means adding a case
// here, and unknown types surface as an error instead of being dropped
// silently.
func (m Message) DecodePayload() (any, error) {
	switch m.Type {
	case TypeHello:
		return decode[Hello](m)
	case TypeHeartbeat:
		return decode[Heartbeat](m)
	case TypeTaskStarted:
		return decode[TaskStarted](m)
	case TypeTaskProgress:
		return decode[TaskProgress](m)
	case TypeTaskStream:
		return decode[TaskStream](m)
	case TypeTaskCompleted:
		return decode[TaskCompleted](m)
	case TypeTaskError:
		return decode[TaskError](m)
	case TypeStatusReport:
		return decode[StatusReport](m)
	case TypeJobListReport:
		return decode[JobListReport](m)
	case TypeSkillResult:
		return decode[SkillResult](m)
	case TypeConfigAck:
		return decode[ConfigAck](m)
	default:
		return nil, fmt.Errorf("unknown message type: %s", m.Type)
	}
}

func decode[T any](m Message) (T, error) {
	var payload T
	if len(m.Payload) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(m.Payload, &payload); err != nil {
		return payload, fmt.Errorf("decode %s payload: %w", m.Type, err)
	}
	return payload, nil
}
