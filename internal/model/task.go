package model

import (
	"time"

	"gorm.io/datatypes"
)

// TaskStatus represents the task lifecycle status
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusError     TaskStatus = "error"
	TaskStatusStopped   TaskStatus = "stopped"
)

// Terminal reports whether the status is final
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusError, TaskStatusStopped:
		return true
	}
	return false
}

// Valid reports whether the status is a known lifecycle state
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusRunning, TaskStatusCompleted, TaskStatusError, TaskStatusStopped:
		return true
	}
	return false
}

// Task is the durable record of a unit of work. Live runtime state
// (event log, text buffer, stream ring) lives in the coordinator and is
// not persisted.
type Task struct {
	ID            string         `gorm:"type:varchar(64);primaryKey" json:"id"`
	UserID        string         `gorm:"type:varchar(64);index" json:"user_id,omitempty"`
	Goal          string         `gorm:"type:varchar(1024);not null" json:"goal"`
	WorkerID      string         `gorm:"type:varchar(128);index" json:"worker_id"`
	EnvironmentID string         `gorm:"type:varchar(64)" json:"environment_id,omitempty"`
	Status        TaskStatus     `gorm:"type:varchar(16);default:'pending';index" json:"status"`
	LastError     string         `gorm:"type:varchar(1024)" json:"last_error,omitempty"`
	Config        datatypes.JSON `gorm:"type:json" json:"config,omitempty"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	ArchivedAt    *time.Time     `gorm:"index" json:"archived_at,omitempty"`
}

// TableName specifies the table name for Task
func (Task) TableName() string {
	return "tasks"
}

// Archived reports whether the task is archived
func (t *Task) Archived() bool {
	return t.ArchivedAt != nil
}
