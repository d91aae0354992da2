package model

import (
	"time"

	"gorm.io/datatypes"
)

// Worker mirrors a connected worker's identity into the durable store so
// clients can still see recently-seen-but-offline workers. The live
// connection state is owned by the registry alone.
type Worker struct {
	ID             string         `gorm:"type:varchar(128);primaryKey" json:"id"`
	Name           string         `gorm:"type:varchar(128)" json:"name"`
	Version        string         `gorm:"type:varchar(64)" json:"version"`
	Platform       string         `gorm:"type:varchar(64)" json:"platform"`
	Capabilities   datatypes.JSON `gorm:"type:json" json:"capabilities,omitempty"`
	Connected      bool           `gorm:"default:false;index" json:"connected"`
	RegisteredAt   time.Time      `json:"registered_at"`
	LastSeenAt     time.Time      `gorm:"index" json:"last_seen_at"`
	DisconnectedAt *time.Time     `json:"disconnected_at,omitempty"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for Worker
func (Worker) TableName() string {
	return "workers"
}
