package models

import (
	"time"
)

// AuditEvent is a persisted security event
type AuditEvent struct {
	ID         string    `gorm:"column:id;primaryKey;type:varchar(36)" json:"id"`
	Timestamp  time.Time `gorm:"column:timestamp;not null;index" json:"timestamp"`
	EventType  string    `gorm:"column:event_type;not null;index" json:"event_type"`
	Severity   string    `gorm:"column:severity;not null" json:"severity"`
	UserID     *int64    `gorm:"column:user_id" json:"user_id,omitempty"`
	AuthID     string    `gorm:"column:auth_id" json:"auth_id,omitempty"`
	Identifier string    `gorm:"column:identifier;not null;index" json:"identifier"`
	UserAgent  string    `gorm:"column:user_agent" json:"user_agent,omitempty"`
	Path       string    `gorm:"column:path" json:"path"`
	Method     string    `gorm:"column:method" json:"method"`
	Message    string    `gorm:"column:message" json:"message,omitempty"`
	Details    string    `gorm:"column:details;type:text" json:"details,omitempty"`
}

// TableName specifies the table name for GORM
func (AuditEvent) TableName() string {
	return "audit_events"
}
