package models

import (
	"time"
)

// SecurityEvent is the persisted form of a security event written by the
// database sink. Severity keeps the name for display and SeverityLevel the
// ordinal for range queries.
type SecurityEvent struct {
	ID            uint           `json:"id" gorm:"primaryKey"`
	UUID          string         `json:"uuid" gorm:"uniqueIndex"`
	Type          string         `json:"type" gorm:"index"`
	Severity      string         `json:"severity"`
	SeverityLevel int            `json:"-" gorm:"index"`
	ActorID       string         `json:"actor_id,omitempty" gorm:"index"`
	SessionID     string         `json:"session_id,omitempty"`
	SourceAddress string         `json:"source_address,omitempty" gorm:"index"`
	UserAgent     string         `json:"user_agent,omitempty"`
	Endpoint      string         `json:"endpoint,omitempty"`
	Method        string         `json:"method,omitempty"`
	Message       string         `json:"message"`
	Success       bool           `json:"success"`
	Details       map[string]any `json:"details,omitempty" gorm:"serializer:json;type:text"`
	OccurredAt    time.Time      `json:"occurred_at" gorm:"index"`
	CreatedAt     time.Time      `json:"created_at"`
}
