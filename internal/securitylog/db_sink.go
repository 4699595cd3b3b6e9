package securitylog

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/Wikid82/bastion/internal/models"
)

const dbBatchSize = 100

// DatabaseSink persists events to the security_events table.
type DatabaseSink struct {
	db *gorm.DB
}

// NewDatabaseSink migrates the event table.
func NewDatabaseSink(db *gorm.DB) (*DatabaseSink, error) {
	if db == nil {
		return nil, errors.New("database sink: nil database")
	}
	if err := db.AutoMigrate(&models.SecurityEvent{}); err != nil {
		return nil, fmt.Errorf("database sink: migrate: %w", err)
	}
	return &DatabaseSink{db: db}, nil
}

func (s *DatabaseSink) Name() string { return "database" }

func (s *DatabaseSink) Write(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	rows := make([]models.SecurityEvent, 0, len(events))
	for _, ev := range events {
		rows = append(rows, ToModel(ev))
	}
	if err := s.db.WithContext(ctx).CreateInBatches(&rows, dbBatchSize).Error; err != nil {
		return fmt.Errorf("database sink: insert %d events: %w", len(rows), err)
	}
	return nil
}

// ToModel converts an event into its persisted row.
func ToModel(ev Event) models.SecurityEvent {
	return models.SecurityEvent{
		UUID:          ev.ID,
		Type:          ev.Type.String(),
		Severity:      ev.Severity.String(),
		SeverityLevel: int(ev.Severity),
		ActorID:       ev.ActorID,
		SessionID:     ev.SessionID,
		SourceAddress: ev.SourceAddress,
		UserAgent:     ev.UserAgent,
		Endpoint:      ev.Endpoint,
		Method:        ev.Method,
		Message:       ev.Message,
		Success:       ev.Success,
		Details:       ev.Details,
		OccurredAt:    ev.Timestamp,
	}
}
