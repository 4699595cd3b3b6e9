package services

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/Wikid82/bastion/internal/models"
	"github.com/Wikid82/bastion/internal/securitylog"
)

// ErrInvalidTimeRange is returned when a filter ends before it starts.
var ErrInvalidTimeRange = errors.New("invalid time range")

const (
	defaultEventPage = 50
	maxEventPage     = 500
)

// EventFilter narrows a history query. Zero fields match everything.
type EventFilter struct {
	Type          string
	MinSeverity   securitylog.Severity
	ActorID       string
	SourceAddress string
	Since         time.Time
	Until         time.Time
	Limit         int
	Offset        int
}

// SecurityService queries the persisted security event history written by
// the database sink.
type SecurityService struct {
	db *gorm.DB
}

// NewSecurityService returns a SecurityService using the provided DB
func NewSecurityService(db *gorm.DB) *SecurityService {
	return &SecurityService{db: db}
}

// ListEvents returns one page of matching events, newest first, and the
// total number of matches.
func (s *SecurityService) ListEvents(f EventFilter) ([]models.SecurityEvent, int64, error) {
	if !f.Since.IsZero() && !f.Until.IsZero() && f.Until.Before(f.Since) {
		return nil, 0, ErrInvalidTimeRange
	}

	q := s.db.Model(&models.SecurityEvent{})
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.MinSeverity.Valid() {
		q = q.Where("severity_level >= ?", int(f.MinSeverity))
	}
	if f.ActorID != "" {
		q = q.Where("actor_id = ?", f.ActorID)
	}
	if f.SourceAddress != "" {
		q = q.Where("source_address = ?", f.SourceAddress)
	}
	if !f.Since.IsZero() {
		q = q.Where("occurred_at >= ?", f.Since)
	}
	if !f.Until.IsZero() {
		q = q.Where("occurred_at < ?", f.Until)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultEventPage
	}
	if limit > maxEventPage {
		limit = maxEventPage
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	var events []models.SecurityEvent
	if err := q.Order("occurred_at desc, id desc").Limit(limit).Offset(offset).Find(&events).Error; err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// CountBySeverity returns persisted event counts keyed by severity name.
func (s *SecurityService) CountBySeverity(since time.Time) (map[string]int64, error) {
	return s.countBy("severity", since)
}

// CountByType returns persisted event counts keyed by event type.
func (s *SecurityService) CountByType(since time.Time) (map[string]int64, error) {
	return s.countBy("type", since)
}

func (s *SecurityService) countBy(column string, since time.Time) (map[string]int64, error) {
	var rows []struct {
		Name  string
		Total int64
	}
	q := s.db.Model(&models.SecurityEvent{}).Select(column + " AS name, COUNT(*) AS total")
	if !since.IsZero() {
		q = q.Where("occurred_at >= ?", since)
	}
	if err := q.Group(column).Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Name] = r.Total
	}
	return out, nil
}

// Purge deletes events that occurred before cutoff and reports how many.
func (s *SecurityService) Purge(cutoff time.Time) (int64, error) {
	res := s.db.Where("occurred_at < ?", cutoff).Delete(&models.SecurityEvent{})
	return res.RowsAffected, res.Error
}
