package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/Wikid82/bastion/internal/logger"
	"github.com/Wikid82/bastion/internal/ratelimit"
	"github.com/Wikid82/bastion/internal/securitylog"
)

// MaintenanceSchedule holds cron specs for the background jobs. An empty
// spec disables the job.
type MaintenanceSchedule struct {
	LimiterCleanup string
	EventFlush     string
	RetentionPurge string
}

// DefaultMaintenanceSchedule sweeps limiters every minute, flushes the event
// buffer every flushInterval and purges history hourly.
func DefaultMaintenanceSchedule(flushInterval time.Duration) MaintenanceSchedule {
	s := MaintenanceSchedule{
		LimiterCleanup: "@every 1m",
		RetentionPurge: "@hourly",
	}
	if flushInterval > 0 {
		s.EventFlush = "@every " + flushInterval.String()
	}
	return s
}

// MaintenanceService runs periodic housekeeping: expired limiter entries are
// removed, buffered security events are flushed to the sinks and persisted
// events older than the retention period are deleted.
type MaintenanceService struct {
	cron      *cron.Cron
	limiters  *ratelimit.Set
	events    *securitylog.Logger
	security  *SecurityService
	retention time.Duration
	now       func() time.Time
	log       *logrus.Entry
}

// NewMaintenanceService registers the scheduled jobs. security may be nil
// when events are not persisted to the database.
func NewMaintenanceService(limiters *ratelimit.Set, events *securitylog.Logger, security *SecurityService, retention time.Duration, schedule MaintenanceSchedule) (*MaintenanceService, error) {
	log := logger.Component("maintenance")
	m := &MaintenanceService{
		limiters:  limiters,
		events:    events,
		security:  security,
		retention: retention,
		now:       time.Now,
		log:       log,
	}
	m.cron = cron.New(cron.WithChain(cron.Recover(cron.PrintfLogger(log))))

	jobs := []struct {
		name string
		spec string
		fn   func()
	}{
		{"limiter cleanup", schedule.LimiterCleanup, func() { m.RunCleanup() }},
		{"event flush", schedule.EventFlush, m.RunFlush},
		{"retention purge", schedule.RetentionPurge, func() { _, _ = m.RunPurge() }},
	}
	for _, j := range jobs {
		if j.spec == "" {
			continue
		}
		if _, err := m.cron.AddFunc(j.spec, j.fn); err != nil {
			return nil, fmt.Errorf("schedule %s %q: %w", j.name, j.spec, err)
		}
	}
	return m, nil
}

// Start launches the scheduler in its own goroutine.
func (m *MaintenanceService) Start() {
	m.cron.Start()
	m.log.WithField("jobs", len(m.cron.Entries())).Info("maintenance scheduler started")
}

// Stop halts the scheduler and waits for running jobs or ctx to end.
func (m *MaintenanceService) Stop(ctx context.Context) error {
	done := m.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunCleanup sweeps every limiter and reports removals per limiter.
func (m *MaintenanceService) RunCleanup() map[string]int {
	if m.limiters == nil {
		return map[string]int{}
	}
	removed := m.limiters.Cleanup()
	total := 0
	for _, n := range removed {
		total += n
	}
	if total > 0 {
		m.log.WithField("removed", removed).Debug("expired limiter entries removed")
	}
	return removed
}

// RunFlush hands buffered security events to the sinks.
func (m *MaintenanceService) RunFlush() {
	m.events.Flush()
}

// RunPurge deletes persisted events older than the retention period.
func (m *MaintenanceService) RunPurge() (int64, error) {
	if m.security == nil || m.retention <= 0 {
		return 0, nil
	}
	cutoff := m.now().Add(-m.retention)
	n, err := m.security.Purge(cutoff)
	if err != nil {
		m.log.WithError(err).Error("security event retention purge failed")
		return 0, err
	}
	if n > 0 {
		m.log.WithFields(logrus.Fields{"deleted": n, "cutoff": cutoff}).Info("purged expired security events")
	}
	return n, nil
}
