package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wikid82/bastion/internal/ratelimit"
	"github.com/Wikid82/bastion/internal/securitylog"
)

func TestDefaultMaintenanceSchedule(t *testing.T) {
	s := DefaultMaintenanceSchedule(30 * time.Second)
	assert.Equal(t, "@every 30s", s.EventFlush)
	assert.Equal(t, "@every 1m", s.LimiterCleanup)
	assert.Empty(t, DefaultMaintenanceSchedule(0).EventFlush)
}

func TestNewMaintenanceService_RejectsBadSpec(t *testing.T) {
	_, err := NewMaintenanceService(nil, nil, nil, 0, MaintenanceSchedule{LimiterCleanup: "not a spec"})
	assert.Error(t, err)
}

func TestMaintenanceService_RunCleanup(t *testing.T) {
	clock := newFakeClock()
	limiters, err := ratelimit.NewSet(ratelimit.DefaultLimits(), ratelimit.WithClock(clock.Now))
	require.NoError(t, err)
	limiters.API.Attempt("10.0.0.1", ratelimit.ActionAPI)
	limiters.Login.Attempt("a@b.com", ratelimit.ActionLogin)

	m, err := NewMaintenanceService(limiters, nil, nil, 0, MaintenanceSchedule{})
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	removed := m.RunCleanup()
	assert.Equal(t, 1, removed[ratelimit.NameAPI])
	assert.Equal(t, 0, removed[ratelimit.NameLogin])
	assert.Equal(t, 1, limiters.Login.Len())
}

func TestMaintenanceService_RunFlushAndPurge(t *testing.T) {
	db := setupTestDB(t)
	clock := newFakeClock()
	sink, err := securitylog.NewDatabaseSink(db)
	require.NoError(t, err)
	events, err := securitylog.New(securitylog.DefaultConfig(), securitylog.WithSink(sink), securitylog.WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = events.Close(context.Background()) })

	security := NewSecurityService(db)
	m, err := NewMaintenanceService(nil, events, security, 24*time.Hour, MaintenanceSchedule{})
	require.NoError(t, err)
	m.now = clock.Now

	events.LogLoginAttempt("a@b.com", false, "10.0.0.1", nil)
	m.RunFlush()
	assert.Empty(t, events.GetRecentEvents(0))
	require.Eventually(t, func() bool {
		_, total, err := security.ListEvents(EventFilter{})
		return err == nil && total == 1
	}, 2*time.Second, 10*time.Millisecond)

	n, err := m.RunPurge()
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	clock.Advance(25 * time.Hour)
	n, err = m.RunPurge()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMaintenanceService_StartStop(t *testing.T) {
	m, err := NewMaintenanceService(nil, nil, nil, 0, DefaultMaintenanceSchedule(time.Second))
	require.NoError(t, err)
	m.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, m.Stop(ctx))
}
