package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wikid82/bastion/internal/models"
	"github.com/Wikid82/bastion/internal/ratelimit"
	"github.com/Wikid82/bastion/internal/securitylog"
)

type eventsResponse struct {
	Events []securitylog.Event `json:"events"`
	Count  int                 `json:"count"`
}

func TestSecurityHandler_RequiresAdmin(t *testing.T) {
	f := newFixture(t)
	f.adminToken(t)
	f.register(t, "user@example.com")
	userToken := f.login(t, "user@example.com")

	w := f.do(t, http.MethodGet, "/security/events", nil, userToken)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Len(t, f.events.GetEventsByType(securitylog.EventPrivilegeEscalationAttempt), 1)

	w = f.do(t, http.MethodGet, "/security/events", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSecurityHandler_GetEventsFilters(t *testing.T) {
	f := newFixture(t)
	token := f.adminToken(t)
	f.events.LogSuspiciousActivity("odd", securitylog.EventContext{}, nil)
	f.events.LogRateLimitExceeded("1.2.3.4", "api", "1.2.3.4")
	f.events.LogRateLimitExceeded("5.6.7.8", "api", "5.6.7.8")

	w := f.do(t, http.MethodGet, "/security/events?type=rate_limit_exceeded", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	var resp eventsResponse
	decode(t, w, &resp)
	assert.Equal(t, 2, resp.Count)
	for _, ev := range resp.Events {
		assert.Equal(t, securitylog.EventRateLimitExceeded, ev.Type)
	}

	w = f.do(t, http.MethodGet, "/security/events?severity=medium", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	resp = eventsResponse{}
	decode(t, w, &resp)
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, securitylog.EventSuspiciousActivity, resp.Events[0].Type)

	w = f.do(t, http.MethodGet, "/security/events?type=RATE_LIMIT_EXCEEDED&severity=low", nil, token)
	resp = eventsResponse{}
	decode(t, w, &resp)
	assert.Equal(t, 0, resp.Count)
	assert.NotNil(t, resp.Events)

	w = f.do(t, http.MethodGet, "/security/events?limit=1", nil, token)
	resp = eventsResponse{}
	decode(t, w, &resp)
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "5.6.7.8", resp.Events[0].SourceAddress, "limit keeps the most recent events")
}

func TestSecurityHandler_GetEventsRejectsBadParams(t *testing.T) {
	f := newFixture(t)
	token := f.adminToken(t)

	for _, q := range []string{"type=NOPE", "severity=urgent", "limit=ten"} {
		w := f.do(t, http.MethodGet, "/security/events?"+q, nil, token)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestSecurityHandler_FlushAndHistory(t *testing.T) {
	f := newFixture(t)
	token := f.adminToken(t)
	f.events.LogRateLimitExceeded("1.2.3.4", "api", "1.2.3.4")

	w := f.do(t, http.MethodPost, "/security/events/flush", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	require.Eventually(t, func() bool {
		var n int64
		f.db.Model(&models.SecurityEvent{}).Count(&n)
		return n == 2 // the flush admin action stays buffered
	}, 2*time.Second, 10*time.Millisecond)

	w = f.do(t, http.MethodGet, "/security/events/history?type=RATE_LIMIT_EXCEEDED", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	var hist struct {
		Events []models.SecurityEvent `json:"events"`
		Total  int64                  `json:"total"`
	}
	decode(t, w, &hist)
	require.Equal(t, int64(1), hist.Total)
	assert.Equal(t, "1.2.3.4", hist.Events[0].SourceAddress)
	assert.Equal(t, "high", hist.Events[0].Severity)

	w = f.do(t, http.MethodGet, "/security/events/history?min_severity=high", nil, token)
	hist.Events, hist.Total = nil, 0
	decode(t, w, &hist)
	assert.Equal(t, int64(1), hist.Total)
}

func TestSecurityHandler_HistoryRejectsBadRange(t *testing.T) {
	f := newFixture(t)
	token := f.adminToken(t)

	w := f.do(t, http.MethodGet, "/security/events/history?since=2026-10-02T00:00:00Z&until=2026-10-01T00:00:00Z", nil, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = f.do(t, http.MethodGet, "/security/events/history?since=yesterday", nil, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSecurityHandler_Summary(t *testing.T) {
	f := newFixture(t)
	token := f.adminToken(t)
	f.events.Flush()
	require.Eventually(t, func() bool { return f.events.Stats().Delivered >= 1 }, 2*time.Second, 10*time.Millisecond)

	w := f.do(t, http.MethodGet, "/security/events/summary", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	var sum struct {
		BySeverity map[string]int64  `json:"by_severity"`
		ByType     map[string]int64  `json:"by_type"`
		Logger     securitylog.Stats `json:"logger"`
	}
	decode(t, w, &sum)
	assert.Equal(t, int64(1), sum.ByType["LOGIN_SUCCESS"])
	assert.Equal(t, int64(1), sum.BySeverity["low"])
	assert.Equal(t, []string{"database"}, sum.Logger.Sinks)
}

func TestSecurityHandler_Limiters(t *testing.T) {
	f := newFixture(t)
	token := f.adminToken(t)
	f.limiters.Login.Attempt("target@example.com", ratelimit.ActionLogin)

	w := f.do(t, http.MethodGet, "/security/limiters", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Limiters []ratelimit.Stats `json:"limiters"`
	}
	decode(t, w, &list)
	require.Len(t, list.Limiters, 3)
	assert.Equal(t, ratelimit.NameLogin, list.Limiters[0].Name)

	w = f.do(t, http.MethodGet, "/security/limiters/login/target@example.com", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	var entry struct {
		Entry   ratelimit.Entry `json:"entry"`
		Blocked bool            `json:"blocked"`
	}
	decode(t, w, &entry)
	assert.Equal(t, 1, entry.Entry.Count)
	assert.False(t, entry.Blocked)

	w = f.do(t, http.MethodDelete, "/security/limiters/login/target@example.com", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	_, found := f.limiters.Login.Peek("target@example.com", ratelimit.ActionLogin)
	assert.False(t, found)

	admin := f.events.GetEventsByType(securitylog.EventAdminAction)
	require.Len(t, admin, 1)
	assert.Equal(t, "reset_rate_limit", admin[0].Details["action"])

	w = f.do(t, http.MethodGet, "/security/limiters/login/target@example.com", nil, token)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = f.do(t, http.MethodGet, "/security/limiters/bogus/x", nil, token)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
