package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/Wikid82/bastion/internal/api/routes"
	"github.com/Wikid82/bastion/internal/config"
	"github.com/Wikid82/bastion/internal/database"
	"github.com/Wikid82/bastion/internal/metrics"
	"github.com/Wikid82/bastion/internal/ratelimit"
	"github.com/Wikid82/bastion/internal/securitylog"
)

type stack struct {
	router *gin.Engine
	events *securitylog.Logger
	db     *gorm.DB
}

func newStack(t *testing.T, wafMode string) *stack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	limiters, err := ratelimit.NewSet(ratelimit.DefaultLimits())
	require.NoError(t, err)
	sink, err := securitylog.NewDatabaseSink(db)
	require.NoError(t, err)
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)
	events, err := securitylog.New(securitylog.DefaultConfig(), securitylog.WithConsole(quiet), securitylog.WithSink(sink))
	require.NoError(t, err)
	t.Cleanup(func() { _ = events.Close(context.Background()) })

	registry := prometheus.NewRegistry()
	metrics.Register(registry)

	r := gin.New()
	err = routes.Register(r, routes.Deps{
		DB:       db,
		Config:   config.Config{JWTSecret: "integration-secret", TokenTTL: time.Hour, WAFMode: wafMode},
		Limiters: limiters,
		Events:   events,
		Gatherer: registry,
	})
	require.NoError(t, err)
	return &stack{router: r, events: events, db: db}
}

func (s *stack) post(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.50:1234"
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *stack) get(path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "203.0.113.50:1234"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// TestIntegration_LoginLockout walks the brute-force scenario end to end:
// five failures are reported, the sixth attempt is refused before the
// password is checked, and the admin API sees the resulting events.
func TestIntegration_LoginLockout(t *testing.T) {
	s := newStack(t, config.WAFMonitor)

	require.Equal(t, http.StatusCreated, s.post(t, "/api/v1/auth/register", map[string]string{
		"email": "admin@example.com", "password": "password123", "name": "Admin",
	}).Code)
	require.Equal(t, http.StatusCreated, s.post(t, "/api/v1/auth/register", map[string]string{
		"email": "victim@example.com", "password": "password123", "name": "Victim",
	}).Code)

	bad := map[string]string{"email": "victim@example.com", "password": "guess"}
	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusUnauthorized, s.post(t, "/api/v1/auth/login", bad).Code)
	}
	w := s.post(t, "/api/v1/auth/login", bad)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1800", w.Header().Get("Retry-After"))

	login := s.post(t, "/api/v1/auth/login", map[string]string{"email": "admin@example.com", "password": "password123"})
	require.Equal(t, http.StatusOK, login.Code)
	var tok struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(login.Body.Bytes(), &tok))

	w = s.get("/api/v1/security/events?type=ACCOUNT_LOCKED", tok.Token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "victim@example.com")

	w = s.get("/api/v1/security/limiters/login/victim@example.com", tok.Token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"blocked":true`)
}

// TestIntegration_WAF_BlockAndMonitor exercises the inspector and metrics exposure.
func TestIntegration_WAF_BlockAndMonitor(t *testing.T) {
	block := newStack(t, config.WAFBlock)
	w := block.get("/api/v1/auth/me?next=%3Cscript%3Ealert(1)%3C/script%3E", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, block.events.GetEventsByType(securitylog.EventXSSAttempt), 1)

	monitor := newStack(t, config.WAFMonitor)
	w = monitor.get("/api/v1/auth/me?next=%3Cscript%3Ealert(1)%3C/script%3E", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code, "monitor mode lets the request reach auth")
	assert.Len(t, monitor.events.GetEventsByType(securitylog.EventXSSAttempt), 1)

	wM := monitor.get("/metrics", "")
	require.Equal(t, http.StatusOK, wM.Code)
	body := wM.Body.String()
	for _, k := range []string{
		"bastion_waf_requests_total",
		"bastion_waf_blocked_total",
		"bastion_waf_monitored_total",
		"bastion_security_events_total",
		"bastion_ratelimit_attempts_total",
	} {
		assert.Contains(t, body, k)
	}
}

func TestIntegration_Health(t *testing.T) {
	s := newStack(t, config.WAFDisabled)
	w := s.get("/api/v1/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}
