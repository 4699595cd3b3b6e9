package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Wikid82/bastion/internal/api/middleware"
	"github.com/Wikid82/bastion/internal/config"
	"github.com/Wikid82/bastion/internal/models"
	"github.com/Wikid82/bastion/internal/ratelimit"
	"github.com/Wikid82/bastion/internal/securitylog"
	"github.com/Wikid82/bastion/internal/services"
)

type fixture struct {
	db       *gorm.DB
	cfg      config.Config
	limiters *ratelimit.Set
	events   *securitylog.Logger
	auth     *services.AuthService
	mailer   ResetMailer
	router   *gin.Engine
}

type sentReset struct {
	email, token string
}

// fakeMailer records reset deliveries instead of speaking SMTP.
type fakeMailer struct {
	sent chan sentReset
}

func newFakeMailer() *fakeMailer {
	return &fakeMailer{sent: make(chan sentReset, 4)}
}

func (m *fakeMailer) IsConfigured() bool { return true }

func (m *fakeMailer) SendPasswordReset(email, token string) error {
	m.sent <- sentReset{email: email, token: token}
	return nil
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := OpenTestDB(t)

	limiters, err := ratelimit.NewSet(ratelimit.DefaultLimits())
	require.NoError(t, err)

	sink, err := securitylog.NewDatabaseSink(db)
	require.NoError(t, err)
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)
	logCfg := securitylog.DefaultConfig()
	logCfg.BufferSize = 1000
	events, err := securitylog.New(logCfg, securitylog.WithConsole(quiet), securitylog.WithSink(sink))
	require.NoError(t, err)
	t.Cleanup(func() { _ = events.Close(context.Background()) })

	cfg := config.Config{Environment: "development", JWTSecret: "handler-secret", TokenTTL: time.Hour}
	auth := services.NewAuthService(db, cfg, limiters, events)

	f := &fixture{db: db, cfg: cfg, limiters: limiters, events: events, auth: auth}
	f.router = f.buildRouter()
	return f
}

func (f *fixture) buildRouter() *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID())

	ah := NewAuthHandler(f.auth, f.cfg, f.mailer)
	r.POST("/auth/login", ah.Login)
	r.POST("/auth/register", ah.Register)
	r.POST("/auth/password-reset", ah.RequestPasswordReset)
	r.POST("/auth/password-reset/complete", ah.CompletePasswordReset)

	authed := r.Group("/", middleware.AuthMiddleware(f.auth))
	authed.POST("/auth/logout", ah.Logout)
	authed.GET("/auth/me", ah.Me)
	authed.POST("/auth/change-password", ah.ChangePassword)

	notifications := services.NewNotificationService(f.db, nil)
	sh := NewSecurityHandler(f.events, services.NewSecurityService(f.db), f.limiters)
	nh := NewNotificationHandler(notifications, f.events)
	ph := NewNotificationProviderHandler(notifications, f.events)

	admin := r.Group("/", middleware.AuthMiddleware(f.auth), middleware.RequireRole(models.RoleAdmin))
	admin.GET("/security/events", sh.GetEvents)
	admin.GET("/security/events/history", sh.GetEventHistory)
	admin.GET("/security/events/summary", sh.GetEventSummary)
	admin.POST("/security/events/flush", sh.FlushEvents)
	admin.GET("/security/limiters", sh.ListLimiters)
	admin.GET("/security/limiters/:name/:identifier", sh.GetLimiterEntry)
	admin.DELETE("/security/limiters/:name/:identifier", sh.ResetLimiterEntry)
	admin.GET("/notifications", nh.List)
	admin.POST("/notifications/:id/read", nh.MarkAsRead)
	admin.POST("/notifications/read-all", nh.MarkAllAsRead)
	admin.GET("/notifications/providers", ph.List)
	admin.POST("/notifications/providers", ph.Create)
	admin.DELETE("/notifications/providers/:id", ph.Delete)
	return r
}

func (f *fixture) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.RemoteAddr = "198.51.100.7:40000"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

// register creates an account; the first one in a fixture is the admin.
func (f *fixture) register(t *testing.T, email string) {
	t.Helper()
	w := f.do(t, http.MethodPost, "/auth/register", map[string]string{
		"email": email, "password": "password123", "name": "Test",
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func (f *fixture) login(t *testing.T, email string) string {
	t.Helper()
	w := f.do(t, http.MethodPost, "/auth/login", map[string]string{
		"email": email, "password": "password123",
	}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Token
}

func (f *fixture) adminToken(t *testing.T) string {
	t.Helper()
	f.register(t, "admin@example.com")
	return f.login(t, "admin@example.com")
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}
