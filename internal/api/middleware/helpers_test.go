package middleware

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/Wikid82/bastion/internal/config"
	"github.com/Wikid82/bastion/internal/models"
	"github.com/Wikid82/bastion/internal/ratelimit"
	"github.com/Wikid82/bastion/internal/securitylog"
	"github.com/Wikid82/bastion/internal/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestEvents(t *testing.T) *securitylog.Logger {
	t.Helper()
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)
	cfg := securitylog.DefaultConfig()
	cfg.BufferSize = 1000
	events, err := securitylog.New(cfg, securitylog.WithConsole(quiet))
	require.NoError(t, err)
	t.Cleanup(func() { _ = events.Close(context.Background()) })
	return events
}

func newTestAuth(t *testing.T) (*services.AuthService, *securitylog.Logger) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}))

	limiters, err := ratelimit.NewSet(ratelimit.DefaultLimits())
	require.NoError(t, err)
	events := newTestEvents(t)
	cfg := config.Config{JWTSecret: "middleware-secret", TokenTTL: time.Hour}
	return services.NewAuthService(db, cfg, limiters, events), events
}

func loginToken(t *testing.T, auth *services.AuthService, email string) string {
	t.Helper()
	_, err := auth.Register(email, "password123", "Test")
	require.NoError(t, err)
	token, err := auth.Login(email, "password123", securitylog.EventContext{SourceAddress: "127.0.0.1"})
	require.NoError(t, err)
	return token
}
