package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wikid82/bastion/internal/logger"
)

func panicRouter(verbose bool) *gin.Engine {
	router := gin.New()
	router.Use(RequestID(), Recovery(verbose))
	router.GET("/panic", func(c *gin.Context) { panic("vault exploded") })
	return router
}

func TestRecovery_VerboseIncludesStack(t *testing.T) {
	buf := &bytes.Buffer{}
	logger.Init(true, buf)

	w := httptest.NewRecorder()
	panicRouter(true).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	out := buf.String()
	assert.Contains(t, out, "PANIC: vault exploded")
	assert.Contains(t, out, "Stacktrace:")
	assert.Contains(t, out, "request_id")
}

func TestRecovery_BriefWhenNotVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	logger.Init(false, buf)

	w := httptest.NewRecorder()
	panicRouter(false).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, buf.String(), "PANIC: vault exploded")
	assert.NotContains(t, buf.String(), "Stacktrace:")
}

func TestRecovery_RedactsCredentials(t *testing.T) {
	buf := &bytes.Buffer{}
	logger.Init(true, buf)

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	req.AddCookie(&http.Cookie{Name: AuthCookieName, Value: "cookie-token"})
	w := httptest.NewRecorder()
	panicRouter(true).ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	out := buf.String()
	assert.NotContains(t, out, "secret-token")
	assert.NotContains(t, out, "cookie-token")
	assert.Contains(t, out, "[REDACTED]")
}
