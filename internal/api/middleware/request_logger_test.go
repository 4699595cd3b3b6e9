package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wikid82/bastion/internal/logger"
)

func lastJSONLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &out))
	return out
}

func TestRequestLogger_IncludesRequestID(t *testing.T) {
	buf := &bytes.Buffer{}
	logger.Init(false, buf)

	router := gin.New()
	router.Use(RequestID(), RequestLogger())
	router.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok?token=abc", nil))
	require.Equal(t, http.StatusOK, w.Code)

	line := lastJSONLine(t, buf)
	assert.Equal(t, "handled request", line["msg"])
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, w.Header().Get(RequestIDHeader), line["request_id"])
	assert.Equal(t, "/ok", line["path"])
	assert.NotContains(t, buf.String(), "token=abc")
}

func TestRequestLogger_LevelFollowsStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusUnauthorized, "warning"},
		{http.StatusTooManyRequests, "warning"},
		{http.StatusInternalServerError, "error"},
	}
	for _, tt := range tests {
		buf := &bytes.Buffer{}
		logger.Init(false, buf)

		router := gin.New()
		router.Use(RequestLogger())
		router.GET("/s", func(c *gin.Context) { c.Status(tt.status) })

		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/s", nil))
		assert.Equal(t, tt.level, lastJSONLine(t, buf)["level"], "status %d", tt.status)
	}
}
