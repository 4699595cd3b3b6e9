package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wikid82/bastion/internal/models"
	"github.com/Wikid82/bastion/internal/securitylog"
)

func TestAuthMiddleware_MissingHeader(t *testing.T) {
	r := gin.New()
	// nil service: the request is rejected before the service is needed
	r.Use(AuthMiddleware(nil))
	r.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Authorization header required")
}

func TestAuthMiddleware_MissingTokenLogsUnauthorized(t *testing.T) {
	auth, events := newTestAuth(t)
	r := gin.New()
	r.Use(AuthMiddleware(auth))
	r.GET("/api/v1/auth/me", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("User-Agent", "curl/8.0")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	got := events.GetEventsByType(securitylog.EventUnauthorizedAccess)
	require.Len(t, got, 1)
	assert.Equal(t, "/api/v1/auth/me", got[0].Endpoint)
	assert.Equal(t, "curl/8.0", got[0].UserAgent)
	assert.Equal(t, "missing_token", got[0].Details["reason"])
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	auth, events := newTestAuth(t)
	r := gin.New()
	r.Use(AuthMiddleware(auth))
	r.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	got := events.GetEventsByType(securitylog.EventUnauthorizedAccess)
	require.Len(t, got, 1)
	assert.Equal(t, "invalid_token", got[0].Details["reason"])
}

func TestAuthMiddleware_NonBearerSchemeRejected(t *testing.T) {
	auth, _ := newTestAuth(t)
	token := loginToken(t, auth, "basic@example.com")

	r := gin.New()
	r.Use(AuthMiddleware(auth))
	r.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Basic "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_ValidBearerSetsContext(t *testing.T) {
	auth, _ := newTestAuth(t)
	token := loginToken(t, auth, "admin@example.com")

	r := gin.New()
	r.Use(AuthMiddleware(auth))
	r.GET("/test", func(c *gin.Context) {
		claims := GetClaims(c)
		require.NotNil(t, claims)
		assert.Equal(t, models.RoleAdmin, c.GetString(RoleKey))
		assert.Equal(t, claims.UserID, c.MustGet(UserIDKey))
		ec := EventContext(c)
		assert.Equal(t, claims.Subject, ec.ActorID)
		assert.Equal(t, claims.ID, ec.SessionID)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthMiddleware_CookieFallback(t *testing.T) {
	auth, _ := newTestAuth(t)
	token := loginToken(t, auth, "cookie@example.com")

	r := gin.New()
	r.Use(AuthMiddleware(auth))
	r.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.AddCookie(&http.Cookie{Name: AuthCookieName, Value: token})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireRole_Success(t *testing.T) {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(RoleKey, models.RoleAdmin)
		c.Next()
	})
	r.Use(RequireRole(models.RoleAdmin))
	r.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireRole_ForbiddenWithoutLogger(t *testing.T) {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(RoleKey, models.RoleUser)
		c.Next()
	})
	r.Use(RequireRole(models.RoleAdmin))
	r.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireRole_LogsPrivilegeEscalation(t *testing.T) {
	auth, events := newTestAuth(t)
	// first account is the admin; the second is a plain user
	loginToken(t, auth, "first@example.com")
	token := loginToken(t, auth, "second@example.com")

	r := gin.New()
	r.Use(AuthMiddleware(auth), RequireRole(models.RoleAdmin))
	r.GET("/api/v1/security/events", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/api/v1/security/events", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusForbidden, w.Code)
	got := events.GetEventsByType(securitylog.EventPrivilegeEscalationAttempt)
	require.Len(t, got, 1)
	assert.Equal(t, securitylog.SeverityCritical, got[0].Severity)
	assert.Equal(t, models.RoleAdmin, got[0].Details["attempted_role"])
	assert.Equal(t, models.RoleUser, got[0].Details["current_role"])
}
