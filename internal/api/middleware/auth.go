package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/bastion/internal/services"
)

// AuthCookieName is the cookie the login handler sets for browser clients.
const AuthCookieName = "auth_token"

func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if cookie, err := c.Cookie(AuthCookieName); err == nil {
		return cookie
	}
	return ""
}

// AuthMiddleware requires a valid session token from the Authorization header
// or the auth cookie. Rejections are reported as UNAUTHORIZED_ACCESS.
func AuthMiddleware(authService *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		events := authService.Events()
		c.Set(EventsKey, events)

		token := bearerToken(c)
		if token == "" {
			events.LogUnauthorizedAccess(c.Request.URL.Path, EventContext(c), map[string]any{"reason": "missing_token"})
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			events.LogUnauthorizedAccess(c.Request.URL.Path, EventContext(c), map[string]any{"reason": "invalid_token"})
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(RoleKey, claims.Role)
		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// RequireRole allows the request only when the authenticated role matches.
// Mismatches are reported as privilege escalation attempts.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		current := c.GetString(RoleKey)
		if current != role {
			ec := EventContext(c)
			Events(c).LogPrivilegeEscalation(ec.ActorID, role, current, ec.SourceAddress)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
			return
		}
		c.Next()
	}
}
