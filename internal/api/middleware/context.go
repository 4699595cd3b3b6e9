package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/bastion/internal/securitylog"
	"github.com/Wikid82/bastion/internal/services"
)

// Context keys set by AuthMiddleware.
const (
	UserIDKey = "userID"
	RoleKey   = "role"
	ClaimsKey = "claims"
	EventsKey = "securityEvents"
)

// EventContext builds the request-derived context attached to security events.
func EventContext(c *gin.Context) securitylog.EventContext {
	ec := securitylog.EventContext{
		SourceAddress: c.ClientIP(),
		UserAgent:     c.Request.UserAgent(),
		Endpoint:      c.Request.URL.Path,
		Method:        c.Request.Method,
	}
	if claims := GetClaims(c); claims != nil {
		ec.ActorID = claims.Subject
		ec.SessionID = claims.ID
	} else if id, ok := c.Get(UserIDKey); ok {
		if uid, ok := id.(uint); ok {
			ec.ActorID = strconv.FormatUint(uint64(uid), 10)
		}
	}
	return ec
}

// Events returns the security event logger attached by AuthMiddleware. The
// result may be nil; every Logger method tolerates that.
func Events(c *gin.Context) *securitylog.Logger {
	v, ok := c.Get(EventsKey)
	if !ok {
		return nil
	}
	events, _ := v.(*securitylog.Logger)
	return events
}

// GetClaims returns the validated token claims, or nil for anonymous requests.
func GetClaims(c *gin.Context) *services.Claims {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*services.Claims)
	return claims
}
