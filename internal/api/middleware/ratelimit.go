package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/bastion/internal/ratelimit"
	"github.com/Wikid82/bastion/internal/securitylog"
)

// RateLimit counts every request against limiter, keyed by client address.
// Blocked requests get 429 with Retry-After and a RATE_LIMIT_EXCEEDED event.
func RateLimit(limiter *ratelimit.RateLimiter, events *securitylog.Logger, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		ip := c.ClientIP()
		res := limiter.Attempt(ip, action)
		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.Config().MaxAttempts))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.RemainingAttempts))
		if res.Blocked {
			events.LogRateLimitExceeded(ip, action, ip)
			c.Header("Retry-After", strconv.Itoa(res.RetryAfterSeconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "too many requests",
				"retry_after": res.RetryAfterSeconds,
			})
			return
		}
		c.Next()
	}
}
