package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RequestLogger writes one line per request. 5xx responses log at error and
// 4xx at warn so rejected credentials stand out from normal traffic.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := logrus.Fields{
			"status":     status,
			"method":     c.Request.Method,
			"path":       SanitizePath(c.Request.URL.Path),
			"latency_ms": time.Since(start).Milliseconds(),
			"client":     c.ClientIP(),
		}
		if claims := GetClaims(c); claims != nil {
			fields["actor"] = claims.Subject
		}
		entry := GetRequestLogger(c).WithFields(fields)
		switch {
		case status >= 500:
			entry.Error("handled request")
		case status >= 400:
			entry.Warn("handled request")
		default:
			entry.Info("handled request")
		}
	}
}
