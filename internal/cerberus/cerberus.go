package cerberus

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Wikid82/bastion/internal/api/middleware"
	"github.com/Wikid82/bastion/internal/config"
	"github.com/Wikid82/bastion/internal/logger"
	"github.com/Wikid82/bastion/internal/metrics"
	"github.com/Wikid82/bastion/internal/securitylog"
)

// Cerberus inspects incoming requests for injection and traversal payloads
// and reports every finding as a security event.
type Cerberus struct {
	mode   string
	events *securitylog.Logger
	log    *logrus.Entry
}

// New creates an inspector for the given WAF mode. events may be nil.
func New(wafMode string, events *securitylog.Logger) *Cerberus {
	return &Cerberus{mode: wafMode, events: events, log: logger.Component("cerberus")}
}

// IsEnabled reports whether requests are inspected at all. An empty mode is disabled.
func (c *Cerberus) IsEnabled() bool {
	return c.mode == config.WAFMonitor || c.mode == config.WAFBlock
}

// Mode returns the configured WAF mode.
func (c *Cerberus) Mode() string { return c.mode }

// Middleware inspects the decoded path and query. In block mode a request
// with any finding is rejected with 400; in monitor mode it continues.
func (c *Cerberus) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if !c.IsEnabled() {
			ctx.Next()
			return
		}

		metrics.IncWAFRequest()
		findings := Inspect(ctx.Request.URL.Path, ctx.Request.URL.Query())
		if len(findings) == 0 {
			ctx.Next()
			return
		}

		ec := middleware.EventContext(ctx)
		for _, f := range findings {
			c.report(f, ec)
		}

		decision := "monitor"
		if c.mode == config.WAFBlock {
			decision = "block"
		}
		middleware.GetRequestLogger(ctx).WithFields(logrus.Fields{
			"source":   "waf",
			"decision": decision,
			"findings": len(findings),
			"path":     middleware.SanitizePath(ctx.Request.URL.Path),
		}).Warn("suspicious request")

		if c.mode == config.WAFBlock {
			metrics.IncWAFBlocked()
			ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "request rejected"})
			return
		}
		metrics.IncWAFMonitored()
		ctx.Next()
	}
}

func (c *Cerberus) report(f Finding, ec securitylog.EventContext) {
	switch f.Kind {
	case KindPathTraversal:
		c.events.LogPathTraversal(f.Input, ec)
	case KindSQL:
		c.events.LogInjectionAttempt(securitylog.InjectionSQL, f.Input, ec)
	case KindXSS:
		c.events.LogInjectionAttempt(securitylog.InjectionXSS, f.Input, ec)
	case KindCommand:
		c.events.LogInjectionAttempt(securitylog.InjectionCommand, f.Input, ec)
	default:
		c.log.WithField("kind", f.Kind).Debug("unhandled finding kind")
	}
}
