package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	wafRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bastion_waf_requests_total",
		Help: "Total number of requests inspected by the request inspector",
	})
	wafBlockedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bastion_waf_blocked_total",
		Help: "Total number of requests blocked by the request inspector",
	})
	wafMonitoredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bastion_waf_monitored_total",
		Help: "Total number of suspicious requests reported but not blocked",
	})

	rateLimitAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bastion_ratelimit_attempts_total",
		Help: "Attempts evaluated by a named limiter, partitioned by outcome",
	}, []string{"limiter", "result"})
	rateLimitBlocks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bastion_ratelimit_blocks_total",
		Help: "Blocks started by a named limiter",
	}, []string{"limiter"})
	rateLimitEntries = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bastion_ratelimit_entries",
		Help: "Keys currently tracked by a named limiter",
	}, []string{"limiter"})

	securityEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bastion_security_events_total",
		Help: "Security events accepted by the event logger",
	}, []string{"type", "severity"})
	securityEventsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bastion_security_events_dropped_total",
		Help: "Security events not delivered, partitioned by reason",
	}, []string{"reason"})
	securitySinkFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bastion_security_sink_failures_total",
		Help: "Batches a durable sink failed to accept after all retries",
	}, []string{"sink"})
	securityAlerts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bastion_security_alerts_total",
		Help: "Critical event escalations, partitioned by result",
	}, []string{"result"})
)

// Register registers Prometheus collectors. Call once at startup.
func Register(registry *prometheus.Registry) {
	registry.MustRegister(
		wafRequestsTotal, wafBlockedTotal, wafMonitoredTotal,
		rateLimitAttempts, rateLimitBlocks, rateLimitEntries,
		securityEvents, securityEventsDropped, securitySinkFailures, securityAlerts,
	)
}

// IncWAFRequest increments the evaluated requests counter.
func IncWAFRequest() { wafRequestsTotal.Inc() }

// IncWAFBlocked increments the blocked requests counter.
func IncWAFBlocked() { wafBlockedTotal.Inc() }

// IncWAFMonitored increments the monitored requests counter.
func IncWAFMonitored() { wafMonitoredTotal.Inc() }

// ObserveRateLimitAttempt records one limiter decision. result is one of
// "allowed", "blocked" or "triggered".
func ObserveRateLimitAttempt(limiter, result string) {
	rateLimitAttempts.WithLabelValues(limiter, result).Inc()
	if result == "triggered" {
		rateLimitBlocks.WithLabelValues(limiter).Inc()
	}
}

// SetRateLimitEntries publishes the tracked key count for a limiter.
func SetRateLimitEntries(limiter string, n int) {
	rateLimitEntries.WithLabelValues(limiter).Set(float64(n))
}

// IncSecurityEvent counts an accepted security event.
func IncSecurityEvent(eventType, severity string) {
	securityEvents.WithLabelValues(eventType, severity).Inc()
}

// IncSecurityEventDropped counts an event that was filtered or could not be queued.
func IncSecurityEventDropped(reason string) {
	securityEventsDropped.WithLabelValues(reason).Inc()
}

// IncSinkFailure counts a batch a sink could not persist.
func IncSinkFailure(sink string) { securitySinkFailures.WithLabelValues(sink).Inc() }

// IncAlert counts an escalation attempt.
func IncAlert(result string) { securityAlerts.WithLabelValues(result).Inc() }
