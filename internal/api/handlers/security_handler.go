package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/bastion/internal/api/middleware"
	"github.com/Wikid82/bastion/internal/ratelimit"
	"github.com/Wikid82/bastion/internal/securitylog"
	"github.com/Wikid82/bastion/internal/services"
)

const defaultRecentEvents = 100

// SecurityHandler exposes the event logger, the persisted history and the
// limiter state to administrators.
type SecurityHandler struct {
	events   *securitylog.Logger
	history  *services.SecurityService
	limiters *ratelimit.Set
	now      func() time.Time
}

func NewSecurityHandler(events *securitylog.Logger, history *services.SecurityService, limiters *ratelimit.Set) *SecurityHandler {
	return &SecurityHandler{events: events, history: history, limiters: limiters, now: time.Now}
}

func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(name + " must be an integer")
	}
	return n, nil
}

func queryTime(c *gin.Context, name string) (time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errors.New(name + " must be an RFC3339 timestamp")
	}
	return t, nil
}

// GetEvents returns buffered events, oldest first, filtered by the optional
// type and severity query parameters.
func (h *SecurityHandler) GetEvents(c *gin.Context) {
	limit, err := queryInt(c, "limit", defaultRecentEvents)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var (
		typ    securitylog.EventType
		sev    securitylog.Severity
		events []securitylog.Event
	)
	if raw := c.Query("type"); raw != "" {
		if typ, err = securitylog.ParseEventType(raw); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if raw := c.Query("severity"); raw != "" {
		if sev, err = securitylog.ParseSeverity(raw); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	switch {
	case typ.Valid():
		events = h.events.GetEventsByType(typ)
	case sev.Valid():
		events = h.events.GetEventsBySeverity(sev)
	default:
		events = h.events.GetRecentEvents(0)
	}
	if typ.Valid() && sev.Valid() {
		filtered := events[:0]
		for _, ev := range events {
			if ev.Severity == sev {
				filtered = append(filtered, ev)
			}
		}
		events = filtered
	}
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	if events == nil {
		events = []securitylog.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

// GetEventHistory pages through persisted events, newest first.
func (h *SecurityHandler) GetEventHistory(c *gin.Context) {
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	since, err := queryTime(c, "since")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	until, err := queryTime(c, "until")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	f := services.EventFilter{
		ActorID:       c.Query("actor_id"),
		SourceAddress: c.Query("source_address"),
		Since:         since,
		Until:         until,
		Limit:         limit,
		Offset:        offset,
	}
	if raw := c.Query("type"); raw != "" {
		typ, err := securitylog.ParseEventType(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		f.Type = typ.String()
	}
	if raw := c.Query("min_severity"); raw != "" {
		if f.MinSeverity, err = securitylog.ParseSeverity(raw); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	events, total, err := h.history.ListEvents(f)
	if err != nil {
		if errors.Is(err, services.ErrInvalidTimeRange) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		middleware.GetRequestLogger(c).WithError(err).Error("list security events")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list security events"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "total": total})
}

// GetEventSummary returns persisted counts since the given time (default the
// last 24 hours) alongside the live logger counters.
func (h *SecurityHandler) GetEventSummary(c *gin.Context) {
	since, err := queryTime(c, "since")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if since.IsZero() {
		since = h.now().Add(-24 * time.Hour)
	}

	bySeverity, err := h.history.CountBySeverity(since)
	if err != nil {
		middleware.GetRequestLogger(c).WithError(err).Error("count events by severity")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to summarize security events"})
		return
	}
	byType, err := h.history.CountByType(since)
	if err != nil {
		middleware.GetRequestLogger(c).WithError(err).Error("count events by type")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to summarize security events"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"since":       since.UTC(),
		"by_severity": bySeverity,
		"by_type":     byType,
		"logger":      h.events.Stats(),
	})
}

// FlushEvents hands the buffered batch to the durable sinks.
func (h *SecurityHandler) FlushEvents(c *gin.Context) {
	h.events.Flush()
	ec := middleware.EventContext(c)
	h.events.LogAdminAction(ec.ActorID, "flush_security_events", nil, ec)
	c.JSON(http.StatusOK, gin.H{"message": "Security events flushed", "logger": h.events.Stats()})
}

// ListLimiters returns the counters of every named limiter.
func (h *SecurityHandler) ListLimiters(c *gin.Context) {
	all := h.limiters.All()
	out := make([]ratelimit.Stats, 0, len(all))
	for _, rl := range all {
		out = append(out, rl.Stats())
	}
	c.JSON(http.StatusOK, gin.H{"limiters": out})
}

func (h *SecurityHandler) limiterKey(c *gin.Context) (*ratelimit.RateLimiter, string, string, bool) {
	name := c.Param("name")
	rl, ok := h.limiters.ByName(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown limiter"})
		return nil, "", "", false
	}
	action := c.DefaultQuery("action", name)
	return rl, c.Param("identifier"), action, true
}

// GetLimiterEntry reports the tracked state of one identifier.
func (h *SecurityHandler) GetLimiterEntry(c *gin.Context) {
	rl, identifier, action, ok := h.limiterKey(c)
	if !ok {
		return
	}
	entry, found := rl.Peek(identifier, action)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "No entry for identifier"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"limiter":             rl.Name(),
		"identifier":          identifier,
		"action":              action,
		"entry":               entry,
		"blocked":             rl.IsBlocked(identifier, action),
		"retry_after_seconds": rl.RemainingBlockSeconds(identifier, action),
	})
}

// ResetLimiterEntry clears one identifier, lifting any block.
func (h *SecurityHandler) ResetLimiterEntry(c *gin.Context) {
	rl, identifier, action, ok := h.limiterKey(c)
	if !ok {
		return
	}
	rl.Reset(identifier, action)

	ec := middleware.EventContext(c)
	h.events.LogAdminAction(ec.ActorID, "reset_rate_limit", map[string]any{
		"limiter":        rl.Name(),
		"identifier":     identifier,
		"limiter_action": action,
	}, ec)
	c.JSON(http.StatusOK, gin.H{"message": "Rate limit entry reset"})
}
