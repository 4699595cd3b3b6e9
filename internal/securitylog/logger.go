package securitylog

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Wikid82/bastion/internal/logger"
	"github.com/Wikid82/bastion/internal/metrics"
)

// Logger records security events. It keeps an in-memory buffer of recent
// events, writes them to the console as they arrive and hands full buffers
// to the attached durable sinks in the background. A nil *Logger discards
// everything, so callers never have to check for one.
type Logger struct {
	cfg     Config
	console *logrus.Entry
	now     func() time.Time
	newID   func() string

	sinks    []Sink
	alerter  Alerter
	dispatch *dispatcher

	mu     sync.Mutex
	buffer []bufferedEvent

	accepted atomic.Int64
	flushes  atomic.Int64
}

type bufferedEvent struct {
	event Event
	// persisted marks critical events already dispatched on their own.
	persisted bool
}

// Option configures a Logger.
type Option func(*Logger)

// WithSink attaches a durable sink. Sinks receive batches in the order they
// were attached.
func WithSink(s Sink) Option {
	return func(l *Logger) {
		if s != nil {
			l.sinks = append(l.sinks, s)
		}
	}
}

// WithAlerter sets the receiver of critical events.
func WithAlerter(a Alerter) Option {
	return func(l *Logger) { l.alerter = a }
}

// WithConsole replaces the application logger used for console output.
func WithConsole(log *logrus.Logger) Option {
	return func(l *Logger) {
		if log != nil {
			l.console = logrus.NewEntry(log).WithField("component", "securitylog")
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) { l.now = now }
}

// WithIDGenerator overrides event id generation.
func WithIDGenerator(fn func() string) Option {
	return func(l *Logger) { l.newID = fn }
}

// New validates cfg and starts the background dispatcher. Close must be
// called to release it.
func New(cfg Config, opts ...Option) (*Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l := &Logger{
		cfg:     cfg,
		console: logger.Component("securitylog"),
		now:     time.Now,
		newID:   newEventID,
		buffer:  make([]bufferedEvent, 0, cfg.BufferSize),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.dispatch = newDispatcher(l.sinks, l.alerter, cfg, l.console)
	return l, nil
}

func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Log records one event. Events below the configured minimum severity are
// discarded without side effects and reported with ok=false. Undeclared
// types or severities are discarded with a console warning. Critical
// events are also persisted and escalated at once, ahead of the buffer.
func (l *Logger) Log(typ EventType, severity Severity, message string, details map[string]any, ec EventContext) (Event, bool) {
	if l == nil {
		return Event{}, false
	}
	if !typ.Valid() || !severity.Valid() {
		metrics.IncSecurityEventDropped("invalid")
		l.console.WithFields(logrus.Fields{
			"security_event": typ.String(),
			"severity":       severity.String(),
		}).Warn("security event with undeclared type or severity discarded")
		return Event{}, false
	}
	if severity < l.cfg.MinSeverity {
		return Event{}, false
	}

	ev := Event{
		ID:           l.newID(),
		Type:         typ,
		Severity:     severity,
		Timestamp:    l.now().UTC(),
		EventContext: ec,
		Message:      message,
	}
	if l.cfg.IncludeSensitiveData {
		ev.Details = cloneDetails(details)
	} else {
		ev.Details = Redact(details)
	}
	ev.Success = deriveSuccess(ev.Details)

	l.accepted.Add(1)
	metrics.IncSecurityEvent(typ.String(), severity.String())
	if l.cfg.Console {
		l.writeConsole(ev)
	}

	critical := severity == SeverityCritical
	l.mu.Lock()
	l.buffer = append(l.buffer, bufferedEvent{event: ev, persisted: critical})
	var batch []Event
	if len(l.buffer) >= l.cfg.BufferSize {
		batch = l.drainLocked()
	}
	l.mu.Unlock()

	if critical {
		l.dispatch.escalate(ev)
	}
	if batch != nil {
		l.flushes.Add(1)
		l.dispatch.enqueue(batch)
	}
	return ev, true
}

// drainLocked empties the buffer and returns the events not yet persisted.
func (l *Logger) drainLocked() []Event {
	batch := make([]Event, 0, len(l.buffer))
	for _, b := range l.buffer {
		if !b.persisted {
			batch = append(batch, b.event)
		}
	}
	l.buffer = make([]bufferedEvent, 0, l.cfg.BufferSize)
	return batch
}

func (l *Logger) writeConsole(ev Event) {
	l.console.WithFields(eventFields(ev)).Log(consoleLevel(ev.Severity), ev.Message)
}

func consoleLevel(s Severity) logrus.Level {
	switch s {
	case SeverityCritical, SeverityHigh:
		return logrus.ErrorLevel
	case SeverityMedium:
		return logrus.WarnLevel
	default:
		return logrus.InfoLevel
	}
}

// Flush hands every buffered event not yet persisted to the sinks and
// empties the buffer.
func (l *Logger) Flush() {
	if l == nil {
		return
	}
	l.mu.Lock()
	if len(l.buffer) == 0 {
		l.mu.Unlock()
		return
	}
	batch := l.drainLocked()
	l.mu.Unlock()
	if len(batch) > 0 {
		l.flushes.Add(1)
		l.dispatch.enqueue(batch)
	}
}

// Close flushes the buffer and waits for the dispatcher to finish. Events
// logged afterwards are still buffered and printed but no longer persisted.
func (l *Logger) Close(ctx context.Context) error {
	if l == nil {
		return nil
	}
	l.Flush()
	if err := l.dispatch.close(ctx); err != nil {
		return fmt.Errorf("close security log dispatcher: %w", err)
	}
	return nil
}

// GetRecentEvents returns up to limit of the newest buffered events, oldest
// first. A non-positive limit returns the whole buffer.
func (l *Logger) GetRecentEvents(limit int) []Event {
	return l.filter(limit, func(Event) bool { return true })
}

// GetEventsByType returns buffered events of the given type, oldest first.
func (l *Logger) GetEventsByType(t EventType) []Event {
	return l.filter(0, func(e Event) bool { return e.Type == t })
}

// GetEventsBySeverity returns buffered events of exactly the given severity,
// oldest first.
func (l *Logger) GetEventsBySeverity(s Severity) []Event {
	return l.filter(0, func(e Event) bool { return e.Severity == s })
}

// filter copies the matching buffered events; limit keeps the newest ones.
func (l *Logger) filter(limit int, match func(Event) bool) []Event {
	if l == nil {
		return []Event{}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, 0, len(l.buffer))
	for _, b := range l.buffer {
		if match(b.event) {
			out = append(out, b.event)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Stats is a point-in-time view of the logger counters.
type Stats struct {
	Accepted      int64    `json:"accepted"`
	Buffered      int      `json:"buffered"`
	BufferSize    int      `json:"buffer_size"`
	MinSeverity   Severity `json:"min_severity"`
	Flushes       int64    `json:"flushes"`
	Batches       int64    `json:"batches_queued"`
	Delivered     int64    `json:"delivered"`
	SinkFailures  int64    `json:"sink_failures"`
	Dropped       int64    `json:"dropped"`
	AlertsSent    int64    `json:"alerts_sent"`
	AlertsFailed  int64    `json:"alerts_failed"`
	AlertsSkipped int64    `json:"alerts_skipped"`
	Sinks         []string `json:"sinks"`
}

// Stats reports counters for the admin API.
func (l *Logger) Stats() Stats {
	if l == nil {
		return Stats{Sinks: []string{}}
	}
	l.mu.Lock()
	buffered := len(l.buffer)
	l.mu.Unlock()

	names := make([]string, 0, len(l.sinks))
	for _, s := range l.sinks {
		names = append(names, s.Name())
	}
	d := l.dispatch
	return Stats{
		Accepted:      l.accepted.Load(),
		Buffered:      buffered,
		BufferSize:    l.cfg.BufferSize,
		MinSeverity:   l.cfg.MinSeverity,
		Flushes:       l.flushes.Load(),
		Batches:       d.batchesQueued.Load(),
		Delivered:     d.delivered.Load(),
		SinkFailures:  d.sinkFailures.Load(),
		Dropped:       d.dropped.Load(),
		AlertsSent:    d.alertsSent.Load(),
		AlertsFailed:  d.alertsFailed.Load(),
		AlertsSkipped: d.alertsSkipped.Load(),
		Sinks:         names,
	}
}
