package securitylog

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Wikid82/bastion/internal/metrics"
)

const (
	sinkTimeout  = 10 * time.Second
	alertTimeout = 15 * time.Second
)

// dispatcher moves batches to sinks and critical events to the alerter on
// background goroutines. Senders never block.
type dispatcher struct {
	sinks      []Sink
	alerter    Alerter
	maxRetries int
	backoff    time.Duration
	log        *logrus.Entry

	batches chan []Event
	alerts  chan Event

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	batchesQueued atomic.Int64
	delivered     atomic.Int64
	sinkFailures  atomic.Int64
	dropped       atomic.Int64
	alertsSent    atomic.Int64
	alertsFailed  atomic.Int64
	alertsSkipped atomic.Int64
}

func newDispatcher(sinks []Sink, alerter Alerter, cfg Config, log *logrus.Entry) *dispatcher {
	d := &dispatcher{
		sinks:      sinks,
		alerter:    alerter,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.RetryBackoff,
		log:        log,
		batches:    make(chan []Event, cfg.QueueSize),
		alerts:     make(chan Event, cfg.QueueSize),
	}
	d.wg.Add(2)
	go d.runBatches()
	go d.runAlerts()
	return d
}

// enqueue hands a batch to the sink worker, dropping it when the queue is
// full or the dispatcher is closed.
func (d *dispatcher) enqueue(batch []Event) {
	if len(batch) == 0 || len(d.sinks) == 0 {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(batch, "closed")
		return
	}
	select {
	case d.batches <- batch:
		d.batchesQueued.Add(1)
	default:
		d.drop(batch, "queue_full")
	}
}

// escalate persists a critical event immediately and raises an alert.
func (d *dispatcher) escalate(ev Event) {
	d.enqueue([]Event{ev})
	if d.alerter == nil {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.alertsSkipped.Add(1)
		metrics.IncAlert("skipped")
		return
	}
	select {
	case d.alerts <- ev:
	default:
		d.alertsSkipped.Add(1)
		metrics.IncAlert("skipped")
		d.log.WithField("event_id", ev.ID).Warn("alert queue full, critical event not escalated")
	}
}

func (d *dispatcher) drop(batch []Event, reason string) {
	d.dropped.Add(int64(len(batch)))
	for range batch {
		metrics.IncSecurityEventDropped(reason)
	}
	d.log.WithFields(logrus.Fields{
		"reason": reason,
		"events": len(batch),
	}).Warn("security event batch dropped")
}

func (d *dispatcher) runBatches() {
	defer d.wg.Done()
	for batch := range d.batches {
		for _, s := range d.sinks {
			d.write(s, batch)
		}
	}
}

func (d *dispatcher) write(s Sink, batch []Event) {
	var err error
	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		if attempt > 0 && d.backoff > 0 {
			time.Sleep(d.backoff * time.Duration(attempt))
		}
		if err = callSink(s, batch); err == nil {
			d.delivered.Add(int64(len(batch)))
			return
		}
	}

	d.log.WithError(err).WithFields(logrus.Fields{
		"sink":     s.Name(),
		"events":   len(batch),
		"attempts": d.maxRetries + 1,
	}).Error("security sink write failed, falling back to application log")
	for _, ev := range batch {
		d.log.WithFields(logrus.Fields{
			"event_id":       ev.ID,
			"security_event": ev.Type.String(),
			"severity":       ev.Severity.String(),
			"timestamp":      ev.Timestamp,
		}).Warn(ev.Message)
	}
	d.sinkFailures.Add(1)
	metrics.IncSinkFailure(s.Name())
}

func callSink(s Sink, batch []Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink %s panicked: %v", s.Name(), r)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()
	return s.Write(ctx, batch)
}

func (d *dispatcher) runAlerts() {
	defer d.wg.Done()
	for ev := range d.alerts {
		if err := callAlerter(d.alerter, ev); err != nil {
			d.alertsFailed.Add(1)
			metrics.IncAlert("failed")
			d.log.WithError(err).WithField("event_id", ev.ID).Error("failed to escalate critical security event")
			continue
		}
		d.alertsSent.Add(1)
		metrics.IncAlert("sent")
	}
}

func callAlerter(a Alerter, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("alerter panicked: %v", r)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), alertTimeout)
	defer cancel()
	return a.Alert(ctx, ev)
}

// close stops accepting work and waits for queued batches and alerts to be
// processed or for ctx to end.
func (d *dispatcher) close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.batches)
	close(d.alerts)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
