package securitylog

import "context"

// Sink durably stores batches of events. Write is only ever called from the
// dispatcher goroutine.
type Sink interface {
	Name() string
	Write(ctx context.Context, events []Event) error
}

// Alerter escalates a single critical event to operators.
type Alerter interface {
	Alert(ctx context.Context, event Event) error
}

// SinkFunc adapts a function into a Sink.
type SinkFunc struct {
	SinkName string
	Fn       func(ctx context.Context, events []Event) error
}

func (s SinkFunc) Name() string { return s.SinkName }

func (s SinkFunc) Write(ctx context.Context, events []Event) error { return s.Fn(ctx, events) }

// AlerterFunc adapts a function into an Alerter.
type AlerterFunc func(ctx context.Context, event Event) error

func (f AlerterFunc) Alert(ctx context.Context, event Event) error { return f(ctx, event) }
