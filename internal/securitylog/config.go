package securitylog

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned by New when the configuration cannot be used.
var ErrInvalidConfig = errors.New("invalid security log config")

// Config controls what the logger accepts and how it hands events to sinks.
type Config struct {
	// MinSeverity is the lowest severity recorded; lower events are discarded.
	MinSeverity Severity `yaml:"min_severity" json:"min_severity"`
	// IncludeSensitiveData disables detail redaction.
	IncludeSensitiveData bool `yaml:"include_sensitive_data" json:"include_sensitive_data"`
	// Console writes every accepted event to the application logger.
	Console bool `yaml:"console" json:"console"`
	// BufferSize is the buffered event count that triggers a flush.
	BufferSize int `yaml:"buffer_size" json:"buffer_size"`
	// QueueSize bounds the batches waiting for the sink worker.
	QueueSize    int           `yaml:"queue_size" json:"queue_size"`
	MaxRetries   int           `yaml:"max_retries" json:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff" json:"retry_backoff"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MinSeverity:  SeverityLow,
		Console:      true,
		BufferSize:   100,
		QueueSize:    64,
		MaxRetries:   3,
		RetryBackoff: 200 * time.Millisecond,
	}
}

// Validate reports the first unusable field.
func (c Config) Validate() error {
	switch {
	case !c.MinSeverity.Valid():
		return fmt.Errorf("%w: min severity %d", ErrInvalidConfig, int(c.MinSeverity))
	case c.BufferSize <= 0:
		return fmt.Errorf("%w: buffer size must be positive, got %d", ErrInvalidConfig, c.BufferSize)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue size must be positive, got %d", ErrInvalidConfig, c.QueueSize)
	case c.MaxRetries < 0:
		return fmt.Errorf("%w: max retries must not be negative, got %d", ErrInvalidConfig, c.MaxRetries)
	case c.RetryBackoff < 0:
		return fmt.Errorf("%w: retry backoff must not be negative, got %s", ErrInvalidConfig, c.RetryBackoff)
	}
	return nil
}
