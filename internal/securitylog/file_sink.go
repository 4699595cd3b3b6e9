package securitylog

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileSinkConfig controls the rotated JSON-lines event file.
type FileSinkConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// FileSink appends events as JSON lines, one per event, to a rotated file.
type FileSink struct {
	mu        sync.Mutex
	w         io.Writer
	closer    io.Closer
	base      *logrus.Logger
	formatter logrus.Formatter
}

// NewFileSink creates the parent directory and opens a lumberjack rotator.
func NewFileSink(cfg FileSinkConfig) (*FileSink, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("file sink: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
		return nil, fmt.Errorf("file sink: create log directory: %w", err)
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    orDefault(cfg.MaxSizeMB, 10),
		MaxBackups: orDefault(cfg.MaxBackups, 5),
		MaxAge:     orDefault(cfg.MaxAgeDays, 90),
		Compress:   cfg.Compress,
	}
	s := newFileSink(rotator)
	s.closer = rotator
	return s, nil
}

func newFileSink(w io.Writer) *FileSink {
	return &FileSink{
		w:    w,
		base: logrus.New(),
		formatter: &logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyMsg: "message",
			},
		},
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func (s *FileSink) Name() string { return "file" }

// Write formats the whole batch before touching the file so a formatting
// error writes nothing.
func (s *FileSink) Write(_ context.Context, events []Event) error {
	var buf []byte
	for _, ev := range events {
		entry := logrus.NewEntry(s.base).WithTime(ev.Timestamp).WithFields(eventFields(ev))
		entry.Level = consoleLevel(ev.Severity)
		entry.Message = ev.Message
		line, err := s.formatter.Format(entry)
		if err != nil {
			return fmt.Errorf("file sink: format event %s: %w", ev.ID, err)
		}
		buf = append(buf, line...)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(buf); err != nil {
		return fmt.Errorf("file sink: write: %w", err)
	}
	return nil
}

// Close releases the underlying file.
func (s *FileSink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func eventFields(ev Event) logrus.Fields {
	f := logrus.Fields{
		"event_id":       ev.ID,
		"security_event": ev.Type.String(),
		"severity":       ev.Severity.String(),
		"success":        ev.Success,
	}
	if ev.ActorID != "" {
		f["actor_id"] = ev.ActorID
	}
	if ev.SessionID != "" {
		f["session_id"] = ev.SessionID
	}
	if ev.SourceAddress != "" {
		f["source_address"] = ev.SourceAddress
	}
	if ev.UserAgent != "" {
		f["user_agent"] = ev.UserAgent
	}
	if ev.Endpoint != "" {
		f["endpoint"] = ev.Endpoint
	}
	if ev.Method != "" {
		f["method"] = ev.Method
	}
	if len(ev.Details) > 0 {
		f["details"] = ev.Details
	}
	return f
}
