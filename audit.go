package defauth

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// AuditEvent is one immutable record of a security-relevant engine action.
type AuditEvent struct {
	Timestamp   time.Time         `json:"timestamp"`
	EventType   string            `json:"event_type"`
	AccountID   string            `json:"account_id,omitempty"`
	Role        string            `json:"role,omitempty"`
	ChallengeID string            `json:"challenge_id,omitempty"`
	IP          string            `json:"ip,omitempty"`
	UserAgent   string            `json:"user_agent,omitempty"`
	Success     bool              `json:"success"`
	Error       string            `json:"error,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// AuditSink receives events from the engine's dispatcher. Emit must not
// block indefinitely; slow sinks back up the dispatcher goroutine only,
// never the request path.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink discards every event.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink forwards events to a buffered channel for test assertions
// and custom pipelines.
type ChannelSink struct {
	events chan AuditEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan AuditEvent, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// JSONWriterSink writes one JSON object per line to w.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

// LogrusSink emits each event as a structured log entry. Failures log at
// warn level, successes at info.
type LogrusSink struct {
	log *logrus.Logger
}

func NewLogrusSink(log *logrus.Logger) *LogrusSink {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LogrusSink{log: log}
}

func (s *LogrusSink) Emit(_ context.Context, event AuditEvent) {
	entry := s.log.WithFields(logrus.Fields{
		"event_type": event.EventType,
		"success":    event.Success,
	})
	if event.AccountID != "" {
		entry = entry.WithField("account_id", event.AccountID)
	}
	if event.Role != "" {
		entry = entry.WithField("role", event.Role)
	}
	if event.ChallengeID != "" {
		entry = entry.WithField("challenge_id", event.ChallengeID)
	}
	if event.IP != "" {
		entry = entry.WithField("ip", event.IP)
	}
	if event.Error != "" {
		entry = entry.WithField("error", event.Error)
	}
	for k, v := range event.Metadata {
		entry = entry.WithField(k, v)
	}

	if event.Success {
		entry.Info("audit")
	} else {
		entry.Warn("audit")
	}
}
