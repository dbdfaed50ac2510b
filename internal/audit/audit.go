package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Event is the canonical audit event model used by internal dispatching and root APIs.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	Role      string            `json:"role,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes audit events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event Event) {
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

// LoggerSink writes each event as one structured log line. Failed events are
// logged at warn level, the rest at info.
type LoggerSink struct {
	Logger zerolog.Logger
}

func (s LoggerSink) Emit(_ context.Context, event Event) {
	ev := s.Logger.Info()
	if !event.Success {
		ev = s.Logger.Warn()
	}
	ev = ev.Str("component", "audit").
		Time("at", event.Timestamp).
		Str("event", event.EventType).
		Bool("success", event.Success)
	if event.UserID != "" {
		ev = ev.Str("user_id", event.UserID)
	}
	if event.Role != "" {
		ev = ev.Str("role", event.Role)
	}
	if event.IP != "" {
		ev = ev.Str("ip", event.IP)
	}
	if event.Error != "" {
		ev = ev.Str("error_code", event.Error)
	}
	if len(event.Metadata) > 0 {
		d := zerolog.Dict()
		for k, v := range event.Metadata {
			d = d.Str(k, v)
		}
		ev = ev.Dict("metadata", d)
	}
	ev.Msg("audit event")
}
