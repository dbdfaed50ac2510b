package audit

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, Event) {
	s.count.Add(1)
}

type gateSink struct {
	gate chan struct{}
}

func newGateSink() *gateSink {
	return &gateSink{
		gate: make(chan struct{}),
	}
}

func (s *gateSink) Emit(context.Context, Event) {
	<-s.gate
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestDisabledDispatcherIsNil(t *testing.T) {
	if d := NewDispatcher(Config{Enabled: false}, &countingSink{}); d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	var d *Dispatcher
	d.Emit(context.Background(), Event{EventType: "e"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher must report zero drops")
	}
}

func TestDispatcherDeliversOnClose(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 16}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "role_change"})
	}
	d.Close()

	if got := sink.count.Load(); got != 10 {
		t.Fatalf("expected 10 delivered events, got %d", got)
	}
}

func TestBufferFullDropIfFullTrueDoesNotBlock(t *testing.T) {
	sink := newGateSink()
	d := NewDispatcher(Config{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: true,
	}, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), Event{EventType: "e1"})
	d.Emit(context.Background(), Event{EventType: "e2"})

	start := time.Now()
	d.Emit(context.Background(), Event{EventType: "e3"})
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("expected non-blocking emit when DropIfFull is true")
	}
	if d.Dropped() == 0 {
		t.Fatal("expected dropped counter to increment when queue is full")
	}
}

func TestBufferFullDropIfFullFalseBlocksUntilSpace(t *testing.T) {
	sink := newGateSink()
	d := NewDispatcher(Config{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: false,
	}, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), Event{EventType: "e1"})
	d.Emit(context.Background(), Event{EventType: "e2"})

	done := make(chan struct{})
	go func() {
		d.Emit(context.Background(), Event{EventType: "e3"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("expected emit to block while buffer is full")
	case <-time.After(150 * time.Millisecond):
	}

	sink.gate <- struct{}{}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected blocked emit to proceed after space is available")
	}
}

func TestCloseIdempotentAndEmitAfterCloseSafe(t *testing.T) {
	d := NewDispatcher(Config{
		Enabled:    true,
		BufferSize: 4,
		DropIfFull: true,
	}, &countingSink{})

	d.Emit(context.Background(), Event{EventType: "e1"})
	d.Close()
	d.Close()
	d.Emit(context.Background(), Event{EventType: "e2"})
}

func TestJSONWriterSinkWritesJSONLines(t *testing.T) {
	var buf syncBuffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{
		Timestamp: time.Now().UTC(),
		EventType: "role_change",
		UserID:    "u1",
		Role:      "ORGANIZER",
		Success:   true,
	})

	out := buf.String()
	if !strings.Contains(out, "role_change") {
		t.Fatal("expected JSON line to contain event type")
	}
	if !strings.Contains(out, `"user_id":"u1"`) || !strings.Contains(out, `"role":"ORGANIZER"`) {
		t.Fatalf("expected JSON line to contain user and role, got %s", out)
	}
	if !strings.HasSuffix(out, "\n") {
		t.Fatal("expected newline-terminated JSON line")
	}
}

func TestLoggerSinkUsesWarnForFailures(t *testing.T) {
	var buf syncBuffer
	sink := LoggerSink{Logger: zerolog.New(&buf)}

	sink.Emit(context.Background(), Event{
		EventType: "role_downgrade_rejected",
		UserID:    "u1",
		Success:   false,
		Error:     "downgrade",
		Metadata:  map[string]string{"requested": "MEMBER"},
	})

	out := buf.String()
	if !strings.Contains(out, `"level":"warn"`) {
		t.Fatalf("expected warn level, got %s", out)
	}
	if !strings.Contains(out, `"event":"role_downgrade_rejected"`) || !strings.Contains(out, `"requested":"MEMBER"`) {
		t.Fatalf("expected event fields in log line, got %s", out)
	}
}

type panicSink struct {
	after atomic.Int64
}

func (s *panicSink) Emit(_ context.Context, ev Event) {
	if ev.EventType == "boom" {
		panic("sink exploded")
	}
	s.after.Add(1)
}

func TestSinkPanicDoesNotStopDelivery(t *testing.T) {
	var logs syncBuffer
	sink := &panicSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8, Logger: zerolog.New(&logs)}, sink)

	d.Emit(context.Background(), Event{EventType: "boom"})
	d.Emit(context.Background(), Event{EventType: "login"})
	d.Close()

	if got := sink.after.Load(); got != 1 {
		t.Fatalf("expected delivery to continue after panic, got %d", got)
	}
	if d.SinkPanics() != 1 {
		t.Fatalf("expected one recorded panic, got %d", d.SinkPanics())
	}
	if !strings.Contains(logs.String(), "audit sink panicked") {
		t.Fatalf("expected panic to be logged, got %s", logs.String())
	}
}

func TestBlockingEmitCountsCancelledContextAsDropped(t *testing.T) {
	sink := newGateSink()
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), Event{EventType: "e1"})
	d.Emit(context.Background(), Event{EventType: "e2"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	d.Emit(ctx, Event{EventType: "e3"})

	if d.Dropped() != 1 {
		t.Fatalf("expected cancelled emit to count as dropped, got %d", d.Dropped())
	}
}
