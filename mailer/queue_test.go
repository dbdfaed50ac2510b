package mailer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type slowSender struct {
	mu    sync.Mutex
	delay time.Duration
	err   error
	got   []string
}

func (s *slowSender) Send(ctx context.Context, to, _, _ string) error {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.got = append(s.got, to)
	return nil
}

func (s *slowSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

func TestQueueEnqueueDoesNotWaitForDelivery(t *testing.T) {
	sender := &slowSender{delay: 300 * time.Millisecond}
	q := NewQueue(sender, QueueConfig{Workers: 1, Buffer: 4})

	start := time.Now()
	if err := q.Enqueue(Message{To: "a@example.com"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("Enqueue waited on delivery: %v", elapsed)
	}

	q.Close()
	if sender.count() != 1 {
		t.Fatalf("expected Close to drain the queue, delivered %d", sender.count())
	}
}

func TestQueueFullAndClosed(t *testing.T) {
	gate := make(chan struct{})
	sender := senderFunc(func(context.Context, string, string, string) error {
		<-gate
		return nil
	})
	q := NewQueue(sender, QueueConfig{Workers: 1, Buffer: 1})

	// One message occupies the worker, one the buffer.
	_ = q.Enqueue(Message{To: "1@example.com"})
	deadline := time.Now().Add(2 * time.Second)
	for q.Pending() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := q.Enqueue(Message{To: "2@example.com"}); err != nil {
		t.Fatalf("expected buffered enqueue, got %v", err)
	}
	if err := q.Enqueue(Message{To: "3@example.com"}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}

	close(gate)
	q.Close()
	q.Close()
	if err := q.Enqueue(Message{To: "4@example.com"}); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
}

func TestQueueReportsFailures(t *testing.T) {
	sender := &slowSender{err: errors.New("421 try later")}
	var mu sync.Mutex
	var failed []string
	q := NewQueue(sender, QueueConfig{
		Workers: 2,
		Buffer:  4,
		OnFailure: func(msg Message, err error) {
			mu.Lock()
			defer mu.Unlock()
			failed = append(failed, msg.Ref)
		},
	})

	_ = q.Enqueue(Message{To: "a@example.com", Ref: "u1"})
	_ = q.Enqueue(Message{To: "b@example.com", Ref: "u2"})
	q.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(failed) != 2 {
		t.Fatalf("expected two failure reports, got %v", failed)
	}
}

func TestQueueRecoversSenderPanic(t *testing.T) {
	var reported bool
	q := NewQueue(senderFunc(func(context.Context, string, string, string) error {
		panic("boom")
	}), QueueConfig{OnFailure: func(Message, error) { reported = true }})

	_ = q.Enqueue(Message{To: "a@example.com"})
	q.Close()
	if !reported {
		t.Fatal("expected panic to be reported as a failure")
	}
}

type senderFunc func(ctx context.Context, to, subject, body string) error

func (f senderFunc) Send(ctx context.Context, to, subject, body string) error {
	return f(ctx, to, subject, body)
}
