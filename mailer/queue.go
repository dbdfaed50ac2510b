package mailer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrQueueFull is returned by Enqueue when every buffer slot is taken.
	ErrQueueFull = errors.New("mailer: queue full")
	// ErrQueueClosed is returned by Enqueue after Close.
	ErrQueueClosed = errors.New("mailer: queue closed")
)

// Sender is anything that can deliver one message.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// Message is one queued mail. Ref identifies the message in failure reports
// and logs; the body is never logged.
type Message struct {
	To      string
	Subject string
	Body    string
	Ref     string
}

// QueueConfig sizes the worker pool.
type QueueConfig struct {
	Workers     int
	Buffer      int
	SendTimeout time.Duration
	Logger      zerolog.Logger
	// OnFailure runs on the worker goroutine after a failed delivery.
	OnFailure func(msg Message, err error)
}

// Queue delivers mail on a fixed pool of workers so callers never wait on
// the relay. Enqueue never blocks.
type Queue struct {
	sender Sender
	cfg    QueueConfig
	log    zerolog.Logger

	mu     sync.RWMutex
	closed bool
	jobs   chan Message
	wg     sync.WaitGroup
}

// NewQueue starts cfg.Workers delivery goroutines.
func NewQueue(sender Sender, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	if cfg.OnFailure == nil {
		cfg.OnFailure = func(Message, error) {}
	}

	q := &Queue{
		sender: sender,
		cfg:    cfg,
		log:    cfg.Logger.With().Str("component", "mailqueue").Logger(),
		jobs:   make(chan Message, cfg.Buffer),
	}
	q.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go q.work()
	}
	return q
}

func (q *Queue) work() {
	defer q.wg.Done()
	for msg := range q.jobs {
		q.deliver(msg)
	}
}

func (q *Queue) deliver(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), q.cfg.SendTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			q.log.Error().Interface("panic", r).Str("ref", msg.Ref).Msg("mail sender panicked")
			q.cfg.OnFailure(msg, errors.New("mailer: sender panicked"))
		}
	}()

	if err := q.sender.Send(ctx, msg.To, msg.Subject, msg.Body); err != nil {
		q.cfg.OnFailure(msg, err)
		return
	}
	q.log.Debug().Str("ref", msg.Ref).Msg("mail delivered")
}

// Enqueue hands msg to a worker.
func (q *Queue) Enqueue(msg Message) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending is the number of messages waiting for a worker.
func (q *Queue) Pending() int {
	return len(q.jobs)
}

// Close stops intake and waits until every queued message has been tried.
// Safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	q.wg.Wait()
}
