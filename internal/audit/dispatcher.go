package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Config controls dispatcher buffering.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull counts and discards events when the buffer is full instead of
	// blocking the caller until space frees up or ctx ends.
	DropIfFull bool
	// SinkTimeout bounds the context handed to the sink for each event.
	SinkTimeout time.Duration
	Logger      zerolog.Logger
}

// Dispatcher hands events to a sink on a single background goroutine, so a
// slow sink never delays an authentication decision. A nil *Dispatcher is a
// valid disabled dispatcher.
type Dispatcher struct {
	cfg  Config
	sink Sink
	log  zerolog.Logger

	queue chan Event
	stop  chan struct{}
	wg    sync.WaitGroup

	dropped  atomic.Uint64
	panicked atomic.Uint64
	closed   atomic.Bool
	once     sync.Once
}

// NewDispatcher returns nil when cfg.Enabled is false.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = 5 * time.Second
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		cfg:   cfg,
		sink:  sink,
		log:   cfg.Logger.With().Str("component", "audit").Logger(),
		queue: make(chan Event, cfg.BufferSize),
		stop:  make(chan struct{}),
	}
	d.wg.Add(1)
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()

	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		case <-d.stop:
			// Flush whatever was accepted before Close.
			for {
				select {
				case ev := <-d.queue:
					d.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SinkTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			d.panicked.Add(1)
			d.log.Error().Interface("panic", r).Str("event", ev.EventType).Msg("audit sink panicked")
		}
	}()
	d.sink.Emit(ctx, ev)
}

// Emit queues ev. It never returns an error; lost events show up in Dropped.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull {
		select {
		case d.queue <- ev:
		case <-d.stop:
		default:
			if d.dropped.Add(1) == 1 {
				d.log.Warn().Int("buffer", d.cfg.BufferSize).Msg("audit buffer full, dropping events")
			}
		}
		return
	}

	select {
	case d.queue <- ev:
	case <-ctx.Done():
		d.dropped.Add(1)
	case <-d.stop:
	}
}

// Close stops accepting events and waits for the queue to drain. Safe to call
// more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		d.closed.Store(true)
		close(d.stop)
		d.wg.Wait()
	})
}

// Dropped counts events discarded on a full buffer or a cancelled Emit.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// SinkPanics counts events whose delivery panicked inside the sink.
func (d *Dispatcher) SinkPanics() uint64 {
	if d == nil {
		return 0
	}
	return d.panicked.Load()
}
