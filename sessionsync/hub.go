package sessionsync

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// EventType names a sync signal.
type EventType string

// EventSignOut tells every context of a client to re-check its session.
const EventSignOut EventType = "signout"

// Event is a "go recheck" signal. It carries no credential and receivers must
// never treat its payload as proof of anything.
type Event struct {
	Type      EventType `json:"type"`
	ClientKey string    `json:"client_key"`
	UserID    string    `json:"user_id,omitempty"`
	At        time.Time `json:"at"`
	// Origin identifies the publishing instance so relays can skip their own echoes.
	Origin string `json:"origin,omitempty"`
}

// Publisher is what the engine broadcasts through.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Hub fans events out to subscriptions keyed by client. Delivery never blocks:
// a subscriber whose buffer is full misses the event.
type Hub struct {
	mu      sync.RWMutex
	buffer  int
	subs    map[string]map[*Subscription]struct{}
	dropped atomic.Uint64
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 1
	}
	return &Hub{
		buffer: buffer,
		subs:   make(map[string]map[*Subscription]struct{}),
	}
}

// Subscribe registers a new receiver for clientKey.
func (h *Hub) Subscribe(clientKey string) *Subscription {
	s := &Subscription{
		hub: h,
		key: clientKey,
		ch:  make(chan Event, h.buffer),
	}

	h.mu.Lock()
	set, ok := h.subs[clientKey]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[clientKey] = set
	}
	set[s] = struct{}{}
	h.mu.Unlock()

	return s
}

// Publish delivers ev to local subscribers. It always returns nil.
func (h *Hub) Publish(_ context.Context, ev Event) error {
	h.Deliver(ev)
	return nil
}

// Deliver hands ev to every subscriber of ev.ClientKey and returns how many
// accepted it.
func (h *Hub) Deliver(ev Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for s := range h.subs[ev.ClientKey] {
		select {
		case s.ch <- ev:
			delivered++
		default:
			h.dropped.Add(1)
		}
	}
	return delivered
}

// Subscribers returns the number of live subscriptions for clientKey.
func (h *Hub) Subscribers(clientKey string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[clientKey])
}

// Dropped counts deliveries skipped because a buffer was full.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// CloseAll ends every subscription. Receivers see their channel closed.
// Later Subscribe calls still work.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	all := make([]*Subscription, 0, len(h.subs))
	for _, set := range h.subs {
		for s := range set {
			all = append(all, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range all {
		s.Close()
	}
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if set, ok := h.subs[s.key]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.subs, s.key)
		}
	}
	// Deliver holds the read lock while sending, so no send is in flight here.
	close(s.ch)
}

// Subscription is one receiver. Close is idempotent.
type Subscription struct {
	hub  *Hub
	key  string
	ch   chan Event
	once sync.Once
}

// Events is closed after Close.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

func (s *Subscription) ClientKey() string {
	return s.key
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
	})
}
