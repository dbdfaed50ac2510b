package sessionsync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisRelay publishes events to the local hub and to a Redis channel, and
// feeds events from other instances into the local hub.
type RedisRelay struct {
	hub     *Hub
	redis   redis.UniversalClient
	channel string
	origin  string
	logger  zerolog.Logger

	ready     chan struct{}
	readyOnce sync.Once
}

func NewRedisRelay(hub *Hub, redisClient redis.UniversalClient, channel string, logger zerolog.Logger) *RedisRelay {
	return &RedisRelay{
		hub:     hub,
		redis:   redisClient,
		channel: channel,
		origin:  uuid.NewString(),
		logger:  logger.With().Str("component", "sessionsync").Logger(),
		ready:   make(chan struct{}),
	}
}

// Origin is this instance's identifier on the channel.
func (r *RedisRelay) Origin() string {
	return r.origin
}

// Ready is closed once Run has an active subscription.
func (r *RedisRelay) Ready() <-chan struct{} {
	return r.ready
}

// Publish delivers locally first, then to the channel. A Redis failure is
// returned but local subscribers have already been signalled.
func (r *RedisRelay) Publish(ctx context.Context, ev Event) error {
	ev.Origin = r.origin
	r.hub.Deliver(ev)

	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := r.redis.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("sessionsync: publish: %w", err)
	}
	return nil
}

// Run relays remote events into the hub until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.redis.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("sessionsync: subscribe: %w", err)
	}
	r.readyOnce.Do(func() { close(r.ready) })

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				r.logger.Warn().Err(err).Msg("dropping malformed sync event")
				continue
			}
			if ev.Origin == r.origin {
				continue
			}
			r.hub.Deliver(ev)
		}
	}
}
