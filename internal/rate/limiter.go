package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Window is a Redis fixed-window counter. The window opens on the first hit
// for a key and closes when the key expires.
type Window struct {
	redis  redis.UniversalClient
	limit  int
	length time.Duration
}

// NewWindow allows limit hits per key within length.
func NewWindow(redisClient redis.UniversalClient, limit int, length time.Duration) *Window {
	return &Window{
		redis:  redisClient,
		limit:  limit,
		length: length,
	}
}

// Hit counts one event for key. It returns ErrRateLimited once the count
// exceeds the limit for the current window.
func (w *Window) Hit(ctx context.Context, key string) error {
	count, err := w.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := w.redis.Expire(ctx, key, w.length).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	if count > int64(w.limit) {
		return ErrRateLimited
	}
	return nil
}
