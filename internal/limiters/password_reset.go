package limiters

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/roleauth/internal/rate"
	"github.com/redis/go-redis/v9"
)

var (
	ErrResetRateLimited      = errors.New("reset rate limited")
	ErrResetRedisUnavailable = errors.New("reset redis unavailable")
)

type PasswordResetConfig struct {
	Window      time.Duration
	MaxRequests int
}

// PasswordResetLimiter caps reset requests per email address.
type PasswordResetLimiter struct {
	window *rate.Window
}

func NewPasswordResetLimiter(redisClient redis.UniversalClient, cfg PasswordResetConfig) *PasswordResetLimiter {
	return &PasswordResetLimiter{
		window: rate.NewWindow(redisClient, cfg.MaxRequests, cfg.Window),
	}
}

// CheckRequest counts one request for email. A nil limiter allows everything.
func (l *PasswordResetLimiter) CheckRequest(ctx context.Context, email string) error {
	if l == nil {
		return nil
	}

	err := l.window.Hit(ctx, requestEmailKey(email))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		return ErrResetRateLimited
	default:
		return fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
}

func requestEmailKey(email string) string {
	return "rar:" + strings.ToLower(strings.TrimSpace(email))
}
