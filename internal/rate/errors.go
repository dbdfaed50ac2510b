package rate

import "errors"

var (
	// ErrRateLimited is returned by Hit once a window's budget is spent.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps any Redis failure.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
