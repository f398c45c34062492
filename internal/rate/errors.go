package rate

import "errors"

var (
	// ErrRateLimited is returned once a subject has exhausted its window.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps Redis transport failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
