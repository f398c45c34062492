package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// hitScript counts one hit and returns {count, pttl}. The window starts on
// the first hit; a counter that somehow lost its TTL gets one again.
var hitScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// Rule is one throttle: at most Limit hits per Window for a subject.
type Rule struct {
	Name   string
	Limit  int
	Window time.Duration
}

// Decision is the outcome of [Limiter.Allow].
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter applies [Rule]s using Redis counters. It holds no process-local
// state, so every replica shares the same windows.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient) *Limiter {
	return &Limiter{
		redis:  redisClient,
		prefix: "rl:",
	}
}

func (l *Limiter) key(rule Rule, subject string) string {
	return l.prefix + rule.Name + ":" + subject
}

// Allow counts one hit for subject and reports whether it is within the
// rule's budget. When it is not, RetryAfter holds the time left in the window.
func (l *Limiter) Allow(ctx context.Context, rule Rule, subject string) (Decision, error) {
	count, ttl, err := l.hit(ctx, l.key(rule, subject), rule.Window)
	if err != nil {
		return Decision{}, err
	}

	if count <= int64(rule.Limit) {
		return Decision{Allowed: true, Remaining: rule.Limit - int(count)}, nil
	}
	return Decision{Allowed: false, RetryAfter: ttl}, nil
}

// Check returns ErrRateLimited when subject has already recorded Limit
// failures in the current window. It does not count a hit.
func (l *Limiter) Check(ctx context.Context, rule Rule, subject string) error {
	count, err := l.redis.Get(ctx, l.key(rule, subject)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count >= int64(rule.Limit) {
		return ErrRateLimited
	}
	return nil
}

// RecordFailure counts one failure for subject. It returns ErrRateLimited
// when this failure exhausts the budget.
func (l *Limiter) RecordFailure(ctx context.Context, rule Rule, subject string) error {
	count, _, err := l.hit(ctx, l.key(rule, subject), rule.Window)
	if err != nil {
		return err
	}
	if count >= int64(rule.Limit) {
		return ErrRateLimited
	}
	return nil
}

// Reset clears subject's counter for rule.
func (l *Limiter) Reset(ctx context.Context, rule Rule, subject string) error {
	if err := l.redis.Del(ctx, l.key(rule, subject)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	res, err := hitScript.Run(ctx, l.redis, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(res) != 2 {
		return 0, 0, fmt.Errorf("%w: unexpected reply %v", ErrRedisUnavailable, res)
	}
	return res[0], time.Duration(res[1]) * time.Millisecond, nil
}
