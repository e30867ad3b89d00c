// README: Redis-backed fixed-window quotas for OTP sends and verify attempts.
package otp

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	ScopeSend   = "send_quota"
	ScopeVerify = "verify_attempts"
)

type Limiter struct {
	redis  *redis.Client
	scope  string
	limit  int
	window time.Duration
}

func NewLimiter(rdb *redis.Client, scope string, limit int, window time.Duration) *Limiter {
	return &Limiter{redis: rdb, scope: scope, limit: limit, window: window}
}

// Allow counts one use of key and reports whether it is within quota.
// A limit of zero or less disables the quota.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	if l == nil || l.redis == nil || l.limit <= 0 {
		return true, nil
	}
	k := "otp:" + l.scope + ":" + key
	n, err := l.redis.Incr(ctx, k).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		if err := l.redis.Expire(ctx, k, l.window).Err(); err != nil {
			return false, err
		}
	}
	return n <= int64(l.limit), nil
}
