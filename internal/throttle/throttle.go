// Package throttle rate-limits credential endpoints with Redis fixed-window
// counters, keyed per normalized identifier and per client IP.
package throttle

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"slotbase.org/internal/obs"
)

// ErrLimited is returned when a key exceeded its attempt budget.
var ErrLimited = errors.New("throttle: too many attempts")

// Limiter counts attempts in Redis. A nil Limiter (or nil client) allows
// everything; Redis being down also allows — availability of login wins over
// throttling, and the degradation is logged.
type Limiter struct {
	rdb    *redis.Client
	max    int64
	window time.Duration
}

// New constructs a Limiter allowing max attempts per window.
func New(rdb *redis.Client, max int64, window time.Duration) *Limiter {
	if max <= 0 {
		max = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{rdb: rdb, max: max, window: window}
}

// Allow records one attempt for (scope, key) and reports whether it is within
// budget.
func (l *Limiter) Allow(ctx context.Context, scope, key string) error {
	if l == nil || l.rdb == nil || key == "" {
		return nil
	}
	redisKey := "thr:" + scope + ":" + key

	count, err := l.rdb.Incr(ctx, redisKey).Result()
	if err != nil {
		l.failOpen(err)
		return nil
	}
	if count == 1 {
		if err := l.rdb.Expire(ctx, redisKey, l.window).Err(); err != nil {
			l.failOpen(err)
			return nil
		}
	}
	if count > l.max {
		return ErrLimited
	}
	return nil
}

func (l *Limiter) failOpen(err error) {
	obs.LogRequest(map[string]any{
		"level": "warn",
		"msg":   "throttle redis unavailable, failing open",
		"error": err.Error(),
	})
}
