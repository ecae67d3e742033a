package redis

import (
	"context"
	"fmt"
	"time"
)

const limiterPrefix = "ratelimit:"

// Limiter is a fixed-window attempt counter. The window starts at the first attempt
// for a key and the key expires with it.
type Limiter struct {
	client *Client
}

// NewLimiter creates a Redis-backed limiter.
func NewLimiter(client *Client) *Limiter {
	return &Limiter{client: client}
}

// Allow records one attempt for key and reports whether it is within limit.
func (l *Limiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	k := limiterPrefix + key
	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireNX(ctx, k, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit %s: %w", key, err)
	}
	return incr.Val() <= int64(limit), nil
}
