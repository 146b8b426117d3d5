package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisFixedWindow keeps one counter per key per window in Redis so several
// API instances share the same budget. The key embeds the window index, so
// counters expire passively and never need explicit resets. A key may admit
// one extra request right at a window boundary; that slack is acceptable for
// admission control.
type RedisFixedWindow struct {
	client *redis.Client
	policy Policy
	now    func() time.Time
}

// NewRedisFixedWindow pings the client and returns a shared limiter.
func NewRedisFixedWindow(client *redis.Client, policy Policy) (*RedisFixedWindow, error) {
	if policy.Ceiling <= 0 {
		policy.Ceiling = DefaultPolicy.Ceiling
	}
	if policy.Window <= 0 {
		policy.Window = DefaultPolicy.Window
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ratelimit: redis ping: %w", err)
	}
	return &RedisFixedWindow{client: client, policy: policy, now: time.Now}, nil
}

func (l *RedisFixedWindow) Allow(ctx context.Context, key string) (Decision, error) {
	now := l.now()
	windowIdx := now.UnixNano() / int64(l.policy.Window)
	redisKey := fmt.Sprintf("ratelimit:%s:%d", key, windowIdx)

	pipe := l.client.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.policy.Window+time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("ratelimit: redis incr: %w", err)
	}

	count := int(incr.Val())
	if count > l.policy.Ceiling {
		windowEnd := time.Unix(0, (windowIdx+1)*int64(l.policy.Window))
		return Decision{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: windowEnd.Sub(now),
		}, nil
	}
	return Decision{
		Allowed:   true,
		Remaining: l.policy.Ceiling - count,
	}, nil
}
