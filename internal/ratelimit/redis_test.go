package ratelimit

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func redisTestClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("LIBRIS_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("skipping integration test: redis not available (%v)", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func uniqueKey(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

func TestRedisFixedWindowIntegration(t *testing.T) {
	client := redisTestClient(t)
	ctx := context.Background()

	t.Run("CeilingBoundary", func(t *testing.T) {
		l, err := NewRedisFixedWindow(client, Policy{Ceiling: 3, Window: time.Minute})
		if err != nil {
			t.Fatalf("NewRedisFixedWindow: %v", err)
		}
		key := uniqueKey("ceiling")

		for i := 0; i < 3; i++ {
			d, err := l.Allow(ctx, key)
			if err != nil {
				t.Fatalf("call %d: %v", i+1, err)
			}
			if !d.Allowed {
				t.Fatalf("call %d should be allowed", i+1)
			}
			if d.Remaining != 2-i {
				t.Fatalf("call %d: expected remaining %d, got %d", i+1, 2-i, d.Remaining)
			}
		}

		d, err := l.Allow(ctx, key)
		if err != nil {
			t.Fatal(err)
		}
		if d.Allowed {
			t.Fatal("fourth call within the window must be rejected")
		}
		if d.RetryAfter <= 0 || d.RetryAfter > time.Minute {
			t.Fatalf("unexpected retry-after: %v", d.RetryAfter)
		}
	})

	t.Run("RejectionsKeepFilling", func(t *testing.T) {
		l, err := NewRedisFixedWindow(client, Policy{Ceiling: 1, Window: time.Minute})
		if err != nil {
			t.Fatal(err)
		}
		key := uniqueKey("strict")

		for i := 0; i < 5; i++ {
			if _, err := l.Allow(ctx, key); err != nil {
				t.Fatal(err)
			}
		}
		// Every attempt incremented the counter; the window stays closed.
		d, err := l.Allow(ctx, key)
		if err != nil {
			t.Fatal(err)
		}
		if d.Allowed {
			t.Fatal("call after rejections within the window must stay rejected")
		}
	})

	t.Run("WindowAdvanceOpensNewBudget", func(t *testing.T) {
		l, err := NewRedisFixedWindow(client, Policy{Ceiling: 1, Window: time.Minute})
		if err != nil {
			t.Fatal(err)
		}
		now := time.Date(2026, 3, 1, 10, 0, 30, 0, time.UTC)
		l.now = func() time.Time { return now }
		key := uniqueKey("window")

		if d, _ := l.Allow(ctx, key); !d.Allowed {
			t.Fatal("first call must pass")
		}
		if d, _ := l.Allow(ctx, key); d.Allowed {
			t.Fatal("second call in the same window must be rejected")
		}

		// A new window index maps to a fresh counter key.
		now = now.Add(time.Minute)
		if d, _ := l.Allow(ctx, key); !d.Allowed {
			t.Fatal("call in the next window must pass")
		}
	})

	t.Run("BudgetSharedAcrossInstances", func(t *testing.T) {
		key := uniqueKey("shared")
		policy := Policy{Ceiling: 1, Window: time.Minute}

		a, err := NewRedisFixedWindow(client, policy)
		if err != nil {
			t.Fatal(err)
		}
		b, err := NewRedisFixedWindow(client, policy)
		if err != nil {
			t.Fatal(err)
		}

		if d, _ := a.Allow(ctx, key); !d.Allowed {
			t.Fatal("first instance must consume the budget")
		}
		d, err := b.Allow(ctx, key)
		if err != nil {
			t.Fatal(err)
		}
		if d.Allowed {
			t.Fatal("second instance must see the consumed budget")
		}
	})
}
