package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a key has exhausted its window ceiling.
var ErrRateLimited = errors.New("rate limited")

// Policy describes a fixed window: at most Ceiling requests per Window.
type Policy struct {
	Ceiling int
	Window  time.Duration
}

// DefaultPolicy matches the guarded operations' default of 5 requests per minute.
var DefaultPolicy = Policy{Ceiling: 5, Window: time.Minute}

// Decision reports the outcome of an admission check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter gates how often a key may attempt a guarded operation.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

type bucket struct {
	windowStart time.Time
	count       int
}

// FixedWindow is an in-memory strict fixed-window limiter. The counter keeps
// filling while rejecting, so a key hammering the endpoint never sneaks a
// request in mid-window.
type FixedWindow struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	policy  Policy
	now     func() time.Time
}

// Option configures FixedWindow.
type Option func(*FixedWindow)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(l *FixedWindow) {
		if fn != nil {
			l.now = fn
		}
	}
}

// NewFixedWindow creates an in-memory limiter with the given policy.
func NewFixedWindow(policy Policy) *FixedWindow {
	if policy.Ceiling <= 0 {
		policy.Ceiling = DefaultPolicy.Ceiling
	}
	if policy.Window <= 0 {
		policy.Window = DefaultPolicy.Window
	}
	return &FixedWindow{
		buckets: make(map[string]*bucket),
		policy:  policy,
		now:     time.Now,
	}
}

// NewFixedWindowWith creates a limiter with extra options applied.
func NewFixedWindowWith(policy Policy, opts ...Option) *FixedWindow {
	l := NewFixedWindow(policy)
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *FixedWindow) Allow(ctx context.Context, key string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok || now.Sub(b.windowStart) >= l.policy.Window {
		b = &bucket{windowStart: now}
		l.buckets[key] = b
	}
	b.count++

	if b.count > l.policy.Ceiling {
		return Decision{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: b.windowStart.Add(l.policy.Window).Sub(now),
		}, nil
	}
	return Decision{
		Allowed:   true,
		Remaining: l.policy.Ceiling - b.count,
	}, nil
}

// Sweep drops buckets whose window ended before the cutoff. The limiter stays
// correct without it; it only bounds memory on long-running processes.
func (l *FixedWindow) Sweep(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int
	for k, b := range l.buckets {
		if cutoff.Sub(b.windowStart) >= l.policy.Window {
			delete(l.buckets, k)
			n++
		}
	}
	return n
}

// StartSweeper runs Sweep periodically until the returned stop func is called.
func (l *FixedWindow) StartSweeper(interval time.Duration) func() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Sweep(l.now())
			}
		}
	}()
	return cancel
}
