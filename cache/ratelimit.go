package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const limiterTimeout = 500 * time.Millisecond

// Decision reports the outcome of a rate limit check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// FixedWindowLimiter counts attempts per identifier+action inside a fixed
// window backed by Redis. The first attempt of a window sets the expiry, so
// the window starts at the first attempt rather than on wall-clock boundaries.
type FixedWindowLimiter struct {
	client *redis.Client
}

// NewFixedWindowLimiter wraps an existing Redis client. A nil client yields a
// limiter that allows everything, so callers can run without Redis configured.
func NewFixedWindowLimiter(client *redis.Client) *FixedWindowLimiter {
	return &FixedWindowLimiter{client: client}
}

// NewFixedWindowLimiterFromEnv builds a limiter on the shared Redis client.
func NewFixedWindowLimiterFromEnv() (*FixedWindowLimiter, error) {
	client, err := GetRedisClient()
	if err != nil {
		return nil, err
	}
	return NewFixedWindowLimiter(client), nil
}

// Allow records one attempt and reports whether it fits inside the window.
// When the limit is exhausted the decision carries the time the window resets.
func (l *FixedWindowLimiter) Allow(ctx context.Context, identifier, action string, maxAttempts int, window time.Duration) (Decision, error) {
	if l == nil || l.client == nil {
		return Decision{Allowed: true, Remaining: maxAttempts}, nil
	}
	if maxAttempts <= 0 || window <= 0 {
		return Decision{}, errors.New("cache: rate limit requires positive attempts and window")
	}

	key := limiterKey(identifier, action)
	if key == "" {
		return Decision{}, errors.New("cache: rate limit identifier and action are required")
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, limiterTimeout)
	defer cancel()

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	ttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("cache: rate limit check failed: %w", err)
	}

	resetAt := time.Now().Add(window)
	if remaining := ttl.Val(); remaining > 0 {
		resetAt = time.Now().Add(remaining)
	}

	count := int(incr.Val())
	if count > maxAttempts {
		return Decision{Allowed: false, Remaining: 0, ResetAt: resetAt}, nil
	}

	return Decision{Allowed: true, Remaining: maxAttempts - count, ResetAt: resetAt}, nil
}

func limiterKey(identifier, action string) string {
	identifier = strings.TrimSpace(identifier)
	action = strings.TrimSpace(action)
	if identifier == "" || action == "" {
		return ""
	}
	return fmt.Sprintf("ratelimit:%s:%s", action, identifier)
}
