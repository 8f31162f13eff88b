package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// LoginThrottle caps authentication attempts per identifier inside a rolling
// window. Key format: login_attempts:<identifier>
type LoginThrottle struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

// NewLoginThrottle wraps the given client. Non-positive knobs fall back to
// 10 attempts per minute.
func NewLoginThrottle(client *redis.Client, limit int64, window time.Duration) *LoginThrottle {
	if limit <= 0 {
		limit = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	return &LoginThrottle{client: client, limit: limit, window: window}
}

// Allow records an attempt and reports whether it falls within the limit.
// The window starts at the first attempt and is not extended by later ones.
func (t *LoginThrottle) Allow(ctx context.Context, identifier string) (bool, error) {
	key := t.key(identifier)

	n, err := t.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("throttle incr: %w", err)
	}
	if n == 1 {
		if err := t.client.Expire(ctx, key, t.window).Err(); err != nil {
			return false, fmt.Errorf("throttle expire: %w", err)
		}
	}
	return n <= t.limit, nil
}

func (t *LoginThrottle) key(identifier string) string {
	return fmt.Sprintf("login_attempts:%s", strings.ToLower(identifier))
}
