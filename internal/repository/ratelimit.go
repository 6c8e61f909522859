package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Fixed-window counting at minute granularity. Burst tolerance at the window
// boundary is an accepted trade-off of the scheme, not a bug.
const (
	rateWindow = time.Minute
	// Counters live for a few window-lengths so recent windows remain
	// observable; the TTL-driven reclamation can never touch the active
	// window's counter.
	rateRetention = 5 * rateWindow
)

// RateLimiter counts requests per API key within clock-aligned minute
// windows, backed by Redis atomic increments.
type RateLimiter struct {
	rdb *redis.Client
	now func() time.Time
}

func NewRateLimiter(rdb *redis.Client) *RateLimiter {
	return &RateLimiter{rdb: rdb, now: time.Now}
}

// Allow increments the counter for the current window and compares the
// post-increment value against the limit. A rejected request keeps its slot:
// the counter reflects attempted traffic.
func (l *RateLimiter) Allow(ctx context.Context, keyID string, limitPerMinute int) (bool, error) {
	window := windowStart(l.now())
	key := rateKey(keyID, window)

	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, rateRetention)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit incr: %w", err)
	}

	return incr.Val() <= int64(limitPerMinute), nil
}

func windowStart(t time.Time) time.Time {
	return t.UTC().Truncate(rateWindow)
}

func rateKey(keyID string, window time.Time) string {
	return fmt.Sprintf("ratelimit:%s:%d", keyID, window.Unix())
}
