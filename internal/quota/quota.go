// Package quota enforces a per-address request cap over a fixed time window.
// It is deliberately separate from credit accounting: quota bounds request
// volume, credits pay for content.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "quota:"

// Counter is a windowed bounded counter backed by Redis. Each (subject,
// window) pair gets its own key; keys expire on their own so no sweeper is
// needed.
type Counter struct {
	rdb    *redis.Client
	window time.Duration
	limit  int64
	now    func() time.Time
}

func NewCounter(rdb *redis.Client, window time.Duration, limit int64) *Counter {
	return &Counter{rdb: rdb, window: window, limit: limit, now: time.Now}
}

func (c *Counter) key(subject string) string {
	windowStart := c.now().Truncate(c.window).Unix()
	return fmt.Sprintf("%s%s:%d", keyPrefix, subject, windowStart)
}

// Allow consumes one unit of the subject's quota for the current window.
// It returns false once the window's limit is reached. The count is
// incremented first so concurrent callers can never both land under the
// limit with only one slot left.
func (c *Counter) Allow(ctx context.Context, subject string) (bool, error) {
	key := c.key(subject)
	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("quota incr: %w", err)
	}
	if n == 1 {
		// Keep the key around for a full extra window so Remaining can
		// still report on a window that just closed.
		if err := c.rdb.Expire(ctx, key, c.window*2).Err(); err != nil {
			return false, fmt.Errorf("quota expire: %w", err)
		}
	}
	return n <= c.limit, nil
}

// Remaining reports how many requests the subject has left in the current
// window. Never negative.
func (c *Counter) Remaining(ctx context.Context, subject string) (int64, error) {
	n, err := c.rdb.Get(ctx, c.key(subject)).Int64()
	if err == redis.Nil {
		return c.limit, nil
	}
	if err != nil {
		return 0, fmt.Errorf("quota get: %w", err)
	}
	if n >= c.limit {
		return 0, nil
	}
	return c.limit - n, nil
}
