package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// keyPrefix namespaces the monthly parse counters.
const keyPrefix = "quota:ai_parse:"

// counterTTL keeps finished months around briefly for inspection before
// Redis drops them.
const counterTTL = 35 * 24 * time.Hour

// Counter tracks monthly AI-parse usage per user in Redis. A counter
// that cannot be reached fails open: the parse is allowed and the
// outage is logged, since a soft quota is not worth an outage of its
// own.
type Counter struct {
	client *redis.Client
	logger *zap.Logger
	now    func() time.Time
}

// NewCounter creates a parse usage counter.
func NewCounter(client *redis.Client, logger *zap.Logger) *Counter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Counter{client: client, logger: logger, now: time.Now}
}

func (c *Counter) key(userID uuid.UUID) string {
	return keyPrefix + userID.String() + ":" + c.now().UTC().Format("2006-01")
}

// Allow consumes one parse from the user's monthly budget and reports
// whether it fit. The increment and the expiry are set together so an
// abandoned counter cannot linger forever.
func (c *Counter) Allow(ctx context.Context, userID uuid.UUID, limit int) (bool, error) {
	if limit < 0 {
		return true, nil
	}
	key := c.key(userID)

	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, counterTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("parse quota unavailable, allowing", zap.String("key", key), zap.Error(err))
		return true, nil
	}
	if incr.Val() > int64(limit) {
		// undo so denied attempts do not count as usage
		if err := c.client.Decr(ctx, key).Err(); err != nil {
			c.logger.Warn("parse quota decrement failed", zap.String("key", key), zap.Error(err))
		}
		return false, nil
	}
	return true, nil
}

// Used returns how many parses the user has consumed this month.
func (c *Counter) Used(ctx context.Context, userID uuid.UUID) (int, error) {
	n, err := c.client.Get(ctx, c.key(userID)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read parse quota: %w", err)
	}
	return n, nil
}
