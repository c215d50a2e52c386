package cache

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const warmupLockTTL = 30 * time.Second

// Warmup прогревает L1 и L2 на старте процесса.
// L1 греется всегда; L2 заливает только тот инстанс, который взял SetNX-блокировку,
// и только если в Redis еще нет записи.
func (c *DiscoveryCache) Warmup(ctx context.Context, lockKey string) error {
	tables, err := c.next.DiscoverTables(ctx)
	if err != nil {
		return fmt.Errorf("cache: warmup discovery: %w", err)
	}
	c.storeL1(tables)

	if c.rdb == nil {
		return nil
	}

	// Распределенная блокировка, чтобы только один инстанс обновлял Redis
	ok, err := c.rdb.SetNX(ctx, lockKey, "processing", warmupLockTTL).Result()
	if err != nil || !ok {
		return nil // Либо ошибка сети, либо другой уже греет кэш
	}

	exists, err := c.rdb.Exists(ctx, c.key).Result()
	if err != nil {
		exists = 0
		c.logger.Warn("could not check Redis key, proceeding with warm-up",
			zap.String("key", c.key), zap.Error(err))
	}

	if exists == 0 {
		c.logger.Info("discovery cache is empty, performing warm-up from DB",
			zap.String("key", c.key), zap.Int("tables", len(tables)))
		c.storeL2(ctx, tables)
	}

	return nil
}
