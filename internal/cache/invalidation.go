package cache

import (
	"context"
	"time"

	"github.com/xela07ax/crm-activity-dashboard/internal/infra"
	"go.uber.org/zap"
)

const (
	resubscribeDelay = 1 * time.Second
	subscribeBackoff = 5 * time.Second
)

// ListenInvalidations: "живучая" подписка на сигналы сброса кэша.
// Переподключается сама; после каждого (пере)подключения сбрасывает L1,
// потому что сигналы, пришедшие пока нас не было, потеряны.
// Блокируется до отмены ctx. Без Redis сразу возвращается.
func (c *DiscoveryCache) ListenInvalidations(ctx context.Context) {
	if c.rdb == nil {
		return
	}
	channel := infra.RedisChannelDiscoveryInvalidate

	for {
		pubsub := c.rdb.Subscribe(ctx, channel)

		// Проверка успешности подписки
		if _, err := pubsub.Receive(ctx); err != nil {
			_ = pubsub.Close()
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("failed to subscribe", zap.String("chan", channel), zap.Error(err))
			if !sleepCtx(ctx, subscribeBackoff) {
				return
			}
			continue
		}

		c.dropL1()
		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				_ = pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop // Канал закрыт, идем на переподключение
				}
				// Другие пары (schema, prefix) нас не касаются
				if msg.Payload != c.key {
					continue
				}
				c.dropL1()
				if err := c.rdb.Del(ctx, c.key).Err(); err != nil {
					c.logger.Warn("redis del on invalidation failed", zap.String("key", c.key), zap.Error(err))
				}
				c.logger.Info("discovery cache invalidated", zap.String("key", c.key))
			}
		}

		_ = pubsub.Close()
		if !sleepCtx(ctx, resubscribeDelay) {
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
