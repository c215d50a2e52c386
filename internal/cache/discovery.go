package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/crm-activity-dashboard/internal/domain"
	"github.com/xela07ax/crm-activity-dashboard/internal/infra"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// fillTimeout: потолок общего похода в Redis/БД, он не отменяется вместе с запросом.
const fillTimeout = 15 * time.Second

// TableDiscoverer: источник истины (репозиторий).
type TableDiscoverer interface {
	DiscoverTables(ctx context.Context) ([]domain.SourceTable, error)
}

// DiscoveryCache кэш результата discovery с ограниченным временем жизни.
// L1 в памяти процесса, L2 в Redis (общий для инстансов, может отсутствовать).
// Состав схемы меняется редко, поэтому устаревание на TTL не меняет наблюдаемое поведение.
type DiscoveryCache struct {
	next    TableDiscoverer
	rdb     *redis.Client
	key     string
	ttl     time.Duration
	metrics *infra.Metrics
	logger  *zap.Logger
	now     func() time.Time

	group singleflight.Group

	mu        sync.RWMutex
	l1        []domain.SourceTable
	l1Expires time.Time
}

func NewDiscoveryCache(next TableDiscoverer, rdb *redis.Client, key string, ttl time.Duration, metrics *infra.Metrics, logger *zap.Logger) *DiscoveryCache {
	if metrics == nil {
		metrics = infra.NewMetrics(nil)
	}
	return &DiscoveryCache{
		next:    next,
		rdb:     rdb,
		key:     key,
		ttl:     ttl,
		metrics: metrics,
		logger:  logger.Named("discovery_cache"),
		now:     time.Now,
	}
}

func (c *DiscoveryCache) DiscoverTables(ctx context.Context) ([]domain.SourceTable, error) {
	if tables, ok := c.fromL1(); ok {
		c.metrics.DiscoveryCache.WithLabelValues("hit").Inc()
		return tables, nil
	}

	// Параллельные промахи схлопываются в один поход в Redis/БД.
	// Общий поход не привязан к отмене первого запроса: каждый ждет его только
	// до отмены собственного ctx.
	ch := c.group.DoChan(c.key, func() (interface{}, error) {
		fillCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fillTimeout)
		defer cancel()

		if tables, ok := c.fromL2(fillCtx); ok {
			c.metrics.DiscoveryCache.WithLabelValues("hit").Inc()
			c.storeL1(tables)
			return tables, nil
		}

		c.metrics.DiscoveryCache.WithLabelValues("miss").Inc()
		tables, err := c.next.DiscoverTables(fillCtx)
		if err != nil {
			return nil, err
		}
		c.storeL1(tables)
		c.storeL2(fillCtx, tables)
		return tables, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return clone(res.Val.([]domain.SourceTable)), nil
	}
}

// Invalidate сбрасывает оба уровня (например, после миграции схемы)
// и оповещает остальные инстансы через Pub/Sub.
func (c *DiscoveryCache) Invalidate(ctx context.Context) error {
	c.dropL1()

	if c.rdb == nil {
		return nil
	}
	return PublishInvalidation(ctx, c.rdb, c.key)
}

// PublishInvalidation удаляет L2-запись и рассылает ключ всем инстансам,
// чтобы они сбросили свой L1. Вызывается и из процессов без локального кэша.
func PublishInvalidation(ctx context.Context, rdb *redis.Client, key string) error {
	if err := rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cache: invalidate: %w", err)
	}
	if err := rdb.Publish(ctx, infra.RedisChannelDiscoveryInvalidate, key).Err(); err != nil {
		return fmt.Errorf("cache: publish invalidation: %w", err)
	}
	return nil
}

func (c *DiscoveryCache) dropL1() {
	c.mu.Lock()
	c.l1 = nil
	c.l1Expires = time.Time{}
	c.mu.Unlock()
}

func (c *DiscoveryCache) fromL1() ([]domain.SourceTable, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.l1 == nil || !c.now().Before(c.l1Expires) {
		return nil, false
	}
	return clone(c.l1), true
}

func (c *DiscoveryCache) storeL1(tables []domain.SourceTable) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.l1 = clone(tables)
	c.l1Expires = c.now().Add(c.ttl)
}

// fromL2: ошибки Redis не фатальны, идем в БД напрямую.
func (c *DiscoveryCache) fromL2(ctx context.Context) ([]domain.SourceTable, bool) {
	if c.rdb == nil {
		return nil, false
	}

	raw, err := c.rdb.Get(ctx, c.key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.metrics.DiscoveryCache.WithLabelValues("error").Inc()
			c.logger.Warn("redis get failed, falling back to store", zap.String("key", c.key), zap.Error(err))
		}
		return nil, false
	}

	tables := make([]domain.SourceTable, 0)
	if err := json.Unmarshal(raw, &tables); err != nil {
		c.logger.Warn("corrupted discovery cache entry", zap.String("key", c.key), zap.Error(err))
		return nil, false
	}
	return tables, true
}

func (c *DiscoveryCache) storeL2(ctx context.Context, tables []domain.SourceTable) {
	if c.rdb == nil {
		return
	}

	raw, err := json.Marshal(tables)
	if err != nil {
		c.logger.Error("marshal discovery result", zap.Error(err))
		return
	}
	if err := c.rdb.Set(ctx, c.key, raw, c.ttl).Err(); err != nil {
		c.metrics.DiscoveryCache.WithLabelValues("error").Inc()
		c.logger.Warn("redis set failed", zap.String("key", c.key), zap.Error(err))
	}
}

func clone(in []domain.SourceTable) []domain.SourceTable {
	out := make([]domain.SourceTable, len(in))
	copy(out, in)
	return out
}
