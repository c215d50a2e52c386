package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "crmdash"
)

// Ключи кэша схемы
const (
	RedisKeyDiscoveryPrefix = RedisNamespace + ":discovery:"
)

// RedisChannelDiscoveryInvalidate канал сброса кэша discovery.
// Payload: ключ кэша (см. GetDiscoveryKey).
const RedisChannelDiscoveryInvalidate = RedisNamespace + ":discovery:invalidate"

// GetDiscoveryKey ключ кэша discovery для пары (schema, prefix).
// Несколько инстансов с разным префиксом таблиц не перетирают друг друга.
func GetDiscoveryKey(schema, prefix string) string {
	return fmt.Sprintf("%s%s:%s", RedisKeyDiscoveryPrefix, schema, prefix)
}

// GetWarmupLockKey Генератор ключей для блокировок (если нужны динамические)
func GetWarmupLockKey(resource string) string {
	return fmt.Sprintf("%s:lock:warmup:%s", RedisNamespace, resource)
}
