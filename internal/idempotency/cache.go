// Package idempotency хранит быстрый кеш обработанных ключей вебхуков.
// Источником истины служит журнал pg_webhook_ledger в БД; кеш лишь избавляет
// повторы от транзакции и блокировок.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache помнит обработанные ключи.
type Cache interface {
	// Seen сообщает, что ключ уже был успешно обработан.
	Seen(ctx context.Context, key string) (bool, error)
	// Mark запоминает ключ после коммита.
	Mark(ctx context.Context, key string) error
}

// RedisCache хранит ключи в Redis с ограниченным сроком жизни.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisCache создаёт кеш поверх клиента Redis.
func NewRedisCache(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

// Seen сообщает, обрабатывалось ли уведомление с ключом key.
func (c *RedisCache) Seen(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, c.fullKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("check idempotency key: %w", err)
	}
	return n > 0, nil
}

// Mark запоминает ключ обработанного уведомления на время TTL кеша.
func (c *RedisCache) Mark(ctx context.Context, key string) error {
	if err := c.client.SetNX(ctx, c.fullKey(key), "1", c.ttl).Err(); err != nil {
		return fmt.Errorf("mark idempotency key: %w", err)
	}
	return nil
}

func (c *RedisCache) fullKey(key string) string {
	return fmt.Sprintf("%s:%s", c.prefix, key)
}

// Nop ничего не кеширует: каждый вызов идёт в журнал БД.
type Nop struct{}

// Seen всегда отвечает, что ключ не встречался.
func (Nop) Seen(context.Context, string) (bool, error) { return false, nil }

// Mark ничего не делает.
func (Nop) Mark(context.Context, string) error { return nil }
