package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache implements Store on redis. Entries expire server-side at the
// ttl given to Set.
type RedisCache struct {
	client  redis.Cmdable
	timeout time.Duration
	closer  func() error
}

// NewRedisCache dials a redis client for addr. timeout bounds each command.
func NewRedisCache(addr, password string, db int, timeout time.Duration) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})
	c := NewRedisCacheWithClient(client, timeout)
	c.closer = client.Close
	return c
}

// NewRedisCacheWithClient wraps an existing client. Used by tests with redismock.
func NewRedisCacheWithClient(client redis.Cmdable, timeout time.Duration) *RedisCache {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &RedisCache{client: client, timeout: timeout}
}

func (c *RedisCache) key(k string) string {
	return keyPrefix + Hash(k)
}

// Get implements Store.Get.
func (c *RedisCache) Get(ctx context.Context, key string, _ time.Duration) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	val, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return val, true, nil
}

// Set implements Store.Set.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Hour
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.client.Set(ctx, c.key(key), value, ttl).Err()
}

// Ping implements Store.Ping.
func (c *RedisCache) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	return c.client.Ping(ctx).Err()
}

// Close releases the underlying client when this cache created it.
func (c *RedisCache) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}
