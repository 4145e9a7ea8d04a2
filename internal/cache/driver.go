// Package cache holds derived listings (ingredient index, cocktail index)
// behind named keys that can be listed, invalidated and repopulated.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	gocache "github.com/patrickmn/go-cache"
)

// DefaultTTL bounds how long a populated entry is served before it is rebuilt.
const DefaultTTL = 10 * time.Minute

// Driver is the raw key/value backend.
type Driver interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Name() string
}

// LocalDriver keeps entries in process memory.
type LocalDriver struct {
	c *gocache.Cache
}

// NewLocal returns an in-process driver.
func NewLocal(ttl time.Duration) *LocalDriver {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &LocalDriver{c: gocache.New(ttl, 2*ttl)}
}

// Name implements Driver.
func (d *LocalDriver) Name() string { return "memory" }

// Get implements Driver.
func (d *LocalDriver) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := d.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, false, fmt.Errorf("cache entry %s has type %T", key, v)
	}
	return append([]byte(nil), b...), true, nil
}

// Set implements Driver.
func (d *LocalDriver) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	d.c.Set(key, append([]byte(nil), value...), ttl)
	return nil
}

// Delete implements Driver.
func (d *LocalDriver) Delete(_ context.Context, key string) error {
	d.c.Delete(key)
	return nil
}

// RedisDriver stores entries in Redis under a key prefix.
type RedisDriver struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis connects to addr and verifies the connection with a PING.
func NewRedis(ctx context.Context, addr, prefix string) (*RedisDriver, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return NewRedisFromClient(client, prefix), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client redis.UniversalClient, prefix string) *RedisDriver {
	if prefix == "" {
		prefix = "amari:cache:"
	}
	return &RedisDriver{client: client, prefix: prefix}
}

// Name implements Driver.
func (d *RedisDriver) Name() string { return "redis" }

// Get implements Driver.
func (d *RedisDriver) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := d.client.Get(ctx, d.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return b, true, nil
}

// Set implements Driver.
func (d *RedisDriver) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := d.client.Set(ctx, d.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete implements Driver.
func (d *RedisDriver) Delete(ctx context.Context, key string) error {
	if err := d.client.Del(ctx, d.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying client.
func (d *RedisDriver) Close() error { return d.client.Close() }
