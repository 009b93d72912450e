package replay

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"auxrewards/native/kpireward"
)

const defaultRedisPrefix = "auxrewards:replay:"

// RedisCache shares reserved digests between daemon replicas. Expiry is left
// to Redis key TTLs.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
}

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// DialRedis connects to Redis and verifies the connection with a ping.
func DialRedis(ctx context.Context, opts RedisOptions) (*RedisCache, error) {
	addr := strings.TrimSpace(opts.Addr)
	if addr == "" {
		return nil, fmt.Errorf("replay: redis address required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("replay: connect to redis at %s: %w", addr, err)
	}
	return NewRedisCache(client, opts.Prefix), nil
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client redis.UniversalClient, prefix string) *RedisCache {
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) key(digest kpireward.Digest) string {
	return c.prefix + digest.Hex()
}

// Reserve uses SETNX so only one replica can claim a digest.
func (c *RedisCache) Reserve(ctx context.Context, digest kpireward.Digest, now, expiresAt time.Time) (bool, error) {
	ok, err := c.client.SetNX(ctx, c.key(digest), expiresAt.Unix(), reservationTTL(now, expiresAt)).Result()
	if err != nil {
		return false, fmt.Errorf("replay: redis setnx: %w", err)
	}
	return ok, nil
}

// reservationTTL is the key lifetime for a reservation. Redis rejects
// non-positive expirations, so past or imminent expiries keep the key for one
// second.
func reservationTTL(now, expiresAt time.Time) time.Duration {
	ttl := expiresAt.Sub(now)
	if ttl < time.Second {
		return time.Second
	}
	return ttl
}

func (c *RedisCache) Release(ctx context.Context, digest kpireward.Digest) error {
	if err := c.client.Del(ctx, c.key(digest)).Err(); err != nil {
		return fmt.Errorf("replay: redis del: %w", err)
	}
	return nil
}

// Prune is a no-op; Redis expires keys on its own.
func (c *RedisCache) Prune(context.Context, time.Time) (int, error) {
	return 0, nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
