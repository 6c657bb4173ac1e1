package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/platinummonkey/hubcap/pkg/hooks"
	"github.com/platinummonkey/hubcap/pkg/storage"
)

// HookCache caches hook snapshots in Redis with a small in-process LRU in
// front. Deliveries read hooks far more often than subscriptions change, so
// both layers are invalidated on every hook write.
type HookCache struct {
	client *redis.Client
	l1     *lru.Cache[string, *hooks.Hook]
	ttl    time.Duration
}

// NewHookCache connects to Redis per the storage config.
func NewHookCache(config storage.Config) (*HookCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if config.RedisPassword != "" {
		opts.Password = config.RedisPassword
	}
	if config.RedisDB >= 0 {
		opts.DB = config.RedisDB
	}
	if config.RedisMaxRetries > 0 {
		opts.MaxRetries = config.RedisMaxRetries
	}
	if config.RedisPoolSize > 0 {
		opts.PoolSize = config.RedisPoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newHookCache(client, config)
}

// NewHookCacheWithClient wraps an existing Redis client. Used by tests
// backed by miniredis.
func NewHookCacheWithClient(client *redis.Client, config storage.Config) (*HookCache, error) {
	return newHookCache(client, config)
}

func newHookCache(client *redis.Client, config storage.Config) (*HookCache, error) {
	size := config.L1CacheSize
	if size <= 0 {
		size = 1024
	}
	l1, err := lru.New[string, *hooks.Hook](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create l1 cache: %w", err)
	}
	ttl := config.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &HookCache{client: client, l1: l1, ttl: ttl}, nil
}

func hookKey(hookID string) string {
	return fmt.Sprintf("hook:%s", hookID)
}

// Get returns a cached hook snapshot, promoting Redis hits into the LRU.
func (c *HookCache) Get(ctx context.Context, hookID string) (*hooks.Hook, bool) {
	if h, ok := c.l1.Get(hookID); ok {
		return h, true
	}

	data, err := c.client.Get(ctx, hookKey(hookID)).Result()
	if err != nil {
		// redis.Nil is a plain miss; anything else degrades to the DB read.
		return nil, false
	}

	var h hooks.Hook
	if err := json.Unmarshal([]byte(data), &h); err != nil {
		c.client.Del(ctx, hookKey(hookID))
		return nil, false
	}

	c.l1.Add(hookID, &h)
	return &h, true
}

// Set stores a hook snapshot in both layers.
func (c *HookCache) Set(ctx context.Context, hook *hooks.Hook) {
	c.l1.Add(hook.HookID, hook)

	data, err := json.Marshal(hook)
	if err != nil {
		return
	}
	c.client.Set(ctx, hookKey(hook.HookID), data, c.ttl)
}

// Invalidate drops a hook from both layers.
func (c *HookCache) Invalidate(ctx context.Context, hookID string) {
	c.l1.Remove(hookID)
	c.client.Del(ctx, hookKey(hookID))
}

// Ping checks Redis connectivity.
func (c *HookCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Client returns the underlying Redis client for health checks.
func (c *HookCache) Client() *redis.Client {
	return c.client
}

// Close closes the Redis connection.
func (c *HookCache) Close() error {
	return c.client.Close()
}
