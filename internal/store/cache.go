package store

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache fronts the sessions table; entries expire after a short TTL so
// a stale replica never lives long.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
	Invalidate(ctx context.Context, key string)
}

const sessionCacheTTL = 60 * time.Second

func sessionKey(id string) string { return "session:" + id }

// RedisCache stores entries in Redis with SETEX semantics.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client, ttl: sessionCacheTTL}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	payload, err := c.client.Get(ctx, sessionKey(key)).Bytes()
	if err != nil {
		return nil, false
	}
	return payload, true
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte) {
	c.client.Set(ctx, sessionKey(key), value, c.ttl)
}

func (c *RedisCache) Invalidate(ctx context.Context, key string) {
	c.client.Del(ctx, sessionKey(key))
}

// MemoryCache is the in-process fallback when Redis is unconfigured.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	expiresAt time.Time
	payload   []byte
}

// NewMemoryCache builds the fallback cache with the standard TTL.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		ttl:     sessionCacheTTL,
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if entry.expiresAt.Before(c.now()) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.payload, true
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{expiresAt: c.now().Add(c.ttl), payload: value}
}

func (c *MemoryCache) Invalidate(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}
