package similarity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the minimal key-value surface the cached client needs.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

// RedisCache wraps go-redis.
type RedisCache struct{ client *redis.Client }

func (r *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, key).Result()
}

func (r *RedisCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// MemoryCache is a simple in-memory TTL cache.
type MemoryCache struct {
	mu    sync.Mutex
	items map[string]memItem
}

type memItem struct {
	value     string
	expiresAt time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: map[string]memItem{}}
}

func (m *MemoryCache) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanupLocked()
	item, ok := m.items[key]
	if !ok {
		return "", redis.Nil
	}
	return item.value, nil
}

func (m *MemoryCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanupLocked()
	m.items[key] = memItem{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (m *MemoryCache) cleanupLocked() {
	now := time.Now()
	for k, v := range m.items {
		if now.After(v.expiresAt) {
			delete(m.items, k)
		}
	}
}

// NewCache tries redis, falls back to memory.
func NewCache(ctx context.Context, client *redis.Client) Cache {
	if client != nil {
		if err := client.Ping(ctx).Err(); err == nil {
			return &RedisCache{client: client}
		}
	}
	return NewMemoryCache()
}

// CachedClient memoizes scorer results keyed by cluster and description
// hash. Cache failures are ignored: a cold or broken cache only costs a
// scorer round trip.
type CachedClient struct {
	inner Client
	cache Cache
	ttl   time.Duration
}

func NewCachedClient(inner Client, cache Cache, ttl time.Duration) *CachedClient {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &CachedClient{inner: inner, cache: cache, ttl: ttl}
}

func (c *CachedClient) Score(ctx context.Context, req Request) (Result, error) {
	key := cacheKey(req)
	if raw, err := c.cache.Get(ctx, key); err == nil {
		var cached Result
		if json.Unmarshal([]byte(raw), &cached) == nil {
			return cached, nil
		}
	}

	result, err := c.inner.Score(ctx, req)
	if err != nil {
		return Result{}, err
	}
	if b, err := json.Marshal(result); err == nil {
		_ = c.cache.Set(ctx, key, string(b), c.ttl)
	}
	return result, nil
}

func cacheKey(req Request) string {
	sum := sha256.Sum256([]byte(req.ClusterID + "\x00" + req.Description))
	return "similarity:" + hex.EncodeToString(sum[:])
}
