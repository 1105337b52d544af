package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"rotathumb/pkg/render"
)

// ManifestCacheItem represents a cached sweep result
type ManifestCacheItem struct {
	Manifest  *render.Manifest `json:"manifest"`
	CreatedAt time.Time        `json:"createdAt"`
}

// Cache stores sweep manifests keyed by render.Job.CacheKey
type Cache interface {
	Get(ctx context.Context, key string) (*render.Manifest, bool)
	Set(ctx context.Context, key string, manifest *render.Manifest) error
	Clear(ctx context.Context) error
	Size(ctx context.Context) (int, error)
}

// InMemoryCache is a process-local cache with a TTL
type InMemoryCache struct {
	items map[string]ManifestCacheItem
	mutex sync.Mutex
	ttl   time.Duration
}

// RedisCache is a Redis-backed cache shared between workers
type RedisCache struct {
	client  *redis.Client
	ttl     time.Duration
	keyBase string
}

// NewInMemoryCache creates a new in-memory cache with specified TTL
func NewInMemoryCache(ttl time.Duration) *InMemoryCache {
	return &InMemoryCache{
		items: make(map[string]ManifestCacheItem),
		ttl:   ttl,
	}
}

// NewRedisClient connects to redisURL and checks the connection
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	opts.MaxRetries = 5
	opts.MinRetryBackoff = 100 * time.Millisecond
	opts.MaxRetryBackoff = 2 * time.Second
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolSize = 10
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("could not connect to redis: %w", err)
	}
	return client, nil
}

// NewRedisCache creates a cache storing entries under keyBase
func NewRedisCache(client *redis.Client, ttl time.Duration, keyBase string) *RedisCache {
	return &RedisCache{
		client:  client,
		ttl:     ttl,
		keyBase: keyBase,
	}
}

// Get retrieves a manifest from the in-memory cache
func (c *InMemoryCache) Get(_ context.Context, key string) (*render.Manifest, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	item, exists := c.items[key]
	if !exists {
		return nil, false
	}

	// Check if item has expired
	if c.ttl > 0 && time.Since(item.CreatedAt) > c.ttl {
		delete(c.items, key)
		return nil, false
	}

	return item.Manifest, true
}

// Set adds a manifest to the in-memory cache
func (c *InMemoryCache) Set(_ context.Context, key string, manifest *render.Manifest) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items[key] = ManifestCacheItem{
		Manifest:  manifest,
		CreatedAt: time.Now(),
	}
	return nil
}

// Clear empties the in-memory cache
func (c *InMemoryCache) Clear(_ context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items = make(map[string]ManifestCacheItem)
	return nil
}

// Size returns the number of items in the in-memory cache
func (c *InMemoryCache) Size(_ context.Context) (int, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return len(c.items), nil
}

func (c *RedisCache) key(key string) string {
	return c.keyBase + ":" + key
}

// Get retrieves a manifest from Redis
func (c *RedisCache) Get(ctx context.Context, key string) (*render.Manifest, bool) {
	val, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		return nil, false
	}

	var item ManifestCacheItem
	if err := json.Unmarshal(val, &item); err != nil || item.Manifest == nil {
		return nil, false
	}

	return item.Manifest, true
}

// Set adds a manifest to Redis
func (c *RedisCache) Set(ctx context.Context, key string, manifest *render.Manifest) error {
	data, err := json.Marshal(ManifestCacheItem{
		Manifest:  manifest,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return err
	}

	return c.client.Set(ctx, c.key(key), data, c.ttl).Err()
}

// Clear removes every entry under the key base
func (c *RedisCache) Clear(ctx context.Context) error {
	keys, err := c.keys(ctx)
	if err != nil {
		return err
	}
	if len(keys) > 0 {
		return c.client.Del(ctx, keys...).Err()
	}
	return nil
}

// Size returns the number of entries under the key base
func (c *RedisCache) Size(ctx context.Context) (int, error) {
	keys, err := c.keys(ctx)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

func (c *RedisCache) keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := c.client.Scan(ctx, 0, c.keyBase+":*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	return keys, nil
}
