package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/joshdurbin/shortlinks/internal/cache"
	"github.com/joshdurbin/shortlinks/internal/domain"
)

// KeyPrefix namespaces every key written by the cache
const KeyPrefix = "geo:"

// Cache implements cache.Cache on top of redis with per-key expiry
type Cache struct {
	client goredis.UniversalClient
	ttl    time.Duration
}

// New creates a redis cache whose entries live for ttl
func New(client goredis.UniversalClient, ttl time.Duration) *Cache {
	return &Cache{
		client: client,
		ttl:    ttl,
	}
}

// Get retrieves a cache entry. A missing key is not an error.
func (c *Cache) Get(ctx context.Context, key string) (domain.Geo, bool, error) {
	raw, err := c.client.Get(ctx, KeyPrefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.Geo{}, false, nil
	}
	if err != nil {
		return domain.Geo{}, false, fmt.Errorf("failed to read cache entry: %w", err)
	}

	var geo domain.Geo
	if err := json.Unmarshal(raw, &geo); err != nil {
		return domain.Geo{}, false, fmt.Errorf("failed to decode cache entry %s: %w", key, err)
	}
	return geo, true, nil
}

// Set stores a cache entry
func (c *Cache) Set(ctx context.Context, key string, geo domain.Geo) error {
	raw, err := json.Marshal(geo)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}
	if err := c.client.Set(ctx, KeyPrefix+key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// Delete removes a cache entry
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, KeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// Close closes the redis client
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ensure Cache implements the interface
var _ cache.Cache = (*Cache)(nil)
