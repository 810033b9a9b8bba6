package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheVersionKey = "ledger:version"

// Cache wraps Redis based caching of stock reads with versioning controls.
// The version is bumped after every ledger mutation so stale quantities are
// never served.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.Set(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// Bump invalidates all cached entries by advancing the version.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Err()
}

// FetchPosition loads a cached position or populates it using the loader.
func (c *Cache) FetchPosition(ctx context.Context, sku int64, loader func(context.Context) (StockPosition, error)) (StockPosition, error) {
	if loader == nil {
		return StockPosition{}, errors.New("ledger: cache loader required")
	}
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return loader(ctx)
	}
	key := fmt.Sprintf("ledger:position:%d:%d", sku, ver)
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var pos StockPosition
		if err := json.Unmarshal(raw, &pos); err == nil {
			return pos, nil
		}
	}
	pos, err := loader(ctx)
	if err != nil {
		return StockPosition{}, err
	}
	if data, err := json.Marshal(pos); err == nil {
		_ = c.client.Set(ctx, key, data, c.ttl).Err()
	}
	return pos, nil
}
