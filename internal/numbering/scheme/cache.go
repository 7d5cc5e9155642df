package scheme

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache keeps effective-scheme lookups off the hot issuance path. Keys are
// date-stamped so a lookup for a backdated invoice never collides with
// today's scheme.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache returns a Redis-backed scheme cache. A nil client disables
// caching entirely; callers do not need to branch.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func cacheKey(sellerID int64, date time.Time) string {
	return fmt.Sprintf("numera:scheme:%d:%s", sellerID, date.Format("2006-01-02"))
}

// Get returns the cached scheme, or (nil, nil) on miss.
func (c *Cache) Get(ctx context.Context, sellerID int64, date time.Time) (*Scheme, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}
	raw, err := c.client.Get(ctx, cacheKey(sellerID, date)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("scheme cache get: %w", err)
	}
	var s Scheme
	if err := json.Unmarshal(raw, &s); err != nil {
		// Treat a corrupt entry as a miss; it will be overwritten.
		return nil, nil
	}
	return &s, nil
}

// Set stores the scheme under the seller/date key.
func (c *Cache) Set(ctx context.Context, sellerID int64, date time.Time, s *Scheme) error {
	if c == nil || c.client == nil || s == nil {
		return nil
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKey(sellerID, date), raw, c.ttl).Err()
}

// Purge drops every cached entry for the seller. Called on scheme
// activation and archival so stale templates never serve new invoices.
func (c *Cache) Purge(ctx context.Context, sellerID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	pattern := fmt.Sprintf("numera:scheme:%d:*", sellerID)
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("scheme cache purge: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("scheme cache purge: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
