package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// visitorKeyPrefix namespaces cookie-less visitor state.
const visitorKeyPrefix = "visitor:"

// MaxVisitorStateTTL caps how long cookie-less state may outlive its last
// entry, guarding against a client-supplied expiry far in the future.
const MaxVisitorStateTTL = 365 * 24 * time.Hour

// GetVisitorState retrieves the encoded de-duplication state stored under a
// client-held opaque key. Returns ErrCacheMiss when the key is unknown or
// expired, which the counting path treats as a first visit.
func (c *Cache) GetVisitorState(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, visitorKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	if err != nil {
		return "", fmt.Errorf("failed to get visitor state: %w", err)
	}
	return val, nil
}

// SetVisitorState stores encoded state under the visitor's key until
// expiresAt, mirroring the cookie transport where every chunk carries the
// state's max expiry.
func (c *Cache) SetVisitorState(ctx context.Context, key, encoded string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return c.DeleteVisitorState(ctx, key)
	}
	if ttl > MaxVisitorStateTTL {
		ttl = MaxVisitorStateTTL
	}

	if err := c.client.Set(ctx, visitorKeyPrefix+key, encoded, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set visitor state: %w", err)
	}
	return nil
}

// DeleteVisitorState removes a visitor's stored state.
func (c *Cache) DeleteVisitorState(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, visitorKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete visitor state: %w", err)
	}
	return nil
}
