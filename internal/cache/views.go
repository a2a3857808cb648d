package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/viewtally/viewtally/internal/model"
)

// Buffered counter keys and the sidecar index of pending keys.
const (
	viewKeyPrefix = "views:"
	viewIndexKey  = "views:pending"
)

// Common cache errors.
var (
	ErrCacheMiss = errors.New("cache miss")
)

// viewKey builds the counter key for one (content, bucket, period) triple.
func viewKey(contentID int64, bucket model.BucketType, periodKey string) string {
	return fmt.Sprintf("%s%d:%s:%s", viewKeyPrefix, contentID, bucket, periodKey)
}

// parseViewKey is the inverse of viewKey. Returns false for keys that are not
// buffered counters (including the index key itself).
func parseViewKey(key string) (contentID int64, bucket model.BucketType, periodKey string, ok bool) {
	if !strings.HasPrefix(key, viewKeyPrefix) {
		return 0, 0, "", false
	}
	parts := strings.SplitN(key[len(viewKeyPrefix):], ":", 3)
	if len(parts) != 3 {
		return 0, 0, "", false
	}
	contentID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || contentID <= 0 {
		return 0, 0, "", false
	}
	bucket, err = model.ParseBucketType(parts[1])
	if err != nil || parts[2] == "" {
		return 0, 0, "", false
	}
	return contentID, bucket, parts[2], true
}

// BufferIncrement accumulates an increment in Redis instead of the durable
// store and records the key in the pending index for the flush job. This is
// the opt-in write-behind fast path: a crash or eviction before the next
// flush loses the buffered amounts.
func (c *Cache) BufferIncrement(ctx context.Context, contentID int64, bucket model.BucketType, periodKey string, amount int64) error {
	key := viewKey(contentID, bucket, periodKey)

	pipe := c.client.Pipeline()
	pipe.IncrBy(ctx, key, amount)
	pipe.SAdd(ctx, viewIndexKey, key)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to buffer increment for %s: %w", key, err)
	}
	return nil
}

// DrainBufferedViews removes and returns every buffered increment as records
// ready for a bulk upsert. The index entry is dropped before the counter is
// read: an increment landing in between re-registers the key and recreates
// the counter, so nothing is lost, and a later drain tolerates the resulting
// dangling index entry.
func (c *Cache) DrainBufferedViews(ctx context.Context) ([]model.ViewRecord, error) {
	keys, err := c.client.SMembers(ctx, viewIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read pending view index: %w", err)
	}

	records := make([]model.ViewRecord, 0, len(keys))
	for _, key := range keys {
		contentID, bucket, periodKey, ok := parseViewKey(key)
		if !ok {
			// Not one of ours; drop it from the index so it cannot wedge
			// every future flush.
			c.client.SRem(ctx, viewIndexKey, key)
			continue
		}

		if err := c.client.SRem(ctx, viewIndexKey, key).Err(); err != nil {
			return records, fmt.Errorf("failed to unregister %s: %w", key, err)
		}

		val, err := c.client.GetDel(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			// Already drained by a concurrent flush.
			continue
		}
		if err != nil {
			return records, fmt.Errorf("failed to drain %s: %w", key, err)
		}

		count, err := strconv.ParseInt(val, 10, 64)
		if err != nil || count <= 0 {
			continue
		}
		records = append(records, model.ViewRecord{
			ContentID: contentID,
			Bucket:    bucket,
			PeriodKey: periodKey,
			Count:     count,
		})
	}
	return records, nil
}

// PendingViewCount reports how many buffered counter keys await a flush.
func (c *Cache) PendingViewCount(ctx context.Context) (int64, error) {
	n, err := c.client.SCard(ctx, viewIndexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count pending views: %w", err)
	}
	return n, nil
}
