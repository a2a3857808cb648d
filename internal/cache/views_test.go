package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/viewtally/viewtally/internal/model"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return &Cache{client: client}
}

func TestBufferIncrement_Accumulates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newTestCache(t)

	for i := 0; i < 3; i++ {
		if err := c.BufferIncrement(ctx, 7, model.BucketTotal, model.TotalPeriodKey, 1); err != nil {
			t.Fatalf("buffer increment: %v", err)
		}
	}
	if err := c.BufferIncrement(ctx, 7, model.BucketDay, "20240315", 2); err != nil {
		t.Fatalf("buffer increment: %v", err)
	}

	pending, err := c.PendingViewCount(ctx)
	if err != nil {
		t.Fatalf("pending count: %v", err)
	}
	if pending != 2 {
		t.Fatalf("pending keys = %d, want 2", pending)
	}

	records, err := c.DrainBufferedViews(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("drained %d records, want 2", len(records))
	}

	byKey := make(map[string]int64)
	for _, rec := range records {
		byKey[viewKey(rec.ContentID, rec.Bucket, rec.PeriodKey)] = rec.Count
	}
	if byKey[viewKey(7, model.BucketTotal, "total")] != 3 {
		t.Errorf("total bucket drained %d, want 3", byKey[viewKey(7, model.BucketTotal, "total")])
	}
	if byKey[viewKey(7, model.BucketDay, "20240315")] != 2 {
		t.Errorf("day bucket drained %d, want 2", byKey[viewKey(7, model.BucketDay, "20240315")])
	}
}

func TestDrainBufferedViews_EmptiesBuffer(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newTestCache(t)

	if err := c.BufferIncrement(ctx, 42, model.BucketYear, "2024", 5); err != nil {
		t.Fatalf("buffer increment: %v", err)
	}
	if _, err := c.DrainBufferedViews(ctx); err != nil {
		t.Fatalf("first drain: %v", err)
	}

	// A second drain finds nothing: counters and index are gone.
	records, err := c.DrainBufferedViews(ctx)
	if err != nil {
		t.Fatalf("second drain: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("second drain returned %d records, want 0", len(records))
	}

	pending, err := c.PendingViewCount(ctx)
	if err != nil {
		t.Fatalf("pending count: %v", err)
	}
	if pending != 0 {
		t.Fatalf("pending keys after drain = %d, want 0", pending)
	}
}

func TestDrainBufferedViews_SkipsForeignIndexEntries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newTestCache(t)

	// A stray entry in the index must not wedge the flush.
	if err := c.client.SAdd(ctx, viewIndexKey, "views:not-a-counter").Err(); err != nil {
		t.Fatalf("seed index: %v", err)
	}
	if err := c.BufferIncrement(ctx, 9, model.BucketMonth, "202403", 1); err != nil {
		t.Fatalf("buffer increment: %v", err)
	}

	records, err := c.DrainBufferedViews(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(records) != 1 || records[0].ContentID != 9 {
		t.Fatalf("unexpected drain result: %+v", records)
	}

	pending, _ := c.PendingViewCount(ctx)
	if pending != 0 {
		t.Fatalf("foreign index entry not cleaned up, pending = %d", pending)
	}
}

func TestParseViewKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		key        string
		wantID     int64
		wantBucket model.BucketType
		wantPeriod string
		wantOK     bool
	}{
		{"day counter", "views:7:day:20240315", 7, model.BucketDay, "20240315", true},
		{"total counter", "views:123:total:total", 123, model.BucketTotal, "total", true},
		{"index key itself", "views:pending", 0, 0, "", false},
		{"wrong prefix", "clicks:7:day:20240315", 0, 0, "", false},
		{"bad id", "views:abc:day:20240315", 0, 0, "", false},
		{"zero id", "views:0:day:20240315", 0, 0, "", false},
		{"bad bucket", "views:7:decade:20240315", 0, 0, "", false},
		{"empty period", "views:7:day:", 0, 0, "", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			id, bucket, period, ok := parseViewKey(tt.key)
			if ok != tt.wantOK {
				t.Fatalf("parseViewKey(%q) ok = %v, want %v", tt.key, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if id != tt.wantID || bucket != tt.wantBucket || period != tt.wantPeriod {
				t.Errorf("parseViewKey(%q) = (%d, %v, %q)", tt.key, id, bucket, period)
			}
		})
	}
}
