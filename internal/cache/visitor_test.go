package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestVisitorState_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newTestCache(t)

	encoded := "1700000000b7a1700003600b42"
	expires := time.Now().Add(time.Hour)

	if err := c.SetVisitorState(ctx, "01HV5K7M9QZX", encoded, expires); err != nil {
		t.Fatalf("set visitor state: %v", err)
	}

	got, err := c.GetVisitorState(ctx, "01HV5K7M9QZX")
	if err != nil {
		t.Fatalf("get visitor state: %v", err)
	}
	if got != encoded {
		t.Fatalf("state = %q, want %q", got, encoded)
	}
}

func TestVisitorState_MissIsSentinel(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newTestCache(t)

	_, err := c.GetVisitorState(ctx, "unknown-key")
	if !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected ErrCacheMiss, got %v", err)
	}
}

func TestVisitorState_PastExpiryDeletes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newTestCache(t)

	if err := c.SetVisitorState(ctx, "k", "1700000000b7", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("set: %v", err)
	}
	// Storing state whose last entry already expired removes the key instead
	// of writing with a non-positive TTL.
	if err := c.SetVisitorState(ctx, "k", "1b7", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("set with past expiry: %v", err)
	}

	if _, err := c.GetVisitorState(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected ErrCacheMiss after past-expiry set, got %v", err)
	}
}
