package cache

import (
	"context"
	"testing"
)

func TestCheckIPRateLimit_ConsumesBurst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newTestCache(t)

	// rate 1/s, burst 3: the first three requests pass, the fourth is denied.
	for i := 0; i < 3; i++ {
		res, err := c.CheckIPRateLimit(ctx, "203.0.113.7", 1, 3)
		if err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
	}

	res, err := c.CheckIPRateLimit(ctx, "203.0.113.7", 1, 3)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res.Allowed {
		t.Error("expected fourth request to be denied")
	}
	if res.RetryAfter <= 0 {
		t.Errorf("expected positive retry-after, got %v", res.RetryAfter)
	}
}

func TestCheckIPRateLimit_IsolatesClients(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newTestCache(t)

	for i := 0; i < 2; i++ {
		if _, err := c.CheckIPRateLimit(ctx, "10.0.0.1", 1, 2); err != nil {
			t.Fatalf("exhaust first client: %v", err)
		}
	}
	denied, err := c.CheckIPRateLimit(ctx, "10.0.0.1", 1, 2)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if denied.Allowed {
		t.Error("expected first client to be limited")
	}

	other, err := c.CheckIPRateLimit(ctx, "10.0.0.2", 1, 2)
	if err != nil {
		t.Fatalf("check other client: %v", err)
	}
	if !other.Allowed {
		t.Error("expected second client to be unaffected")
	}
}

func TestHashIP_StableAndOpaque(t *testing.T) {
	t.Parallel()

	a, b := hashIP("192.0.2.1"), hashIP("192.0.2.1")
	if a != b {
		t.Errorf("hash not stable: %s vs %s", a, b)
	}
	if len(a) != 16 {
		t.Errorf("expected 16 hex chars, got %d", len(a))
	}
	if a == "192.0.2.1" || hashIP("192.0.2.2") == a {
		t.Error("hash must differ per address and not echo the input")
	}
}
