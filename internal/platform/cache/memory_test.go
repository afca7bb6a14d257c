package cache

import (
	"context"
	"testing"
	"time"
)

var baseTime = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

func TestMemoryStore_GetMissesExpiredEntries(t *testing.T) {
	current := baseTime
	store := NewMemoryStore(WithClock(func() time.Time { return current }))
	ctx := context.Background()

	store.Set(ctx, "order_details_ord1_v1", "cached", 15*time.Minute)

	if value, ok := store.Get(ctx, "order_details_ord1_v1"); !ok || value != "cached" {
		t.Fatalf("expected hit before expiry, got %v %v", value, ok)
	}

	current = baseTime.Add(15*time.Minute + time.Second)
	if _, ok := store.Get(ctx, "order_details_ord1_v1"); ok {
		t.Fatal("expected miss after ttl elapsed")
	}

	stats := store.Stats()
	if stats.Entries != 0 {
		t.Fatalf("expired entry should be dropped on read, %d remain", stats.Entries)
	}
	if stats.Hits != 1 || stats.Misses != 1 || stats.Evictions != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestMemoryStore_SetDefaultsTTL(t *testing.T) {
	current := baseTime
	store := NewMemoryStore(WithClock(func() time.Time { return current }))
	ctx := context.Background()

	store.Set(ctx, "key", 42, 0)

	current = baseTime.Add(DefaultTTL - time.Second)
	if _, ok := store.Get(ctx, "key"); !ok {
		t.Fatal("expected entry to survive just under the default ttl")
	}

	current = baseTime.Add(DefaultTTL)
	if _, ok := store.Get(ctx, "key"); ok {
		t.Fatal("expected entry to expire at the default ttl")
	}
}

func TestMemoryStore_DeleteContaining(t *testing.T) {
	store := NewMemoryStore(WithClock(func() time.Time { return baseTime }))
	ctx := context.Background()

	store.Set(ctx, "order_details_ord1_v1", 1, time.Minute)
	store.Set(ctx, "order_timeline_ord1_v1", 2, time.Minute)
	store.Set(ctx, "order_details_ord2_v1", 3, time.Minute)

	removed := store.DeleteContaining(ctx, "_ord1_")
	if removed != 2 {
		t.Fatalf("expected 2 removals, got %d", removed)
	}
	if _, ok := store.Get(ctx, "order_details_ord2_v1"); !ok {
		t.Fatal("unrelated entry should remain")
	}
	if _, ok := store.Get(ctx, "order_details_ord1_v1"); ok {
		t.Fatal("matching entry should be gone")
	}
}

func TestMemoryStore_DeletePrefix(t *testing.T) {
	store := NewMemoryStore(WithClock(func() time.Time { return baseTime }))
	ctx := context.Background()

	store.Set(ctx, "analytics_sales_week_v1", 1, time.Hour)
	store.Set(ctx, "analytics_sales_month_v1", 2, time.Hour)
	store.Set(ctx, "product_details_p1_v1", 3, time.Hour)

	if removed := store.DeletePrefix(ctx, "analytics_"); removed != 2 {
		t.Fatalf("expected 2 removals, got %d", removed)
	}
	if stats := store.Stats(); stats.Entries != 1 {
		t.Fatalf("expected 1 entry left, got %d", stats.Entries)
	}
}

func TestMemoryStore_CleanupExpired(t *testing.T) {
	current := baseTime
	store := NewMemoryStore(WithClock(func() time.Time { return current }))
	ctx := context.Background()

	store.Set(ctx, "a", 1, time.Minute)
	store.Set(ctx, "b", 2, time.Hour)

	removed := store.CleanupExpired(ctx, baseTime.Add(2*time.Minute), 0)
	if removed != 1 {
		t.Fatalf("expected one expired entry removed, got %d", removed)
	}
	if _, ok := store.Get(ctx, "b"); !ok {
		t.Fatal("unexpired entry should survive cleanup")
	}
}
