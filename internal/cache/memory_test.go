package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCache_SetGet(t *testing.T) {
	t.Parallel()

	c := NewMemoryCache()
	ctx := context.Background()

	if err := c.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok || got != "v" {
		t.Errorf("Get() = (%q, %v), want (v, true)", got, ok)
	}

	if _, ok, _ := c.Get(ctx, "missing"); ok {
		t.Error("Expected miss for absent key")
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	t.Parallel()

	c := NewMemoryCache()
	ctx := context.Background()

	if err := c.Set(ctx, "short", "v", 10*time.Millisecond); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := c.Set(ctx, "forever", "v", 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	time.Sleep(30 * time.Millisecond)

	if _, ok, _ := c.Get(ctx, "short"); ok {
		t.Error("Expected expired entry to miss")
	}
	if _, ok, _ := c.Get(ctx, "forever"); !ok {
		t.Error("Expected zero-TTL entry to persist")
	}
}

func TestMemoryCache_Delete(t *testing.T) {
	t.Parallel()

	c := NewMemoryCache()
	ctx := context.Background()

	_ = c.Set(ctx, "a", "1", 0)
	_ = c.Set(ctx, "b", "2", 0)

	if err := c.Delete(ctx, "a", "b"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok, _ := c.Get(ctx, "a"); ok {
		t.Error("Expected a deleted")
	}
	if _, ok, _ := c.Get(ctx, "b"); ok {
		t.Error("Expected b deleted")
	}
}

func TestMemoryCache_DeletePrefix(t *testing.T) {
	t.Parallel()

	c := NewMemoryCache()
	ctx := context.Background()

	_ = c.Set(ctx, "tagmap:p1:main", "master", 0)
	_ = c.Set(ctx, "tagmap:p1:dev", "develop", 0)
	_ = c.Set(ctx, "tagmap:p2:main", "master", 0)

	if err := c.DeletePrefix(ctx, "tagmap:p1:"); err != nil {
		t.Fatalf("DeletePrefix() error = %v", err)
	}

	if _, ok, _ := c.Get(ctx, "tagmap:p1:main"); ok {
		t.Error("Expected p1 entries cleared")
	}
	if _, ok, _ := c.Get(ctx, "tagmap:p2:main"); !ok {
		t.Error("Expected p2 entries untouched")
	}
}
