package auth

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestCachePutGet(t *testing.T) {
	cache := NewCache()

	cache.Put("gcp_metadata", "tok-1", DefaultTTL)

	entry, ok := cache.Get("gcp_metadata")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if entry.Material.(string) != "tok-1" {
		t.Errorf("material = %q, want %q", entry.Material, "tok-1")
	}
}

func TestCacheMissOnUnknownKey(t *testing.T) {
	cache := NewCache()

	if _, ok := cache.Get("missing"); ok {
		t.Error("expected miss for unknown key")
	}
}

func TestCacheExpiry(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	cache := NewCache()
	cache.now = func() time.Time { return now }

	cache.Put("aws_credentials", "tok", DefaultTTL)

	// One second before expiry the entry is still live.
	now = now.Add(DefaultTTL - time.Second)
	if _, ok := cache.Get("aws_credentials"); !ok {
		t.Fatal("entry expired early")
	}

	// At the expiry instant the entry is treated as absent.
	now = now.Add(time.Second)
	if _, ok := cache.Get("aws_credentials"); ok {
		t.Error("expected expired entry to be treated as absent")
	}
}

func TestCacheReplaceExtendsExpiry(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	cache := NewCache()
	cache.now = func() time.Time { return now }

	cache.Put("k", "old", time.Minute)
	now = now.Add(30 * time.Second)
	cache.Put("k", "new", time.Minute)

	now = now.Add(45 * time.Second)
	entry, ok := cache.Get("k")
	if !ok {
		t.Fatal("replaced entry should still be live")
	}
	if entry.Material.(string) != "new" {
		t.Errorf("material = %q, want %q", entry.Material, "new")
	}
}

func TestCacheIgnoresNonPositiveTTL(t *testing.T) {
	cache := NewCache()

	cache.Put("k", "tok", 0)
	cache.Put("k2", "tok", -time.Minute)

	if cache.Len() != 0 {
		t.Errorf("Len() = %d, want 0", cache.Len())
	}
}

func TestCacheConcurrentAccess(t *testing.T) {
	cache := NewCache()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		key := fmt.Sprintf("key-%d", i%5)
		go func() {
			defer wg.Done()
			cache.Put(key, "tok", DefaultTTL)
		}()
		go func() {
			defer wg.Done()
			cache.Get(key)
		}()
	}
	wg.Wait()

	if cache.Len() != 5 {
		t.Errorf("Len() = %d, want 5", cache.Len())
	}
}
