package auth

import (
	"sync"
	"time"
)

// DefaultTTL is how long fetched credentials are cached. Provider tokens
// commonly live for about an hour; caching for a conservative margin under
// that means a token close to expiry is refreshed proactively instead of
// being handed out and rejected downstream.
const DefaultTTL = 50 * time.Minute

// CachedCredential is an immutable cache entry. Entries are replaced on
// refresh, never mutated in place.
type CachedCredential struct {
	// Material is the credential payload: a bearer token string or an
	// aws.Credentials value, depending on the source that stored it.
	Material any

	// ExpiresAt is the instant after which the entry is treated as absent.
	ExpiresAt time.Time
}

// Cache is a concurrency-safe credential cache keyed by provider identity.
// It is explicitly constructed and injectable so tests get a fresh cache and
// a deterministic clock instead of hidden process-wide state.
//
// Two concurrent refreshes of the same key are both safe to complete
// (last-write-wins); a read of a live entry never blocks on a refresh of a
// different key.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]CachedCredential

	// now is the clock used for expiry checks, overridable in tests.
	now func() time.Time
}

// NewCache creates an empty credential cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]CachedCredential),
		now:     time.Now,
	}
}

// Get returns the live entry for key. Entries past expiry are treated as
// absent; the caller is expected to fetch and Put a replacement.
func (c *Cache) Get(key string) (CachedCredential, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || !c.now().Before(entry.ExpiresAt) {
		return CachedCredential{}, false
	}
	return entry, true
}

// Put stores material under key for ttl. A non-positive ttl stores nothing,
// so a miscomputed expiry can never pin a stale credential.
func (c *Cache) Put(key string, material any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	entry := CachedCredential{
		Material:  material,
		ExpiresAt: c.now().Add(ttl),
	}

	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
}

// Len reports the number of stored entries, including expired ones that have
// not been replaced yet.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
