package caresync

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// CacheEntry is the stored envelope around a cached response.
type CacheEntry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Cache stores server responses for offline reads. Entries carry a write
// timestamp; while online an entry older than maxAge is treated as absent,
// while offline any entry is served regardless of age since stale data beats
// no data.
type Cache struct {
	store  Store
	log    *zap.Logger
	maxAge time.Duration
	online func() bool
	now    func() time.Time
}

// Read returns the cached payload for key, or (nil, false) when the entry is
// absent, corrupt, or stale.
func (c *Cache) Read(ctx context.Context, key string) (json.RawMessage, bool) {
	raw, err := c.store.Get(ctx, nsCache, key)
	if err != nil {
		return nil, false
	}
	var entry CacheEntry
	if json.Unmarshal(raw, &entry) != nil {
		return nil, false
	}
	if c.online() && c.now().Sub(entry.Timestamp) > c.maxAge {
		return nil, false
	}
	return entry.Data, true
}

// Write stores data under key. Failures are logged and swallowed: the cache
// is an accelerant, never a reason to fail the request that produced the
// data.
func (c *Cache) Write(ctx context.Context, key string, data json.RawMessage) {
	entry := CacheEntry{Data: data, Timestamp: c.now()}
	raw, err := json.Marshal(entry)
	if err != nil {
		c.log.Warn("failed to encode cache entry", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.store.Set(ctx, nsCache, key, raw); err != nil {
		c.log.Warn("failed to write cache entry", zap.String("key", key), zap.Error(err))
	}
}

// Remove deletes a single cached entry.
func (c *Cache) Remove(ctx context.Context, key string) {
	if err := c.store.Remove(ctx, nsCache, key); err != nil {
		c.log.Warn("failed to remove cache entry", zap.String("key", key), zap.Error(err))
	}
}

// Clear drops every cached entry. Queued mutations and credentials are not
// touched.
func (c *Cache) Clear(ctx context.Context) error {
	return c.store.Clear(ctx, nsCache)
}

// Keys lists the populated cache keys.
func (c *Cache) Keys(ctx context.Context) ([]string, error) {
	return c.store.Keys(ctx, nsCache)
}
