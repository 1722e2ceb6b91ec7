package extractor

import (
	"context"
	"sync"
	"time"

	"radiostream/internal/domain/ports"
	"radiostream/internal/metrics"
)

type cacheEntry struct {
	streamURL string
	expiresAt time.Time
}

// Cache wraps a StreamResolver with a TTL cache keyed by canonical URL.
// Direct stream URLs expire on the provider's side within minutes, so the
// TTL stays short.
type Cache struct {
	resolver ports.StreamResolver
	ttl      time.Duration

	mu      sync.Mutex
	entries map[string]cacheEntry

	// Now is injectable for tests.
	Now func() time.Time
}

func NewCache(resolver ports.StreamResolver, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{
		resolver: resolver,
		ttl:      ttl,
		entries:  make(map[string]cacheEntry),
		Now:      time.Now,
	}
}

func (c *Cache) ResolveStreamURL(ctx context.Context, externalURL string) (string, error) {
	key := CanonicalURL(externalURL)
	now := c.Now()

	c.mu.Lock()
	if entry, ok := c.entries[key]; ok && now.Before(entry.expiresAt) {
		c.mu.Unlock()
		metrics.ExtractorCacheHitsTotal.Inc()
		return entry.streamURL, nil
	}
	c.mu.Unlock()

	streamURL, err := c.resolver.ResolveStreamURL(ctx, externalURL)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{streamURL: streamURL, expiresAt: now.Add(c.ttl)}
	c.mu.Unlock()
	return streamURL, nil
}

// Invalidate drops a cached resolution, for when a client reports the
// stream URL dead before the TTL runs out.
func (c *Cache) Invalidate(externalURL string) {
	key := CanonicalURL(externalURL)
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// StartSweeping removes expired entries periodically until ctx is done.
func (c *Cache) StartSweeping(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.sweep()
			}
		}
	}()
}

func (c *Cache) sweep() {
	now := c.Now()
	c.mu.Lock()
	for key, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
}
