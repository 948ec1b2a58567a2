package search

import (
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/poiesic/yellowbook/core"
)

const (
	// DefaultCacheTTL is how long an answer stays cached.
	DefaultCacheTTL = time.Hour

	// DefaultCacheSize bounds the number of cached answers.
	DefaultCacheSize = 1024
)

type cacheEntry struct {
	result    *core.SearchResult
	expiresAt time.Time
}

// ResponseCache holds finished search results keyed by CacheKey.
// It is safe for concurrent use; on key collision the last Put wins.
type ResponseCache struct {
	entries *expirable.LRU[string, cacheEntry]
	ttl     time.Duration
	now     func() time.Time
}

// NewResponseCache creates a cache holding up to size entries for ttl.
// now supplies the clock used for expiry checks; nil selects time.Now.
func NewResponseCache(size int, ttl time.Duration, now func() time.Time) *ResponseCache {
	if now == nil {
		now = time.Now
	}
	return &ResponseCache{
		// The LRU evicts by wall clock in the background; expiresAt is
		// checked against now so expiry also holds under a fake clock.
		entries: expirable.NewLRU[string, cacheEntry](size, nil, ttl),
		ttl:     ttl,
		now:     now,
	}
}

// CacheKey normalizes a question and optional city into a cache key.
func CacheKey(question, city string) string {
	c := strings.ToLower(strings.TrimSpace(city))
	if c == "" {
		c = "all"
	}
	return strings.ToLower(strings.TrimSpace(question)) + "|" + c
}

// Get returns a private copy of the cached result for key.
func (c *ResponseCache) Get(key string) (*core.SearchResult, bool) {
	entry, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	if !c.now().Before(entry.expiresAt) {
		c.entries.Remove(key)
		return nil, false
	}
	return entry.result.Clone(), true
}

// Put stores a copy of result under key with the Cached flag cleared.
func (c *ResponseCache) Put(key string, result *core.SearchResult) {
	stored := result.Clone()
	stored.Cached = false
	c.entries.Add(key, cacheEntry{result: stored, expiresAt: c.now().Add(c.ttl)})
}

// Len returns the number of entries, including any not yet swept.
func (c *ResponseCache) Len() int {
	return c.entries.Len()
}

// Purge drops every entry.
func (c *ResponseCache) Purge() {
	c.entries.Purge()
}
