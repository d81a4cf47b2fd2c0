package generation

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/phrazzld/lexis-api/internal/domain"
)

// Cache stores generation results. The Redis cache in internal/platform/redis
// satisfies it, as does MemoryCache.
type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttl time.Duration) error
}

// cacheKey identifies requests that may share a response.
func cacheKey(p Params) string {
	return "generation:" + domain.NormalizeKey(p.Topic) + "|" + string(p.Pipeline) + "|" + string(p.Complexity)
}

// cachedResult is the stored form of a Result.
type cachedResult struct {
	Candidates []domain.Candidate `json:"candidates"`
	Facts      []string           `json:"facts,omitempty"`
}

type memoryCacheEntry struct {
	data    []byte
	expires time.Time
}

// MemoryCache is an in-process Cache with per-entry TTLs. Values are stored
// JSON encoded so callers never share mutable state with the cache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryCacheEntry
	now     func() time.Time
}

var _ Cache = (*MemoryCache)(nil)

// NewMemoryCache creates an empty cache. now may be nil.
func NewMemoryCache(now func() time.Time) *MemoryCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{entries: make(map[string]memoryCacheEntry), now: now}
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	entry, ok := c.entries[key]
	if ok && c.now().After(entry.expires) {
		delete(c.entries, key)
		ok = false
	}
	c.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(entry.data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(_ context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryCacheEntry{data: data, expires: c.now().Add(ttl)}
	return nil
}
