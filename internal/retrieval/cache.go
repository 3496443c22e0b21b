package retrieval

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/fyrsmithlabs/knowledged/internal/vectorstore"
)

// resultCache memoizes search results for a short TTL. Keys include the full
// tenant identity, so one user's cached results can never serve another's
// query.
type resultCache struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	results []vectorstore.Result
	expires time.Time
}

func newResultCache(ttl time.Duration) *resultCache {
	return &resultCache{ttl: ttl, entries: make(map[string]cacheEntry)}
}

func cacheKey(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		fmt.Fprintf(h, "%s\x00", p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (c *resultCache) get(key string) ([]vectorstore.Result, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	out := make([]vectorstore.Result, len(e.results))
	copy(out, e.results)
	return out, true
}

func (c *resultCache) put(key string, results []vectorstore.Result) {
	if c == nil {
		return
	}
	stored := make([]vectorstore.Result, len(results))
	copy(stored, results)
	c.mu.Lock()
	c.entries[key] = cacheEntry{results: stored, expires: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}
