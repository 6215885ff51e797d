package shopify

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"
)

// DefaultCacheEntries limits the number of cached responses (LRU eviction).
const DefaultCacheEntries = 256

// responseCache holds GraphQL data payloads for their revalidation window.
type responseCache struct {
	mu         sync.RWMutex
	entries    map[string]*cacheEntry
	accessList []string // LRU tracking: most recent at end
	maxEntries int
	now        func() time.Time
}

type cacheEntry struct {
	data      json.RawMessage
	expiresAt time.Time
}

func newResponseCache(maxEntries int) *responseCache {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheEntries
	}
	return &responseCache{
		entries:    make(map[string]*cacheEntry),
		accessList: make([]string, 0, maxEntries),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// cacheKey hashes the document and its variables. json.Marshal sorts map
// keys, so equal variable maps hash equally.
func cacheKey(query string, variables map[string]any) (string, error) {
	vars, err := json.Marshal(variables)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(query))
	h.Write([]byte{0})
	h.Write(vars)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// get returns a fresh entry. Stale entries are dropped. The lookup, expiry
// check and LRU update happen under one lock so a concurrent put is never
// removed as stale.
func (c *responseCache) get(key string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !entry.expiresAt.After(c.now()) {
		c.removeLocked(key)
		return nil, false
	}
	c.recordAccessLocked(key)
	return entry.data, true
}

func (c *responseCache) put(key string, data json.RawMessage, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}
	c.entries[key] = &cacheEntry{data: data, expiresAt: c.now().Add(ttl)}
	c.recordAccessLocked(key)
}

func (c *responseCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *responseCache) recordAccessLocked(key string) {
	for i, k := range c.accessList {
		if k == key {
			c.accessList = append(c.accessList[:i], c.accessList[i+1:]...)
			break
		}
	}
	c.accessList = append(c.accessList, key)
}

func (c *responseCache) removeLocked(key string) {
	delete(c.entries, key)
	for i, k := range c.accessList {
		if k == key {
			c.accessList = append(c.accessList[:i], c.accessList[i+1:]...)
			return
		}
	}
}

func (c *responseCache) evictOldestLocked() {
	if len(c.accessList) == 0 {
		return
	}
	oldest := c.accessList[0]
	c.accessList = c.accessList[1:]
	delete(c.entries, oldest)
}
