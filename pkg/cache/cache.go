// Package cache memoizes GET response bodies keyed by a canonical
// request signature, with TTL expiry and prefix invalidation on
// mutation.
package cache

import (
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultTTL matches the historical 10s response cache timeout.
const DefaultTTL = 10 * time.Second

type item struct {
	body       []byte
	expiration time.Time
}

// Cache is an in-memory TTL store for serialized response bodies.
type Cache struct {
	items map[string]item
	sync.RWMutex
}

func New() *Cache {
	return &Cache{items: make(map[string]item)}
}

// Key derives the canonical cache key for a request: the resource path
// plus the query parameters sorted by name, each value list sorted too.
// The `cache` control parameter itself never participates, so
// cache=true and cache-less requests share an entry.
func Key(path string, params url.Values) string {
	names := make([]string, 0, len(params))
	for name := range params {
		if name == "cache" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString(path)
	sep := "?"
	for _, name := range names {
		vals := append([]string(nil), params[name]...)
		sort.Strings(vals)
		for _, v := range vals {
			sb.WriteString(sep)
			sb.WriteString(url.QueryEscape(name))
			sb.WriteString("=")
			sb.WriteString(url.QueryEscape(v))
			sep = "&"
		}
	}
	return sb.String()
}

// Get returns the cached body for key, if present and unexpired.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.RLock()
	it, found := c.items[key]
	c.RUnlock()
	if !found {
		return nil, false
	}
	if time.Now().After(it.expiration) {
		c.Lock()
		delete(c.items, key)
		c.Unlock()
		return nil, false
	}
	return it.body, true
}

// Set stores body under key for the given duration.
func (c *Cache) Set(key string, body []byte, ttl time.Duration) {
	c.Lock()
	defer c.Unlock()
	c.items[key] = item{body: body, expiration: time.Now().Add(ttl)}
}

// Delete evicts one exact key (cache-busting read).
func (c *Cache) Delete(key string) {
	c.Lock()
	defer c.Unlock()
	delete(c.items, key)
}

// InvalidatePrefix evicts every entry whose key starts with prefix and
// returns the number of evicted entries. Mutations call this with the
// resource's path prefix; deliberately coarse-grained.
func (c *Cache) InvalidatePrefix(prefix string) int {
	c.Lock()
	defer c.Unlock()
	n := 0
	for key := range c.items {
		if strings.HasPrefix(key, prefix) {
			delete(c.items, key)
			n++
		}
	}
	return n
}

// CleanupExpired removes expired items.
func (c *Cache) CleanupExpired() {
	c.Lock()
	defer c.Unlock()
	now := time.Now()
	for key, it := range c.items {
		if now.After(it.expiration) {
			delete(c.items, key)
		}
	}
}

// Len reports the number of live entries, expired or not.
func (c *Cache) Len() int {
	c.RLock()
	defer c.RUnlock()
	return len(c.items)
}
