package github

import "sync"

// ResponseCache stores ETag-validated GET response bodies keyed by URL.
// Implementations must be safe for concurrent use.
type ResponseCache interface {
	// Get returns the cached ETag and body for url
	Get(url string) (etag string, body []byte, ok bool)
	// Put stores the ETag and body for url
	Put(url, etag string, body []byte) error
}

type cacheEntry struct {
	etag string
	body []byte
}

// MemoryCache is a process-local ResponseCache with no eviction; it is
// bounded by the number of distinct URLs queried.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewMemoryCache creates an empty in-memory cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]cacheEntry)}
}

// Get implements ResponseCache
func (c *MemoryCache) Get(url string) (string, []byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[url]
	if !ok {
		return "", nil, false
	}
	return entry.etag, entry.body, true
}

// Put implements ResponseCache
func (c *MemoryCache) Put(url, etag string, body []byte) error {
	if etag == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[url] = cacheEntry{etag: etag, body: body}
	return nil
}

// Len returns the number of cached URLs
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

type noCache struct{}

func (noCache) Get(string) (string, []byte, bool) { return "", nil, false }
func (noCache) Put(string, string, []byte) error  { return nil }

// NoCache disables conditional requests
var NoCache ResponseCache = noCache{}
