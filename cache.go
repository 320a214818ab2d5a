package kurirgo

import (
	"hash/fnv"
	"sync"
	"time"
)

// CacheEntry holds one cached response together with its expiry.
type CacheEntry struct {
	Response  *Response
	ExpiresAt time.Time
}

// Cache stores settled responses keyed by request fingerprint.
type Cache interface {
	Get(key string) (*CacheEntry, bool)
	Set(key string, entry *CacheEntry, ttl time.Duration)
	Delete(key string)
	Clear()
}

// CacheCondition decides whether a request's response may be cached.
type CacheCondition func(req *Request) bool

// DefaultCacheCondition caches idempotent reads only.
func DefaultCacheCondition(req *Request) bool {
	return isIdempotent(req.Method)
}

// InMemoryCache is a sharded in-process cache. Expired entries are
// evicted lazily on read.
type InMemoryCache struct {
	shards    []*cacheShard
	numShards int
}

type cacheShard struct {
	mu    sync.RWMutex
	store map[string]*CacheEntry
}

// NewInMemoryCache creates an empty cache with 16 shards.
func NewInMemoryCache() *InMemoryCache {
	numShards := 16
	shards := make([]*cacheShard, numShards)
	for i := range shards {
		shards[i] = &cacheShard{
			store: make(map[string]*CacheEntry),
		}
	}
	return &InMemoryCache{
		shards:    shards,
		numShards: numShards,
	}
}

func (c *InMemoryCache) getShard(key string) *cacheShard {
	hash := fnv.New32a()
	hash.Write([]byte(key))
	return c.shards[hash.Sum32()%uint32(c.numShards)]
}

func (c *InMemoryCache) Get(key string) (*CacheEntry, bool) {
	shard := c.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry, exists := shard.store[key]
	if !exists {
		return nil, false
	}

	if time.Now().After(entry.ExpiresAt) {
		delete(shard.store, key)
		return nil, false
	}

	return entry, true
}

func (c *InMemoryCache) Set(key string, entry *CacheEntry, ttl time.Duration) {
	shard := c.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry.ExpiresAt = time.Now().Add(ttl)
	shard.store[key] = entry
}

func (c *InMemoryCache) Delete(key string) {
	shard := c.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	delete(shard.store, key)
}

func (c *InMemoryCache) Clear() {
	for _, shard := range c.shards {
		shard.mu.Lock()
		shard.store = make(map[string]*CacheEntry)
		shard.mu.Unlock()
	}
}

// Len counts live entries across all shards.
func (c *InMemoryCache) Len() int {
	n := 0
	for _, shard := range c.shards {
		shard.mu.RLock()
		n += len(shard.store)
		shard.mu.RUnlock()
	}
	return n
}
