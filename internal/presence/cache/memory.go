package cache

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

type entry struct {
	key       string
	value     string
	expiresAt time.Time
	index     int // position in the expiry heap
}

// expiryHeap orders entries by expiresAt, soonest first.
type expiryHeap []*entry

func (h expiryHeap) Len() int           { return len(h) }
func (h expiryHeap) Less(i, j int) bool { return h[i].expiresAt.Before(h[j].expiresAt) }
func (h expiryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *expiryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *expiryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// MemoryCache is an in-process Cache. Entries expire lazily on read; when maxEntries is set and the
// cache is full, expired entries are purged first and then the entry closest to expiry is evicted.
// Entries are indexed by expiry, so eviction costs O(log n) per removed entry.
type MemoryCache struct {
	mu         sync.Mutex
	m          map[string]*entry
	byExpiry   expiryHeap
	maxEntries int
	nowF       func() time.Time
}

// NewMemoryCache returns a memory cache holding at most maxEntries entries (0 = unbounded).
func NewMemoryCache(maxEntries int) *MemoryCache {
	return NewMemoryCacheWithClock(maxEntries, func() time.Time { return time.Now().UTC() })
}

// NewMemoryCacheWithClock is NewMemoryCache with an injected clock.
func NewMemoryCacheWithClock(maxEntries int, now func() time.Time) *MemoryCache {
	return &MemoryCache{
		m:          make(map[string]*entry),
		maxEntries: maxEntries,
		nowF:       now,
	}
}

func (c *MemoryCache) Get(ctx context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[key]
	if !ok {
		return "", false, nil
	}
	if !e.expiresAt.After(c.nowF()) {
		c.remove(e)
		return "", false, nil
	}
	return e.value, true, nil
}

func (c *MemoryCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return c.Delete(ctx, key)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(key, value, ttl)
	return nil
}

func (c *MemoryCache) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.m[key]; ok && e.expiresAt.After(c.nowF()) {
		return false, nil
	}
	if ttl <= 0 {
		return false, nil
	}
	c.put(key, value, ttl)
	return true, nil
}

func (c *MemoryCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		if e, ok := c.m[k]; ok {
			c.remove(e)
		}
	}
	return nil
}

// Len returns the number of entries held, including expired entries not yet purged.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}

// put must be called with mu held.
func (c *MemoryCache) put(key, value string, ttl time.Duration) {
	now := c.nowF()
	if e, ok := c.m[key]; ok {
		e.value = value
		e.expiresAt = now.Add(ttl)
		heap.Fix(&c.byExpiry, e.index)
		return
	}
	if c.maxEntries > 0 && len(c.m) >= c.maxEntries {
		c.evict(now)
	}
	e := &entry{key: key, value: value, expiresAt: now.Add(ttl)}
	heap.Push(&c.byExpiry, e)
	c.m[key] = e
}

// evict must be called with mu held.
func (c *MemoryCache) evict(now time.Time) {
	for len(c.byExpiry) > 0 && !c.byExpiry[0].expiresAt.After(now) {
		c.remove(c.byExpiry[0])
	}
	if len(c.m) >= c.maxEntries && len(c.byExpiry) > 0 {
		c.remove(c.byExpiry[0])
	}
}

// remove must be called with mu held.
func (c *MemoryCache) remove(e *entry) {
	heap.Remove(&c.byExpiry, e.index)
	delete(c.m, e.key)
}
