// Package memo provides a keyed, deduplicating, bounded cache over an
// asynchronous producer function.
//
// A Cache memoizes successful productions with least-recently-used eviction
// and collapses concurrent requests for the same key into a single in-flight
// production, so N callers racing on one key trigger the producer exactly
// once and share its outcome. Failed productions are never cached; the next
// request for the key retries from scratch.
//
// The cache knows nothing about what it stores. Capacity and the producer
// are fixed at construction.
package memo

import (
	"container/list"
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Producer computes the value for a key. It is invoked at most once per key
// while that key is in flight, and runs detached from any single caller's
// cancellation.
type Producer[V any] func(ctx context.Context, key string) (V, error)

// Cache is a deduplicating LRU cache. It is safe for concurrent use.
type Cache[V any] struct {
	capacity int
	produce  Producer[V]
	group    singleflight.Group

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = most recently used
}

type slot[V any] struct {
	key   string
	value V
}

// New creates a Cache with the given capacity and producer.
// A capacity of 0 or less means unbounded.
func New[V any](capacity int, produce Producer[V]) *Cache[V] {
	if capacity < 0 {
		capacity = 0
	}
	return &Cache[V]{
		capacity: capacity,
		produce:  produce,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get returns the cached value for key, producing it on a miss.
//
// A hit returns immediately and promotes the key to most recently used.
// On a miss, all concurrent callers for the same key share one production:
// the single success is memoized and returned to every waiter, a failure is
// propagated to every waiter and left uncached.
//
// The production runs under context.WithoutCancel, so a caller whose ctx is
// done abandons its wait (returning ctx.Err()) without aborting the shared
// production; remaining waiters still receive the result.
func (c *Cache[V]) Get(ctx context.Context, key string) (V, error) {
	if v, ok := c.lookup(key); ok {
		return v, nil
	}

	prodCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		// A previous flight may have stored the value between our lookup
		// and this flight starting.
		if v, ok := c.lookup(key); ok {
			return v, nil
		}
		v, err := c.produce(prodCtx, key)
		if err != nil {
			return nil, err
		}
		c.store(key, v)
		return v, nil
	})

	select {
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			var zero V
			return zero, res.Err
		}
		return res.Val.(V), nil //nolint:errcheck // flights only store V
	}
}

// Remove drops the cached value for key, if any. An in-flight production is
// not affected; its result will be stored when it completes.
func (c *Cache[V]) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[key]; ok {
		c.order.Remove(elem)
		delete(c.entries, key)
	}
}

// Len returns the number of resident entries.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// lookup returns the memoized value for key and promotes it to most
// recently used.
func (c *Cache[V]) lookup(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*slot[V]).value, true //nolint:errcheck // list holds only slots
}

// store inserts key as most recently used, evicting the least recently used
// entry first when the cache is at capacity.
func (c *Cache[V]) store(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		elem.Value.(*slot[V]).value = value //nolint:errcheck // list holds only slots
		c.order.MoveToFront(elem)
		return
	}

	if c.capacity > 0 && len(c.entries) >= c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*slot[V]).key) //nolint:errcheck // list holds only slots
		}
	}

	c.entries[key] = c.order.PushFront(&slot[V]{key: key, value: value})
}
