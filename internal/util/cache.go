package util

import (
	"container/list"
	"sync"
)

type (
	// LRUCache memoizes values by key, evicting the least recently used
	// entry once more than maxSize are held
	LRUCache[K comparable, V any] struct {
		entries map[K]*list.Element
		order   *list.List
		maxSize int
		mu      sync.Mutex
	}

	// Constructor builds the value for a missing key
	Constructor[V any] func() (V, error)

	lruEntry[K comparable, V any] struct {
		key   K
		value V
	}
)

// NewLRUCache creates a cache holding at most maxSize entries
func NewLRUCache[K comparable, V any](maxSize int) *LRUCache[K, V] {
	return &LRUCache[K, V]{
		entries: map[K]*list.Element{},
		order:   list.New(),
		maxSize: max(maxSize, 1),
	}
}

// Get returns the cached value for key, calling create on a miss. Failed
// constructions are not cached. create runs without the lock held, so two
// concurrent misses may both construct; the first stored value wins
func (c *LRUCache[K, V]) Get(key K, create Constructor[V]) (V, error) {
	if v, ok := c.lookup(key); ok {
		return v, nil
	}

	value, err := create()
	if err != nil {
		var zero V
		return zero, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[key]; ok {
		c.order.MoveToFront(elem)
		return elem.Value.(*lruEntry[K, V]).value, nil
	}
	c.entries[key] = c.order.PushFront(&lruEntry[K, V]{
		key:   key,
		value: value,
	})
	for c.order.Len() > c.maxSize {
		c.evictOldest()
	}
	return value, nil
}

// Len returns the number of cached entries
func (c *LRUCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *LRUCache[K, V]) lookup(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*lruEntry[K, V]).value, true
}

func (c *LRUCache[K, V]) evictOldest() {
	back := c.order.Back()
	if back == nil {
		return
	}
	c.order.Remove(back)
	delete(c.entries, back.Value.(*lruEntry[K, V]).key)
}
