package cache

import (
	"container/list"
	"sync"
)

// LRUCache is a fixed-capacity map that evicts the least recently used entry.
type LRUCache[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	items    map[K]*list.Element
	order    *list.List
	onEvict  func(K, V)
}

type entry[K comparable, V any] struct {
	key   K
	value V
}

// NewLRUCache creates a cache holding at most capacity entries.
// A capacity below one is raised to one.
func NewLRUCache[K comparable, V any](capacity int) *LRUCache[K, V] {
	if capacity < 1 {
		capacity = 1
	}
	return &LRUCache[K, V]{
		capacity: capacity,
		items:    make(map[K]*list.Element, capacity),
		order:    list.New(),
	}
}

// SetEvictCallback registers fn to run for entries dropped because of capacity.
// Explicit Remove and Clear do not trigger it.
func (c *LRUCache[K, V]) SetEvictCallback(fn func(key K, value V)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvict = fn
}

// Get returns the value for key and marks it as recently used.
func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.order.MoveToFront(el)
		return el.Value.(*entry[K, V]).value, true
	}
	var zero V
	return zero, false
}

// Peek returns the value for key without touching recency.
func (c *LRUCache[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		return el.Value.(*entry[K, V]).value, true
	}
	var zero V
	return zero, false
}

// Put stores value under key, evicting the oldest entry when full.
func (c *LRUCache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	evicted, onEvict := c.putLocked(key, value)
	c.mu.Unlock()
	c.notifyEvicted(evicted, onEvict)
}

// GetOrPut returns the existing value for key or stores the one built by create.
// create runs under the cache lock and must not call back into the cache.
// The second result reports whether the value already existed.
func (c *LRUCache[K, V]) GetOrPut(key K, create func() V) (V, bool) {
	c.mu.Lock()
	if el, ok := c.items[key]; ok {
		c.order.MoveToFront(el)
		v := el.Value.(*entry[K, V]).value
		c.mu.Unlock()
		return v, true
	}
	v := create()
	evicted, onEvict := c.putLocked(key, v)
	c.mu.Unlock()

	c.notifyEvicted(evicted, onEvict)
	return v, false
}

func (c *LRUCache[K, V]) putLocked(key K, value V) (*entry[K, V], func(K, V)) {
	if el, ok := c.items[key]; ok {
		el.Value.(*entry[K, V]).value = value
		c.order.MoveToFront(el)
		return nil, nil
	}

	c.items[key] = c.order.PushFront(&entry[K, V]{key: key, value: value})
	if c.order.Len() <= c.capacity {
		return nil, nil
	}
	oldest := c.order.Back()
	c.order.Remove(oldest)
	evicted := oldest.Value.(*entry[K, V])
	delete(c.items, evicted.key)
	return evicted, c.onEvict
}

// notifyEvicted runs outside the lock so callbacks may use the cache.
func (c *LRUCache[K, V]) notifyEvicted(e *entry[K, V], fn func(K, V)) {
	if e != nil && fn != nil {
		fn(e.key, e.value)
	}
}

// Remove deletes key and returns its value.
func (c *LRUCache[K, V]) Remove(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.order.Remove(el)
		delete(c.items, key)
		return el.Value.(*entry[K, V]).value, true
	}
	var zero V
	return zero, false
}

// Keys returns the keys from most to least recently used.
func (c *LRUCache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]K, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*entry[K, V]).key)
	}
	return keys
}

func (c *LRUCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Clear drops every entry.
func (c *LRUCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]*list.Element, c.capacity)
	c.order.Init()
}
