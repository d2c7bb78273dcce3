package cache

import (
	"container/list"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/siltdb/silt/block"
)

// LRUBlockCache implements BlockCache with byte-capacity LRU eviction.
type LRUBlockCache struct {
	mu        sync.Mutex
	capacity  int64
	size      int64
	items     map[Key]*list.Element
	evictList *list.List

	flight singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

type entry struct {
	key   Key
	value *block.Block
}

// NewLRUBlockCache creates a cache with the given capacity in bytes.
func NewLRUBlockCache(capacity int64) *LRUBlockCache {
	return &LRUBlockCache{
		capacity:  capacity,
		items:     make(map[Key]*list.Element),
		evictList: list.New(),
	}
}

// Get returns a cached block.
func (c *LRUBlockCache) Get(key Key) (*block.Block, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[key]; ok {
		c.hits.Add(1)
		c.evictList.MoveToFront(ent)
		return ent.Value.(*entry).value, true
	}
	c.misses.Add(1)
	return nil, false
}

// GetOrLoad returns the cached block for key, invoking load at most once per
// distinct in-flight key on miss. A failed load is returned to all waiters
// and leaves the cache untouched.
func (c *LRUBlockCache) GetOrLoad(key Key, load func() (*block.Block, error)) (*block.Block, error) {
	if blk, ok := c.Get(key); ok {
		return blk, nil
	}

	v, err, _ := c.flight.Do(key.flightKey(), func() (any, error) {
		// Re-check under the flight: a concurrent caller may have
		// populated the entry while we queued.
		if blk, ok := c.Get(key); ok {
			return blk, nil
		}
		blk, err := load()
		if err != nil {
			return nil, err
		}
		c.set(key, blk)
		return blk, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*block.Block), nil
}

func (c *LRUBlockCache) set(key Key, blk *block.Block) {
	c.mu.Lock()
	defer c.mu.Unlock()

	itemSize := int64(blk.Size())
	if itemSize > c.capacity {
		return
	}

	if ent, ok := c.items[key]; ok {
		c.evictList.MoveToFront(ent)
		old := ent.Value.(*entry)
		c.size += itemSize - int64(old.value.Size())
		old.value = blk
		c.evict()
		return
	}

	for c.size+itemSize > c.capacity {
		oldest := c.evictList.Back()
		if oldest == nil {
			break
		}
		c.removeElement(oldest)
	}

	element := c.evictList.PushFront(&entry{key: key, value: blk})
	c.items[key] = element
	c.size += itemSize
}

// Invalidate removes entries matching the predicate.
func (c *LRUBlockCache) Invalidate(predicate func(key Key) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var toRemove []*list.Element
	for key, element := range c.items {
		if predicate(key) {
			toRemove = append(toRemove, element)
		}
	}
	for _, e := range toRemove {
		c.removeElement(e)
	}
}

func (c *LRUBlockCache) evict() {
	for c.size > c.capacity {
		element := c.evictList.Back()
		if element == nil {
			break
		}
		c.removeElement(element)
	}
}

func (c *LRUBlockCache) removeElement(e *list.Element) {
	c.evictList.Remove(e)
	ent := e.Value.(*entry)
	delete(c.items, ent.key)
	c.size -= int64(ent.value.Size())
}

// Stats returns hit/miss counters.
func (c *LRUBlockCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Size returns the current size of the cache in bytes.
func (c *LRUBlockCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}
