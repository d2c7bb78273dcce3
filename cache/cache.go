// Package cache provides the shared block cache used by SSTable reads.
// Entries are decoded data blocks keyed by (table id, block offset); the
// cache is safe for concurrent use and fills misses with single-flight
// semantics so one disk read serves all concurrent callers of a key.
package cache

import (
	"strconv"

	"github.com/siltdb/silt/block"
)

// Key identifies a cached block. A block is addressed by the table that owns
// it and its byte offset within that table's file.
type Key struct {
	TableID uint32
	Offset  uint32
}

func (k Key) flightKey() string {
	return strconv.FormatUint(uint64(k.TableID), 10) + "/" + strconv.FormatUint(uint64(k.Offset), 10)
}

// BlockCache caches immutable decoded blocks. Cached blocks must be treated
// as read-only.
type BlockCache interface {
	// Get returns a cached block. ok=false if missing.
	Get(key Key) (blk *block.Block, ok bool)
	// GetOrLoad returns the cached block, loading and memoizing it on miss.
	// Concurrent misses for the same key run load once; its error is
	// returned to every waiter and never cached.
	GetOrLoad(key Key, load func() (*block.Block, error)) (*block.Block, error)
	// Invalidate removes entries matching the predicate.
	Invalidate(predicate func(key Key) bool)
	// Stats returns hit/miss counters.
	Stats() (hits, misses int64)
}
