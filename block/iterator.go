package block

import (
	"sort"

	"github.com/siltdb/silt/key"
)

// Iterator walks a block's entries in key order. A fresh iterator is not
// positioned; call SeekToFirst or SeekToKey before use.
type Iterator struct {
	block *Block
	idx   int
	key   key.Key
	value []byte
	err   error
}

// NewIterator creates an unpositioned iterator over blk.
func NewIterator(blk *Block) *Iterator {
	return &Iterator{block: blk, idx: -1}
}

// SeekToFirst positions the iterator on the first entry.
func (it *Iterator) SeekToFirst() {
	it.seekTo(0)
}

// SeekToKey positions the iterator on the first entry with key >= k.
func (it *Iterator) SeekToKey(k key.Key) {
	idx := sort.Search(it.block.NumEntries(), func(i int) bool {
		ek, _, err := it.block.entryAt(i)
		if err != nil {
			it.err = err
			return true
		}
		return ek.Compare(k) >= 0
	})
	it.seekTo(idx)
}

// Next advances to the following entry.
func (it *Iterator) Next() {
	it.seekTo(it.idx + 1)
}

func (it *Iterator) seekTo(idx int) {
	if it.err != nil {
		return
	}
	it.idx = idx
	if idx >= it.block.NumEntries() {
		it.key = key.Key{}
		it.value = nil
		return
	}
	it.key, it.value, it.err = it.block.entryAt(idx)
}

// Valid reports whether the iterator is positioned on an entry.
func (it *Iterator) Valid() bool {
	return it.err == nil && !it.key.IsZero()
}

// Key returns the current key. Only meaningful while Valid.
func (it *Iterator) Key() key.Key {
	return it.key
}

// Value returns the current value. Only meaningful while Valid.
func (it *Iterator) Value() []byte {
	return it.value
}

// Err returns the first decode error hit while iterating.
func (it *Iterator) Err() error {
	return it.err
}
