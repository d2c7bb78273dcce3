package table

import (
	"github.com/siltdb/silt/block"
	"github.com/siltdb/silt/key"
)

// Iterator walks a table's entries in composite-key order, hopping across
// block boundaries. Blocks are fetched through the table's cache.
type Iterator struct {
	table   *Table
	blkIter *block.Iterator
	blkIdx  int
}

// NewIterator creates an unpositioned iterator; call SeekToFirst or
// SeekToKey before use.
func NewIterator(t *Table) *Iterator {
	return &Iterator{table: t}
}

// SeekToFirst positions the iterator on the table's first entry.
func (it *Iterator) SeekToFirst() error {
	return it.loadBlock(0, func(bi *block.Iterator) { bi.SeekToFirst() })
}

// SeekToKey positions the iterator on the first entry with key >= k.
func (it *Iterator) SeekToKey(k key.Key) error {
	idx := it.table.FindBlockIdx(k)
	if idx >= it.table.NumBlocks() {
		it.blkIter = nil
		return nil
	}
	if err := it.loadBlock(idx, func(bi *block.Iterator) { bi.SeekToKey(k) }); err != nil {
		return err
	}
	// k may fall in the gap after this block's last key.
	if !it.blkIter.Valid() {
		return it.advanceBlock()
	}
	return nil
}

// Next advances to the following entry.
func (it *Iterator) Next() error {
	if it.blkIter == nil {
		return nil
	}
	it.blkIter.Next()
	if err := it.blkIter.Err(); err != nil {
		return err
	}
	if !it.blkIter.Valid() {
		return it.advanceBlock()
	}
	return nil
}

func (it *Iterator) advanceBlock() error {
	if it.blkIdx+1 >= it.table.NumBlocks() {
		it.blkIter = nil
		return nil
	}
	return it.loadBlock(it.blkIdx+1, func(bi *block.Iterator) { bi.SeekToFirst() })
}

func (it *Iterator) loadBlock(idx int, position func(*block.Iterator)) error {
	blk, err := it.table.ReadBlockCached(idx)
	if err != nil {
		it.blkIter = nil
		return err
	}
	it.blkIdx = idx
	it.blkIter = block.NewIterator(blk)
	position(it.blkIter)
	if err := it.blkIter.Err(); err != nil {
		it.blkIter = nil
		return err
	}
	return nil
}

// Valid reports whether the iterator is positioned on an entry.
func (it *Iterator) Valid() bool {
	return it.blkIter != nil && it.blkIter.Valid()
}

// Key returns the current composite key. Only meaningful while Valid.
func (it *Iterator) Key() key.Key {
	return it.blkIter.Key()
}

// Value returns the current value. Only meaningful while Valid.
func (it *Iterator) Value() []byte {
	return it.blkIter.Value()
}
