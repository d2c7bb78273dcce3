package iterator

import "bytes"

// TwoMergeIterator merges two iterators over the same key space into one
// sorted stream. When both sides hold the same key, the entry from a wins
// and b's entry is discarded, so a acts as an overlay on top of b.
type TwoMergeIterator struct {
	a, b    StorageIterator
	chooseA bool
}

// NewTwoMergeIterator creates a merged iterator positioned on the smallest
// key of the two sides.
func NewTwoMergeIterator(a, b StorageIterator) (*TwoMergeIterator, error) {
	it := &TwoMergeIterator{a: a, b: b}
	if err := it.skipB(); err != nil {
		return nil, err
	}
	it.chooseA = it.shouldChooseA()
	return it, nil
}

// skipB discards b's current entry while it duplicates a's.
func (it *TwoMergeIterator) skipB() error {
	for it.a.Valid() && it.b.Valid() && bytes.Equal(it.a.Key(), it.b.Key()) {
		if err := it.b.Next(); err != nil {
			return err
		}
	}
	return nil
}

func (it *TwoMergeIterator) shouldChooseA() bool {
	if !it.a.Valid() {
		return false
	}
	if !it.b.Valid() {
		return true
	}
	return bytes.Compare(it.a.Key(), it.b.Key()) < 0
}

// Key returns the current user key.
func (it *TwoMergeIterator) Key() []byte {
	if it.chooseA {
		return it.a.Key()
	}
	return it.b.Key()
}

// Value returns the current value.
func (it *TwoMergeIterator) Value() []byte {
	if it.chooseA {
		return it.a.Value()
	}
	return it.b.Value()
}

// Valid reports whether the iterator is positioned on an entry.
func (it *TwoMergeIterator) Valid() bool {
	if it.chooseA {
		return it.a.Valid()
	}
	return it.b.Valid()
}

// Next advances past the current entry on whichever side supplied it.
func (it *TwoMergeIterator) Next() error {
	if it.chooseA {
		if err := it.a.Next(); err != nil {
			return err
		}
	} else {
		if err := it.b.Next(); err != nil {
			return err
		}
	}
	if err := it.skipB(); err != nil {
		return err
	}
	it.chooseA = it.shouldChooseA()
	return nil
}

// NumActiveIterators sums the active cursors of both sides.
func (it *TwoMergeIterator) NumActiveIterators() int {
	return it.a.NumActiveIterators() + it.b.NumActiveIterators()
}
