package mvcc

import (
	"bytes"

	"github.com/dgryski/go-farm"

	"github.com/siltdb/silt/iterator"
	"github.com/siltdb/silt/key"
)

// TxnLocalIterator walks a transaction's write buffer within a user-key
// range. It iterates an owned snapshot taken at construction, so later
// writes to the buffer do not shift the cursor. An empty current key is
// the exhaustion sentinel, which is why an empty user key is never a
// legitimate key anywhere in the engine.
type TxnLocalIterator struct {
	entries  []WriteRecord
	curKey   []byte
	curValue []byte
}

func aboveLower(userKey []byte, lower key.Bound) bool {
	switch lower.Kind {
	case key.Included:
		return bytes.Compare(userKey, lower.User) >= 0
	case key.Excluded:
		return bytes.Compare(userKey, lower.User) > 0
	default:
		return true
	}
}

func belowUpper(userKey []byte, upper key.Bound) bool {
	switch upper.Kind {
	case key.Included:
		return bytes.Compare(userKey, upper.User) <= 0
	case key.Excluded:
		return bytes.Compare(userKey, upper.User) < 0
	default:
		return true
	}
}

func newTxnLocalIterator(local *localStore, lower, upper key.Bound) *TxnLocalIterator {
	it := &TxnLocalIterator{}
	local.Range(func(k, v []byte) bool {
		if !aboveLower(k, lower) {
			return true
		}
		if !belowUpper(k, upper) {
			return false
		}
		it.entries = append(it.entries, WriteRecord{Key: k, Value: v})
		return true
	})
	it.advance()
	return it
}

func (it *TxnLocalIterator) advance() {
	if len(it.entries) == 0 {
		it.curKey = nil
		it.curValue = nil
		return
	}
	it.curKey = it.entries[0].Key
	it.curValue = it.entries[0].Value
	it.entries = it.entries[1:]
}

// Key returns the current user key.
func (it *TxnLocalIterator) Key() []byte {
	return it.curKey
}

// Value returns the current value; empty means a local tombstone.
func (it *TxnLocalIterator) Value() []byte {
	return it.curValue
}

// Valid reports whether the iterator is positioned on an entry.
func (it *TxnLocalIterator) Valid() bool {
	return len(it.curKey) > 0
}

// Next advances to the following entry.
func (it *TxnLocalIterator) Next() error {
	it.advance()
	return nil
}

// NumActiveIterators returns 1.
func (it *TxnLocalIterator) NumActiveIterators() int {
	return 1
}

// TxnIterator is the iterator handed to transaction users: the local write
// buffer merged over the engine snapshot, with tombstones suppressed and
// every key it lands on folded into the transaction's read set.
type TxnIterator struct {
	txn   *Transaction
	inner *iterator.TwoMergeIterator
}

func newTxnIterator(txn *Transaction, inner *iterator.TwoMergeIterator) (*TxnIterator, error) {
	it := &TxnIterator{txn: txn, inner: inner}
	if err := it.skipDeletes(); err != nil {
		return nil, err
	}
	it.foldReadSet()
	return it, nil
}

// skipDeletes moves past tombstones, which the local side surfaces even
// though the engine snapshot handles its own.
func (it *TxnIterator) skipDeletes() error {
	for it.inner.Valid() && len(it.inner.Value()) == 0 {
		if err := it.inner.Next(); err != nil {
			return err
		}
	}
	return nil
}

func (it *TxnIterator) foldReadSet() {
	if it.txn.hashes == nil || !it.inner.Valid() {
		return
	}
	it.txn.hashes.addRead(farm.Fingerprint32(it.inner.Key()))
}

// Key returns the current user key.
func (it *TxnIterator) Key() []byte {
	return it.inner.Key()
}

// Value returns the current value, always non-empty while Valid.
func (it *TxnIterator) Value() []byte {
	return it.inner.Value()
}

// Valid reports whether the iterator is positioned on an entry.
func (it *TxnIterator) Valid() bool {
	return it.inner.Valid()
}

// Next advances to the following live entry.
func (it *TxnIterator) Next() error {
	if err := it.inner.Next(); err != nil {
		return err
	}
	if err := it.skipDeletes(); err != nil {
		return err
	}
	it.foldReadSet()
	return nil
}

// NumActiveIterators returns the number of underlying cursors, for
// resource accounting by the engine.
func (it *TxnIterator) NumActiveIterators() int {
	return it.inner.NumActiveIterators()
}
