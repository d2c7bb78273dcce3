// Package iterator defines the iterator contract shared by the storage
// layers and provides combinators over it.
package iterator

// StorageIterator is a forward cursor over key/value entries in user-key
// order. Implementations start positioned on their first entry (or invalid
// when empty); Key and Value are only meaningful while Valid reports true.
type StorageIterator interface {
	// Key returns the current user key.
	Key() []byte

	// Value returns the current value. An empty value is a deletion
	// tombstone.
	Value() []byte

	// Valid reports whether the iterator is positioned on an entry.
	Valid() bool

	// Next advances to the following entry.
	Next() error

	// NumActiveIterators returns the number of underlying cursors,
	// counting through combinators.
	NumActiveIterators() int
}
