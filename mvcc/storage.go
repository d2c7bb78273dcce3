package mvcc

import (
	"github.com/siltdb/silt/iterator"
	"github.com/siltdb/silt/key"
)

// WriteRecord is one entry of a commit batch. An empty Value marks a
// deletion.
type WriteRecord struct {
	Key   []byte
	Value []byte
}

// Storage is the multi-version store the transaction layer runs on top of:
// the surrounding engine's merged view over memtables and tables. All reads
// are snapshot reads at a fixed timestamp; the single write entry point
// applies a batch atomically and assigns its commit timestamp.
type Storage interface {
	// GetWithTs returns the value of the newest version of userKey with
	// timestamp <= readTs, or nil when no such version exists or it is a
	// tombstone.
	GetWithTs(userKey []byte, readTs uint64) ([]byte, error)

	// ScanWithTs returns an iterator over the live entries visible at
	// readTs within the user-key range (lower, upper). Tombstoned keys
	// are not yielded.
	ScanWithTs(lower, upper key.Bound, readTs uint64) (iterator.StorageIterator, error)

	// WriteBatch atomically applies records under a single new commit
	// timestamp and returns that timestamp.
	WriteBatch(records []WriteRecord) (uint64, error)
}
