package mvcc

import (
	"bytes"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dgryski/go-farm"
	"github.com/zhangyunhao116/skipmap"

	"github.com/siltdb/silt/iterator"
	"github.com/siltdb/silt/key"
)

// localStore holds a transaction's uncommitted writes in user-key order.
// A tombstone is an empty value, not an absent entry, so a local delete
// shadows an older engine-visible value.
type localStore = skipmap.FuncMap[[]byte, []byte]

func newLocalStore() *localStore {
	return skipmap.NewFunc[[]byte, []byte](func(a, b []byte) bool {
		return bytes.Compare(a, b) < 0
	})
}

// keySets holds a transaction's write- and read-set fingerprints. 32-bit
// fingerprints trade precision for space: collisions can cause spurious
// conflict aborts, never missed ones.
type keySets struct {
	mu    sync.Mutex
	write map[uint32]struct{}
	read  map[uint32]struct{}
}

func (s *keySets) addWrite(h uint32) {
	s.mu.Lock()
	s.write[h] = struct{}{}
	s.mu.Unlock()
}

func (s *keySets) addRead(h uint32) {
	s.mu.Lock()
	s.read[h] = struct{}{}
	s.mu.Unlock()
}

// Transaction is a snapshot view of the storage plus a private write
// buffer. Reads see the snapshot at the fixed read timestamp overlaid with
// the transaction's own writes; nothing is visible to others until Commit.
// Safe for concurrent use by multiple goroutines.
type Transaction struct {
	oracle    *Oracle
	readTs    uint64
	local     *localStore
	committed atomic.Bool
	hashes    *keySets // nil when conflict detection is off
	closeOnce sync.Once
}

// ReadTs returns the transaction's snapshot timestamp.
func (t *Transaction) ReadTs() uint64 {
	return t.readTs
}

// Get returns the value of userKey as seen by this transaction, or nil
// when the key does not exist or was deleted.
func (t *Transaction) Get(userKey []byte) ([]byte, error) {
	if t.committed.Load() {
		return nil, ErrTxnCommitted
	}
	if t.hashes != nil {
		t.hashes.addRead(farm.Fingerprint32(userKey))
	}

	if v, ok := t.local.Load(userKey); ok {
		if len(v) == 0 {
			return nil, nil
		}
		return append([]byte(nil), v...), nil
	}
	return t.oracle.storage.GetWithTs(userKey, t.readTs)
}

// Put buffers a write of userKey. The value must be non-empty; an empty
// value is reserved as the deletion marker.
func (t *Transaction) Put(userKey, value []byte) error {
	if t.committed.Load() {
		return ErrTxnCommitted
	}
	if t.hashes != nil {
		t.hashes.addWrite(farm.Fingerprint32(userKey))
	}

	t.local.Store(append([]byte(nil), userKey...), append([]byte(nil), value...))
	return nil
}

// Delete buffers a deletion of userKey.
func (t *Transaction) Delete(userKey []byte) error {
	if t.committed.Load() {
		return ErrTxnCommitted
	}
	if t.hashes != nil {
		t.hashes.addWrite(farm.Fingerprint32(userKey))
	}

	t.local.Store(append([]byte(nil), userKey...), []byte{})
	return nil
}

// Scan returns an iterator over the live entries in (lower, upper) as seen
// by this transaction: the snapshot at the read timestamp overlaid with the
// local write buffer, tombstones suppressed.
func (t *Transaction) Scan(lower, upper key.Bound) (*TxnIterator, error) {
	if t.committed.Load() {
		return nil, ErrTxnCommitted
	}

	engineIter, err := t.oracle.storage.ScanWithTs(lower, upper, t.readTs)
	if err != nil {
		return nil, fmt.Errorf("mvcc: snapshot scan: %w", err)
	}
	localIter := newTxnLocalIterator(t.local, lower, upper)

	merged, err := iterator.NewTwoMergeIterator(localIter, engineIter)
	if err != nil {
		return nil, err
	}
	return newTxnIterator(t, merged)
}

// Commit validates the transaction against concurrently committed ones and
// applies its buffered writes as one atomic batch. On ErrTxnConflict
// nothing was applied; either way the transaction is done and the caller
// still owes a Close.
func (t *Transaction) Commit() error {
	if t.committed.Load() {
		return ErrTxnCommitted
	}

	// All commits serialize here, keeping validation and the batch write
	// indivisible.
	t.oracle.commitMu.Lock()
	defer t.oracle.commitMu.Unlock()

	if err := t.validate(); err != nil {
		return err
	}

	t.committed.Store(true)

	var records []WriteRecord
	t.local.Range(func(k, v []byte) bool {
		records = append(records, WriteRecord{Key: k, Value: v})
		return true
	})

	commitTs, err := t.oracle.storage.WriteBatch(records)
	if err != nil {
		return fmt.Errorf("mvcc: commit batch: %w", err)
	}
	t.oracle.updateCommitTs(commitTs)

	if t.hashes != nil {
		t.hashes.mu.Lock()
		writeSet := make(map[uint32]struct{}, len(t.hashes.write))
		for h := range t.hashes.write {
			writeSet[h] = struct{}{}
		}
		t.hashes.mu.Unlock()

		t.oracle.recordCommitted(committedTxn{
			commitTs:  commitTs,
			readTs:    t.readTs,
			keyHashes: writeSet,
		})
	}

	t.oracle.logger.Debug("transaction committed", "read_ts", t.readTs, "commit_ts", commitTs, "records", len(records))

	return nil
}

func (t *Transaction) validate() error {
	if t.hashes == nil {
		return nil
	}

	t.hashes.mu.Lock()
	defer t.hashes.mu.Unlock()

	// Read-only transactions cannot conflict.
	if len(t.hashes.write) == 0 {
		return nil
	}

	expectedCommitTs := t.oracle.LatestCommitTs() + 1
	if t.oracle.hasConflict(t.readTs, expectedCommitTs, t.hashes.read) {
		return ErrTxnConflict
	}
	return nil
}

// Close deregisters the transaction's read timestamp from the watermark.
// It must be called exactly once on every path, committed or not; it is
// idempotent and safe to defer.
func (t *Transaction) Close() error {
	t.closeOnce.Do(func() {
		t.oracle.tsMu.Lock()
		t.oracle.watermark.RemoveReader(t.readTs)
		t.oracle.tsMu.Unlock()
	})
	return nil
}
