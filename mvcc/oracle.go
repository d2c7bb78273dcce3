// Package mvcc implements optimistic multi-version concurrency control on
// top of a snapshot-capable storage backend: snapshot-isolated transactions
// with buffered writes, optional serializable validation via read/write
// fingerprint sets, and watermark-bounded garbage collection of the
// committed-transaction history used for conflict checks.
package mvcc

import (
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/google/btree"
)

var (
	// ErrTxnCommitted is returned when a transaction is used after it
	// committed. This signals a bug in the caller.
	ErrTxnCommitted = errors.New("mvcc: operation on committed transaction")

	// ErrTxnConflict is returned by Commit when a concurrently committed
	// transaction wrote keys this transaction read. The buffered writes
	// are discarded and the transaction must not be reused.
	ErrTxnConflict = errors.New("mvcc: transaction aborted due to conflict")
)

// committedTxn is the retained footprint of a committed transaction: its
// write-set fingerprints and the interval against which later transactions
// must be validated.
type committedTxn struct {
	commitTs  uint64
	readTs    uint64
	keyHashes map[uint32]struct{}
}

// Oracle hands out read and commit timestamps and drives commit validation.
// One Oracle guards one Storage.
type Oracle struct {
	storage Storage
	logger  *slog.Logger

	// tsMu guards lastCommitTs together with watermark registration so a
	// new transaction's snapshot and reader entry are assigned atomically.
	tsMu         sync.Mutex
	lastCommitTs uint64
	watermark    *Watermark

	// commitMu serializes every commit end to end: validation, batch
	// write, and history update. Reads never take it.
	commitMu sync.Mutex

	committedMu sync.Mutex
	committed   *btree.BTreeG[committedTxn]
}

// OracleOption configures an Oracle.
type OracleOption func(*Oracle)

// WithLogger sets the structured logger. Logging is off by default.
func WithLogger(logger *slog.Logger) OracleOption {
	return func(o *Oracle) {
		o.logger = logger
	}
}

// WithInitialTs seeds the commit-timestamp counter, used when the engine
// recovers existing data with versions up to ts.
func WithInitialTs(ts uint64) OracleOption {
	return func(o *Oracle) {
		o.lastCommitTs = ts
	}
}

// NewOracle creates an Oracle over storage.
func NewOracle(storage Storage, opts ...OracleOption) *Oracle {
	o := &Oracle{
		storage:   storage,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		watermark: NewWatermark(),
		committed: btree.NewG(16, func(a, b committedTxn) bool { return a.commitTs < b.commitTs }),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Begin starts a transaction reading at the current snapshot. With
// serializable set, read and write fingerprints are tracked and Commit
// validates them against concurrently committed transactions; without it,
// the transaction gets plain snapshot isolation and commits never conflict.
//
// Callers must Close the transaction on every path; an unclosed
// transaction pins the watermark and blocks history pruning.
func (o *Oracle) Begin(serializable bool) *Transaction {
	o.tsMu.Lock()
	readTs := o.lastCommitTs
	o.watermark.AddReader(readTs)
	o.tsMu.Unlock()

	txn := &Transaction{
		oracle: o,
		readTs: readTs,
		local:  newLocalStore(),
	}
	if serializable {
		txn.hashes = &keySets{
			write: make(map[uint32]struct{}),
			read:  make(map[uint32]struct{}),
		}
	}

	o.logger.Debug("transaction started", "read_ts", readTs, "serializable", serializable)

	return txn
}

// LatestCommitTs returns the highest commit timestamp assigned so far.
func (o *Oracle) LatestCommitTs() uint64 {
	o.tsMu.Lock()
	defer o.tsMu.Unlock()

	return o.lastCommitTs
}

// WatermarkTs returns the lowest read timestamp among live transactions,
// or the latest commit timestamp when none are live. History at or above
// this timestamp must be retained.
func (o *Oracle) WatermarkTs() uint64 {
	o.tsMu.Lock()
	defer o.tsMu.Unlock()

	if ts, ok := o.watermark.Watermark(); ok {
		return ts
	}
	return o.lastCommitTs
}

func (o *Oracle) updateCommitTs(ts uint64) {
	o.tsMu.Lock()
	if ts > o.lastCommitTs {
		o.lastCommitTs = ts
	}
	o.tsMu.Unlock()
}

// recordCommitted retains a committed transaction's footprint and prunes
// every entry whose commit timestamp fell below the watermark.
func (o *Oracle) recordCommitted(data committedTxn) {
	watermark := o.WatermarkTs()

	o.committedMu.Lock()
	defer o.committedMu.Unlock()

	o.committed.ReplaceOrInsert(data)

	var stale []committedTxn
	o.committed.AscendLessThan(committedTxn{commitTs: watermark}, func(t committedTxn) bool {
		stale = append(stale, t)
		return true
	})
	for _, t := range stale {
		o.committed.Delete(t)
	}
	if len(stale) > 0 {
		o.logger.Debug("pruned committed-transaction history", "pruned", len(stale), "watermark", watermark)
	}
}

// hasConflict reports whether any transaction committed in the window
// [readTs, expectedCommitTs) wrote a key in readSet.
func (o *Oracle) hasConflict(readTs, expectedCommitTs uint64, readSet map[uint32]struct{}) bool {
	o.committedMu.Lock()
	defer o.committedMu.Unlock()

	conflict := false
	o.committed.AscendRange(
		committedTxn{commitTs: readTs},
		committedTxn{commitTs: expectedCommitTs},
		func(t committedTxn) bool {
			for h := range t.keyHashes {
				if _, ok := readSet[h]; ok {
					conflict = true
					return false
				}
			}
			return true
		},
	)
	return conflict
}

func (o *Oracle) numRetainedTxns() int {
	o.committedMu.Lock()
	defer o.committedMu.Unlock()

	return o.committed.Len()
}
