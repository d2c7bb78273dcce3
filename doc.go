// Package silt provides the storage core of a log-structured-merge engine:
// the immutable on-disk table format and an optimistic multi-version
// transaction layer.
//
// The packages compose bottom-up:
//
//   - key holds the composite key type (user key + version timestamp) and
//     range bounds.
//   - block encodes and iterates the sorted entry blocks a table stores.
//   - table builds, opens, and searches single-file sorted string tables:
//     data blocks, a block-meta index, and a bloom filter behind a fixed
//     trailer.
//   - cache is the shared block cache with single-flight fill.
//   - iterator defines the forward-cursor contract and the two-way merge
//     combinator.
//   - mvcc provides snapshot-isolated transactions with optional
//     serializable validation on top of any Storage backend.
//
// # Transactions
//
//	oracle := mvcc.NewOracle(storage)
//
//	txn := oracle.Begin(true)
//	defer txn.Close()
//
//	v, _ := txn.Get([]byte("account"))
//	_ = txn.Put([]byte("account"), next(v))
//	if err := txn.Commit(); errors.Is(err, mvcc.ErrTxnConflict) {
//	    // retry with a fresh transaction
//	}
//
// Reads are snapshot-isolated at the transaction's read timestamp; writes
// stay in a private buffer until Commit applies them as one atomic batch.
//
// # Tables
//
//	b := table.NewBuilder()
//	b.Add(key.New([]byte("k"), ts), value)
//	tbl, _ := b.Build(id, blockCache, path)
//
//	idx := tbl.FindBlockIdx(key.New([]byte("k"), key.TsMax))
//	blk, _ := tbl.ReadBlockCached(idx)
//
// Tables are written once and opened read-only; the surrounding engine
// owns flushing, compaction, and recovery.
package silt
