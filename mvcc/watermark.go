package mvcc

import (
	"sync"

	"github.com/google/btree"
)

type readerEntry struct {
	ts    uint64
	count int
}

// Watermark tracks the read timestamps of live transactions. The watermark
// is the smallest registered timestamp; committed-transaction history older
// than it can no longer influence any conflict check and may be pruned.
type Watermark struct {
	mu      sync.Mutex
	readers *btree.BTreeG[readerEntry]
}

// NewWatermark creates an empty reader registry.
func NewWatermark() *Watermark {
	return &Watermark{
		readers: btree.NewG(16, func(a, b readerEntry) bool { return a.ts < b.ts }),
	}
}

// AddReader registers a reader at ts. Multiple readers may share one ts.
func (w *Watermark) AddReader(ts uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	entry, ok := w.readers.Get(readerEntry{ts: ts})
	if !ok {
		entry = readerEntry{ts: ts}
	}
	entry.count++
	w.readers.ReplaceOrInsert(entry)
}

// RemoveReader deregisters one reader at ts. Unknown timestamps are
// ignored.
func (w *Watermark) RemoveReader(ts uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	entry, ok := w.readers.Get(readerEntry{ts: ts})
	if !ok {
		return
	}
	entry.count--
	if entry.count <= 0 {
		w.readers.Delete(entry)
		return
	}
	w.readers.ReplaceOrInsert(entry)
}

// Watermark returns the smallest registered read timestamp. The second
// result is false when no readers are registered.
func (w *Watermark) Watermark() (uint64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	entry, ok := w.readers.Min()
	if !ok {
		return 0, false
	}
	return entry.ts, true
}

// NumRetained returns the number of distinct registered timestamps.
func (w *Watermark) NumRetained() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.readers.Len()
}
