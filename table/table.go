// Package table implements the immutable sorted-string-table (SSTable)
// format: sorted data blocks, a block-meta index, and a bloom filter in a
// single file. Tables are built once, opened read-only, and never mutated.
//
// File layout (integer fields little-endian):
//
//	[data block 0] ... [data block N-1]
//	[encoded block metas][maxTs (8)]
//	[metaOffset (4)]
//	[bloom filter bytes]
//	[bloomOffset (4)]
package table

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/dgryski/go-farm"

	"github.com/siltdb/silt/block"
	"github.com/siltdb/silt/cache"
	"github.com/siltdb/silt/key"
)

var (
	// ErrCorrupted indicates a truncated or malformed table file.
	ErrCorrupted = errors.New("table: corrupted table file")
	// ErrEmptyTable indicates a table without any block metas.
	ErrEmptyTable = errors.New("table: table has no blocks")
)

const (
	trailerFieldSize = 4
	maxTsFooterSize  = 8
)

// Table is an open SSTable.
type Table struct {
	file       File
	metas      []BlockMeta
	metaOffset uint32
	bloom      *Bloom
	id         uint32
	blockCache cache.BlockCache
	firstKey   key.Key
	lastKey    key.Key
	maxTs      uint64
}

// Open reads a table's trailer, bloom filter, and block metas from file.
// It proceeds backward from the end of the file and fails atomically on any
// out-of-bounds read, malformed section, or empty meta sequence. The cache
// may be nil.
func Open(id uint32, blockCache cache.BlockCache, file File) (*Table, error) {
	size := file.Size()

	raw, err := readRange(file, size-trailerFieldSize, trailerFieldSize)
	if err != nil {
		return nil, fmt.Errorf("table %d: bloom offset: %w", id, err)
	}
	bloomOffset := int64(binary.LittleEndian.Uint32(raw))
	if bloomOffset < trailerFieldSize || bloomOffset > size-trailerFieldSize {
		return nil, fmt.Errorf("%w: bloom offset %d in file of %d bytes", ErrCorrupted, bloomOffset, size)
	}

	raw, err = readRange(file, bloomOffset, size-trailerFieldSize-bloomOffset)
	if err != nil {
		return nil, fmt.Errorf("table %d: bloom section: %w", id, err)
	}
	bloom, err := DecodeBloom(raw)
	if err != nil {
		return nil, fmt.Errorf("table %d: %w", id, err)
	}

	raw, err = readRange(file, bloomOffset-trailerFieldSize, trailerFieldSize)
	if err != nil {
		return nil, fmt.Errorf("table %d: meta offset: %w", id, err)
	}
	metaOffset := int64(binary.LittleEndian.Uint32(raw))
	if metaOffset > bloomOffset-trailerFieldSize {
		return nil, fmt.Errorf("%w: meta offset %d beyond bloom offset %d", ErrCorrupted, metaOffset, bloomOffset)
	}

	raw, err = readRange(file, metaOffset, bloomOffset-trailerFieldSize-metaOffset)
	if err != nil {
		return nil, fmt.Errorf("table %d: meta section: %w", id, err)
	}
	if len(raw) < maxTsFooterSize {
		return nil, fmt.Errorf("%w: meta section of %d bytes", ErrCorrupted, len(raw))
	}
	maxTs := binary.LittleEndian.Uint64(raw[len(raw)-maxTsFooterSize:])
	metas, err := DecodeBlockMetas(raw[:len(raw)-maxTsFooterSize])
	if err != nil {
		return nil, fmt.Errorf("table %d: %w", id, err)
	}
	if len(metas) == 0 {
		return nil, fmt.Errorf("table %d: %w", id, ErrEmptyTable)
	}

	return &Table{
		file:       file,
		metas:      metas,
		metaOffset: uint32(metaOffset),
		bloom:      bloom,
		id:         id,
		blockCache: blockCache,
		firstKey:   metas[0].FirstKey,
		lastKey:    metas[len(metas)-1].LastKey,
		maxTs:      maxTs,
	}, nil
}

// ReadBlock reads and decodes block i from disk. The block's length is the
// gap to the next block's offset, or to the meta section for the last block.
func (t *Table) ReadBlock(i int) (*block.Block, error) {
	if i < 0 || i >= len(t.metas) {
		return nil, fmt.Errorf("table %d: block index %d out of range [0,%d)", t.id, i, len(t.metas))
	}
	offset := int64(t.metas[i].Offset)
	next := int64(t.metaOffset)
	if i+1 < len(t.metas) {
		next = int64(t.metas[i+1].Offset)
	}

	raw, err := readRange(t.file, offset, next-offset)
	if err != nil {
		return nil, fmt.Errorf("table %d: block %d: %w", t.id, i, err)
	}
	blk, err := block.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("table %d: block %d: %w", t.id, i, err)
	}
	return blk, nil
}

// ReadBlockCached is ReadBlock through the shared block cache. Without a
// cache it behaves exactly like ReadBlock; with one, concurrent misses for
// the same block perform a single disk read, and read failures propagate
// without being cached.
func (t *Table) ReadBlockCached(i int) (*block.Block, error) {
	if t.blockCache == nil {
		return t.ReadBlock(i)
	}
	if i < 0 || i >= len(t.metas) {
		return nil, fmt.Errorf("table %d: block index %d out of range [0,%d)", t.id, i, len(t.metas))
	}
	return t.blockCache.GetOrLoad(
		cache.Key{TableID: t.id, Offset: t.metas[i].Offset},
		func() (*block.Block, error) { return t.ReadBlock(i) },
	)
}

// FindBlockIdx returns the index of the first block whose last key is >= k,
// the candidate block that may contain k. A key equal to a block's last key
// resolves to that block, not the next. The result is len(metas) when every
// block ends before k.
func (t *Table) FindBlockIdx(k key.Key) int {
	return sort.Search(len(t.metas), func(i int) bool {
		return t.metas[i].LastKey.Compare(k) >= 0
	})
}

// RangeOverlap reports whether the table's [firstKey, lastKey] span
// intersects the user-key range (lower, upper), honoring the exact
// inclusive/exclusive/unbounded semantics of each endpoint.
func (t *Table) RangeOverlap(lower, upper key.Bound) bool {
	var lowerOut bool
	switch lower.Kind {
	case key.Included:
		lowerOut = bytes.Compare(lower.User, t.lastKey.User) > 0
	case key.Excluded:
		lowerOut = bytes.Compare(lower.User, t.lastKey.User) >= 0
	}

	var upperOut bool
	switch upper.Kind {
	case key.Included:
		upperOut = bytes.Compare(upper.User, t.firstKey.User) < 0
	case key.Excluded:
		upperOut = bytes.Compare(upper.User, t.firstKey.User) <= 0
	}

	return !lowerOut && !upperOut
}

// MayContain reports whether userKey may be present, per the bloom filter.
func (t *Table) MayContain(userKey []byte) bool {
	if t.bloom == nil {
		return true
	}
	return t.bloom.MayContain(farm.Fingerprint32(userKey))
}

// ID returns the table's stable identifier.
func (t *Table) ID() uint32 {
	return t.id
}

// Size returns the table file's size in bytes.
func (t *Table) Size() int64 {
	return t.file.Size()
}

// NumBlocks returns the number of data blocks.
func (t *Table) NumBlocks() int {
	return len(t.metas)
}

// FirstKey returns the smallest key in the table.
func (t *Table) FirstKey() key.Key {
	return t.firstKey
}

// LastKey returns the largest key in the table.
func (t *Table) LastKey() key.Key {
	return t.lastKey
}

// MaxTs returns the highest version timestamp stored in the table.
func (t *Table) MaxTs() uint64 {
	return t.maxTs
}

// Close releases the underlying file handle.
func (t *Table) Close() error {
	return t.file.Close()
}
