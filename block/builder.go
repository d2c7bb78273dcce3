package block

import (
	"encoding/binary"

	"github.com/siltdb/silt/key"
)

// DefaultBlockSize is the target encoded size of a data block.
const DefaultBlockSize = 4096

// Builder assembles a block from keys added in sorted order.
type Builder struct {
	data      []byte
	offsets   []uint16
	blockSize int
	firstKey  key.Key
	lastKey   key.Key
}

// NewBuilder creates a builder targeting blockSize encoded bytes. Sizes <= 0
// fall back to DefaultBlockSize.
func NewBuilder(blockSize int) *Builder {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &Builder{blockSize: blockSize}
}

func (b *Builder) estimatedSize() int {
	return len(b.data) + (len(b.offsets)+1)*sizeOfU16
}

// Add appends an entry. It returns false when the block is full; the first
// entry is always admitted regardless of size.
func (b *Builder) Add(k key.Key, value []byte) bool {
	entrySize := entryHeader + len(k.User) + len(value)
	if !b.Empty() && b.estimatedSize()+entrySize+sizeOfU16 > b.blockSize {
		return false
	}

	b.offsets = append(b.offsets, uint16(len(b.data)))
	b.data = binary.LittleEndian.AppendUint16(b.data, uint16(len(k.User)))
	b.data = append(b.data, k.User...)
	b.data = binary.BigEndian.AppendUint64(b.data, k.Ts)
	b.data = binary.LittleEndian.AppendUint16(b.data, uint16(len(value)))
	b.data = append(b.data, value...)

	if b.firstKey.IsZero() {
		b.firstKey = k.Clone()
	}
	b.lastKey = k.Clone()
	return true
}

// Empty reports whether no entries have been added.
func (b *Builder) Empty() bool {
	return len(b.offsets) == 0
}

// FirstKey returns the first key added to the block.
func (b *Builder) FirstKey() key.Key {
	return b.firstKey
}

// LastKey returns the most recent key added to the block.
func (b *Builder) LastKey() key.Key {
	return b.lastKey
}

// Build finalizes the builder into an immutable block.
func (b *Builder) Build() *Block {
	return &Block{data: b.data, offsets: b.offsets}
}
