// Package block implements the fixed storage unit inside an SSTable: a
// sorted run of key/value entries with an offset trailer for in-block
// binary search.
//
// Encoded layout (little-endian):
//
//	entry:   keyLen (2) | user key | ts (8) | valueLen (2) | value
//	trailer: offset (2) per entry | entryCount (2)
package block

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/siltdb/silt/key"
)

// ErrCorrupted indicates the block bytes do not decode to a valid block.
var ErrCorrupted = errors.New("block: corrupted block data")

const (
	sizeOfU16   = 2
	sizeOfTs    = 8
	entryHeader = sizeOfU16 + sizeOfTs + sizeOfU16
)

// Block is an immutable decoded block.
type Block struct {
	data    []byte
	offsets []uint16
}

// Encode serializes the block: entry data, the offset trailer, then the
// entry count.
func (b *Block) Encode() []byte {
	buf := make([]byte, 0, len(b.data)+(len(b.offsets)+1)*sizeOfU16)
	buf = append(buf, b.data...)
	for _, off := range b.offsets {
		buf = binary.LittleEndian.AppendUint16(buf, off)
	}
	return binary.LittleEndian.AppendUint16(buf, uint16(len(b.offsets)))
}

// Decode parses an encoded block. It is the exact inverse of Encode and
// validates the trailer before accepting the block.
func Decode(raw []byte) (*Block, error) {
	if len(raw) < sizeOfU16 {
		return nil, fmt.Errorf("%w: %d bytes", ErrCorrupted, len(raw))
	}
	n := int(binary.LittleEndian.Uint16(raw[len(raw)-sizeOfU16:]))
	trailer := (n + 1) * sizeOfU16
	if trailer > len(raw) {
		return nil, fmt.Errorf("%w: trailer for %d entries exceeds %d bytes", ErrCorrupted, n, len(raw))
	}

	dataEnd := len(raw) - trailer
	offsets := make([]uint16, n)
	for i := 0; i < n; i++ {
		off := binary.LittleEndian.Uint16(raw[dataEnd+i*sizeOfU16:])
		if int(off) > dataEnd {
			return nil, fmt.Errorf("%w: entry offset %d beyond data section", ErrCorrupted, off)
		}
		offsets[i] = off
	}

	return &Block{data: raw[:dataEnd], offsets: offsets}, nil
}

// NumEntries returns the number of entries stored in the block.
func (b *Block) NumEntries() int {
	return len(b.offsets)
}

// Size returns the in-memory footprint of the decoded block in bytes.
func (b *Block) Size() int {
	return len(b.data) + len(b.offsets)*sizeOfU16
}

// entryAt decodes the entry starting at offset idx. The returned slices
// alias the block's data.
func (b *Block) entryAt(i int) (key.Key, []byte, error) {
	off := int(b.offsets[i])
	data := b.data
	if off+sizeOfU16 > len(data) {
		return key.Key{}, nil, ErrCorrupted
	}
	keyLen := int(binary.LittleEndian.Uint16(data[off:]))
	off += sizeOfU16
	if off+keyLen+sizeOfTs+sizeOfU16 > len(data) {
		return key.Key{}, nil, ErrCorrupted
	}
	user := data[off : off+keyLen]
	off += keyLen
	ts := binary.BigEndian.Uint64(data[off : off+sizeOfTs])
	off += sizeOfTs
	valLen := int(binary.LittleEndian.Uint16(data[off:]))
	off += sizeOfU16
	if off+valLen > len(data) {
		return key.Key{}, nil, ErrCorrupted
	}
	return key.New(user, ts), data[off : off+valLen], nil
}

// FirstKey returns the first key in the block.
func (b *Block) FirstKey() (key.Key, error) {
	if len(b.offsets) == 0 {
		return key.Key{}, ErrCorrupted
	}
	k, _, err := b.entryAt(0)
	return k, err
}
