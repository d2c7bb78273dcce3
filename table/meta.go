package table

import (
	"encoding/binary"
	"fmt"

	"github.com/siltdb/silt/key"
)

// BlockMeta describes one data block: its byte offset in the file and the
// inclusive key range it covers. Across a table's meta sequence the ranges
// are non-overlapping and strictly increasing.
type BlockMeta struct {
	Offset   uint32
	FirstKey key.Key
	LastKey  key.Key
}

// EncodeBlockMetas appends the encoded meta sequence to dst. Each entry is
// the 4-byte block offset, then the length-prefixed raw first key, then the
// length-prefixed raw last key, with no separators. Integer fields are
// little-endian.
func EncodeBlockMetas(metas []BlockMeta, dst []byte) []byte {
	for _, m := range metas {
		dst = binary.LittleEndian.AppendUint32(dst, m.Offset)
		dst = binary.LittleEndian.AppendUint32(dst, uint32(m.FirstKey.RawLen()))
		dst = m.FirstKey.AppendRaw(dst)
		dst = binary.LittleEndian.AppendUint32(dst, uint32(m.LastKey.RawLen()))
		dst = m.LastKey.AppendRaw(dst)
	}
	return dst
}

// DecodeBlockMetas parses an encoded meta sequence, consuming the buffer
// until exhausted. It is the exact inverse of EncodeBlockMetas; a buffer
// that does not decode cleanly to completion is corrupt.
func DecodeBlockMetas(buf []byte) ([]BlockMeta, error) {
	var metas []BlockMeta
	for len(buf) > 0 {
		if len(buf) < 8 {
			return nil, fmt.Errorf("%w: truncated block meta header", ErrCorrupted)
		}
		offset := binary.LittleEndian.Uint32(buf)
		buf = buf[4:]

		firstKey, rest, err := decodeMetaKey(buf)
		if err != nil {
			return nil, fmt.Errorf("%w: first key: %w", ErrCorrupted, err)
		}
		buf = rest

		lastKey, rest, err := decodeMetaKey(buf)
		if err != nil {
			return nil, fmt.Errorf("%w: last key: %w", ErrCorrupted, err)
		}
		buf = rest

		metas = append(metas, BlockMeta{
			Offset:   offset,
			FirstKey: firstKey,
			LastKey:  lastKey,
		})
	}
	return metas, nil
}

func decodeMetaKey(buf []byte) (key.Key, []byte, error) {
	if len(buf) < 4 {
		return key.Key{}, nil, fmt.Errorf("missing key length")
	}
	keyLen := int(binary.LittleEndian.Uint32(buf))
	buf = buf[4:]
	if len(buf) < keyLen {
		return key.Key{}, nil, fmt.Errorf("key length %d exceeds remaining %d bytes", keyLen, len(buf))
	}
	k, err := key.DecodeRaw(buf[:keyLen])
	if err != nil {
		return key.Key{}, nil, err
	}
	return k.Clone(), buf[keyLen:], nil
}
