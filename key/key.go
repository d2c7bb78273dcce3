// Package key defines the composite keys stored by the engine: a user key
// plus a version timestamp. Ordering is user key ascending, then timestamp
// descending, so the newest version of a key sorts first.
package key

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// TsMax is the highest possible version timestamp. Seeking with TsMax lands
// on the newest version of a user key.
const TsMax = ^uint64(0)

// ErrTooShort indicates a raw key buffer without room for the timestamp tag.
var ErrTooShort = errors.New("key: raw key too short")

// Key is a versioned key. A zero-length User slice is the iterator
// exhaustion sentinel engine-wide; it is never a legitimate stored key.
type Key struct {
	User []byte
	Ts   uint64
}

// New returns a Key over user with version ts. The slice is retained, not
// copied.
func New(user []byte, ts uint64) Key {
	return Key{User: user, Ts: ts}
}

// Compare orders keys by user key ascending, then timestamp descending.
func (k Key) Compare(other Key) int {
	if c := bytes.Compare(k.User, other.User); c != 0 {
		return c
	}
	switch {
	case k.Ts > other.Ts:
		return -1
	case k.Ts < other.Ts:
		return 1
	default:
		return 0
	}
}

// RawLen returns the encoded length of the key.
func (k Key) RawLen() int {
	return len(k.User) + 8
}

// AppendRaw appends the raw form, user bytes followed by the 8-byte
// big-endian timestamp tag, to dst.
func (k Key) AppendRaw(dst []byte) []byte {
	dst = append(dst, k.User...)
	return binary.BigEndian.AppendUint64(dst, k.Ts)
}

// Raw returns the raw form as a fresh slice.
func (k Key) Raw() []byte {
	return k.AppendRaw(make([]byte, 0, k.RawLen()))
}

// Clone deep-copies the key.
func (k Key) Clone() Key {
	return Key{User: bytes.Clone(k.User), Ts: k.Ts}
}

// IsZero reports whether the key is the empty sentinel.
func (k Key) IsZero() bool {
	return len(k.User) == 0
}

// DecodeRaw splits a raw composite key back into user bytes and timestamp.
// The user slice aliases raw.
func DecodeRaw(raw []byte) (Key, error) {
	if len(raw) < 8 {
		return Key{}, ErrTooShort
	}
	return Key{
		User: raw[:len(raw)-8],
		Ts:   binary.BigEndian.Uint64(raw[len(raw)-8:]),
	}, nil
}
