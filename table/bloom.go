package table

import (
	"fmt"
	"math"
)

// Bloom is a probabilistic membership filter over every key in a table.
// A false answer is definitive; a true answer may be a false positive.
type Bloom struct {
	filter []byte
	k      uint8
}

// BloomBitsPerKey sizes the filter for the target false positive rate.
func BloomBitsPerKey(entries int, falsePositiveRate float64) int {
	if entries <= 0 {
		entries = 1
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = 0.01
	}
	size := -1 * float64(entries) * math.Log(falsePositiveRate) / (math.Ln2 * math.Ln2)
	return int(math.Ceil(size / float64(entries)))
}

// BuildBloom constructs a filter from 32-bit key fingerprints using
// bitsPerKey bits per entry and double hashing by delta rotation.
func BuildBloom(keyHashes []uint32, bitsPerKey int) *Bloom {
	k := uint8(float64(bitsPerKey) * 0.69) // ~bits/key * ln(2)
	if k < 1 {
		k = 1
	}
	if k > 30 {
		k = 30
	}

	nBits := len(keyHashes) * bitsPerKey
	if nBits < 64 {
		nBits = 64
	}
	nBytes := (nBits + 7) / 8
	nBits = nBytes * 8
	filter := make([]byte, nBytes)

	for _, h := range keyHashes {
		delta := h>>17 | h<<15
		for i := uint8(0); i < k; i++ {
			bit := h % uint32(nBits)
			filter[bit/8] |= 1 << (bit % 8)
			h += delta
		}
	}

	return &Bloom{filter: filter, k: k}
}

// MayContain reports whether a key with fingerprint h may be in the table.
func (b *Bloom) MayContain(h uint32) bool {
	nBits := uint32(len(b.filter) * 8)
	delta := h>>17 | h<<15
	for i := uint8(0); i < b.k; i++ {
		bit := h % nBits
		if b.filter[bit/8]&(1<<(bit%8)) == 0 {
			return false
		}
		h += delta
	}
	return true
}

// Encode appends the filter bytes followed by the single hash-count byte.
func (b *Bloom) Encode(dst []byte) []byte {
	dst = append(dst, b.filter...)
	return append(dst, b.k)
}

// DecodeBloom parses an encoded filter, the inverse of Encode.
func DecodeBloom(buf []byte) (*Bloom, error) {
	if len(buf) < 2 {
		return nil, fmt.Errorf("%w: bloom filter of %d bytes", ErrCorrupted, len(buf))
	}
	k := buf[len(buf)-1]
	if k == 0 || k > 30 {
		return nil, fmt.Errorf("%w: bloom filter with %d hash functions", ErrCorrupted, k)
	}
	return &Bloom{filter: buf[:len(buf)-1], k: k}, nil
}
