package table

import (
	"encoding/binary"
	"fmt"

	"github.com/dgryski/go-farm"

	"github.com/siltdb/silt/block"
	"github.com/siltdb/silt/cache"
	"github.com/siltdb/silt/key"
)

const defaultBloomFalsePositiveRate = 0.01

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithBlockSize sets the target encoded size of each data block.
func WithBlockSize(size int) BuilderOption {
	return func(b *Builder) {
		b.blockSize = size
	}
}

// WithBloomFalsePositiveRate sets the bloom filter's target false positive
// rate.
func WithBloomFalsePositiveRate(rate float64) BuilderOption {
	return func(b *Builder) {
		b.bloomFPR = rate
	}
}

// Builder assembles an SSTable from keys added in composite-key order.
type Builder struct {
	blockSize int
	bloomFPR  float64

	data         []byte
	metas        []BlockMeta
	blockBuilder *block.Builder
	keyHashes    []uint32
	maxTs        uint64
}

// NewBuilder creates a Builder with the default 4KiB block size and 1%
// bloom false positive rate.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		blockSize: block.DefaultBlockSize,
		bloomFPR:  defaultBloomFalsePositiveRate,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.blockBuilder = block.NewBuilder(b.blockSize)
	return b
}

// Add appends an entry. Keys must arrive in composite-key order.
func (b *Builder) Add(k key.Key, value []byte) {
	b.keyHashes = append(b.keyHashes, farm.Fingerprint32(k.User))
	if k.Ts > b.maxTs {
		b.maxTs = k.Ts
	}

	if b.blockBuilder.Add(k, value) {
		return
	}
	b.finishBlock()
	// A fresh block always admits its first entry.
	b.blockBuilder.Add(k, value)
}

func (b *Builder) finishBlock() {
	if b.blockBuilder.Empty() {
		return
	}
	b.metas = append(b.metas, BlockMeta{
		Offset:   uint32(len(b.data)),
		FirstKey: b.blockBuilder.FirstKey(),
		LastKey:  b.blockBuilder.LastKey(),
	})
	b.data = append(b.data, b.blockBuilder.Build().Encode()...)
	b.blockBuilder = block.NewBuilder(b.blockSize)
}

// EstimatedSize returns the bytes of finished data blocks so far, used by
// the flush scheduler to decide when a table is large enough.
func (b *Builder) EstimatedSize() int {
	return len(b.data)
}

// Build writes the table to path and returns it opened with the given id
// and cache.
func (b *Builder) Build(id uint32, blockCache cache.BlockCache, path string) (*Table, error) {
	b.finishBlock()
	if len(b.metas) == 0 {
		return nil, fmt.Errorf("table %d: %w", id, ErrEmptyTable)
	}

	buf := b.data
	metaOffset := uint32(len(buf))
	buf = EncodeBlockMetas(b.metas, buf)
	buf = binary.LittleEndian.AppendUint64(buf, b.maxTs)
	buf = binary.LittleEndian.AppendUint32(buf, metaOffset)

	bloomOffset := uint32(len(buf))
	bloom := BuildBloom(b.keyHashes, BloomBitsPerKey(len(b.keyHashes), b.bloomFPR))
	buf = bloom.Encode(buf)
	buf = binary.LittleEndian.AppendUint32(buf, bloomOffset)

	file, err := CreateFile(path, buf)
	if err != nil {
		return nil, err
	}

	return &Table{
		file:       file,
		metas:      b.metas,
		metaOffset: metaOffset,
		bloom:      bloom,
		id:         id,
		blockCache: blockCache,
		firstKey:   b.metas[0].FirstKey,
		lastKey:    b.metas[len(b.metas)-1].LastKey,
		maxTs:      b.maxTs,
	}, nil
}
