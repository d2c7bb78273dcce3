package table

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siltdb/silt/cache"
	"github.com/siltdb/silt/key"
)

func buildTestTable(t *testing.T, n int, opts ...BuilderOption) *Table {
	t.Helper()
	b := NewBuilder(opts...)
	for i := 0; i < n; i++ {
		k := key.New([]byte(fmt.Sprintf("key%05d", i)), uint64(i+1))
		b.Add(k, []byte(fmt.Sprintf("value%05d", i)))
	}
	tbl, err := b.Build(1, nil, filepath.Join(t.TempDir(), "1.sst"))
	require.NoError(t, err)
	t.Cleanup(func() { tbl.Close() })
	return tbl
}

func TestBuildAndOpenRoundTrip(t *testing.T) {
	const n = 500
	built := buildTestTable(t, n, WithBlockSize(256))
	require.Greater(t, built.NumBlocks(), 1)

	path := filepath.Join(t.TempDir(), "2.sst")
	b := NewBuilder(WithBlockSize(256))
	for i := 0; i < n; i++ {
		b.Add(key.New([]byte(fmt.Sprintf("key%05d", i)), uint64(i+1)), []byte(fmt.Sprintf("value%05d", i)))
	}
	_, err := b.Build(2, nil, path)
	require.NoError(t, err)

	file, err := OpenFile(path)
	require.NoError(t, err)
	opened, err := Open(2, nil, file)
	require.NoError(t, err)
	defer opened.Close()

	assert.Equal(t, built.NumBlocks(), opened.NumBlocks())
	assert.Equal(t, built.FirstKey().User, opened.FirstKey().User)
	assert.Equal(t, built.LastKey().User, opened.LastKey().User)
	assert.Equal(t, uint64(n), opened.MaxTs())

	it := NewIterator(opened)
	require.NoError(t, it.SeekToFirst())
	for i := 0; i < n; i++ {
		require.True(t, it.Valid(), "entry %d", i)
		assert.Equal(t, []byte(fmt.Sprintf("key%05d", i)), it.Key().User)
		assert.Equal(t, []byte(fmt.Sprintf("value%05d", i)), it.Value())
		require.NoError(t, it.Next())
	}
	assert.False(t, it.Valid())
}

func TestOpen_Corrupted(t *testing.T) {
	b := NewBuilder()
	b.Add(key.New([]byte("a"), 1), []byte("v"))
	path := filepath.Join(t.TempDir(), "3.sst")
	tbl, err := b.Build(3, nil, path)
	require.NoError(t, err)
	require.NoError(t, tbl.Close())

	full, err := OpenFile(path)
	require.NoError(t, err)
	defer full.Close()

	// Too short to even hold the trailer.
	for _, cut := range []int64{1, 3} {
		_, err := Open(3, nil, truncatedFile{File: full, size: cut})
		assert.Error(t, err, "truncated to %d bytes", cut)
	}

	// A bloom offset pointing past the end of the file.
	raw := make([]byte, full.Size())
	_, err = full.ReadAt(raw, 0)
	require.NoError(t, err)
	badBloomOffset := append(append([]byte(nil), raw[:len(raw)-4]...), 0xff, 0xff, 0xff, 0xff)
	_, err = Open(3, nil, &rangeFile{data: badBloomOffset})
	assert.ErrorIs(t, err, ErrCorrupted)

	// A meta offset past the bloom section.
	bloomOffset := int(uint32(raw[len(raw)-4]) | uint32(raw[len(raw)-3])<<8 | uint32(raw[len(raw)-2])<<16 | uint32(raw[len(raw)-1])<<24)
	badMetaOffset := append([]byte(nil), raw...)
	copy(badMetaOffset[bloomOffset-4:bloomOffset], []byte{0xff, 0xff, 0xff, 0xff})
	_, err = Open(3, nil, &rangeFile{data: badMetaOffset})
	assert.ErrorIs(t, err, ErrCorrupted)
}

func TestOpen_EmptyBuilderRejected(t *testing.T) {
	b := NewBuilder()
	_, err := b.Build(4, nil, filepath.Join(t.TempDir(), "4.sst"))
	assert.ErrorIs(t, err, ErrEmptyTable)
}

// truncatedFile reports a shorter logical size than the underlying file.
type truncatedFile struct {
	File
	size int64
}

func (f truncatedFile) Size() int64 { return f.size }

// rangeFile serves reads from a byte slice and records requested ranges.
type rangeFile struct {
	data  []byte
	reads [][2]int64
}

func (f *rangeFile) ReadAt(p []byte, off int64) (int, error) {
	f.reads = append(f.reads, [2]int64{off, off + int64(len(p))})
	return copy(p, f.data[off:]), nil
}

func (f *rangeFile) Size() int64 { return int64(len(f.data)) }
func (f *rangeFile) Close() error { return nil }

func TestReadBlock_LengthFromNextOffset(t *testing.T) {
	// Two blocks covering ["a","c"] and ["d","f"], with the meta section
	// starting at 200: block 1's length must be recovered as 200-100.
	file := &rangeFile{data: make([]byte, 300)}
	tbl := &Table{
		file: file,
		metas: []BlockMeta{
			{Offset: 0, FirstKey: key.New([]byte("a"), 1), LastKey: key.New([]byte("c"), 1)},
			{Offset: 100, FirstKey: key.New([]byte("d"), 1), LastKey: key.New([]byte("f"), 1)},
		},
		metaOffset: 200,
		firstKey:   key.New([]byte("a"), 1),
		lastKey:    key.New([]byte("f"), 1),
	}

	// The raw bytes are not a decodable block; only the requested range
	// matters here.
	_, _ = tbl.ReadBlock(1)
	require.NotEmpty(t, file.reads)
	assert.Equal(t, [2]int64{100, 200}, file.reads[len(file.reads)-1])

	_, err := tbl.ReadBlock(2)
	assert.Error(t, err)
	_, err = tbl.ReadBlock(-1)
	assert.Error(t, err)
}

func TestFindBlockIdx(t *testing.T) {
	tbl := &Table{
		metas: []BlockMeta{
			{Offset: 0, FirstKey: key.New([]byte("a"), 1), LastKey: key.New([]byte("c"), 1)},
			{Offset: 100, FirstKey: key.New([]byte("d"), 1), LastKey: key.New([]byte("f"), 1)},
		},
	}

	assert.Equal(t, 1, tbl.FindBlockIdx(key.New([]byte("e"), key.TsMax)))
	assert.Equal(t, 0, tbl.FindBlockIdx(key.New([]byte("a"), key.TsMax)))
	// A key equal to a block's last key resolves to that block.
	assert.Equal(t, 0, tbl.FindBlockIdx(key.New([]byte("c"), 1)))
	assert.Equal(t, 1, tbl.FindBlockIdx(key.New([]byte("f"), 1)))
	// Beyond the table.
	assert.Equal(t, 2, tbl.FindBlockIdx(key.New([]byte("g"), key.TsMax)))
}

func TestRangeOverlap(t *testing.T) {
	tbl := &Table{
		firstKey: key.New([]byte("a"), 1),
		lastKey:  key.New([]byte("f"), 1),
	}

	cases := []struct {
		name         string
		lower, upper key.Bound
		want         bool
	}{
		{"unbounded both", key.NoBound(), key.NoBound(), true},
		{"inside", key.Include([]byte("b")), key.Include([]byte("c")), true},
		{"strictly above", key.Include([]byte("g")), key.NoBound(), false},
		{"strictly below", key.NoBound(), key.Include([]byte("0")), false},
		{"excluded lower at last key", key.Exclude([]byte("f")), key.NoBound(), false},
		{"included lower at last key", key.Include([]byte("f")), key.NoBound(), true},
		{"excluded upper at first key", key.NoBound(), key.Exclude([]byte("a")), false},
		{"included upper at first key", key.NoBound(), key.Include([]byte("a")), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tbl.RangeOverlap(tc.lower, tc.upper))
		})
	}
}

func TestReadBlockCached_SharesOneRead(t *testing.T) {
	c := cache.NewLRUBlockCache(1 << 20)

	b := NewBuilder(WithBlockSize(256))
	for i := 0; i < 200; i++ {
		b.Add(key.New([]byte(fmt.Sprintf("key%05d", i)), 1), []byte("v"))
	}
	tbl, err := b.Build(9, c, filepath.Join(t.TempDir(), "9.sst"))
	require.NoError(t, err)
	defer tbl.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			blk, err := tbl.ReadBlockCached(0)
			assert.NoError(t, err)
			assert.NotNil(t, blk)
		}()
	}
	wg.Wait()

	// Subsequent reads are hits.
	before, _ := c.Stats()
	_, err = tbl.ReadBlockCached(0)
	require.NoError(t, err)
	after, _ := c.Stats()
	assert.Greater(t, after, before)
}

func TestMayContain(t *testing.T) {
	tbl := buildTestTable(t, 100)

	for i := 0; i < 100; i++ {
		assert.True(t, tbl.MayContain([]byte(fmt.Sprintf("key%05d", i))))
	}

	misses := 0
	for i := 0; i < 100; i++ {
		if !tbl.MayContain([]byte(fmt.Sprintf("nope%05d", i))) {
			misses++
		}
	}
	assert.Greater(t, misses, 90)
}

func TestIterator_SeekToKey(t *testing.T) {
	tbl := buildTestTable(t, 300, WithBlockSize(256))

	it := NewIterator(tbl)
	require.NoError(t, it.SeekToKey(key.New([]byte("key00123"), key.TsMax)))
	require.True(t, it.Valid())
	assert.Equal(t, []byte("key00123"), it.Key().User)

	// Between keys: lands on the successor.
	require.NoError(t, it.SeekToKey(key.New([]byte("key001235"), key.TsMax)))
	require.True(t, it.Valid())
	assert.Equal(t, []byte("key00124"), it.Key().User)

	// Past the end.
	require.NoError(t, it.SeekToKey(key.New([]byte("zzz"), key.TsMax)))
	assert.False(t, it.Valid())
}
