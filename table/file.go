package table

import (
	"fmt"
	"io"
	"os"
)

// File is an immutable byte-addressable handle with a fixed logical size.
type File interface {
	io.ReaderAt
	Size() int64
	Close() error
}

// DiskFile is a File backed by a read-only os.File.
type DiskFile struct {
	f    *os.File
	size int64
}

// OpenFile opens an existing table file read-only.
func OpenFile(path string) (*DiskFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("table: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("table: stat %s: %w", path, err)
	}
	return &DiskFile{f: f, size: info.Size()}, nil
}

// CreateFile writes data to path, fsyncs it, and reopens it read-only.
func CreateFile(path string, data []byte) (*DiskFile, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("table: create %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return nil, fmt.Errorf("table: write %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, fmt.Errorf("table: sync %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("table: close %s: %w", path, err)
	}
	return OpenFile(path)
}

// ReadAt implements io.ReaderAt.
func (d *DiskFile) ReadAt(p []byte, off int64) (int, error) {
	return d.f.ReadAt(p, off)
}

// Size returns the file's logical size.
func (d *DiskFile) Size() int64 {
	return d.size
}

// Close closes the underlying file.
func (d *DiskFile) Close() error {
	return d.f.Close()
}

// readRange reads exactly [off, off+length) from file, failing if the range
// exceeds the file bounds.
func readRange(f File, off, length int64) ([]byte, error) {
	if off < 0 || length < 0 || off+length > f.Size() {
		return nil, fmt.Errorf("%w: read [%d,%d) beyond file size %d", ErrCorrupted, off, off+length, f.Size())
	}
	buf := make([]byte, length)
	n, err := f.ReadAt(buf, off)
	if err != nil && !(err == io.EOF && n == len(buf)) {
		return nil, fmt.Errorf("table: read at %d: %w", off, err)
	}
	return buf, nil
}
