package mmap

import (
	"io"
	"os"
	"sync/atomic"
)

// Mapping represents a memory-mapped file.
// It owns the underlying byte slice and is responsible for unmapping it.
//
// A writable Mapping keeps the backing *os.File open for its lifetime so
// that Remap can grow the file in place without losing the descriptor.
type Mapping struct {
	f      *os.File
	data   []byte
	size   int
	writ   bool
	closed atomic.Bool
	unmap  func([]byte) error
}

// Open maps the file at path into memory read-only.
func Open(path string) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return mapFile(f, false)
}

// OpenWritable opens path for reading and writing and maps it read-write.
// The backing file descriptor is kept open so the mapping can later be
// grown with Remap.
func OpenWritable(path string) (*Mapping, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}

	m, err := mapFile(f, true)
	if err != nil {
		f.Close()
		return nil, err
	}
	m.f = f

	return m, nil
}

func mapFile(f *os.File, writable bool) (*Mapping, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}

	size := fi.Size()
	if size < 0 {
		return nil, ErrInvalidSize
	}
	if size == 0 {
		return &Mapping{data: nil, size: 0, writ: writable}, nil
	}

	data, unmapFunc, err := osMap(f, int(size), writable)
	if err != nil {
		return nil, err
	}

	return &Mapping{
		data:  data,
		size:  int(size),
		writ:  writable,
		unmap: unmapFunc,
	}, nil
}

// Close unmaps the memory and closes the backing file (if any). It is idempotent.
func (m *Mapping) Close() error {
	if m.closed.Swap(true) {
		return nil // Already closed
	}

	var err error
	if m.unmap != nil && m.data != nil {
		err = m.unmap(m.data)
	}
	if m.f != nil {
		if cerr := m.f.Close(); err == nil {
			err = cerr
		}
	}

	return err
}

// Bytes returns the underlying byte slice. The slice is valid only until
// Close or Remap is called; callers holding a slice across either must copy
// it first.
func (m *Mapping) Bytes() []byte {
	if m.closed.Load() {
		return nil
	}
	return m.data
}

// Size returns the size of the mapping in bytes.
func (m *Mapping) Size() int {
	return m.size
}

// Writable reports whether the mapping was opened read-write.
func (m *Mapping) Writable() bool {
	return m.writ
}

// Advise provides hints to the kernel about how the memory will be accessed.
func (m *Mapping) Advise(pattern AccessPattern) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if m.data == nil {
		return nil
	}
	return osAdvise(m.data, pattern)
}

// Sync flushes modified pages to disk. async requests MS_ASYNC instead of
// MS_SYNC (best-effort; used for the mutation counter per spec.md §5).
func (m *Mapping) Sync(async bool) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if !m.writ || m.data == nil {
		return nil
	}
	return osSync(m.data, async)
}

// Remap grows the backing file to newSize (must be >= current size),
// remaps it, and replaces the mapping's view. The caller must hold
// whatever lock protects concurrent readers of Bytes()/Size() — Remap
// invalidates any slice previously returned by Bytes().
//
// Remap is only valid on mappings opened with OpenWritable.
func (m *Mapping) Remap(newSize int) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if !m.writ || m.f == nil {
		return ErrOutOfBounds
	}
	if newSize < m.size {
		return ErrInvalidSize
	}

	if m.data != nil {
		if err := m.unmap(m.data); err != nil {
			return err
		}
		m.data = nil
	}

	if err := m.f.Truncate(int64(newSize)); err != nil {
		return err
	}

	if newSize == 0 {
		m.size = 0
		return nil
	}

	data, unmapFunc, err := osMap(m.f, newSize, true)
	if err != nil {
		return err
	}

	m.data = data
	m.unmap = unmapFunc
	m.size = newSize

	return nil
}

// ReadAt implements io.ReaderAt.
func (m *Mapping) ReadAt(p []byte, off int64) (n int, err error) {
	if m.closed.Load() {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, ErrInvalidOffset
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n = copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
