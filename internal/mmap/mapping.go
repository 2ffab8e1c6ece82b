package mmap

import (
	"sync/atomic"
)

// Mapping represents a memory-mapped window of a file.
// It owns the underlying byte slice and is responsible for unmapping it.
type Mapping struct {
	// data covers [base, offset+size) of the file; base is page aligned.
	data   []byte
	lead   int
	size   int
	mode   Mode
	closed atomic.Bool
	// unmap is the platform-specific function to unmap the memory.
	unmap func([]byte) error
}

// Map maps size bytes of the file referenced by fd, starting at offset.
//
// The mapping is MAP_SHARED: with ReadWrite, stores are written back to the
// file through the page cache and are visible to every other mapping of it.
func Map(fd uintptr, offset int64, size int, mode Mode) (*Mapping, error) {
	if offset < 0 {
		return nil, ErrInvalidOffset
	}
	if size <= 0 {
		return nil, ErrInvalidSize
	}

	page := int64(PageSize())
	base := offset - offset%page
	lead := int(offset - base)

	data, unmapFunc, err := osMap(fd, base, lead+size, mode)
	if err != nil {
		return nil, err
	}

	m := &Mapping{
		data:  data,
		lead:  lead,
		size:  size,
		mode:  mode,
		unmap: unmapFunc,
	}
	return m, nil
}

// Close unmaps the memory. It is idempotent.
func (m *Mapping) Close() error {
	if m.closed.Swap(true) {
		return nil // Already closed
	}
	if m.unmap != nil && m.data != nil {
		return m.unmap(m.data)
	}
	return nil
}

// Closed reports whether Close has been called.
func (m *Mapping) Closed() bool {
	return m.closed.Load()
}

// Bytes returns the requested window of the file.
// Warning: The slice is valid only until Close() is called.
func (m *Mapping) Bytes() []byte {
	if m.closed.Load() {
		return nil
	}
	return m.data[m.lead : m.lead+m.size : m.lead+m.size]
}

// Size returns the size of the requested window in bytes.
func (m *Mapping) Size() int {
	return m.size
}

// Mode returns the protection the mapping was created with.
func (m *Mapping) Mode() Mode {
	return m.mode
}

// Advise provides hints to the kernel about how the memory will be accessed.
func (m *Mapping) Advise(pattern AccessPattern) error {
	if m.closed.Load() {
		return ErrClosed
	}
	return osAdvise(m.data, pattern)
}

// Sync flushes dirty pages of the mapping to the file and blocks until the
// write-back completes.
func (m *Mapping) Sync() error {
	if m.closed.Load() {
		return ErrClosed
	}
	if m.mode != ReadWrite {
		return ErrReadOnly
	}
	return osSync(m.data)
}

// Alignment returns the byte alignment used for mapped data regions: the OS
// page size clamped to MinAlignment, or DefaultAlignment when the platform
// reports no page size.
func Alignment() int64 {
	ps := PageSize()
	if ps <= 0 {
		return DefaultAlignment
	}
	return int64(max(ps, MinAlignment))
}

// PageSize returns the granularity mapping offsets must be aligned to.
func PageSize() int {
	return osPageSize()
}
