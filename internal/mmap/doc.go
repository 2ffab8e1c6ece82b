// Package mmap provides shared memory-mapped views over file regions.
//
// # Overview
//
// A filter file is a small text header followed by a large bit array. The bit
// array is never read into the heap: it is mapped MAP_SHARED so every process
// that maps the same path observes the same page-cache pages. Writes made by
// one process become visible to the others without any message passing.
//
// # Usage
//
//	m, err := mmap.Map(f.Fd(), offset, size, mmap.ReadWrite)
//	if err != nil { ... }
//	defer m.Close()
//
//	data := m.Bytes() // exactly size bytes starting at file offset
//	data[0] |= 1
//	_ = m.Sync()      // msync(MS_SYNC)
//
// The requested offset does not need to be page aligned. Map aligns the
// mapping down to the page boundary and Bytes exposes only the requested
// window.
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2), msync(2), madvise(2)
//   - Windows: CreateFileMapping/MapViewOfFile/FlushViewOfFile (madvise is a no-op)
//
// # Thread Safety
//
// Close is idempotent and protected by an atomic flag. Bytes returns nil after
// Close; callers must not retain slices obtained before Close.
package mmap
