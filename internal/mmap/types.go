package mmap

import "errors"

// AccessPattern provides hints to the kernel about how the data will be accessed.
type AccessPattern int

const (
	// AccessDefault is the default access pattern (no specific advice).
	AccessDefault AccessPattern = iota
	// AccessSequential expects data to be accessed sequentially.
	AccessSequential
	// AccessRandom expects data to be accessed randomly.
	AccessRandom
	// AccessWillNeed expects data to be accessed in the near future.
	AccessWillNeed
	// AccessDontNeed expects data to not be accessed in the near future.
	AccessDontNeed
)

// Mode selects the protection of a mapping.
type Mode int

const (
	// ReadOnly maps pages with PROT_READ.
	ReadOnly Mode = iota
	// ReadWrite maps pages with PROT_READ|PROT_WRITE, shared with the file.
	ReadWrite
)

func (m Mode) String() string {
	if m == ReadWrite {
		return "read-write"
	}
	return "read-only"
}

const (
	// MinAlignment is the smallest alignment ever reported by Alignment.
	MinAlignment = 4096
	// DefaultAlignment is used when the platform does not expose a page size.
	DefaultAlignment = 16384
)

var (
	// ErrClosed is returned when attempting to access a closed mapping.
	ErrClosed = errors.New("mmap: mapping is closed")
	// ErrInvalidSize is returned when the requested size is invalid (e.g. zero or negative).
	ErrInvalidSize = errors.New("mmap: invalid size")
	// ErrInvalidOffset is returned when the offset is invalid (e.g. negative).
	ErrInvalidOffset = errors.New("mmap: invalid offset")
	// ErrReadOnly is returned when syncing a read-only mapping.
	ErrReadOnly = errors.New("mmap: mapping is read-only")
)
