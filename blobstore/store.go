package blobstore

import (
	"bytes"
	"context"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies `errors.Is(err, ErrNotFound)`.
// The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// BlobStore stores immutable named blobs (filter archives).
// Implementations must be safe for concurrent use.
type BlobStore interface {
	// Open opens a blob for reading.
	Open(ctx context.Context, name string) (Blob, error)
	// Create starts a streaming write. The blob becomes visible when the
	// returned writer is closed without error.
	Create(ctx context.Context, name string) (WritableBlob, error)
	// Put writes a blob atomically.
	Put(ctx context.Context, name string, data []byte) error
	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
	// List returns the sorted names of all blobs with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Blob is a read-only handle to a data blob.
type Blob interface {
	io.Closer
	// ReadAt reads len(p) bytes starting at off.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)
	// ReadRange returns a reader for length bytes starting at off.
	ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error)
	// Size returns the size of the blob in bytes.
	Size() int64
}

// ContentType is attached to archives uploaded to object stores.
const ContentType = "application/x-bloomfile-archive"

// WritableBlob is a blob being written. Close publishes it; Abort discards
// everything written so far and leaves no blob behind.
type WritableBlob interface {
	io.WriteCloser
	Sync() error
	Abort() error
}

// Mappable is implemented by blobs whose contents are already in memory.
// The slice is valid until the Blob is closed.
type Mappable interface {
	Bytes() ([]byte, error)
}

// NewReader returns a sequential reader over the whole blob. Mappable blobs
// are read in place.
func NewReader(ctx context.Context, b Blob) (io.ReadCloser, error) {
	if m, ok := b.(Mappable); ok {
		data, err := m.Bytes()
		if err != nil {
			return nil, err
		}
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	if b.Size() == 0 {
		return io.NopCloser(eofReader{}), nil
	}
	return b.ReadRange(ctx, 0, b.Size())
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }
