package blobstore

import (
	"bytes"
	"context"
	"io"
	"slices"
	"strings"
	"sync"
)

// MemoryStore keeps blobs in a map. Stored slices are never mutated after
// they are published, so readers share them without copying.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (m *MemoryStore) Open(_ context.Context, name string) (Blob, error) {
	m.mu.RLock()
	data, ok := m.blobs[name]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return &memoryBlob{r: bytes.NewReader(data), data: data}, nil
}

func (m *MemoryStore) Create(_ context.Context, name string) (WritableBlob, error) {
	return &memoryWritableBlob{store: m, name: name}, nil
}

func (m *MemoryStore) Put(_ context.Context, name string, data []byte) error {
	m.publish(name, bytes.Clone(data))
	return nil
}

func (m *MemoryStore) publish(name string, data []byte) {
	m.mu.Lock()
	m.blobs[name] = data
	m.mu.Unlock()
}

func (m *MemoryStore) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	delete(m.blobs, name)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.blobs))
	for name := range m.blobs {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

type memoryBlob struct {
	r    *bytes.Reader
	data []byte
}

func (b *memoryBlob) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	return b.r.ReadAt(p, off)
}

func (b *memoryBlob) ReadRange(_ context.Context, off, length int64) (io.ReadCloser, error) {
	if off < 0 || off > b.r.Size() {
		return nil, io.EOF
	}
	return io.NopCloser(io.NewSectionReader(b.r, off, length)), nil
}

func (b *memoryBlob) Size() int64            { return b.r.Size() }
func (b *memoryBlob) Bytes() ([]byte, error) { return b.data, nil }
func (b *memoryBlob) Close() error           { return nil }

type memoryWritableBlob struct {
	store *MemoryStore
	name  string
	buf   bytes.Buffer
	done  bool
}

func (w *memoryWritableBlob) Write(p []byte) (int, error) {
	if w.done {
		return 0, io.ErrClosedPipe
	}
	return w.buf.Write(p)
}

func (w *memoryWritableBlob) Sync() error { return nil }

// Close publishes the buffered bytes under the blob's name.
func (w *memoryWritableBlob) Close() error {
	if w.done {
		return nil
	}
	w.done = true
	w.store.publish(w.name, bytes.Clone(w.buf.Bytes()))
	return nil
}

func (w *memoryWritableBlob) Abort() error {
	w.done = true
	w.buf.Reset()
	return nil
}
