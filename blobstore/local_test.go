package blobstore

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBlobStore_Lifecycle(t *testing.T) {
	tmpDir := t.TempDir()
	store := NewLocalStore(tmpDir)

	ctx := context.Background()

	// 1. Create a blob
	blobName := "filters/hibp-001.bfa"
	data := []byte("hello world, this is a test blob for bloomfile")

	w, err := store.Create(ctx, blobName)
	require.NoError(t, err)

	n, err := w.Write(data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)

	// Not visible before Close.
	_, err = os.Stat(filepath.Join(tmpDir, "filters", "hibp-001.bfa"))
	require.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, w.Close())

	_, err = os.Stat(filepath.Join(tmpDir, "filters", "hibp-001.bfa"))
	require.NoError(t, err)

	// 2. Open and ReadAt
	blob, err := store.Open(ctx, blobName)
	require.NoError(t, err)
	defer blob.Close()

	require.Equal(t, int64(len(data)), blob.Size())

	buf := make([]byte, 5)
	n, err = blob.ReadAt(ctx, buf, 6) // "world"
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "world", string(buf))

	// 3. ReadRange
	rangeReader, err := blob.ReadRange(ctx, 13, 4)
	require.NoError(t, err)
	defer rangeReader.Close()

	rangeContent, err := io.ReadAll(rangeReader)
	require.NoError(t, err)
	require.Equal(t, "this", string(rangeContent))

	m, ok := blob.(Mappable)
	require.True(t, ok)
	mapped, err := m.Bytes()
	require.NoError(t, err)
	require.Equal(t, data, mapped)

	// 4. List
	require.NoError(t, store.Put(ctx, "filters/hibp-002.bfa", []byte("x")))
	require.NoError(t, store.Put(ctx, "other.bfa", []byte("y")))

	blobs, err := store.List(ctx, "filters/")
	require.NoError(t, err)
	require.Equal(t, []string{blobName, "filters/hibp-002.bfa"}, blobs)

	// 5. Delete
	require.NoError(t, store.Delete(ctx, blobName))
	require.NoError(t, store.Delete(ctx, blobName), "deleting a missing blob is not an error")

	blobsAfter, err := store.List(ctx, "")
	require.NoError(t, err)
	require.Equal(t, []string{"filters/hibp-002.bfa", "other.bfa"}, blobsAfter)

	_, err = store.Open(ctx, blobName)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLocalBlobStore_ReadRange_Boundaries(t *testing.T) {
	tmpDir := t.TempDir()
	store := NewLocalStore(tmpDir)
	ctx := context.Background()

	blobName := "boundary.bin"
	data := []byte("0123456789")
	require.NoError(t, store.Put(ctx, blobName, data))

	blob, err := store.Open(ctx, blobName)
	require.NoError(t, err)
	defer blob.Close()

	// Case 1: Read full range
	r, err := blob.ReadRange(ctx, 0, 10)
	require.NoError(t, err)
	content, _ := io.ReadAll(r)
	r.Close()
	require.True(t, bytes.Equal(data, content))

	// Case 2: Read past end
	r, err = blob.ReadRange(ctx, 8, 5)
	require.NoError(t, err)
	content, err = io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "89", string(content))
	r.Close()

	// Case 3: Offset past EOF
	_, err = blob.ReadRange(ctx, 20, 5)
	require.ErrorIs(t, err, io.EOF)

	// Case 4: ReadAt crossing EOF
	buf := make([]byte, 4)
	n, err := blob.ReadAt(ctx, buf, 8)
	assert.Equal(t, 2, n)
	assert.ErrorIs(t, err, io.EOF)
}

func TestLocalBlobStore_EmptyBlob(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "empty", nil))

	blob, err := store.Open(ctx, "empty")
	require.NoError(t, err)
	defer blob.Close()
	assert.Zero(t, blob.Size())

	r, err := NewReader(ctx, blob)
	require.NoError(t, err)
	content, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Empty(t, content)
}

func TestLocalBlobStore_ListMissingRoot(t *testing.T) {
	store := NewLocalStore(filepath.Join(t.TempDir(), "missing"))

	names, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, names)
}
