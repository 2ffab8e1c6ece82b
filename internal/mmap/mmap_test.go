package mmap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempFile(t *testing.T, size int64) *os.File {
	t.Helper()
	f, err := os.OpenFile(filepath.Join(t.TempDir(), "region.bin"), os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(size))
	t.Cleanup(func() { f.Close() })
	return f
}

func TestMap_ReadWriteAtOffset(t *testing.T) {
	page := int64(PageSize())
	f := tempFile(t, 2*page)

	m, err := Map(f.Fd(), page, int(page), ReadWrite)
	require.NoError(t, err)

	assert.Equal(t, int(page), m.Size())
	assert.Equal(t, ReadWrite, m.Mode())

	data := m.Bytes()
	require.Len(t, data, int(page))
	data[0] = 0xAB
	data[len(data)-1] = 0xCD

	require.NoError(t, m.Sync())
	require.NoError(t, m.Close())

	raw, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	assert.Equal(t, byte(0xAB), raw[page])
	assert.Equal(t, byte(0xCD), raw[2*page-1])
	assert.Equal(t, byte(0), raw[0])
}

func TestMap_UnalignedOffset(t *testing.T) {
	f := tempFile(t, 8192)
	_, err := f.WriteAt([]byte("xyz"), 100)
	require.NoError(t, err)

	m, err := Map(f.Fd(), 100, 3, ReadOnly)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, "xyz", string(m.Bytes()))
	assert.Len(t, m.Bytes(), 3)
}

func TestMap_SharedBetweenMappings(t *testing.T) {
	f := tempFile(t, 4096)

	writer, err := Map(f.Fd(), 0, 4096, ReadWrite)
	require.NoError(t, err)
	defer writer.Close()

	other, err := os.OpenFile(f.Name(), os.O_RDONLY, 0)
	require.NoError(t, err)
	defer other.Close()

	reader, err := Map(other.Fd(), 0, 4096, ReadOnly)
	require.NoError(t, err)
	defer reader.Close()

	writer.Bytes()[42] = 7
	assert.Equal(t, byte(7), reader.Bytes()[42])
}

func TestMap_InvalidArguments(t *testing.T) {
	f := tempFile(t, 4096)

	_, err := Map(f.Fd(), -1, 10, ReadOnly)
	assert.ErrorIs(t, err, ErrInvalidOffset)

	_, err = Map(f.Fd(), 0, 0, ReadOnly)
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestMap_ReadOnlySync(t *testing.T) {
	f := tempFile(t, 4096)

	m, err := Map(f.Fd(), 0, 4096, ReadOnly)
	require.NoError(t, err)
	defer m.Close()

	assert.ErrorIs(t, m.Sync(), ErrReadOnly)
}

func TestMap_Advise(t *testing.T) {
	f := tempFile(t, 4096)

	m, err := Map(f.Fd(), 100, 200, ReadWrite)
	require.NoError(t, err)

	require.NoError(t, m.Advise(AccessRandom))
	require.NoError(t, m.Advise(AccessSequential))
	assert.Len(t, m.Bytes(), 200)
	assert.Equal(t, 200, cap(m.Bytes()))

	require.NoError(t, m.Close())
	assert.ErrorIs(t, m.Advise(AccessDefault), ErrClosed)
}

func TestMap_AfterClose(t *testing.T) {
	f := tempFile(t, 4096)

	m, err := Map(f.Fd(), 0, 4096, ReadWrite)
	require.NoError(t, err)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	assert.True(t, m.Closed())
	assert.Nil(t, m.Bytes())
	assert.ErrorIs(t, m.Advise(AccessRandom), ErrClosed)
	assert.ErrorIs(t, m.Sync(), ErrClosed)
}

func TestAlignment(t *testing.T) {
	a := Alignment()
	assert.GreaterOrEqual(t, a, int64(MinAlignment))
	assert.Zero(t, a%MinAlignment)
}
