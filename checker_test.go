package bloomfile

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeDigestCorpus writes the sorted "HASH:count" corpus of passwords.
func writeDigestCorpus(t *testing.T, path string, passwords ...string) {
	t.Helper()
	lines := make([]string, 0, len(passwords))
	for i, pw := range passwords {
		lines = append(lines, string(SHA1Hex(pw))+":"+strings.Repeat("1", i+1))
	}
	slices.Sort(lines)
	data := strings.Join(lines, "\n")
	if len(lines) > 0 {
		data += "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
}

func TestFilterPathFor(t *testing.T) {
	assert.Equal(t, "data/pwned-passwords.bloom", FilterPathFor("data/pwned-passwords.txt"))
	assert.Equal(t, "corpus.bloom", FilterPathFor("corpus"))
	assert.Equal(t, "a.b/c.bloom", FilterPathFor("a.b/c.txt"))
}

func TestChecker(t *testing.T) {
	dir := t.TempDir()
	dataPath := filepath.Join(dir, "pwned.txt")
	writeDigestCorpus(t, dataPath, "password", "letmein")

	f, err := Create(FilterPathFor(dataPath), 10_000, 7, SchemeMurmur3)
	require.NoError(t, err)
	_, err = f.AddBulk([][]byte{SHA1Hex("password"), SHA1Hex("letmein")})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	c := NewChecker(dataPath)
	defer c.Close()

	h := c.Health()
	assert.True(t, h.Initialized)
	assert.True(t, h.UsingAcceleratedFilter)
	assert.Equal(t, dataPath, h.DataPath)
	assert.Equal(t, filepath.Join(dir, "pwned.bloom"), h.FilterPath)
	assert.Empty(t, h.Error)

	for _, pw := range []string{"password", "letmein"} {
		ok, err := c.Check(pw)
		require.NoError(t, err)
		assert.True(t, ok, pw)
	}
	ok, err := c.Check("correct horse battery staple")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckerDataWithoutFilter(t *testing.T) {
	dataPath := filepath.Join(t.TempDir(), "pwned.txt")
	writeDigestCorpus(t, dataPath, "password", "letmein", "123456", "qwerty", "dragon")

	c := NewChecker(dataPath)
	defer c.Close()

	h := c.Health()
	assert.True(t, h.Initialized)
	assert.False(t, h.UsingAcceleratedFilter)
	assert.Contains(t, h.Error, "pwned.bloom")

	for _, pw := range []string{"password", "letmein", "123456", "qwerty", "dragon"} {
		ok, err := c.Check(pw)
		require.NoError(t, err)
		assert.True(t, ok, pw)
	}
	ok, err := c.Check("correct horse battery staple")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckerFilterWithoutData(t *testing.T) {
	dataPath := filepath.Join(t.TempDir(), "pwned.txt")
	f, err := Create(FilterPathFor(dataPath), 800, 4, SchemeMurmur3)
	require.NoError(t, err)
	require.NoError(t, f.Add(SHA1Hex("password")))
	require.NoError(t, f.Close())

	c := NewChecker(dataPath)
	defer c.Close()

	h := c.Health()
	assert.False(t, h.Initialized)
	assert.True(t, h.UsingAcceleratedFilter)
	assert.Contains(t, h.Error, "data file")

	_, err = c.Check("password")
	assert.ErrorIs(t, err, ErrMapUnavailable)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCheckerUninitialized(t *testing.T) {
	c := NewChecker(filepath.Join(t.TempDir(), "missing.txt"))
	defer c.Close()

	h := c.Health()
	assert.False(t, h.Initialized)
	assert.False(t, h.UsingAcceleratedFilter)
	assert.NotEmpty(t, h.Error)

	_, err := c.Check("password")
	assert.ErrorIs(t, err, ErrMapUnavailable)
}

func TestCheckerEmptyCorpus(t *testing.T) {
	dataPath := filepath.Join(t.TempDir(), "empty.txt")
	writeDigestCorpus(t, dataPath)

	c := NewChecker(dataPath)
	defer c.Close()

	assert.True(t, c.Health().Initialized)
	ok, err := c.Check("password")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckerClose(t *testing.T) {
	dataPath := filepath.Join(t.TempDir(), "d.txt")
	writeDigestCorpus(t, dataPath, "x")
	f, err := Create(FilterPathFor(dataPath), 800, 4, SchemeMurmur3)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	c := NewChecker(dataPath)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	h := c.Health()
	assert.False(t, h.Initialized)
	assert.False(t, h.UsingAcceleratedFilter)
	_, err = c.Check("x")
	assert.ErrorIs(t, err, ErrMapUnavailable)
}

func TestSearchSorted(t *testing.T) {
	data := []byte("0A:1\n1B:2\r\n2c:3\n3D\nFF:9")

	for _, key := range []string{"0A", "1B", "2C", "3D", "FF"} {
		assert.True(t, searchSorted(data, []byte(key)), key)
	}
	for _, key := range []string{"00", "1C", "3E", "ZZ", ""} {
		assert.False(t, searchSorted(data, []byte(key)), key)
	}
	assert.False(t, searchSorted(nil, []byte("0A")))
	assert.True(t, searchSorted([]byte("AB\n"), []byte("AB")))
}
