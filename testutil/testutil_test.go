package testutil

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHexDigests(t *testing.T) {
	rng := NewRNG(4711)

	d := rng.HexDigests(8)

	assert.Len(t, d, 8)
	for _, s := range d {
		assert.Len(t, s, 40)
		assert.Equal(t, strings.ToUpper(s), s)
	}
	assert.NotEqual(t, d[0], d[1])
}

func TestHIBPLines(t *testing.T) {
	rng := NewRNG(4711)
	d := rng.HexDigests(4)

	lines := rng.HIBPLines(d)

	require.Len(t, lines, 4)
	for i, l := range lines {
		digest, count, ok := strings.Cut(l, ":")
		require.True(t, ok)
		assert.Equal(t, d[i], digest)
		assert.NotEmpty(t, count)
	}
}

func TestWords(t *testing.T) {
	rng := NewRNG(4711)

	w := rng.Words(50, 3, 8)

	assert.Len(t, w, 50)
	for _, s := range w {
		assert.GreaterOrEqual(t, len(s), 3)
		assert.LessOrEqual(t, len(s), 8)
	}
}

func TestSample(t *testing.T) {
	rng := NewRNG(4711)
	items := []string{"a", "b", "c", "d", "e"}

	s := rng.Sample(items, 3)
	assert.Len(t, s, 3)
	seen := map[string]bool{}
	for _, v := range s {
		assert.Contains(t, items, v)
		assert.False(t, seen[v])
		seen[v] = true
	}

	assert.ElementsMatch(t, items, rng.Sample(items, 10))
}

func TestReset(t *testing.T) {
	rng := NewRNG(4711)
	v1 := rng.HexDigests(1)

	rng.Reset()
	v2 := rng.HexDigests(1)

	assert.Equal(t, v1, v2)
	assert.Equal(t, int64(4711), rng.Seed())
}

func TestWriteLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lines.txt")

	require.NoError(t, WriteLines(path, []string{"one", "two"}))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", string(b))
}

func TestFalsePositiveRate(t *testing.T) {
	contains := func(b []byte) (bool, error) { return b[0] == 'x', nil }

	rate, err := FalsePositiveRate(contains, []string{"x1", "y1", "y2", "x2"})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, rate, 1e-12)

	rate, err = FalsePositiveRate(contains, nil)
	require.NoError(t, err)
	assert.Zero(t, rate)

	boom := errors.New("boom")
	_, err = FalsePositiveRate(func([]byte) (bool, error) { return false, boom }, []string{"a"})
	assert.ErrorIs(t, err, boom)
}
