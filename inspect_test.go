package bloomfile

import (
	"bytes"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "i.bloom")
	f, err := Create(path, 19_170_117, 13, SchemeMurmur3, WithAlignment(4096))
	require.NoError(t, err)
	require.NoError(t, f.Add([]byte("alice")))
	require.NoError(t, f.Close())

	info, err := Inspect(path)
	require.NoError(t, err)
	assert.Equal(t, path, info.Path)
	assert.Equal(t, uint64(19_170_117), info.M)
	assert.Equal(t, uint32(13), info.K)
	assert.Equal(t, SchemeMurmur3, info.HashFunc)
	assert.Equal(t, int64(4096), info.Offset)
	assert.Equal(t, int64(2_400_256), info.Size)
	assert.Equal(t, info.Offset+info.Size, info.FileSize)
	assert.Equal(t, Alignment(), info.Alignment)
	assert.Zero(t, info.BitsSet)

	info, err = Inspect(path, WithBitCount())
	require.NoError(t, err)
	assert.Equal(t, uint64(13), info.BitsSet)
	assert.InDelta(t, 13.0/19_170_117, info.FillRatio(), 1e-15)
}

func TestInspectMissing(t *testing.T) {
	_, err := Inspect(filepath.Join(t.TempDir(), "nope.bloom"))
	assert.Error(t, err)
}

func TestEstimate(t *testing.T) {
	info := Info{Header: Header{M: 19_170_117, K: 13, HashFunc: SchemeMurmur3}}

	e, err := info.Estimate(1_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), e.N)
	assert.InDelta(t, 1e-4, e.FalsePositiveRate, 1e-6)
	assert.InDelta(t, 13.29, e.OptimalK, 0.01)
	assert.Equal(t, uint32(13), e.ActualK)

	_, err = info.Estimate(0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

// Scenario: m=9,585,058 and k=14. The estimate always equals the closed
// form; at 850 million items the filter is saturated, and around half a
// million items it sits near 1e-4.
func TestEstimateSmallFilter(t *testing.T) {
	info := Info{Header: Header{M: 9_585_058, K: 14, HashFunc: SchemeMurmur3}}

	e, err := info.Estimate(850_000_000)
	require.NoError(t, err)
	closedForm := math.Pow(1-math.Exp(-14*850_000_000.0/9_585_058), 14)
	assert.InDelta(t, closedForm, e.FalsePositiveRate, 1e-12)
	assert.InDelta(t, 1.0, e.FalsePositiveRate, 1e-9)

	e, err = info.Estimate(500_000)
	require.NoError(t, err)
	assert.Greater(t, e.FalsePositiveRate, 1e-5)
	assert.Less(t, e.FalsePositiveRate, 1e-3)
	assert.InDelta(t, 1.0079e-4, e.FalsePositiveRate, 1e-7)
}

func TestFillRatioZeroM(t *testing.T) {
	assert.Zero(t, Info{}.FillRatio())
}

func TestReport(t *testing.T) {
	info := Info{
		Path:      "hibp.bloom",
		Header:    Header{M: 9_585_058, K: 14, Offset: 4096, Size: 1_200_128, HashFunc: SchemeXXHash},
		Alignment: 4096,
		FileSize:  1_204_224,
		BitsSet:   1000,
	}

	var buf bytes.Buffer
	require.NoError(t, info.Report(&buf, 500_000))
	out := buf.String()

	assert.Contains(t, out, "hibp.bloom")
	assert.Contains(t, out, "9585058")
	assert.Contains(t, out, "xxhash")
	assert.Contains(t, out, "1.1 MiB")
	assert.Contains(t, out, "Bits set:")
	assert.Contains(t, out, "Estimated items (n):")
	assert.Contains(t, out, "False positive rate:")
	assert.NotContains(t, out, "k differs from optimum")

	buf.Reset()
	require.NoError(t, info.Report(&buf, 850_000_000))
	assert.Contains(t, buf.String(), "k differs from optimum")

	buf.Reset()
	require.NoError(t, info.Report(&buf, 0))
	assert.NotContains(t, buf.String(), "False positive rate:")
}
