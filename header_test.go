package bloomfile

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayout(t *testing.T) {
	h, err := layout(19_170_117, 13, SchemeMurmur3, 4096)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), h.Offset)
	// ceil(ceil(19170117/8)/4096)*4096
	assert.Equal(t, int64(2_400_256), h.Size)
	assert.Zero(t, h.Size%4096)
	assert.GreaterOrEqual(t, uint64(h.Size)*8, h.M)

	h, err = layout(800, 4, SchemeMD5, 65536)
	require.NoError(t, err)
	assert.Equal(t, int64(65536), h.Offset)
	assert.Equal(t, int64(65536), h.Size)
}

func TestEncodeDecodeHeader(t *testing.T) {
	h := Header{M: 19_170_117, K: 13, Offset: 4096, Size: 2_400_256, HashFunc: SchemeXXHash}

	line, err := EncodeHeader(nil, h)
	require.NoError(t, err)
	assert.True(t, bytes.HasSuffix(line, []byte("\n")))
	assert.Equal(t, 1, bytes.Count(line, []byte("\n")))
	assert.Contains(t, string(line), `"hash_func_name":"xxhash"`)
	assert.Contains(t, string(line), `"m":19170117`)

	got, err := DecodeHeader(nil, line)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestDecodeHeaderDefaultsScheme(t *testing.T) {
	got, err := DecodeHeader(nil, []byte(`{"m":800,"k":4,"offset":4096,"size":4096}`+"\n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultScheme, got.HashFunc)
}

func TestDecodeHeaderErrors(t *testing.T) {
	_, err := DecodeHeader(nil, []byte("  \n"))
	assert.Error(t, err)

	_, err = DecodeHeader(nil, []byte("not json\n"))
	assert.Error(t, err)

	_, err = DecodeHeader(nil, []byte(`{"m":800,"k":4,"offset":4096,"size":4096,"hash_func_name":"sha256"}`))
	assert.Error(t, err)
}

func TestReadHeader(t *testing.T) {
	h := Header{M: 800, K: 4, Offset: 4096, Size: 4096, HashFunc: SchemeMurmur3}
	line, err := EncodeHeader(nil, h)
	require.NoError(t, err)

	file := make([]byte, 8192)
	copy(file, line)

	got, n, err := readHeader(bytes.NewReader(file), "f", int64(len(file)), nil)
	require.NoError(t, err)
	assert.Equal(t, h, got)
	assert.Equal(t, len(line), n)

	_, _, err = readHeader(bytes.NewReader(file[:8000]), "f", 8000, nil)
	assert.ErrorIs(t, err, ErrTruncated)

	_, _, err = readHeader(bytes.NewReader(nil), "f", 0, nil)
	assert.ErrorIs(t, err, ErrCorruptFile)

	noNewline := bytes.TrimSuffix(line, []byte("\n"))
	_, _, err = readHeader(bytes.NewReader(noNewline), "f", int64(len(noNewline)), nil)
	assert.ErrorIs(t, err, ErrCorruptFile)
}

func TestValidateHeader(t *testing.T) {
	valid := Header{M: 800, K: 4, Offset: 4096, Size: 4096, HashFunc: SchemeMurmur3}
	assert.NoError(t, validateHeader(valid, 70))

	tests := map[string]Header{
		"zero m":         {M: 0, K: 4, Offset: 4096, Size: 4096},
		"zero k":         {M: 800, K: 0, Offset: 4096, Size: 4096},
		"zero size":      {M: 800, K: 4, Offset: 4096, Size: 0},
		"negative off":   {M: 800, K: 4, Offset: -1, Size: 4096},
		"size too small": {M: 1 << 20, K: 4, Offset: 4096, Size: 4096},
	}
	for name, h := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, validateHeader(h, 70))
		})
	}

	assert.Error(t, validateHeader(Header{M: 800, K: 4, Offset: 64, Size: 4096}, 70), "offset overlapping header")
}

func TestValidateHeaderAlignment(t *testing.T) {
	assert.ErrorContains(t, validateHeader(Header{M: 800, K: 4, Offset: 4098, Size: 4096}, 70), "multiples of 4")
	assert.ErrorContains(t, validateHeader(Header{M: 800, K: 4, Offset: 4096, Size: 4097}, 70), "multiples of 4")
	assert.NoError(t, validateHeader(Header{M: 800, K: 4, Offset: 100, Size: 104}, 70))
}

func TestReadHeaderHugeSize(t *testing.T) {
	tests := map[string]struct {
		line string
		kind error
	}{
		"max int64": {
			line: `{"m":8,"k":1,"offset":4096,"size":9223372036854775807,"hash_func_name":"murmur3"}`,
			kind: ErrCorruptFile,
		},
		"offset plus size overflows": {
			line: `{"m":8,"k":1,"offset":4096,"size":9223372036854771712,"hash_func_name":"murmur3"}`,
			kind: ErrTruncated,
		},
		"offset beyond file": {
			line: `{"m":8,"k":1,"offset":16384,"size":4096,"hash_func_name":"murmur3"}`,
			kind: ErrTruncated,
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			file := make([]byte, 8192)
			copy(file, tt.line+"\n")

			_, _, err := readHeader(bytes.NewReader(file), "f", int64(len(file)), nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kind)
			assert.NotErrorIs(t, err, ErrMapUnavailable)
		})
	}
}
