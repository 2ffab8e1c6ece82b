package bloomfile

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/bloomfile/codec"
	ifs "github.com/hupe1980/bloomfile/internal/fs"
	"github.com/hupe1980/bloomfile/testutil"
)

func tempFilterPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.bloom")
}

func TestCreate(t *testing.T) {
	path := tempFilterPath(t)

	f, err := Create(path, 800, 4, SchemeMurmur3, WithAlignment(4096))
	require.NoError(t, err)
	defer f.Close()

	h := f.Header()
	assert.Equal(t, Header{M: 800, K: 4, Offset: 4096, Size: 4096, HashFunc: SchemeMurmur3}, h)
	assert.False(t, f.ReadOnly())
	assert.Equal(t, path, f.Path())
	assert.Equal(t, Params{M: 800, K: 4, HashFunc: SchemeMurmur3}, f.Params())
	assert.Contains(t, f.String(), "status=writable/mapped")

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, h.Offset+h.Size, fi.Size())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	line, _, ok := bytes.Cut(raw, []byte("\n"))
	require.True(t, ok)
	assert.JSONEq(t, `{"m":800,"k":4,"offset":4096,"size":4096,"hash_func_name":"murmur3"}`, string(line))
	assert.True(t, allZero(raw[len(line)+1:]), "padding and data region start zeroed")
}

func TestCreateDefaultsScheme(t *testing.T) {
	f, err := Create(tempFilterPath(t), 800, 4, SchemeUnspecified)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, DefaultScheme, f.Header().HashFunc)
	assert.Equal(t, Alignment(), f.Header().Offset)
}

func TestCreateInvalid(t *testing.T) {
	path := tempFilterPath(t)

	_, err := Create(path, 0, 4, SchemeMurmur3)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = Create(path, 800, 0, SchemeMurmur3)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = Create(path, 800, 4, Scheme(42))
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = Create(path, 800, 4, SchemeMurmur3, WithReadOnly())
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = Create(path, 800, 4, SchemeMurmur3, WithAlignment(1000))
	assert.ErrorIs(t, err, ErrConfiguration)

	assert.NoFileExists(t, path)
}

func TestCreateCleansUpOnFailure(t *testing.T) {
	path := tempFilterPath(t)

	for name, fault := range map[string]ifs.Fault{
		"truncate": {FailAfterBytes: -1, FailOnTruncate: true},
		"sync":     {FailAfterBytes: -1, FailOnSync: true},
		"write":    {FailAfterBytes: 0},
	} {
		t.Run(name, func(t *testing.T) {
			ffs := ifs.NewFaultyFS(nil)
			ffs.AddRule("test.bloom", fault)

			_, err := Create(path, 800, 4, SchemeMurmur3, WithFileSystem(ffs))
			require.ErrorIs(t, err, ifs.ErrInjected)
			assert.NoFileExists(t, path)
		})
	}
}

// Scenario: m=800, k=4, murmur3; "alice" and "bob" are present, "mallory"
// tests negative.
func TestHeaderCodecsInteroperate(t *testing.T) {
	path := tempFilterPath(t)
	f, err := Create(path, 800, 4, SchemeMD5, WithCodec(codec.JSON{}))
	require.NoError(t, err)
	require.NoError(t, f.Add([]byte("alice")))
	require.NoError(t, f.Close())

	g, err := Open(path, WithReadOnly())
	require.NoError(t, err)
	defer g.Close()
	assert.Equal(t, Params{M: 800, K: 4, HashFunc: SchemeMD5}, g.Params())
	ok, err := g.Contains([]byte("alice"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAddContains(t *testing.T) {
	f, err := Create(tempFilterPath(t), 800, 4, SchemeMurmur3)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Add([]byte("alice")))
	require.NoError(t, f.Add([]byte("bob")))

	for _, item := range []string{"alice", "bob"} {
		ok, err := f.Contains([]byte(item))
		require.NoError(t, err)
		assert.True(t, ok, item)
	}

	ok, err := f.Contains([]byte("mallory"))
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := f.Count()
	require.NoError(t, err)
	assert.LessOrEqual(t, n, uint64(8))
	assert.Positive(t, n)
}

func TestNoFalseNegativesAfterReopen(t *testing.T) {
	words := testutil.NewRNG(7).Words(2000, 4, 12)
	items := make([][]byte, len(words))
	for i, w := range words {
		items[i] = []byte(w)
	}

	for _, scheme := range Schemes() {
		t.Run(scheme.String(), func(t *testing.T) {
			path := tempFilterPath(t)
			m, k, err := CalculateOptimalParams(uint64(len(items)), 0.01)
			require.NoError(t, err)

			f, err := Create(path, m, k, scheme)
			require.NoError(t, err)
			flipped, err := f.AddBulk(items)
			require.NoError(t, err)
			assert.Positive(t, flipped)
			require.NoError(t, f.Sync())
			require.NoError(t, f.Close())

			r, err := Open(path, WithReadOnly())
			require.NoError(t, err)
			defer r.Close()
			assert.Equal(t, scheme, r.Header().HashFunc)

			for _, item := range items {
				ok, err := r.Contains(item)
				require.NoError(t, err)
				require.True(t, ok, "false negative for %q", item)
			}

			count, err := r.Count()
			require.NoError(t, err)
			assert.Equal(t, uint64(flipped), count)
		})
	}
}

func TestAddIdempotent(t *testing.T) {
	f, err := Create(tempFilterPath(t), 10_000, 7, SchemeXXHash)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Add([]byte("alice")))
	before := bytes.Clone(f.mapping.Bytes())

	require.NoError(t, f.Add([]byte("alice")))
	flipped, err := f.AddBulk([][]byte{[]byte("alice"), []byte("alice")})
	require.NoError(t, err)

	assert.Zero(t, flipped)
	assert.Equal(t, before, f.mapping.Bytes())
}

func TestAddBulkEquivalentToAdd(t *testing.T) {
	words := testutil.NewRNG(11).Words(300, 3, 10)
	items := make([][]byte, len(words))
	for i, w := range words {
		items[i] = []byte(w)
	}

	a, err := Create(filepath.Join(t.TempDir(), "a.bloom"), 5000, 5, SchemeMD5)
	require.NoError(t, err)
	defer a.Close()
	b, err := Create(filepath.Join(t.TempDir(), "b.bloom"), 5000, 5, SchemeMD5)
	require.NoError(t, err)
	defer b.Close()

	for _, item := range items {
		require.NoError(t, a.Add(item))
	}
	flipped, err := b.AddBulk(items)
	require.NoError(t, err)

	assert.Equal(t, a.mapping.Bytes(), b.mapping.Bytes())
	count, err := a.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(flipped), count)
}

func TestSharedMappingBetweenHandles(t *testing.T) {
	path := tempFilterPath(t)
	w, err := Create(path, 4096, 3, SchemeMurmur3)
	require.NoError(t, err)
	defer w.Close()

	r, err := Open(path, WithReadOnly())
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, w.Add([]byte("visible")))

	ok, err := r.Contains([]byte("visible"))
	require.NoError(t, err)
	assert.True(t, ok, "bits written through one mapping are seen by another")
}

func TestOpenOrCreate(t *testing.T) {
	path := tempFilterPath(t)

	_, err := OpenOrCreate(path, Params{})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = OpenOrCreate(path, Params{M: 800, K: 4}, WithReadOnly())
	assert.ErrorIs(t, err, fs.ErrNotExist)

	f, err := OpenOrCreate(path, Params{M: 800, K: 4, HashFunc: SchemeMD5})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// Existing file: stored parameters win, zero fields are not checked.
	f, err = OpenOrCreate(path, Params{})
	require.NoError(t, err)
	assert.Equal(t, Params{M: 800, K: 4, HashFunc: SchemeMD5}, f.Params())
	require.NoError(t, f.Close())

	f, err = OpenOrCreate(path, Params{M: 800, K: 4, HashFunc: SchemeMD5})
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

// Scenario: a filter created with m=800, k=4 reopened read-write with k=5
// fails with a parameter mismatch and the file is left untouched.
func TestParameterMismatch(t *testing.T) {
	path := tempFilterPath(t)
	f, err := Create(path, 800, 4, SchemeMurmur3)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	tests := []struct {
		p     Params
		field string
	}{
		{Params{M: 800, K: 5}, "k"},
		{Params{M: 801, K: 4}, "m"},
		{Params{M: 800, K: 4, HashFunc: SchemeXXHash}, "hash_func_name"},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			_, err := OpenOrCreate(path, tt.p)
			require.ErrorIs(t, err, ErrParameterMismatch)

			var pm *ParameterMismatchError
			require.ErrorAs(t, err, &pm)
			assert.Equal(t, tt.field, pm.Field)
			assert.Equal(t, path, pm.Path)
		})
	}

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// Readers always use the stored parameters.
	r, err := Open(path, WithReadOnly(), WithExpect(Params{M: 800, K: 5}))
	require.NoError(t, err)
	require.NoError(t, r.Close())
}

func TestOpenErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Open(filepath.Join(dir, "missing.bloom"))
	assert.ErrorIs(t, err, fs.ErrNotExist)

	empty := filepath.Join(dir, "empty.bloom")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, err = Open(empty, WithReadOnly())
	assert.ErrorIs(t, err, ErrCorruptFile)

	garbage := filepath.Join(dir, "garbage.bloom")
	require.NoError(t, os.WriteFile(garbage, []byte("hello world\n"+string(make([]byte, 8192))), 0o644))
	_, err = Open(garbage, WithReadOnly())
	assert.ErrorIs(t, err, ErrCorruptFile)
	var he *HeaderError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, garbage, he.Path)

	invalid := filepath.Join(dir, "invalid.bloom")
	require.NoError(t, os.WriteFile(invalid, []byte(`{"m":0,"k":4,"offset":4096,"size":4096}`+"\n"), 0o644))
	_, err = Open(invalid, WithReadOnly())
	assert.ErrorIs(t, err, ErrCorruptFile)

	truncated := filepath.Join(dir, "truncated.bloom")
	f, err := Create(truncated, 100_000, 3, SchemeMurmur3, WithAlignment(4096))
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, os.Truncate(truncated, 4096+100))
	_, err = Open(truncated, WithReadOnly())
	assert.ErrorIs(t, err, ErrTruncated)
	assert.NotErrorIs(t, err, ErrCorruptFile)
}

func TestReadOnly(t *testing.T) {
	path := tempFilterPath(t)
	f, err := Create(path, 800, 4, SchemeMurmur3)
	require.NoError(t, err)
	require.NoError(t, f.Add([]byte("alice")))
	require.NoError(t, f.Close())

	r, err := Open(path, WithReadOnly())
	require.NoError(t, err)
	defer r.Close()

	assert.True(t, r.ReadOnly())
	assert.ErrorIs(t, r.Add([]byte("bob")), ErrPermissionDenied)
	_, err = r.AddBulk([][]byte{[]byte("bob")})
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.NoError(t, r.Sync())

	ok, err := r.Contains([]byte("alice"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClose(t *testing.T) {
	f, err := Create(tempFilterPath(t), 800, 4, SchemeMurmur3)
	require.NoError(t, err)

	require.NoError(t, f.Close())
	require.NoError(t, f.Close())
	assert.Contains(t, f.String(), "closed")

	_, err = f.Contains([]byte("alice"))
	assert.ErrorIs(t, err, ErrMapUnavailable)
	assert.ErrorIs(t, f.Add([]byte("alice")), ErrMapUnavailable)
	_, err = f.AddBulk([][]byte{[]byte("alice")})
	assert.ErrorIs(t, err, ErrMapUnavailable)
	_, err = f.Count()
	assert.ErrorIs(t, err, ErrMapUnavailable)
}

func TestMetricsRecorded(t *testing.T) {
	mc := &BasicMetricsCollector{}
	f, err := Create(tempFilterPath(t), 800, 4, SchemeMurmur3, WithMetricsCollector(mc))
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Add([]byte("a")))
	_, err = f.AddBulk([][]byte{[]byte("b"), []byte("c")})
	require.NoError(t, err)
	for i := range 3 {
		_, err := f.Contains(fmt.Appendf(nil, "%c", 'a'+i))
		require.NoError(t, err)
	}

	s := mc.GetStats()
	assert.Equal(t, int64(1), s.AddCount)
	assert.Equal(t, int64(1), s.BulkAddCount)
	assert.Equal(t, int64(2), s.BulkAddItems)
	assert.Equal(t, int64(3), s.ContainsCount)
	assert.Equal(t, int64(3), s.ContainsHits)
}
