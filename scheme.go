package bloomfile

import (
	"fmt"

	"github.com/hupe1980/bloomfile/internal/hash"
)

// Scheme selects the algorithm that maps an item to its k bit positions.
//
// The scheme is chosen once when a file is created, stored in the header as
// hash_func_name, and enforced on every later open. It is a closed set: a
// header naming any other algorithm is rejected as corrupt.
type Scheme uint8

const (
	// SchemeUnspecified lets Create pick DefaultScheme. It never appears in a
	// valid header.
	SchemeUnspecified Scheme = iota
	// SchemeMurmur3 is double hashing over two 32-bit MurmurHash3 values.
	SchemeMurmur3
	// SchemeMD5 is a chain of MD5 digests, one round per position.
	SchemeMD5
	// SchemeXXHash is double hashing over the halves of a 64-bit xxHash.
	SchemeXXHash
)

// DefaultScheme is used when a filter is created without an explicit scheme,
// and when reading a header that omits hash_func_name.
const DefaultScheme = SchemeMurmur3

var schemeNames = [...]string{
	SchemeUnspecified: "",
	SchemeMurmur3:     "murmur3",
	SchemeMD5:         "md5",
	SchemeXXHash:      "xxhash",
}

// Schemes lists every supported scheme.
func Schemes() []Scheme {
	return []Scheme{SchemeMurmur3, SchemeMD5, SchemeXXHash}
}

// ParseScheme returns the scheme stored under name.
func ParseScheme(name string) (Scheme, error) {
	for _, s := range Schemes() {
		if schemeNames[s] == name {
			return s, nil
		}
	}
	return SchemeUnspecified, fmt.Errorf("%w: unknown hash function %q", ErrInvalidArgument, name)
}

// Valid reports whether s names a concrete algorithm.
func (s Scheme) Valid() bool {
	return s > SchemeUnspecified && int(s) < len(schemeNames)
}

func (s Scheme) String() string {
	if int(s) < len(schemeNames) {
		if s == SchemeUnspecified {
			return "auto"
		}
		return schemeNames[s]
	}
	return fmt.Sprintf("Scheme(%d)", uint8(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s Scheme) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: cannot encode hash function %s", ErrInvalidArgument, s)
	}
	return []byte(schemeNames[s]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Scheme) UnmarshalText(text []byte) error {
	parsed, err := ParseScheme(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// AppendIndices appends the k positions of item in [0, m) to dst.
// m must be positive and s valid.
func (s Scheme) AppendIndices(dst []uint64, item []byte, m uint64, k uint32) []uint64 {
	switch s {
	case SchemeMD5:
		return hash.MD5Indices(dst, item, m, k)
	case SchemeXXHash:
		return hash.XXHashIndices(dst, item, m, k)
	default:
		return hash.Murmur3Indices(dst, item, m, k)
	}
}

// Indices returns the k bit positions in [0, m) that item maps to under
// scheme. The result is deterministic across processes and restarts.
func Indices(item []byte, m uint64, k uint32, scheme Scheme) ([]uint64, error) {
	if m == 0 || k == 0 {
		return nil, fmt.Errorf("%w: m and k must be positive (m=%d, k=%d)", ErrInvalidArgument, m, k)
	}
	if !scheme.Valid() {
		return nil, fmt.Errorf("%w: unknown hash function %s", ErrInvalidArgument, scheme)
	}
	return scheme.AppendIndices(make([]uint64, 0, k), item, m, k), nil
}
