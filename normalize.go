package bloomfile

import (
	"bytes"
	"crypto/sha1" //nolint:gosec // content address, not a security primitive
	"encoding/hex"
	"fmt"
	"strings"
)

// Normalization selects how raw values are turned into filter items.
type Normalization uint8

const (
	// NormalizeNone uses the trimmed line as-is.
	NormalizeNone Normalization = iota
	// NormalizeLowercase lowercases the trimmed line.
	NormalizeLowercase
	// NormalizeSHA1Hex expects lines that start with a 40 character SHA-1 hex
	// digest (e.g. "HASH:COUNT" dumps) and keeps the uppercased digest.
	NormalizeSHA1Hex
)

// sha1HexLen is the length of a hex encoded SHA-1 digest.
const sha1HexLen = 40

func (n Normalization) String() string {
	switch n {
	case NormalizeNone:
		return "none"
	case NormalizeLowercase:
		return "lowercase"
	case NormalizeSHA1Hex:
		return "sha1"
	default:
		return fmt.Sprintf("Normalization(%d)", uint8(n))
	}
}

// ParseNormalization parses "none", "lowercase" or "sha1".
func ParseNormalization(s string) (Normalization, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return NormalizeNone, nil
	case "lowercase", "lower":
		return NormalizeLowercase, nil
	case "sha1":
		return NormalizeSHA1Hex, nil
	}
	return NormalizeNone, fmt.Errorf("%w: unknown normalization %q", ErrInvalidArgument, s)
}

// Line normalizes an input line for loading, appending the item to dst.
// ok is false for blank lines and for lines the normalization rejects.
func (n Normalization) Line(dst, line []byte) (item []byte, ok bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return dst, false
	}
	switch n {
	case NormalizeLowercase:
		return append(dst, bytes.ToLower(line)...), true
	case NormalizeSHA1Hex:
		if len(line) < sha1HexLen {
			return dst, false
		}
		return appendUpper(dst, line[:sha1HexLen]), true
	default:
		return append(dst, line...), true
	}
}

// Query turns a value supplied for a membership test into an item.
//
// Unlike Line, NormalizeSHA1Hex hashes the value itself: the caller holds a
// plaintext and the filter holds uppercase SHA-1 digests.
func (n Normalization) Query(value string) []byte {
	switch n {
	case NormalizeLowercase:
		return []byte(strings.ToLower(strings.TrimSpace(value)))
	case NormalizeSHA1Hex:
		return SHA1Hex(value)
	default:
		return []byte(strings.TrimSpace(value))
	}
}

// SHA1Hex returns the uppercase hex SHA-1 digest of value.
func SHA1Hex(value string) []byte {
	sum := sha1.Sum([]byte(value)) //nolint:gosec
	return bytes.ToUpper(hex.AppendEncode(make([]byte, 0, sha1HexLen), sum[:]))
}

func appendUpper(dst, b []byte) []byte {
	for _, c := range b {
		if 'a' <= c && c <= 'z' {
			c -= 'a' - 'A'
		}
		dst = append(dst, c)
	}
	return dst
}
