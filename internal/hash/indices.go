package hash

import (
	"crypto/md5"
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/spaolacci/murmur3"
)

// Murmur3Pair returns the two 32-bit MurmurHash3 values used for double hashing.
func Murmur3Pair(item []byte) (h1, h2 uint32) {
	h1 = murmur3.Sum32WithSeed(item, 0)
	h2 = murmur3.Sum32WithSeed(item, h1)
	return h1, h2
}

// Murmur3Indices appends k positions (h1 + i*h2) mod m to dst.
//
// h1 and h2 are below 2^32, so h1 + i*h2 cannot overflow uint64 for any
// k below 2^32.
func Murmur3Indices(dst []uint64, item []byte, m uint64, k uint32) []uint64 {
	h1, h2 := Murmur3Pair(item)
	a, b := uint64(h1), uint64(h2)
	for i := uint64(0); i < uint64(k); i++ {
		dst = append(dst, (a+i*b)%m)
	}
	return dst
}

// MD5Indices appends k positions derived from a chain of MD5 digests to dst.
func MD5Indices(dst []uint64, item []byte, m uint64, k uint32) []uint64 {
	d := md5.Sum(item)
	for i := uint32(0); i < k; i++ {
		dst = append(dst, binary.LittleEndian.Uint64(d[8:])%m)
		d = md5.Sum(d[:])
	}
	return dst
}

// XXHashIndices appends k double-hashing positions derived from a single
// 64-bit xxHash to dst. The step is forced odd so it never degenerates to 0.
func XXHashIndices(dst []uint64, item []byte, m uint64, k uint32) []uint64 {
	h := xxhash.Sum64(item)
	a := h & 0xFFFFFFFF
	b := h>>32 | 1
	for i := uint64(0); i < uint64(k); i++ {
		dst = append(dst, (a+i*b)%m)
	}
	return dst
}
