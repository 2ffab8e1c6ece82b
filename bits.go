package bloomfile

import (
	mathbits "math/bits"
	"sync/atomic"
	"unsafe"
)

// Bit i of the array lives in byte i>>3 under mask 1<<(i&7). Writers update
// the aligned 32-bit word holding that byte with an atomic OR, so two
// processes setting different bits of the same byte never lose either flip.
// The data region starts on a page boundary and its size is a multiple of
// the alignment, so every word lies inside the mapping.

var littleEndian = func() bool {
	x := uint32(1)
	return *(*byte)(unsafe.Pointer(&x)) == 1
}()

// wordMask returns the word index and in-word mask of bit i.
func wordMask(i uint64) (word uint64, mask uint32) {
	byteIdx := i >> 3
	shift := uint32(byteIdx&3) * 8
	if !littleEndian {
		shift = 24 - shift
	}
	return byteIdx >> 2, 1 << (shift + uint32(i&7))
}

// orBit sets bit i and reports whether it was previously clear.
func orBit(bits []byte, i uint64) bool {
	word, mask := wordMask(i)
	p := (*uint32)(unsafe.Pointer(&bits[word*4]))
	return atomic.OrUint32(p, mask)&mask == 0
}

// hasBit reports whether bit i is set.
func hasBit(bits []byte, i uint64) bool {
	return bits[i>>3]&(1<<(i&7)) != 0
}

func setBit(bits []byte, m, i uint64) error {
	if i >= m {
		return &OutOfRangeError{Index: i, M: m}
	}
	orBit(bits, i)
	return nil
}

func testBit(bits []byte, m, i uint64) (bool, error) {
	if i >= m {
		return false, &OutOfRangeError{Index: i, M: m}
	}
	return hasBit(bits, i), nil
}

// countBits returns the number of set bits in the first m bits.
func countBits(bits []byte, m uint64) uint64 {
	var n int
	full := m >> 3
	for _, b := range bits[:full] {
		n += mathbits.OnesCount8(b)
	}
	if rem := m & 7; rem != 0 {
		n += mathbits.OnesCount8(bits[full] & (1<<rem - 1))
	}
	return uint64(n)
}
