// Package hash provides the index hash functions of filter files and a
// CRC32C helper for archive integrity.
//
// # Index hashing
//
// Every function here maps an item to k bit positions in [0, m). All of them
// are deterministic across processes, restarts and platforms, so a filter file
// written on one machine answers identically on another.
//
//   - [Murmur3Indices]: double hashing over two 32-bit MurmurHash3 values,
//     h1 = murmur3(item, seed 0), h2 = murmur3(item, seed h1)
//   - [MD5Indices]: chained digests, each round reads bytes 8..15 of the
//     current MD5 digest as a little-endian uint64, then re-digests the digest
//   - [XXHashIndices]: double hashing over the halves of one 64-bit xxHash
//
// # CRC32-Castagnoli (CRC32C)
//
// Archive checksums use CRC32C, which Go's crc32 package accelerates with
// SSE4.2 on x86 and the CRC extension on ARM.
//
//	checksum := hash.CRC32C(data)
package hash
