// Package testutil provides corpus generators for bloomfile tests.
//
// This package is intended for use in tests and benchmarks only.
//
//	rng := testutil.NewRNG(seed)
//	digests := rng.HexDigests(1000)          // 40-char uppercase hex
//	lines := rng.HIBPLines(digests)          // "DIGEST:COUNT"
//	_ = testutil.WriteLines(path, lines)
//
// # False-Positive Measurement
//
//	rate, err := testutil.FalsePositiveRate(f.Contains, absent)
package testutil
