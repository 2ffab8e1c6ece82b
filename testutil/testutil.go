package testutil

import (
	"bufio"
	"encoding/hex"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"sync"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Uint64 returns a pseudo-random uint64.
func (r *RNG) Uint64() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Uint64()
}

// HexDigests generates n random 40-character uppercase hex strings, the
// shape of SHA-1 digests in a breach corpus.
// Uses a single backing buffer for efficiency.
func (r *RNG) HexDigests(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	raw := make([]byte, 20)
	buf := make([]byte, 40*n)
	out := make([]string, n)
	for i := range n {
		_, _ = r.rand.Read(raw)
		dst := buf[i*40 : (i+1)*40]
		hex.Encode(dst, raw)
		out[i] = strings.ToUpper(string(dst))
	}
	return out
}

// HIBPLines formats digests as "DIGEST:COUNT" lines with random counts.
func (r *RNG) HIBPLines(digests []string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, len(digests))
	for i, d := range digests {
		out[i] = d + ":" + strconv.Itoa(1+r.rand.Intn(100000))
	}
	return out
}

// Words generates n random lowercase words with lengths in [minLen, maxLen].
func (r *RNG) Words(n, minLen, maxLen int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, n)
	var sb strings.Builder
	for i := range n {
		sb.Reset()
		l := minLen + r.rand.Intn(maxLen-minLen+1)
		for range l {
			sb.WriteByte(byte('a' + r.rand.Intn(26)))
		}
		out[i] = sb.String()
	}
	return out
}

// Sample returns k distinct elements of items in random order.
// If k >= len(items), all items are returned shuffled.
func (r *RNG) Sample(items []string, k int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	perm := r.rand.Perm(len(items))
	k = min(k, len(items))
	out := make([]string, k)
	for i := range k {
		out[i] = items[perm[i]]
	}
	return out
}

// WriteLines writes lines to path, one per line.
func WriteLines(path string, lines []string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriterSize(f, 1<<20)
	for _, l := range lines {
		if _, err := w.WriteString(l); err != nil {
			_ = f.Close()
			return err
		}
		if err := w.WriteByte('\n'); err != nil {
			_ = f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// FalsePositiveRate measures the share of queries that contains reports as
// present. Queries must be known absent from the set.
func FalsePositiveRate(contains func([]byte) (bool, error), queries []string) (float64, error) {
	if len(queries) == 0 {
		return 0, nil
	}
	hits := 0
	for _, p := range queries {
		ok, err := contains([]byte(p))
		if err != nil {
			return 0, err
		}
		if ok {
			hits++
		}
	}
	return float64(hits) / float64(len(queries)), nil
}
