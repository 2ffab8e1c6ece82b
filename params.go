package bloomfile

import (
	"fmt"
	"math"

	"github.com/hupe1980/bloomfile/internal/mmap"
)

// Params are the parameters that fix how items map to bits.
// A zero field means "unspecified".
type Params struct {
	M        uint64
	K        uint32
	HashFunc Scheme
}

// CalculateOptimalParams returns the bit count m and hash count k that hold
// n items at false-positive rate p:
//
//	m = ceil(-n*ln(p) / ln(2)^2)
//	k = max(1, round((m/n)*ln(2)))
//
// It requires n > 0 and 0 < p < 1.
func CalculateOptimalParams(n uint64, p float64) (m uint64, k uint32, err error) {
	if !(p > 0 && p < 1) {
		return 0, 0, fmt.Errorf("%w: false positive probability p must be between 0 and 1, got %v", ErrInvalidArgument, p)
	}
	if n == 0 {
		return 0, 0, fmt.Errorf("%w: number of items n must be positive", ErrInvalidArgument)
	}

	mf := -(float64(n) * math.Log(p)) / (math.Ln2 * math.Ln2)
	m = uint64(math.Ceil(mf))
	kf := math.RoundToEven(float64(m) / float64(n) * math.Ln2)
	k = uint32(max(1, kf))
	return m, k, nil
}

// OptimalK returns the hash count that minimizes the false-positive rate of
// m bits holding n items, (m/n)*ln(2). It is not rounded.
func OptimalK(m, n uint64) float64 {
	if n == 0 {
		return math.Inf(1)
	}
	return float64(m) / float64(n) * math.Ln2
}

// minLogProbability is the natural log below which a probability is
// reported as exactly zero.
const minLogProbability = -700

// FalsePositiveRate returns the theoretical false-positive probability of a
// filter with m bits and k hashes after n insertions, (1 - e^(-k*n/m))^k.
//
// The power is evaluated in log space. An extremely negative log-probability
// (a nearly empty filter) is reported as 0 instead of underflowing.
func FalsePositiveRate(m uint64, k uint32, n uint64) float64 {
	if m == 0 || k == 0 {
		return 1
	}
	if n == 0 {
		return 0
	}
	x := -float64(k) * float64(n) / float64(m)
	// 1 - e^x, exact for x close to zero.
	fill := -math.Expm1(x)
	if fill <= 0 {
		return 0
	}
	logP := float64(k) * math.Log(fill)
	if logP < minLogProbability {
		return 0
	}
	return math.Exp(logP)
}

// Alignment returns the data region alignment new filters use on this
// platform. See mmap.Alignment.
func Alignment() int64 {
	return mmap.Alignment()
}
