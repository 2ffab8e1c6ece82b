package bloomfile

import (
	"fmt"
	"io"
	"math"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/hupe1980/bloomfile/internal/mmap"
)

// Info describes a filter file.
type Info struct {
	Path string
	Header
	// Alignment is the alignment the running platform would use for a new
	// filter. It can differ from Offset when the file was built elsewhere.
	Alignment int64
	// FileSize is the on-disk length in bytes.
	FileSize int64
	// BitsSet is the number of set bits; zero unless counted.
	BitsSet uint64
}

// FillRatio returns the fraction of the m bits that are set.
func (i Info) FillRatio() float64 {
	if i.M == 0 {
		return 0
	}
	return float64(i.BitsSet) / float64(i.M)
}

// Estimate is the theoretical behavior of a filter at a given load.
type Estimate struct {
	N                 uint64
	FalsePositiveRate float64
	OptimalK          float64
	ActualK           uint32
}

// InspectOption configures Inspect.
type InspectOption func(*inspectOptions)

type inspectOptions struct {
	countBits bool
	opts      []Option
}

// WithBitCount makes Inspect scan the data region and fill Info.BitsSet.
func WithBitCount() InspectOption {
	return func(o *inspectOptions) { o.countBits = true }
}

// WithOpenOptions passes filter options (logger, file system) to the open.
func WithOpenOptions(opts ...Option) InspectOption {
	return func(o *inspectOptions) { o.opts = append(o.opts, opts...) }
}

// Inspect opens the filter at path read-only and reports its parameters.
func Inspect(path string, optFns ...InspectOption) (Info, error) {
	var cfg inspectOptions
	for _, fn := range optFns {
		fn(&cfg)
	}

	f, err := Open(path, append(cfg.opts, WithReadOnly(), WithAccessPattern(accessFor(cfg.countBits)))...)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()

	info := Info{
		Path:      path,
		Header:    f.Header(),
		Alignment: Alignment(),
	}
	if fi, err := f.file.Stat(); err == nil {
		info.FileSize = fi.Size()
	}
	if cfg.countBits {
		if info.BitsSet, err = f.Count(); err != nil {
			return Info{}, err
		}
	}
	return info, nil
}

// Estimate returns the false-positive rate of the filter after n insertions.
func (i Info) Estimate(n uint64) (Estimate, error) {
	if n == 0 {
		return Estimate{}, fmt.Errorf("%w: estimated item count must be positive", ErrInvalidArgument)
	}
	return Estimate{
		N:                 n,
		FalsePositiveRate: FalsePositiveRate(i.M, i.K, n),
		OptimalK:          OptimalK(i.M, n),
		ActualK:           i.K,
	}, nil
}

// Report writes a human-readable summary of the filter. With n > 0 it also
// includes the theoretical estimate for n items.
func (i Info) Report(w io.Writer, n uint64) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "File:\t%s\n", i.Path)
	fmt.Fprintf(tw, "Bits (m):\t%d\n", i.M)
	fmt.Fprintf(tw, "Hash functions (k):\t%d\n", i.K)
	fmt.Fprintf(tw, "Hash scheme:\t%s\n", i.HashFunc)
	fmt.Fprintf(tw, "Data offset:\t%d B\n", i.Offset)
	fmt.Fprintf(tw, "Data size:\t%d B (%s)\n", i.Size, humanize.IBytes(uint64(i.Size)))
	if i.FileSize > 0 {
		fmt.Fprintf(tw, "File size:\t%d B\n", i.FileSize)
	}
	fmt.Fprintf(tw, "Platform alignment:\t%d B\n", i.Alignment)
	if i.BitsSet > 0 {
		fmt.Fprintf(tw, "Bits set:\t%d (%.4f%%)\n", i.BitsSet, i.FillRatio()*100)
	}

	if n > 0 {
		e, err := i.Estimate(n)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "Estimated items (n):\t%d\n", e.N)
		fmt.Fprintf(tw, "False positive rate:\t%.6g\n", e.FalsePositiveRate)
		fmt.Fprintf(tw, "Optimal k for n:\t%.2f (actual %d)\n", e.OptimalK, e.ActualK)
		if !math.IsInf(e.OptimalK, 0) && math.Abs(e.OptimalK-float64(e.ActualK)) >= 1 {
			fmt.Fprintf(tw, "Note:\tk differs from optimum; the filter was sized for a different n\n")
		}
	}
	return tw.Flush()
}

func accessFor(scan bool) mmap.AccessPattern {
	if scan {
		return mmap.AccessSequential
	}
	return mmap.AccessRandom
}
