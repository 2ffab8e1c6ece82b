package bloomfile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	ifs "github.com/hupe1980/bloomfile/internal/fs"
	"github.com/hupe1980/bloomfile/internal/mmap"
)

// Filter is a Bloom filter backed by a memory-mapped file.
//
// Several processes may open the same path read-write at once. Each maps the
// data region MAP_SHARED, so the OS page cache is the single backing store
// and a bit set by one process is seen by all others. No lock guards
// individual bit flips; see AddBulk for the consequences.
//
// A Filter is safe for concurrent use by multiple goroutines, with the same
// byte-level caveat for concurrent writers.
type Filter struct {
	path     string
	header   Header
	readOnly bool

	mu      sync.RWMutex // Close vs. in-flight operations
	file    ifs.File
	mapping *mmap.Mapping

	logger  *Logger
	metrics MetricsCollector
}

// Create creates a new filter file at path, replacing any existing file.
//
// The data region starts at the alignment (OS page size by default) and its
// size is ceil(ceil(m/8)/alignment)*alignment. The file is extended with
// ftruncate and never zero-filled: Create relies on the filesystem returning
// zeros for extents that were never written. Every POSIX filesystem and NTFS
// behave this way; a filesystem that does not would produce false positives,
// never false negatives.
//
// A failed Create removes the partially written file.
func Create(path string, m uint64, k uint32, scheme Scheme, optFns ...Option) (*Filter, error) {
	o := applyOptions(optFns)
	ctx := context.Background()
	logger := o.logger.WithPath(path)

	if m == 0 || k == 0 {
		return nil, fmt.Errorf("%w: m (bits) and k (hashes) must be positive for creation (m=%d, k=%d)",
			ErrInvalidArgument, m, k)
	}
	if scheme == SchemeUnspecified {
		scheme = DefaultScheme
		logger.InfoContext(ctx, "no hash function specified for creation, using default", "hash_func", scheme.String())
	}
	if !scheme.Valid() {
		return nil, fmt.Errorf("%w: unknown hash function %s", ErrInvalidArgument, scheme)
	}
	if o.readOnly {
		return nil, fmt.Errorf("%w: cannot create a read-only filter", ErrInvalidArgument)
	}

	alignment := o.alignment
	if alignment == 0 {
		alignment = mmap.Alignment()
	}
	if alignment <= 0 || alignment%512 != 0 {
		return nil, fmt.Errorf("%w: alignment %d is not a positive multiple of 512", ErrConfiguration, alignment)
	}

	h, err := layout(m, k, scheme, alignment)
	if err != nil {
		return nil, err
	}
	line, err := EncodeHeader(o.codec, h)
	if err != nil {
		return nil, fmt.Errorf("bloomfile: encode header: %w", err)
	}
	if int64(len(line)) > h.Offset {
		err := fmt.Errorf("%w: header length (%d bytes) exceeds alignment (%d bytes)", ErrConfiguration, len(line), h.Offset)
		logger.LogCreate(ctx, h, err)
		return nil, err
	}

	f, err := o.fs.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("bloomfile: create %s: %w", path, err)
	}

	filt, err := buildFile(f, h, line, o)
	if err != nil {
		_ = f.Close()
		_ = o.fs.Remove(path)
		err = fmt.Errorf("bloomfile: create %s: %w", path, err)
		logger.LogCreate(ctx, h, err)
		return nil, err
	}
	filt.path = path
	filt.logger = logger

	logger.LogCreate(ctx, h, nil)
	return filt, nil
}

func buildFile(f ifs.File, h Header, line []byte, o options) (*Filter, error) {
	if _, err := f.WriteAt(line, 0); err != nil {
		return nil, err
	}
	// Padding up to Offset and the whole data region stay sparse.
	if err := f.Truncate(h.Offset + h.Size); err != nil {
		return nil, err
	}
	if err := f.Sync(); err != nil {
		return nil, err
	}

	m, err := mmap.Map(f.Fd(), h.Offset, int(h.Size), mmap.ReadWrite)
	if err != nil {
		return nil, err
	}
	_ = m.Advise(o.advice)

	return &Filter{
		header:  h,
		file:    f,
		mapping: m,
		metrics: o.metricsCollector,
	}, nil
}

// Open opens an existing filter file.
//
// The header is read and validated: an unreadable or invalid header is
// ErrCorruptFile, a file shorter than Offset+Size is ErrTruncated. With
// WithExpect, a read-write open fails with ErrParameterMismatch when the
// supplied parameters differ from the stored ones.
func Open(path string, optFns ...Option) (*Filter, error) {
	o := applyOptions(optFns)
	ctx := context.Background()
	logger := o.logger.WithPath(path)

	flag := os.O_RDWR
	mode := mmap.ReadWrite
	if o.readOnly {
		flag = os.O_RDONLY
		mode = mmap.ReadOnly
	}

	f, err := o.fs.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("bloomfile: open %s: %w", path, err)
	}

	filt, err := openFile(f, path, mode, o)
	if err != nil {
		_ = f.Close()
		logger.LogOpen(ctx, Header{}, o.readOnly, err)
		return nil, err
	}
	filt.path = path
	filt.logger = logger

	logger.LogOpen(ctx, filt.header, o.readOnly, nil)
	return filt, nil
}

func openFile(f ifs.File, path string, mode mmap.Mode, o options) (*Filter, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("bloomfile: stat %s: %w", path, err)
	}

	h, _, err := readHeader(f, path, fi.Size(), o.codec)
	if err != nil {
		return nil, err
	}

	if mode == mmap.ReadWrite {
		if err := checkExpect(path, h, o.expect); err != nil {
			return nil, err
		}
	}

	m, err := mmap.Map(f.Fd(), h.Offset, int(h.Size), mode)
	if err != nil {
		return nil, fmt.Errorf("%w: map %s: %w", ErrMapUnavailable, path, err)
	}
	_ = m.Advise(o.advice)

	return &Filter{
		header:   h,
		readOnly: mode == mmap.ReadOnly,
		file:     f,
		mapping:  m,
		metrics:  o.metricsCollector,
	}, nil
}

func checkExpect(path string, h Header, want Params) error {
	switch {
	case want.M != 0 && want.M != h.M:
		return &ParameterMismatchError{Path: path, Field: "m", Stored: h.M, Supplied: want.M}
	case want.K != 0 && want.K != h.K:
		return &ParameterMismatchError{Path: path, Field: "k", Stored: h.K, Supplied: want.K}
	case want.HashFunc != SchemeUnspecified && want.HashFunc != h.HashFunc:
		return &ParameterMismatchError{Path: path, Field: "hash_func_name", Stored: h.HashFunc, Supplied: want.HashFunc}
	}
	return nil
}

// OpenOrCreate opens the filter at path if it exists and creates it otherwise.
//
// An existing file is validated against p (zero fields are not checked) and
// its stored parameters win. Creating requires p.M and p.K; p.HashFunc
// defaults to DefaultScheme. With WithReadOnly a missing file is an error
// matching fs.ErrNotExist.
func OpenOrCreate(path string, p Params, optFns ...Option) (*Filter, error) {
	o := applyOptions(optFns)

	_, err := o.fs.Stat(path)
	switch {
	case err == nil:
		return Open(path, slices.Concat(optFns, []Option{WithExpect(p)})...)
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("bloomfile: stat %s: %w", path, err)
	case o.readOnly:
		return nil, fmt.Errorf("bloomfile: %s not found and opened in read-only mode: %w", path, fs.ErrNotExist)
	case p.M == 0 || p.K == 0:
		return nil, fmt.Errorf("%w: filter file %s does not exist, and m and k are required for creation",
			ErrInvalidArgument, path)
	}
	return Create(path, p.M, p.K, p.HashFunc, optFns...)
}

// Header returns the stored header.
func (f *Filter) Header() Header { return f.header }

// Params returns the stored hashing parameters.
func (f *Filter) Params() Params { return f.header.Params() }

// Path returns the file path the filter was opened from.
func (f *Filter) Path() string { return f.path }

// ReadOnly reports whether the data region is mapped read-only.
func (f *Filter) ReadOnly() bool { return f.readOnly }

func (f *Filter) String() string {
	status := "writable"
	if f.readOnly {
		status = "read-only"
	}
	mapped := "mapped"
	if f.mapping.Closed() {
		mapped = "closed"
	}
	return fmt.Sprintf("<Filter file=%q m=%d k=%d hash=%q status=%s/%s>",
		f.path, f.header.M, f.header.K, f.header.HashFunc, status, mapped)
}

// bits returns the mapped data region. Callers hold f.mu.
func (f *Filter) bits() ([]byte, error) {
	b := f.mapping.Bytes()
	if b == nil {
		return nil, fmt.Errorf("%w: filter %s is closed", ErrMapUnavailable, f.path)
	}
	return b, nil
}

func (f *Filter) indices(dst []uint64, item []byte) []uint64 {
	return f.header.HashFunc.AppendIndices(dst, item, f.header.M, f.header.K)
}

// Add inserts item. Adding an item twice leaves the bits unchanged.
func (f *Filter) Add(item []byte) (err error) {
	start := time.Now()
	defer func() { f.metrics.RecordAdd(time.Since(start), err) }()

	if f.readOnly {
		return fmt.Errorf("%w: cannot add items to %s", ErrPermissionDenied, f.path)
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	bits, err := f.bits()
	if err != nil {
		return err
	}

	var buf [32]uint64
	for _, i := range f.indices(buf[:0], item) {
		if err := setBit(bits, f.header.M, i); err != nil {
			f.logger.Warn("ignoring out of range index on add", "index", i, "error", err)
		}
	}
	return nil
}

// AddBulk inserts items and returns the number of bits that changed from 0 to 1.
//
// The positions of all items are first collected into a set, then each
// distinct bit is written once in ascending order. The result is identical
// to calling Add for every item.
//
// No lock is taken. Each bit is set with an atomic OR on its 32-bit word, so
// concurrent writers in other processes cannot drop it. Writers that update
// the file with a plain byte read-modify-write (older tools) can still race
// with this one and lose a flip; a lost bit raises the false-positive rate
// slightly and can make the item whose bit was dropped test negative.
func (f *Filter) AddBulk(items [][]byte) (flipped int, err error) {
	start := time.Now()
	defer func() { f.metrics.RecordBulkAdd(len(items), flipped, time.Since(start)) }()

	if f.readOnly {
		return 0, fmt.Errorf("%w: cannot add items to %s", ErrPermissionDenied, f.path)
	}

	set := roaring64.New()
	buf := make([]uint64, 0, f.header.K)
	for _, item := range items {
		buf = f.indices(buf[:0], item)
		set.AddMany(buf)
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	bits, err := f.bits()
	if err != nil {
		return 0, err
	}

	m := f.header.M
	it := set.Iterator()
	for it.HasNext() {
		i := it.Next()
		if i >= m {
			f.logger.Warn("ignoring out of range index on bulk add", "index", i, "m", m)
			continue
		}
		if !hasBit(bits, i) && orBit(bits, i) {
			flipped++
		}
	}
	return flipped, nil
}

// Contains reports whether item may be in the set. false is authoritative:
// the item was never added. true is probabilistic.
//
// An index outside [0, m) resolves to false with a logged diagnostic. Only a
// closed or unusable mapping is returned as an error.
func (f *Filter) Contains(item []byte) (found bool, err error) {
	start := time.Now()
	defer func() { f.metrics.RecordContains(found, time.Since(start), err) }()

	f.mu.RLock()
	defer f.mu.RUnlock()

	bits, err := f.bits()
	if err != nil {
		return false, err
	}

	var buf [32]uint64
	for _, i := range f.indices(buf[:0], item) {
		set, err := testBit(bits, f.header.M, i)
		if err != nil {
			f.logger.Warn("index out of range during check, assuming not present", "index", i, "error", err)
			return false, nil
		}
		if !set {
			return false, nil
		}
	}
	return true, nil
}

// Sync flushes the mapped pages and the file metadata to stable storage.
// It is a no-op for read-only filters.
func (f *Filter) Sync() error {
	if f.readOnly {
		return nil
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if err := f.mapping.Sync(); err != nil {
		return translateError(err)
	}
	if err := f.file.Sync(); err != nil {
		return fmt.Errorf("bloomfile: fsync %s: %w", f.path, err)
	}
	return nil
}

// Count returns the number of bits set, for fill-ratio reporting.
func (f *Filter) Count() (uint64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	bits, err := f.bits()
	if err != nil {
		return 0, err
	}
	return countBits(bits, f.header.M), nil
}

// Close unmaps the data region and closes the file. It does not sync.
// Close is idempotent; operations after Close fail with ErrMapUnavailable.
func (f *Filter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.mapping.Closed() {
		return nil
	}
	return errors.Join(f.mapping.Close(), f.file.Close())
}
