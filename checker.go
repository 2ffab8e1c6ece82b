package bloomfile

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/hupe1980/bloomfile/internal/mmap"
)

// Health describes the state of a Checker.
type Health struct {
	Initialized            bool   `json:"initialized"`
	UsingAcceleratedFilter bool   `json:"using_accelerated_filter"`
	DataPath               string `json:"data_path"`
	FilterPath             string `json:"filter_path"`
	Error                  string `json:"error,omitempty"`
}

// Checker answers "has this password appeared in a breach corpus" against a
// corpus of uppercase SHA-1 digests, one "HASH[:count]" per line, sorted by
// hash.
//
// The filter lives next to the corpus it was built from: for a data file
// "pwned-passwords.txt" the filter is "pwned-passwords.bloom". The data file
// must exist for the checker to be initialized. When the filter opens, Check
// answers from it; otherwise Check binary-searches the mapped corpus.
type Checker struct {
	dataPath   string
	filterPath string

	mu        sync.RWMutex
	corpus    *corpus
	filter    *Filter
	dataErr   error
	filterErr error
}

// FilterPathFor returns the filter path used for a corpus file.
func FilterPathFor(dataPath string) string {
	return strings.TrimSuffix(dataPath, filepath.Ext(dataPath)) + ".bloom"
}

// NewChecker maps the corpus at dataPath and opens its filter read-only.
func NewChecker(dataPath string, opts ...Option) *Checker {
	c := &Checker{
		dataPath:   dataPath,
		filterPath: FilterPathFor(dataPath),
	}
	c.corpus, c.dataErr = openCorpus(dataPath)
	c.filter, c.filterErr = Open(c.filterPath, slices.Concat(opts, []Option{WithReadOnly()})...)
	return c
}

// Check reports whether password may be in the corpus.
func (c *Checker) Check(password string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.dataErr != nil {
		return false, fmt.Errorf("%w: checker not initialized: %w", ErrMapUnavailable, c.dataErr)
	}
	if c.filter != nil {
		return c.filter.Contains(SHA1Hex(password))
	}
	return c.corpus.contains(SHA1Hex(password)), nil
}

// Health returns the checker state. Error carries the data file failure, and
// the filter failure when the checker runs without acceleration.
func (c *Checker) Health() Health {
	c.mu.RLock()
	defer c.mu.RUnlock()

	h := Health{
		Initialized:            c.dataErr == nil,
		UsingAcceleratedFilter: c.filter != nil,
		DataPath:               c.dataPath,
		FilterPath:             c.filterPath,
	}
	if err := errors.Join(c.dataErr, c.filterErr); err != nil {
		h.Error = err.Error()
	}
	return h
}

// Close releases the filter and the corpus mapping.
func (c *Checker) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	if c.filter != nil {
		errs = append(errs, c.filter.Close())
		c.filter = nil
	}
	if c.corpus != nil {
		errs = append(errs, c.corpus.close())
		c.corpus = nil
	}
	c.dataErr = fmt.Errorf("%w: checker closed", ErrMapUnavailable)
	c.filterErr = nil
	return errors.Join(errs...)
}

// corpus is a read-only mapping of a sorted digest file.
type corpus struct {
	m *mmap.Mapping // nil for an empty file
}

func openCorpus(path string) (*corpus, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("data file: %w", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("data file: %w", err)
	}
	if fi.Size() == 0 {
		return &corpus{}, nil
	}
	m, err := mmap.Map(f.Fd(), 0, int(fi.Size()), mmap.ReadOnly)
	if err != nil {
		return nil, fmt.Errorf("%w: data file %s: %w", ErrMapUnavailable, path, err)
	}
	_ = m.Advise(mmap.AccessRandom)
	return &corpus{m: m}, nil
}

func (c *corpus) contains(digest []byte) bool {
	if c.m == nil {
		return false
	}
	return searchSorted(c.m.Bytes(), digest)
}

func (c *corpus) close() error {
	if c.m == nil {
		return nil
	}
	return c.m.Close()
}

// searchSorted binary-searches newline-separated records ordered by their
// uppercase key for key.
func searchSorted(data, key []byte) bool {
	lo, hi := 0, len(data)
	for lo < hi {
		mid := lo + (hi-lo)/2
		start := lo + bytes.LastIndexByte(data[lo:mid], '\n') + 1
		end := hi
		if i := bytes.IndexByte(data[mid:hi], '\n'); i >= 0 {
			end = mid + i
		}

		switch bytes.Compare(recordKey(data[start:end]), key) {
		case 0:
			return true
		case -1:
			lo = end + 1
		default:
			hi = start
		}
	}
	return false
}

// recordKey returns the uppercase digest of a "HASH[:count]" line.
func recordKey(line []byte) []byte {
	key, _, _ := bytes.Cut(bytes.TrimSpace(line), []byte(":"))
	return bytes.ToUpper(key)
}
