package bloomfile

import (
	"github.com/hupe1980/bloomfile/codec"
	"github.com/hupe1980/bloomfile/internal/fs"
	"github.com/hupe1980/bloomfile/internal/mmap"
)

type options struct {
	readOnly         bool
	expect           Params
	alignment        int64
	fs               fs.FileSystem
	codec            codec.Codec
	advice           mmap.AccessPattern
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures how a filter file is created or opened.
type Option func(*options)

// WithReadOnly maps the data region read-only. Add and AddBulk then fail
// with ErrPermissionDenied and Sync is a no-op.
func WithReadOnly() Option {
	return func(o *options) {
		o.readOnly = true
	}
}

// WithExpect declares the parameters the caller intends to hash with.
// When a file is opened read-write, every non-zero field must equal the
// stored header value or Open fails with ErrParameterMismatch.
//
// Read-only opens ignore the expectation: a reader always uses the
// stored parameters.
func WithExpect(p Params) Option {
	return func(o *options) {
		o.expect = p
	}
}

// WithAlignment overrides the alignment used by Create. It must be a
// positive multiple of 512. Opening ignores it: the stored offset wins.
func WithAlignment(alignment int64) Option {
	return func(o *options) {
		o.alignment = alignment
	}
}

// WithFileSystem replaces the file system used to create and open files.
// Intended for fault injection in tests.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		if fsys == nil {
			fsys = fs.Default
		}
		o.fs = fsys
	}
}

// WithCodec configures the codec used to encode new headers.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithAccessPattern sets the madvise hint applied to the mapping.
// Membership tests touch random pages, so the default is AccessRandom.
func WithAccessPattern(p mmap.AccessPattern) Option {
	return func(o *options) {
		o.advice = p
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
//	metrics := &bloomfile.BasicMetricsCollector{}
//	f, _ := bloomfile.Open(path, bloomfile.WithMetricsCollector(metrics))
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		fs:               fs.Default,
		codec:            codec.Default,
		advice:           mmap.AccessRandom,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
