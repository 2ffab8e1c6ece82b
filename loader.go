package bloomfile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hupe1980/bloomfile/internal/resource"
)

// LoaderState is the lifecycle stage of a Loader.
type LoaderState int32

const (
	StateUninitialized LoaderState = iota
	StateInitializing
	StateRunning
	StateDraining
	StateSynced
	StateDone
	StateFailed
)

func (s LoaderState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateSynced:
		return "synced"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("LoaderState(%d)", int32(s))
	}
}

// DefaultProgressInterval is the minimum time between progress log records.
const DefaultProgressInterval = 2 * time.Second

// LoaderConfig configures a bulk load.
type LoaderConfig struct {
	// Workers is the number of chunks processed concurrently.
	// If 0, defaults to runtime.NumCPU().
	Workers int

	// ChunkSize is the number of lines per chunk.
	// If 0, defaults to DefaultChunkSize.
	ChunkSize int

	// Executor runs the workers. If nil, a LocalExecutor using FilterOptions.
	Executor Executor

	// InFlightBytesLimit bounds chunk bytes read but not yet processed.
	// If 0, only the worker limit applies.
	InFlightBytesLimit int64

	// IOLimitBytesPerSec caps the input read rate. If 0, unlimited.
	IOLimitBytesPerSec int64

	// ProgressInterval throttles progress logs.
	// If 0, defaults to DefaultProgressInterval.
	ProgressInterval time.Duration

	// FilterOptions are used when the loader opens or creates the filter.
	FilterOptions []Option

	Logger  *Logger
	Metrics MetricsCollector
}

// LoadRequest names the input and the filter of one load.
type LoadRequest struct {
	// InputPath is a newline-delimited text file. It must exist.
	InputPath string
	// FilterPath is opened, or created when missing.
	FilterPath string
	// Params are required to create the filter and validated otherwise.
	Params Params
	// Normalization is applied to every input line.
	Normalization Normalization
}

// LoadResult summarizes a load.
type LoadResult struct {
	RunID string
	// Params are the authoritative parameters of the filter.
	Params Params
	// LinesRead counts input lines, including blank and rejected ones.
	LinesRead int64
	// Accepted counts items handed to the filter by successful workers.
	Accepted int64
	// Chunks counts dispatched chunks.
	Chunks int
	// FailedChunks counts chunks whose worker failed; they contributed zero.
	FailedChunks int
	// Errors holds one *WorkerError per failed chunk.
	Errors  []error
	Elapsed time.Duration
}

// Loader bulk-populates a filter file from a line-oriented input using
// parallel workers. Workers write directly to the shared file mapping; the
// loader only aggregates their counts.
//
// A Loader runs a single load.
type Loader struct {
	cfg   LoaderConfig
	rc    *resource.Controller
	state atomic.Int32
}

// NewLoader returns a loader with defaults applied to cfg.
func NewLoader(cfg LoaderConfig) *Loader {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = DefaultProgressInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = NoopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NoopMetricsCollector{}
	}
	if cfg.Executor == nil {
		cfg.Executor = LocalExecutor{Options: cfg.FilterOptions}
	}

	return &Loader{
		cfg: cfg,
		rc: resource.NewController(resource.Config{
			MaxWorkers:         int64(cfg.Workers),
			InFlightBytesLimit: cfg.InFlightBytesLimit,
			IOLimitBytesPerSec: cfg.IOLimitBytesPerSec,
		}),
	}
}

// State returns the current lifecycle stage.
func (l *Loader) State() LoaderState {
	return LoaderState(l.state.Load())
}

func (l *Loader) setState(s LoaderState) {
	l.state.Store(int32(s))
}

// Load runs the bulk load described by req.
//
// A missing input or a filter whose stored parameters conflict with
// req.Params fails before any chunk is dispatched. A failing worker does not
// stop the load: its chunk counts as zero and is reported in the result.
// Cancelling ctx stops dispatching; chunks already running finish and the
// file is still synced.
func (l *Loader) Load(ctx context.Context, req LoadRequest) (LoadResult, error) {
	if !l.state.CompareAndSwap(int32(StateUninitialized), int32(StateInitializing)) {
		return LoadResult{}, fmt.Errorf("%w: loader is %s", ErrInvalidArgument, l.State())
	}

	start := time.Now()
	res := LoadResult{RunID: uuid.NewString()}
	logger := l.cfg.Logger.WithRunID(res.RunID).WithPath(req.FilterPath)

	in, params, err := l.initialize(req)
	if err != nil {
		l.setState(StateFailed)
		res.Elapsed = time.Since(start)
		logger.LogLoad(ctx, res, err)
		return res, err
	}
	defer in.Close()
	res.Params = params

	logger.InfoContext(ctx, "load started",
		"input", req.InputPath,
		"m", params.M,
		"k", params.K,
		"hash_func", params.HashFunc.String(),
		"normalization", req.Normalization.String(),
		"workers", l.cfg.Workers,
		"chunk_size", l.cfg.ChunkSize,
	)

	l.setState(StateRunning)
	runErr := l.run(ctx, logger, in, WorkerRequest{
		Path:          req.FilterPath,
		Params:        params,
		Normalization: req.Normalization,
	}, &res, start)

	syncErr := l.sync(req.FilterPath)
	if syncErr == nil {
		l.setState(StateSynced)
	}

	res.Elapsed = time.Since(start)
	if err := errors.Join(runErr, syncErr); err != nil {
		l.setState(StateFailed)
		logger.LogLoad(ctx, res, err)
		return res, err
	}

	l.setState(StateDone)
	logger.LogLoad(ctx, res, nil)
	return res, nil
}

// initialize validates the input and establishes the filter's parameters.
func (l *Loader) initialize(req LoadRequest) (*os.File, Params, error) {
	in, err := os.Open(req.InputPath)
	if err != nil {
		return nil, Params{}, fmt.Errorf("bloomfile: open input: %w", err)
	}

	f, err := OpenOrCreate(req.FilterPath, req.Params, l.cfg.FilterOptions...)
	if err != nil {
		_ = in.Close()
		return nil, Params{}, err
	}
	params := f.Params()
	if err := f.Close(); err != nil {
		_ = in.Close()
		return nil, Params{}, err
	}
	return in, params, nil
}

func (l *Loader) run(ctx context.Context, logger *Logger, in io.Reader, base WorkerRequest, res *LoadResult, start time.Time) error {
	var (
		mu       sync.Mutex
		accepted atomic.Int64
		done     atomic.Int64
		progress = rate.Sometimes{Interval: l.cfg.ProgressInterval}
	)

	g := new(errgroup.Group)
	g.SetLimit(l.cfg.Workers)

	cr := NewChunkReader(resource.NewRateLimitedReader(ctx, in, l.rc), l.cfg.ChunkSize)

	var readErr error
	for {
		if err := ctx.Err(); err != nil {
			readErr = err
			break
		}
		chunk, err := cr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			readErr = fmt.Errorf("bloomfile: read input: %w", err)
			break
		}

		reserved, err := l.rc.AcquireMemory(ctx, chunk.Bytes())
		if err != nil {
			readErr = err
			break
		}
		if err := l.rc.AcquireWorker(ctx); err != nil {
			l.rc.ReleaseMemory(reserved)
			readErr = err
			break
		}
		res.Chunks++

		req := base
		req.Chunk = chunk.Index
		g.Go(func() error {
			defer l.rc.ReleaseMemory(reserved)
			defer l.rc.ReleaseWorker()

			chunkStart := time.Now()
			out, err := l.cfg.Executor.Execute(context.WithoutCancel(ctx), req, chunk)
			l.cfg.Metrics.RecordChunk(out.Accepted, time.Since(chunkStart), err)
			logger.WithWorker(req.Chunk).LogChunk(ctx, req.Chunk, chunk.Len(), out.Accepted, err)

			if err != nil {
				mu.Lock()
				res.FailedChunks++
				res.Errors = append(res.Errors, &WorkerError{Chunk: req.Chunk, cause: err})
				mu.Unlock()
			} else {
				accepted.Add(int64(out.Accepted))
			}

			n := done.Add(1)
			progress.Do(func() {
				logger.LogProgress(ctx, accepted.Load(), int(n), time.Since(start), l.rc.BusyWorkers(), l.rc.MemoryUsage())
			})
			return nil
		})
	}

	l.setState(StateDraining)
	_ = g.Wait()

	res.LinesRead = cr.Lines()
	res.Accepted = accepted.Load()
	return readErr
}

// sync reopens the filter once and flushes it to disk.
func (l *Loader) sync(path string) error {
	f, err := Open(path, l.cfg.FilterOptions...)
	if err != nil {
		return fmt.Errorf("bloomfile: reopen for sync: %w", err)
	}
	return errors.Join(f.Sync(), f.Close())
}
