package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/hupe1980/bloomfile"
	"github.com/hupe1980/bloomfile/codec"
)

var (
	possibly   = color.New(color.FgYellow).SprintFunc()
	definitely = color.New(color.FgGreen).SprintFunc()
)

func parseHash(name string) (bloomfile.Scheme, error) {
	if name == "" || name == "auto" {
		return bloomfile.SchemeUnspecified, nil
	}
	return bloomfile.ParseScheme(name)
}

func parseHashCount(k uint) (uint32, error) {
	if uint64(k) > math.MaxUint32 {
		return 0, usageErrorf("-k %d is out of range", k)
	}
	return uint32(k), nil
}

func parseCompression(name string) (codec.Compression, error) {
	if name == "" {
		return codec.DefaultCompression, nil
	}
	c, ok := codec.CompressionByName(name)
	if !ok {
		return nil, usageErrorf("unknown compression %q", name)
	}
	return c, nil
}

func runLoad(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "load")
	var (
		filterPath  = fs.String("filter", "", "filter file to create or update")
		inputPath   = fs.String("input", "", "input file, one item per line")
		m           = fs.Uint64("m", 0, "number of bits (required when the filter does not exist, unless -n and -p are set)")
		k           = fs.Uint("k", 0, "number of hash functions (required with -m)")
		n           = fs.Uint64("n", 0, "expected number of items, used with -p to size a new filter")
		p           = fs.Float64("p", 0, "target false-positive rate, used with -n")
		hashName    = fs.String("hash", "auto", "hash scheme for creation: murmur3, md5, xxhash or auto")
		normalize   = fs.String("normalize", "none", "input normalization: none, lowercase or sha1")
		workers     = fs.Int("workers", 0, "concurrent workers (default: number of CPUs)")
		chunkSize   = fs.Int("chunk-size", bloomfile.DefaultChunkSize, "lines per chunk")
		executor    = fs.String("executor", envDefault("BLOOMFILE_EXECUTOR", "process"), "worker executor: process or local")
		ioLimit     = fs.Int64("io-limit", 0, "input read limit in bytes per second (0 = unlimited)")
		maxInFlight = fs.Int64("max-inflight", 0, "bytes of chunk data in flight (0 = unlimited)")
	)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *filterPath == "" || *inputPath == "" {
		return usageErrorf("-filter and -input are required")
	}

	scheme, err := parseHash(*hashName)
	if err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	norm, err := bloomfile.ParseNormalization(*normalize)
	if err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	hashes, err := parseHashCount(*k)
	if err != nil {
		return err
	}

	params := bloomfile.Params{M: *m, K: hashes, HashFunc: scheme}
	if *n > 0 || *p > 0 {
		if *m != 0 || *k != 0 {
			return usageErrorf("-n/-p and -m/-k are mutually exclusive")
		}
		params.M, params.K, err = bloomfile.CalculateOptimalParams(*n, *p)
		if err != nil {
			return fmt.Errorf("%w: %w", errUsage, err)
		}
	}

	filterOpts := []bloomfile.Option{bloomfile.WithLogger(e.logger)}

	var exec bloomfile.Executor
	switch *executor {
	case "process":
		pe, err := bloomfile.NewProcessExecutor()
		if err != nil {
			return err
		}
		pe.Stderr = e.stderr
		exec = pe
	case "local":
		exec = bloomfile.LocalExecutor{Options: filterOpts}
	default:
		return usageErrorf("unknown executor %q", *executor)
	}

	metrics := &bloomfile.BasicMetricsCollector{}
	loader := bloomfile.NewLoader(bloomfile.LoaderConfig{
		Workers:            *workers,
		ChunkSize:          *chunkSize,
		Executor:           exec,
		InFlightBytesLimit: *maxInFlight,
		IOLimitBytesPerSec: *ioLimit,
		FilterOptions:      filterOpts,
		Logger:             e.logger,
		Metrics:            metrics,
	})

	res, err := loader.Load(ctx, bloomfile.LoadRequest{
		InputPath:     *inputPath,
		FilterPath:    *filterPath,
		Params:        params,
		Normalization: norm,
	})
	e.logger.DebugContext(ctx, "load metrics", "stats", metrics.GetStats())
	if err != nil {
		return err
	}

	rate := float64(res.LinesRead) / max(res.Elapsed.Seconds(), 1e-9)
	fmt.Fprintf(e.stdout, "Run:            %s\n", res.RunID)
	fmt.Fprintf(e.stdout, "Filter:         %s (m=%d, k=%d, hash=%s)\n", *filterPath, res.Params.M, res.Params.K, res.Params.HashFunc)
	fmt.Fprintf(e.stdout, "Lines read:     %s\n", humanize.Comma(res.LinesRead))
	fmt.Fprintf(e.stdout, "Items accepted: %s\n", humanize.Comma(res.Accepted))
	fmt.Fprintf(e.stdout, "Chunks:         %d (%d failed)\n", res.Chunks, res.FailedChunks)
	fmt.Fprintf(e.stdout, "Elapsed:        %s (%s lines/s)\n", res.Elapsed.Round(time.Millisecond), humanize.Comma(int64(rate)))
	if res.FailedChunks > 0 {
		for _, werr := range res.Errors {
			e.logger.WarnContext(ctx, "chunk failed", "error", werr)
		}
	}
	return nil
}

func runTest(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "test")
	var (
		filterPath = fs.String("filter", "", "filter file to query")
		normalize  = fs.String("normalize", "none", "value normalization: none, lowercase or sha1 (hash the value)")
	)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *filterPath == "" {
		return usageErrorf("-filter is required")
	}
	norm, err := bloomfile.ParseNormalization(*normalize)
	if err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	f, err := bloomfile.Open(*filterPath, bloomfile.WithReadOnly(), bloomfile.WithLogger(e.logger))
	if err != nil {
		return err
	}
	defer f.Close()

	check := func(value string) error {
		start := time.Now()
		found, err := f.Contains(norm.Query(value))
		if err != nil {
			return err
		}
		e.logger.DebugContext(ctx, "query", "value", value, "found", found, "duration", time.Since(start))
		if found {
			fmt.Fprintf(e.stdout, "%s\t%s\n", value, possibly("found (possibly in set)"))
		} else {
			fmt.Fprintf(e.stdout, "%s\t%s\n", value, definitely("not found (definitely not in set)"))
		}
		return nil
	}

	if fs.NArg() > 0 {
		for _, v := range fs.Args() {
			if err := check(v); err != nil {
				return err
			}
		}
		return nil
	}

	sc := bufio.NewScanner(e.stdin)
	for sc.Scan() {
		v := strings.TrimRight(sc.Text(), "\r")
		if v == "" {
			continue
		}
		if err := check(v); err != nil {
			return err
		}
	}
	return sc.Err()
}

func runInfo(_ context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "info")
	var (
		filterPath = fs.String("filter", "", "filter file to inspect")
		n          = fs.Uint64("n", 0, "estimated number of inserted items, for the false-positive estimate")
		count      = fs.Bool("count", false, "count set bits (scans the whole data region)")
	)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *filterPath == "" {
		return usageErrorf("-filter is required")
	}

	opts := []bloomfile.InspectOption{bloomfile.WithOpenOptions(bloomfile.WithLogger(e.logger))}
	if *count {
		opts = append(opts, bloomfile.WithBitCount())
	}
	info, err := bloomfile.Inspect(*filterPath, opts...)
	if err != nil {
		return err
	}
	return info.Report(e.stdout, *n)
}

func runParams(_ context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "params")
	var (
		n = fs.Uint64("n", 0, "expected number of items")
		p = fs.Float64("p", 0.001, "target false-positive rate")
	)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	m, k, err := bloomfile.CalculateOptimalParams(*n, *p)
	if err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	fmt.Fprintf(e.stdout, "m=%d\n", m)
	fmt.Fprintf(e.stdout, "k=%d\n", k)
	fmt.Fprintf(e.stdout, "size=%s\n", humanize.IBytes((m+7)/8))
	fmt.Fprintf(e.stdout, "fp_rate=%s\n", strconv.FormatFloat(bloomfile.FalsePositiveRate(m, k, *n), 'g', 6, 64))
	return nil
}

func runPack(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "pack")
	var (
		filterPath  = fs.String("filter", "", "filter file to pack")
		out         = fs.String("out", "", "archive to write")
		compression = fs.String("compression", "zstd", "archive compression: zstd, lz4 or none")
	)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *filterPath == "" || *out == "" {
		return usageErrorf("-filter and -out are required")
	}
	c, err := parseCompression(*compression)
	if err != nil {
		return err
	}

	w, err := os.Create(*out)
	if err != nil {
		return err
	}
	if err := bloomfile.Pack(ctx, *filterPath, w, c, bloomfile.WithLogger(e.logger)); err != nil {
		_ = w.Close()
		_ = os.Remove(*out)
		return err
	}
	if err := errors.Join(w.Sync(), w.Close()); err != nil {
		_ = os.Remove(*out)
		return err
	}
	return reportFile(e.stdout, *out)
}

func runUnpack(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "unpack")
	var (
		in         = fs.String("in", "", "archive to read")
		filterPath = fs.String("filter", "", "filter file to write")
	)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *in == "" || *filterPath == "" {
		return usageErrorf("-in and -filter are required")
	}

	r, err := os.Open(*in)
	if err != nil {
		return err
	}
	defer r.Close()

	h, err := bloomfile.Unpack(ctx, r, *filterPath, bloomfile.WithLogger(e.logger))
	if err != nil {
		return err
	}
	printHeader(e.stdout, *filterPath, h)
	return nil
}

func runPublish(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "publish")
	var (
		storeURL    = fs.String("store", envDefault("BLOOMFILE_STORE", ""), "blob store URL: file://DIR, s3://BUCKET/PREFIX or minio://HOST/BUCKET/PREFIX")
		name        = fs.String("name", "", "archive name in the store")
		filterPath  = fs.String("filter", "", "filter file to publish")
		compression = fs.String("compression", "zstd", "archive compression: zstd, lz4 or none")
	)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *storeURL == "" || *name == "" || *filterPath == "" {
		return usageErrorf("-store, -name and -filter are required")
	}
	c, err := parseCompression(*compression)
	if err != nil {
		return err
	}
	store, err := openStore(ctx, *storeURL)
	if err != nil {
		return err
	}

	if err := bloomfile.Publish(ctx, store, *name, *filterPath, c, bloomfile.WithLogger(e.logger)); err != nil {
		return err
	}
	e.logger.InfoContext(ctx, "filter published", "store", *storeURL, "name", *name, "compression", c.Name())
	return nil
}

func runFetch(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "fetch")
	var (
		storeURL   = fs.String("store", envDefault("BLOOMFILE_STORE", ""), "blob store URL: file://DIR, s3://BUCKET/PREFIX or minio://HOST/BUCKET/PREFIX")
		name       = fs.String("name", "", "archive name in the store")
		filterPath = fs.String("filter", "", "filter file to write")
	)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *storeURL == "" || *name == "" || *filterPath == "" {
		return usageErrorf("-store, -name and -filter are required")
	}
	store, err := openStore(ctx, *storeURL)
	if err != nil {
		return err
	}

	h, err := bloomfile.Fetch(ctx, store, *name, *filterPath, bloomfile.WithLogger(e.logger))
	if err != nil {
		return err
	}
	printHeader(e.stdout, *filterPath, h)
	return nil
}

// runWorker serves one chunk for a ProcessExecutor.
func runWorker(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, bloomfile.WorkerCommand)
	var (
		filterPath = fs.String("filter", "", "")
		m          = fs.Uint64("m", 0, "")
		k          = fs.Uint("k", 0, "")
		hashName   = fs.String("hash", "auto", "")
		normalize  = fs.String("normalize", "none", "")
		chunk      = fs.Int("chunk", 0, "")
	)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *filterPath == "" {
		return usageErrorf("-filter is required")
	}
	scheme, err := parseHash(*hashName)
	if err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	norm, err := bloomfile.ParseNormalization(*normalize)
	if err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	hashes, err := parseHashCount(*k)
	if err != nil {
		return err
	}

	req := bloomfile.WorkerRequest{
		Path:          *filterPath,
		Params:        bloomfile.Params{M: *m, K: hashes, HashFunc: scheme},
		Normalization: norm,
		Chunk:         *chunk,
	}
	logger := e.logger.WithWorker(*chunk)
	if err := bloomfile.ServeWorker(ctx, req, e.stdin, e.stdout, bloomfile.WithLogger(logger)); err != nil {
		return fmt.Errorf("chunk %d: %w", *chunk, err)
	}
	return nil
}

func printHeader(w io.Writer, path string, h bloomfile.Header) {
	fmt.Fprintf(w, "%s: m=%d k=%d hash=%s offset=%d size=%s\n",
		path, h.M, h.K, h.HashFunc, h.Offset, humanize.IBytes(uint64(h.Size)))
}

func reportFile(w io.Writer, path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s: %s\n", path, humanize.IBytes(uint64(fi.Size())))
	return nil
}
