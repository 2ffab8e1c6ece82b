// Command bloomfile builds, queries and distributes file-backed Bloom filters.
//
// Usage:
//
//	bloomfile load    -filter F -input I [-n N -p P | -m M -k K] [-hash H] [-workers W] [-normalize none|lowercase|sha1]
//	bloomfile test    -filter F [-normalize none|lowercase|sha1] [value...]
//	bloomfile info    -filter F [-n N] [-count]
//	bloomfile params  -n N -p P
//	bloomfile pack    -filter F -out A [-compression zstd|lz4|none]
//	bloomfile unpack  -in A -filter F
//	bloomfile publish -store URL -name NAME -filter F [-compression zstd|lz4|none]
//	bloomfile fetch   -store URL -name NAME -filter F
//
// LOG_LEVEL (debug, info, warn, error) and LOG_FORMAT (text, json) control
// diagnostics, which go to stderr.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/hupe1980/bloomfile"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type env struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	logger *bloomfile.Logger
}

type command struct {
	name   string
	usage  string
	hidden bool
	run    func(ctx context.Context, e *env, args []string) error
}

var commands = []command{
	{name: "load", usage: "create or open a filter and bulk-load a line file", run: runLoad},
	{name: "test", usage: "test values for membership", run: runTest},
	{name: "info", usage: "print filter parameters and false-positive estimates", run: runInfo},
	{name: "params", usage: "calculate m and k for n items at rate p", run: runParams},
	{name: "pack", usage: "write a filter as a compressed archive", run: runPack},
	{name: "unpack", usage: "recreate a filter from an archive", run: runUnpack},
	{name: "publish", usage: "pack a filter into a blob store", run: runPublish},
	{name: "fetch", usage: "unpack a filter from a blob store", run: runFetch},
	{name: bloomfile.WorkerCommand, hidden: true, run: runWorker},
}

// errUsage marks errors caused by bad invocation.
var errUsage = errors.New("usage")

func usageErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, args...))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	stderr = &syncWriter{w: stderr}
	if len(args) == 0 || args[0] == "-h" || args[0] == "-help" || args[0] == "help" {
		printUsage(stderr)
		if len(args) == 0 {
			return exitUsage
		}
		return exitOK
	}

	logger, err := newLogger(stderr, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	if err != nil {
		fmt.Fprintln(stderr, "bloomfile:", err)
		return exitUsage
	}
	e := &env{stdin: stdin, stdout: stdout, stderr: stderr, logger: logger}

	for _, c := range commands {
		if c.name != args[0] {
			continue
		}
		err := c.run(ctx, e, args[1:])
		switch {
		case err == nil:
			return exitOK
		case errors.Is(err, flag.ErrHelp):
			return exitOK
		case errors.Is(err, errUsage):
			fmt.Fprintf(stderr, "bloomfile %s: %v\n", c.name, err)
			return exitUsage
		default:
			logger.ErrorContext(ctx, "command failed", "command", c.name, "error", err)
			return exitError
		}
	}

	fmt.Fprintf(stderr, "bloomfile: unknown command %q\n", args[0])
	printUsage(stderr)
	return exitUsage
}

// syncWriter serializes writes from the logger and worker processes.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: bloomfile <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, c := range commands {
		if !c.hidden {
			fmt.Fprintf(w, "  %-8s %s\n", c.name, c.usage)
		}
	}
}

func newLogger(w io.Writer, level, format string) (*bloomfile.Logger, error) {
	var lvl slog.Level
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("LOG_LEVEL: %w", err)
		}
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "", "text":
		return bloomfile.NewLogger(slog.NewTextHandler(w, opts)), nil
	case "json":
		return bloomfile.NewLogger(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("LOG_FORMAT: unknown format %q", format)
	}
}

// newFlagSet returns a flag set that reports errors instead of exiting.
func newFlagSet(e *env, name string) *flag.FlagSet {
	fs := flag.NewFlagSet("bloomfile "+name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	return fs
}

// parseFlags parses args, turning flag errors into usage errors.
func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	return nil
}

// envDefault returns the environment variable key, or def when unset.
func envDefault(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}
