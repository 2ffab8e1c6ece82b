package bloomfile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/hupe1980/bloomfile/codec"
)

// Executor runs the worker routine for one chunk.
//
// Implementations must be safe for concurrent use; the loader calls Execute
// from up to LoaderConfig.Workers goroutines at once.
type Executor interface {
	Execute(ctx context.Context, req WorkerRequest, chunk *Chunk) (WorkerResult, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, req WorkerRequest, chunk *Chunk) (WorkerResult, error)

// Execute calls fn.
func (fn ExecutorFunc) Execute(ctx context.Context, req WorkerRequest, chunk *Chunk) (WorkerResult, error) {
	return fn(ctx, req, chunk)
}

// LocalExecutor runs workers as goroutines of the current process. Each
// chunk still opens its own mapping of the filter file.
type LocalExecutor struct {
	// Options are passed to Open for every chunk.
	Options []Option
}

// Execute implements Executor.
func (e LocalExecutor) Execute(ctx context.Context, req WorkerRequest, chunk *Chunk) (WorkerResult, error) {
	if err := ctx.Err(); err != nil {
		return WorkerResult{Chunk: req.Chunk}, err
	}
	return addChunk(req, chunk, e.Options)
}

// WorkerCommand is the hidden subcommand a ProcessExecutor invokes.
const WorkerCommand = "worker"

// ProcessExecutor runs every chunk in a fresh OS process, so workers share
// nothing but the filter file.
//
// The child is started as
//
//	<Path> <Args...> -filter <path> -m <m> -k <k> -hash <scheme> -normalize <n> -chunk <i>
//
// receives the chunk on stdin and must print a WorkerResult JSON line on
// stdout (see ServeWorker).
type ProcessExecutor struct {
	// Path is the binary to run. Defaults to the current executable.
	Path string
	// Args precede the worker flags. Defaults to [WorkerCommand].
	Args []string
	// Env is the child environment. nil inherits the parent's.
	Env []string
	// Stderr receives the child's diagnostics. nil discards them; the tail
	// is included in the returned error either way. Writes from concurrent
	// children are serialized.
	Stderr io.Writer

	stderrMu sync.Mutex
}

// NewProcessExecutor returns an executor that re-executes the running binary.
func NewProcessExecutor() (*ProcessExecutor, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("bloomfile: locate executable: %w", err)
	}
	return &ProcessExecutor{Path: exe, Args: []string{WorkerCommand}, Stderr: os.Stderr}, nil
}

// WorkerArgs returns the worker flags for req.
func WorkerArgs(req WorkerRequest) []string {
	return []string{
		"-filter", req.Path,
		"-m", strconv.FormatUint(req.Params.M, 10),
		"-k", strconv.FormatUint(uint64(req.Params.K), 10),
		"-hash", req.Params.HashFunc.String(),
		"-normalize", req.Normalization.String(),
		"-chunk", strconv.Itoa(req.Chunk),
	}
}

// Execute implements Executor.
func (e *ProcessExecutor) Execute(ctx context.Context, req WorkerRequest, chunk *Chunk) (WorkerResult, error) {
	res := WorkerResult{Chunk: req.Chunk}

	path := e.Path
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return res, err
		}
		path = exe
	}
	args := e.Args
	if args == nil {
		args = []string{WorkerCommand}
	}

	cmd := exec.CommandContext(ctx, path, append(append([]string(nil), args...), WorkerArgs(req)...)...)
	cmd.Env = e.Env

	pr, pw := io.Pipe()
	go func() {
		_, err := chunk.WriteTo(pw)
		pw.CloseWithError(err)
	}()
	defer pr.Close()
	cmd.Stdin = pr

	var stdout bytes.Buffer
	stderr := &tailBuffer{max: 4 << 10}
	cmd.Stdout = &stdout
	if e.Stderr != nil {
		cmd.Stderr = io.MultiWriter(stderr, &lockedWriter{mu: &e.stderrMu, w: e.Stderr})
	} else {
		cmd.Stderr = stderr
	}

	if err := cmd.Run(); err != nil {
		if tail := bytes.TrimSpace(stderr.Bytes()); len(tail) > 0 {
			return res, fmt.Errorf("%w: %s", err, tail)
		}
		return res, err
	}

	line := lastLine(stdout.Bytes())
	if len(line) == 0 {
		return res, errors.New("worker produced no result")
	}
	if err := codec.Default.Unmarshal(line, &res); err != nil {
		return res, fmt.Errorf("decode worker result: %w", err)
	}
	if res.Chunk != req.Chunk {
		return WorkerResult{Chunk: req.Chunk}, fmt.Errorf("worker answered for chunk %d", res.Chunk)
	}
	return res, nil
}

func lastLine(b []byte) []byte {
	b = bytes.TrimSpace(b)
	if i := bytes.LastIndexByte(b, '\n'); i >= 0 {
		return b[i+1:]
	}
	return b
}

// lockedWriter serializes writes to a writer shared by several children.
type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) Bytes() []byte { return t.buf }
