package bloomfile

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"slices"

	"github.com/hupe1980/bloomfile/codec"
)

// WorkerRequest tells a worker which filter to populate and how.
type WorkerRequest struct {
	Path          string
	Params        Params
	Normalization Normalization
	Chunk         int
}

// WorkerResult is what a worker reports back for one chunk. It is also the
// JSON line a worker process writes to stdout.
type WorkerResult struct {
	Chunk    int `json:"chunk"`
	Lines    int `json:"lines"`
	Accepted int `json:"accepted"`
	Flipped  int `json:"flipped"`
}

// RunWorker adds every accepted line of r to the filter at req.Path.
//
// The worker opens its own read-write mapping and validates req.Params
// against the stored header, so it never writes with parameters other than
// the file's. Lines are normalized, blank or rejected lines are skipped, and
// the accepted items are added with a single AddBulk.
func RunWorker(ctx context.Context, req WorkerRequest, r io.Reader, opts ...Option) (WorkerResult, error) {
	res := WorkerResult{Chunk: req.Chunk}

	cr := NewChunkReader(r, math.MaxInt)
	chunk, err := cr.Next()
	if err == io.EOF {
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("bloomfile: read chunk %d: %w", req.Chunk, err)
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	return addChunk(req, chunk, opts)
}

// addChunk normalizes chunk and adds it to the filter at req.Path.
func addChunk(req WorkerRequest, chunk *Chunk, opts []Option) (WorkerResult, error) {
	res := WorkerResult{Chunk: req.Chunk, Lines: chunk.Len()}

	f, err := Open(req.Path, slices.Concat(opts, []Option{WithExpect(req.Params)})...)
	if err != nil {
		return res, err
	}
	defer f.Close()

	items := make([][]byte, 0, chunk.Len())
	buf := make([]byte, 0, chunk.Bytes())
	for i := range chunk.Len() {
		start := len(buf)
		var ok bool
		if buf, ok = req.Normalization.Line(buf, chunk.Line(i)); ok {
			items = append(items, buf[start:len(buf):len(buf)])
		}
	}
	res.Accepted = len(items)

	res.Flipped, err = f.AddBulk(items)
	if err != nil {
		return res, err
	}
	return res, nil
}

// ServeWorker runs one chunk for a worker process: lines are read from in
// and the WorkerResult is written to out as a single JSON line.
func ServeWorker(ctx context.Context, req WorkerRequest, in io.Reader, out io.Writer, opts ...Option) error {
	res, err := RunWorker(ctx, req, bufio.NewReaderSize(in, 256<<10), opts...)
	if err != nil {
		return err
	}
	line, err := codec.Default.Marshal(res)
	if err != nil {
		return err
	}
	_, err = out.Write(append(line, '\n'))
	return err
}
