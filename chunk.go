package bloomfile

import (
	"bufio"
	"errors"
	"io"
)

// DefaultChunkSize is the number of input lines handed to one worker.
const DefaultChunkSize = 100_000

// maxLineLength bounds a single input line.
const maxLineLength = 1 << 20

// Chunk is an ordered batch of raw input lines.
//
// Lines share one backing buffer; Line(i) is valid as long as the chunk is.
type Chunk struct {
	Index int
	data  []byte
	ends  []int
}

// NewChunk builds a chunk from lines. Intended for tests and library callers
// that already hold their input in memory.
func NewChunk(index int, lines ...[]byte) *Chunk {
	c := &Chunk{Index: index}
	for _, l := range lines {
		c.append(l)
	}
	return c
}

func (c *Chunk) append(line []byte) {
	c.data = append(c.data, line...)
	c.ends = append(c.ends, len(c.data))
}

// Len returns the number of lines.
func (c *Chunk) Len() int { return len(c.ends) }

// Bytes returns the size of the line data.
func (c *Chunk) Bytes() int64 { return int64(len(c.data)) }

// Line returns line i without its terminator.
func (c *Chunk) Line(i int) []byte {
	start := 0
	if i > 0 {
		start = c.ends[i-1]
	}
	return c.data[start:c.ends[i]:c.ends[i]]
}

// WriteTo writes the lines newline-terminated, the format workers read on stdin.
func (c *Chunk) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriterSize(w, 64<<10)
	var n int64
	for i := range c.ends {
		written, err := bw.Write(c.Line(i))
		n += int64(written)
		if err != nil {
			return n, err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return n, err
		}
		n++
	}
	return n, bw.Flush()
}

// ChunkReader splits a line-oriented input into chunks.
type ChunkReader struct {
	sc    *bufio.Scanner
	size  int
	next  int
	lines int64
}

// NewChunkReader returns a reader yielding chunks of at most size lines.
// A size <= 0 means DefaultChunkSize.
func NewChunkReader(r io.Reader, size int) *ChunkReader {
	if size <= 0 {
		size = DefaultChunkSize
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLineLength)
	return &ChunkReader{sc: sc, size: size}
}

// Next returns the next chunk, or io.EOF when the input is exhausted.
func (cr *ChunkReader) Next() (*Chunk, error) {
	c := &Chunk{Index: cr.next}
	for c.Len() < cr.size && cr.sc.Scan() {
		c.append(cr.sc.Bytes())
	}
	cr.lines += int64(c.Len())
	if err := cr.sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, errors.Join(ErrInvalidArgument, err)
		}
		return nil, err
	}
	if c.Len() == 0 {
		return nil, io.EOF
	}
	cr.next++
	return c, nil
}

// Lines returns the number of lines read so far.
func (cr *ChunkReader) Lines() int64 { return cr.lines }
