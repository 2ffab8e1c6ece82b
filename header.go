package bloomfile

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/hupe1980/bloomfile/codec"
)

// maxHeaderLine bounds how far Open scans for the header's newline.
const maxHeaderLine = 64 << 10

// Header is the first line of a filter file. It is immutable after creation.
//
// On disk it is a single JSON object terminated by '\n':
//
//	{"m":19170117,"k":13,"offset":4096,"size":2400256,"hash_func_name":"murmur3"}
//
// Bytes [len(line), Offset) are zero padding; bytes [Offset, Offset+Size)
// hold the bit array, bit i at byte i>>3 under mask 1<<(i&7).
type Header struct {
	M        uint64 `json:"m"`
	K        uint32 `json:"k"`
	Offset   int64  `json:"offset"`
	Size     int64  `json:"size"`
	HashFunc Scheme `json:"hash_func_name"`
}

// Params returns the hashing parameters of the header.
func (h Header) Params() Params {
	return Params{M: h.M, K: h.K, HashFunc: h.HashFunc}
}

// ByteSize returns ceil(M/8), the bytes actually addressed by the bit array.
func (h Header) ByteSize() int64 {
	return int64((h.M + 7) / 8)
}

// layout computes the header of a new filter for the given alignment.
func layout(m uint64, k uint32, scheme Scheme, alignment int64) (Header, error) {
	byteSize := (m + 7) / 8
	blocks := (byteSize + uint64(alignment) - 1) / uint64(alignment)
	size := blocks * uint64(alignment)
	if size == 0 || size > (1<<62) {
		return Header{}, fmt.Errorf("%w: data region for m=%d does not fit a file", ErrInvalidArgument, m)
	}
	return Header{
		M:        m,
		K:        k,
		Offset:   alignment,
		Size:     int64(size),
		HashFunc: scheme,
	}, nil
}

// EncodeHeader returns the header line including its trailing newline.
func EncodeHeader(c codec.Codec, h Header) ([]byte, error) {
	if c == nil {
		c = codec.Default
	}
	data, err := c.Marshal(h)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// DecodeHeader parses a header line (with or without its newline).
// A record without hash_func_name decodes as DefaultScheme.
func DecodeHeader(c codec.Codec, line []byte) (Header, error) {
	if c == nil {
		c = codec.Default
	}
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Header{}, errors.New("header line is empty")
	}
	var h Header
	if err := c.Unmarshal(line, &h); err != nil {
		return Header{}, err
	}
	if h.HashFunc == SchemeUnspecified {
		h.HashFunc = DefaultScheme
	}
	return h, nil
}

// readHeader reads and validates the header of the file at path.
func readHeader(r io.ReaderAt, path string, fileSize int64, c codec.Codec) (Header, int, error) {
	br := bufio.NewReader(io.NewSectionReader(r, 0, min(fileSize, maxHeaderLine)))
	line, err := br.ReadBytes('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return Header{}, 0, corrupt(path, "cannot read header", err)
	}
	if errors.Is(err, io.EOF) {
		if len(bytes.TrimSpace(line)) == 0 {
			return Header{}, 0, corrupt(path, "file appears empty or header is missing", nil)
		}
		return Header{}, 0, corrupt(path, "header line is not newline-terminated", nil)
	}

	h, err := DecodeHeader(c, line)
	if err != nil {
		return Header{}, 0, corrupt(path, "failed to decode header", err)
	}
	if err := validateHeader(h, len(line)); err != nil {
		return Header{}, 0, corrupt(path, err.Error(), nil)
	}

	if h.Offset > fileSize || h.Size > fileSize-h.Offset {
		return Header{}, 0, &HeaderError{
			Path: path,
			Kind: ErrTruncated,
			Reason: fmt.Sprintf("file size (%d B) is smaller than offset %d + data %d B",
				fileSize, h.Offset, h.Size),
		}
	}
	return h, len(line), nil
}

func validateHeader(h Header, lineLen int) error {
	switch {
	case h.M == 0 || h.K == 0 || h.Size <= 0 || h.Offset <= 0:
		return fmt.Errorf("invalid parameters (<= 0) in header: m=%d, k=%d, size=%d, offset=%d",
			h.M, h.K, h.Size, h.Offset)
	case h.Offset < int64(lineLen):
		return fmt.Errorf("offset %d overlaps the %d byte header", h.Offset, lineLen)
	case uint64(h.Size) < (h.M+7)/8:
		return fmt.Errorf("data size %d B cannot hold m=%d bits", h.Size, h.M)
	case uint64(h.Size) > math.MaxInt:
		return fmt.Errorf("data size %d B exceeds the addressable range", h.Size)
	case h.Offset%4 != 0 || h.Size%4 != 0:
		// Bits are set with 32-bit atomic ORs on the mapped region.
		return fmt.Errorf("offset %d and size %d must be multiples of 4", h.Offset, h.Size)
	}
	return nil
}
