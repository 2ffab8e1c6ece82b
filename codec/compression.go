package codec

import (
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression is a streaming compressor for archive payloads.
type Compression interface {
	// NewWriter wraps w. Closing the returned writer flushes the stream but
	// does not close w.
	NewWriter(w io.Writer) (io.WriteCloser, error)
	// NewReader wraps r.
	NewReader(r io.Reader) (io.ReadCloser, error)
	Name() string
}

// CompressionByName returns a built-in compression by its stable name.
func CompressionByName(name string) (Compression, bool) {
	switch name {
	case "none":
		return None{}, true
	case "zstd":
		return Zstd{}, true
	case "lz4":
		return LZ4{}, true
	default:
		return nil, false
	}
}

// DefaultCompression is used by archives unless the caller picks another.
// The data region of a partially filled filter is mostly zero pages, which
// zstd shrinks by orders of magnitude.
var DefaultCompression Compression = Zstd{}

// None stores the payload uncompressed.
type None struct{}

func (None) NewWriter(w io.Writer) (io.WriteCloser, error) { return nopWriteCloser{w}, nil }
func (None) NewReader(r io.Reader) (io.ReadCloser, error)  { return io.NopCloser(r), nil }
func (None) Name() string                                  { return "none" }

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// Zstd compresses with github.com/klauspost/compress/zstd.
type Zstd struct {
	// Level is a zstd level (1..22); 0 selects the encoder default.
	Level int
}

func (z Zstd) NewWriter(w io.Writer) (io.WriteCloser, error) {
	level := zstd.SpeedDefault
	if z.Level > 0 {
		level = zstd.EncoderLevelFromZstd(z.Level)
	}
	return zstd.NewWriter(w, zstd.WithEncoderLevel(level))
}

func (Zstd) NewReader(r io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return dec.IOReadCloser(), nil
}

func (Zstd) Name() string { return "zstd" }

// LZ4 compresses with the lz4 frame format of github.com/pierrec/lz4/v4.
// It trades ratio for speed compared to Zstd.
type LZ4 struct{}

func (LZ4) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return lz4.NewWriter(w), nil
}

func (LZ4) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(r)), nil
}

func (LZ4) Name() string { return "lz4" }
