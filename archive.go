package bloomfile

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/hupe1980/bloomfile/blobstore"
	"github.com/hupe1980/bloomfile/codec"
	"github.com/hupe1980/bloomfile/internal/hash"
	"github.com/hupe1980/bloomfile/internal/mmap"
)

// archiveMagic starts every packed filter.
var archiveMagic = [4]byte{'B', 'F', 'A', '1'}

// archiveBlock is the unit in which the data region is streamed.
const archiveBlock = 1 << 20

// ErrInvalidArchive is returned when an archive is malformed or its checksum
// does not match.
var ErrInvalidArchive = errors.New("bloomfile: invalid archive")

// ArchiveHeader is the uncompressed preamble of a packed filter.
//
// Layout (integers little-endian):
//
//	magic       [4]byte "BFA1"
//	nameLen     uint8
//	compression [nameLen]byte
//	lineLen     uint32
//	headerLine  [lineLen]byte   filter header line including '\n'
//	crc         uint32          CRC32C of the uncompressed data region
//	payload                     compressed data region (Header.Size bytes)
type ArchiveHeader struct {
	Compression string
	Header      Header
	CRC         uint32
}

// Pack writes the filter at path to w as an archive compressed with c.
// A nil c selects codec.DefaultCompression.
func Pack(ctx context.Context, path string, w io.Writer, c codec.Compression, opts ...Option) error {
	if c == nil {
		c = codec.DefaultCompression
	}

	f, err := Open(path, slices.Concat(opts, []Option{WithReadOnly(), WithAccessPattern(mmap.AccessSequential)})...)
	if err != nil {
		return err
	}
	defer f.Close()

	h := f.Header()
	line, err := EncodeHeader(nil, h)
	if err != nil {
		return err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	bits, err := f.bits()
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	if err := writeArchiveHeader(bw, c.Name(), line, hash.CRC32C(bits)); err != nil {
		return err
	}

	cw, err := c.NewWriter(bw)
	if err != nil {
		return err
	}
	for off := 0; off < len(bits); off += archiveBlock {
		if err := ctx.Err(); err != nil {
			_ = cw.Close()
			return err
		}
		if _, err := cw.Write(bits[off:min(off+archiveBlock, len(bits))]); err != nil {
			_ = cw.Close()
			return err
		}
	}
	if err := cw.Close(); err != nil {
		return err
	}
	return bw.Flush()
}

func writeArchiveHeader(w io.Writer, compression string, line []byte, crc uint32) error {
	if len(compression) > 255 {
		return fmt.Errorf("%w: compression name too long", ErrInvalidArgument)
	}
	buf := make([]byte, 0, 4+1+len(compression)+4+len(line)+4)
	buf = append(buf, archiveMagic[:]...)
	buf = append(buf, byte(len(compression)))
	buf = append(buf, compression...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(line)))
	buf = append(buf, line...)
	buf = binary.LittleEndian.AppendUint32(buf, crc)
	_, err := w.Write(buf)
	return err
}

// ReadArchiveHeader reads and validates the preamble of an archive.
func ReadArchiveHeader(r io.Reader) (ArchiveHeader, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return ArchiveHeader{}, fmt.Errorf("%w: read magic: %w", ErrInvalidArchive, err)
	}
	if magic != archiveMagic {
		return ArchiveHeader{}, fmt.Errorf("%w: bad magic %q", ErrInvalidArchive, magic[:])
	}

	var nameLen [1]byte
	if _, err := io.ReadFull(r, nameLen[:]); err != nil {
		return ArchiveHeader{}, fmt.Errorf("%w: %w", ErrInvalidArchive, err)
	}
	name := make([]byte, nameLen[0])
	if _, err := io.ReadFull(r, name); err != nil {
		return ArchiveHeader{}, fmt.Errorf("%w: %w", ErrInvalidArchive, err)
	}

	var u32 [4]byte
	if _, err := io.ReadFull(r, u32[:]); err != nil {
		return ArchiveHeader{}, fmt.Errorf("%w: %w", ErrInvalidArchive, err)
	}
	lineLen := binary.LittleEndian.Uint32(u32[:])
	if lineLen == 0 || lineLen > maxHeaderLine {
		return ArchiveHeader{}, fmt.Errorf("%w: header line length %d", ErrInvalidArchive, lineLen)
	}
	line := make([]byte, lineLen)
	if _, err := io.ReadFull(r, line); err != nil {
		return ArchiveHeader{}, fmt.Errorf("%w: %w", ErrInvalidArchive, err)
	}
	h, err := DecodeHeader(nil, line)
	if err != nil {
		return ArchiveHeader{}, fmt.Errorf("%w: header: %w", ErrInvalidArchive, err)
	}
	if err := validateHeader(h, int(lineLen)); err != nil {
		return ArchiveHeader{}, fmt.Errorf("%w: %w", ErrInvalidArchive, err)
	}

	if _, err := io.ReadFull(r, u32[:]); err != nil {
		return ArchiveHeader{}, fmt.Errorf("%w: %w", ErrInvalidArchive, err)
	}

	return ArchiveHeader{
		Compression: string(name),
		Header:      h,
		CRC:         binary.LittleEndian.Uint32(u32[:]),
	}, nil
}

// Unpack recreates a filter file at path from an archive read from r.
//
// The filter is written to a temporary file next to path and renamed into
// place once the checksum matches, so path never holds a partial filter.
// All-zero blocks are skipped, which keeps the data region sparse.
func Unpack(ctx context.Context, r io.Reader, path string, opts ...Option) (Header, error) {
	br := bufio.NewReaderSize(r, 256<<10)
	ah, err := ReadArchiveHeader(br)
	if err != nil {
		return Header{}, err
	}
	c, ok := codec.CompressionByName(ah.Compression)
	if !ok {
		return Header{}, fmt.Errorf("%w: unknown compression %q", ErrInvalidArchive, ah.Compression)
	}
	want := ah.Header

	tmp := path + ".unpack"
	f, err := Create(tmp, want.M, want.K, want.HashFunc, slices.Concat(opts, []Option{WithAlignment(want.Offset)})...)
	if err != nil {
		return Header{}, err
	}
	if got := f.Header(); got != want {
		_ = f.Close()
		_ = os.Remove(tmp)
		return Header{}, fmt.Errorf("%w: archive layout offset=%d size=%d cannot be reproduced (got offset=%d size=%d)",
			ErrInvalidArchive, want.Offset, want.Size, got.Offset, got.Size)
	}

	if err := fillFromArchive(ctx, f, c, br, ah.CRC); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return Header{}, err
	}
	if err := errors.Join(f.Sync(), f.Close()); err != nil {
		_ = os.Remove(tmp)
		return Header{}, err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return Header{}, err
	}
	return want, nil
}

func fillFromArchive(ctx context.Context, f *Filter, c codec.Compression, r io.Reader, crc uint32) error {
	dec, err := c.NewReader(r)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArchive, err)
	}
	defer dec.Close()

	f.mu.RLock()
	defer f.mu.RUnlock()
	bits, err := f.bits()
	if err != nil {
		return err
	}

	sum := hash.NewCRC32C()
	block := make([]byte, archiveBlock)
	for off := 0; off < len(bits); off += archiveBlock {
		if err := ctx.Err(); err != nil {
			return err
		}
		b := block[:min(archiveBlock, len(bits)-off)]
		if _, err := io.ReadFull(dec, b); err != nil {
			return fmt.Errorf("%w: payload: %w", ErrInvalidArchive, err)
		}
		_, _ = sum.Write(b)
		if !allZero(b) {
			copy(bits[off:], b)
		}
	}
	if got := sum.Sum32(); got != crc {
		return fmt.Errorf("%w: checksum mismatch (archive %08x, data %08x)", ErrInvalidArchive, crc, got)
	}
	return nil
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// Publish packs the filter at path and uploads it to store under name.
func Publish(ctx context.Context, store blobstore.BlobStore, name, path string, c codec.Compression, opts ...Option) error {
	w, err := store.Create(ctx, name)
	if err != nil {
		return err
	}
	if err := Pack(ctx, path, w, c, opts...); err != nil {
		_ = w.Abort()
		return fmt.Errorf("bloomfile: publish %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("bloomfile: publish %s: %w", name, err)
	}
	return nil
}

// Fetch downloads the archive name from store and unpacks it to path.
func Fetch(ctx context.Context, store blobstore.BlobStore, name, path string, opts ...Option) (Header, error) {
	blob, err := store.Open(ctx, name)
	if err != nil {
		return Header{}, fmt.Errorf("bloomfile: fetch %s: %w", name, err)
	}
	defer blob.Close()

	r, err := blobstore.NewReader(ctx, blob)
	if err != nil {
		return Header{}, fmt.Errorf("bloomfile: fetch %s: %w", name, err)
	}
	defer r.Close()

	return Unpack(ctx, r, path, opts...)
}
