package fs

import (
	"io"
	"os"
)

// File is the subset of *os.File the filter file format needs.
type File interface {
	io.ReadWriteCloser
	io.ReaderAt
	io.WriterAt
	Sync() error
	Stat() (os.FileInfo, error)
	Truncate(size int64) error
	// Fd returns the descriptor used for memory mapping.
	Fd() uintptr
	Name() string
}

// FileSystem abstracts file system operations for testability.
type FileSystem interface {
	OpenFile(name string, flag int, perm os.FileMode) (File, error)
	Remove(name string) error
	Stat(name string) (os.FileInfo, error)
}

// LocalFS implements FileSystem using the local os package.
type LocalFS struct{}

func (LocalFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	f, err := os.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (LocalFS) Remove(name string) error              { return os.Remove(name) }
func (LocalFS) Stat(name string) (os.FileInfo, error) { return os.Stat(name) }

// Default is the default local file system.
var Default FileSystem = LocalFS{}
