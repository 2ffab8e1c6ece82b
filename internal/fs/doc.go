// Package fs provides filesystem abstractions for testability and fault injection.
//
// The package defines two key interfaces:
//
//   - [File]: an open file with read/write/truncate/sync and a descriptor for mapping
//   - [FileSystem]: filesystem operations (open, remove, stat)
//
// # Implementations
//
//   - [LocalFS]: Production implementation using standard os package
//   - [FaultyFS]: Test utility for fault injection (simulate I/O errors)
//
// # Usage
//
// Production code should use fs.Default (which is [LocalFS]):
//
//	file, err := fs.Default.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
//
// Tests can inject [FaultyFS] to simulate failures while a filter file is
// being created:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule(".bloom", fs.Fault{FailAfterBytes: -1, FailOnTruncate: true})
//	_, err := bloomfile.Create(path, m, k, scheme, bloomfile.WithFileSystem(ffs))
//
// This package intentionally does NOT include context.Context parameters.
// Local file operations are non-interruptible at the syscall level.
package fs
