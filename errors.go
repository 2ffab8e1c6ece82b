package bloomfile

import (
	"errors"
	"fmt"

	"github.com/hupe1980/bloomfile/internal/mmap"
)

var (
	// ErrInvalidArgument is returned for bad parameters to the calculator or Create.
	ErrInvalidArgument = errors.New("bloomfile: invalid argument")
	// ErrConfiguration is returned when the environment cannot hold the filter,
	// e.g. an alignment too small for the encoded header.
	ErrConfiguration = errors.New("bloomfile: configuration error")
	// ErrCorruptFile is returned when the header line is missing, unparsable or
	// carries invalid values.
	ErrCorruptFile = errors.New("bloomfile: corrupt filter file")
	// ErrTruncated is returned when the file is shorter than its header declares.
	ErrTruncated = errors.New("bloomfile: filter file truncated")
	// ErrParameterMismatch is returned when caller-supplied m, k or hash scheme
	// differ from the values stored in an existing file.
	ErrParameterMismatch = errors.New("bloomfile: parameter mismatch")
	// ErrPermissionDenied is returned when writing to a read-only filter.
	ErrPermissionDenied = errors.New("bloomfile: filter is read-only")
	// ErrMapUnavailable is returned when the mapped region is closed or invalid.
	ErrMapUnavailable = errors.New("bloomfile: mapped region unavailable")
	// ErrOutOfRange is returned when a bit index falls outside [0, m).
	ErrOutOfRange = errors.New("bloomfile: bit index out of range")
	// ErrWorkerFailure marks a chunk whose worker failed during a bulk load.
	ErrWorkerFailure = errors.New("bloomfile: worker failure")
)

// ParameterMismatchError reports which stored parameter disagrees with the caller.
//
// It matches ErrParameterMismatch with errors.Is.
type ParameterMismatchError struct {
	Path     string
	Field    string
	Stored   any
	Supplied any
}

func (e *ParameterMismatchError) Error() string {
	return fmt.Sprintf("bloomfile: %s: provided %s (%v) does not match file's %s (%v)",
		e.Path, e.Field, e.Supplied, e.Field, e.Stored)
}

func (e *ParameterMismatchError) Unwrap() error { return ErrParameterMismatch }

// HeaderError reports a header that could not be read or validated.
//
// Kind is ErrCorruptFile or ErrTruncated; the original underlying error (if
// any) is also reachable via errors.Is/As.
type HeaderError struct {
	Path   string
	Kind   error
	Reason string
	cause  error
}

func (e *HeaderError) Error() string {
	msg := fmt.Sprintf("%v: %s: %s", e.Kind, e.Path, e.Reason)
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *HeaderError) Unwrap() []error {
	if e.cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.cause}
}

func corrupt(path, reason string, cause error) error {
	return &HeaderError{Path: path, Kind: ErrCorruptFile, Reason: reason, cause: cause}
}

// OutOfRangeError carries the offending bit index.
type OutOfRangeError struct {
	Index uint64
	M     uint64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("bloomfile: bit index %d out of range [0, %d)", e.Index, e.M)
}

func (e *OutOfRangeError) Unwrap() error { return ErrOutOfRange }

// WorkerError describes a chunk that contributed nothing to a bulk load.
type WorkerError struct {
	Chunk int
	cause error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("bloomfile: worker failed on chunk %d: %v", e.Chunk, e.cause)
}

func (e *WorkerError) Unwrap() []error { return []error{ErrWorkerFailure, e.cause} }

func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mmap.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrMapUnavailable, err)
	}
	if errors.Is(err, mmap.ErrReadOnly) {
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}
	return err
}
