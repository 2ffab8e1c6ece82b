// Package codec centralizes the encodings used by filter files and archives.
//
// Two kinds of codec live here:
//
//   - [Codec]: structured encoding of small records (the filter header line,
//     the worker protocol). Filter headers are plain JSON objects so any
//     [Codec] can read a header written by another.
//   - [Compression]: streaming compression of a filter's data region inside
//     an archive. The compression name is stored in the archive so readers
//     select the matching decompressor.
//
// Changing either is a format boundary: archives record the compression name
// and are rejected when it is unknown.
package codec

// Codec encodes/decodes values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}
