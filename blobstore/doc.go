// Package blobstore moves filter archives between hosts.
//
// A filter is built once on a large machine and then shipped, as a packed
// archive, to every host that serves membership checks. BlobStore is the
// transport for those archives.
//
// # Built-in Implementations
//
//   - LocalStore: local file system, memory-mapped reads
//   - MemoryStore: in-process map, for tests
//   - s3.Store: Amazon S3 with range reads and multipart uploads
//   - minio.Store: MinIO and other S3-compatible servers
//
// # Custom Implementations
//
// Implement the BlobStore interface to support other backends:
//
//	type BlobStore interface {
//	    Open(ctx, name) (Blob, error)
//	    Create(ctx, name) (WritableBlob, error)
//	    Put(ctx, name, data) error
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
package blobstore
