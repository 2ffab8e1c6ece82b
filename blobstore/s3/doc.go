// Package s3 provides an S3 implementation of the blobstore.BlobStore interface.
//
// # Usage
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	store := s3.NewStore(awss3.NewFromConfig(cfg), "my-bucket", "filters/")
//
//	err = bloomfile.Publish(ctx, store, "hibp.bfa", "hibp.bloom", codec.Zstd{})
//
// # Features
//
//   - Range reads for efficient partial fetches
//   - Multipart uploads for large archives
//   - CRC32C checksums on upload
//   - Automatic pagination for listing
package s3
