// Package bloomfile provides a disk-backed Bloom filter shared through a
// memory-mapped file.
//
// A filter file is a JSON header line padded to a page-aligned offset,
// followed by a sparse bit array of m bits. Every process that maps the same
// file sees the same bits, so many loaders can populate one filter
// concurrently and any number of readers can test membership without
// copying it into memory.
//
// # Quick Start
//
//	m, k, _ := bloomfile.CalculateOptimalParams(1_000_000, 1e-4)
//	f, _ := bloomfile.Create("./pwned.bloom", m, k, bloomfile.SchemeMurmur3)
//	defer f.Close()
//
//	_ = f.Add([]byte("alice"))
//	ok, _ := f.Contains([]byte("alice")) // true
//
// Re-open an existing file; parameters come from its header:
//
//	f, _ := bloomfile.Open("./pwned.bloom", bloomfile.WithReadOnly())
//
// # Bulk Loading
//
// The Loader splits a newline-delimited corpus into chunks and dispatches
// them to workers. By default each worker is a separate process running the
// hidden "worker" command of the bloomfile binary:
//
//	l := bloomfile.NewLoader(bloomfile.LoaderConfig{Workers: 8})
//	res, err := l.Load(ctx, bloomfile.LoadRequest{
//	    InputPath:     "pwned-passwords-sha1.txt",
//	    FilterPath:    "pwned.bloom",
//	    Params:        bloomfile.Params{M: m, K: k},
//	    Normalization: bloomfile.NormalizeSHA1Hex,
//	})
//
// A failed chunk counts zero accepted items; the load still completes and
// reports the failure in LoadResult.Errors.
//
// # Hash Schemes
//
// Indices are derived by double hashing (h1 + i*h2 mod m) over one of
// murmur3, xxhash or md5. The scheme is recorded in the header and must
// match on every open.
//
// # Distribution
//
// Pack and Unpack move a filter through a compressed, checksummed archive.
// Publish and Fetch do the same against a blobstore.BlobStore (local
// directory, memory, S3 or MinIO).
package bloomfile
