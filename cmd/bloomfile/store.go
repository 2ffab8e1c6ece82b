package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hupe1980/bloomfile/blobstore"
	"github.com/hupe1980/bloomfile/blobstore/minio"
	"github.com/hupe1980/bloomfile/blobstore/s3"
)

// storeLocation is a parsed blob store URL.
type storeLocation struct {
	scheme string
	host   string // minio endpoint
	bucket string
	prefix string
	dir    string // file stores
}

// parseStoreURL parses
//
//	file:///abs/dir  or a plain directory path
//	s3://bucket/prefix
//	minio://host:port/bucket/prefix
func parseStoreURL(raw string) (storeLocation, error) {
	if !strings.Contains(raw, "://") {
		return storeLocation{scheme: "file", dir: raw}, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return storeLocation{}, usageErrorf("store URL: %v", err)
	}
	path := strings.Trim(u.Path, "/")

	switch u.Scheme {
	case "file":
		dir := u.Path
		if u.Host != "" {
			dir = filepath.Join(u.Host, u.Path)
		}
		if dir == "" {
			return storeLocation{}, usageErrorf("store URL %q has no directory", raw)
		}
		return storeLocation{scheme: "file", dir: filepath.FromSlash(dir)}, nil
	case "s3":
		if u.Host == "" {
			return storeLocation{}, usageErrorf("store URL %q has no bucket", raw)
		}
		return storeLocation{scheme: "s3", bucket: u.Host, prefix: path}, nil
	case "minio":
		bucket, prefix, _ := strings.Cut(path, "/")
		if u.Host == "" || bucket == "" {
			return storeLocation{}, usageErrorf("store URL %q needs host and bucket", raw)
		}
		return storeLocation{scheme: "minio", host: u.Host, bucket: bucket, prefix: prefix}, nil
	default:
		return storeLocation{}, usageErrorf("unsupported store scheme %q", u.Scheme)
	}
}

// openStore connects to the blob store named by raw.
//
// S3 uses the default AWS credential chain. MinIO reads MINIO_ACCESS_KEY,
// MINIO_SECRET_KEY and MINIO_SECURE.
func openStore(ctx context.Context, raw string) (blobstore.BlobStore, error) {
	loc, err := parseStoreURL(raw)
	if err != nil {
		return nil, err
	}

	switch loc.scheme {
	case "s3":
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		return s3.NewStore(awss3.NewFromConfig(cfg), loc.bucket, loc.prefix), nil
	case "minio":
		secure, _ := strconv.ParseBool(envDefault("MINIO_SECURE", "false"))
		client, err := miniogo.New(loc.host, &miniogo.Options{
			Creds:  credentials.NewStaticV4(os.Getenv("MINIO_ACCESS_KEY"), os.Getenv("MINIO_SECRET_KEY"), ""),
			Secure: secure,
		})
		if err != nil {
			return nil, fmt.Errorf("minio client: %w", err)
		}
		return minio.NewStore(client, loc.bucket, loc.prefix), nil
	default:
		return blobstore.NewLocalStore(loc.dir), nil
	}
}
