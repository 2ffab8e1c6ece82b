package minio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"

	"github.com/hupe1980/bloomfile/blobstore"
)

// Store publishes filter archives to a MinIO (or other S3-compatible) bucket.
type Store struct {
	client *minio.Client
	bucket string
	prefix string
}

var _ blobstore.BlobStore = (*Store)(nil)

// NewStore returns a store for bucket. Every key is placed under rootPrefix
// (e.g. "filters/").
func NewStore(client *minio.Client, bucket, rootPrefix string) *Store {
	return &Store{client: client, bucket: bucket, prefix: rootPrefix}
}

func (s *Store) key(name string) string {
	return path.Join(s.prefix, name)
}

func (s *Store) putOptions() minio.PutObjectOptions {
	return minio.PutObjectOptions{ContentType: blobstore.ContentType}
}

// Open returns a lazily-read handle on an archive. The object is stat'ed
// up front so a missing archive fails here rather than on first read.
func (s *Store) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(name), minio.GetObjectOptions{})
	if err != nil {
		return nil, translate(err)
	}
	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, translate(err)
	}
	return &objectBlob{obj: obj, size: info.Size}, nil
}

// Put uploads data in a single request.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.key(name), bytes.NewReader(data), int64(len(data)), s.putOptions())
	return err
}

// Create streams an upload of unknown length. The object appears when the
// returned writer is closed.
func (s *Store) Create(ctx context.Context, name string) (blobstore.WritableBlob, error) {
	ctx, cancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()
	w := &uploadBlob{pw: pw, cancel: cancel, done: make(chan error, 1)}

	go func() {
		_, err := s.client.PutObject(ctx, s.bucket, s.key(name), pr, -1, s.putOptions())
		_ = pr.CloseWithError(err)
		w.done <- err
	}()
	return w, nil
}

// Delete removes an archive; a missing archive is not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	err := s.client.RemoveObject(ctx, s.bucket, s.key(name), minio.RemoveObjectOptions{})
	if err != nil && !errors.Is(translate(err), blobstore.ErrNotFound) {
		return err
	}
	return nil
}

// List returns archive names below prefix, relative to the store prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	opts := minio.ListObjectsOptions{Prefix: s.key(prefix), Recursive: true}
	for obj := range s.client.ListObjects(ctx, s.bucket, opts) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		if name := strings.TrimPrefix(strings.TrimPrefix(obj.Key, s.prefix), "/"); name != "" {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

func translate(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return blobstore.ErrNotFound
	}
	return err
}

// objectBlob serves reads from a single minio.Object, which issues ranged
// GETs for ReadAt.
type objectBlob struct {
	obj  *minio.Object
	size int64
}

func (b *objectBlob) Size() int64 { return b.size }

func (b *objectBlob) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	if off < 0 || off >= b.size {
		return 0, io.EOF
	}
	return b.obj.ReadAt(p, off)
}

func (b *objectBlob) ReadRange(_ context.Context, off, length int64) (io.ReadCloser, error) {
	if off < 0 || off > b.size {
		return nil, io.EOF
	}
	return io.NopCloser(io.NewSectionReader(b.obj, off, min(length, b.size-off))), nil
}

func (b *objectBlob) Close() error { return b.obj.Close() }

// uploadBlob feeds a background PutObject through a pipe.
type uploadBlob struct {
	pw     *io.PipeWriter
	cancel context.CancelFunc
	done   chan error

	once sync.Once
	err  error
}

func (w *uploadBlob) Write(p []byte) (int, error) { return w.pw.Write(p) }

func (w *uploadBlob) Sync() error { return nil }

func (w *uploadBlob) Close() error {
	w.once.Do(func() {
		defer w.cancel()
		if err := w.pw.Close(); err != nil {
			w.err = err
			return
		}
		w.err = <-w.done
	})
	return w.err
}

// Abort cancels the upload; MinIO never materializes the object.
func (w *uploadBlob) Abort() error {
	w.once.Do(func() {
		w.cancel()
		_ = w.pw.CloseWithError(context.Canceled)
		<-w.done
	})
	return nil
}
