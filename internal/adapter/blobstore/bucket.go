// Package blobstore reads GFS objects and publishes tables through
// gocloud.dev/blob, so the same code serves S3, GCS, local directories, and
// in-memory buckets in tests.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	"github.com/couchcryptid/gfs-grid-etl/internal/domain"
)

// IndexSuffix is appended to an object key to find its inventory.
const IndexSuffix = ".idx"

// maxIndexBytes caps index reads. GFS 0.25° inventories are ~60 KB.
const maxIndexBytes = 10 << 20

// ParquetContentType is attached to uploaded tables.
const ParquetContentType = "application/vnd.apache.parquet"

// Bucket is a named handle on one blob bucket.
type Bucket struct {
	name   string
	bucket *blob.Bucket
	owned  bool
}

// NewBucket wraps an already opened bucket. Close on the result does not close
// b; the caller keeps ownership.
func NewBucket(name string, b *blob.Bucket) *Bucket {
	return &Bucket{name: name, bucket: b}
}

// Name returns the bucket name used in errors and logs.
func (b *Bucket) Name() string { return b.name }

// Close releases the bucket if this handle opened it.
func (b *Bucket) Close() error {
	if !b.owned {
		return nil
	}
	return b.bucket.Close()
}

// FetchIndex reads and parses the inventory that accompanies key.
func (b *Bucket) FetchIndex(ctx context.Context, key string) ([]domain.IndexEntry, error) {
	idxKey := key + IndexSuffix
	r, err := b.bucket.NewReader(ctx, idxKey, nil)
	if err != nil {
		return nil, b.transferErr("read index", idxKey, err)
	}
	defer r.Close()

	data, err := io.ReadAll(io.LimitReader(r, maxIndexBytes+1))
	if err != nil {
		return nil, b.transferErr("read index", idxKey, err)
	}
	if len(data) > maxIndexBytes {
		return nil, b.transferErr("read index", idxKey, fmt.Errorf("index exceeds %d bytes", maxIndexBytes))
	}
	return domain.ParseIndex(string(data)), nil
}

// Locate fetches the inventory for key and returns the byte range of the one
// record matching selector.
func (b *Bucket) Locate(ctx context.Context, key, selector string) (domain.ByteRange, error) {
	entries, err := b.FetchIndex(ctx, key)
	if err != nil {
		return domain.ByteRange{}, err
	}
	rng, err := domain.LocateVariable(entries, selector)
	if err != nil {
		return domain.ByteRange{}, fmt.Errorf("locate %s in %s: %w", selector, key+IndexSuffix, err)
	}
	return rng, nil
}

// DownloadRange copies rng of key into w with a single range read and returns
// the number of bytes written.
func (b *Bucket) DownloadRange(ctx context.Context, key string, rng domain.ByteRange, w io.Writer) (int64, error) {
	r, err := b.bucket.NewRangeReader(ctx, key, rng.Start, rng.Length(), nil)
	if err != nil {
		return 0, b.transferErr("read range", key, err)
	}
	defer r.Close()

	n, err := io.Copy(w, r)
	if err != nil {
		return n, b.transferErr("read range", key, err)
	}
	if n == 0 {
		return 0, b.transferErr("read range", key, fmt.Errorf("range %d-%d is empty", rng.Start, rng.End))
	}
	return n, nil
}

// Upload writes r to key. A failed copy aborts the write so no partial object
// becomes visible.
func (b *Bucket) Upload(ctx context.Context, key string, r io.Reader, contentType string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := b.bucket.NewWriter(ctx, key, &blob.WriterOptions{ContentType: contentType})
	if err != nil {
		return b.transferErr("upload", key, err)
	}
	if _, err := io.Copy(w, r); err != nil {
		cancel()
		_ = w.Close()
		return b.transferErr("upload", key, err)
	}
	if err := w.Close(); err != nil {
		return b.transferErr("upload", key, err)
	}
	return nil
}

func (b *Bucket) transferErr(op, key string, err error) error {
	return &domain.TransferError{Op: op, Bucket: b.name, Key: key, Err: err}
}

// IsNotFound reports whether err comes from a missing object or bucket.
func IsNotFound(err error) bool {
	var te *domain.TransferError
	if !errors.As(err, &te) {
		return false
	}
	return gcerrors.Code(te.Err) == gcerrors.NotFound
}
