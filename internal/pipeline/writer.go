package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/couchcryptid/gfs-grid-etl/internal/adapter/blobstore"
	"github.com/couchcryptid/gfs-grid-etl/internal/domain"
)

// EncodeError wraps a failure to serialize the table to its scratch file.
type EncodeError struct {
	Path string
	Err  error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s: %v", e.Path, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// tableWriter encodes one table to a scratch file and publishes it. It lives
// for a single invocation; the destination is fixed at construction.
type tableWriter struct {
	encoder   Encoder
	valueName string
	path      string
	opener    blobstore.Opener
	dest      string
}

func newTableWriter(enc Encoder, valueName, dir string, opener blobstore.Opener, dest string) *tableWriter {
	return &tableWriter{
		encoder:   enc,
		valueName: valueName,
		path:      filepath.Join(dir, "data."+domain.OutputExt),
		opener:    opener,
		dest:      dest,
	}
}

func (w *tableWriter) destination() string { return w.dest }

// write encodes table into the scratch file.
func (w *tableWriter) write(table domain.Table) error {
	f, err := os.Create(w.path)
	if err != nil {
		return &domain.TransferError{Op: "write scratch", Key: w.path, Err: err}
	}
	if err := w.encoder.Encode(table, w.valueName, f); err != nil {
		_ = f.Close()
		return &EncodeError{Path: w.path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &domain.TransferError{Op: "write scratch", Key: w.path, Err: err}
	}
	return nil
}

// publish uploads the scratch file to key in the destination bucket. It
// reports false without error when no destination is configured.
func (w *tableWriter) publish(ctx context.Context, key string, logger *slog.Logger) (bool, error) {
	if w.dest == "" {
		logger.Info("no target bucket configured, not uploading", "output_key", key)
		return false, nil
	}

	f, err := os.Open(w.path)
	if err != nil {
		return false, &domain.TransferError{Op: "read scratch", Key: w.path, Err: err}
	}
	defer f.Close()

	dst, err := w.opener.Open(ctx, w.dest)
	if err != nil {
		return false, &domain.TransferError{Op: "open", Bucket: w.dest, Err: err}
	}
	defer dst.Close()

	if err := dst.Upload(ctx, key, f, blobstore.ParquetContentType); err != nil {
		return false, err
	}
	logger.Info("uploaded table", "destination", w.dest, "output_key", key)
	return true, nil
}
