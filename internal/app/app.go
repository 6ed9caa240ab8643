// Package app assembles the converter from configuration for the service,
// Lambda, and CLI binaries.
package app

import (
	"log/slog"

	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/couchcryptid/gfs-grid-etl/internal/adapter/blobstore"
	"github.com/couchcryptid/gfs-grid-etl/internal/adapter/parquet"
	"github.com/couchcryptid/gfs-grid-etl/internal/adapter/wgrib2"
	"github.com/couchcryptid/gfs-grid-etl/internal/config"
	"github.com/couchcryptid/gfs-grid-etl/internal/observability"
	"github.com/couchcryptid/gfs-grid-etl/internal/pipeline"
)

// NewConverter wires bucket openers, the wgrib2 decoder, and the Parquet
// encoder according to cfg.
func NewConverter(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*pipeline.Converter, error) {
	enc, err := parquet.NewEncoder(cfg.OutputCompression)
	if err != nil {
		return nil, err
	}

	opts := pipeline.Options{
		Selector:    cfg.VariableSelector,
		ValueName:   cfg.VariableName,
		WorkDir:     cfg.WorkDir,
		Destination: cfg.TargetBucket,
	}
	if opts.Destination == "" {
		logger.Warn("TARGET_BUCKET not set, tables will not be uploaded")
	}

	return pipeline.NewConverter(
		blobstore.URLOpener{Query: cfg.SourceBucketQuery},
		blobstore.URLOpener{Query: cfg.TargetBucketQuery},
		wgrib2.NewDecoder(cfg.Wgrib2Path, logger),
		enc,
		opts,
		logger,
		metrics,
	), nil
}
