package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/gfs-grid-etl/internal/adapter/blobstore"
	"github.com/couchcryptid/gfs-grid-etl/internal/domain"
	"github.com/couchcryptid/gfs-grid-etl/internal/observability"
)

// Decoder turns a downloaded GRIB2 record into a grid.
type Decoder interface {
	Decode(ctx context.Context, path string) (domain.Grid, error)
}

// Encoder serializes a flattened table.
type Encoder interface {
	Encode(table domain.Table, valueName string, w io.Writer) error
}

// Options selects the variable to extract and where the table goes.
type Options struct {
	// Selector is matched as a substring against index descriptor lines.
	Selector string
	// ValueName names the value column.
	ValueName string
	// WorkDir holds per-invocation scratch directories.
	WorkDir string
	// Destination is the bucket tables are published to. Empty disables upload.
	Destination string
}

// Result is the outcome of converting one object.
type Result struct {
	Skipped  bool
	Identity domain.ForecastIdentity
	Event    domain.ConversionEvent
}

// Converter runs the locate, download, decode, flatten, and write sequence for
// one object per call. Calls share no mutable state.
type Converter struct {
	sources      blobstore.Opener
	destinations blobstore.Opener
	decoder      Decoder
	encoder      Encoder
	opts         Options
	logger       *slog.Logger
	metrics      *observability.Metrics
	clock        clockwork.Clock
}

// NewConverter creates a Converter. sources opens the bucket named in each
// notification; destinations opens opts.Destination.
func NewConverter(sources, destinations blobstore.Opener, dec Decoder, enc Encoder, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Converter {
	return &Converter{
		sources:      sources,
		destinations: destinations,
		decoder:      dec,
		encoder:      enc,
		opts:         opts,
		logger:       logger,
		metrics:      metrics,
		clock:        clockwork.NewRealClock(),
	}
}

// SetClock replaces the clock used for stage timing and event timestamps.
func (c *Converter) SetClock(clock clockwork.Clock) {
	c.clock = clock
}

// HandleNotification converts every object named in an object-created
// notification and returns the fixed acknowledgment.
func (c *Converter) HandleNotification(ctx context.Context, payload []byte) (domain.Ack, error) {
	if _, err := c.Process(ctx, payload); err != nil {
		return domain.Ack{}, err
	}
	return domain.Acknowledge(), nil
}

// Process parses a notification payload and converts each object in order,
// stopping at the first failure.
func (c *Converter) Process(ctx context.Context, payload []byte) ([]Result, error) {
	keys, err := domain.ParseEnvelope(payload)
	if errors.Is(err, domain.ErrEmptyEnvelope) {
		c.logger.Info("notification has no records, skipping")
		c.metrics.Invocations.WithLabelValues("skipped").Inc()
		return nil, nil
	}
	if err != nil {
		c.metrics.Invocations.WithLabelValues("failed").Inc()
		c.metrics.Failures.WithLabelValues("envelope").Inc()
		return nil, err
	}
	return c.ConvertAll(ctx, keys)
}

// ConvertAll converts keys in order, stopping at the first failure.
func (c *Converter) ConvertAll(ctx context.Context, keys []domain.ObjectKey) ([]Result, error) {
	results := make([]Result, 0, len(keys))
	for _, k := range keys {
		res, err := c.Convert(ctx, k)
		if err != nil {
			return results, fmt.Errorf("convert %s: %w", k, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// Convert processes one object. Keys that are not GFS forecast files are
// skipped without touching storage.
func (c *Converter) Convert(ctx context.Context, obj domain.ObjectKey) (Result, error) {
	id, ok := domain.ParseObjectKey(obj.Key)
	if !ok {
		c.logger.Info("not a matching GFS key, skipping", "bucket", obj.Bucket, "key", obj.Key)
		c.metrics.Invocations.WithLabelValues("skipped").Inc()
		return Result{Skipped: true}, nil
	}

	logger := c.logger.With("bucket", obj.Bucket, "key", obj.Key, "run", id.RunLabel(), "forecast_hour", id.HourLabel())
	logger.Info("processing forecast file", "valid_time", id.ValidTime().Format(time.RFC3339))

	ev, err := c.convert(ctx, obj, id, logger)
	if err != nil {
		logger.Error("conversion failed", "error", err)
		c.metrics.Invocations.WithLabelValues("failed").Inc()
		c.metrics.Failures.WithLabelValues(failureReason(err)).Inc()
		return Result{Identity: id}, err
	}

	c.metrics.Invocations.WithLabelValues("converted").Inc()
	return Result{Identity: id, Event: ev}, nil
}

func (c *Converter) convert(ctx context.Context, obj domain.ObjectKey, id domain.ForecastIdentity, logger *slog.Logger) (domain.ConversionEvent, error) {
	scratch, err := os.MkdirTemp(c.opts.WorkDir, "gfs-*")
	if err != nil {
		return domain.ConversionEvent{}, &domain.TransferError{Op: "create scratch", Key: c.opts.WorkDir, Err: err}
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			logger.Warn("remove scratch dir failed", "dir", scratch, "error", err)
		}
	}()

	src, err := c.sources.Open(ctx, obj.Bucket)
	if err != nil {
		return domain.ConversionEvent{}, &domain.TransferError{Op: "open", Bucket: obj.Bucket, Err: err}
	}
	defer src.Close()

	var rng domain.ByteRange
	err = c.stage("locate", func() error {
		var err error
		rng, err = src.Locate(ctx, obj.Key, c.opts.Selector)
		return err
	})
	if err != nil {
		return domain.ConversionEvent{}, err
	}

	recordPath := filepath.Join(scratch, "record.grib2")
	var n int64
	err = c.stage("download", func() error {
		var err error
		n, err = downloadRecord(ctx, src, obj.Key, rng, recordPath)
		return err
	})
	c.metrics.BytesDownloaded.Add(float64(n))
	if err != nil {
		return domain.ConversionEvent{}, err
	}
	logger.Info("downloaded variable record", "range_start", rng.Start, "range_end", rng.End, "bytes", n)

	var grid domain.Grid
	err = c.stage("decode", func() error {
		var err error
		grid, err = c.decoder.Decode(ctx, recordPath)
		return err
	})
	if err != nil {
		return domain.ConversionEvent{}, err
	}

	var table domain.Table
	err = c.stage("flatten", func() error {
		var err error
		table, err = domain.Flatten(grid)
		if err != nil {
			return &domain.DecodeError{Path: recordPath, Err: err}
		}
		return nil
	})
	if err != nil {
		return domain.ConversionEvent{}, err
	}

	tw := newTableWriter(c.encoder, c.opts.ValueName, scratch, c.destinations, c.opts.Destination)
	outputKey := id.OutputKey(domain.OutputExt)

	err = c.stage("encode", func() error { return tw.write(table) })
	if err != nil {
		return domain.ConversionEvent{}, err
	}
	c.metrics.RowsWritten.Add(float64(table.Len()))

	var published bool
	err = c.stage("publish", func() error {
		var err error
		published, err = tw.publish(ctx, outputKey, logger)
		return err
	})
	if err != nil {
		return domain.ConversionEvent{}, err
	}
	if published {
		c.metrics.Uploads.WithLabelValues("uploaded").Inc()
	} else {
		c.metrics.Uploads.WithLabelValues("skipped").Inc()
	}

	logger.Info("conversion complete", "rows", table.Len(), "output_key", outputKey, "published", published)

	return domain.ConversionEvent{
		Source:       obj,
		Run:          id.RunLabel(),
		ForecastHour: id.HourLabel(),
		ValidTime:    id.ValidTime(),
		Variable:     c.opts.ValueName,
		RangeStart:   rng.Start,
		RangeEnd:     rng.End,
		Bytes:        n,
		Nx:           grid.Nx,
		Ny:           grid.Ny,
		Rows:         table.Len(),
		OutputKey:    outputKey,
		Destination:  tw.destination(),
		Published:    published,
		ConvertedAt:  c.clock.Now().UTC(),
	}, nil
}

// stage runs fn and records its duration under name.
func (c *Converter) stage(name string, fn func() error) error {
	start := c.clock.Now()
	err := fn()
	c.metrics.StageDuration.WithLabelValues(name).Observe(c.clock.Since(start).Seconds())
	return err
}

// downloadRecord streams rng of key into a new file at path and closes it.
func downloadRecord(ctx context.Context, src *blobstore.Bucket, key string, rng domain.ByteRange, path string) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, &domain.TransferError{Op: "write scratch", Key: path, Err: err}
	}
	n, err := src.DownloadRange(ctx, key, rng, f)
	if err != nil {
		_ = f.Close()
		return n, err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return n, &domain.TransferError{Op: "write scratch", Key: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return n, &domain.TransferError{Op: "write scratch", Key: path, Err: err}
	}
	return n, nil
}

func failureReason(err error) string {
	var (
		notFound  *domain.VariableNotFoundError
		ambiguous *domain.AmbiguousVariableError
		badIndex  *domain.IndexFormatError
		transfer  *domain.TransferError
		decode    *domain.DecodeError
		encode    *EncodeError
	)
	switch {
	case errors.As(err, &notFound):
		return "not_found"
	case errors.As(err, &ambiguous):
		return "ambiguous"
	case errors.As(err, &badIndex):
		return "index_format"
	case errors.As(err, &transfer):
		return "transfer"
	case errors.As(err, &decode):
		return "decode"
	case errors.As(err, &encode):
		return "encode"
	default:
		return "other"
	}
}
