package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob"
	"gocloud.dev/blob/memblob"

	"github.com/couchcryptid/gfs-grid-etl/internal/adapter/blobstore"
	"github.com/couchcryptid/gfs-grid-etl/internal/adapter/parquet"
	"github.com/couchcryptid/gfs-grid-etl/internal/domain"
	"github.com/couchcryptid/gfs-grid-etl/internal/observability"
	"github.com/couchcryptid/gfs-grid-etl/internal/pipeline"
)

const (
	sourceBucket = "noaa-gfs-bdp-pds"
	targetBucket = "gfs-parquet"
	sourceKey    = "gfs.20210607/12/atmos/gfs.t12z.pgrb2.0p25.f003"
	outputKey    = "run=2021-06-07-12/f=003/data.pq"
	t2mSelector  = ":TMP:2 m above ground:"
)

// Records start at offsets 0, 10 and 25.
const sourceObject = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcd"

const sourceIndex = "1:0:d=2021060712:PRMSL:mean sea level:3 hour fcst:\n" +
	"2:10:d=2021060712:TMP:2 m above ground:3 hour fcst:\n" +
	"3:25:d=2021060712:RH:2 m above ground:3 hour fcst:\n"

// --- fakes ---

type fakeDecoder struct {
	grid   domain.Grid
	err    error
	calls  int
	record []byte
}

func (d *fakeDecoder) Decode(_ context.Context, path string) (domain.Grid, error) {
	d.calls++
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Grid{}, err
	}
	d.record = data
	if d.err != nil {
		return domain.Grid{}, &domain.DecodeError{Path: path, Err: d.err}
	}
	return d.grid, nil
}

// countingOpener records every Open call.
type countingOpener struct {
	next  blobstore.Opener
	calls int
}

func (o *countingOpener) Open(ctx context.Context, name string) (*blobstore.Bucket, error) {
	o.calls++
	return o.next.Open(ctx, name)
}

type fixture struct {
	src       *blob.Bucket
	dst       *blob.Bucket
	opener    *countingOpener
	decoder   *fakeDecoder
	metrics   *observability.Metrics
	clock     *clockwork.FakeClock
	workDir   string
	converter *pipeline.Converter
}

func workedExampleGrid() domain.Grid {
	return domain.Grid{
		Nx:         2,
		Ny:         2,
		Longitudes: []float32{10, 20},
		Latitudes:  []float32{30, 40},
		Values:     []float32{1, 2, 3, 4},
	}
}

func newFixture(t *testing.T, opts pipeline.Options) *fixture {
	t.Helper()
	ctx := context.Background()

	src := memblob.OpenBucket(nil)
	dst := memblob.OpenBucket(nil)
	t.Cleanup(func() {
		_ = src.Close()
		_ = dst.Close()
	})
	require.NoError(t, src.WriteAll(ctx, sourceKey, []byte(sourceObject), nil))
	require.NoError(t, src.WriteAll(ctx, sourceKey+blobstore.IndexSuffix, []byte(sourceIndex), nil))

	f := &fixture{
		src:     src,
		dst:     dst,
		opener:  &countingOpener{next: blobstore.StaticOpener{sourceBucket: src, targetBucket: dst}},
		decoder: &fakeDecoder{grid: workedExampleGrid()},
		metrics: observability.NewMetricsForTesting(),
		clock:   clockwork.NewFakeClockAt(time.Date(2021, time.June, 7, 15, 30, 0, 0, time.UTC)),
		workDir: t.TempDir(),
	}

	if opts.Selector == "" {
		opts.Selector = t2mSelector
	}
	if opts.ValueName == "" {
		opts.ValueName = "t2m"
	}
	opts.WorkDir = f.workDir

	enc, err := parquet.NewEncoder("gzip")
	require.NoError(t, err)

	f.converter = pipeline.NewConverter(f.opener, f.opener, f.decoder, enc, opts, slog.New(slog.NewTextHandler(io.Discard, nil)), f.metrics)
	f.converter.SetClock(f.clock)
	return f
}

func (f *fixture) assertScratchRemoved(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.workDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch directory left behind")
}

func (f *fixture) readOutput(t *testing.T, key string) parquet.Contents {
	t.Helper()
	data, err := f.dst.ReadAll(context.Background(), key)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "data.pq")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	contents, err := parquet.ReadFile(context.Background(), path)
	require.NoError(t, err)
	return contents
}

func objectCount(t *testing.T, b *blob.Bucket) int {
	t.Helper()
	n := 0
	iter := b.List(nil)
	for {
		_, err := iter.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return n
		}
		require.NoError(t, err)
		n++
	}
}

// --- tests ---

func TestConverter_Convert_PublishesTable(t *testing.T) {
	f := newFixture(t, pipeline.Options{Destination: targetBucket})

	res, err := f.converter.Convert(context.Background(), domain.ObjectKey{Bucket: sourceBucket, Key: sourceKey})
	require.NoError(t, err)

	assert.False(t, res.Skipped)
	assert.Equal(t, "ABCDEFGHIJKLMNOP", string(f.decoder.record), "inclusive range [10,25]")

	want := domain.ConversionEvent{
		Source:       domain.ObjectKey{Bucket: sourceBucket, Key: sourceKey},
		Run:          "2021-06-07-12",
		ForecastHour: "003",
		ValidTime:    time.Date(2021, time.June, 7, 15, 0, 0, 0, time.UTC),
		Variable:     "t2m",
		RangeStart:   10,
		RangeEnd:     25,
		Bytes:        16,
		Nx:           2,
		Ny:           2,
		Rows:         4,
		OutputKey:    outputKey,
		Destination:  targetBucket,
		Published:    true,
		ConvertedAt:  f.clock.Now().UTC(),
	}
	if diff := cmp.Diff(want, res.Event); diff != "" {
		t.Fatalf("event mismatch (-want +got):\n%s", diff)
	}

	contents := f.readOutput(t, outputKey)
	assert.Equal(t, "t2m", contents.ValueName)
	assert.Equal(t, 1, contents.RowGroups)
	wantTable := domain.Table{
		I:         []int32{0, 1, 0, 1},
		J:         []int32{0, 0, 1, 1},
		Longitude: []float32{10, 20, 10, 20},
		Latitude:  []float32{30, 30, 40, 40},
		Value:     []float32{1, 2, 3, 4},
	}
	if diff := cmp.Diff(wantTable, contents.Table); diff != "" {
		t.Fatalf("table mismatch (-want +got):\n%s", diff)
	}

	f.assertScratchRemoved(t)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.Invocations.WithLabelValues("converted")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.Uploads.WithLabelValues("uploaded")), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(f.metrics.RowsWritten), 0)
	assert.InDelta(t, 16, testutil.ToFloat64(f.metrics.BytesDownloaded), 0)
}

func TestConverter_Convert_NoDestinationSkipsUpload(t *testing.T) {
	f := newFixture(t, pipeline.Options{})

	res, err := f.converter.Convert(context.Background(), domain.ObjectKey{Bucket: sourceBucket, Key: sourceKey})
	require.NoError(t, err)

	assert.False(t, res.Event.Published)
	assert.Empty(t, res.Event.Destination)
	assert.Equal(t, outputKey, res.Event.OutputKey)
	assert.Equal(t, 0, objectCount(t, f.dst))
	assert.Equal(t, 1, f.opener.calls, "only the source bucket is opened")
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.Uploads.WithLabelValues("skipped")), 0)
	f.assertScratchRemoved(t)
}

func TestConverter_Convert_NonMatchingKeyFetchesNothing(t *testing.T) {
	f := newFixture(t, pipeline.Options{Destination: targetBucket})

	for _, key := range []string{"random/object/key", sourceKey + blobstore.IndexSuffix} {
		res, err := f.converter.Convert(context.Background(), domain.ObjectKey{Bucket: sourceBucket, Key: key})
		require.NoError(t, err, key)
		assert.True(t, res.Skipped, key)
	}

	assert.Zero(t, f.opener.calls)
	assert.Zero(t, f.decoder.calls)
	assert.Equal(t, 0, objectCount(t, f.dst))
	assert.InDelta(t, 2, testutil.ToFloat64(f.metrics.Invocations.WithLabelValues("skipped")), 0)
}

func TestConverter_Convert_LastRecordReadsToEnd(t *testing.T) {
	f := newFixture(t, pipeline.Options{Selector: ":RH:2 m above ground:", ValueName: "r2"})

	res, err := f.converter.Convert(context.Background(), domain.ObjectKey{Bucket: sourceBucket, Key: sourceKey})
	require.NoError(t, err)

	assert.Equal(t, "PQRSTUVWXYZabcd", string(f.decoder.record))
	assert.Equal(t, domain.ToEOF, res.Event.RangeEnd)
	assert.Equal(t, "r2", res.Event.Variable)
}

func TestConverter_Convert_ForecastHourZero(t *testing.T) {
	f := newFixture(t, pipeline.Options{Destination: targetBucket})
	key := "gfs.20210607/12/atmos/gfs.t12z.pgrb2.0p25.f000"
	ctx := context.Background()
	require.NoError(t, f.src.WriteAll(ctx, key, []byte(sourceObject), nil))
	require.NoError(t, f.src.WriteAll(ctx, key+blobstore.IndexSuffix, []byte(sourceIndex), nil))

	res, err := f.converter.Convert(ctx, domain.ObjectKey{Bucket: sourceBucket, Key: key})
	require.NoError(t, err)
	assert.Equal(t, "run=2021-06-07-12/f=000/data.pq", res.Event.OutputKey)
	assert.True(t, res.Event.Published)
}

func TestConverter_Convert_Errors(t *testing.T) {
	tests := []struct {
		name     string
		selector string
		key      string
		decErr   error
		grid     *domain.Grid
		check    func(t *testing.T, err error)
		reason   string
		// noDownload is set when the failure must happen before any range read.
		noDownload bool
	}{
		{
			name:     "variable not found",
			selector: ":UGRD:",
			check: func(t *testing.T, err error) {
				var target *domain.VariableNotFoundError
				assert.ErrorAs(t, err, &target)
			},
			reason:     "not_found",
			noDownload: true,
		},
		{
			name:     "ambiguous selector",
			selector: ":2 m above ground:",
			check: func(t *testing.T, err error) {
				var target *domain.AmbiguousVariableError
				require.ErrorAs(t, err, &target)
				assert.Equal(t, []int{2, 3}, target.Lines)
			},
			reason:     "ambiguous",
			noDownload: true,
		},
		{
			name: "missing object",
			key:  "gfs.20210607/18/atmos/gfs.t18z.pgrb2.0p25.f003",
			check: func(t *testing.T, err error) {
				assert.True(t, blobstore.IsNotFound(err))
			},
			reason: "transfer",
		},
		{
			name:   "decoder failure",
			decErr: errors.New("wgrib2 exited 8"),
			check: func(t *testing.T, err error) {
				var target *domain.DecodeError
				assert.ErrorAs(t, err, &target)
			},
			reason: "decode",
		},
		{
			name: "inconsistent grid",
			grid: &domain.Grid{Nx: 2, Ny: 2, Longitudes: []float32{10, 20}, Latitudes: []float32{30, 40}, Values: []float32{1, 2, 3}},
			check: func(t *testing.T, err error) {
				var shape *domain.GridShapeError
				assert.ErrorAs(t, err, &shape)
				var target *domain.DecodeError
				assert.ErrorAs(t, err, &target)
			},
			reason: "decode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, pipeline.Options{Selector: tt.selector, Destination: targetBucket})
			f.decoder.err = tt.decErr
			if tt.grid != nil {
				f.decoder.grid = *tt.grid
			}
			key := sourceKey
			if tt.key != "" {
				key = tt.key
			}

			_, err := f.converter.Convert(context.Background(), domain.ObjectKey{Bucket: sourceBucket, Key: key})
			require.Error(t, err)
			tt.check(t, err)

			assert.Equal(t, 0, objectCount(t, f.dst), "nothing published on failure")
			f.assertScratchRemoved(t)
			assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.Invocations.WithLabelValues("failed")), 0)
			assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.Failures.WithLabelValues(tt.reason)), 0)
			if tt.noDownload {
				assert.Zero(t, f.decoder.calls, "decoder not run")
				assert.Zero(t, testutil.ToFloat64(f.metrics.BytesDownloaded), "no bytes downloaded")
			}
		})
	}
}

func TestConverter_HandleNotification(t *testing.T) {
	f := newFixture(t, pipeline.Options{Destination: targetBucket})

	ack, err := f.converter.HandleNotification(context.Background(), snsPayload(t, sourceBucket, sourceKey))
	require.NoError(t, err)
	assert.Equal(t, domain.Acknowledge(), ack)

	_, err = f.dst.Attributes(context.Background(), outputKey)
	assert.NoError(t, err, "table uploaded")
}

func TestConverter_HandleNotification_SkippedKeyStillAcknowledges(t *testing.T) {
	f := newFixture(t, pipeline.Options{Destination: targetBucket})

	ack, err := f.converter.HandleNotification(context.Background(), snsPayload(t, sourceBucket, "random/object/key"))
	require.NoError(t, err)
	assert.Equal(t, domain.Acknowledge(), ack)
	assert.Zero(t, f.opener.calls)
}

func TestConverter_HandleNotification_Errors(t *testing.T) {
	f := newFixture(t, pipeline.Options{Selector: ":UGRD:", Destination: targetBucket})

	_, err := f.converter.HandleNotification(context.Background(), []byte("not json"))
	require.Error(t, err)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.Failures.WithLabelValues("envelope")), 0)

	_, err = f.converter.HandleNotification(context.Background(), snsPayload(t, sourceBucket, sourceKey))
	var target *domain.VariableNotFoundError
	assert.ErrorAs(t, err, &target)
}

func TestConverter_Process_EmptyEnvelope(t *testing.T) {
	f := newFixture(t, pipeline.Options{})

	results, err := f.converter.Process(context.Background(), []byte(`{"Records":[]}`))
	require.NoError(t, err)
	assert.Empty(t, results)
}

// --- helpers ---

func s3EventJSON(t *testing.T, bucket, key string) []byte {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"Records": []any{
			map[string]any{
				"eventSource": "aws:s3",
				"eventName":   "ObjectCreated:Put",
				"s3": map[string]any{
					"bucket": map[string]any{"name": bucket},
					"object": map[string]any{"key": key},
				},
			},
		},
	})
	require.NoError(t, err)
	return data
}

func snsPayload(t *testing.T, bucket, key string) []byte {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"Records": []any{
			map[string]any{
				"EventSource": "aws:sns",
				"Sns":         map[string]any{"Message": string(s3EventJSON(t, bucket, key))},
			},
		},
	})
	require.NoError(t, err)
	return data
}
