// Package parquet encodes flattened grids as Parquet files with apache/arrow-go.
package parquet

import (
	"fmt"
	"io"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	pq "github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/couchcryptid/gfs-grid-etl/internal/domain"
)

// Fixed column names. The value column is named after the variable.
const (
	ColumnI         = "i"
	ColumnJ         = "j"
	ColumnLongitude = "longitude"
	ColumnLatitude  = "latitude"
)

// Schema returns the table schema with the value column called valueName.
func Schema(valueName string) *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: ColumnI, Type: arrow.PrimitiveTypes.Int32},
		{Name: ColumnJ, Type: arrow.PrimitiveTypes.Int32},
		{Name: ColumnLongitude, Type: arrow.PrimitiveTypes.Float32},
		{Name: ColumnLatitude, Type: arrow.PrimitiveTypes.Float32},
		{Name: valueName, Type: arrow.PrimitiveTypes.Float32},
	}, nil)
}

// ParseCodec maps a codec name to a Parquet compression codec.
func ParseCodec(name string) (compress.Compression, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "gzip", "":
		return compress.Codecs.Gzip, nil
	case "snappy":
		return compress.Codecs.Snappy, nil
	case "zstd":
		return compress.Codecs.Zstd, nil
	case "brotli":
		return compress.Codecs.Brotli, nil
	case "lz4":
		return compress.Codecs.Lz4Raw, nil
	case "none", "uncompressed":
		return compress.Codecs.Uncompressed, nil
	default:
		return compress.Codecs.Uncompressed, fmt.Errorf("unknown compression codec %q", name)
	}
}

// Encoder writes tables as single-row-group Parquet files.
type Encoder struct {
	codec compress.Compression
}

// NewEncoder creates an Encoder using the named codec.
func NewEncoder(codec string) (*Encoder, error) {
	c, err := ParseCodec(codec)
	if err != nil {
		return nil, err
	}
	return &Encoder{codec: c}, nil
}

// Codec returns the configured compression codec.
func (e *Encoder) Codec() compress.Compression { return e.codec }

// Encode writes table to w. The column buffers are handed to Arrow without
// copying. w is not closed.
func (e *Encoder) Encode(table domain.Table, valueName string, w io.Writer) error {
	if err := domain.ValidateValueName(valueName); err != nil {
		return fmt.Errorf("encode parquet: %w", err)
	}
	schema := Schema(valueName)
	n := table.Len()

	cols := []arrow.Array{
		int32Array(table.I),
		int32Array(table.J),
		float32Array(table.Longitude),
		float32Array(table.Latitude),
		float32Array(table.Value),
	}
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()

	rec := array.NewRecord(schema, cols, int64(n))
	defer rec.Release()

	props := pq.NewWriterProperties(
		pq.WithCompression(e.codec),
		pq.WithMaxRowGroupLength(int64(max(n, 1))),
	)
	// Hide any Close method so the caller keeps ownership of w.
	fw, err := pqarrow.NewFileWriter(schema, struct{ io.Writer }{w}, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return fmt.Errorf("encode parquet: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		_ = fw.Close()
		return fmt.Errorf("encode parquet: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("encode parquet: %w", err)
	}
	return nil
}

func int32Array(v []int32) arrow.Array {
	buf := memory.NewBufferBytes(arrow.Int32Traits.CastToBytes(v))
	data := array.NewData(arrow.PrimitiveTypes.Int32, len(v), []*memory.Buffer{nil, buf}, nil, 0, 0)
	defer data.Release()
	return array.NewInt32Data(data)
}

func float32Array(v []float32) arrow.Array {
	buf := memory.NewBufferBytes(arrow.Float32Traits.CastToBytes(v))
	data := array.NewData(arrow.PrimitiveTypes.Float32, len(v), []*memory.Buffer{nil, buf}, nil, 0, 0)
	defer data.Release()
	return array.NewFloat32Data(data)
}
