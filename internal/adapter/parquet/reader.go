package parquet

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/couchcryptid/gfs-grid-etl/internal/domain"
)

// Contents is a decoded table file.
type Contents struct {
	ValueName string
	RowGroups int
	Codec     compress.Compression
	Table     domain.Table
}

// ReadFile loads a table written by Encoder and checks its schema.
func ReadFile(ctx context.Context, path string) (Contents, error) {
	rdr, err := file.OpenParquetFile(path, false)
	if err != nil {
		return Contents{}, fmt.Errorf("open parquet %s: %w", path, err)
	}
	defer rdr.Close()

	out := Contents{RowGroups: rdr.NumRowGroups(), Codec: compress.Codecs.Uncompressed}
	if out.RowGroups > 0 {
		cc, err := rdr.MetaData().RowGroup(0).ColumnChunk(0)
		if err != nil {
			return Contents{}, fmt.Errorf("read column chunk metadata: %w", err)
		}
		out.Codec = cc.Compression()
	}

	fr, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		return Contents{}, fmt.Errorf("open arrow reader: %w", err)
	}
	tbl, err := fr.ReadTable(ctx)
	if err != nil {
		return Contents{}, fmt.Errorf("read table: %w", err)
	}
	defer tbl.Release()

	if err := checkSchema(tbl.Schema()); err != nil {
		return Contents{}, err
	}
	out.ValueName = tbl.Schema().Field(4).Name

	out.Table = domain.Table{
		I:         int32Column(tbl.Column(0)),
		J:         int32Column(tbl.Column(1)),
		Longitude: float32Column(tbl.Column(2)),
		Latitude:  float32Column(tbl.Column(3)),
		Value:     float32Column(tbl.Column(4)),
	}
	return out, nil
}

func checkSchema(s *arrow.Schema) error {
	want := Schema("value")
	if s.NumFields() != want.NumFields() {
		return fmt.Errorf("table has %d columns, expected %d", s.NumFields(), want.NumFields())
	}
	for i, f := range s.Fields() {
		w := want.Field(i)
		if i < 4 && f.Name != w.Name {
			return fmt.Errorf("column %d is %q, expected %q", i, f.Name, w.Name)
		}
		if !arrow.TypeEqual(f.Type, w.Type) {
			return fmt.Errorf("column %q has type %s, expected %s", f.Name, f.Type, w.Type)
		}
	}
	return nil
}

func int32Column(c *arrow.Column) []int32 {
	out := make([]int32, 0, c.Len())
	for _, chunk := range c.Data().Chunks() {
		out = append(out, chunk.(*array.Int32).Int32Values()...)
	}
	return out
}

func float32Column(c *arrow.Column) []float32 {
	out := make([]float32, 0, c.Len())
	for _, chunk := range c.Data().Chunks() {
		out = append(out, chunk.(*array.Float32).Float32Values()...)
	}
	return out
}
