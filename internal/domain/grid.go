package domain

import (
	"errors"
	"fmt"
	"iter"
	"math"
	"slices"
)

// Grid is a decoded 2-D field. Values is row-major, Values[j*Nx+i].
//
// Longitudes and Latitudes are either 1-D axes (length Nx and Ny) for regular
// latitude/longitude grids, or full per-cell coordinates of length Nx*Ny in the
// same row-major order for projected grids.
type Grid struct {
	Nx, Ny     int
	Longitudes []float32
	Latitudes  []float32
	Values     []float32
}

// Cells returns Nx*Ny, or an error if the product does not fit an int32 index.
func (g Grid) Cells() (int, error) {
	if g.Nx <= 0 || g.Ny <= 0 {
		return 0, fmt.Errorf("grid dimensions must be positive, got %dx%d", g.Nx, g.Ny)
	}
	if g.Nx > math.MaxInt32 || g.Ny > math.MaxInt32 {
		return 0, fmt.Errorf("grid dimensions %dx%d overflow int32 indices", g.Nx, g.Ny)
	}
	n := int64(g.Nx) * int64(g.Ny)
	if n > math.MaxInt32 {
		return 0, fmt.Errorf("grid of %d cells exceeds table capacity", n)
	}
	return int(n), nil
}

// Validate checks that every array fits the grid shape.
func (g Grid) Validate() error {
	n, err := g.Cells()
	if err != nil {
		return err
	}
	if len(g.Values) != n {
		return &GridShapeError{Field: "values", Got: len(g.Values), Expected: fmt.Sprintf("%d (%dx%d)", n, g.Nx, g.Ny)}
	}
	if l := len(g.Longitudes); l != g.Nx && l != n {
		return &GridShapeError{Field: "longitudes", Got: l, Expected: fmt.Sprintf("%d or %d", g.Nx, n)}
	}
	if l := len(g.Latitudes); l != g.Ny && l != n {
		return &GridShapeError{Field: "latitudes", Got: l, Expected: fmt.Sprintf("%d or %d", g.Ny, n)}
	}
	return nil
}

// GridCell is one output row.
type GridCell struct {
	I         int32
	J         int32
	Longitude float32
	Latitude  float32
	Value     float32
}

// Table is the flattened grid stored column by column. All columns have the
// same length and row k of the table is cell (I[k], J[k]).
type Table struct {
	I         []int32
	J         []int32
	Longitude []float32
	Latitude  []float32
	Value     []float32
}

// CoordinateColumns are the fixed column names that precede the value column.
var CoordinateColumns = []string{"i", "j", "longitude", "latitude"}

// ValidateValueName rejects value column names that are empty or would
// duplicate a coordinate column.
func ValidateValueName(name string) error {
	if name == "" {
		return errors.New("value column name is empty")
	}
	if slices.Contains(CoordinateColumns, name) {
		return fmt.Errorf("value column name %q collides with a coordinate column", name)
	}
	return nil
}

// Len returns the number of rows.
func (t Table) Len() int { return len(t.Value) }

// Cell returns row k.
func (t Table) Cell(k int) GridCell {
	return GridCell{
		I:         t.I[k],
		J:         t.J[k],
		Longitude: t.Longitude[k],
		Latitude:  t.Latitude[k],
		Value:     t.Value[k],
	}
}

// All iterates over the rows in table order.
func (t Table) All() iter.Seq[GridCell] {
	return func(yield func(GridCell) bool) {
		for k := range t.Len() {
			if !yield(t.Cell(k)) {
				return
			}
		}
	}
}

// Flatten turns a grid into a table with one row per cell, visiting j in the
// outer loop and i in the inner loop so row k is Values[k].
//
// The value column aliases g.Values, as do full per-cell coordinate arrays;
// only the index columns and broadcast axes are allocated.
func Flatten(g Grid) (Table, error) {
	if err := g.Validate(); err != nil {
		return Table{}, err
	}
	n := g.Nx * g.Ny

	t := Table{
		I:     make([]int32, n),
		J:     make([]int32, n),
		Value: g.Values,
	}

	lonAxis := len(g.Longitudes) == g.Nx && g.Nx != n
	latAxis := len(g.Latitudes) == g.Ny && g.Ny != n
	if lonAxis {
		t.Longitude = make([]float32, n)
	} else {
		t.Longitude = g.Longitudes
	}
	if latAxis {
		t.Latitude = make([]float32, n)
	} else {
		t.Latitude = g.Latitudes
	}

	k := 0
	for j := range g.Ny {
		lat := float32(0)
		if latAxis {
			lat = g.Latitudes[j]
		}
		for i := range g.Nx {
			t.I[k] = int32(i)
			t.J[k] = int32(j)
			if lonAxis {
				t.Longitude[k] = g.Longitudes[i]
			}
			if latAxis {
				t.Latitude[k] = lat
			}
			k++
		}
	}
	return t, nil
}

// Verify checks that the table covers an Nx×Ny grid exactly once in flattening
// order and returns the inferred dimensions.
func (t Table) Verify() (nx, ny int, err error) {
	n := t.Len()
	if len(t.I) != n || len(t.J) != n || len(t.Longitude) != n || len(t.Latitude) != n {
		return 0, 0, fmt.Errorf("columns have unequal lengths")
	}
	if n == 0 {
		return 0, 0, fmt.Errorf("table is empty")
	}
	for k := range n {
		nx = max(nx, int(t.I[k])+1)
		ny = max(ny, int(t.J[k])+1)
	}
	if nx*ny != n {
		return nx, ny, fmt.Errorf("table has %d rows, expected %d for %dx%d", n, nx*ny, nx, ny)
	}
	for k := range n {
		if int(t.I[k]) != k%nx || int(t.J[k]) != k/nx {
			return nx, ny, fmt.Errorf("row %d is (%d,%d), expected (%d,%d)", k, t.I[k], t.J[k], k%nx, k/nx)
		}
	}
	return nx, ny, nil
}
