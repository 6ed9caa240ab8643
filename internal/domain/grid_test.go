package domain

import (
	"errors"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatten_WorkedExample(t *testing.T) {
	g := Grid{
		Nx:         2,
		Ny:         2,
		Longitudes: []float32{10, 20},
		Latitudes:  []float32{30, 40},
		Values:     []float32{1, 2, 3, 4},
	}

	table, err := Flatten(g)
	require.NoError(t, err)

	want := []GridCell{
		{I: 0, J: 0, Longitude: 10, Latitude: 30, Value: 1},
		{I: 1, J: 0, Longitude: 20, Latitude: 30, Value: 2},
		{I: 0, J: 1, Longitude: 10, Latitude: 40, Value: 3},
		{I: 1, J: 1, Longitude: 20, Latitude: 40, Value: 4},
	}
	if diff := cmp.Diff(want, slices.Collect(table.All())); diff != "" {
		t.Fatalf("flattened table mismatch (-want +got):\n%s", diff)
	}
}

func TestFlatten_CoversEveryCellOnce(t *testing.T) {
	shapes := []struct{ nx, ny int }{{1, 1}, {1, 5}, {7, 1}, {3, 4}, {16, 9}}
	for _, s := range shapes {
		g := testGrid(s.nx, s.ny)
		table, err := Flatten(g)
		require.NoError(t, err)
		require.Equal(t, s.nx*s.ny, table.Len())

		seen := make(map[[2]int32]bool, table.Len())
		for k := range table.Len() {
			c := table.Cell(k)
			key := [2]int32{c.I, c.J}
			assert.False(t, seen[key], "duplicate cell %v", key)
			seen[key] = true

			// i varies fastest: row k is (k mod nx, k div nx).
			assert.Equal(t, int32(k%s.nx), c.I)
			assert.Equal(t, int32(k/s.nx), c.J)
			assert.Equal(t, g.Values[k], c.Value)
			assert.Equal(t, g.Longitudes[c.I], c.Longitude)
			assert.Equal(t, g.Latitudes[c.J], c.Latitude)
		}
		assert.Len(t, seen, s.nx*s.ny)
	}
}

func TestFlatten_Idempotent(t *testing.T) {
	g := testGrid(5, 3)
	a, err := Flatten(g)
	require.NoError(t, err)
	b, err := Flatten(g)
	require.NoError(t, err)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("re-flattening changed the table (-first +second):\n%s", diff)
	}
}

func TestFlatten_FullCoordinates(t *testing.T) {
	// A projected grid carries per-cell coordinates instead of axes.
	g := Grid{
		Nx:         3,
		Ny:         2,
		Longitudes: []float32{-100, -99, -98, -100.5, -99.5, -98.5},
		Latitudes:  []float32{30, 30.1, 30.2, 31, 31.1, 31.2},
		Values:     []float32{1, 2, 3, 4, 5, 6},
	}
	table, err := Flatten(g)
	require.NoError(t, err)
	assert.Equal(t, GridCell{I: 1, J: 1, Longitude: -99.5, Latitude: 31.1, Value: 5}, table.Cell(4))
	assert.Equal(t, GridCell{I: 2, J: 0, Longitude: -98, Latitude: 30.2, Value: 3}, table.Cell(2))
}

func TestFlatten_AliasesValues(t *testing.T) {
	g := testGrid(4, 4)
	table, err := Flatten(g)
	require.NoError(t, err)
	assert.Same(t, &g.Values[0], &table.Value[0])
}

func TestFlatten_ShapeErrors(t *testing.T) {
	tests := []struct {
		name  string
		grid  Grid
		field string
	}{
		{"short values", Grid{Nx: 2, Ny: 2, Longitudes: []float32{0, 1}, Latitudes: []float32{0, 1}, Values: []float32{1, 2, 3}}, "values"},
		{"bad longitudes", Grid{Nx: 2, Ny: 2, Longitudes: []float32{0, 1, 2}, Latitudes: []float32{0, 1}, Values: []float32{1, 2, 3, 4}}, "longitudes"},
		{"bad latitudes", Grid{Nx: 2, Ny: 2, Longitudes: []float32{0, 1}, Latitudes: nil, Values: []float32{1, 2, 3, 4}}, "latitudes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Flatten(tt.grid)
			var se *GridShapeError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.field, se.Field)
		})
	}
}

func TestFlatten_InvalidDimensions(t *testing.T) {
	_, err := Flatten(Grid{Nx: 0, Ny: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be positive")
}

func TestTable_AllStopsEarly(t *testing.T) {
	table, err := Flatten(testGrid(3, 3))
	require.NoError(t, err)
	count := 0
	for range table.All() {
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
}

func testGrid(nx, ny int) Grid {
	g := Grid{
		Nx:         nx,
		Ny:         ny,
		Longitudes: make([]float32, nx),
		Latitudes:  make([]float32, ny),
		Values:     make([]float32, nx*ny),
	}
	for i := range nx {
		g.Longitudes[i] = float32(i) * 0.25
	}
	for j := range ny {
		g.Latitudes[j] = 90 - float32(j)*0.25
	}
	for k := range g.Values {
		g.Values[k] = 273.15 + float32(k)
	}
	return g
}

func TestTable_Verify(t *testing.T) {
	table, err := Flatten(testGrid(6, 4))
	require.NoError(t, err)

	nx, ny, err := table.Verify()
	require.NoError(t, err)
	assert.Equal(t, 6, nx)
	assert.Equal(t, 4, ny)

	t.Run("swapped rows", func(t *testing.T) {
		bad, err := Flatten(testGrid(2, 2))
		require.NoError(t, err)
		bad.I[0], bad.I[1] = bad.I[1], bad.I[0]
		_, _, err = bad.Verify()
		assert.ErrorContains(t, err, "row 0")
	})

	t.Run("missing row", func(t *testing.T) {
		bad, err := Flatten(testGrid(3, 3))
		require.NoError(t, err)
		bad.I, bad.J = bad.I[:8], bad.J[:8]
		bad.Longitude, bad.Latitude, bad.Value = bad.Longitude[:8], bad.Latitude[:8], bad.Value[:8]
		_, _, err = bad.Verify()
		assert.ErrorContains(t, err, "expected 9")
	})

	t.Run("empty", func(t *testing.T) {
		_, _, err := Table{}.Verify()
		assert.ErrorContains(t, err, "empty")
	})
}

func TestValidateValueName(t *testing.T) {
	require.NoError(t, ValidateValueName("t2m"))
	require.NoError(t, ValidateValueName("lat"))
	assert.Error(t, ValidateValueName(""))
	for _, name := range CoordinateColumns {
		err := ValidateValueName(name)
		require.Error(t, err, name)
		assert.Contains(t, err.Error(), "collides")
	}
}
