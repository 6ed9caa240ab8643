// Package wgrib2 decodes single GRIB2 records by running the wgrib2 utility.
//
// wgrib2 writes the record's values, latitudes, and longitudes as headerless
// native float32 binaries in raw scan order, which for GFS is west to east
// along a row and north to south across rows.
package wgrib2

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/couchcryptid/gfs-grid-etl/internal/domain"
)

// DefaultCommand is looked up in PATH when no command is configured.
const DefaultCommand = "wgrib2"

// undefinedValue is what wgrib2 writes for points masked by a bitmap.
const undefinedValue = float32(9.999e20)

// shapeRe matches the -nxny inventory field, e.g. "(1440 x 721)".
var shapeRe = regexp.MustCompile(`^\(\s*([0-9]+) x\s*([0-9]+)\)$`)

// Decoder implements pipeline.Decoder.
type Decoder struct {
	command string
	logger  *slog.Logger
}

// NewDecoder creates a Decoder that runs command (DefaultCommand if empty).
func NewDecoder(command string, logger *slog.Logger) *Decoder {
	if command == "" {
		command = DefaultCommand
	}
	return &Decoder{command: command, logger: logger}
}

// Decode reads the first record of the GRIB2 file at path.
func (d *Decoder) Decode(ctx context.Context, path string) (domain.Grid, error) {
	dir, err := os.MkdirTemp(filepath.Dir(path), "wgrib2-*")
	if err != nil {
		return domain.Grid{}, &domain.DecodeError{Path: path, Err: err}
	}
	defer os.RemoveAll(dir)

	valPath := filepath.Join(dir, "values.bin")
	latPath := filepath.Join(dir, "lat.bin")
	lonPath := filepath.Join(dir, "lon.bin")

	cmd := exec.CommandContext(ctx, d.command, path,
		"-d", "1",
		"-order", "raw",
		"-no_header",
		"-nxny",
		"-bin", valPath,
		"-rpn", "rcl_lat", "-bin", latPath,
		"-rpn", "rcl_lon", "-bin", lonPath,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return domain.Grid{}, &domain.DecodeError{Path: path, Err: fmt.Errorf("run %s: %w", d.command, err)}
	}
	if s := strings.TrimSpace(stderr.String()); s != "" {
		d.logger.Debug("wgrib2 stderr", "path", path, "output", s)
	}

	nx, ny, err := parseShape(stdout.String())
	if err != nil {
		return domain.Grid{}, &domain.DecodeError{Path: path, Err: err}
	}
	n := nx * ny

	g := domain.Grid{Nx: nx, Ny: ny}
	if g.Values, err = readFloats(valPath, n); err != nil {
		return domain.Grid{}, &domain.DecodeError{Path: path, Err: fmt.Errorf("values: %w", err)}
	}
	if g.Latitudes, err = readFloats(latPath, n); err != nil {
		return domain.Grid{}, &domain.DecodeError{Path: path, Err: fmt.Errorf("latitudes: %w", err)}
	}
	if g.Longitudes, err = readFloats(lonPath, n); err != nil {
		return domain.Grid{}, &domain.DecodeError{Path: path, Err: fmt.Errorf("longitudes: %w", err)}
	}

	nan := float32(math.NaN())
	for k, v := range g.Values {
		if v == undefinedValue {
			g.Values[k] = nan
		}
	}

	if err := g.Validate(); err != nil {
		return domain.Grid{}, &domain.DecodeError{Path: path, Err: err}
	}
	return g, nil
}

// parseShape reads the first "rec:offset:(nx x ny)" inventory line.
func parseShape(out string) (nx, ny int, err error) {
	line, _, _ := strings.Cut(strings.TrimSpace(out), "\n")
	fields := strings.Split(line, ":")
	if len(fields) < 3 {
		return 0, 0, fmt.Errorf("unexpected wgrib2 inventory line %q", line)
	}
	m := shapeRe.FindStringSubmatch(strings.TrimSpace(fields[2]))
	if m == nil {
		return 0, 0, fmt.Errorf("shape field %q has wrong format", fields[2])
	}
	nx, err = strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, err
	}
	ny, err = strconv.Atoi(m[2])
	if err != nil {
		return 0, 0, err
	}
	if nx == 0 || ny == 0 {
		return 0, 0, fmt.Errorf("empty grid %dx%d", nx, ny)
	}
	return nx, ny, nil
}

func readFloats(path string, n int) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) != 4*n {
		return nil, fmt.Errorf("%s holds %d bytes, expected %d", filepath.Base(path), len(data), 4*n)
	}
	out := make([]float32, n)
	if _, err := binary.Decode(data, binary.NativeEndian, out); err != nil {
		return nil, err
	}
	return out, nil
}
