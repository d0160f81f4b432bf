//go:build netcdf

// Package out2d reads SCHISM 2D output stacks (netCDF4) through the netCDF C
// library
package out2d

import (
	"fmt"
	"math"
	"time"

	"github.com/fhs/go-netcdf/netcdf"

	"github.com/abelzeko/surgecast/internal/cftime"
)

const (
	nodeXVar     = "SCHISM_hgrid_node_x"
	nodeYVar     = "SCHISM_hgrid_node_y"
	timeVar      = "time"
	elevationVar = "elevation"

	// values above this are netCDF fill values of dry or masked nodes
	fillThreshold = 1e30
)

// File is an open out2d_*.nc stack
type File struct {
	ds    netcdf.Dataset
	elev  netcdf.Var
	x, y  []float64
	times []time.Time
}

// Open reads the node coordinates and time axis of an output stack. start is
// used as the reference when the time units carry no usable epoch.
func Open(path string, start time.Time) (*File, error) {
	ds, err := netcdf.OpenFile(path, netcdf.NOWRITE)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %v", path, err)
	}
	f := &File{ds: ds}
	if err := f.load(start); err != nil {
		ds.Close()
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return f, nil
}

func (f *File) load(start time.Time) error {
	var err error
	if f.x, err = f.readAll(nodeXVar); err != nil {
		return err
	}
	if f.y, err = f.readAll(nodeYVar); err != nil {
		return err
	}
	if len(f.x) != len(f.y) {
		return fmt.Errorf("%d x and %d y node coordinates", len(f.x), len(f.y))
	}

	seconds, err := f.readAll(timeVar)
	if err != nil {
		return err
	}
	units := cftime.Units{Step: time.Second, Epoch: start.UTC()}
	tv, err := f.ds.Var(timeVar)
	if err != nil {
		return err
	}
	if s, err := textAttr(tv, "units"); err == nil {
		if u, err := cftime.Parse(s); err == nil {
			units = u
		}
	}
	f.times = units.Decode(seconds)

	if f.elev, err = f.ds.Var(elevationVar); err != nil {
		return fmt.Errorf("variable %s: %v", elevationVar, err)
	}
	dims, err := f.elev.Dims()
	if err != nil {
		return err
	}
	if len(dims) != 2 {
		return fmt.Errorf("variable %s has %d dimensions, expected (time, node)", elevationVar, len(dims))
	}
	return nil
}

func (f *File) readAll(name string) ([]float64, error) {
	v, err := f.ds.Var(name)
	if err != nil {
		return nil, fmt.Errorf("variable %s: %v", name, err)
	}
	t, err := v.Type()
	if err != nil {
		return nil, err
	}
	switch t {
	case netcdf.DOUBLE:
		return netcdf.GetFloat64s(v)
	case netcdf.FLOAT:
		vals, err := netcdf.GetFloat32s(v)
		if err != nil {
			return nil, err
		}
		return widen(vals), nil
	default:
		return nil, fmt.Errorf("variable %s has unsupported type %v", name, t)
	}
}

// Nodes returns the node longitudes and latitudes
func (f *File) Nodes() ([]float64, []float64) {
	return f.x, f.y
}

// Times returns the output times
func (f *File) Times() []time.Time {
	return f.times
}

// Elevation reads the water level series of one node; fill values become NaN
func (f *File) Elevation(node int) ([]float64, error) {
	if node < 0 || node >= len(f.x) {
		return nil, fmt.Errorf("node %d out of range [0, %d)", node, len(f.x))
	}
	nt := uint64(len(f.times))
	start := []uint64{0, uint64(node)}
	count := []uint64{nt, 1}

	t, err := f.elev.Type()
	if err != nil {
		return nil, err
	}
	var out []float64
	switch t {
	case netcdf.FLOAT:
		buf := make([]float32, nt)
		if err := f.elev.ReadFloat32Slice(buf, start, count); err != nil {
			return nil, fmt.Errorf("failed to read elevation of node %d: %v", node, err)
		}
		out = widen(buf)
	case netcdf.DOUBLE:
		out = make([]float64, nt)
		if err := f.elev.ReadFloat64Slice(out, start, count); err != nil {
			return nil, fmt.Errorf("failed to read elevation of node %d: %v", node, err)
		}
	default:
		return nil, fmt.Errorf("variable %s has unsupported type %v", elevationVar, t)
	}

	for i, v := range out {
		if math.Abs(v) > fillThreshold {
			out[i] = math.NaN()
		}
	}
	return out, nil
}

// Close releases the dataset
func (f *File) Close() error {
	return f.ds.Close()
}

func textAttr(v netcdf.Var, name string) (string, error) {
	a := v.Attr(name)
	n, err := a.Len()
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if err := a.ReadBytes(buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func widen(vals []float32) []float64 {
	out := make([]float64, len(vals))
	for i, v := range vals {
		out[i] = float64(v)
	}
	return out
}
