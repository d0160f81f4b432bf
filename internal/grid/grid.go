// Package grid holds regular lon/lat grids and the interpolation between them
package grid

import (
	"errors"
	"fmt"
	"math"

	"github.com/abelzeko/surgecast/internal/entities"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrOutsideGrid is returned when a target point is not covered by the source grid
var ErrOutsideGrid = errors.New("point outside source grid")

// Grid is a rectilinear grid with ascending coordinates
type Grid struct {
	X []float64 // longitude
	Y []float64 // latitude
}

// NewGrid validates and wraps the coordinate vectors
func NewGrid(x, y []float64) (Grid, error) {
	if len(x) == 0 || len(y) == 0 {
		return Grid{}, errors.New("grid coordinates must not be empty")
	}
	if !isStrictlyAscending(x) || !isStrictlyAscending(y) {
		return Grid{}, errors.New("grid coordinates must be strictly ascending")
	}
	return Grid{X: x, Y: y}, nil
}

// NewRegularGrid builds a grid covering extent at the given resolution in degrees
func NewRegularGrid(extent entities.Extent, res float64) (Grid, error) {
	if res <= 0 {
		return Grid{}, fmt.Errorf("invalid resolution %v", res)
	}
	x := axis(extent.LonMin(), extent.LonMax(), res)
	y := axis(extent.LatMin(), extent.LatMax(), res)
	return NewGrid(x, y)
}

func axis(lo, hi, res float64) []float64 {
	n := int(math.Floor((hi-lo)/res+1e-9)) + 1
	if n < 2 {
		return []float64{lo}
	}
	out := make([]float64, n)
	floats.Span(out, lo, lo+res*float64(n-1))
	return out
}

// Nx is the number of longitudes
func (g Grid) Nx() int { return len(g.X) }

// Ny is the number of latitudes
func (g Grid) Ny() int { return len(g.Y) }

// Field is a 2D variable on a grid, rows are latitudes and columns longitudes
type Field = *mat.Dense

// NewField allocates a zero field shaped for g
func (g Grid) NewField() Field {
	return mat.NewDense(g.Ny(), g.Nx(), nil)
}

// FieldFrom wraps row major data (lat-major) as a field shaped for g
func (g Grid) FieldFrom(data []float64) (Field, error) {
	if len(data) != g.Nx()*g.Ny() {
		return nil, fmt.Errorf("field size %d does not match grid %dx%d", len(data), g.Ny(), g.Nx())
	}
	return mat.NewDense(g.Ny(), g.Nx(), data), nil
}

// Covers reports whether dst lies entirely inside g
func (g Grid) Covers(dst Grid) bool {
	return dst.X[0] >= g.X[0] && dst.X[len(dst.X)-1] <= g.X[len(g.X)-1] &&
		dst.Y[0] >= g.Y[0] && dst.Y[len(dst.Y)-1] <= g.Y[len(g.Y)-1]
}

// Equal reports whether both grids have identical coordinates
func (g Grid) Equal(o Grid) bool {
	return floats.Equal(g.X, o.X) && floats.Equal(g.Y, o.Y)
}

func isStrictlyAscending(s []float64) bool {
	for i := 1; i < len(s); i++ {
		if s[i] <= s[i-1] {
			return false
		}
	}
	return true
}
