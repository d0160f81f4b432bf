package grid

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// bracket locates v on the axis and returns the lower index with the
// fractional distance to the next node.
func bracket(axis []float64, v float64) (int, float64, error) {
	n := len(axis)
	if v < axis[0] || v > axis[n-1] {
		return 0, 0, fmt.Errorf("%w: %v not in [%v, %v]", ErrOutsideGrid, v, axis[0], axis[n-1])
	}
	if n == 1 {
		return 0, 0, nil
	}
	if v == axis[n-1] {
		return n - 2, 1, nil
	}
	i := floats.Within(axis, v)
	if i < 0 {
		return 0, 0, fmt.Errorf("%w: %v", ErrOutsideGrid, v)
	}
	return i, (v - axis[i]) / (axis[i+1] - axis[i]), nil
}

// Bilinear interpolates f from src onto dst. Every dst point must lie inside src.
func Bilinear(src Grid, f Field, dst Grid) (Field, error) {
	r, c := f.Dims()
	if r != src.Ny() || c != src.Nx() {
		return nil, fmt.Errorf("field shape %dx%d does not match grid %dx%d", r, c, src.Ny(), src.Nx())
	}
	if src.Equal(dst) {
		return mat.DenseCopyOf(f), nil
	}

	type weight struct {
		i int
		w float64
	}
	xs := make([]weight, dst.Nx())
	for k, x := range dst.X {
		i, w, err := bracket(src.X, x)
		if err != nil {
			return nil, fmt.Errorf("longitude: %w", err)
		}
		xs[k] = weight{i, w}
	}
	ys := make([]weight, dst.Ny())
	for k, y := range dst.Y {
		j, w, err := bracket(src.Y, y)
		if err != nil {
			return nil, fmt.Errorf("latitude: %w", err)
		}
		ys[k] = weight{j, w}
	}

	out := dst.NewField()
	for row, yw := range ys {
		j0, j1 := yw.i, min(yw.i+1, src.Ny()-1)
		for col, xw := range xs {
			i0, i1 := xw.i, min(xw.i+1, src.Nx()-1)
			v00 := f.At(j0, i0)
			v01 := f.At(j0, i1)
			v10 := f.At(j1, i0)
			v11 := f.At(j1, i1)
			lower := v00 + (v01-v00)*xw.w
			upper := v10 + (v11-v10)*xw.w
			out.Set(row, col, lower+(upper-lower)*yw.w)
		}
	}
	return out, nil
}

// Lerp blends two fields of the same shape, w=0 gives a and w=1 gives b
func Lerp(a, b Field, w float64) (Field, error) {
	ra, ca := a.Dims()
	rb, cb := b.Dims()
	if ra != rb || ca != cb {
		return nil, fmt.Errorf("cannot blend fields of shape %dx%d and %dx%d", ra, ca, rb, cb)
	}
	out := mat.NewDense(ra, ca, nil)
	out.Scale(1-w, a)
	var scaled mat.Dense
	scaled.Scale(w, b)
	out.Add(out, &scaled)
	return out, nil
}
