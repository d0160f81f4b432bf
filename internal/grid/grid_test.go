package grid

import (
	"errors"
	"testing"

	"github.com/abelzeko/surgecast/internal/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func planeGrid(t *testing.T) (Grid, Field) {
	t.Helper()
	g, err := NewGrid([]float64{0, 1, 2, 3}, []float64{10, 11, 12})
	require.NoError(t, err)
	f := g.NewField()
	// f(x, y) = 2x + 3y is reproduced exactly by bilinear interpolation
	for j, y := range g.Y {
		for i, x := range g.X {
			f.Set(j, i, 2*x+3*y)
		}
	}
	return g, f
}

func TestNewRegularGrid(t *testing.T) {
	g, err := NewRegularGrid(entities.Extent{75, 102, 5, 30}, 0.25)
	require.NoError(t, err)
	assert.Equal(t, 109, g.Nx())
	assert.Equal(t, 101, g.Ny())
	assert.InDelta(t, 102.0, g.X[g.Nx()-1], 1e-9)
	assert.InDelta(t, 30.0, g.Y[g.Ny()-1], 1e-9)

	_, err = NewRegularGrid(entities.Extent{75, 102, 5, 30}, 0)
	assert.Error(t, err)
}

func TestNewGridRejectsUnsorted(t *testing.T) {
	_, err := NewGrid([]float64{0, 2, 1}, []float64{0, 1})
	assert.Error(t, err)
	_, err = NewGrid(nil, []float64{0, 1})
	assert.Error(t, err)
}

func TestBilinearLinearField(t *testing.T) {
	src, f := planeGrid(t)
	dst, err := NewGrid([]float64{0, 0.5, 1.25, 3}, []float64{10, 10.5, 12})
	require.NoError(t, err)

	out, err := Bilinear(src, f, dst)
	require.NoError(t, err)

	r, c := out.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 4, c)
	for j, y := range dst.Y {
		for i, x := range dst.X {
			assert.InDelta(t, 2*x+3*y, out.At(j, i), 1e-9, "x=%v y=%v", x, y)
		}
	}
}

func TestBilinearSameGridCopies(t *testing.T) {
	src, f := planeGrid(t)
	out, err := Bilinear(src, f, src)
	require.NoError(t, err)
	assert.Equal(t, f.RawMatrix().Data, out.RawMatrix().Data)

	out.Set(0, 0, -1)
	assert.NotEqual(t, -1.0, f.At(0, 0))
}

func TestBilinearOutsideGrid(t *testing.T) {
	src, f := planeGrid(t)
	dst, err := NewGrid([]float64{2, 4}, []float64{10, 11})
	require.NoError(t, err)

	_, err = Bilinear(src, f, dst)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOutsideGrid))
	assert.False(t, src.Covers(dst))
}

func TestBilinearShapeMismatch(t *testing.T) {
	src, _ := planeGrid(t)
	other, err := NewGrid([]float64{0, 1}, []float64{0, 1})
	require.NoError(t, err)
	_, err = Bilinear(src, other.NewField(), src)
	assert.Error(t, err)
}

func TestLerp(t *testing.T) {
	g, err := NewGrid([]float64{0, 1}, []float64{0})
	require.NoError(t, err)
	a, err := g.FieldFrom([]float64{0, 10})
	require.NoError(t, err)
	b, err := g.FieldFrom([]float64{10, 30})
	require.NoError(t, err)

	out, err := Lerp(a, b, 0.25)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, out.At(0, 0), 1e-12)
	assert.InDelta(t, 15, out.At(0, 1), 1e-12)

	_, err = g.FieldFrom([]float64{1})
	assert.Error(t, err)
}
