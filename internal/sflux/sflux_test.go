package sflux

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/abelzeko/surgecast/internal/cftime"
	"github.com/abelzeko/surgecast/internal/grid"
	"github.com/ctessum/cdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2022, 9, 3, 0, 0, 0, 0, time.UTC)

// rampSource returns hours since t0 plus the longitude at every point
type rampSource struct {
	g        grid.Grid
	from, to time.Time
	names    []string
}

func (s *rampSource) Grid() grid.Grid { return s.g }

func (s *rampSource) Covers(t time.Time) bool { return !t.Before(s.from) && !t.After(s.to) }

func (s *rampSource) Field(name string, t time.Time) (grid.Field, error) {
	s.names = append(s.names, name)
	f := s.g.NewField()
	for j := range s.g.Y {
		for i, x := range s.g.X {
			f.Set(j, i, t.Sub(t0).Hours()+x)
		}
	}
	return f, nil
}

func newRampSource(t *testing.T, hours int) *rampSource {
	t.Helper()
	g, err := grid.NewGrid([]float64{80, 81, 82}, []float64{10, 11})
	require.NoError(t, err)
	return &rampSource{g: g, from: t0, to: t0.Add(time.Duration(hours) * time.Hour)}
}

func openAir(t *testing.T, path string) (*cdf.File, func()) {
	t.Helper()
	ff, err := os.Open(path)
	require.NoError(t, err)
	f, err := cdf.Open(ff)
	require.NoError(t, err)
	return f, func() { ff.Close() }
}

func readAll(t *testing.T, f *cdf.File, name string) any {
	t.Helper()
	r := f.Reader(name, nil, nil)
	buf := r.Zero(-1)
	_, err := r.Read(buf)
	require.NoError(t, err)
	return buf
}

func TestGenerate(t *testing.T) {
	dir := t.TempDir()
	src := newRampSource(t, 10)

	files, err := Generate(context.Background(), dir, src, t0, t0.Add(10*time.Hour), Options{
		Step:        time.Hour,
		NStep:       4,
		BufferSteps: 2,
	})
	require.NoError(t, err)

	// 11 steps plus 2 buffer steps in files of 4
	require.Len(t, files, 4)
	assert.Equal(t, filepath.Join(dir, "sflux_air_1.0001.nc"), files[0])
	assert.Equal(t, filepath.Join(dir, "sflux_air_1.0004.nc"), files[3])
	assert.ElementsMatch(t, []string{"u10", "v10", "prmsl", "stmp", "spfh"}, src.names[:5])

	f, closeFile := openAir(t, files[0])
	defer closeFile()
	assert.Equal(t, []int{4}, f.Header.Lengths("time"))
	assert.Equal(t, []int{2, 3}, f.Header.Lengths("lon"))

	units, err := cftime.Parse(f.Header.GetAttribute("time", "units").(string))
	require.NoError(t, err)
	assert.Equal(t, t0, units.Epoch)
	assert.Equal(t, []int32{2022, 9, 3, 0}, f.Header.GetAttribute("time", "base_date"))

	times := readAll(t, f, "time").([]float64)
	assert.InDeltaSlice(t, []float64{0, 1.0 / 24, 2.0 / 24, 3.0 / 24}, times, 1e-9)

	lon := readAll(t, f, "lon").([]float32)
	assert.Equal(t, []float32{80, 81, 82, 80, 81, 82}, lon)

	// second step, second row, third column
	uwind := readAll(t, f, "uwind").([]float32)
	assert.InDelta(t, 1+82, uwind[6+5], 1e-4)

	last, closeLast := openAir(t, files[3])
	defer closeLast()
	assert.Equal(t, []int{1}, last.Header.Lengths("time"))
	lastTimes := readAll(t, last, "time").([]float64)
	assert.InDelta(t, 12.0/24, lastTimes[0], 1e-9)
	// buffer steps repeat the final flux
	prmsl := readAll(t, last, "prmsl").([]float32)
	assert.InDelta(t, 10+80, prmsl[0], 1e-4)

	inputs, err := os.ReadFile(filepath.Join(dir, "sflux_inputs.txt"))
	require.NoError(t, err)
	assert.Equal(t, "&sflux_inputs\nair_1_relative_weight=1.0,\nair_1_max_window_hours=4.0,\n/\n", string(inputs))
}

func TestGenerateOntoTargetGrid(t *testing.T) {
	dir := t.TempDir()
	src := newRampSource(t, 2)
	target, err := grid.NewGrid([]float64{80.5, 81.5}, []float64{10.5})
	require.NoError(t, err)

	files, err := Generate(context.Background(), dir, src, t0, t0.Add(2*time.Hour), Options{
		Step:     time.Hour,
		NStep:    24,
		BaseDate: time.Date(2022, 9, 1, 0, 0, 0, 0, time.UTC),
		Target:   &target,
	})
	require.NoError(t, err)
	require.Len(t, files, 1)

	f, closeFile := openAir(t, files[0])
	defer closeFile()
	assert.Equal(t, []int32{2022, 9, 1, 0}, f.Header.GetAttribute("time", "base_date"))
	times := readAll(t, f, "time").([]float64)
	assert.InDelta(t, 2.0, times[0], 1e-9)

	stmp := readAll(t, f, "stmp").([]float32)
	require.Len(t, stmp, 3*2)
	assert.InDelta(t, 80.5, stmp[0], 1e-4)
	assert.InDelta(t, 2+81.5, stmp[5], 1e-4)
}

func TestGenerateRejectsUncoveredWindow(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sflux")
	src := newRampSource(t, 5)

	_, err := Generate(context.Background(), dir, src, t0, t0.Add(6*time.Hour), Options{Step: time.Hour, NStep: 24})
	assert.True(t, errors.Is(err, ErrWindowNotCovered))

	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr), "nothing should be written")

	outside, err := grid.NewGrid([]float64{79, 80}, []float64{10})
	require.NoError(t, err)
	_, err = Generate(context.Background(), dir, src, t0, t0.Add(time.Hour), Options{Step: time.Hour, NStep: 24, Target: &outside})
	assert.True(t, errors.Is(err, grid.ErrOutsideGrid))
}

func TestGenerateStopsWhenCancelled(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sflux")
	src := newRampSource(t, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Generate(ctx, dir, src, t0, t0.Add(2*time.Hour), Options{Step: time.Hour, NStep: 24})
	assert.True(t, errors.Is(err, context.Canceled))

	_, statErr := os.Stat(filepath.Join(dir, "sflux_inputs.txt"))
	assert.True(t, os.IsNotExist(statErr), "inputs namelist should not be written")
}

func TestWriterValidatesSteps(t *testing.T) {
	g, err := grid.NewGrid([]float64{0, 1}, []float64{0, 1})
	require.NoError(t, err)
	w, err := NewWriter(t.TempDir(), g, t0, 2)
	require.NoError(t, err)

	flux := Flux{}
	for _, name := range Variables {
		flux[name] = g.NewField()
	}

	assert.Error(t, w.Write(t0.Add(-time.Hour), flux), "before base date")
	require.NoError(t, w.Write(t0, flux))
	assert.Error(t, w.Write(t0, flux), "repeated time")

	partial := Flux{"uwind": g.NewField()}
	assert.Error(t, w.Write(t0.Add(time.Hour), partial))

	other, err := grid.NewGrid([]float64{0, 1, 2}, []float64{0, 1})
	require.NoError(t, err)
	wrongShape := Flux{}
	for _, name := range Variables {
		wrongShape[name] = other.NewField()
	}
	assert.Error(t, w.Write(t0.Add(time.Hour), wrongShape))

	require.NoError(t, w.Write(t0.Add(time.Hour), flux))
	require.NoError(t, w.Write(t0.Add(2*time.Hour), flux))
	require.NoError(t, w.Finish())
	assert.Len(t, w.Files(), 2)

	_, err = NewWriter(t.TempDir(), g, t0, 0)
	assert.Error(t, err)
}
