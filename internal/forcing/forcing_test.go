package forcing

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/abelzeko/surgecast/internal/entities"
	"github.com/abelzeko/surgecast/internal/grid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestSource writes an hourly source whose every value equals tag + step index
func writeTestSource(t *testing.T, dir, cycle string, steps int, tag float32) string {
	t.Helper()
	c, err := entities.ParseCycle(cycle)
	require.NoError(t, err)
	g, err := grid.NewGrid([]float64{80, 81, 82}, []float64{10, 11})
	require.NoError(t, err)

	data := &SourceData{Init: c.Time, Grid: g, Values: map[string][]float32{}}
	for i := 0; i < steps; i++ {
		data.Times = append(data.Times, c.Add(time.Duration(i)*time.Hour))
	}
	for _, name := range Variables {
		values := make([]float32, steps*g.Ny()*g.Nx())
		for i := range values {
			values[i] = tag + float32(i/(g.Ny()*g.Nx()))
		}
		data.Values[name] = values
	}

	path := filepath.Join(dir, "gfs_"+cycle+".nc")
	require.NoError(t, WriteSource(path, data))
	return path
}

func TestWriteAndOpenSource(t *testing.T) {
	dir := t.TempDir()
	path := writeTestSource(t, dir, "2022090500", 5, 100)

	_, err := os.Stat(path + ".part")
	assert.True(t, os.IsNotExist(err), "temporary file should be renamed")

	s, err := OpenSource(path)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, time.Date(2022, 9, 5, 0, 0, 0, 0, time.UTC), s.Init)
	assert.Len(t, s.Times, 5)
	assert.Equal(t, []float64{80, 81, 82}, s.Grid.X)
	assert.Equal(t, []float64{10, 11}, s.Grid.Y)

	f, err := s.Step("u10", 3)
	require.NoError(t, err)
	assert.InDelta(t, 103, f.At(1, 2), 1e-6)

	half, err := s.Field("prmsl", s.Times[1].Add(30*time.Minute))
	require.NoError(t, err)
	assert.InDelta(t, 101.5, half.At(0, 0), 1e-6)

	_, err = s.Field("prmsl", s.End().Add(time.Hour))
	assert.Error(t, err)
	_, err = s.Step("missing", 0)
	assert.Error(t, err)
}

func TestWriteSourceRejectsBadShape(t *testing.T) {
	g, err := grid.NewGrid([]float64{0, 1}, []float64{0, 1})
	require.NoError(t, err)
	err = WriteSource(filepath.Join(t.TempDir(), "x.nc"), &SourceData{
		Init:   time.Now(),
		Times:  []time.Time{time.Now()},
		Grid:   g,
		Values: map[string][]float32{"u10": {1, 2, 3}},
	})
	assert.Error(t, err)
}

func TestScanIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	writeTestSource(t, dir, "2022090506", 2, 0)
	writeTestSource(t, dir, "2022090500", 2, 0)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gfs_latest.nc"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	entries, err := Scan(dir, "gfs_", 5)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "2022090500", entries[0].Cycle.String())
	assert.Equal(t, entries[0].Start.Add(120*time.Hour), entries[0].End)
}

func catalog(t *testing.T, cycles ...string) []CatalogEntry {
	t.Helper()
	var out []CatalogEntry
	for _, id := range cycles {
		c, err := entities.ParseCycle(id)
		require.NoError(t, err)
		out = append(out, CatalogEntry{Cycle: c, Path: id, Start: c.Time, End: c.Add(120 * time.Hour)})
	}
	return out
}

func TestSelect(t *testing.T) {
	opts := SelectOptions{CycleStep: 6 * time.Hour, BufferCycles: 1, SourceLengthDays: 5}
	cycle, err := entities.ParseCycle("2022090500")
	require.NoError(t, err)
	window := entities.InitCycle(cycle, entities.DefaultForecastSettings())

	// one cycle too old to matter and one issued after the model cycle
	entries := catalog(t,
		"2022083100", "2022090100", "2022090200", "2022090218", "2022090300",
		"2022090318", "2022090400", "2022090500", "2022090506")

	sel, err := Select(entries, window, opts)
	require.NoError(t, err)

	var ids []string
	for _, f := range sel.Files {
		ids = append(ids, f.Cycle.String())
	}
	// sflux start is 2022-09-02 18:00, kept cycles must end 3 days after it
	assert.Equal(t, []string{"2022090100", "2022090200", "2022090218", "2022090300", "2022090318", "2022090400", "2022090500"}, ids)
	assert.Equal(t, window.Start, sel.ModelStart)
	assert.Equal(t, time.Date(2022, 9, 1, 0, 0, 0, 0, time.UTC), sel.SfluxStart)
	assert.Equal(t, window.End, sel.SfluxEnd)
}

func TestSelectNotEnoughForcing(t *testing.T) {
	opts := SelectOptions{CycleStep: 6 * time.Hour, BufferCycles: 1, SourceLengthDays: 5}
	cycle, err := entities.ParseCycle("2022090500")
	require.NoError(t, err)
	window := entities.InitCycle(cycle, entities.DefaultForecastSettings())

	_, err = Select(nil, window, opts)
	assert.True(t, errors.Is(err, ErrNotEnoughForcing))

	// only recent cycles: first start after the model start
	_, err = Select(catalog(t, "2022090400", "2022090500"), window, opts)
	assert.True(t, errors.Is(err, ErrNotEnoughForcing))

	// model cycle itself is missing so forcing ends early
	_, err = Select(catalog(t, "2022090200", "2022090300"), window, opts)
	assert.True(t, errors.Is(err, ErrNotEnoughForcing))
}

func TestCompositePrefersNewestCycle(t *testing.T) {
	dir := t.TempDir()
	writeTestSource(t, dir, "2022090500", 12, 0)
	writeTestSource(t, dir, "2022090506", 12, 1000)

	entries, err := Scan(dir, "gfs_", 5)
	require.NoError(t, err)
	c, err := OpenComposite(entries)
	require.NoError(t, err)
	defer c.Close()

	at := func(h int) float64 {
		f, err := c.Field("u10", time.Date(2022, 9, 5, h, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		return f.At(0, 0)
	}
	// only the first cycle has been issued at 05:00
	assert.InDelta(t, 5, at(5), 1e-6)
	// the second cycle takes over at its init time
	assert.InDelta(t, 1000, at(6), 1e-6)
	assert.InDelta(t, 1011, at(17), 1e-6)
	assert.False(t, c.Covers(time.Date(2022, 9, 5, 18, 0, 0, 0, time.UTC)))

	// between steps the field is linear in time
	between := func(h, m int) float64 {
		f, err := c.Field("u10", time.Date(2022, 9, 5, h, m, 0, 0, time.UTC))
		require.NoError(t, err)
		return f.At(1, 2)
	}
	assert.InDelta(t, 3.5, between(3, 30), 1e-6)
	assert.InDelta(t, 1000.25, between(6, 15), 1e-6)
	_, err = c.Field("u10", time.Date(2022, 9, 5, 18, 0, 0, 0, time.UTC))
	assert.Error(t, err)
}

func TestCompositeRejectsMixedGrids(t *testing.T) {
	dir := t.TempDir()
	writeTestSource(t, dir, "2022090500", 2, 0)

	g, err := grid.NewGrid([]float64{0, 1}, []float64{0, 1})
	require.NoError(t, err)
	other := &SourceData{
		Init:   time.Date(2022, 9, 5, 6, 0, 0, 0, time.UTC),
		Times:  []time.Time{time.Date(2022, 9, 5, 6, 0, 0, 0, time.UTC)},
		Grid:   g,
		Values: map[string][]float32{"u10": {1, 2, 3, 4}},
	}
	require.NoError(t, WriteSource(filepath.Join(dir, "gfs_2022090506.nc"), other))

	entries, err := Scan(dir, "gfs_", 5)
	require.NoError(t, err)
	c, err := OpenComposite(entries)
	require.Error(t, err)
	assert.Nil(t, c)
	assert.Contains(t, err.Error(), "gfs_2022090506.nc")
	assert.Contains(t, err.Error(), "gfs_2022090500.nc")
}
