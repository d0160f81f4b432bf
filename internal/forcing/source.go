// Package forcing reads downloaded atmospheric forecast cycles and combines
// them into one continuous forcing record
package forcing

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/abelzeko/surgecast/internal/cftime"
	"github.com/abelzeko/surgecast/internal/grid"
	"github.com/ctessum/cdf"
)

// Variables stored in a source file and their units
var Variables = []string{"prmsl", "u10", "v10", "stmp", "spfh", "dlwrf", "dswrf", "prate"}

var variableUnits = map[string]string{
	"prmsl": "Pa",
	"u10":   "m/s",
	"v10":   "m/s",
	"stmp":  "K",
	"spfh":  "%",
	"dlwrf": "W/m^2",
	"dswrf": "W/m^2",
	"prate": "kg/m^2/s",
}

// SourceData is one forecast cycle held in memory, used when writing source files
type SourceData struct {
	Init  time.Time
	Times []time.Time
	Grid  grid.Grid
	// Values per variable, time-major then latitude then longitude
	Values map[string][]float32
}

// WriteSource stores data as a classic netCDF file with dims time, lat, lon.
// The file is written next to path and renamed into place once complete.
func WriteSource(path string, data *SourceData) error {
	nt, ny, nx := len(data.Times), data.Grid.Ny(), data.Grid.Nx()
	if nt == 0 {
		return errors.New("source data has no time steps")
	}
	names := make([]string, 0, len(data.Values))
	for name, values := range data.Values {
		if len(values) != nt*ny*nx {
			return fmt.Errorf("variable %s has %d values, expected %d", name, len(values), nt*ny*nx)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	units := cftime.Units{Step: time.Hour, Epoch: data.Init.UTC()}

	h := cdf.NewHeader([]string{"time", "lat", "lon"}, []int{nt, ny, nx})
	h.AddAttribute("", "title", "GFS 0.25 degree hourly forecast subset")
	h.AddAttribute("", "init_time", data.Init.UTC().Format("2006-01-02 15:04:05"))
	h.AddVariable("time", []string{"time"}, []float64{0})
	h.AddAttribute("time", "units", units.String())
	h.AddVariable("lat", []string{"lat"}, []float64{0})
	h.AddAttribute("lat", "units", "degrees_north")
	h.AddVariable("lon", []string{"lon"}, []float64{0})
	h.AddAttribute("lon", "units", "degrees_east")
	for _, name := range names {
		h.AddVariable(name, []string{"time", "lat", "lon"}, []float32{0})
		if u, ok := variableUnits[name]; ok {
			h.AddAttribute(name, "units", u)
		}
	}
	h.Define()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %v", path, err)
	}
	tmp := path + ".part"
	ff, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %v", tmp, err)
	}

	err = writeSourceBody(ff, h, data, units, names)
	if cerr := ff.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return os.Rename(tmp, path)
}

func writeSourceBody(ff *os.File, h *cdf.Header, data *SourceData, units cftime.Units, names []string) error {
	f, err := cdf.Create(ff, h)
	if err != nil {
		return err
	}

	offsets := make([]float64, len(data.Times))
	for i, t := range data.Times {
		offsets[i] = units.Encode(t)
	}
	if err := writeVar(f, "time", offsets); err != nil {
		return err
	}
	if err := writeVar(f, "lat", data.Grid.Y); err != nil {
		return err
	}
	if err := writeVar(f, "lon", data.Grid.X); err != nil {
		return err
	}
	for _, name := range names {
		if err := writeVar(f, name, data.Values[name]); err != nil {
			return err
		}
	}
	return nil
}

func writeVar(f *cdf.File, name string, values any) error {
	end := f.Header.Lengths(name)
	start := make([]int, len(end))
	w := f.Writer(name, start, end)
	if _, err := w.Write(values); err != nil {
		return fmt.Errorf("variable %s: %v", name, err)
	}
	return nil
}

// Source is an open source file
type Source struct {
	Path  string
	Init  time.Time
	Times []time.Time
	Grid  grid.Grid

	file *os.File
	nc   *cdf.File
}

// OpenSource opens a source file written by WriteSource
func OpenSource(path string) (*Source, error) {
	ff, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %v", path, err)
	}
	s, err := readSourceHeader(path, ff)
	if err != nil {
		ff.Close()
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return s, nil
}

func readSourceHeader(path string, ff *os.File) (*Source, error) {
	nc, err := cdf.Open(ff)
	if err != nil {
		return nil, err
	}

	unitsAttr, ok := nc.Header.GetAttribute("time", "units").(string)
	if !ok {
		return nil, errors.New("time variable has no units")
	}
	units, err := cftime.Parse(unitsAttr)
	if err != nil {
		return nil, err
	}

	offsets, err := readFloat64s(nc, "time")
	if err != nil {
		return nil, err
	}
	lat, err := readFloat64s(nc, "lat")
	if err != nil {
		return nil, err
	}
	lon, err := readFloat64s(nc, "lon")
	if err != nil {
		return nil, err
	}
	g, err := grid.NewGrid(lon, lat)
	if err != nil {
		return nil, err
	}
	times := units.Decode(offsets)
	if len(times) == 0 {
		return nil, errors.New("no time steps")
	}

	init := units.Epoch
	if s, ok := nc.Header.GetAttribute("", "init_time").(string); ok {
		if t, err := time.ParseInLocation("2006-01-02 15:04:05", s, time.UTC); err == nil {
			init = t
		}
	}

	return &Source{
		Path:  path,
		Init:  init,
		Times: times,
		Grid:  g,
		file:  ff,
		nc:    nc,
	}, nil
}

func readFloat64s(nc *cdf.File, name string) ([]float64, error) {
	if len(nc.Header.Lengths(name)) == 0 {
		return nil, fmt.Errorf("variable %s not in file", name)
	}
	r := nc.Reader(name, nil, nil)
	buf := r.Zero(-1)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("variable %s: %v", name, err)
	}
	switch v := buf.(type) {
	case []float64:
		return v, nil
	case []float32:
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = float64(x)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("variable %s has unsupported type %T", name, buf)
	}
}

// Close releases the underlying file
func (s *Source) Close() error {
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}

// Start is the first time step
func (s *Source) Start() time.Time { return s.Times[0] }

// End is the last time step
func (s *Source) End() time.Time { return s.Times[len(s.Times)-1] }

// Covers reports whether t falls within the time steps of the file
func (s *Source) Covers(t time.Time) bool {
	return !t.Before(s.Start()) && !t.After(s.End())
}

// Step reads one time step of a variable
func (s *Source) Step(name string, idx int) (grid.Field, error) {
	dims := s.nc.Header.Lengths(name)
	if len(dims) != 3 {
		return nil, fmt.Errorf("variable %s not in %s", name, s.Path)
	}
	if idx < 0 || idx >= dims[0] {
		return nil, fmt.Errorf("time index %d out of range for %s", idx, name)
	}
	r := s.nc.Reader(name, []int{idx, 0, 0}, []int{idx + 1, dims[1], dims[2]})
	buf := r.Zero(dims[1] * dims[2])
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to read %s at step %d: %v", name, idx, err)
	}
	values, ok := buf.([]float32)
	if !ok {
		return nil, fmt.Errorf("variable %s has unsupported type %T", name, buf)
	}
	data := make([]float64, len(values))
	for i, v := range values {
		data[i] = float64(v)
	}
	return s.Grid.FieldFrom(data)
}

// Field returns a variable at time t, linear in time between the bracketing steps
func (s *Source) Field(name string, t time.Time) (grid.Field, error) {
	if !s.Covers(t) {
		return nil, fmt.Errorf("%s does not cover %s", filepath.Base(s.Path), t.Format(time.RFC3339))
	}
	i := sort.Search(len(s.Times), func(i int) bool { return !s.Times[i].Before(t) })
	if s.Times[i].Equal(t) {
		return s.Step(name, i)
	}
	lo, err := s.Step(name, i-1)
	if err != nil {
		return nil, err
	}
	hi, err := s.Step(name, i)
	if err != nil {
		return nil, err
	}
	w := float64(t.Sub(s.Times[i-1])) / float64(s.Times[i].Sub(s.Times[i-1]))
	return grid.Lerp(lo, hi, w)
}
