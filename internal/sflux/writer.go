// Package sflux writes the atmospheric forcing files read by the SCHISM solver
package sflux

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/abelzeko/surgecast/internal/cftime"
	"github.com/abelzeko/surgecast/internal/grid"
	"github.com/ctessum/cdf"
)

// Variables written to every air file, in file order
var Variables = []string{"uwind", "vwind", "prmsl", "stmp", "spfh"}

var variableInfo = map[string][2]string{
	"uwind": {"Surface Eastward Air Velocity (10m AGL)", "m/s"},
	"vwind": {"Surface Northward Air Velocity (10m AGL)", "m/s"},
	"prmsl": {"Pressure reduced to MSL", "Pa"},
	"stmp":  {"Surface Air Temperature (2m AGL)", "K"},
	"spfh":  {"Surface Specific Humidity (2m AGL)", "1"},
}

// Flux is one time step of every air variable on the writer grid
type Flux map[string]grid.Field

// Writer buffers time steps and flushes a numbered file every NStep steps
type Writer struct {
	Dir      string
	Grid     grid.Grid
	BaseDate time.Time
	NStep    int

	times []time.Time
	steps []Flux
	files []string
	last  time.Time
}

// NewWriter creates dir and returns a writer for the air files
func NewWriter(dir string, g grid.Grid, baseDate time.Time, nstep int) (*Writer, error) {
	if nstep < 1 {
		return nil, fmt.Errorf("invalid steps per file %d", nstep)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create sflux directory: %v", err)
	}
	return &Writer{Dir: dir, Grid: g, BaseDate: baseDate.UTC(), NStep: nstep}, nil
}

// Write adds one time step. Steps must be strictly increasing and not before the base date.
func (w *Writer) Write(at time.Time, flux Flux) error {
	if at.Before(w.BaseDate) {
		return fmt.Errorf("step %s is before base date %s", at.Format(time.RFC3339), w.BaseDate.Format(time.RFC3339))
	}
	if !w.last.IsZero() && !at.After(w.last) {
		return fmt.Errorf("step %s does not follow %s", at.Format(time.RFC3339), w.last.Format(time.RFC3339))
	}
	for _, name := range Variables {
		f, ok := flux[name]
		if !ok {
			return fmt.Errorf("flux at %s has no %s", at.Format(time.RFC3339), name)
		}
		if r, c := f.Dims(); r != w.Grid.Ny() || c != w.Grid.Nx() {
			return fmt.Errorf("%s has shape %dx%d, grid is %dx%d", name, r, c, w.Grid.Ny(), w.Grid.Nx())
		}
	}

	w.times = append(w.times, at)
	w.steps = append(w.steps, flux)
	w.last = at
	if len(w.steps) == w.NStep {
		return w.flush()
	}
	return nil
}

// Finish flushes the remaining buffered steps
func (w *Writer) Finish() error {
	if len(w.steps) == 0 {
		return nil
	}
	return w.flush()
}

// Files lists the written files in order
func (w *Writer) Files() []string {
	return append([]string(nil), w.files...)
}

func (w *Writer) flush() error {
	path := filepath.Join(w.Dir, fmt.Sprintf("sflux_air_1.%04d.nc", len(w.files)+1))
	if err := w.writeFile(path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	log.Printf("Wrote %s (%d steps from %s)", filepath.Base(path), len(w.times), w.times[0].Format("2006-01-02 15:04"))
	w.files = append(w.files, path)
	w.times = w.times[:0]
	w.steps = w.steps[:0]
	return nil
}

func (w *Writer) writeFile(path string) error {
	nt, ny, nx := len(w.times), w.Grid.Ny(), w.Grid.Nx()
	units := cftime.Units{Step: 24 * time.Hour, Epoch: w.BaseDate}
	b := w.BaseDate

	h := cdf.NewHeader([]string{"ntime", "ny_grid", "nx_grid"}, []int{nt, ny, nx})
	h.AddAttribute("", "Conventions", "CF-1.0")
	h.AddVariable("time", []string{"ntime"}, []float64{0})
	h.AddAttribute("time", "long_name", "Time")
	h.AddAttribute("time", "standard_name", "time")
	h.AddAttribute("time", "units", units.String())
	h.AddAttribute("time", "base_date", []int32{int32(b.Year()), int32(b.Month()), int32(b.Day()), int32(b.Hour())})
	h.AddVariable("lon", []string{"ny_grid", "nx_grid"}, []float32{0})
	h.AddAttribute("lon", "long_name", "Longitude")
	h.AddAttribute("lon", "units", "degrees_east")
	h.AddVariable("lat", []string{"ny_grid", "nx_grid"}, []float32{0})
	h.AddAttribute("lat", "long_name", "Latitude")
	h.AddAttribute("lat", "units", "degrees_north")
	for _, name := range Variables {
		h.AddVariable(name, []string{"ntime", "ny_grid", "nx_grid"}, []float32{0})
		h.AddAttribute(name, "long_name", variableInfo[name][0])
		h.AddAttribute(name, "units", variableInfo[name][1])
	}
	h.Define()

	ff, err := os.Create(path)
	if err != nil {
		return err
	}
	f, err := cdf.Create(ff, h)
	if err != nil {
		ff.Close()
		return err
	}

	offsets := make([]float64, nt)
	for i, t := range w.times {
		offsets[i] = units.Encode(t)
	}
	lon := make([]float32, 0, ny*nx)
	lat := make([]float32, 0, ny*nx)
	for _, y := range w.Grid.Y {
		for _, x := range w.Grid.X {
			lon = append(lon, float32(x))
			lat = append(lat, float32(y))
		}
	}

	err = errors.Join(
		writeVar(f, "time", offsets),
		writeVar(f, "lon", lon),
		writeVar(f, "lat", lat),
	)
	for _, name := range Variables {
		if err != nil {
			break
		}
		values := make([]float32, 0, nt*ny*nx)
		for _, step := range w.steps {
			field := step[name]
			for j := 0; j < ny; j++ {
				for i := 0; i < nx; i++ {
					values = append(values, float32(field.At(j, i)))
				}
			}
		}
		err = writeVar(f, name, values)
	}
	if cerr := ff.Close(); err == nil {
		err = cerr
	}
	return err
}

func writeVar(f *cdf.File, name string, values any) error {
	end := f.Header.Lengths(name)
	w := f.Writer(name, make([]int, len(end)), end)
	if _, err := w.Write(values); err != nil {
		return fmt.Errorf("variable %s: %v", name, err)
	}
	return nil
}
