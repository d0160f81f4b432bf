// Package post turns solver output into published station series and the
// cycle manifest
package post

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/abelzeko/surgecast/internal/entities"
)

const (
	// Out2DFile is the first 2D output stack written by the solver
	Out2DFile = "out2d_1.nc"

	// ElevDir is the water level product, relative to the cycle directory
	ElevDir = "forecasts/elev"
	// StationsDir holds station files, relative to ElevDir
	StationsDir = "stations"

	ManifestFile = "manifest.json"
)

var ErrOutputMissing = errors.New("model output missing")

// Output is a 2D solver output: node coordinates and the elevation series of
// each node
type Output interface {
	Nodes() (x, y []float64)
	Times() []time.Time
	Elevation(node int) ([]float64, error)
}

// Series is the water level at one station
type Series struct {
	Station entities.Station
	Node    int
	Times   []time.Time
	Elev    []float64
}

// CheckOutput returns the path of the first output stack of a cycle directory
func CheckOutput(dir string) (string, error) {
	path := filepath.Join(dir, "outputs", Out2DFile)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrOutputMissing, path)
		}
		return "", fmt.Errorf("failed to stat %s: %v", path, err)
	}
	if info.Size() == 0 {
		return "", fmt.Errorf("%w: %s is empty", ErrOutputMissing, path)
	}
	return path, nil
}

// NearestNode returns the index of the node closest to lon, lat
func NearestNode(x, y []float64, lon, lat float64) int {
	best, bestDist := -1, math.Inf(1)
	for i := range x {
		d := (x[i]-lon)*(x[i]-lon) + (y[i]-lat)*(y[i]-lat)
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// ExtractStations reads the elevation at the node nearest to each station
func ExtractStations(out Output, stations []entities.Station) ([]Series, error) {
	x, y := out.Nodes()
	if len(x) == 0 || len(x) != len(y) {
		return nil, fmt.Errorf("output has %d x and %d y node coordinates", len(x), len(y))
	}
	times := out.Times()

	series := make([]Series, 0, len(stations))
	for _, st := range stations {
		node := NearestNode(x, y, st.Lon, st.Lat)
		elev, err := out.Elevation(node)
		if err != nil {
			return nil, fmt.Errorf("failed to read elevation for %s: %w", st.Name, err)
		}
		if len(elev) != len(times) {
			return nil, fmt.Errorf("station %s: %d values for %d times", st.Name, len(elev), len(times))
		}
		series = append(series, Series{Station: st, Node: node, Times: times, Elev: elev})
	}
	return series, nil
}

// WriteStationSeries writes a csv and a png plot per station under
// <dir>/forecasts/elev/stations and returns the stations with their file
// references and extremes filled in
func WriteStationSeries(dir string, series []Series) ([]entities.Station, error) {
	outDir := filepath.Join(dir, ElevDir, StationsDir)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %v", outDir, err)
	}

	stations := make([]entities.Station, 0, len(series))
	for _, s := range series {
		st := s.Station
		base := fmt.Sprintf("station_%d", st.ID)

		if err := writeSeriesCSV(filepath.Join(outDir, base+".csv"), s); err != nil {
			return nil, err
		}
		if err := plotSeries(filepath.Join(outDir, base+".png"), s); err != nil {
			return nil, err
		}

		st.CSV = StationsDir + "/" + base + ".csv"
		st.Plot = StationsDir + "/" + base + ".png"
		st.Max, st.Min = extremes(s.Elev)
		stations = append(stations, st)
	}
	log.Printf("Wrote %d station series to %s", len(stations), outDir)
	return stations, nil
}

func writeSeriesCSV(path string, s Series) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %v", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"time", "elev"}); err != nil {
		return fmt.Errorf("failed to write %s: %v", path, err)
	}
	for i, t := range s.Times {
		v := s.Elev[i]
		value := ""
		if !math.IsNaN(v) {
			value = strconv.FormatFloat(v, 'f', 3, 64)
		}
		if err := w.Write([]string{t.UTC().Format(entities.StatusTimeFormat), value}); err != nil {
			return fmt.Errorf("failed to write %s: %v", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write %s: %v", path, err)
	}
	return f.Close()
}

func plotSeries(path string, s Series) error {
	p := plot.New()
	p.Title.Text = s.Station.Name
	p.X.Label.Text = "Time (UTC)"
	p.Y.Label.Text = "Water level (m)"
	p.X.Tick.Marker = plot.TimeTicks{Format: "Jan 02\n15:04"}

	pts := make(plotter.XYs, 0, len(s.Times))
	for i, t := range s.Times {
		if math.IsNaN(s.Elev[i]) {
			continue
		}
		pts = append(pts, plotter.XY{X: float64(t.Unix()), Y: s.Elev[i]})
	}
	if len(pts) > 0 {
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("failed to plot %s: %v", s.Station.Name, err)
		}
		line.Width = vg.Points(1)
		p.Add(line, plotter.NewGrid())
	}

	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save plot %s: %v", path, err)
	}
	return nil
}

// extremes ignores NaN values and returns zeros for an all-NaN series
func extremes(values []float64) (float64, float64) {
	hi, lo := math.Inf(-1), math.Inf(1)
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		hi = math.Max(hi, v)
		lo = math.Min(lo, v)
	}
	if math.IsInf(hi, -1) {
		return 0, 0
	}
	return hi, lo
}

// BuildManifest describes the published products of a cycle
func BuildManifest(cycle entities.Cycle, producer, version string, stations []entities.Station, now time.Time) entities.Manifest {
	elev := entities.ManifestProduct{
		Name:   "Water level",
		Src:    ElevDir,
		Layers: []entities.ManifestLayer{},
	}
	if len(stations) > 0 {
		elev.Layers = append(elev.Layers, entities.ManifestLayer{
			Name:     "Stations",
			Type:     "stations",
			Stations: stations,
		})
	}
	return entities.Manifest{
		Cycle:      cycle.String(),
		Date:       cycle.Format(entities.StatusTimeFormat),
		LastUpdate: now.UTC().Format(entities.StatusTimeFormat),
		Producer:   producer,
		Version:    version,
		Forecasts:  map[string]entities.ManifestProduct{"elev": elev},
	}
}

// WriteJSON writes v indented by four spaces
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %v", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %v", path, err)
	}
	return nil
}
