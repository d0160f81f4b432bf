package post

import (
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abelzeko/surgecast/internal/entities"
)

type fakeOutput struct {
	x, y  []float64
	times []time.Time
	elev  map[int][]float64
}

func (f *fakeOutput) Nodes() ([]float64, []float64) { return f.x, f.y }
func (f *fakeOutput) Times() []time.Time            { return f.times }

func (f *fakeOutput) Elevation(node int) ([]float64, error) {
	v, ok := f.elev[node]
	if !ok {
		return nil, errors.New("no such node")
	}
	return v, nil
}

func newFakeOutput() *fakeOutput {
	t0 := time.Date(2022, 9, 3, 0, 0, 0, 0, time.UTC)
	return &fakeOutput{
		x:     []float64{90.0, 91.0, 92.0},
		y:     []float64{21.0, 22.0, 21.5},
		times: []time.Time{t0, t0.Add(time.Hour), t0.Add(2 * time.Hour)},
		elev: map[int][]float64{
			0: {0.1, 0.5, -0.2},
			1: {1.0, math.NaN(), 2.5},
			2: {0, 0, 0},
		},
	}
}

func TestCheckOutput(t *testing.T) {
	dir := t.TempDir()

	_, err := CheckOutput(dir)
	assert.ErrorIs(t, err, ErrOutputMissing)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "outputs"), 0755))
	path := filepath.Join(dir, "outputs", Out2DFile)
	require.NoError(t, os.WriteFile(path, nil, 0644))
	_, err = CheckOutput(dir)
	assert.ErrorIs(t, err, ErrOutputMissing)

	require.NoError(t, os.WriteFile(path, []byte("CDF"), 0644))
	got, err := CheckOutput(dir)
	require.NoError(t, err)
	assert.Equal(t, path, got)
}

func TestNearestNode(t *testing.T) {
	x := []float64{90.0, 91.0, 92.0}
	y := []float64{21.0, 22.0, 21.5}
	assert.Equal(t, 0, NearestNode(x, y, 89.0, 20.0))
	assert.Equal(t, 1, NearestNode(x, y, 91.1, 21.9))
	assert.Equal(t, 2, NearestNode(x, y, 95.0, 21.5))
	assert.Equal(t, -1, NearestNode(nil, nil, 0, 0))
}

func TestExtractAndWriteStations(t *testing.T) {
	out := newFakeOutput()
	stations := []entities.Station{
		{ID: 1, Name: "Chittagong", Lon: 91.05, Lat: 22.1},
		{ID: 2, Name: "Khulna", Lon: 89.9, Lat: 21.0},
	}

	series, err := ExtractStations(out, stations)
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, 1, series[0].Node)
	assert.Equal(t, 0, series[1].Node)

	dir := t.TempDir()
	written, err := WriteStationSeries(dir, series)
	require.NoError(t, err)
	require.Len(t, written, 2)

	assert.Equal(t, "stations/station_1.csv", written[0].CSV)
	assert.Equal(t, "stations/station_1.png", written[0].Plot)
	assert.Equal(t, 2.5, written[0].Max)
	assert.Equal(t, 1.0, written[0].Min)
	assert.Equal(t, 0.5, written[1].Max)
	assert.Equal(t, -0.2, written[1].Min)

	data, err := os.ReadFile(filepath.Join(dir, ElevDir, written[0].CSV))
	require.NoError(t, err)
	assert.Equal(t, "time,elev\n"+
		"2022-09-03 00:00:00,1.000\n"+
		"2022-09-03 01:00:00,\n"+
		"2022-09-03 02:00:00,2.500\n", string(data))

	info, err := os.Stat(filepath.Join(dir, ElevDir, written[1].Plot))
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestExtractStationsLengthMismatch(t *testing.T) {
	out := newFakeOutput()
	out.elev[0] = []float64{1}
	_, err := ExtractStations(out, []entities.Station{{ID: 1, Name: "A", Lon: 90, Lat: 21}})
	assert.Error(t, err)

	_, err = ExtractStations(&fakeOutput{}, []entities.Station{{ID: 1}})
	assert.Error(t, err)
}

func TestExtremesAllNaN(t *testing.T) {
	hi, lo := extremes([]float64{math.NaN(), math.NaN()})
	assert.Equal(t, 0.0, hi)
	assert.Equal(t, 0.0, lo)
}

func TestBuildManifestAndWriteJSON(t *testing.T) {
	cycle, err := entities.ParseCycle("2022090506")
	require.NoError(t, err)
	now := time.Date(2022, 9, 5, 11, 30, 0, 0, time.UTC)
	stations := []entities.Station{{ID: 1, Name: "Chittagong", CSV: "stations/station_1.csv"}}

	m := BuildManifest(cycle, "tester", "0.1", stations, now)
	assert.Equal(t, "2022090506", m.Cycle)
	assert.Equal(t, "2022-09-05 06:00:00", m.Date)
	assert.Equal(t, "2022-09-05 11:30:00", m.LastUpdate)
	require.Contains(t, m.Forecasts, "elev")
	elev := m.Forecasts["elev"]
	assert.Equal(t, "Water level", elev.Name)
	assert.Equal(t, "forecasts/elev", elev.Src)
	require.Len(t, elev.Layers, 1)
	assert.Equal(t, "stations", elev.Layers[0].Type)

	path := filepath.Join(t.TempDir(), ManifestFile)
	require.NoError(t, WriteJSON(path, m))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "{\n    \"cycle\": \"2022090506\","))

	var back entities.Manifest
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, m.Producer, back.Producer)
	assert.Equal(t, "Chittagong", back.Forecasts["elev"].Layers[0].Stations[0].Name)
}

func TestBuildManifestWithoutStations(t *testing.T) {
	cycle, err := entities.ParseCycle("2022090500")
	require.NoError(t, err)
	m := BuildManifest(cycle, "tester", "0.1", nil, time.Now())
	assert.Empty(t, m.Forecasts["elev"].Layers)
}
