package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/abelzeko/surgecast/internal/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"2D":    48 * time.Hour,
		"5d":    120 * time.Hour,
		"6H":    6 * time.Hour,
		"1H":    time.Hour,
		"30min": 30 * time.Minute,
		"90m":   90 * time.Minute,
		"1.5D":  36 * time.Hour,
	}
	for in, want := range cases {
		got, err := ParseDuration(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseDuration("two days")
	assert.Error(t, err)
	_, err = ParseDuration("3Q")
	assert.Error(t, err)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SURGECAST_ROOT", t.TempDir())
	t.Setenv("PRODUCER", "tester")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "tester", cfg.Producer)
	assert.Equal(t, filepath.Join(cfg.RootDir, "fluxes", "gfs"), cfg.Paths.GFS)
	assert.Equal(t, filepath.Join(cfg.RootDir, "fluxes", "discharge", "climatic_discharge.csv"), cfg.Discharge.File)
	assert.Equal(t, 48*time.Hour, cfg.Forecast.Spinup)
	assert.Equal(t, entities.Extent{75, 102, 5, 30}, cfg.Source.Extent)
	assert.Equal(t, 24, cfg.Sflux.NStep)
	assert.GreaterOrEqual(t, cfg.Model.NCPU, 1)
}

func TestLoadHCLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "surgecast.hcl")
	content := `
producer = "hcl-producer"
root_dir = "` + dir + `"
publish  = false

forecast {
  spinup     = "1D"
  length     = "3D"
  cycle_step = "12H"
}

source {
  extent   = [80, 95, 10, 25]
  attempts = 2
}

sflux {
  nstep      = 12
  resolution = 0.5
  extent     = [85, 93, 15, 24]
  basedate   = "2000-01-01"
}

model {
  wave  = false
  ncpu  = 4
  scripts = ["run.slurm"]
}

discharge {
  boundaries = ["Ganges"]
}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	t.Setenv("SURGECAST_ROOT", "")
	t.Setenv("PRODUCER", "")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "hcl-producer", cfg.Producer)
	assert.False(t, cfg.Publish)
	assert.Equal(t, 24*time.Hour, cfg.Forecast.Spinup)
	assert.Equal(t, 72*time.Hour, cfg.Forecast.ForecastLength)
	assert.Equal(t, 12*time.Hour, cfg.Forecast.CycleStep)
	assert.Equal(t, entities.Extent{80, 95, 10, 25}, cfg.Source.Extent)
	assert.Equal(t, 2, cfg.Source.Attempts)
	// untouched values keep their defaults
	assert.Equal(t, "gfs_", cfg.Source.Prefix)
	assert.Equal(t, 12, cfg.Sflux.NStep)
	assert.Equal(t, 0.5, cfg.Sflux.Resolution)
	assert.Equal(t, time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), cfg.Sflux.BaseDate)
	assert.False(t, cfg.Model.Wave)
	assert.Equal(t, 4, cfg.Model.NCPU)
	assert.Equal(t, []string{"run.slurm"}, cfg.Model.Scripts)
	assert.Equal(t, []string{"Ganges"}, cfg.Discharge.Boundaries)
	assert.Equal(t, filepath.Join(dir, "forecasts"), cfg.Paths.Forecasts)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Producer = ""
	cfg.Source.Extent = entities.Extent{100, 90, 5, 30}
	cfg.Sflux.NStep = 0
	cfg.Discharge.Boundaries = nil

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "producer")
	assert.Contains(t, err.Error(), "extent")
	assert.Contains(t, err.Error(), "nstep")
	assert.Contains(t, err.Error(), "boundary")

	cfg = DefaultConfig()
	cfg.Producer = "ok"
	assert.NoError(t, cfg.Validate())
}

func TestLoadRejectsBadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.hcl")
	require.NoError(t, os.WriteFile(path, []byte("forecast {\n spinup = \"soon\"\n}\n"), 0644))
	t.Setenv("PRODUCER", "x")

	_, err := Load(path)
	assert.Error(t, err)

	_, err = Load(filepath.Join(dir, "missing.hcl"))
	assert.Error(t, err)
}
