// Package config loads the pipeline configuration from an HCL file and the environment
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/abelzeko/surgecast/internal/entities"
)

// Config is the resolved runtime configuration
type Config struct {
	Producer string
	RootDir  string
	Publish  bool
	Schedule string

	Paths     Paths
	Forecast  entities.ForecastSettings
	Source    SourceConfig
	Forcing   ForcingConfig
	Sflux     SfluxConfig
	Discharge DischargeConfig
	Model     ModelConfig
	Telegram  TelegramConfig
	OpenAIKey string
}

// Paths holds the working directories, resolved against RootDir
type Paths struct {
	Config    string
	GFS       string
	Discharge string
	Forecasts string
	Logs      string
	Status    string
	Scripts   string
	Database  string
}

// SourceConfig describes the atmospheric forecast server
type SourceConfig struct {
	URL         string
	Prefix      string
	Extent      entities.Extent
	MinFileSize int64
	Attempts    int
	RetryDelay  time.Duration
	Timeout     time.Duration
	Parallel    int
}

// ForcingConfig controls which downloaded source cycles feed a model cycle
type ForcingConfig struct {
	BufferCycles     int
	SourceLengthDays int
}

// SfluxConfig controls the forcing files handed to the solver
type SfluxConfig struct {
	Step        time.Duration
	NStep       int
	BufferSteps int
	// BaseDate of the sflux time axis, zero uses the forcing start
	BaseDate time.Time
	// Resolution of the target grid in degrees, zero keeps the source grid
	Resolution float64
	Extent     entities.Extent
}

// DischargeConfig points at the river climatology
type DischargeConfig struct {
	File       string
	Boundaries []string
}

// ModelConfig describes the solver setup
type ModelConfig struct {
	Wave            bool
	Tidefac         string
	Solver          string
	MPIRun          string
	NCPU            int
	NScribe         int
	BctidesTemplate string
	ParamTemplate   string
	WWMTemplate     string
	Scripts         []string
}

// TelegramConfig configures status notifications
type TelegramConfig struct {
	Token  string
	ChatID int64
}

// DefaultConfig returns the configuration of the reference deployment
func DefaultConfig() *Config {
	ncpu := runtime.NumCPU() / 2
	if ncpu < 1 {
		ncpu = 1
	}
	return &Config{
		Producer: "",
		RootDir:  "/mnt",
		Publish:  true,
		Schedule: "*/10 * * * *",
		Paths: Paths{
			Config:    "config",
			GFS:       filepath.Join("fluxes", "gfs"),
			Discharge: filepath.Join("fluxes", "discharge"),
			Forecasts: "forecasts",
			Logs:      "logs",
			Status:    "status",
			Scripts:   "scripts",
			Database:  filepath.Join("data", "surgecast.db"),
		},
		Forecast: entities.DefaultForecastSettings(),
		Source: SourceConfig{
			URL:         "http://nomads.ncep.noaa.gov:80/dods/gfs_0p25_1hr",
			Prefix:      "gfs_",
			Extent:      entities.Extent{75, 102, 5, 30},
			MinFileSize: 1000000,
			Attempts:    5,
			RetryDelay:  30 * time.Second,
			Timeout:     10 * time.Minute,
			Parallel:    2,
		},
		Forcing: ForcingConfig{
			BufferCycles:     1,
			SourceLengthDays: 5,
		},
		Sflux: SfluxConfig{
			Step:        time.Hour,
			NStep:       24,
			BufferSteps: 2,
		},
		Discharge: DischargeConfig{
			File:       "climatic_discharge.csv",
			Boundaries: []string{"Karnaphuli", "Hooghly", "Ganges", "Brahmaputra"},
		},
		Model: ModelConfig{
			Wave:            true,
			Tidefac:         "tidefac",
			Solver:          "pschism_WWM_TVD-VL",
			MPIRun:          "mpirun",
			NCPU:            ncpu,
			NScribe:         1,
			BctidesTemplate: "bctides.in.3.template",
			ParamTemplate:   "param.nml.template",
			WWMTemplate:     "wwminput.nml.nobnd.template",
			Scripts: []string{
				"run.slurm", "jeanzay_upload.sh", "jeanzay_download.sh",
				"run.pbs", "thor_upload.sh", "thor_download.sh",
			},
		},
	}
}

// Load builds the configuration from defaults, the optional HCL file and the environment
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		file, err := decodeFile(path)
		if err != nil {
			return nil, err
		}
		if err := file.apply(cfg); err != nil {
			return nil, fmt.Errorf("failed to apply config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	cfg.resolvePaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("SURGECAST_ROOT"); v != "" {
		c.RootDir = v
	}
	if v := os.Getenv("PRODUCER"); v != "" {
		c.Producer = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.Token = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("failed to parse TELEGRAM_CHAT_ID: %v", err)
		}
		c.Telegram.ChatID = id
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.OpenAIKey = v
	}
	return nil
}

func (c *Config) resolvePaths() {
	resolve := func(p *string) {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(c.RootDir, *p)
		}
	}
	resolve(&c.Paths.Config)
	resolve(&c.Paths.GFS)
	resolve(&c.Paths.Discharge)
	resolve(&c.Paths.Forecasts)
	resolve(&c.Paths.Logs)
	resolve(&c.Paths.Status)
	resolve(&c.Paths.Scripts)
	resolve(&c.Paths.Database)

	if c.Discharge.File != "" && !filepath.IsAbs(c.Discharge.File) {
		c.Discharge.File = filepath.Join(c.Paths.Discharge, c.Discharge.File)
	}
}

// Validate checks the configuration for values the pipeline cannot work with
func (c *Config) Validate() error {
	var errs []error

	if c.Publish && c.Producer == "" {
		errs = append(errs, errors.New("producer is required when publishing is enabled"))
	}
	if c.Forecast.Spinup < 0 || c.Forecast.ForecastLength <= 0 || c.Forecast.CycleStep <= 0 {
		errs = append(errs, errors.New("forecast durations must be positive"))
	}
	if err := validateExtent(c.Source.Extent); err != nil {
		errs = append(errs, fmt.Errorf("source extent: %w", err))
	}
	if c.Sflux.Resolution < 0 {
		errs = append(errs, errors.New("sflux resolution must not be negative"))
	}
	if c.Sflux.Resolution > 0 {
		if err := validateExtent(c.Sflux.Extent); err != nil {
			errs = append(errs, fmt.Errorf("sflux extent: %w", err))
		}
	}
	if c.Sflux.Step <= 0 {
		errs = append(errs, errors.New("sflux step must be positive"))
	}
	if c.Sflux.NStep < 1 {
		errs = append(errs, errors.New("sflux nstep must be at least 1"))
	}
	if c.Sflux.BufferSteps < 0 {
		errs = append(errs, errors.New("sflux buffer steps must not be negative"))
	}
	if c.Model.NCPU < 1 {
		errs = append(errs, errors.New("ncpu must be at least 1"))
	}
	if len(c.Discharge.Boundaries) == 0 {
		errs = append(errs, errors.New("at least one discharge boundary is required"))
	}
	if c.Source.Attempts < 1 {
		errs = append(errs, errors.New("source attempts must be at least 1"))
	}

	return errors.Join(errs...)
}

func validateExtent(e entities.Extent) error {
	if e.LonMin() >= e.LonMax() || e.LatMin() >= e.LatMax() {
		return fmt.Errorf("invalid extent %v: minimum must be below maximum", e)
	}
	return nil
}

// CycleDir is the working directory of a cycle
func (c *Config) CycleDir(cycle entities.Cycle) string {
	return filepath.Join(c.Paths.Forecasts, cycle.String())
}
