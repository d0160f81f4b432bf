package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/abelzeko/surgecast/internal/entities"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// fileRoot mirrors the HCL layout. Every field is optional so a partial
// file only overrides what it names.
type fileRoot struct {
	Producer  *string         `hcl:"producer,optional"`
	RootDir   *string         `hcl:"root_dir,optional"`
	Publish   *bool           `hcl:"publish,optional"`
	Schedule  *string         `hcl:"schedule,optional"`
	Paths     *pathsBlock     `hcl:"paths,block"`
	Forecast  *forecastBlock  `hcl:"forecast,block"`
	Source    *sourceBlock    `hcl:"source,block"`
	Forcing   *forcingBlock   `hcl:"forcing,block"`
	Sflux     *sfluxBlock     `hcl:"sflux,block"`
	Discharge *dischargeBlock `hcl:"discharge,block"`
	Model     *modelBlock     `hcl:"model,block"`
	Telegram  *telegramBlock  `hcl:"telegram,block"`
}

type pathsBlock struct {
	Config    *string `hcl:"config,optional"`
	GFS       *string `hcl:"gfs,optional"`
	Discharge *string `hcl:"discharge,optional"`
	Forecasts *string `hcl:"forecasts,optional"`
	Logs      *string `hcl:"logs,optional"`
	Status    *string `hcl:"status,optional"`
	Scripts   *string `hcl:"scripts,optional"`
	Database  *string `hcl:"database,optional"`
}

type forecastBlock struct {
	Spinup    *string `hcl:"spinup,optional"`
	Length    *string `hcl:"length,optional"`
	CycleStep *string `hcl:"cycle_step,optional"`
}

type sourceBlock struct {
	URL         *string    `hcl:"url,optional"`
	Prefix      *string    `hcl:"prefix,optional"`
	Extent      *[]float64 `hcl:"extent,optional"`
	MinFileSize *int64     `hcl:"min_file_size,optional"`
	Attempts    *int       `hcl:"attempts,optional"`
	RetryDelay  *string    `hcl:"retry_delay,optional"`
	Timeout     *string    `hcl:"timeout,optional"`
	Parallel    *int       `hcl:"parallel,optional"`
}

type forcingBlock struct {
	BufferCycles     *int `hcl:"buffer_cycles,optional"`
	SourceLengthDays *int `hcl:"source_length_days,optional"`
}

type sfluxBlock struct {
	Step        *string    `hcl:"step,optional"`
	NStep       *int       `hcl:"nstep,optional"`
	BufferSteps *int       `hcl:"buffer_steps,optional"`
	BaseDate    *string    `hcl:"basedate,optional"`
	Resolution  *float64   `hcl:"resolution,optional"`
	Extent      *[]float64 `hcl:"extent,optional"`
}

type dischargeBlock struct {
	File       *string   `hcl:"file,optional"`
	Boundaries *[]string `hcl:"boundaries,optional"`
}

type modelBlock struct {
	Wave            *bool     `hcl:"wave,optional"`
	Tidefac         *string   `hcl:"tidefac,optional"`
	Solver          *string   `hcl:"solver,optional"`
	MPIRun          *string   `hcl:"mpirun,optional"`
	NCPU            *int      `hcl:"ncpu,optional"`
	NScribe         *int      `hcl:"nscribe,optional"`
	BctidesTemplate *string   `hcl:"bctides_template,optional"`
	ParamTemplate   *string   `hcl:"param_template,optional"`
	WWMTemplate     *string   `hcl:"wwminput_template,optional"`
	Scripts         *[]string `hcl:"scripts,optional"`
}

type telegramBlock struct {
	Token  *string `hcl:"token,optional"`
	ChatID *int64  `hcl:"chat_id,optional"`
}

func decodeFile(path string) (*fileRoot, error) {
	cleanPath := filepath.Clean(path)
	if _, err := os.Stat(cleanPath); err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCLFile(cleanPath)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", cleanPath, diags)
	}

	var root fileRoot
	diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", cleanPath, diags)
	}
	return &root, nil
}

func (f *fileRoot) apply(c *Config) error {
	setString(&c.Producer, f.Producer)
	setString(&c.RootDir, f.RootDir)
	setString(&c.Schedule, f.Schedule)
	if f.Publish != nil {
		c.Publish = *f.Publish
	}

	if p := f.Paths; p != nil {
		setString(&c.Paths.Config, p.Config)
		setString(&c.Paths.GFS, p.GFS)
		setString(&c.Paths.Discharge, p.Discharge)
		setString(&c.Paths.Forecasts, p.Forecasts)
		setString(&c.Paths.Logs, p.Logs)
		setString(&c.Paths.Status, p.Status)
		setString(&c.Paths.Scripts, p.Scripts)
		setString(&c.Paths.Database, p.Database)
	}

	if fc := f.Forecast; fc != nil {
		if err := setDuration(&c.Forecast.Spinup, fc.Spinup); err != nil {
			return fmt.Errorf("forecast.spinup: %w", err)
		}
		if err := setDuration(&c.Forecast.ForecastLength, fc.Length); err != nil {
			return fmt.Errorf("forecast.length: %w", err)
		}
		if err := setDuration(&c.Forecast.CycleStep, fc.CycleStep); err != nil {
			return fmt.Errorf("forecast.cycle_step: %w", err)
		}
	}

	if s := f.Source; s != nil {
		setString(&c.Source.URL, s.URL)
		setString(&c.Source.Prefix, s.Prefix)
		if err := setExtent(&c.Source.Extent, s.Extent); err != nil {
			return fmt.Errorf("source.extent: %w", err)
		}
		if s.MinFileSize != nil {
			c.Source.MinFileSize = *s.MinFileSize
		}
		setInt(&c.Source.Attempts, s.Attempts)
		setInt(&c.Source.Parallel, s.Parallel)
		if err := setDuration(&c.Source.RetryDelay, s.RetryDelay); err != nil {
			return fmt.Errorf("source.retry_delay: %w", err)
		}
		if err := setDuration(&c.Source.Timeout, s.Timeout); err != nil {
			return fmt.Errorf("source.timeout: %w", err)
		}
	}

	if fc := f.Forcing; fc != nil {
		setInt(&c.Forcing.BufferCycles, fc.BufferCycles)
		setInt(&c.Forcing.SourceLengthDays, fc.SourceLengthDays)
	}

	if s := f.Sflux; s != nil {
		if err := setDuration(&c.Sflux.Step, s.Step); err != nil {
			return fmt.Errorf("sflux.step: %w", err)
		}
		setInt(&c.Sflux.NStep, s.NStep)
		setInt(&c.Sflux.BufferSteps, s.BufferSteps)
		if s.BaseDate != nil {
			t, err := time.ParseInLocation("2006-01-02", *s.BaseDate, time.UTC)
			if err != nil {
				return fmt.Errorf("sflux.basedate: %w", err)
			}
			c.Sflux.BaseDate = t
		}
		if s.Resolution != nil {
			c.Sflux.Resolution = *s.Resolution
		}
		if err := setExtent(&c.Sflux.Extent, s.Extent); err != nil {
			return fmt.Errorf("sflux.extent: %w", err)
		}
	}

	if d := f.Discharge; d != nil {
		setString(&c.Discharge.File, d.File)
		if d.Boundaries != nil {
			c.Discharge.Boundaries = *d.Boundaries
		}
	}

	if m := f.Model; m != nil {
		if m.Wave != nil {
			c.Model.Wave = *m.Wave
		}
		setString(&c.Model.Tidefac, m.Tidefac)
		setString(&c.Model.Solver, m.Solver)
		setString(&c.Model.MPIRun, m.MPIRun)
		setInt(&c.Model.NCPU, m.NCPU)
		setInt(&c.Model.NScribe, m.NScribe)
		setString(&c.Model.BctidesTemplate, m.BctidesTemplate)
		setString(&c.Model.ParamTemplate, m.ParamTemplate)
		setString(&c.Model.WWMTemplate, m.WWMTemplate)
		if m.Scripts != nil {
			c.Model.Scripts = *m.Scripts
		}
	}

	if t := f.Telegram; t != nil {
		setString(&c.Telegram.Token, t.Token)
		if t.ChatID != nil {
			c.Telegram.ChatID = *t.ChatID
		}
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *string) error {
	if v == nil {
		return nil
	}
	d, err := ParseDuration(*v)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

func setExtent(dst *entities.Extent, v *[]float64) error {
	if v == nil {
		return nil
	}
	if len(*v) != 4 {
		return fmt.Errorf("expected 4 values [lon_min, lon_max, lat_min, lat_max], got %d", len(*v))
	}
	copy(dst[:], *v)
	return nil
}
