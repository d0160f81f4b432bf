package sflux

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/abelzeko/surgecast/internal/grid"
	"github.com/abelzeko/surgecast/internal/namelist"
)

// ErrWindowNotCovered is returned when the forcing record does not span the requested period
var ErrWindowNotCovered = errors.New("forcing does not cover the requested period")

// SourceNames maps each air variable to the variable read from the forcing source
var SourceNames = map[string]string{
	"uwind": "u10",
	"vwind": "v10",
	"prmsl": "prmsl",
	"stmp":  "stmp",
	// the downloaded humidity is rh2m, stored under spfh
	"spfh": "spfh",
}

// FieldSource provides source variables at arbitrary times
type FieldSource interface {
	Grid() grid.Grid
	Covers(t time.Time) bool
	Field(name string, t time.Time) (grid.Field, error)
}

// Options control the sflux output
type Options struct {
	Step        time.Duration
	NStep       int
	BufferSteps int
	// BaseDate of the time axis, zero uses start
	BaseDate time.Time
	// Target grid, nil keeps the source grid
	Target *grid.Grid
}

// Generate writes the air files for [start, end] at opts.Step, followed by
// BufferSteps copies of the last step, and the sflux_inputs.txt namelist.
// The whole period is checked against the source before any file is written.
// Cancelling ctx stops the run between steps.
func Generate(ctx context.Context, dir string, src FieldSource, start, end time.Time, opts Options) ([]string, error) {
	if opts.Step <= 0 {
		return nil, fmt.Errorf("invalid sflux step %s", opts.Step)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("sflux end %s before start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	var steps []time.Time
	for t := start; !t.After(end); t = t.Add(opts.Step) {
		if !src.Covers(t) {
			return nil, fmt.Errorf("%w: no data at %s", ErrWindowNotCovered, t.Format(time.RFC3339))
		}
		steps = append(steps, t)
	}

	target := src.Grid()
	if opts.Target != nil {
		if !src.Grid().Covers(*opts.Target) {
			return nil, fmt.Errorf("%w: target grid extends beyond the source grid", grid.ErrOutsideGrid)
		}
		target = *opts.Target
	}

	baseDate := opts.BaseDate
	if baseDate.IsZero() {
		baseDate = start
	}
	w, err := NewWriter(dir, target, baseDate, opts.NStep)
	if err != nil {
		return nil, err
	}

	var flux Flux
	for _, t := range steps {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("sflux stopped at %s: %w", t.Format(time.RFC3339), err)
		}
		flux, err = interpolate(src, t, opts.Target)
		if err != nil {
			return nil, err
		}
		if err := w.Write(t, flux); err != nil {
			return nil, err
		}
	}
	last := steps[len(steps)-1]
	for i := 1; i <= opts.BufferSteps; i++ {
		if err := w.Write(last.Add(opts.Step*time.Duration(i)), flux); err != nil {
			return nil, err
		}
	}
	if err := w.Finish(); err != nil {
		return nil, err
	}

	if err := WriteInputs(dir, opts.Step, opts.NStep); err != nil {
		return nil, err
	}
	log.Printf("Sflux ready: %d steps in %d files under %s", len(steps)+opts.BufferSteps, len(w.Files()), dir)
	return w.Files(), nil
}

func interpolate(src FieldSource, t time.Time, target *grid.Grid) (Flux, error) {
	flux := make(Flux, len(Variables))
	for _, name := range Variables {
		f, err := src.Field(SourceNames[name], t)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s at %s: %w", name, t.Format(time.RFC3339), err)
		}
		if target != nil {
			if f, err = grid.Bilinear(src.Grid(), f, *target); err != nil {
				return nil, fmt.Errorf("failed to interpolate %s: %w", name, err)
			}
		}
		flux[name] = f
	}
	return flux, nil
}

// WriteInputs writes sflux_inputs.txt for a single air dataset
func WriteInputs(dir string, step time.Duration, nstep int) error {
	window := step.Hours() * float64(nstep)
	content := fmt.Sprintf("&sflux_inputs\nair_1_relative_weight=%s,\nair_1_max_window_hours=%s,\n/\n",
		namelist.FormatValue(1.0), namelist.FormatValue(window))

	path := filepath.Join(dir, "sflux_inputs.txt")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %v", path, err)
	}
	return nil
}
