package forcing

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/abelzeko/surgecast/internal/entities"
)

// ErrNotEnoughForcing is returned when the downloaded cycles do not cover a simulation
var ErrNotEnoughForcing = errors.New("not enough forcing files available for requested simulation")

// CatalogEntry is a source file found on disk
type CatalogEntry struct {
	Cycle entities.Cycle
	Path  string
	Size  int64
	Start time.Time
	// End assumes the nominal forecast length of the source
	End time.Time
}

// Scan lists files named <prefix>YYYYMMDDHH.nc in dir, oldest first. Other files are ignored.
func Scan(dir, prefix string, lengthDays int) ([]CatalogEntry, error) {
	matches, err := filepath.Glob(filepath.Join(dir, prefix+"*.nc"))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %v", dir, err)
	}

	var entries []CatalogEntry
	for _, path := range matches {
		id := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), prefix), ".nc")
		cycle, err := entities.ParseCycle(id)
		if err != nil {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %v", path, err)
		}
		entries = append(entries, CatalogEntry{
			Cycle: cycle,
			Path:  path,
			Size:  info.Size(),
			Start: cycle.Time,
			End:   cycle.Add(time.Duration(lengthDays) * 24 * time.Hour),
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Start.Before(entries[j].Start) })
	return entries, nil
}

// SelectOptions tune which source cycles are kept for a model cycle
type SelectOptions struct {
	CycleStep        time.Duration
	BufferCycles     int
	SourceLengthDays int
}

// Selection is the set of source cycles feeding one model cycle
type Selection struct {
	ModelStart time.Time
	SfluxStart time.Time
	SfluxEnd   time.Time
	Files      []CatalogEntry
}

// Select keeps the source cycles issued no later than the model cycle whose
// nominal coverage reaches far enough past the forcing start. It fails when the
// earliest kept cycle starts after the simulation start.
func Select(entries []CatalogEntry, window entities.CycleWindow, opts SelectOptions) (*Selection, error) {
	modelStart := window.Start
	sfluxStart := modelStart.Add(-opts.CycleStep * time.Duration(opts.BufferCycles))
	minCoverage := time.Duration(opts.SourceLengthDays-2) * 24 * time.Hour

	var kept []CatalogEntry
	for _, e := range entries {
		if e.Start.After(window.Cycle.Time) {
			continue
		}
		if e.End.Sub(sfluxStart) >= minCoverage {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("%w: no source cycle between %s and %s", ErrNotEnoughForcing,
			sfluxStart.Format(time.RFC3339), window.Cycle.Format(time.RFC3339))
	}

	sel := &Selection{
		ModelStart: modelStart,
		SfluxStart: kept[0].Start,
		SfluxEnd:   kept[len(kept)-1].End,
		Files:      kept,
	}
	if sel.SfluxStart.After(modelStart) {
		return nil, fmt.Errorf("%w: first source cycle %s starts after model start %s", ErrNotEnoughForcing,
			kept[0].Cycle, modelStart.Format(time.RFC3339))
	}
	if sel.SfluxEnd.Before(window.End) {
		return nil, fmt.Errorf("%w: forcing ends %s before model end %s", ErrNotEnoughForcing,
			sel.SfluxEnd.Format(time.RFC3339), window.End.Format(time.RFC3339))
	}
	return sel, nil
}
