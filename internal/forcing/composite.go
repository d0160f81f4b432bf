package forcing

import (
	"errors"
	"fmt"
	"time"

	"github.com/abelzeko/surgecast/internal/grid"
)

// Composite stitches several source cycles into one record. At any time the
// newest cycle that has been issued and still covers that time is used.
type Composite struct {
	sources []*Source
	grid    grid.Grid
}

// OpenComposite opens the selected files, all of which must share one grid
func OpenComposite(files []CatalogEntry) (*Composite, error) {
	if len(files) == 0 {
		return nil, errors.New("no source files to combine")
	}
	c := &Composite{}
	first := files[0].Path
	for _, f := range files {
		s, err := OpenSource(f.Path)
		if err != nil {
			c.Close()
			return nil, err
		}
		if len(c.sources) == 0 {
			c.grid = s.Grid
		} else if !c.grid.Equal(s.Grid) {
			s.Close()
			c.Close()
			return nil, fmt.Errorf("%s uses a different grid than %s", f.Path, first)
		}
		c.sources = append(c.sources, s)
	}
	return c, nil
}

// Grid is the grid shared by every source
func (c *Composite) Grid() grid.Grid { return c.grid }

// Covers reports whether some source provides data at t
func (c *Composite) Covers(t time.Time) bool {
	return c.sourceAt(t) != nil
}

func (c *Composite) sourceAt(t time.Time) *Source {
	for i := len(c.sources) - 1; i >= 0; i-- {
		s := c.sources[i]
		if !s.Init.After(t) && s.Covers(t) {
			return s
		}
	}
	// times before every issue date fall back to the earliest cycle
	if len(c.sources) > 0 && c.sources[0].Covers(t) {
		return c.sources[0]
	}
	return nil
}

// Field returns variable name at time t
func (c *Composite) Field(name string, t time.Time) (grid.Field, error) {
	s := c.sourceAt(t)
	if s == nil {
		return nil, fmt.Errorf("no source covers %s", t.Format(time.RFC3339))
	}
	return s.Field(name, t)
}

// Close closes every source
func (c *Composite) Close() error {
	var errs []error
	for _, s := range c.sources {
		errs = append(errs, s.Close())
	}
	c.sources = nil
	return errors.Join(errs...)
}
