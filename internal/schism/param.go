package schism

import (
	"fmt"
	"log"
	"math"
	"time"

	"github.com/abelzeko/surgecast/internal/namelist"
)

const (
	ParamFile    = "param.nml"
	WWMInputFile = "wwminput.nml"

	// WWMTimeFormat is the YYYYMMDD.HHMMSS form used by wwminput.nml
	WWMTimeFormat = "20060102.150405"
)

// WriteParam patches the run length and start of param.nml. With wave
// coupling the WWM spectral resolution and coupling switches are set too.
func WriteParam(in TidefacInput, template, out string, wave bool) error {
	s := in.Start.UTC()
	p := namelist.NewPatch().
		Set("CORE", "rnday", in.RunDays).
		Set("OPT", "start_year", s.Year()).
		Set("OPT", "start_month", int(s.Month())).
		Set("OPT", "start_day", s.Day()).
		Set("OPT", "start_hour", float64(s.Hour()))

	if wave {
		p.Set("CORE", "msc2", 12).
			Set("CORE", "mdc2", 12).
			Set("OPT", "icou_elfe_wwm", 1).
			Set("OPT", "nstep_wwm", 6).
			Set("OPT", "cur_wwm", 1)
	}

	if err := namelist.PatchFile(template, out, p); err != nil {
		return err
	}
	log.Printf("Wrote %s (rnday %v, wave %v)", out, in.RunDays, wave)
	return nil
}

// WriteWWMInput patches the wave model namelist with the period, time step and
// spectral resolution found in an already written param.nml
func WriteWWMInput(param, template, out string) error {
	nml, err := namelist.ParseFile(param)
	if err != nil {
		return err
	}

	start, end, err := paramPeriod(nml)
	if err != nil {
		return fmt.Errorf("failed to read period from %s: %w", param, err)
	}
	deltc, err := wwmStep(nml)
	if err != nil {
		return fmt.Errorf("failed to read time step from %s: %w", param, err)
	}

	var missing []string
	lookup := func(group, key string) any {
		if v, ok := nml.Get(group, key); ok {
			return v
		}
		// h0 is listed under CORE in some templates
		for _, g := range nml.Groups {
			if v, ok := g.Get(key); ok {
				return v
			}
		}
		missing = append(missing, group+"."+key)
		return nil
	}
	h0 := lookup("OPT", "h0")
	msc := lookup("CORE", "msc2")
	mdc := lookup("CORE", "mdc2")
	if len(missing) > 0 {
		return fmt.Errorf("%s is missing %v", param, missing)
	}

	begin, finish := start.Format(WWMTimeFormat), end.Format(WWMTimeFormat)
	p := namelist.NewPatch().
		Set("PROC", "BEGTC", begin).
		Set("PROC", "DELTC", deltc).
		Set("PROC", "UNITC", "SEC").
		Set("PROC", "ENDTC", finish).
		Set("PROC", "DMIN", h0).
		Set("GRID", "MSC", msc).
		Set("GRID", "MDC", mdc).
		Set("BOUC", "BEGTC", begin).
		Set("BOUC", "ENDTC", finish).
		Set("HISTORY", "BEGTC", begin).
		Set("HISTORY", "ENDTC", finish).
		Set("HISTORY", "OUTSTYLE", "NO").
		Set("STATION", "BEGTC", begin).
		Set("STATION", "ENDTC", finish).
		Set("STATION", "OUTSTYLE", "STE").
		Set("STATION", "DEFINETC", -1).
		Set("HOTFILE", "BEGTC", begin).
		Set("HOTFILE", "ENDTC", finish)

	if err := namelist.PatchFile(template, out, p); err != nil {
		return err
	}
	log.Printf("Wrote %s (%s to %s)", out, begin, finish)
	return nil
}

func paramPeriod(nml *namelist.Namelist) (time.Time, time.Time, error) {
	rnday, err := nml.Float("CORE", "rnday")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	year, err := nml.Int("OPT", "start_year")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	month, err := nml.Int("OPT", "start_month")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	day, err := nml.Int("OPT", "start_day")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	hour, err := nml.Float("OPT", "start_hour")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	// fractional hours carry minutes and seconds, truncated to the second
	seconds := math.Floor(math.Round(hour*3600*1e6) / 1e6)
	start := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC).Add(time.Duration(seconds) * time.Second)
	end := start.Add(time.Duration(math.Round(rnday*86400*1e3)) * time.Millisecond)
	return start, end, nil
}

// wwmStep is dt * nstep_wwm, an integer when both are integers
func wwmStep(nml *namelist.Namelist) (any, error) {
	nstep, err := nml.Int("OPT", "nstep_wwm")
	if err != nil {
		return nil, err
	}
	dt, ok := nml.Get("CORE", "dt")
	if !ok {
		return nil, fmt.Errorf("CORE.dt not found")
	}
	switch v := dt.(type) {
	case int:
		return v * nstep, nil
	case float64:
		return v * float64(nstep), nil
	default:
		return nil, fmt.Errorf("CORE.dt is not numeric: %v", dt)
	}
}
