// Package entities defines the core types shared across the forecast pipeline
package entities

import (
	"fmt"
	"time"
)

// CycleFormat is the text layout of a forecast cycle identifier (YYYYMMDDHH)
const CycleFormat = "2006010215"

// Cycle is a forecast initialization time, always in UTC
type Cycle struct {
	time.Time
}

// NewCycle wraps t as a cycle truncated to the hour
func NewCycle(t time.Time) Cycle {
	return Cycle{t.UTC().Truncate(time.Hour)}
}

// ParseCycle parses a YYYYMMDDHH cycle identifier
func ParseCycle(s string) (Cycle, error) {
	if len(s) != len(CycleFormat) {
		return Cycle{}, fmt.Errorf("invalid cycle %q: expected YYYYMMDDHH", s)
	}
	t, err := time.ParseInLocation(CycleFormat, s, time.UTC)
	if err != nil {
		return Cycle{}, fmt.Errorf("invalid cycle %q: %w", s, err)
	}
	return Cycle{t}, nil
}

// String returns the YYYYMMDDHH form
func (c Cycle) String() string {
	return c.Format(CycleFormat)
}

// Date returns the cycle day as YYYY-MM-DD
func (c Cycle) Date() string {
	return c.Format("2006-01-02")
}

// Hour returns the cycle hour as HH
func (c Cycle) Hour() string {
	return c.Format("15")
}

// After reports whether c is a later cycle than other
func (c Cycle) After(other Cycle) bool {
	return c.Time.After(other.Time)
}

// ForecastSettings controls the extent of a cycle's simulation window
type ForecastSettings struct {
	Spinup         time.Duration
	ForecastLength time.Duration
	CycleStep      time.Duration
}

// DefaultForecastSettings returns two days of spinup, a five day forecast and six hourly cycles
func DefaultForecastSettings() ForecastSettings {
	return ForecastSettings{
		Spinup:         48 * time.Hour,
		ForecastLength: 120 * time.Hour,
		CycleStep:      6 * time.Hour,
	}
}

// CycleWindow is the simulated period of one cycle
type CycleWindow struct {
	Cycle    Cycle
	Start    time.Time
	End      time.Time
	Settings ForecastSettings
}

// InitCycle computes the simulation window of a cycle
func InitCycle(cycle Cycle, settings ForecastSettings) CycleWindow {
	return CycleWindow{
		Cycle:    cycle,
		Start:    cycle.Add(-settings.Spinup),
		End:      cycle.Add(settings.ForecastLength),
		Settings: settings,
	}
}

// RunDays is the length of the window in days
func (w CycleWindow) RunDays() float64 {
	return w.End.Sub(w.Start).Hours() / 24
}
