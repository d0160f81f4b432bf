// Package cftime converts between time.Time and netCDF "<unit> since <epoch>" values
package cftime

import (
	"fmt"
	"math"
	"strings"
	"time"
)

var epochLayouts = []string{
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05 -07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02 15",
	"2006-01-02",
	"2006-1-2 15:04:05",
	"2006-1-2",
}

// Units is a parsed time reference
type Units struct {
	Step  time.Duration
	Epoch time.Time
}

// Parse reads a units attribute such as "hours since 2022-09-05 00:00:00"
func Parse(units string) (Units, error) {
	parts := strings.SplitN(strings.TrimSpace(units), " since ", 2)
	if len(parts) != 2 {
		return Units{}, fmt.Errorf("invalid time units %q", units)
	}

	var step time.Duration
	switch strings.ToLower(strings.TrimSpace(parts[0])) {
	case "days", "day", "d":
		step = 24 * time.Hour
	case "hours", "hour", "h", "hr":
		step = time.Hour
	case "minutes", "minute", "min":
		step = time.Minute
	case "seconds", "second", "s", "sec":
		step = time.Second
	default:
		return Units{}, fmt.Errorf("unsupported time unit %q", parts[0])
	}

	ref := strings.TrimSpace(parts[1])
	// trailing ".0" seconds fraction, e.g. "2022-09-05 00:00:00.0"
	if i := strings.Index(ref, ".0"); i > 0 && i == len(ref)-2 {
		ref = ref[:i]
	}
	for _, layout := range epochLayouts {
		if t, err := time.Parse(layout, ref); err == nil {
			return Units{Step: step, Epoch: t.UTC()}, nil
		}
	}
	return Units{}, fmt.Errorf("invalid reference time in units %q", units)
}

// String formats the units attribute
func (u Units) String() string {
	var name string
	switch u.Step {
	case 24 * time.Hour:
		name = "days"
	case time.Hour:
		name = "hours"
	case time.Minute:
		name = "minutes"
	default:
		name = "seconds"
	}
	return fmt.Sprintf("%s since %s", name, u.Epoch.UTC().Format("2006-01-02 15:04:05"))
}

// Decode converts offsets to times, rounded to the second
func (u Units) Decode(values []float64) []time.Time {
	out := make([]time.Time, len(values))
	for i, v := range values {
		d := time.Duration(math.Round(v*float64(u.Step)/float64(time.Second))) * time.Second
		out[i] = u.Epoch.Add(d)
	}
	return out
}

// Encode converts a time to an offset in the unit
func (u Units) Encode(t time.Time) float64 {
	return float64(t.Sub(u.Epoch)) / float64(u.Step)
}
