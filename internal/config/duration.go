package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var frequencyPattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*([A-Za-z]+)$`)

// ParseDuration accepts Go durations ("48h") as well as frequency strings
// such as "2D", "6H" or "30min".
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	m := frequencyPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %v", s, err)
	}

	var unit time.Duration
	switch strings.ToLower(m[2]) {
	case "w":
		unit = 7 * 24 * time.Hour
	case "d":
		unit = 24 * time.Hour
	case "h":
		unit = time.Hour
	case "t", "min":
		unit = time.Minute
	case "s":
		unit = time.Second
	default:
		return 0, fmt.Errorf("invalid duration %q: unknown unit %q", s, m[2])
	}
	return time.Duration(n * float64(unit)), nil
}
