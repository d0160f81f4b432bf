package schism

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// FluxFile is the river discharge time history read by the solver
const FluxFile = "flux.th"

// Climatology is daily discharge per boundary indexed by day of year
type Climatology struct {
	Boundaries []string
	days       map[int][]float64
}

// ReadClimatology reads a csv with a "Day" column and one column per river
func ReadClimatology(path string) (*Climatology, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open discharge climatology: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %v", path, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("%s has no data rows", path)
	}

	header := records[0]
	dayCol := -1
	c := &Climatology{days: map[int][]float64{}}
	var cols []int
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == "Day" {
			dayCol = i
			continue
		}
		c.Boundaries = append(c.Boundaries, name)
		cols = append(cols, i)
	}
	if dayCol < 0 {
		return nil, fmt.Errorf("%s has no Day column", path)
	}

	for n, rec := range records[1:] {
		day, err := strconv.Atoi(strings.TrimSpace(rec[dayCol]))
		if err != nil {
			return nil, fmt.Errorf("%s row %d: invalid day %q", path, n+2, rec[dayCol])
		}
		values := make([]float64, len(cols))
		for k, col := range cols {
			if values[k], err = strconv.ParseFloat(strings.TrimSpace(rec[col]), 64); err != nil {
				return nil, fmt.Errorf("%s row %d: invalid %s value %q", path, n+2, header[col], rec[col])
			}
		}
		c.days[day] = values
	}
	return c, nil
}

// Values returns the discharge of the named boundaries on a day of year
func (c *Climatology) Values(day int, boundaries []string) ([]float64, error) {
	row, ok := c.days[day]
	if !ok {
		return nil, fmt.Errorf("no discharge for day %d", day)
	}
	out := make([]float64, len(boundaries))
	for i, b := range boundaries {
		col := -1
		for k, name := range c.Boundaries {
			if name == b {
				col = k
				break
			}
		}
		if col < 0 {
			return nil, fmt.Errorf("no discharge column %q", b)
		}
		out[i] = row[col]
	}
	return out, nil
}

// WriteClimaticDischarge writes flux.th with one row per day from the start of
// the simulation: ceil(rnday)+1 rows, seconds since start then the discharge of
// each boundary, negative for inflow
func WriteClimaticDischarge(climatology string, in TidefacInput, boundaries []string, dir string) (string, error) {
	c, err := ReadClimatology(climatology)
	if err != nil {
		return "", err
	}

	fxday := int(math.Ceil(in.RunDays)) + 1
	path := filepath.Join(dir, FluxFile)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %v", path, err)
	}
	w := bufio.NewWriter(f)

	for i := 0; i < fxday; i++ {
		day := in.Start.Add(time.Duration(i) * 24 * time.Hour)
		values, err := c.Values(day.YearDay(), boundaries)
		if err != nil {
			f.Close()
			return "", fmt.Errorf("failed to build %s for %s: %w", FluxFile, day.Format("2006-01-02"), err)
		}
		row := []string{strconv.FormatFloat(float64(i)*86400, 'f', 1, 64)}
		for _, v := range values {
			row = append(row, strconv.FormatFloat(-v, 'f', 1, 64))
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write %s: %v", path, err)
	}
	return path, f.Close()
}
