package schism

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/abelzeko/surgecast/internal/entities"
)

// StationFile lists the output stations of the solver
const StationFile = "station.in"

// ReadStations parses station.in: a flag line, a count line and one
// "id x y z ! name" row per station
func ReadStations(path string) ([]entities.Station, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open station file: %v", err)
	}
	defer f.Close()

	r := &lineReader{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		r.lines = append(r.lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %v", path, err)
	}

	if _, err := r.fields(1, "output flags"); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	count, err := r.fields(1, "station count")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	n, err := strconv.Atoi(count[0])
	if err != nil {
		return nil, fmt.Errorf("%s: invalid station count %q", path, count[0])
	}

	stations := make([]entities.Station, 0, n)
	for i := 0; i < n; i++ {
		raw := ""
		if r.pos < len(r.lines) {
			raw = r.lines[r.pos]
		}
		vals, err := r.fields(3, "station row")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		st := entities.Station{}
		if st.ID, err = strconv.Atoi(vals[0]); err != nil {
			return nil, fmt.Errorf("%s: invalid station id %q", path, vals[0])
		}
		if st.Lon, err = strconv.ParseFloat(vals[1], 64); err != nil {
			return nil, fmt.Errorf("%s: invalid x %q", path, vals[1])
		}
		if st.Lat, err = strconv.ParseFloat(vals[2], 64); err != nil {
			return nil, fmt.Errorf("%s: invalid y %q", path, vals[2])
		}
		if j := strings.Index(raw, "!"); j >= 0 {
			st.Name = strings.TrimSpace(raw[j+1:])
		}
		if st.Name == "" {
			st.Name = fmt.Sprintf("Station %d", st.ID)
		}
		stations = append(stations, st)
	}
	return stations, nil
}
