package gfs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/abelzeko/surgecast/internal/entities"
	"github.com/abelzeko/surgecast/internal/forcing"
	"github.com/abelzeko/surgecast/internal/grid"
)

// Resolution of the global GFS grid in degrees
const Resolution = 0.25

// ServerVariables maps server variable names to the names stored locally
var ServerVariables = []struct{ Server, Local string }{
	{"prmslmsl", "prmsl"},
	{"ugrd10m", "u10"},
	{"vgrd10m", "v10"},
	{"tmp2m", "stmp"},
	{"rh2m", "spfh"},
	{"dlwrfsfc", "dlwrf"},
	{"dswrfsfc", "dswrf"},
	{"pratesfc", "prate"},
}

// Subset is an index range on the global grid, both ends included
type Subset struct {
	T0, T1     int
	Lat0, Lat1 int
	Lon0, Lon1 int
}

// SubsetFor converts an extent to grid indices; the extent is widened to
// whole grid cells. Longitudes are expected in [0, 360).
func SubsetFor(extent entities.Extent, steps int) (Subset, error) {
	if extent.LonMin() < 0 || extent.LonMax() >= 360 || extent.LatMin() < -90 || extent.LatMax() > 90 {
		return Subset{}, fmt.Errorf("extent %v outside the global grid", extent)
	}
	if steps < 1 {
		return Subset{}, fmt.Errorf("invalid number of steps %d", steps)
	}
	return Subset{
		T0:   0,
		T1:   steps - 1,
		Lat0: int(math.Floor((extent.LatMin() + 90) / Resolution)),
		Lat1: int(math.Ceil((extent.LatMax() + 90) / Resolution)),
		Lon0: int(math.Floor(extent.LonMin() / Resolution)),
		Lon1: int(math.Ceil(extent.LonMax() / Resolution)),
	}, nil
}

// Constraint is the OPeNDAP hyperslab of one variable
func (s Subset) Constraint(variable string) string {
	return fmt.Sprintf("%s[%d:%d][%d:%d][%d:%d]", variable, s.T0, s.T1, s.Lat0, s.Lat1, s.Lon0, s.Lon1)
}

func (s Subset) shape() (int, int, int) {
	return s.T1 - s.T0 + 1, s.Lat1 - s.Lat0 + 1, s.Lon1 - s.Lon0 + 1
}

// Path is the local file of a cycle
func (c *Client) Path(id string) string {
	return filepath.Join(c.dir, c.prefix+id+".nc")
}

// Download fetches every variable of a cycle over extent and stores the
// subset as <prefix><cycle>.nc in the GFS directory
func (c *Client) Download(ctx context.Context, sc entities.SourceCycle, extent entities.Extent) (entities.ForcingFile, error) {
	steps := c.lengthDays*24 + 1
	sub, err := SubsetFor(extent, steps)
	if err != nil {
		return entities.ForcingFile{}, err
	}
	nt, ny, nx := sub.shape()

	started := time.Now()
	log.Printf("Downloading GFS cycle %s (%d steps, %dx%d points)", sc.ID, nt, ny, nx)

	data := &forcing.SourceData{
		Init:   sc.InitTime,
		Values: map[string][]float32{},
	}
	for _, v := range ServerVariables {
		block, err := c.fetchVariable(ctx, sc.URL, v.Server, sub)
		if err != nil {
			return entities.ForcingFile{}, fmt.Errorf("failed to download %s of cycle %s: %w", v.Server, sc.ID, err)
		}
		if data.Grid.Nx() == 0 {
			g, err := grid.NewGrid(block.lon, block.lat)
			if err != nil {
				return entities.ForcingFile{}, fmt.Errorf("cycle %s: %v", sc.ID, err)
			}
			data.Grid = g
		}
		data.Values[v.Local] = block.values
	}
	for i := 0; i < nt; i++ {
		data.Times = append(data.Times, sc.InitTime.Add(time.Duration(sub.T0+i)*time.Hour))
	}

	path := c.Path(sc.ID)
	if err := forcing.WriteSource(path, data); err != nil {
		return entities.ForcingFile{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return entities.ForcingFile{}, fmt.Errorf("failed to stat %s: %v", path, err)
	}
	log.Printf("Stored GFS cycle %s in %s (%d bytes, %s)", sc.ID, path, info.Size(), time.Since(started).Round(time.Second))
	return entities.ForcingFile{
		Cycle:        sc.ID,
		Path:         path,
		Size:         info.Size(),
		DownloadedAt: time.Now().UTC(),
	}, nil
}

// DownloadRemaining downloads the cycles found missing by the previous Check,
// a bounded number at a time. Files completed before a failure are returned
// along with the error.
func (c *Client) DownloadRemaining(ctx context.Context, extent entities.Extent) ([]entities.ForcingFile, error) {
	remaining := c.Remaining()
	if len(remaining) == 0 {
		return nil, nil
	}

	files := make([]entities.ForcingFile, len(remaining))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallel)
	for i, sc := range remaining {
		i, sc := i, sc
		g.Go(func() error {
			f, err := c.Download(gctx, sc, extent)
			if err != nil {
				return err
			}
			files[i] = f
			return nil
		})
	}
	err := g.Wait()

	done := files[:0]
	for _, f := range files {
		if f.Path != "" {
			done = append(done, f)
		}
	}
	return done, err
}

type asciiBlock struct {
	dims     []int
	values   []float32
	lat, lon []float64
}

func (c *Client) fetchVariable(ctx context.Context, cycleURL, variable string, sub Subset) (*asciiBlock, error) {
	target := cycleURL + ".ascii?" + sub.Constraint(variable)

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		body, err := c.get(ctx, target)
		if err != nil {
			return nil, err
		}
		block, err := parseASCII(body, variable)
		body.Close()
		if err == nil {
			nt, ny, nx := sub.shape()
			if len(block.dims) != 3 || block.dims[0] != nt || block.dims[1] != ny || block.dims[2] != nx {
				return nil, fmt.Errorf("got shape %v, expected [%d %d %d]", block.dims, nt, ny, nx)
			}
			return block, nil
		}
		// truncated responses are retried like failed requests
		lastErr = err
		log.Printf("Invalid response for %s (attempt %d/%d): %v", variable, attempt, c.attempts, err)
	}
	return nil, lastErr
}

var (
	headerPattern = regexp.MustCompile(`^([A-Za-z0-9_]+),\s*((?:\[\d+\])+)$`)
	indexPattern  = regexp.MustCompile(`^((?:\[\d+\])+),`)
	dimPattern    = regexp.MustCompile(`\[(\d+)\]`)
)

// parseASCII reads a GrADS DODS ".ascii" response: a header "name, [n][m]..."
// followed by rows "[i][j], v, v, ..." and then one block per coordinate
// variable with its values on a single line
func parseASCII(r io.Reader, variable string) (*asciiBlock, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	block := &asciiBlock{}
	coord := ""
	coords := map[string][]float64{}
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if m := headerPattern.FindStringSubmatch(line); m != nil {
			dims := parseDims(m[2])
			if m[1] == variable {
				block.dims = dims
				size := 1
				for _, d := range dims {
					size *= d
				}
				block.values = make([]float32, 0, size)
				coord = ""
			} else {
				coord = m[1]
			}
			continue
		}

		if coord != "" {
			vals, err := parseFloats(line)
			if err != nil {
				return nil, fmt.Errorf("coordinate %s: %v", coord, err)
			}
			coords[coord] = append(coords[coord], vals...)
			continue
		}

		m := indexPattern.FindStringSubmatch(line)
		if m == nil || block.dims == nil {
			return nil, fmt.Errorf("unexpected line %q", truncate(line, 80))
		}
		vals, err := parseFloats(line[len(m[0]):])
		if err != nil {
			return nil, fmt.Errorf("row %s: %v", m[1], err)
		}
		for _, v := range vals {
			block.values = append(block.values, float32(v))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read response: %v", err)
	}

	if block.dims == nil {
		return nil, fmt.Errorf("variable %s not in response", variable)
	}
	if len(block.values) != cap(block.values) {
		return nil, fmt.Errorf("variable %s: got %d values, expected %d", variable, len(block.values), cap(block.values))
	}
	block.lat, block.lon = coords["lat"], coords["lon"]
	if len(block.dims) == 3 && (len(block.lat) != block.dims[1] || len(block.lon) != block.dims[2]) {
		return nil, errors.New("missing or incomplete lat/lon coordinates")
	}
	return block, nil
}

func parseDims(s string) []int {
	var dims []int
	for _, m := range dimPattern.FindAllStringSubmatch(s, -1) {
		n, _ := strconv.Atoi(m[1])
		dims = append(dims, n)
	}
	return dims
}

func parseFloats(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q", p)
		}
		out = append(out, v)
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
