// Package schism writes the per-cycle input files of the SCHISM/WWM model and runs the solver
package schism

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/abelzeko/surgecast/internal/entities"
	"github.com/abelzeko/surgecast/internal/namelist"
)

const (
	TidefacInputFile = "tidefacinput"
	TidefacOutFile   = "tide_fac.out"
)

// TidefacInput is the simulation start and length read by tidefac
type TidefacInput struct {
	Start   time.Time
	RunDays float64
}

// End is the end of the simulation
func (t TidefacInput) End() time.Time {
	return t.Start.Add(time.Duration(t.RunDays * float64(24*time.Hour)))
}

// NewTidefacInput derives the input from a cycle window
func NewTidefacInput(window entities.CycleWindow) TidefacInput {
	return TidefacInput{Start: window.Start, RunDays: window.RunDays()}
}

// WriteTidefacInput writes "Y,M,D,H" and the run length in days to dir/tidefacinput
func WriteTidefacInput(dir string, in TidefacInput) (string, error) {
	s := in.Start.UTC()
	content := fmt.Sprintf("%d,%d,%d,%d\n%s\n", s.Year(), int(s.Month()), s.Day(), s.Hour(),
		namelist.FormatValue(in.RunDays))

	path := filepath.Join(dir, TidefacInputFile)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %v", path, err)
	}
	return path, nil
}

// ReadTidefacInput parses a tidefacinput file
func ReadTidefacInput(path string) (TidefacInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return TidefacInput{}, fmt.Errorf("failed to read tidefacinput: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) < 2 {
		return TidefacInput{}, fmt.Errorf("%s: expected start and run days lines", path)
	}

	parts := strings.Split(strings.TrimSpace(lines[0]), ",")
	if len(parts) != 4 {
		return TidefacInput{}, fmt.Errorf("%s: invalid start %q", path, lines[0])
	}
	var ymdh [4]int
	for i, p := range parts {
		if ymdh[i], err = strconv.Atoi(strings.TrimSpace(p)); err != nil {
			return TidefacInput{}, fmt.Errorf("%s: invalid start %q", path, lines[0])
		}
	}
	rnday, err := strconv.ParseFloat(strings.TrimSpace(lines[1]), 64)
	if err != nil {
		return TidefacInput{}, fmt.Errorf("%s: invalid run days %q", path, lines[1])
	}

	return TidefacInput{
		Start:   time.Date(ymdh[0], time.Month(ymdh[1]), ymdh[2], ymdh[3], 0, 0, 0, time.UTC),
		RunDays: rnday,
	}, nil
}

// RunTidefac runs the tidal factor program in dir, feeding it the tidefacinput file
func RunTidefac(ctx context.Context, exe, dir string) error {
	in, err := os.Open(filepath.Join(dir, TidefacInputFile))
	if err != nil {
		return fmt.Errorf("failed to open tidefacinput: %v", err)
	}
	defer in.Close()

	var output bytes.Buffer
	cmd := exec.CommandContext(ctx, exe)
	cmd.Dir = dir
	cmd.Stdin = in
	cmd.Stdout = &output
	cmd.Stderr = &output

	log.Printf("Running %s in %s", exe, dir)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to run %s: %v: %s", exe, err, strings.TrimSpace(output.String()))
	}
	if _, err := os.Stat(filepath.Join(dir, TidefacOutFile)); err != nil {
		return fmt.Errorf("%s did not produce %s: %v", exe, TidefacOutFile, err)
	}
	return nil
}

// TidalFactor is the nodal factor and equilibrium argument of one constituent
type TidalFactor struct {
	NodalFactor float64
	EqArgument  float64 // degrees
}

// TidefacOut is the content of tide_fac.out
type TidefacOut struct {
	RunDays float64
	// Start has hour resolution
	Start   time.Time
	Factors map[string]TidalFactor
}

// ReadTidefacOut parses tide_fac.out. Header lines carry the run length and
// the start as "hour day month year"; every line of the form
// "NAME factor argument" is a constituent.
func ReadTidefacOut(path string) (*TidefacOut, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open tide_fac.out: %v", err)
	}
	defer f.Close()

	out := &TidefacOut{Factors: map[string]TidalFactor{}}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		lower := strings.ToLower(text)
		switch {
		case strings.Contains(lower, "rnday"):
			if v, ok := lastNumber(text); ok {
				out.RunDays = v
			}
		case strings.Contains(lower, "start"):
			if nums := numbers(text); len(nums) >= 4 {
				out.Start = time.Date(int(nums[3]), time.Month(int(nums[2])), int(nums[1]), int(nums[0]), 0, 0, 0, time.UTC)
			}
		default:
			fields := strings.Fields(text)
			if len(fields) != 3 || !isConstituentName(fields[0]) {
				continue
			}
			factor, err1 := strconv.ParseFloat(fields[1], 64)
			arg, err2 := strconv.ParseFloat(fields[2], 64)
			if err1 != nil || err2 != nil {
				continue
			}
			out.Factors[strings.ToUpper(fields[0])] = TidalFactor{NodalFactor: factor, EqArgument: arg}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %v", path, err)
	}
	if len(out.Factors) == 0 {
		return nil, fmt.Errorf("%s lists no constituents", path)
	}
	return out, nil
}

func isConstituentName(s string) bool {
	if s == "" || !(s[0] >= 'A' && s[0] <= 'Z' || s[0] >= 'a' && s[0] <= 'z') {
		return false
	}
	for _, c := range s {
		if !(c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}

func numbers(s string) []float64 {
	var out []float64
	for _, tok := range strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == '\t' || r == ',' || r == '=' || r == ':' }) {
		if v, err := strconv.ParseFloat(tok, 64); err == nil {
			out = append(out, v)
		}
	}
	return out
}

func lastNumber(s string) (float64, bool) {
	nums := numbers(s)
	if len(nums) == 0 {
		return 0, false
	}
	return nums[len(nums)-1], true
}

// SolarLongitude is the mean longitude of the sun in degrees at t
func SolarLongitude(t time.Time) float64 {
	j2000 := time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)
	d := t.Sub(j2000).Hours() / 24
	h := math.Mod(280.46646+0.98564736*d, 360)
	if h < 0 {
		h += 360
	}
	return h
}
