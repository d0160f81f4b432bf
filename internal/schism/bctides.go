package schism

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// BctidesFile is the boundary condition file read by the solver
const BctidesFile = "bctides.in"

// PotentialConstituent is a tidal potential entry of bctides.in
type PotentialConstituent struct {
	Name        string
	Species     int
	Amplitude   string
	Frequency   string
	NodalFactor float64
	EqArgument  float64
}

// ForcingConstituent is a boundary forcing frequency of bctides.in
type ForcingConstituent struct {
	Name        string
	Frequency   string
	NodalFactor float64
	EqArgument  float64
}

// Bctides holds the parts of bctides.in that change between cycles. The open
// boundary section is kept verbatim.
type Bctides struct {
	Header         string
	CutoffDepth    string
	Potential      []PotentialConstituent
	Forcing        []ForcingConstituent
	OpenBoundaries []string
}

// ReadBctides parses a bctides.in template
func ReadBctides(path string) (*Bctides, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bctides template: %v", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %v", path, err)
	}

	b, err := parseBctides(lines)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return b, nil
}

func parseBctides(lines []string) (*Bctides, error) {
	r := &lineReader{lines: lines}
	b := &Bctides{}

	header, ok := r.next()
	if !ok {
		return nil, fmt.Errorf("empty file")
	}
	b.Header = header

	fields, err := r.fields(2, "tidal potential count")
	if err != nil {
		return nil, err
	}
	ntip, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, fmt.Errorf("line %d: invalid tidal potential count %q", r.pos, fields[0])
	}
	b.CutoffDepth = fields[1]

	for i := 0; i < ntip; i++ {
		name, err := r.fields(1, "constituent name")
		if err != nil {
			return nil, err
		}
		vals, err := r.fields(5, "tidal potential values")
		if err != nil {
			return nil, err
		}
		c := PotentialConstituent{Name: name[0], Amplitude: vals[1], Frequency: vals[2]}
		if c.Species, err = strconv.Atoi(vals[0]); err != nil {
			return nil, fmt.Errorf("line %d: invalid species %q", r.pos, vals[0])
		}
		if c.NodalFactor, c.EqArgument, err = parsePair(vals[3], vals[4]); err != nil {
			return nil, fmt.Errorf("line %d: %w", r.pos, err)
		}
		b.Potential = append(b.Potential, c)
	}

	fields, err = r.fields(1, "forcing frequency count")
	if err != nil {
		return nil, err
	}
	nbfr, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, fmt.Errorf("line %d: invalid forcing frequency count %q", r.pos, fields[0])
	}
	for i := 0; i < nbfr; i++ {
		name, err := r.fields(1, "constituent name")
		if err != nil {
			return nil, err
		}
		vals, err := r.fields(3, "forcing frequency values")
		if err != nil {
			return nil, err
		}
		c := ForcingConstituent{Name: name[0], Frequency: vals[0]}
		if c.NodalFactor, c.EqArgument, err = parsePair(vals[1], vals[2]); err != nil {
			return nil, fmt.Errorf("line %d: %w", r.pos, err)
		}
		b.Forcing = append(b.Forcing, c)
	}

	b.OpenBoundaries = r.rest()
	return b, nil
}

func parsePair(a, b string) (float64, float64, error) {
	x, err := strconv.ParseFloat(a, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid number %q", a)
	}
	y, err := strconv.ParseFloat(b, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid number %q", b)
	}
	return x, y, nil
}

// Update sets the nodal factor and equilibrium argument of every constituent
// listed in tide_fac.out, in both the potential and boundary sections
func (b *Bctides) Update(tf *TidefacOut) {
	for i, c := range b.Potential {
		if f, ok := tf.Factors[strings.ToUpper(c.Name)]; ok {
			b.Potential[i].NodalFactor = f.NodalFactor
			b.Potential[i].EqArgument = f.EqArgument
		}
	}
	for i, c := range b.Forcing {
		if f, ok := tf.Factors[strings.ToUpper(c.Name)]; ok {
			b.Forcing[i].NodalFactor = f.NodalFactor
			b.Forcing[i].EqArgument = f.EqArgument
		}
	}
}

// UpdateSa sets the solar annual constituent, which tidefac does not compute:
// nodal factor 1 and the mean solar longitude at start as argument
func (b *Bctides) UpdateSa(start time.Time) {
	arg := SolarLongitude(start)
	for i, c := range b.Potential {
		if strings.EqualFold(c.Name, "SA") {
			b.Potential[i].NodalFactor = 1
			b.Potential[i].EqArgument = arg
		}
	}
	for i, c := range b.Forcing {
		if strings.EqualFold(c.Name, "SA") {
			b.Forcing[i].NodalFactor = 1
			b.Forcing[i].EqArgument = arg
		}
	}
}

// SetHeader replaces the first line with the simulation start and length
func (b *Bctides) SetHeader(start time.Time, runDays float64) {
	b.Header = fmt.Sprintf("%s UTC, rnday %s", start.UTC().Format("2006-01-02 15:04:05"),
		strconv.FormatFloat(runDays, 'f', -1, 64))
}

// Write stores the file at path
func (b *Bctides) Write(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %v", path, err)
	}
	w := bufio.NewWriter(f)

	fmt.Fprintln(w, b.Header)
	fmt.Fprintf(w, "%d %s !ntip, tip_dp\n", len(b.Potential), b.CutoffDepth)
	for _, c := range b.Potential {
		fmt.Fprintln(w, c.Name)
		fmt.Fprintf(w, "%d %s %s %.5f %.2f\n", c.Species, c.Amplitude, c.Frequency, c.NodalFactor, c.EqArgument)
	}
	fmt.Fprintf(w, "%d !nbfr\n", len(b.Forcing))
	for _, c := range b.Forcing {
		fmt.Fprintln(w, c.Name)
		fmt.Fprintf(w, "%s %.5f %.2f\n", c.Frequency, c.NodalFactor, c.EqArgument)
	}
	for _, l := range b.OpenBoundaries {
		fmt.Fprintln(w, l)
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %v", path, err)
	}
	return f.Close()
}

// UpdateBctides runs tidefac in dir and writes dir/bctides.in from the template
func UpdateBctides(ctx context.Context, exe, template, dir string) error {
	if err := RunTidefac(ctx, exe, dir); err != nil {
		return err
	}
	tf, err := ReadTidefacOut(filepath.Join(dir, TidefacOutFile))
	if err != nil {
		return err
	}
	in, err := ReadTidefacInput(filepath.Join(dir, TidefacInputFile))
	if err != nil {
		return err
	}

	b, err := ReadBctides(template)
	if err != nil {
		return err
	}
	b.Update(tf)
	b.UpdateSa(in.Start)
	b.SetHeader(in.Start, in.RunDays)

	if err := b.Write(filepath.Join(dir, BctidesFile)); err != nil {
		return err
	}
	log.Printf("Updated %s with %d tidal factors", BctidesFile, len(tf.Factors))
	return nil
}

// lineReader walks the non-comment content of a file line by line
type lineReader struct {
	lines []string
	pos   int
}

func (r *lineReader) next() (string, bool) {
	if r.pos >= len(r.lines) {
		return "", false
	}
	l := r.lines[r.pos]
	r.pos++
	return l, true
}

// fields returns at least n whitespace separated fields of the next line, dropping a trailing "!" comment
func (r *lineReader) fields(n int, what string) ([]string, error) {
	l, ok := r.next()
	if !ok {
		return nil, fmt.Errorf("unexpected end of file, expected %s", what)
	}
	if i := strings.Index(l, "!"); i >= 0 {
		l = l[:i]
	}
	f := strings.Fields(l)
	if len(f) < n {
		return nil, fmt.Errorf("line %d: expected %s, got %q", r.pos, what, r.lines[r.pos-1])
	}
	return f, nil
}

func (r *lineReader) rest() []string {
	out := r.lines[r.pos:]
	r.pos = len(r.lines)
	return out
}
