package namelist

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// Patch is an ordered set of values to write into a namelist
type Patch struct {
	groups []*Group
}

// NewPatch returns an empty patch
func NewPatch() *Patch {
	return &Patch{}
}

// Set records group.key = v
func (p *Patch) Set(group, key string, v any) *Patch {
	g := p.group(group)
	if g == nil {
		g = &Group{Name: group}
		p.groups = append(p.groups, g)
	}
	g.set(key, v)
	return p
}

func (p *Patch) group(name string) *Group {
	for _, g := range p.groups {
		if strings.EqualFold(g.Name, name) {
			return g
		}
	}
	return nil
}

// PatchFile applies p to the template and writes the result to out
func PatchFile(template, out string, p *Patch) error {
	in, err := os.Open(template)
	if err != nil {
		return fmt.Errorf("failed to open template: %v", err)
	}
	defer in.Close()

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("failed to create %s: %v", out, err)
	}
	if err := Apply(in, f, p); err != nil {
		f.Close()
		return fmt.Errorf("failed to patch %s: %w", template, err)
	}
	return f.Close()
}

// Apply copies r to w, replacing the values named in p. Keys missing from a
// group are added before its terminator and missing groups are appended.
func Apply(r io.Reader, w io.Writer, p *Patch) error {
	bw := bufio.NewWriter(w)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	seen := map[string]bool{}
	applied := map[string]bool{}
	var current *Group
	inGroup := false
	skipContinuation := false

	for scanner.Scan() {
		l := scanLine(scanner.Text())
		out := l.raw

		if l.groupName != "" {
			inGroup = true
			current = p.group(l.groupName)
			seen[strings.ToLower(l.groupName)] = true
			skipContinuation = false
		}
		if !inGroup {
			fmt.Fprintln(bw, out)
			continue
		}

		if len(l.assignments) == 0 && l.continuation != "" && skipContinuation && !l.terminated {
			continue
		}

		if len(l.assignments) > 0 {
			skipContinuation = false
			if current != nil {
				for i := len(l.assignments) - 1; i >= 0; i-- {
					a := l.assignments[i]
					v, ok := current.Get(a.key)
					if !ok {
						continue
					}
					out = out[:a.valueStart] + FormatValue(v) + out[a.valueEnd:]
					applied[entryID(current.Name, a.key)] = true
					if i == len(l.assignments)-1 && !l.terminated {
						skipContinuation = true
					}
				}
			}
		}

		if !l.terminated {
			fmt.Fprintln(bw, out)
			continue
		}

		missing := missingEntries(current, applied)
		if len(missing) == 0 {
			fmt.Fprintln(bw, out)
		} else {
			cut := l.termAt + len(out) - len(l.raw)
			head := strings.TrimRight(out[:cut], " \t,")
			if strings.TrimSpace(head) != "" {
				fmt.Fprintln(bw, head)
			}
			for _, m := range missing {
				fmt.Fprintln(bw, m)
			}
			fmt.Fprintln(bw, out[cut:])
		}
		inGroup = false
		current = nil
		skipContinuation = false
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if inGroup {
		return fmt.Errorf("group is not terminated")
	}

	for _, g := range p.groups {
		if seen[strings.ToLower(g.Name)] {
			continue
		}
		fmt.Fprintf(bw, "&%s\n", g.Name)
		for _, e := range g.Entries {
			fmt.Fprintf(bw, "  %s = %s\n", e.Key, FormatValue(e.Value))
		}
		fmt.Fprintln(bw, "/")
	}
	return bw.Flush()
}

func entryID(group, key string) string {
	return strings.ToLower(group) + "." + strings.ToLower(key)
}

func missingEntries(g *Group, applied map[string]bool) []string {
	if g == nil {
		return nil
	}
	var out []string
	for _, e := range g.Entries {
		if !applied[entryID(g.Name, e.Key)] {
			out = append(out, fmt.Sprintf("  %s = %s", e.Key, FormatValue(e.Value)))
		}
	}
	return out
}

// FormatValue renders a value the way Fortran reads it back: floats always
// carry a decimal point, strings are single quoted and logicals use .true./.false.
func FormatValue(v any) string {
	switch x := v.(type) {
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return formatFloat(x, 64)
	case float32:
		return formatFloat(float64(x), 32)
	case bool:
		if x {
			return ".true."
		}
		return ".false."
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'"
	case Raw:
		return string(x)
	default:
		return fmt.Sprint(v)
	}
}

func formatAny(v any) string {
	if v == nil {
		return ""
	}
	return FormatValue(v)
}

func formatFloat(x float64, bits int) string {
	format := byte('f')
	if a := math.Abs(x); a != 0 && (a < 1e-4 || a >= 1e15) {
		format = 'e'
	}
	s := strconv.FormatFloat(x, format, -1, bits)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}
