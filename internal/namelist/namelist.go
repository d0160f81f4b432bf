// Package namelist reads Fortran namelist files and patches values in place
// so that comments and layout of a template survive.
package namelist

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// Raw is a value kept as written, such as an array or an unquoted token
type Raw string

// Entry is one assignment inside a group
type Entry struct {
	Key   string
	Value any
}

// Group is a named block between &NAME and its terminator
type Group struct {
	Name    string
	Entries []Entry
}

// Get looks up a key, ignoring case
func (g *Group) Get(key string) (any, bool) {
	for _, e := range g.Entries {
		if strings.EqualFold(e.Key, key) {
			return e.Value, true
		}
	}
	return nil, false
}

func (g *Group) set(key string, v any) {
	for i, e := range g.Entries {
		if strings.EqualFold(e.Key, key) {
			g.Entries[i].Value = v
			return
		}
	}
	g.Entries = append(g.Entries, Entry{Key: key, Value: v})
}

// Namelist holds the groups of a file in order of appearance
type Namelist struct {
	Groups []*Group
}

// Group returns the group with the given name, ignoring case
func (n *Namelist) Group(name string) *Group {
	for _, g := range n.Groups {
		if strings.EqualFold(g.Name, name) {
			return g
		}
	}
	return nil
}

// Get looks up group.key
func (n *Namelist) Get(group, key string) (any, bool) {
	g := n.Group(group)
	if g == nil {
		return nil, false
	}
	return g.Get(key)
}

// Float returns group.key as a float, accepting integer values
func (n *Namelist) Float(group, key string) (float64, error) {
	v, ok := n.Get(group, key)
	if !ok {
		return 0, fmt.Errorf("%s.%s not found", group, key)
	}
	switch x := v.(type) {
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	default:
		return 0, fmt.Errorf("%s.%s is not numeric: %v", group, key, v)
	}
}

// Int returns group.key as an integer, accepting floats without a fraction
func (n *Namelist) Int(group, key string) (int, error) {
	v, ok := n.Get(group, key)
	if !ok {
		return 0, fmt.Errorf("%s.%s not found", group, key)
	}
	switch x := v.(type) {
	case int:
		return x, nil
	case float64:
		if x == float64(int(x)) {
			return int(x), nil
		}
	}
	return 0, fmt.Errorf("%s.%s is not an integer: %v", group, key, v)
}

// ParseFile reads a namelist file
func ParseFile(path string) (*Namelist, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open namelist: %v", err)
	}
	defer f.Close()

	nml, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nml, nil
}

// Parse reads every group of a namelist
func Parse(r io.Reader) (*Namelist, error) {
	nml := &Namelist{}
	var current *Group
	var lastKey string

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		l := scanLine(scanner.Text())

		if l.groupName != "" {
			if current != nil {
				return nil, fmt.Errorf("line %d: group &%s opened inside &%s", lineNo, l.groupName, current.Name)
			}
			current = nml.Group(l.groupName)
			if current == nil {
				current = &Group{Name: l.groupName}
				nml.Groups = append(nml.Groups, current)
			}
			lastKey = ""
		}
		if current == nil {
			continue
		}

		if len(l.assignments) == 0 && l.continuation != "" && lastKey != "" {
			prev, _ := current.Get(lastKey)
			current.set(lastKey, Raw(formatAny(prev)+", "+l.continuation))
		}
		for _, a := range l.assignments {
			current.set(a.key, parseValue(l.code[a.valueStart:a.valueEnd]))
			lastKey = a.key
		}

		if l.terminated {
			current = nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if current != nil {
		return nil, fmt.Errorf("group &%s is not terminated", current.Name)
	}
	return nml, nil
}

var (
	keyPattern   = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_%]*(?:\([^)]*\))?)\s*=`)
	intPattern   = regexp.MustCompile(`^[+-]?\d+$`)
	floatPattern = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eEdD][+-]?\d+)?$`)
)

type assignment struct {
	key                  string
	keyStart             int
	valueStart, valueEnd int
}

// line is one physical line split into its code part and its assignments
type line struct {
	raw          string
	code         string
	groupName    string
	terminated   bool
	assignments  []assignment
	continuation string
	// termAt is the offset of the terminator in code, -1 when absent
	termAt int
}

func scanLine(raw string) line {
	l := line{raw: raw, termAt: -1}
	l.code = raw
	inQuote := rune(0)
	quoted := make([]bool, len(raw))
scan:
	for i, c := range raw {
		switch {
		case inQuote != 0:
			quoted[i] = true
			if c == inQuote {
				inQuote = 0
			}
		case c == '\'' || c == '"':
			inQuote = c
			quoted[i] = true
		case c == '!':
			l.code = raw[:i]
			quoted = quoted[:i]
			break scan
		}
	}

	start := 0
	trimmed := strings.TrimSpace(l.code)
	if strings.HasPrefix(trimmed, "&") || strings.HasPrefix(trimmed, "$") {
		name := strings.Fields(trimmed[1:])
		if len(name) > 0 && !strings.EqualFold(strings.TrimSuffix(name[0], "/"), "end") {
			l.groupName = strings.TrimSuffix(name[0], "/")
			start = strings.Index(l.code, l.groupName) + len(l.groupName)
		} else {
			l.terminated = true
			l.termAt = strings.Index(l.code, trimmed)
			return l
		}
	}

	end := len(l.code)
	for i := len(l.code) - 1; i >= start; i-- {
		c := l.code[i]
		if c == ' ' || c == '\t' || c == ',' {
			continue
		}
		if c == '/' && !quoted[i] {
			l.terminated = true
			l.termAt = i
			end = i
		}
		break
	}

	body := l.code[:end]
	for _, m := range keyPattern.FindAllStringSubmatchIndex(body[start:], -1) {
		ks, ke, eq := m[2]+start, m[3]+start, m[1]+start
		if quoted[ks] || (ks > 0 && isIdentChar(body[ks-1])) {
			continue
		}
		l.assignments = append(l.assignments, assignment{key: body[ks:ke], keyStart: ks, valueStart: eq})
	}
	for i := range l.assignments {
		stop := end
		if i+1 < len(l.assignments) {
			stop = l.assignments[i+1].keyStart
		}
		vs, ve := trimSpan(body, l.assignments[i].valueStart, stop)
		l.assignments[i].valueStart, l.assignments[i].valueEnd = vs, ve
	}
	if len(l.assignments) == 0 {
		l.continuation = strings.Trim(strings.TrimSpace(body[start:]), ",")
	}
	return l
}

func isIdentChar(c byte) bool {
	return c == '_' || c == '%' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// trimSpan narrows [start, end) to the value text without blanks and trailing commas
func trimSpan(s string, start, end int) (int, int) {
	for start < end && (s[start] == ' ' || s[start] == '\t') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t' || s[end-1] == ',') {
		end--
	}
	return start, end
}

func parseValue(s string) any {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] && !hasTopLevelComma(s) {
		q := string(s[0])
		return strings.ReplaceAll(s[1:len(s)-1], q+q, q)
	}
	switch strings.ToLower(s) {
	case ".true.", ".t.", "t", "true":
		return true
	case ".false.", ".f.", "f", "false":
		return false
	}
	if intPattern.MatchString(s) {
		if v, err := strconv.Atoi(s); err == nil {
			return v
		}
	}
	if floatPattern.MatchString(s) {
		if v, err := strconv.ParseFloat(strings.NewReplacer("d", "e", "D", "e").Replace(s), 64); err == nil {
			return v
		}
	}
	return Raw(s)
}

func hasTopLevelComma(s string) bool {
	inQuote := byte(0)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inQuote != 0:
			if c == inQuote {
				inQuote = 0
			}
		case c == '\'' || c == '"':
			inQuote = c
		case c == ',':
			return true
		}
	}
	return false
}
