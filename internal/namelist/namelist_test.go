package namelist

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const template = `! model parameters
&CORE
  ipre = 0 ! pre-processor flag
  rnday = 1.5, dt = 150.
  msc2 = 24
/

&OPT
  start_year = 2000 !int
  start_month = 1, start_day = 1
  start_hour = 0
  iof_hydro(1) = 1
  h0 = 0.01
  name = 'it''s'
  flags = 1, 2,
          3, 4
  wet = .true.
/
`

func TestParse(t *testing.T) {
	nml, err := Parse(strings.NewReader(template))
	require.NoError(t, err)
	require.Len(t, nml.Groups, 2)

	rnday, err := nml.Float("core", "RNDAY")
	require.NoError(t, err)
	assert.Equal(t, 1.5, rnday)

	dt, err := nml.Float("CORE", "dt")
	require.NoError(t, err)
	assert.Equal(t, 150.0, dt)

	year, err := nml.Int("OPT", "start_year")
	require.NoError(t, err)
	assert.Equal(t, 2000, year)

	hour, err := nml.Float("OPT", "start_hour")
	require.NoError(t, err)
	assert.Equal(t, 0.0, hour)

	v, ok := nml.Get("OPT", "name")
	require.True(t, ok)
	assert.Equal(t, "it's", v)

	v, ok = nml.Get("OPT", "flags")
	require.True(t, ok)
	assert.Equal(t, Raw("1, 2, 3, 4"), v)

	v, ok = nml.Get("OPT", "wet")
	require.True(t, ok)
	assert.Equal(t, true, v)

	v, ok = nml.Get("OPT", "iof_hydro(1)")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, err = nml.Float("OPT", "missing")
	assert.Error(t, err)
	_, err = nml.Int("OPT", "h0")
	assert.Error(t, err)
}

func TestParseUnterminatedGroup(t *testing.T) {
	_, err := Parse(strings.NewReader("&CORE\n  dt = 100.\n"))
	assert.Error(t, err)
}

func TestApply(t *testing.T) {
	p := NewPatch().
		Set("CORE", "rnday", 7.0).
		Set("OPT", "start_year", 2022).
		Set("OPT", "start_hour", 0.0).
		Set("opt", "flags", Raw("0")).
		Set("OPT", "cur_wwm", 1).
		Set("HOTFILE", "BEGTC", "20220903.000000")

	var out bytes.Buffer
	require.NoError(t, Apply(strings.NewReader(template), &out, p))
	text := out.String()

	assert.Contains(t, text, "! model parameters\n")
	assert.Contains(t, text, "  ipre = 0 ! pre-processor flag\n")
	assert.Contains(t, text, "  rnday = 7.0, dt = 150.\n")
	assert.Contains(t, text, "  start_year = 2022 !int\n")
	assert.Contains(t, text, "  start_hour = 0.0\n")
	assert.Contains(t, text, "  flags = 0,\n  wet = .true.\n")
	assert.NotContains(t, text, "3, 4")
	assert.Contains(t, text, "  cur_wwm = 1\n/\n")
	assert.True(t, strings.HasSuffix(text, "&HOTFILE\n  BEGTC = '20220903.000000'\n/\n"))

	nml, err := Parse(strings.NewReader(text))
	require.NoError(t, err)
	rnday, err := nml.Float("CORE", "rnday")
	require.NoError(t, err)
	assert.Equal(t, 7.0, rnday)
	wwm, err := nml.Int("OPT", "cur_wwm")
	require.NoError(t, err)
	assert.Equal(t, 1, wwm)
	v, ok := nml.Get("HOTFILE", "begtc")
	require.True(t, ok)
	assert.Equal(t, "20220903.000000", v)
}

func TestApplyTerminatorOnAssignmentLine(t *testing.T) {
	p := NewPatch().Set("PROC", "DELTC", 900.0).Set("PROC", "UNITC", "SEC")

	var out bytes.Buffer
	require.NoError(t, Apply(strings.NewReader("&PROC DELTC = 600, /\n"), &out, p))
	assert.Equal(t, "&PROC DELTC = 900.0\n  UNITC = 'SEC'\n/\n", out.String())
}

func TestPatchFile(t *testing.T) {
	dir := t.TempDir()
	tmpl := filepath.Join(dir, "param.nml.template")
	out := filepath.Join(dir, "param.nml")
	require.NoError(t, os.WriteFile(tmpl, []byte(template), 0644))

	require.NoError(t, PatchFile(tmpl, out, NewPatch().Set("CORE", "msc2", 12)))

	nml, err := ParseFile(out)
	require.NoError(t, err)
	msc2, err := nml.Int("CORE", "msc2")
	require.NoError(t, err)
	assert.Equal(t, 12, msc2)

	assert.Error(t, PatchFile(filepath.Join(dir, "missing"), out, NewPatch()))
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{7.0, "7.0"},
		{0.01, "0.01"},
		{900.0, "900.0"},
		{-3.25, "-3.25"},
		{1e-20, "1e-20"},
		{float32(0.1), "0.1"},
		{12, "12"},
		{int64(-1), "-1"},
		{"SEC", "'SEC'"},
		{"it's", "'it''s'"},
		{true, ".true."},
		{false, ".false."},
		{Raw("1, 2"), "1, 2"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatValue(tt.in), "value %v", tt.in)
	}
}
