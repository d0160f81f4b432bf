package entities

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCycle(t *testing.T) {
	c, err := ParseCycle("2022090506")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2022, 9, 5, 6, 0, 0, 0, time.UTC), c.Time)
	assert.Equal(t, "2022090506", c.String())
	assert.Equal(t, "2022-09-05", c.Date())
	assert.Equal(t, "06", c.Hour())

	for _, bad := range []string{"", "20220905", "2022090506x", "20221305xx", "2022-09-05"} {
		_, err := ParseCycle(bad)
		assert.Error(t, err, "cycle %q should be rejected", bad)
	}
}

func TestInitCycle(t *testing.T) {
	c, err := ParseCycle("2022090500")
	require.NoError(t, err)

	w := InitCycle(c, DefaultForecastSettings())
	assert.Equal(t, time.Date(2022, 9, 3, 0, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2022, 9, 10, 0, 0, 0, 0, time.UTC), w.End)
	assert.InDelta(t, 7.0, w.RunDays(), 1e-9)
}

func TestCycleStatusValid(t *testing.T) {
	assert.True(t, StatusPublished.Valid())
	assert.False(t, CycleStatus("queued").Valid())
}

func TestCycleAfter(t *testing.T) {
	a, err := ParseCycle("2022090506")
	require.NoError(t, err)
	b, err := ParseCycle("2022090418")
	require.NoError(t, err)
	assert.True(t, a.After(b))
	assert.False(t, b.After(a))
	assert.False(t, a.After(a))
}
