//go:build netcdf

package out2d

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/fhs/go-netcdf/netcdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeStack(t *testing.T, path string) {
	t.Helper()
	ds, err := netcdf.CreateFile(path, netcdf.CLOBBER|netcdf.NETCDF4)
	require.NoError(t, err)
	defer ds.Close()

	timeDim, err := ds.AddDim("time", 3)
	require.NoError(t, err)
	nodeDim, err := ds.AddDim("nSCHISM_hgrid_node", 2)
	require.NoError(t, err)

	xVar, err := ds.AddVar(nodeXVar, netcdf.DOUBLE, []netcdf.Dim{nodeDim})
	require.NoError(t, err)
	yVar, err := ds.AddVar(nodeYVar, netcdf.DOUBLE, []netcdf.Dim{nodeDim})
	require.NoError(t, err)
	tVar, err := ds.AddVar(timeVar, netcdf.DOUBLE, []netcdf.Dim{timeDim})
	require.NoError(t, err)
	require.NoError(t, tVar.Attr("units").WriteBytes([]byte("seconds since 2022-09-03 00:00:00")))
	eVar, err := ds.AddVar(elevationVar, netcdf.FLOAT, []netcdf.Dim{timeDim, nodeDim})
	require.NoError(t, err)

	require.NoError(t, xVar.WriteFloat64s([]float64{90, 91}))
	require.NoError(t, yVar.WriteFloat64s([]float64{21, 22}))
	require.NoError(t, tVar.WriteFloat64s([]float64{0, 3600, 7200}))
	require.NoError(t, eVar.WriteFloat32s([]float32{0.1, 1, 0.2, 9.96921e36, 0.3, 3}))
}

func TestOpenAndReadElevation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out2d_1.nc")
	writeStack(t, path)

	f, err := Open(path, time.Time{})
	require.NoError(t, err)
	defer f.Close()

	x, y := f.Nodes()
	assert.Equal(t, []float64{90, 91}, x)
	assert.Equal(t, []float64{21, 22}, y)
	times := f.Times()
	require.Len(t, times, 3)
	assert.Equal(t, time.Date(2022, 9, 3, 2, 0, 0, 0, time.UTC), times[2])

	elev, err := f.Elevation(1)
	require.NoError(t, err)
	require.Len(t, elev, 3)
	assert.InDelta(t, 1.0, elev[0], 1e-6)
	assert.True(t, math.IsNaN(elev[1]))
	assert.InDelta(t, 3.0, elev[2], 1e-6)

	_, err = f.Elevation(2)
	assert.Error(t, err)
}
