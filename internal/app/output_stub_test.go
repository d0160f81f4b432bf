//go:build !netcdf

package app

import "testing"

func TestNoOutputReaderWithoutNetCDF(t *testing.T) {
	if outputOpener != nil {
		t.Fatal("expected no output reader without the netcdf build tag")
	}
}
