//go:build !netcdf

package app

import "github.com/abelzeko/surgecast/internal/usecases"

// outputOpener is nil without the netcdf tag; publishing then lists the
// stations without extracting their series
var outputOpener usecases.OutputOpener
