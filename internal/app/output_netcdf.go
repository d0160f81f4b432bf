//go:build netcdf

package app

import (
	"time"

	"github.com/abelzeko/surgecast/internal/post/out2d"
	"github.com/abelzeko/surgecast/internal/usecases"
)

var outputOpener usecases.OutputOpener = openOut2D

func openOut2D(path string, start time.Time) (usecases.OutputFile, error) {
	f, err := out2d.Open(path, start)
	if err != nil {
		return nil, err
	}
	return f, nil
}
