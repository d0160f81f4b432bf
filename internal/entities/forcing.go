package entities

import "time"

// SourceCycle is an upstream atmospheric forecast cycle available for download
type SourceCycle struct {
	ID          string
	URL         string
	InitTime    time.Time
	PublishedAt time.Time
}

// ForcingFile is a source cycle stored on disk
type ForcingFile struct {
	Cycle        string
	Path         string
	Size         int64
	DownloadedAt time.Time
}

// Extent is a lon/lat bounding box [lonMin, lonMax, latMin, latMax]
type Extent [4]float64

func (e Extent) LonMin() float64 { return e[0] }
func (e Extent) LonMax() float64 { return e[1] }
func (e Extent) LatMin() float64 { return e[2] }
func (e Extent) LatMax() float64 { return e[3] }
