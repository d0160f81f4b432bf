package entities

// Station is an output location read from station.in
type Station struct {
	ID   int     `json:"id"`
	Name string  `json:"name"`
	Lon  float64 `json:"lon"`
	Lat  float64 `json:"lat"`

	// Set after post-processing, relative to the layer source directory
	CSV  string  `json:"csv,omitempty"`
	Plot string  `json:"plot,omitempty"`
	Max  float64 `json:"max"`
	Min  float64 `json:"min"`
}

// ManifestLayer describes one published output layer
type ManifestLayer struct {
	Name     string    `json:"name"`
	Type     string    `json:"type"`
	Stations []Station `json:"stations,omitempty"`
}

// ManifestProduct groups layers of one forecast variable
type ManifestProduct struct {
	Name   string          `json:"name"`
	Src    string          `json:"src"`
	Layers []ManifestLayer `json:"layers"`
}

// Manifest is the content of manifest.json in a published cycle directory
type Manifest struct {
	Cycle      string                     `json:"cycle"`
	Date       string                     `json:"date"`
	LastUpdate string                     `json:"lastupdate"`
	Producer   string                     `json:"producer"`
	Version    string                     `json:"version"`
	Forecasts  map[string]ManifestProduct `json:"forecasts"`
}
