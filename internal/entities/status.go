package entities

import "time"

// CycleStatus is the lifecycle state of a forecast cycle
type CycleStatus string

const (
	StatusOngoing   CycleStatus = "ongoing"
	StatusFailed    CycleStatus = "failed"
	StatusDone      CycleStatus = "done"
	StatusPublished CycleStatus = "published"
)

// Valid reports whether s is one of the known states
func (s CycleStatus) Valid() bool {
	switch s {
	case StatusOngoing, StatusFailed, StatusDone, StatusPublished:
		return true
	}
	return false
}

// StatusTimeFormat is used for every human readable timestamp in status and manifest files
const StatusTimeFormat = "2006-01-02 15:04:05"

// CycleRecord is the persisted state of one cycle
type CycleRecord struct {
	ID        int64
	Cycle     string
	Status    CycleStatus
	Producer  string
	RunID     string
	Message   string
	StartedAt time.Time
	UpdatedAt time.Time
}

// LastForecast identifies the most recent published forecast
type LastForecast struct {
	Date  string `json:"date"`
	Cycle string `json:"cycle"`
}

// StatusReport is the content of status.json
type StatusReport struct {
	Cycle        string       `json:"cycle"`
	Producer     string       `json:"producer"`
	Status       CycleStatus  `json:"status"`
	LastUpdate   string       `json:"lastupdate"`
	LastForecast LastForecast `json:"lastforecast"`
}
