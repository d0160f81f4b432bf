package api

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/abelzeko/surgecast/internal/entities"
	"github.com/abelzeko/surgecast/internal/repository"
)

type fakeQueries struct {
	report     *entities.StatusReport
	recs       []entities.CycleRecord
	files      []entities.ForcingFile
	lastUpdate time.Time
	err        error
}

func (f *fakeQueries) BuildStatusReport() (*entities.StatusReport, error) {
	if f.report == nil {
		return nil, repository.ErrCycleNotFound
	}
	return f.report, nil
}

func (f *fakeQueries) GetCycleStatus(cycle string) (*entities.CycleRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.recs {
		if f.recs[i].Cycle == cycle {
			return &f.recs[i], nil
		}
	}
	return nil, repository.ErrCycleNotFound
}

func (f *fakeQueries) ListRecentCycles(limit int) ([]entities.CycleRecord, error) {
	return f.recs, f.err
}

func (f *fakeQueries) ListForcingFiles() ([]entities.ForcingFile, error) {
	return f.files, f.err
}

func (f *fakeQueries) GetLastUpdateTime() (time.Time, error) {
	return f.lastUpdate, f.err
}

func (f *fakeQueries) HandleNaturalLanguageQuery(ctx context.Context, query string) (string, error) {
	return "echo: " + query, nil
}

func TestHandleCommand(t *testing.T) {
	updated := time.Date(2022, 9, 5, 11, 0, 0, 0, time.UTC)
	q := &fakeQueries{
		report: &entities.StatusReport{
			Cycle: "2022090506", Status: entities.StatusOngoing, LastUpdate: "2022-09-05 11:00:00",
			LastForecast: entities.LastForecast{Date: "2022-09-05", Cycle: "00"},
		},
		recs: []entities.CycleRecord{
			{Cycle: "2022090506", Status: entities.StatusOngoing, UpdatedAt: updated, StartedAt: updated},
			{Cycle: "2022090500", Status: entities.StatusPublished, UpdatedAt: updated, StartedAt: updated},
		},
		files: []entities.ForcingFile{
			{Cycle: "2022090500", DownloadedAt: updated.Add(-6 * time.Hour)},
			{Cycle: "2022090506", DownloadedAt: updated.Add(-time.Hour)},
		},
		lastUpdate: updated,
	}

	assert.Contains(t, HandleCommand(q, "start", ""), "Welcome")
	assert.Equal(t, helpText, HandleCommand(q, "help", ""))
	assert.Equal(t, "Current cycle 2022090506 is ongoing (updated 2022-09-05 11:00:00 UTC)\n"+
		"Last published forecast: 2022-09-05 00Z\n"+
		"GFS cycles on disk: 2 (latest 2022090506, downloaded 2022-09-05 10:00:00 UTC)", HandleCommand(q, "status", ""))
	cycles := HandleCommand(q, "cycles", "")
	assert.Contains(t, cycles, "• 2022090500  published")
	assert.Contains(t, cycles, "🕒 Last update: 2022-09-05 11:00:00 UTC")
	assert.Contains(t, HandleCommand(q, "cycle", " 2022090500 "), "Cycle 2022090500: published")
	assert.Contains(t, HandleCommand(q, "cycle", "2021010100"), "No record of cycle 2021010100")
	assert.Contains(t, HandleCommand(q, "cycle", ""), "Please specify")
	assert.Contains(t, HandleCommand(q, "rivers", ""), "Unknown command")

	assert.Equal(t, "No forecast cycle has run yet.", HandleCommand(&fakeQueries{}, "status", ""))
	assert.NotContains(t, HandleCommand(&fakeQueries{}, "cycles", ""), "Last update")

	broken := &fakeQueries{err: errors.New("disk full")}
	assert.Contains(t, HandleCommand(broken, "cycles", ""), "Error fetching forecast cycles")
}

func TestNewNotifierFallsBackToLog(t *testing.T) {
	n := NewNotifier("", 0, "tester")
	_, ok := n.(LogNotifier)
	assert.True(t, ok)
	assert.NoError(t, n.Notify(context.Background(), "hello"))
}
