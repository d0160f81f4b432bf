// Package usecases contains the forecast pipeline and the queries served to the bot
package usecases

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/abelzeko/surgecast/internal/config"
	"github.com/abelzeko/surgecast/internal/entities"
	"github.com/abelzeko/surgecast/internal/forcing"
	"github.com/abelzeko/surgecast/internal/grid"
	"github.com/abelzeko/surgecast/internal/integration/openai"
	"github.com/abelzeko/surgecast/internal/post"
	"github.com/abelzeko/surgecast/internal/repository"
	"github.com/abelzeko/surgecast/internal/schism"
	"github.com/abelzeko/surgecast/internal/sflux"
	"github.com/abelzeko/surgecast/internal/version"
)

const (
	// CycleLogFile is written in every prepared cycle directory
	CycleLogFile = "surgecast.log"
	// SfluxDir holds the atmospheric forcing inside a cycle directory
	SfluxDir   = "sflux"
	StatusFile = "status.json"
)

// GFSClient finds and downloads atmospheric forecast cycles
type GFSClient interface {
	Check(ctx context.Context) ([]entities.SourceCycle, error)
	Last() (entities.SourceCycle, bool)
	DownloadRemaining(ctx context.Context, extent entities.Extent) ([]entities.ForcingFile, error)
}

// Notifier delivers short status messages to operators
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// OutputFile is an open solver output stack
type OutputFile interface {
	post.Output
	Close() error
}

// OutputOpener opens the output stack at path; start is the model start time
type OutputOpener func(path string, start time.Time) (OutputFile, error)

// ModelRunner launches the solver
type ModelRunner func(ctx context.Context, opts schism.RunOptions) error

// ForecastUseCase runs the per-cycle pipeline
type ForecastUseCase struct {
	cfg           *config.Config
	repo          repository.CycleRepository
	gfs           GFSClient
	notifier      Notifier
	openAIService openai.OpenAIService
	openOutput    OutputOpener
	runModel      ModelRunner
	now           func() time.Time
}

// Option customizes a ForecastUseCase
type Option func(*ForecastUseCase)

// WithOpenAI enables free-text queries
func WithOpenAI(s openai.OpenAIService) Option {
	return func(uc *ForecastUseCase) { uc.openAIService = s }
}

// WithOutputOpener enables station extraction when publishing
func WithOutputOpener(open OutputOpener) Option {
	return func(uc *ForecastUseCase) { uc.openOutput = open }
}

// WithModelRunner replaces the MPI solver launch
func WithModelRunner(run ModelRunner) Option {
	return func(uc *ForecastUseCase) { uc.runModel = run }
}

// WithClock replaces time.Now for status timestamps
func WithClock(now func() time.Time) Option {
	return func(uc *ForecastUseCase) { uc.now = now }
}

// NewForecastUseCase creates the pipeline. gfs and notifier may be nil for
// commands that neither download nor notify.
func NewForecastUseCase(cfg *config.Config, repo repository.CycleRepository, gfs GFSClient, notifier Notifier, opts ...Option) *ForecastUseCase {
	uc := &ForecastUseCase{
		cfg:      cfg,
		repo:     repo,
		gfs:      gfs,
		notifier: notifier,
		runModel: schism.RunModel,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Window returns the simulated period of a cycle
func (uc *ForecastUseCase) Window(cycle entities.Cycle) entities.CycleWindow {
	return entities.InitCycle(cycle, uc.cfg.Forecast)
}

// openCycleLog returns a logger writing to stdout and the cycle log file
func openCycleLog(dir string) (*log.Logger, func(), error) {
	f, err := os.OpenFile(filepath.Join(dir, CycleLogFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open cycle log: %v", err)
	}
	logger := log.New(io.MultiWriter(os.Stdout, f), "", log.Ldate|log.Ltime|log.Lshortfile)
	return logger, func() { f.Close() }, nil
}

// PrepareCycle writes every model input of a cycle into its directory
func (uc *ForecastUseCase) PrepareCycle(ctx context.Context, cycle entities.Cycle) error {
	window := uc.Window(cycle)
	dir := uc.cfg.CycleDir(cycle)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create cycle directory: %v", err)
	}
	logger, closeLog, err := openCycleLog(dir)
	if err != nil {
		return err
	}
	defer closeLog()

	logger.Printf("Preparing cycle %s: %s to %s (%.2f days) in %s", cycle,
		window.Start.Format(time.RFC3339), window.End.Format(time.RFC3339), window.RunDays(), dir)

	if err := uc.writeSflux(ctx, dir, window, logger); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	in := schism.NewTidefacInput(window)
	if _, err := schism.WriteTidefacInput(dir, in); err != nil {
		return err
	}
	configDir := uc.cfg.Paths.Config
	logger.Printf("Updating %s with %s", schism.BctidesFile, uc.cfg.Model.Tidefac)
	if err := schism.UpdateBctides(ctx, uc.cfg.Model.Tidefac, filepath.Join(configDir, uc.cfg.Model.BctidesTemplate), dir); err != nil {
		return fmt.Errorf("failed to update bctides: %w", err)
	}

	if _, err := schism.WriteClimaticDischarge(uc.cfg.Discharge.File, in, uc.cfg.Discharge.Boundaries, dir); err != nil {
		return fmt.Errorf("failed to write discharge: %w", err)
	}

	wave := uc.cfg.Model.Wave
	param := filepath.Join(dir, schism.ParamFile)
	if err := schism.WriteParam(in, filepath.Join(configDir, uc.cfg.Model.ParamTemplate), param, wave); err != nil {
		return fmt.Errorf("failed to write %s: %w", schism.ParamFile, err)
	}
	if wave {
		wwm := filepath.Join(dir, schism.WWMInputFile)
		if err := schism.WriteWWMInput(param, filepath.Join(configDir, uc.cfg.Model.WWMTemplate), wwm); err != nil {
			return fmt.Errorf("failed to write %s: %w", schism.WWMInputFile, err)
		}
	}

	if err := schism.CopyStatic(configDir, dir, wave); err != nil {
		return err
	}
	if err := schism.TemplateScripts(uc.cfg.Paths.Scripts, uc.cfg.Model.Scripts, dir); err != nil {
		return err
	}

	logger.Printf("Cycle %s prepared", cycle)
	return nil
}

func (uc *ForecastUseCase) writeSflux(ctx context.Context, dir string, window entities.CycleWindow, logger *log.Logger) error {
	entries, err := forcing.Scan(uc.cfg.Paths.GFS, uc.cfg.Source.Prefix, uc.cfg.Forcing.SourceLengthDays)
	if err != nil {
		return err
	}
	sel, err := forcing.Select(entries, window, forcing.SelectOptions{
		CycleStep:        uc.cfg.Forecast.CycleStep,
		BufferCycles:     uc.cfg.Forcing.BufferCycles,
		SourceLengthDays: uc.cfg.Forcing.SourceLengthDays,
	})
	if err != nil {
		return err
	}
	logger.Printf("Using %d GFS cycles from %s to %s", len(sel.Files), sel.Files[0].Cycle, sel.Files[len(sel.Files)-1].Cycle)

	comp, err := forcing.OpenComposite(sel.Files)
	if err != nil {
		return err
	}
	defer comp.Close()

	opts := sflux.Options{
		Step:        uc.cfg.Sflux.Step,
		NStep:       uc.cfg.Sflux.NStep,
		BufferSteps: uc.cfg.Sflux.BufferSteps,
		BaseDate:    uc.cfg.Sflux.BaseDate,
	}
	if uc.cfg.Sflux.Resolution > 0 {
		target, err := grid.NewRegularGrid(uc.cfg.Sflux.Extent, uc.cfg.Sflux.Resolution)
		if err != nil {
			return fmt.Errorf("invalid sflux grid: %w", err)
		}
		opts.Target = &target
	}

	files, err := sflux.Generate(ctx, filepath.Join(dir, SfluxDir), comp, sel.SfluxStart, window.End, opts)
	if err != nil {
		return fmt.Errorf("failed to write sflux: %w", err)
	}
	logger.Printf("Wrote %d sflux files", len(files))
	return nil
}

// RunCycle launches the solver for a prepared cycle and records the outcome
func (uc *ForecastUseCase) RunCycle(ctx context.Context, cycle entities.Cycle) error {
	runID := uuid.NewString()
	if err := uc.setStatus(cycle, entities.StatusOngoing, runID, "model run started"); err != nil {
		return err
	}
	if err := uc.runCycle(ctx, cycle, runID); err != nil {
		uc.failCycle(ctx, cycle, runID, err)
		return err
	}
	return nil
}

func (uc *ForecastUseCase) runCycle(ctx context.Context, cycle entities.Cycle, runID string) error {
	opts := schism.RunOptions{
		Dir:     uc.cfg.CycleDir(cycle),
		MPIRun:  uc.cfg.Model.MPIRun,
		NCPU:    uc.cfg.Model.NCPU,
		Solver:  uc.cfg.Model.Solver,
		NScribe: uc.cfg.Model.NScribe,
	}
	log.Printf("Running cycle %s (run %s)", cycle, runID)
	if err := uc.runModel(ctx, opts); err != nil {
		return err
	}
	return uc.setStatus(cycle, entities.StatusDone, runID, "model run finished")
}

// PublishCycle writes the station series and manifest of a finished cycle
// and marks it published. Operators are only notified when the cycle is newer
// than the previously published one.
func (uc *ForecastUseCase) PublishCycle(ctx context.Context, cycle entities.Cycle) error {
	dir := uc.cfg.CycleDir(cycle)
	outPath, err := post.CheckOutput(dir)
	if err != nil {
		return err
	}

	stations, err := uc.stationSeries(dir, outPath, uc.Window(cycle))
	if err != nil {
		return err
	}

	manifest := post.BuildManifest(cycle, uc.cfg.Producer, version.Version, stations, uc.now())
	if err := post.WriteJSON(filepath.Join(dir, post.ManifestFile), manifest); err != nil {
		return err
	}

	previous, err := uc.repo.GetLastCycle(entities.StatusPublished)
	newer := true
	switch {
	case err == nil:
		last, perr := entities.ParseCycle(previous.Cycle)
		if perr != nil {
			return fmt.Errorf("invalid published cycle %q: %w", previous.Cycle, perr)
		}
		newer = cycle.After(last)
	case !errors.Is(err, repository.ErrCycleNotFound):
		return fmt.Errorf("failed to read last published cycle: %w", err)
	}

	if err := uc.setStatus(cycle, entities.StatusPublished, "", "published"); err != nil {
		return err
	}
	if err := uc.WriteStatusFile(); err != nil {
		return err
	}

	if !newer {
		log.Printf("Cycle %s is older than published cycle %s, not announcing", cycle, previous.Cycle)
		return nil
	}
	uc.notify(ctx, fmt.Sprintf("Forecast %s published by %s (%d stations)", cycle, uc.cfg.Producer, len(stations)))
	return nil
}

func (uc *ForecastUseCase) stationSeries(dir, outPath string, window entities.CycleWindow) ([]entities.Station, error) {
	stations, err := schism.ReadStations(filepath.Join(dir, schism.StationFile))
	if err != nil {
		return nil, err
	}
	if uc.openOutput == nil {
		log.Printf("No output reader configured, publishing %d stations without series", len(stations))
		return stations, nil
	}

	out, err := uc.openOutput(outPath, window.Start)
	if err != nil {
		return nil, err
	}
	defer out.Close()

	series, err := post.ExtractStations(out, stations)
	if err != nil {
		return nil, err
	}
	return post.WriteStationSeries(dir, series)
}

// ProcessLatest is one iteration of the forecast loop: download new GFS
// cycles and, when one arrived, prepare, run and publish the matching model cycle
func (uc *ForecastUseCase) ProcessLatest(ctx context.Context) error {
	remaining, err := uc.gfs.Check(ctx)
	if err != nil {
		return fmt.Errorf("failed to check GFS cycles: %w", err)
	}
	if len(remaining) == 0 {
		log.Println("No new GFS cycle available")
		return nil
	}
	last, ok := uc.gfs.Last()
	if !ok {
		return nil
	}
	cycle := entities.NewCycle(last.InitTime)

	if rec, err := uc.repo.GetCycle(cycle.String()); err == nil &&
		(rec.Status == entities.StatusDone || rec.Status == entities.StatusPublished) {
		log.Printf("Cycle %s already %s, downloading only", cycle, rec.Status)
		return uc.download(ctx)
	}

	runID := uuid.NewString()
	if err := uc.setStatus(cycle, entities.StatusOngoing, runID, "new GFS cycle"); err != nil {
		return err
	}
	if err := uc.WriteStatusFile(); err != nil {
		log.Printf("Warning: %v", err)
	}
	uc.notify(ctx, fmt.Sprintf("Starting forecast cycle %s", cycle))

	if err := uc.process(ctx, cycle, runID); err != nil {
		uc.failCycle(ctx, cycle, runID, err)
		return err
	}
	return nil
}

func (uc *ForecastUseCase) process(ctx context.Context, cycle entities.Cycle, runID string) error {
	if err := uc.download(ctx); err != nil {
		return err
	}
	if err := uc.PrepareCycle(ctx, cycle); err != nil {
		return err
	}
	if err := uc.runCycle(ctx, cycle, runID); err != nil {
		return err
	}
	if !uc.cfg.Publish {
		return uc.WriteStatusFile()
	}
	return uc.PublishCycle(ctx, cycle)
}

func (uc *ForecastUseCase) download(ctx context.Context) error {
	files, err := uc.gfs.DownloadRemaining(ctx, uc.cfg.Source.Extent)
	if len(files) > 0 {
		if serr := uc.repo.SaveForcingFiles(files); serr != nil {
			log.Printf("Warning: %v", serr)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to download GFS cycles: %w", err)
	}
	return nil
}

// Fetch downloads the GFS cycles missing locally
func (uc *ForecastUseCase) Fetch(ctx context.Context) (int, error) {
	remaining, err := uc.gfs.Check(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to check GFS cycles: %w", err)
	}
	if len(remaining) == 0 {
		return 0, nil
	}
	if err := uc.download(ctx); err != nil {
		return 0, err
	}
	return len(remaining), nil
}

func (uc *ForecastUseCase) setStatus(cycle entities.Cycle, status entities.CycleStatus, runID, message string) error {
	return uc.repo.SaveCycleStatus(entities.CycleRecord{
		Cycle:     cycle.String(),
		Status:    status,
		Producer:  uc.cfg.Producer,
		RunID:     runID,
		Message:   message,
		UpdatedAt: uc.now().UTC(),
	})
}

// failCycle records a failure: logs/<cycle>.fatal, failed status, notification
func (uc *ForecastUseCase) failCycle(ctx context.Context, cycle entities.Cycle, runID string, cause error) {
	log.Printf("Cycle %s failed: %v", cycle, cause)

	if err := os.MkdirAll(uc.cfg.Paths.Logs, 0755); err != nil {
		log.Printf("Error creating log directory: %v", err)
	} else {
		fatal := filepath.Join(uc.cfg.Paths.Logs, cycle.String()+".fatal")
		if err := os.WriteFile(fatal, []byte(cause.Error()+"\n"), 0644); err != nil {
			log.Printf("Error writing %s: %v", fatal, err)
		}
	}

	if err := uc.setStatus(cycle, entities.StatusFailed, runID, cause.Error()); err != nil {
		log.Printf("Error saving failed status: %v", err)
	}
	if err := uc.WriteStatusFile(); err != nil {
		log.Printf("Error writing status file: %v", err)
	}
	uc.notify(ctx, fmt.Sprintf("Forecast cycle %s failed: %v", cycle, cause))
}

func (uc *ForecastUseCase) notify(ctx context.Context, text string) {
	if uc.notifier == nil {
		return
	}
	if err := uc.notifier.Notify(ctx, text); err != nil {
		log.Printf("Error sending notification: %v", err)
	}
}

// BuildStatusReport describes the newest cycle and the newest published forecast
func (uc *ForecastUseCase) BuildStatusReport() (*entities.StatusReport, error) {
	recent, err := uc.repo.ListCycles(1)
	if err != nil {
		return nil, err
	}
	if len(recent) == 0 {
		return nil, repository.ErrCycleNotFound
	}
	report := &entities.StatusReport{
		Cycle:      recent[0].Cycle,
		Producer:   recent[0].Producer,
		Status:     recent[0].Status,
		LastUpdate: recent[0].UpdatedAt.UTC().Format(entities.StatusTimeFormat),
	}

	published, err := uc.repo.GetLastCycle(entities.StatusPublished)
	switch {
	case err == nil:
		c, perr := entities.ParseCycle(published.Cycle)
		if perr != nil {
			return nil, perr
		}
		report.LastForecast = entities.LastForecast{Date: c.Date(), Cycle: c.Hour()}
	case !errors.Is(err, repository.ErrCycleNotFound):
		return nil, err
	}
	return report, nil
}

// WriteStatusFile writes status.json into the status directory
func (uc *ForecastUseCase) WriteStatusFile() error {
	report, err := uc.BuildStatusReport()
	if errors.Is(err, repository.ErrCycleNotFound) {
		log.Println("No cycle recorded yet, skipping status file")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to build status report: %w", err)
	}
	if err := os.MkdirAll(uc.cfg.Paths.Status, 0755); err != nil {
		return fmt.Errorf("failed to create status directory: %v", err)
	}
	return post.WriteJSON(filepath.Join(uc.cfg.Paths.Status, StatusFile), report)
}
