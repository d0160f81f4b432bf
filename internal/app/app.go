// Package app wires the configuration, storage and integrations into a forecast use case
package app

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/abelzeko/surgecast/internal/api"
	"github.com/abelzeko/surgecast/internal/config"
	"github.com/abelzeko/surgecast/internal/integration/gfs"
	"github.com/abelzeko/surgecast/internal/integration/openai"
	"github.com/abelzeko/surgecast/internal/repository"
	"github.com/abelzeko/surgecast/internal/usecases"
)

// App holds the long-lived pieces shared by the binaries
type App struct {
	Config  *config.Config
	Repo    repository.CycleRepository
	GFS     *gfs.Client
	UseCase *usecases.ForecastUseCase
}

// SetupLogging configures the standard logger the same way for every binary
func SetupLogging(w io.Writer) {
	log.SetOutput(w)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
}

// LoadConfig reads the HCL file at path, or the defaults when path is empty
func LoadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = os.Getenv("SURGECAST_CONFIG")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %v", err)
	}
	return cfg, nil
}

// New opens the cycle database and builds the use case
func New(cfg *config.Config, withAI bool) (*App, error) {
	for _, dir := range []string{cfg.Paths.GFS, cfg.Paths.Forecasts, cfg.Paths.Logs, cfg.Paths.Status} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %v", dir, err)
		}
	}

	repo, err := repository.NewSQLiteCycleRepository(cfg.Paths.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize repository: %v", err)
	}

	client := gfs.NewClient(cfg.Source, cfg.Paths.GFS, cfg.Forcing.SourceLengthDays)
	notifier := api.NewNotifier(cfg.Telegram.Token, cfg.Telegram.ChatID, cfg.Producer)

	var opts []usecases.Option
	if outputOpener != nil {
		opts = append(opts, usecases.WithOutputOpener(outputOpener))
	} else {
		log.Println("Built without netcdf support, station series will not be extracted")
	}
	if withAI && cfg.OpenAIKey != "" {
		service, err := openai.NewOpenAIService(cfg.OpenAIKey)
		if err != nil {
			repo.Close()
			return nil, fmt.Errorf("failed to initialize OpenAI service: %v", err)
		}
		opts = append(opts, usecases.WithOpenAI(service))
	}

	return &App{
		Config:  cfg,
		Repo:    repo,
		GFS:     client,
		UseCase: usecases.NewForecastUseCase(cfg, repo, client, notifier, opts...),
	}, nil
}

// Close releases the database
func (a *App) Close() error {
	return a.Repo.Close()
}
