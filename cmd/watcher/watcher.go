package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/abelzeko/surgecast/internal/app"
	"github.com/robfig/cron/v3"
)

// guardedJob skips a tick while the previous one is still running
func guardedJob(ctx context.Context, name string, fn func(context.Context) error) func() {
	var mu sync.Mutex
	return func() {
		if !mu.TryLock() {
			log.Printf("%s still running, skipping this tick", name)
			return
		}
		defer mu.Unlock()
		if err := fn(ctx); err != nil {
			log.Printf("%s failed: %v", name, err)
		}
	}
}

func schedule(c *cron.Cron, expr string, job func()) error {
	if _, err := c.AddFunc(expr, job); err != nil {
		return fmt.Errorf("failed to set up cron job %q: %v", expr, err)
	}
	return nil
}

func main() {
	configPath := flag.String("config", "", "path to the HCL configuration file")
	flag.Parse()

	app.SetupLogging(os.Stdout)
	log.Println("Starting surge forecast watcher...")

	cfg, err := app.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	surge, err := app.New(cfg, false)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer surge.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	job := guardedJob(ctx, "Forecast check", surge.UseCase.ProcessLatest)

	// Run once on startup
	job()

	c := cron.New()
	if err := schedule(c, cfg.Schedule, job); err != nil {
		log.Fatalf("Failed to schedule watcher: %v", err)
	}

	log.Printf("Watcher scheduled with %q", cfg.Schedule)
	c.Start()

	<-ctx.Done()
	log.Println("Stopping watcher...")
	<-c.Stop().Done()
}
