package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/abelzeko/surgecast/internal/api"
	"github.com/abelzeko/surgecast/internal/app"
)

func main() {
	configPath := flag.String("config", "", "path to the HCL configuration file")
	flag.Parse()

	app.SetupLogging(os.Stdout)
	log.Println("Starting surge forecast bot...")

	cfg, err := app.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Telegram.Token == "" {
		log.Fatal("TELEGRAM_BOT_TOKEN environment variable is not set")
	}
	if cfg.OpenAIKey == "" {
		log.Println("OPENAI_API_KEY is not set, free-text questions are disabled")
	}

	surge, err := app.New(cfg, true)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer surge.Close()

	telegramBot, err := api.NewTelegramBot(cfg.Telegram.Token, surge.UseCase)
	if err != nil {
		log.Fatalf("Failed to initialize Telegram bot: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telegramBot.Start(ctx)
}
