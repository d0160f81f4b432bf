// Package api provides handlers for external APIs and interfaces
package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/abelzeko/surgecast/internal/entities"
	"github.com/abelzeko/surgecast/internal/repository"
	"github.com/abelzeko/surgecast/internal/usecases"
)

// CycleQueries is what the bot asks of the forecast pipeline
type CycleQueries interface {
	BuildStatusReport() (*entities.StatusReport, error)
	GetCycleStatus(cycle string) (*entities.CycleRecord, error)
	ListRecentCycles(limit int) ([]entities.CycleRecord, error)
	ListForcingFiles() ([]entities.ForcingFile, error)
	GetLastUpdateTime() (time.Time, error)
	HandleNaturalLanguageQuery(ctx context.Context, query string) (string, error)
}

// TelegramBot handles interactions with the Telegram API
type TelegramBot struct {
	bot     *tgbotapi.BotAPI
	useCase CycleQueries
}

// NewTelegramBot creates a new Telegram bot handler
func NewTelegramBot(botToken string, useCase CycleQueries) (*TelegramBot, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %v", err)
	}

	return &TelegramBot{
		bot:     bot,
		useCase: useCase,
	}, nil
}

// Start begins listening for and handling Telegram messages until ctx is done
func (t *TelegramBot) Start(ctx context.Context) {
	log.Printf("Authorized on Telegram account %s", t.bot.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := t.bot.GetUpdatesChan(u)
	log.Println("Bot is now listening for messages...")

	for {
		select {
		case <-ctx.Done():
			t.bot.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil {
				continue
			}
			log.Printf("Received message from %s (ID: %d): %s",
				update.Message.From.UserName,
				update.Message.From.ID,
				update.Message.Text)

			t.handleMessage(ctx, update)
		}
	}
}

func (t *TelegramBot) handleMessage(ctx context.Context, update tgbotapi.Update) {
	msg := tgbotapi.NewMessage(update.Message.Chat.ID, "")

	if update.Message.IsCommand() {
		msg.Text = HandleCommand(t.useCase, update.Message.Command(), update.Message.CommandArguments())
	} else {
		msg.Text = t.handleNonCommand(ctx, update.Message.Text)
	}

	log.Printf("Sending response to user %s", update.Message.From.UserName)
	if _, err := t.bot.Send(msg); err != nil {
		log.Printf("Error sending message: %v", err)
	}
}

const helpText = "Available commands:\n" +
	"/start - Start the bot\n" +
	"/status - Show the current forecast status\n" +
	"/cycles - List recent forecast cycles\n" +
	"/cycle YYYYMMDDHH - Show one forecast cycle\n" +
	"/help - Show this help message"

// HandleCommand returns the reply to a bot command
func HandleCommand(uc CycleQueries, command, args string) string {
	switch command {
	case "start":
		return "Welcome to the storm surge forecast bot! Use /status for the latest forecast or /help for more information."

	case "help":
		return helpText

	case "status":
		report, err := uc.BuildStatusReport()
		if errors.Is(err, repository.ErrCycleNotFound) {
			return "No forecast cycle has run yet."
		}
		if err != nil {
			log.Printf("Error building status report: %v", err)
			return "Error fetching forecast status. Please try again later."
		}
		text := usecases.FormatStatusReport(report)
		if files, err := uc.ListForcingFiles(); err != nil {
			log.Printf("Error listing forcing files: %v", err)
		} else {
			text += "\n" + usecases.FormatForcingSummary(files)
		}
		return text

	case "cycles":
		recs, err := uc.ListRecentCycles(10)
		if err != nil {
			log.Printf("Error listing cycles: %v", err)
			return "Error fetching forecast cycles. Please try again later."
		}
		text := usecases.FormatCycleList(recs)
		if lastUpdate, err := uc.GetLastUpdateTime(); err == nil && !lastUpdate.IsZero() {
			text += fmt.Sprintf("\n🕒 Last update: %s UTC", lastUpdate.UTC().Format(entities.StatusTimeFormat))
		}
		return text

	case "cycle":
		args = strings.TrimSpace(args)
		if args == "" {
			return "Please specify a cycle. Example: /cycle 2022090506"
		}
		rec, err := uc.GetCycleStatus(args)
		if errors.Is(err, repository.ErrCycleNotFound) {
			return fmt.Sprintf("No record of cycle %s. Use /cycles to see recent ones.", args)
		}
		if err != nil {
			log.Printf("Error fetching cycle %q: %v", args, err)
			return fmt.Sprintf("Could not read cycle %q: %v", args, err)
		}
		return usecases.FormatCycleRecord(rec)

	default:
		log.Printf("Received unknown command /%s", command)
		return "Unknown command. Use /help to see available commands."
	}
}

func (t *TelegramBot) handleNonCommand(ctx context.Context, text string) string {
	reply, err := t.useCase.HandleNaturalLanguageQuery(ctx, text)
	if err != nil || reply == "" {
		log.Printf("Error handling free-text message: %v", err)
		return "I don't understand. Use /help to see available commands."
	}
	return reply
}
