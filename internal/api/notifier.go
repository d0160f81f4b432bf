package api

import (
	"context"
	"fmt"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/abelzeko/surgecast/internal/usecases"
)

// TelegramNotifier posts messages to one chat
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	prefix string
}

// NewTelegramNotifier creates a notifier for the chat; prefix is put in front
// of every message, usually the producer name
func NewTelegramNotifier(botToken string, chatID int64, prefix string) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %v", err)
	}
	return &TelegramNotifier{bot: bot, chatID: chatID, prefix: prefix}, nil
}

// Notify sends text to the configured chat
func (n *TelegramNotifier) Notify(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.prefix != "" {
		text = fmt.Sprintf("[%s] %s", n.prefix, text)
	}
	if _, err := n.bot.Send(tgbotapi.NewMessage(n.chatID, text)); err != nil {
		return fmt.Errorf("failed to send notification: %v", err)
	}
	return nil
}

// LogNotifier writes messages to the log when no chat is configured
type LogNotifier struct{}

// Notify logs text
func (LogNotifier) Notify(ctx context.Context, text string) error {
	log.Printf("Notification: %s", text)
	return nil
}

// NewNotifier returns a Telegram notifier when token and chat are set, a LogNotifier otherwise
func NewNotifier(botToken string, chatID int64, prefix string) usecases.Notifier {
	if botToken == "" || chatID == 0 {
		log.Println("Telegram notifications not configured, logging them instead")
		return LogNotifier{}
	}
	n, err := NewTelegramNotifier(botToken, chatID, prefix)
	if err != nil {
		log.Printf("Warning: %v, logging notifications instead", err)
		return LogNotifier{}
	}
	return n
}
