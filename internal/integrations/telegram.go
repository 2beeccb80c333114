package integrations

import (
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramClient sends HTML messages through the Bot API.
type TelegramClient struct {
	bot *tgbotapi.BotAPI
}

// NewTelegramClient creates telegram client. endpoint is a Bot API URL
// format with placeholders for the token and the method; empty means the
// public API. The bot identity is checked once with getMe.
func NewTelegramClient(token, endpoint string, client *http.Client) (*TelegramClient, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is empty")
	}
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram getMe: %w", err)
	}
	return &TelegramClient{bot: bot}, nil
}

// Username returns the bot username reported by getMe.
func (t *TelegramClient) Username() string {
	return t.bot.Self.UserName
}

// SendMessage sends an HTML text message.
func (t *TelegramClient) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram sendMessage: %w", err)
	}
	return nil
}

// SendPhoto sends a photo by URL with an HTML caption.
func (t *TelegramClient) SendPhoto(chatID int64, photoURL, caption string) error {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(photoURL))
	photo.Caption = caption
	photo.ParseMode = tgbotapi.ModeHTML
	if _, err := t.bot.Send(photo); err != nil {
		return fmt.Errorf("telegram sendPhoto: %w", err)
	}
	return nil
}
