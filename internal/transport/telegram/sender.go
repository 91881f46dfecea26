// Package telegram presents delivered items as Telegram messages.
package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender sends messages to Telegram.
type Sender interface {
	SendHTML(ctx context.Context, chatID int64, htmlText string) (int, error)
}

// BotSender implements Sender using tgbotapi.
type BotSender struct {
	api *tgbotapi.BotAPI
}

// NewBotSender connects to the Bot API with token.
func NewBotSender(token string) (*BotSender, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &BotSender{api: api}, nil
}

// SendHTML sends an HTML-formatted message.
func (s *BotSender) SendHTML(_ context.Context, chatID int64, htmlText string) (int, error) {
	msg := tgbotapi.NewMessage(chatID, htmlText)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	resp, err := s.api.Send(msg)
	if err != nil {
		return 0, err
	}
	return resp.MessageID, nil
}
