// Package telegram реализует транспорт чата: клиент отправки сообщений
// с ограничением частоты и цикл обработки входящих событий бота.
package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"
)

// Client — отправитель сообщений в Telegram. Bot API ограничивает общий
// темп рассылки примерно 30 сообщениями в секунду, поэтому все отправки
// идут через общий лимитер.
type Client struct {
	api     *tgbotapi.BotAPI
	limiter *rate.Limiter
}

// NewClient создаёт клиента Telegram Bot API.
func NewClient(token string) (*Client, error) {
	const op = "telegram.NewClient"
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Client{
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(25), 5),
	}, nil
}

// Send отправляет текстовое сообщение в чат.
func (c *Client) Send(ctx context.Context, chatID int64, text string) error {
	return c.SendWithMarkup(ctx, chatID, text, nil)
}

// SendWithMarkup отправляет сообщение с клавиатурой.
func (c *Client) SendWithMarkup(ctx context.Context, chatID int64, text string, markup any) error {
	const op = "telegram.Send"
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	if _, err := c.api.Send(msg); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// API отдаёт низкоуровневый клиент для цикла обновлений.
func (c *Client) API() *tgbotapi.BotAPI {
	return c.api
}
