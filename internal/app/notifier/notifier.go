// Package notifier собирает приложение доставки уведомлений: потребитель
// очереди событий и отправка сообщений в Telegram.
package notifier

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/ai-navigator/club-bot/internal/config"
	"github.com/ai-navigator/club-bot/internal/lib/rabbitmq"
	senderservice "github.com/ai-navigator/club-bot/internal/services/sender"
	"github.com/ai-navigator/club-bot/internal/telegram"
)

type App struct {
	conn          *amqp.Connection
	ch            *amqp.Channel
	senderService *senderservice.SenderService
	logger        *slog.Logger
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetNotificationQueues())
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}

	tgClient, err := telegram.NewClient(cfg.TelegramToken)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to init telegram client: %w", err)
	}
	senderService := senderservice.NewSenderService(tgClient, cfg.OperatorIDs, cfg.Plans.List(), logger)

	return &App{
		conn:          conn,
		ch:            ch,
		senderService: senderService,
		logger:        logger,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	err := rabbitmq.ConsumerMessage(ctx, a.ch, rabbitmq.NotificationEventsQueue, a.senderService.HandleEvent)
	if err != nil {
		a.logger.Error("failed to start notification events consumer", slog.Any("err", err))
		return err
	}

	<-ctx.Done()
	a.logger.Info("notifier shutting down gracefully")

	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", slog.Any("err", err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", slog.Any("err", err))
	}
	return nil
}
