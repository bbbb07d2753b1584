// Package services содержит диспетчер уведомлений: события жизненного
// цикла подписки уходят в RabbitMQ, доставкой занимается отдельный воркер.
// Публикация без гарантий: ошибка логируется и не возвращается вызывающему.
package services

import (
	"context"
	"log/slog"

	"github.com/ai-navigator/club-bot/internal/lib/rabbitmq"
	"github.com/ai-navigator/club-bot/internal/lib/sl"
	"github.com/ai-navigator/club-bot/internal/metrics"
	"github.com/ai-navigator/club-bot/internal/models"
)

// DispatcherService публикует события уведомлений в брокер.
type DispatcherService struct {
	ch  rabbitmq.Publisher
	log *slog.Logger
}

// NewDispatcherService создает новый экземпляр DispatcherService.
func NewDispatcherService(ch rabbitmq.Publisher, log *slog.Logger) *DispatcherService {
	return &DispatcherService{
		ch:  ch,
		log: log,
	}
}

// Publish отправляет событие в exchange уведомлений. Сбой публикации
// означает потерю уведомления, не ошибку операции, которая его породила.
func (d *DispatcherService) Publish(_ context.Context, event models.NotificationEvent) {
	err := rabbitmq.PublishMessage(d.ch, rabbitmq.NotificationsExchange, "event", event)
	if err != nil {
		metrics.NotificationsDropped.Inc()
		d.log.Error("failed to publish notification event",
			slog.String("type", event.Type),
			slog.Int64("user_id", event.UserID),
			sl.Err(err))
		return
	}
	d.log.Info("notification event published",
		slog.String("type", event.Type),
		slog.Int64("user_id", event.UserID))
}
