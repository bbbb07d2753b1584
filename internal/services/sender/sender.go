// Package services содержит воркер доставки уведомлений: читает события из
// очереди, собирает тексты и рассылает их в Telegram пользователю и
// операторам. Доставка несрочная и без гарантий: сбой по одному получателю
// логируется и не мешает остальным, повторов нет.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ai-navigator/club-bot/internal/lib/sl"
	"github.com/ai-navigator/club-bot/internal/metrics"
	"github.com/ai-navigator/club-bot/internal/models"
)

// Transport отправляет одно сообщение в один чат.
type Transport interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// SenderService доставляет события уведомлений получателям.
type SenderService struct {
	transport   Transport
	operatorIDs []int64
	plans       map[string]models.Plan
	log         *slog.Logger
}

// NewSenderService создает новый экземпляр SenderService.
func NewSenderService(transport Transport, operatorIDs []int64, plans []models.Plan, log *slog.Logger) *SenderService {
	table := make(map[string]models.Plan, len(plans))
	for _, p := range plans {
		table[p.Key] = p
	}
	return &SenderService{
		transport:   transport,
		operatorIDs: operatorIDs,
		plans:       table,
		log:         log,
	}
}

// HandleEvent обрабатывает одно сообщение очереди. Всегда возвращает nil:
// недоставленное уведомление теряется, повторная доставка не нужна,
// а битое сообщение не должно зациклить очередь.
func (s *SenderService) HandleEvent(body []byte) error {
	var event models.NotificationEvent
	if err := json.Unmarshal(body, &event); err != nil {
		s.log.Error("failed to unmarshal notification event", sl.Err(err))
		return nil
	}

	userText, operatorText := s.renderEvent(event)

	ctx := context.Background()
	if userText != "" {
		s.deliver(ctx, event.UserID, userText)
	}
	if operatorText != "" {
		for _, operatorID := range s.operatorIDs {
			s.deliver(ctx, operatorID, operatorText)
		}
	}
	return nil
}

func (s *SenderService) deliver(ctx context.Context, chatID int64, text string) {
	if err := s.transport.Send(ctx, chatID, text); err != nil {
		metrics.NotificationsDropped.Inc()
		s.log.Error("failed to deliver notification", slog.Int64("chat_id", chatID), sl.Err(err))
		return
	}
	s.log.Info("notification delivered", slog.Int64("chat_id", chatID))
}

// renderEvent собирает тексты для пользователя и операторов. Пустая строка
// означает, что этой стороне уведомление не отправляется. Операторам можно
// показывать сырой текст ошибки провайдера, пользователю — нет.
func (s *SenderService) renderEvent(event models.NotificationEvent) (userText, operatorText string) {
	planTitle := event.Plan
	if plan, ok := s.plans[event.Plan]; ok {
		planTitle = plan.Title
	}
	expiry := "—"
	if event.PaymentExpiry != nil {
		expiry = event.PaymentExpiry.Format("02.01.2006")
	}

	switch event.Type {
	case models.EventPurchaseConfirmed:
		userText = fmt.Sprintf("✅ Оплата получена!\n\nТариф: %s\nПодписка активна до %s.\n\nДобро пожаловать в клуб!",
			planTitle, expiry)
		operatorText = fmt.Sprintf("💰 Новая оплата: @%s (id %d), тариф %s, %d ₽, доступ до %s.",
			event.Username, event.UserID, planTitle, event.Amount, expiry)
	case models.EventRenewalSucceeded:
		userText = fmt.Sprintf("🔄 Подписка продлена!\n\nСписано %d ₽ по тарифу %s.\nДоступ активен до %s.",
			event.Amount, planTitle, expiry)
		operatorText = fmt.Sprintf("🔄 Автопродление: @%s (id %d), тариф %s, %d ₽, до %s.",
			event.Username, event.UserID, planTitle, event.Amount, expiry)
	case models.EventRenewalFailed:
		userText = fmt.Sprintf("⚠️ Не удалось продлить подписку по тарифу %s.\n\nДоступ сохранится до %s. Проверьте карту или оплатите вручную через меню «Оплатить».",
			planTitle, expiry)
		operatorText = fmt.Sprintf("⚠️ Сбой автопродления: @%s (id %d), тариф %s.\nПричина: %s",
			event.Username, event.UserID, planTitle, event.Reason)
	case models.EventExpiryWarning:
		userText = fmt.Sprintf("🔔 %s закончится ваша подписка (тариф %s).\n\nВ этот день спишется %d ₽ с привязанной карты. Отключить автопродление можно в профиле.",
			expiry, planTitle, event.Amount)
	case models.EventSupportQuestion:
		operatorText = fmt.Sprintf("💬 Новый вопрос от @%s (id %d):\n\n%s\n\nОтветить: /reply %d <текст>",
			event.Username, event.UserID, event.Text, event.UserID)
	default:
		s.log.Error("unknown notification event type", slog.String("type", event.Type))
	}
	return userText, operatorText
}
