// Package services содержит движок жизненного цикла подписки: покупка,
// подтверждение оплаты, автопродление и отмена. Все записи в хранилище
// идут только отсюда; ни одна мутация не применяется до того, как провайдер
// вернул окончательный статус платежа.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/ai-navigator/club-bot/internal/lib/dates"
	"github.com/ai-navigator/club-bot/internal/lib/sl"
	"github.com/ai-navigator/club-bot/internal/metrics"
	"github.com/ai-navigator/club-bot/internal/models"
	"github.com/ai-navigator/club-bot/internal/storage/repository"
	"github.com/ai-navigator/club-bot/internal/yookassa"
)

// ErrUnknownPlan возвращается при попытке купить несуществующий тариф.
var ErrUnknownPlan = errors.New("unknown plan")

// Итог подтверждения оплаты.
type ConfirmStatus string

const (
	ConfirmActivated ConfirmStatus = "activated" // доступ открыт или уже был открыт этим платежом
	ConfirmPending   ConfirmStatus = "pending"   // платёж ещё не завершён, можно проверить позже
	ConfirmRejected  ConfirmStatus = "rejected"  // платёж отменён или не распознан
)

// ConfirmResult — результат ConfirmPurchase. PaymentExpiry заполнен
// только при статусе ConfirmActivated.
type ConfirmResult struct {
	Status        ConfirmStatus
	PaymentExpiry time.Time
	Plan          models.Plan
}

// UserRepository определяет методы хранилища для записей пользователей.
type UserRepository interface {
	CreateUser(ctx context.Context, userID int64, username, fullName string) (bool, error)
	GetUser(ctx context.Context, userID int64) (*models.User, error)
	UpdateEmail(ctx context.Context, userID int64, email string) error
	UpdatePhone(ctx context.Context, userID int64, phone string) error
	MarkPaid(ctx context.Context, userID int64, subscriptionType string,
		expiry time.Time, paymentMethodID, cardLast4 *string) error
	SetAutoRenewal(ctx context.Context, userID int64, enabled bool) error
	ClearPaymentMethod(ctx context.Context, userID int64, disableAutoRenewal bool) error
}

// PaymentRepository определяет методы журнала платежей.
type PaymentRepository interface {
	AddPayment(ctx context.Context, p models.Payment) (int, error)
	HasSucceededPayment(ctx context.Context, providerPaymentID string) (bool, error)
}

// Gateway определяет нужные движку операции платёжного провайдера.
type Gateway interface {
	CreatePayment(ctx context.Context, amount int, description string,
		savePaymentMethod bool, metadata map[string]string) (*yookassa.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*yookassa.Payment, error)
}

// Cache описывает методы для кэширования данных.
type Cache interface {
	Get(key string, result any) (bool, error)
	Set(key string, value any, expiration time.Duration) error
	Invalidate(key string) error
}

// Dispatcher публикует события жизненного цикла. Доставка без гарантий:
// ошибки публикации не возвращаются вызывающему.
type Dispatcher interface {
	Publish(ctx context.Context, event models.NotificationEvent)
}

// SubscriptionService реализует бизнес-логику подписки клуба.
type SubscriptionService struct {
	users    UserRepository
	payments PaymentRepository
	gateway  Gateway
	cache    Cache
	notify   Dispatcher
	plans    map[string]models.Plan
	log      *slog.Logger
}

// NewSubscriptionService создает новый экземпляр SubscriptionService.
// Тарифы передаются снаружи: движок не знает конкретных цен и сроков.
func NewSubscriptionService(users UserRepository, payments PaymentRepository, gateway Gateway,
	cache Cache, notify Dispatcher, plans []models.Plan, log *slog.Logger) *SubscriptionService {
	table := make(map[string]models.Plan, len(plans))
	for _, p := range plans {
		table[p.Key] = p
	}
	return &SubscriptionService{
		users:    users,
		payments: payments,
		gateway:  gateway,
		cache:    cache,
		notify:   notify,
		plans:    table,
		log:      log,
	}
}

// Plan возвращает тариф по ключу.
func (s *SubscriptionService) Plan(key string) (models.Plan, error) {
	plan, ok := s.plans[key]
	if !ok {
		return models.Plan{}, fmt.Errorf("%w: %s", ErrUnknownPlan, key)
	}
	return plan, nil
}

// Register заводит запись пользователя при первом контакте.
// Возвращает true для нового пользователя.
func (s *SubscriptionService) Register(ctx context.Context, userID int64, username, fullName string) (bool, error) {
	isNew, err := s.users.CreateUser(ctx, userID, username, fullName)
	if err != nil {
		return false, err
	}
	if isNew {
		s.log.Info("registered new user", slog.Int64("user_id", userID))
	}
	return isNew, nil
}

// InitiatePurchase создаёт платёж у провайдера и возвращает его вместе со
// ссылкой на оплату. Платёжный метод всегда просим сохранить: каждая
// покупка открывает возможность автопродления. Запись пользователя
// не меняется до подтверждения.
func (s *SubscriptionService) InitiatePurchase(ctx context.Context, userID int64, planKey string) (*yookassa.Payment, models.Plan, error) {
	plan, err := s.Plan(planKey)
	if err != nil {
		return nil, models.Plan{}, err
	}

	payment, err := s.gateway.CreatePayment(ctx, plan.Price,
		"Подписка на клуб: "+plan.Title, true, map[string]string{
			"user_id": strconv.FormatInt(userID, 10),
			"plan":    plan.Key,
		})
	if err != nil {
		s.log.Error("failed to create payment", slog.Int64("user_id", userID), sl.Err(err))
		return nil, models.Plan{}, err
	}

	s.log.Info("payment created",
		slog.Int64("user_id", userID),
		slog.String("plan", plan.Key),
		slog.String("payment_id", payment.ID))
	return payment, plan, nil
}

// ConfirmPurchase сверяет платёж с провайдером и при успехе открывает
// доступ. Дата окончания считается от сегодняшнего дня, а не от прежней
// даты: повторная ручная покупка сбрасывает окно доступа. Подтверждение
// идемпотентно по id платежа: уже учтённый платёж не применяется повторно.
func (s *SubscriptionService) ConfirmPurchase(ctx context.Context, userID int64, paymentID string) (*ConfirmResult, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	applied, err := s.payments.HasSucceededPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if applied {
		result := &ConfirmResult{Status: ConfirmActivated}
		if user.PaymentExpiry != nil {
			result.PaymentExpiry = *user.PaymentExpiry
		}
		if plan, ok := s.plans[user.BaseSubscriptionType()]; ok {
			result.Plan = plan
		}
		s.log.Info("payment already applied", slog.String("payment_id", paymentID))
		return result, nil
	}

	payment, err := s.gateway.GetPayment(ctx, paymentID)
	if err != nil {
		s.log.Error("failed to get payment status", slog.String("payment_id", paymentID), sl.Err(err))
		return nil, err
	}

	switch payment.Status {
	case yookassa.StatusSucceeded:
	case yookassa.StatusPending, yookassa.StatusWaitingForCapture:
		return &ConfirmResult{Status: ConfirmPending}, nil
	default:
		s.log.Info("payment not confirmed",
			slog.String("payment_id", paymentID),
			slog.String("status", string(payment.Status)))
		return &ConfirmResult{Status: ConfirmRejected}, nil
	}

	plan, err := s.Plan(payment.Metadata["plan"])
	if err != nil {
		return nil, fmt.Errorf("payment %s: %w", paymentID, err)
	}

	expiry := dates.Day(time.Now()).AddDate(0, 0, plan.DurationDays)
	subscriptionType := plan.Key
	var token, last4 *string
	if pm := payment.PaymentMethod; pm != nil {
		subscriptionType = plan.Key + "_auto"
		token = &pm.ID
		last4 = &pm.Card.Last4
	}

	if err := s.users.MarkPaid(ctx, userID, subscriptionType, expiry, token, last4); err != nil {
		return nil, err
	}
	if _, err := s.payments.AddPayment(ctx, models.Payment{
		UserID:            userID,
		Amount:            plan.Price,
		SubscriptionType:  subscriptionType,
		Status:            models.PaymentStatusSucceeded,
		ProviderPaymentID: payment.ID,
	}); err != nil {
		// Доступ уже открыт, журнал догонит при следующем подтверждении.
		s.log.Error("failed to log payment", slog.String("payment_id", paymentID), sl.Err(err))
	}
	s.invalidate(userID)
	metrics.PurchasesConfirmed.WithLabelValues(plan.Key).Inc()

	s.notify.Publish(ctx, models.NotificationEvent{
		Type:          models.EventPurchaseConfirmed,
		UserID:        userID,
		Username:      user.Username,
		Plan:          plan.Key,
		Amount:        plan.Price,
		PaymentExpiry: &expiry,
	})

	s.log.Info("purchase confirmed",
		slog.Int64("user_id", userID),
		slog.String("plan", plan.Key),
		slog.Time("payment_expiry", expiry))
	return &ConfirmResult{Status: ConfirmActivated, PaymentExpiry: expiry, Plan: plan}, nil
}

// ToggleAutoRenewal переключает разрешение на автосписание. Включение без
// привязанной карты допустимо и просто инертно: проход продлений такие
// записи не выбирает.
func (s *SubscriptionService) ToggleAutoRenewal(ctx context.Context, userID int64, enabled bool) error {
	if err := s.users.SetAutoRenewal(ctx, userID, enabled); err != nil {
		return err
	}
	s.invalidate(userID)
	s.log.Info("auto renewal toggled", slog.Int64("user_id", userID), slog.Bool("enabled", enabled))
	return nil
}

// UnlinkCard отвязывает сохранённую карту. Флаг автосписания не трогаем:
// без токена он и так инертен, а при новой привязке заработает снова.
func (s *SubscriptionService) UnlinkCard(ctx context.Context, userID int64) error {
	if err := s.users.ClearPaymentMethod(ctx, userID, false); err != nil {
		return err
	}
	s.invalidate(userID)
	s.log.Info("card unlinked", slog.Int64("user_id", userID))
	return nil
}

// CancelSubscription отменяет подписку: карта отвязывается, автосписание
// выключается. Оплаченный доступ сохраняется до конца текущего окна,
// возвратов нет.
func (s *SubscriptionService) CancelSubscription(ctx context.Context, userID int64) error {
	if err := s.users.ClearPaymentMethod(ctx, userID, true); err != nil {
		return err
	}
	s.invalidate(userID)
	s.log.Info("subscription cancelled", slog.Int64("user_id", userID))
	return nil
}

// SetEmail обновляет контактный email.
func (s *SubscriptionService) SetEmail(ctx context.Context, userID int64, email string) error {
	if err := s.users.UpdateEmail(ctx, userID, email); err != nil {
		return err
	}
	s.invalidate(userID)
	return nil
}

// SetPhone обновляет контактный телефон.
func (s *SubscriptionService) SetPhone(ctx context.Context, userID int64, phone string) error {
	if err := s.users.UpdatePhone(ctx, userID, phone); err != nil {
		return err
	}
	s.invalidate(userID)
	return nil
}

// Profile возвращает запись пользователя, используя кеш или хранилище.
func (s *SubscriptionService) Profile(ctx context.Context, userID int64) (*models.User, error) {
	var result *models.User
	cacheKey := userCacheKey(userID)
	found, err := s.cache.Get(cacheKey, &result)
	if err != nil {
		s.log.Warn("failed to read from cache", slog.String("key", cacheKey), sl.Err(err))
	}
	if found {
		return result, nil
	}
	result, err = s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(cacheKey, result, time.Hour); err != nil {
		s.log.Warn("failed to add to cache", slog.String("key", cacheKey), sl.Err(err))
	}
	return result, nil
}

// IsUserNotFound сообщает, означает ли ошибка отсутствие записи
// пользователя (надо заново пройти /start).
func IsUserNotFound(err error) bool {
	return errors.Is(err, repository.ErrUserNotFound)
}

func (s *SubscriptionService) invalidate(userID int64) {
	cacheKey := userCacheKey(userID)
	if err := s.cache.Invalidate(cacheKey); err != nil {
		s.log.Warn("failed to remove from cache", slog.String("key", cacheKey), sl.Err(err))
	}
}

func userCacheKey(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}
