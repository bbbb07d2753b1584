// Package services содержит ежедневный проход продлений: предупреждение о
// скором списании и автосписание по сохранённым платёжным методам.
package services

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/ai-navigator/club-bot/internal/lib/dates"
	"github.com/ai-navigator/club-bot/internal/lib/sl"
	"github.com/ai-navigator/club-bot/internal/metrics"
	"github.com/ai-navigator/club-bot/internal/models"
	"github.com/ai-navigator/club-bot/internal/yookassa"
)

// UserRepository определяет методы хранилища, нужные проходу продлений.
type UserRepository interface {
	FindExpiringOn(ctx context.Context, day time.Time) ([]*models.User, error)
	FindDueForRenewal(ctx context.Context, day time.Time) ([]*models.User, error)
	ExtendExpiry(ctx context.Context, userID int64, oldExpiry, newExpiry time.Time) (bool, error)
	TouchRenewalAttempt(ctx context.Context, userID int64, day time.Time) error
}

// PaymentRepository определяет методы журнала платежей.
type PaymentRepository interface {
	AddPayment(ctx context.Context, p models.Payment) (int, error)
}

// Gateway определяет операцию автосписания у платёжного провайдера.
type Gateway interface {
	CreateRecurringPayment(ctx context.Context, amount int, paymentMethodID,
		description string, metadata map[string]string) (*yookassa.Payment, error)
}

// Cache описывает инвалидацию кеша профилей после продления.
type Cache interface {
	Invalidate(key string) error
}

// Dispatcher публикует события прохода без гарантий доставки.
type Dispatcher interface {
	Publish(ctx context.Context, event models.NotificationEvent)
}

// SweeperService выполняет ежедневную сверку подписок.
type SweeperService struct {
	users       UserRepository
	payments    PaymentRepository
	gateway     Gateway
	cache       Cache
	notify      Dispatcher
	plans       map[string]models.Plan
	warningDays int
	log         *slog.Logger

	mu sync.Mutex // один проход за раз: опоздавший тик пропускается
}

// NewSweeperService создает новый экземпляр SweeperService.
func NewSweeperService(users UserRepository, payments PaymentRepository, gateway Gateway,
	cache Cache, notify Dispatcher, plans []models.Plan, warningDays int, log *slog.Logger) *SweeperService {
	table := make(map[string]models.Plan, len(plans))
	for _, p := range plans {
		table[p.Key] = p
	}
	return &SweeperService{
		users:       users,
		payments:    payments,
		gateway:     gateway,
		cache:       cache,
		notify:      notify,
		plans:       table,
		warningDays: warningDays,
		log:         log,
	}
}

// Run запускает проход сразу и далее по тикеру. Если предыдущий проход
// ещё не завершился к новому тику, новый запуск пропускается.
func (s *SweeperService) Run(ctx context.Context, interval time.Duration) {
	s.tryRunOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tryRunOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *SweeperService) tryRunOnce(ctx context.Context) {
	if !s.mu.TryLock() {
		s.log.Warn("previous sweep still running, skipping this tick")
		return
	}
	defer s.mu.Unlock()
	s.RunOnce(ctx, time.Now())
}

// RunOnce выполняет оба прохода за указанный момент времени. Пользователи
// обрабатываются последовательно; ошибка по одному не прерывает остальных.
func (s *SweeperService) RunOnce(ctx context.Context, now time.Time) {
	today := dates.Day(now)
	s.log.Info("starting renewal sweep", slog.Time("day", today))

	s.warnExpiring(ctx, today)
	s.renewDue(ctx, today)

	metrics.SweepRuns.Inc()
	s.log.Info("renewal sweep finished", slog.Time("day", today))
}

// warnExpiring предупреждает пользователей о списании через warningDays
// дней. Только уведомление, записи не меняются.
func (s *SweeperService) warnExpiring(ctx context.Context, today time.Time) {
	warnDay := today.AddDate(0, 0, s.warningDays)
	users, err := s.users.FindExpiringOn(ctx, warnDay)
	if err != nil {
		s.log.Error("failed to find expiring users", sl.Err(err))
		return
	}
	if len(users) == 0 {
		s.log.Info("no users to warn about upcoming renewal")
		return
	}
	s.log.Info("warning users about upcoming renewal", slog.Int("count", len(users)))
	for _, user := range users {
		plan, ok := s.plans[user.BaseSubscriptionType()]
		if !ok {
			s.log.Error("user has unknown subscription type",
				slog.Int64("user_id", user.UserID),
				slog.String("subscription_type", user.SubscriptionType))
			continue
		}
		s.notify.Publish(ctx, models.NotificationEvent{
			Type:          models.EventExpiryWarning,
			UserID:        user.UserID,
			Username:      user.Username,
			Plan:          plan.Key,
			Amount:        plan.Price,
			PaymentExpiry: user.PaymentExpiry,
		})
	}
}

// renewDue списывает оплату с пользователей, чей доступ закончился не позже
// сегодняшнего дня. Попытка отмечается до обращения к провайдеру, чтобы по
// одной записи не списывать чаще раза в день.
func (s *SweeperService) renewDue(ctx context.Context, today time.Time) {
	users, err := s.users.FindDueForRenewal(ctx, today)
	if err != nil {
		s.log.Error("failed to find users due for renewal", sl.Err(err))
		return
	}
	if len(users) == 0 {
		s.log.Info("no users due for renewal")
		return
	}
	s.log.Info("processing renewals", slog.Int("count", len(users)))
	for _, user := range users {
		s.renewOne(ctx, user, today)
	}
}

func (s *SweeperService) renewOne(ctx context.Context, user *models.User, today time.Time) {
	log := s.log.With(slog.Int64("user_id", user.UserID))

	plan, ok := s.plans[user.BaseSubscriptionType()]
	if !ok {
		log.Error("user has unknown subscription type",
			slog.String("subscription_type", user.SubscriptionType))
		return
	}
	if !user.RenewalEligible() || user.PaymentExpiry == nil {
		log.Error("renewal candidate is not eligible for auto charge")
		return
	}

	if err := s.users.TouchRenewalAttempt(ctx, user.UserID, today); err != nil {
		log.Error("failed to mark renewal attempt", sl.Err(err))
		return
	}

	payment, err := s.gateway.CreateRecurringPayment(ctx, plan.Price, *user.PaymentMethodID,
		"Продление подписки на клуб: "+plan.Title, map[string]string{
			"user_id": strconv.FormatInt(user.UserID, 10),
			"plan":    plan.Key,
			"renewal": "true",
		})
	if err != nil {
		log.Error("renewal charge failed", sl.Err(err))
		s.reportFailure(ctx, user, plan, err.Error())
		return
	}
	if payment.Status != yookassa.StatusSucceeded {
		log.Info("renewal charge not succeeded", slog.String("status", string(payment.Status)))
		s.reportFailure(ctx, user, plan, "payment status: "+string(payment.Status))
		return
	}

	// Продление считается от записанной даты окончания, а не от "сегодня":
	// расписание сохраняется, даже если проход запустился с опозданием.
	// Если дата успела уйти в прошлое настолько, что продление всё равно
	// закончилось бы до сегодняшнего дня, считаем от сегодняшнего.
	oldExpiry := dates.Day(*user.PaymentExpiry)
	newExpiry := oldExpiry.AddDate(0, 0, plan.DurationDays)
	if !newExpiry.After(today) {
		newExpiry = today.AddDate(0, 0, plan.DurationDays)
	}

	applied, err := s.users.ExtendExpiry(ctx, user.UserID, oldExpiry, newExpiry)
	if err != nil {
		log.Error("failed to extend expiry after successful charge", sl.Err(err))
		return
	}
	if !applied {
		log.Warn("expiry changed concurrently, extension not applied")
	}
	if _, err := s.payments.AddPayment(ctx, models.Payment{
		UserID:            user.UserID,
		Amount:            plan.Price,
		SubscriptionType:  user.SubscriptionType,
		Status:            models.PaymentStatusAutoRenewal,
		ProviderPaymentID: payment.ID,
	}); err != nil {
		log.Error("failed to log renewal payment", sl.Err(err))
	}
	if err := s.cache.Invalidate(userCacheKey(user.UserID)); err != nil {
		log.Warn("failed to invalidate user cache", sl.Err(err))
	}
	metrics.RenewalsSucceeded.WithLabelValues(plan.Key).Inc()

	s.notify.Publish(ctx, models.NotificationEvent{
		Type:          models.EventRenewalSucceeded,
		UserID:        user.UserID,
		Username:      user.Username,
		Plan:          plan.Key,
		Amount:        plan.Price,
		PaymentExpiry: &newExpiry,
	})
	log.Info("subscription renewed", slog.Time("payment_expiry", newExpiry))
}

// reportFailure уведомляет пользователя и операторов о неуспешном
// автосписании. Запись не меняется: доступ сохраняется только до уже
// записанной даты, льготного продления нет.
func (s *SweeperService) reportFailure(ctx context.Context, user *models.User, plan models.Plan, reason string) {
	metrics.RenewalsFailed.WithLabelValues("charge").Inc()
	s.notify.Publish(ctx, models.NotificationEvent{
		Type:          models.EventRenewalFailed,
		UserID:        user.UserID,
		Username:      user.Username,
		Plan:          plan.Key,
		Amount:        plan.Price,
		PaymentExpiry: user.PaymentExpiry,
		Reason:        reason,
	})
}

func userCacheKey(userID int64) string {
	return "user:" + strconv.FormatInt(userID, 10)
}
