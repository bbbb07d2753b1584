package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"log/slog"

	"github.com/ai-navigator/club-bot/internal/lib/dates"
	"github.com/ai-navigator/club-bot/internal/lib/sl"
	"github.com/ai-navigator/club-bot/internal/models"
	statsservice "github.com/ai-navigator/club-bot/internal/services/stats"
	subservice "github.com/ai-navigator/club-bot/internal/services/subscription"
	"github.com/ai-navigator/club-bot/internal/yookassa"
)

// Subscriptions — операции движка подписок, доступные из чата.
type Subscriptions interface {
	Register(ctx context.Context, userID int64, username, fullName string) (bool, error)
	InitiatePurchase(ctx context.Context, userID int64, planKey string) (*yookassa.Payment, models.Plan, error)
	ConfirmPurchase(ctx context.Context, userID int64, paymentID string) (*subservice.ConfirmResult, error)
	ToggleAutoRenewal(ctx context.Context, userID int64, enabled bool) error
	UnlinkCard(ctx context.Context, userID int64) error
	CancelSubscription(ctx context.Context, userID int64) error
	SetEmail(ctx context.Context, userID int64, email string) error
	SetPhone(ctx context.Context, userID int64, phone string) error
	Profile(ctx context.Context, userID int64) (*models.User, error)
}

// Stats — сводка для операторской команды /admin.
type Stats interface {
	Summary(ctx context.Context) (*statsservice.Summary, error)
}

// MessageRepository — журнал переписки поддержки.
type MessageRepository interface {
	AddMessage(ctx context.Context, m models.Message) error
	ListRecentMessages(ctx context.Context, limit int) ([]*models.Message, error)
}

// UserDirectory — списки пользователей для операторской панели.
type UserDirectory interface {
	ListUsers(ctx context.Context, limit int) ([]*models.User, error)
	ListPaidUsers(ctx context.Context) ([]*models.User, error)
}

// Dispatcher публикует события уведомлений.
type Dispatcher interface {
	Publish(ctx context.Context, event models.NotificationEvent)
}

// Bot связывает входящие события Telegram с движком подписок.
type Bot struct {
	client    *Client
	subs      Subscriptions
	stats     Stats
	users     UserDirectory
	msgs      MessageRepository
	notify    Dispatcher
	plans     []models.Plan
	operators map[int64]bool
	log       *slog.Logger
}

// NewBot создает новый экземпляр Bot.
func NewBot(client *Client, subs Subscriptions, stats Stats, users UserDirectory,
	msgs MessageRepository, notify Dispatcher, plans []models.Plan,
	operatorIDs []int64, log *slog.Logger) *Bot {
	operators := make(map[int64]bool, len(operatorIDs))
	for _, id := range operatorIDs {
		operators[id] = true
	}
	return &Bot{
		client:    client,
		subs:      subs,
		stats:     stats,
		users:     users,
		msgs:      msgs,
		notify:    notify,
		plans:     plans,
		operators: operators,
		log:       log,
	}
}

// Run читает обновления до отмены контекста. Каждое обновление
// обрабатывается в своей горутине: обработчики разных пользователей
// не ждут друг друга.
func (b *Bot) Run(ctx context.Context) {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 30
	updates := b.client.API().GetUpdatesChan(updateConfig)

	b.log.Info("telegram bot started")
	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			go b.handleUpdate(ctx, update)
		case <-ctx.Done():
			b.client.API().StopReceivingUpdates()
			return
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID

	switch {
	case msg.IsCommand():
		b.handleCommand(ctx, msg)
	case msg.Text == buttonInfo:
		b.reply(ctx, userID, infoText(b.plans))
	case msg.Text == buttonPay:
		b.sendMarkup(ctx, userID, "Выберите тариф:", planKeyboard(b.plans))
	case msg.Text == buttonAsk:
		b.reply(ctx, userID, "✍️ Напишите ваш вопрос, эксперты ответят в ближайшее время.")
	case msg.Text == buttonProfile:
		b.sendProfile(ctx, userID)
	default:
		b.forwardQuestion(ctx, msg)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	switch msg.Command() {
	case "start":
		username := msg.From.UserName
		fullName := strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
		if _, err := b.subs.Register(ctx, userID, username, fullName); err != nil {
			b.log.Error("failed to register user", slog.Int64("user_id", userID), sl.Err(err))
			b.reply(ctx, userID, "Что-то пошло не так, попробуйте ещё раз позже.")
			return
		}
		b.sendMarkup(ctx, userID,
			fmt.Sprintf("Привет, %s! 👋\n\nДобро пожаловать в клуб «AI Навигатор». Выберите действие в меню ниже.",
				msg.From.FirstName),
			mainKeyboard())
	case "admin":
		if !b.operators[userID] {
			b.reply(ctx, userID, "⛔️ У вас нет доступа к админ-панели.")
			return
		}
		b.sendStats(ctx, userID)
	case "email":
		b.setContact(ctx, userID, msg.CommandArguments(), b.subs.SetEmail,
			"Формат: /email адрес@почты", "📧 Email сохранён.")
	case "phone":
		b.setContact(ctx, userID, msg.CommandArguments(), b.subs.SetPhone,
			"Формат: /phone +79990000000", "📱 Телефон сохранён.")
	case "reply":
		if !b.operators[userID] {
			return
		}
		b.operatorReply(ctx, msg)
	default:
		b.reply(ctx, userID, "Неизвестная команда. Используйте меню ниже.")
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	userID := cb.From.ID
	log := b.log.With(slog.Int64("user_id", userID), slog.String("data", cb.Data))

	// Телеграм ждёт ответ на каждый callback, иначе кнопка "зависает".
	if _, err := b.client.API().Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		log.Warn("failed to answer callback", sl.Err(err))
	}

	switch {
	case strings.HasPrefix(cb.Data, "pay:"):
		b.startPurchase(ctx, userID, strings.TrimPrefix(cb.Data, "pay:"))
	case strings.HasPrefix(cb.Data, "check:"):
		b.checkPayment(ctx, userID, strings.TrimPrefix(cb.Data, "check:"))
	case cb.Data == "autorenew:on":
		b.toggleAutoRenewal(ctx, userID, true)
	case cb.Data == "autorenew:off":
		b.toggleAutoRenewal(ctx, userID, false)
	case cb.Data == "unlink":
		if err := b.subs.UnlinkCard(ctx, userID); err != nil {
			log.Error("failed to unlink card", sl.Err(err))
			b.reply(ctx, userID, "Не получилось отвязать карту, попробуйте позже.")
			return
		}
		b.reply(ctx, userID, "💳 Карта отвязана. Автопродление работать не будет, пока вы не привяжете карту новой оплатой.")
	case strings.HasPrefix(cb.Data, "admin:"):
		if !b.operators[userID] {
			b.reply(ctx, userID, "⛔️ У вас нет доступа к админ-панели.")
			return
		}
		b.handleAdminPanel(ctx, userID, strings.TrimPrefix(cb.Data, "admin:"))
	case cb.Data == "cancel":
		if err := b.subs.CancelSubscription(ctx, userID); err != nil {
			log.Error("failed to cancel subscription", sl.Err(err))
			b.reply(ctx, userID, "Не получилось отменить подписку, попробуйте позже.")
			return
		}
		b.reply(ctx, userID, "Подписка отменена. Доступ сохранится до конца оплаченного периода.")
	default:
		log.Info("unknown callback")
	}
}

func (b *Bot) startPurchase(ctx context.Context, userID int64, planKey string) {
	payment, plan, err := b.subs.InitiatePurchase(ctx, userID, planKey)
	if err != nil {
		b.log.Error("failed to initiate purchase", slog.Int64("user_id", userID), sl.Err(err))
		b.reply(ctx, userID, "Не получилось создать платёж, попробуйте позже.")
		return
	}
	text := fmt.Sprintf("Тариф: %s\nСтоимость: %d ₽\n\nПерейдите по ссылке для оплаты, затем нажмите «Я оплатил».",
		plan.Title, plan.Price)
	b.sendMarkup(ctx, userID, text, paymentKeyboard(payment.ConfirmationURL, payment.ID))
}

func (b *Bot) checkPayment(ctx context.Context, userID int64, paymentID string) {
	result, err := b.subs.ConfirmPurchase(ctx, userID, paymentID)
	if err != nil {
		if subservice.IsUserNotFound(err) {
			b.reply(ctx, userID, "Данные не найдены. Отправьте /start и попробуйте снова.")
			return
		}
		b.log.Error("failed to confirm purchase", slog.Int64("user_id", userID), sl.Err(err))
		b.reply(ctx, userID, "Не получилось проверить оплату, попробуйте позже.")
		return
	}
	switch result.Status {
	case subservice.ConfirmActivated:
		b.reply(ctx, userID, fmt.Sprintf("✅ Оплата подтверждена! Подписка активна до %s.",
			result.PaymentExpiry.Format("02.01.2006")))
	case subservice.ConfirmPending:
		b.reply(ctx, userID, "⏳ Платёж ещё обрабатывается. Подождите минуту и нажмите «Я оплатил» ещё раз.")
	default:
		b.reply(ctx, userID, "❌ Платёж не прошёл. Попробуйте оплатить ещё раз через меню «Оплатить».")
	}
}

func (b *Bot) toggleAutoRenewal(ctx context.Context, userID int64, enabled bool) {
	if err := b.subs.ToggleAutoRenewal(ctx, userID, enabled); err != nil {
		b.log.Error("failed to toggle auto renewal", slog.Int64("user_id", userID), sl.Err(err))
		b.reply(ctx, userID, "Не получилось изменить настройку, попробуйте позже.")
		return
	}
	if enabled {
		b.reply(ctx, userID, "🔔 Автопродление включено. Оно заработает, когда будет привязана карта.")
	} else {
		b.reply(ctx, userID, "🔕 Автопродление отключено.")
	}
}

func (b *Bot) sendProfile(ctx context.Context, userID int64) {
	user, err := b.subs.Profile(ctx, userID)
	if err != nil {
		if subservice.IsUserNotFound(err) {
			b.reply(ctx, userID, "Данные не найдены. Отправьте /start.")
			return
		}
		b.log.Error("failed to load profile", slog.Int64("user_id", userID), sl.Err(err))
		b.reply(ctx, userID, "Не получилось загрузить профиль, попробуйте позже.")
		return
	}
	b.sendMarkup(ctx, userID, profileText(user, dates.Day(time.Now())), profileKeyboard(user))
}

func (b *Bot) sendStats(ctx context.Context, userID int64) {
	summary, err := b.stats.Summary(ctx)
	if err != nil {
		b.log.Error("failed to load stats", sl.Err(err))
		b.reply(ctx, userID, "Не получилось собрать статистику.")
		return
	}
	b.sendMarkup(ctx, userID, fmt.Sprintf(
		"📊 Статистика клуба\n\nПользователей: %d\nОплатили: %d\nКонверсия: %.1f%%\nПлатежей: %d на %d ₽\nСообщений поддержки: %d",
		summary.TotalUsers, summary.PaidUsers, summary.Conversion,
		summary.PaymentsCount, summary.PaymentsAmount, summary.TotalMessages),
		adminKeyboard())
}

// handleAdminPanel отдаёт оператору списки панели: все пользователи,
// оплатившие и последние сообщения поддержки.
func (b *Bot) handleAdminPanel(ctx context.Context, operatorID int64, section string) {
	switch section {
	case "users":
		users, err := b.users.ListUsers(ctx, adminListLimit)
		if err != nil {
			b.log.Error("failed to list users", sl.Err(err))
			b.reply(ctx, operatorID, "Не получилось загрузить список пользователей.")
			return
		}
		b.reply(ctx, operatorID, adminUsersText(users))
	case "paid":
		users, err := b.users.ListPaidUsers(ctx)
		if err != nil {
			b.log.Error("failed to list paid users", sl.Err(err))
			b.reply(ctx, operatorID, "Не получилось загрузить список оплативших.")
			return
		}
		b.reply(ctx, operatorID, adminPaidText(users))
	case "messages":
		messages, err := b.msgs.ListRecentMessages(ctx, adminListLimit)
		if err != nil {
			b.log.Error("failed to list support messages", sl.Err(err))
			b.reply(ctx, operatorID, "Не получилось загрузить сообщения.")
			return
		}
		b.reply(ctx, operatorID, adminMessagesText(messages))
	default:
		b.log.Info("unknown admin panel section", slog.String("section", section))
	}
}

// forwardQuestion сохраняет вопрос пользователя и отдаёт его диспетчеру
// уведомлений для операторов.
func (b *Bot) forwardQuestion(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	username := msg.From.UserName
	if err := b.msgs.AddMessage(ctx, models.Message{
		UserID:   userID,
		Username: username,
		Text:     msg.Text,
	}); err != nil {
		b.log.Error("failed to log support message", slog.Int64("user_id", userID), sl.Err(err))
	}
	b.notify.Publish(ctx, models.NotificationEvent{
		Type:     models.EventSupportQuestion,
		UserID:   userID,
		Username: username,
		Text:     msg.Text,
	})
	b.reply(ctx, userID, "✅ Вопрос получен! Эксперты ответят вам в ближайшее время.")
}

// setContact сохраняет контакт из аргумента команды.
func (b *Bot) setContact(ctx context.Context, userID int64, value string,
	set func(context.Context, int64, string) error, usage, done string) {
	value = strings.TrimSpace(value)
	if value == "" {
		b.reply(ctx, userID, usage)
		return
	}
	if err := set(ctx, userID, value); err != nil {
		if subservice.IsUserNotFound(err) {
			b.reply(ctx, userID, "Данные не найдены. Отправьте /start.")
			return
		}
		b.log.Error("failed to update contact", slog.Int64("user_id", userID), sl.Err(err))
		b.reply(ctx, userID, "Не получилось сохранить, попробуйте позже.")
		return
	}
	b.reply(ctx, userID, done)
}

// operatorReply отправляет ответ поддержки пользователю: /reply <id> <текст>.
func (b *Bot) operatorReply(ctx context.Context, msg *tgbotapi.Message) {
	operatorID := msg.From.ID
	parts := strings.SplitN(msg.CommandArguments(), " ", 2)
	if len(parts) != 2 {
		b.reply(ctx, operatorID, "Формат: /reply <id пользователя> <текст>")
		return
	}
	targetID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		b.reply(ctx, operatorID, "Неверный id пользователя.")
		return
	}
	text := parts[1]

	if err := b.client.Send(ctx, targetID, "💬 Сообщение от поддержки:\n\n"+text); err != nil {
		b.log.Error("failed to deliver operator reply", slog.Int64("target_id", targetID), sl.Err(err))
		b.reply(ctx, operatorID, "❌ Не получилось отправить сообщение.")
		return
	}
	if err := b.msgs.AddMessage(ctx, models.Message{
		UserID:      targetID,
		Username:    msg.From.UserName,
		Text:        text,
		IsFromAdmin: true,
	}); err != nil {
		b.log.Error("failed to log operator reply", sl.Err(err))
	}
	b.reply(ctx, operatorID, "✅ Сообщение отправлено.")
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if err := b.client.Send(ctx, chatID, text); err != nil {
		b.log.Error("failed to send message", slog.Int64("chat_id", chatID), sl.Err(err))
	}
}

func (b *Bot) sendMarkup(ctx context.Context, chatID int64, text string, markup any) {
	if err := b.client.SendWithMarkup(ctx, chatID, text, markup); err != nil {
		b.log.Error("failed to send message", slog.Int64("chat_id", chatID), sl.Err(err))
	}
}

func infoText(plans []models.Plan) string {
	var sb strings.Builder
	sb.WriteString("🚀 AI Навигатор: клуб по нейросетям в Telegram.\n\nАктуальные уроки, базы промтов, живые эфиры и поддержка экспертов.\n\n💰 Тарифы:\n")
	for _, plan := range plans {
		fmt.Fprintf(&sb, "• %s — %d ₽\n", plan.Title, plan.Price)
	}
	return sb.String()
}

func profileText(user *models.User, today time.Time) string {
	// Флаг оплаты после окончания срока может остаться устаревшим,
	// статус в профиле считается от даты окончания.
	status := "❌ Не оплачена"
	if user.ActiveOn(today) {
		status = "✅ Активна"
	}
	expiry := "—"
	if user.PaymentExpiry != nil {
		expiry = user.PaymentExpiry.Format("02.01.2006")
	}
	autoRenewal := "выключено"
	if user.AutoRenewal {
		autoRenewal = "включено"
	}
	card := "не привязана"
	if user.CardLast4 != nil {
		card = "•••• " + *user.CardLast4
	}
	return fmt.Sprintf("👤 Профиль\n\nИмя: %s\nПодписка: %s\nАктивна до: %s\nАвтопродление: %s\nКарта: %s",
		user.FullName, status, expiry, autoRenewal, card)
}

// adminListLimit ограничивает размер списков операторской панели,
// чтобы ответ помещался в одно сообщение Telegram.
const adminListLimit = 20

func adminUsersText(users []*models.User) string {
	if len(users) == 0 {
		return "Пользователей пока нет."
	}
	var sb strings.Builder
	sb.WriteString("👥 Все пользователи:\n\n")
	for _, user := range users {
		status := "❌"
		if user.IsPaid {
			status = "✅"
		}
		fmt.Fprintf(&sb, "%s %s (@%s), id %d\n", status, user.FullName, user.Username, user.UserID)
	}
	fmt.Fprintf(&sb, "\n📊 Показано пользователей: %d", len(users))
	return sb.String()
}

func adminPaidText(users []*models.User) string {
	if len(users) == 0 {
		return "Оплативших пользователей пока нет."
	}
	var sb strings.Builder
	sb.WriteString("💰 Оплатившие пользователи:\n\n")
	for _, user := range users {
		email := "не указан"
		if user.Email != nil && *user.Email != "" {
			email = *user.Email
		}
		expiry := "—"
		if user.PaymentExpiry != nil {
			expiry = user.PaymentExpiry.Format("02.01.2006")
		}
		fmt.Fprintf(&sb, "✅ %s (@%s)\n   📧 %s\n   📅 До: %s\n   💳 %s\n\n",
			user.FullName, user.Username, email, expiry, user.SubscriptionType)
	}
	fmt.Fprintf(&sb, "📊 Всего оплативших: %d", len(users))
	return sb.String()
}

func adminMessagesText(messages []*models.Message) string {
	if len(messages) == 0 {
		return "Сообщений пока нет."
	}
	var sb strings.Builder
	sb.WriteString("💬 Последние сообщения:\n\n")
	for _, msg := range messages {
		sender := "👤 @" + msg.Username
		if msg.IsFromAdmin {
			sender = "👨‍💼 Поддержка"
		}
		text := msg.Text
		if runes := []rune(text); len(runes) > 100 {
			text = string(runes[:100]) + "…"
		}
		fmt.Fprintf(&sb, "%s (%s):\n%s\n\n", sender, msg.CreatedAt.Format("02.01 15:04"), text)
	}
	return sb.String()
}
