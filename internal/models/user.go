// Package models содержит доменные структуры клуба: пользователь с данными
// подписки, запись платежа, сообщение поддержки и события уведомлений.
package models

import "time"

// Типы подписки. Суффикс _auto — отметка о том, что платёж был оформлен
// с сохранением платёжного метода; право на автосписание определяется
// не им, а флагом AutoRenewal вместе с наличием токена.
const (
	SubscriptionNone        = ""
	SubscriptionMonth       = "month"
	SubscriptionQuarter     = "quarter"
	SubscriptionMonthAuto   = "month_auto"
	SubscriptionQuarterAuto = "quarter_auto"
)

// User представляет пользователя Telegram с состоянием его подписки.
// PaymentMethodID и CardLast4 либо оба заполнены, либо оба nil —
// инвариант закреплён CHECK-ограничением в схеме.
type User struct {
	UserID             int64      // Telegram id, неизменяемый
	Username           string     // @username, может быть пустым
	FullName           string     // Отображаемое имя
	Email              *string    // Контактный email, опционально
	Phone              *string    // Контактный телефон, опционально
	RegistrationDate   time.Time  // Дата первого /start
	IsPaid             bool       // Есть ли оплаченный доступ
	SubscriptionType   string     // Последний купленный тариф
	PaymentExpiry      *time.Time // Дата окончания доступа (по дням)
	AutoRenewal        bool       // Разрешение на автосписание
	PaymentMethodID    *string    // Сохранённый платёжный метод ЮKassa
	CardLast4          *string    // Последние 4 цифры карты, только для показа
	LastRenewalAttempt *time.Time // Дата последней попытки автосписания
}

// BaseSubscriptionType возвращает тариф без отметки _auto:
// именно он определяет сумму и срок продления.
func (u *User) BaseSubscriptionType() string {
	switch u.SubscriptionType {
	case SubscriptionMonthAuto:
		return SubscriptionMonth
	case SubscriptionQuarterAuto:
		return SubscriptionQuarter
	default:
		return u.SubscriptionType
	}
}

// RenewalEligible сообщает, может ли запись участвовать в автосписании.
// Флага AutoRenewal недостаточно: без сохранённого метода он инертен.
func (u *User) RenewalEligible() bool {
	return u.AutoRenewal && u.PaymentMethodID != nil
}

// ActiveOn сообщает, действует ли оплаченный доступ в указанный день.
// Флаг IsPaid после окончания срока может оставаться устаревшим,
// поэтому право доступа всегда сверяется с датой окончания.
func (u *User) ActiveOn(day time.Time) bool {
	return u.IsPaid && u.PaymentExpiry != nil && !day.After(*u.PaymentExpiry)
}
