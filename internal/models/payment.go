package models

import "time"

// Статусы, под которыми платёж попадает в журнал.
const (
	PaymentStatusSucceeded   = "succeeded"
	PaymentStatusAutoRenewal = "autorenewal" // успешное автосписание
)

// Payment — запись журнала платежей. Журнал только дописывается и служит
// для аудита и статистики, текущие права доступа из него не выводятся.
type Payment struct {
	ID                int
	UserID            int64
	Amount            int    // целые рубли
	SubscriptionType  string // тариф на момент списания
	Status            string
	ProviderPaymentID string // id платежа в ЮKassa
	CreatedAt         time.Time
}
