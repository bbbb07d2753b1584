package models

import "time"

// Типы событий жизненного цикла подписки, публикуемых в RabbitMQ.
const (
	EventPurchaseConfirmed = "purchase_confirmed"
	EventRenewalSucceeded  = "renewal_succeeded"
	EventRenewalFailed     = "renewal_failed"
	EventExpiryWarning     = "expiry_warning"
	EventSupportQuestion   = "support_question"
)

// NotificationEvent — сообщение для воркера уведомлений. Поля заполняются
// по мере применимости к типу события.
type NotificationEvent struct {
	Type          string     `json:"type"`
	UserID        int64      `json:"user_id"`
	Username      string     `json:"username,omitempty"`
	Plan          string     `json:"plan,omitempty"`
	Amount        int        `json:"amount,omitempty"`
	PaymentExpiry *time.Time `json:"payment_expiry,omitempty"`
	Reason        string     `json:"reason,omitempty"` // текст ошибки для операторов
	Text          string     `json:"text,omitempty"`   // текст вопроса поддержки
}
