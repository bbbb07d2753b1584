// Package yookassa реализует клиент платёжного провайдера ЮKassa (REST v3).
// Клиент не трогает хранилище: он только создаёт платежи и читает их статус,
// решения по подписке принимает движок.
package yookassa

import "time"

// Status — закрытое множество статусов платежа. Всё, что провайдер
// вернёт сверх этого списка, схлопывается в StatusUnknown.
type Status string

const (
	StatusPending           Status = "pending"
	StatusWaitingForCapture Status = "waiting_for_capture"
	StatusSucceeded         Status = "succeeded"
	StatusCanceled          Status = "canceled"
	StatusUnknown           Status = "unknown"
)

// ParseStatus приводит строку провайдера к закрытому множеству статусов.
func ParseStatus(s string) Status {
	switch Status(s) {
	case StatusPending, StatusWaitingForCapture, StatusSucceeded, StatusCanceled:
		return Status(s)
	default:
		return StatusUnknown
	}
}

// Amount представляет денежную сумму.
type Amount struct {
	Value    string `json:"value"`    // сумма, например "1990.00"
	Currency string `json:"currency"` // валюта, например "RUB"
}

// PaymentMethod — сохранённый платёжный метод из ответа провайдера.
type PaymentMethod struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	Saved bool   `json:"saved"`
	Card  struct {
		Last4 string `json:"last4"`
	} `json:"card"`
}

// Payment — платёж в представлении клиента: статус уже приведён
// к закрытому множеству, из подтверждения оставлена только ссылка.
type Payment struct {
	ID              string
	Status          Status
	ConfirmationURL string
	PaymentMethod   *PaymentMethod // nil, если метод не сохранён
	Metadata        map[string]string
	CreatedAt       time.Time
}

// createPaymentRequest представляет запрос на создание платежа.
type createPaymentRequest struct {
	Amount            Amount            `json:"amount"`
	Capture           bool              `json:"capture"`
	Description       string            `json:"description,omitempty"`
	SavePaymentMethod bool              `json:"save_payment_method,omitempty"`
	PaymentMethodID   string            `json:"payment_method_id,omitempty"`
	Confirmation      *confirmation     `json:"confirmation,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

type confirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

// paymentResponse представляет ответ ЮKassa на создание или чтение платежа.
type paymentResponse struct {
	ID            string            `json:"id"`
	Status        string            `json:"status"`
	Amount        Amount            `json:"amount"`
	Confirmation  *confirmation     `json:"confirmation,omitempty"`
	PaymentMethod *PaymentMethod    `json:"payment_method,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

func (r *paymentResponse) toPayment() *Payment {
	p := &Payment{
		ID:        r.ID,
		Status:    ParseStatus(r.Status),
		Metadata:  r.Metadata,
		CreatedAt: r.CreatedAt,
	}
	if r.Confirmation != nil {
		p.ConfirmationURL = r.Confirmation.ConfirmationURL
	}
	if r.PaymentMethod != nil && r.PaymentMethod.Saved {
		p.PaymentMethod = r.PaymentMethod
	}
	return p
}
