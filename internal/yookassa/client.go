package yookassa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ai-navigator/club-bot/internal/config"
)

// ErrUnavailable означает, что провайдер недоступен или отверг учётные
// данные. Вызывающий обязан показать пользователю "попробуйте позже"
// и не менять локальное состояние.
var ErrUnavailable = errors.New("payment provider unavailable")

type Client struct {
	shopID     string
	secretKey  string
	apiURL     string
	returnURL  string
	httpClient *http.Client
}

// NewClient создаёт новый клиент ЮKassa
func NewClient(cfg config.YooKassa) *Client {
	timeout := cfg.APITimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		shopID:     cfg.ShopID,
		secretKey:  cfg.SecretKey,
		apiURL:     cfg.APIURL,
		returnURL:  cfg.ReturnURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	url := c.apiURL + path
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return nil, err
	}
	auth := base64.StdEncoding.EncodeToString([]byte(c.shopID + ":" + c.secretKey))
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Content-Type", "application/json")
	if method == http.MethodPost {
		// ЮKassa требует ключ идемпотентности на каждую мутацию.
		req.Header.Set("Idempotence-Key", uuid.NewString())
	}
	return req, nil
}

func (c *Client) do(req *http.Request) (*Payment, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden ||
		resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: status %s", ErrUnavailable, resp.Status)
	default:
		return nil, errors.New("unexpected status: " + resp.Status)
	}

	var paymentResp paymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&paymentResp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return paymentResp.toPayment(), nil
}

// CreatePayment создаёт платёж с редиректом пользователя на страницу оплаты.
// savePaymentMethod просит провайдера сохранить платёжный метод для
// последующих автосписаний.
func (c *Client) CreatePayment(ctx context.Context, amount int, description string,
	savePaymentMethod bool, metadata map[string]string) (*Payment, error) {
	reqParams := createPaymentRequest{
		Amount:            rub(amount),
		Capture:           true,
		Description:       description,
		SavePaymentMethod: savePaymentMethod,
		Confirmation: &confirmation{
			Type:      "redirect",
			ReturnURL: c.returnURL,
		},
		Metadata: metadata,
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/payments", reqParams)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

// CreateRecurringPayment создаёт платёж по сохранённому платёжному методу,
// без участия пользователя. Используется только проходом продлений.
func (c *Client) CreateRecurringPayment(ctx context.Context, amount int, paymentMethodID,
	description string, metadata map[string]string) (*Payment, error) {
	reqParams := createPaymentRequest{
		Amount:          rub(amount),
		Capture:         true,
		Description:     description,
		PaymentMethodID: paymentMethodID,
		Metadata:        metadata,
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/payments", reqParams)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

// GetPayment возвращает текущее состояние платежа по его id. Запрос
// идемпотентен и всегда отдаёт актуальный статус провайдера.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/payments/"+paymentID, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func rub(amount int) Amount {
	return Amount{
		Value:    fmt.Sprintf("%d.00", amount),
		Currency: "RUB",
	}
}
