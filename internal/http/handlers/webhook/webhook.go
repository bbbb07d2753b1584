// Package webhook реализует HTTP-обработчик уведомлений платёжного шлюза.
//
// Шлюз присылает событие с подписью в заголовке X-Api-Signature. Обработчик
// проверяет подпись, разбирает полезную нагрузку и передаёт платёж движку
// подписок на подтверждение. Подтверждение идемпотентно, поэтому повторная
// доставка одного события безопасна.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/ai-navigator/club-bot/internal/http/response"
	"github.com/ai-navigator/club-bot/internal/lib/sl"
	subservice "github.com/ai-navigator/club-bot/internal/services/subscription"
)

// Service описывает интерфейс движка подписок для подтверждения платежа.
type Service interface {
	ConfirmPurchase(ctx context.Context, userID int64, paymentID string) (*subservice.ConfirmResult, error)
}

// Handler управляет HTTP-запросами уведомлений платёжного шлюза.
type Handler struct {
	log      *slog.Logger        // Логгер для записи информации и ошибок
	service  Service             // Движок подписок
	secret   string              // Секрет для проверки подписи
	validate *validator.Validate // Валидатор структуры входящих данных
}

// New создаёт новый Handler с переданным логгером, сервисом и секретом подписи.
func New(log *slog.Logger, service Service, secret string) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		secret:   secret,
		validate: validator.New(),
	}
}

// Payload — полезная нагрузка уведомления платёжного шлюза.
type Payload struct {
	Event  string `json:"event" validate:"required"`
	Object struct {
		ID     string `json:"id" validate:"required"`
		Status string `json:"status"`
		Amount struct {
			Value    string `json:"value"`
			Currency string `json:"currency"`
		} `json:"amount"`
		Metadata map[string]string `json:"metadata"`
	} `json:"object"`
}

func (h *Handler) verifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ServeHTTP обрабатывает уведомление платёжного шлюза.
// @Summary Уведомление платёжного шлюза
// @Tags ops
// @Accept json
// @Produce json
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Failure 401 {object} response.ErrorResponse
// @Router /api/v1/payments/webhook [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.webhook"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	defer r.Body.Close()

	signature := r.Header.Get("X-Api-Signature")
	if signature == "" || !h.verifySignature(body, signature) {
		log.Error("invalid or missing webhook signature")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("invalid signature"))
		return
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Error("failed to unmarshal webhook payload", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(payload); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	switch strings.ToLower(payload.Event) {
	case "payment.succeeded", "payment.waiting_for_capture", "payment.canceled":
		userID, err := strconv.ParseInt(payload.Object.Metadata["user_id"], 10, 64)
		if err != nil {
			log.Error("webhook payload has no valid user_id", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("missing user_id metadata"))
			return
		}
		result, err := h.service.ConfirmPurchase(r.Context(), userID, payload.Object.ID)
		if err != nil {
			if subservice.IsUserNotFound(err) {
				log.Warn("webhook for unknown user", slog.Int64("user_id", userID))
				w.WriteHeader(http.StatusOK)
				render.JSON(w, r, response.OKWithData(map[string]any{"result": "ignored"}))
				return
			}
			log.Error("failed to process webhook event", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("could not process event"))
			return
		}
		log.Info("webhook processed successfully",
			slog.String("event", payload.Event),
			slog.String("payment_id", payload.Object.ID),
			slog.String("result", string(result.Status)))
	default:
		log.Info("ignored webhook event", slog.String("event", payload.Event))
	}

	render.JSON(w, r, response.OKWithData(map[string]any{"result": "ok"}))
}
