// Package stats реализует HTTP-обработчик сводной статистики клуба.
//
// Handler отдаёт количество пользователей, оплативших, конверсию и суммы
// платежей в JSON-формате. Эндпоинт предназначен для операторских панелей.
package stats

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/ai-navigator/club-bot/internal/http/response"
	"github.com/ai-navigator/club-bot/internal/lib/sl"
	statsservice "github.com/ai-navigator/club-bot/internal/services/stats"
)

// Service описывает интерфейс бизнес-логики сбора сводки.
type Service interface {
	Summary(ctx context.Context) (*statsservice.Summary, error)
}

// Handler управляет HTTP-запросами на получение сводной статистики.
type Handler struct {
	log     *slog.Logger // Логгер для записи информации и ошибок
	service Service      // Сервис бизнес-логики сбора сводки
}

// New создаёт новый Handler с переданным логгером и сервисом статистики.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP обрабатывает HTTP-запрос к эндпоинту сводной статистики.
// @Summary Сводная статистика клуба
// @Tags ops
// @Produce json
// @Success 200 {object} response.Response
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/stats [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.stats"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	summary, err := h.service.Summary(r.Context())
	if err != nil {
		log.Error("failed to collect summary", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not collect summary"))
		return
	}

	log.Info("success to collect summary", slog.Int("total_users", summary.TotalUsers))
	render.JSON(w, r, response.OKWithData(summary))
}
