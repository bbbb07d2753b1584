// Package bot предоставляет маршруты служебного HTTP-сервера.
package bot

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/ai-navigator/club-bot/internal/http/handlers/health"
	"github.com/ai-navigator/club-bot/internal/http/handlers/stats"
	"github.com/ai-navigator/club-bot/internal/http/handlers/webhook"
	statsservice "github.com/ai-navigator/club-bot/internal/services/stats"
	subservice "github.com/ai-navigator/club-bot/internal/services/subscription"
	"github.com/ai-navigator/club-bot/internal/storage/repository"
)

// RegisterRoutes регистрирует все маршруты служебного сервера.
func RegisterRoutes(r chi.Router, logger *slog.Logger, db *repository.Storage,
	statsService *statsservice.StatsService, subscriptionService *subservice.SubscriptionService,
	webhookSecret string) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Get("/health", health.New(logger, db).ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/stats", stats.New(logger, statsService).ServeHTTP)

		// Webhook endpoint (без аутентификации, подпись проверяет обработчик)
		r.Post("/payments/webhook", webhook.New(logger, subscriptionService, webhookSecret).ServeHTTP)
	})

	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
