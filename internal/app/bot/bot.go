// Package bot собирает основное приложение клуба: телеграм-бота, движок
// подписок, ежедневный проход продлений и служебный HTTP-сервер.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/ai-navigator/club-bot/internal/cache"
	"github.com/ai-navigator/club-bot/internal/config"
	"github.com/ai-navigator/club-bot/internal/lib/rabbitmq"
	"github.com/ai-navigator/club-bot/internal/migrations"
	notifyservice "github.com/ai-navigator/club-bot/internal/services/notify"
	statsservice "github.com/ai-navigator/club-bot/internal/services/stats"
	subservice "github.com/ai-navigator/club-bot/internal/services/subscription"
	sweeperservice "github.com/ai-navigator/club-bot/internal/services/sweeper"
	"github.com/ai-navigator/club-bot/internal/storage/repository"
	"github.com/ai-navigator/club-bot/internal/telegram"
	"github.com/ai-navigator/club-bot/internal/yookassa"
)

// App объединяет все долгоживущие компоненты основного приложения.
type App struct {
	server  *http.Server
	bot     *telegram.Bot
	sweeper *sweeperservice.SweeperService
	db      *repository.Storage
	conn    *amqp.Connection
	ch      *amqp.Channel
	cfg     *config.Config
	logger  *slog.Logger
}

func waitForDB(db *repository.Storage) error {
	for range 10 {
		err := repository.CheckDatabaseReady(db)
		if err == nil {
			return nil
		}
		time.Sleep(3 * time.Second)
	}
	return fmt.Errorf("database not ready after retries")
}

// New создает новый экземпляр приложения.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if err = waitForDB(db); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, fmt.Errorf("cache not initialized: %w", err)
	}

	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}
	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetNotificationQueues())
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}

	gateway := yookassa.NewClient(cfg.YooKassa)
	dispatcher := notifyservice.NewDispatcherService(ch, logger)
	plans := cfg.Plans.List()

	subscriptionService := subservice.NewSubscriptionService(db, db, gateway, cacheRedis, dispatcher, plans, logger)
	sweeperService := sweeperservice.NewSweeperService(db, db, gateway, cacheRedis, dispatcher, plans, cfg.Sweep.WarningDays, logger)
	statsService := statsservice.NewStatsService(db, logger)

	tgClient, err := telegram.NewClient(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram client: %w", err)
	}
	bot := telegram.NewBot(tgClient, subscriptionService, statsService, db, db, dispatcher, plans, cfg.OperatorIDs, logger)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, db, statsService, subscriptionService, cfg.HTTPServer.WebhookSecret)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server:  srv,
		bot:     bot,
		sweeper: sweeperService,
		db:      db,
		conn:    conn,
		ch:      ch,
		cfg:     cfg,
		logger:  logger,
	}, nil
}

// Run запускает бота, проход продлений и HTTP-сервер и работает до отмены
// контекста или фатальной ошибки сервера.
func (a *App) Run(ctx context.Context) error {
	go a.sweeper.Run(ctx, a.cfg.Sweep.Interval)
	go a.bot.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down gracefully")
		err := a.server.Shutdown(timeoutCtx)
		if cerr := a.ch.Close(); cerr != nil {
			a.logger.Error("failed to close channel", slog.Any("err", cerr))
		}
		if cerr := a.conn.Close(); cerr != nil {
			a.logger.Error("failed to close connection", slog.Any("err", cerr))
		}
		a.db.DB.Close()
		return err
	}
}
