package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/voyage-crm/voyage/internal/app"
	"github.com/voyage-crm/voyage/internal/callcenter"
	jobmetrics "github.com/voyage-crm/voyage/internal/jobs"
	"github.com/voyage-crm/voyage/internal/notifications"
	"github.com/voyage-crm/voyage/internal/observability"
	"github.com/voyage-crm/voyage/internal/platform/db"
	"github.com/voyage-crm/voyage/internal/shared"
	"github.com/voyage-crm/voyage/internal/users"
	"github.com/voyage-crm/voyage/jobs"
)

const idempotencyRetention = 7 * 24 * time.Hour

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PostgresOptions())
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisOpts := cfg.AsynqRedis()
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	translator, err := notifications.NewTranslator(cfg.DefaultLocale)
	if err != nil {
		logger.Error("load translations", slog.Any("error", err))
		os.Exit(1)
	}
	notificationService := notifications.NewService(notifications.NewRepository(pool), translator, logger, metrics)
	dispatcher := notifications.NewDispatcher(jobClient, cfg.DefaultLocale, logger, metrics)
	usersService := users.NewService(users.NewRepository(pool), logger)
	callCenterService := callcenter.NewService(callcenter.NewRepository(pool), usersService, dispatcher, logger)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	deliverJob := jobs.NewNotificationDeliverJob(notificationService, logger, jobMetrics)
	scanJob := jobs.NewCallCenterQueueScanJob(callCenterService, logger, jobMetrics)
	cleanupJob := jobs.NewIdempotencyCleanupJob(idempotencyStore, logger, jobMetrics)

	scanTask, err := jobs.NewCallCenterQueueScanTask()
	if err != nil {
		logger.Error("build queue scan task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(idempotencyRetention)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskNotificationDeliver, Handler: deliverJob.Handle},
			{Type: jobs.TaskCallCenterQueueScan, Handler: scanJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 6 * * *", Task: scanTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 3 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker started", slog.Int("concurrency", cfg.WorkerConcurrency))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
