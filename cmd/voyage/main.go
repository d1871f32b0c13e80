package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/voyage-crm/voyage/cmd/voyage/cli"
	"github.com/voyage-crm/voyage/internal/app"
	"github.com/voyage-crm/voyage/internal/auth"
	"github.com/voyage-crm/voyage/internal/billing"
	"github.com/voyage-crm/voyage/internal/callcenter"
	"github.com/voyage-crm/voyage/internal/customers"
	"github.com/voyage-crm/voyage/internal/dashboard"
	"github.com/voyage-crm/voyage/internal/leads"
	"github.com/voyage-crm/voyage/internal/leaves"
	"github.com/voyage-crm/voyage/internal/notifications"
	"github.com/voyage-crm/voyage/internal/observability"
	"github.com/voyage-crm/voyage/internal/platform/cache"
	"github.com/voyage-crm/voyage/internal/platform/db"
	"github.com/voyage-crm/voyage/internal/rbac"
	"github.com/voyage-crm/voyage/internal/shared"
	"github.com/voyage-crm/voyage/internal/users"
	"github.com/voyage-crm/voyage/jobs"
	"github.com/voyage-crm/voyage/migrations"
)

const usage = `usage: voyage [serve | migrate | jobs trigger <task> | jobs stats]`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	args := os.Args[1:]
	cmd := "serve"
	if len(args) > 0 {
		cmd = args[0]
	}
	switch cmd {
	case "serve":
		err = serve(ctx, stop, cfg, logger)
	case "migrate":
		err = migrate(ctx, cfg, logger)
	case "jobs":
		err = jobsCommand(ctx, cfg, args[1:])
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error(cmd, slog.Any("error", err))
		os.Exit(1)
	}
}

func migrate(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PostgresOptions())
	if err != nil {
		return err
	}
	defer pool.Close()
	applied, err := db.Migrate(ctx, pool, migrations.FS, ".", logger)
	if err != nil {
		return err
	}
	logger.Info("migrations applied", slog.Int("count", applied))
	return nil
}

func jobsCommand(ctx context.Context, cfg *app.Config, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%s", usage)
	}
	c := cli.NewJobsCLI(cfg.AsynqRedis())
	defer c.Close()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			return fmt.Errorf("%s", usage)
		}
		info, err := c.Trigger(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s (%s) on %s\n", info.Type, info.ID, info.Queue)
	case "stats":
		stats, err := c.InspectQueues(ctx)
		if err != nil {
			return err
		}
		for _, s := range stats {
			fmt.Printf("%-10s pending=%d active=%d scheduled=%d retry=%d\n", s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry)
		}
	default:
		return fmt.Errorf("%s", usage)
	}
	return nil
}

func serve(ctx context.Context, stop context.CancelFunc, cfg *app.Config, logger *slog.Logger) error {
	dbpool, err := db.New(ctx, cfg.PostgresOptions())
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisOptions())
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpts := cfg.AsynqRedis()
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	params, err := buildRouterParams(cfg, logger, dbpool, redisClient, jobClient, inspector, metrics)
	if err != nil {
		return err
	}
	router := app.NewRouter(params)

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func buildRouterParams(
	cfg *app.Config,
	logger *slog.Logger,
	dbpool *pgxpool.Pool,
	redisClient *redis.Client,
	jobClient jobs.Enqueuer,
	inspector jobs.QueueInspector,
	metrics *observability.Metrics,
) (app.RouterParams, error) {
	sessionManager := shared.NewSessionManager(redisClient, "voyage_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	auditLogger := shared.NewAuditLogger()
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	dispatcher := notifications.NewDispatcher(jobClient, cfg.DefaultLocale, logger, metrics)
	dashboardCache := dashboard.NewCache(redisClient, cfg.DashboardCacheTTL, metrics)
	rbacMiddleware := rbac.Middleware{Logger: logger}

	authService := auth.NewService(auth.NewRepository(dbpool))
	usersService := users.NewService(users.NewRepository(dbpool), logger)
	rbacService := rbac.NewService(rbac.NewRepository(dbpool), auditLogger, logger)

	leadsService := leads.NewService(leads.NewRepository(dbpool), usersService, dispatcher, logger).
		WithCache(dashboardCache).
		WithMetrics(metrics)
	customersService := customers.NewService(customers.NewRepository(dbpool), logger)
	billingService := billing.NewService(billing.NewRepository(dbpool), auditLogger, dispatcher, logger).
		WithIdempotency(idempotencyStore).
		WithCache(dashboardCache).
		WithMetrics(metrics)
	callCenterService := callcenter.NewService(callcenter.NewRepository(dbpool), usersService, dispatcher, logger)
	leavesService := leaves.NewService(leaves.NewRepository(dbpool), usersService, auditLogger, dispatcher, logger)
	dashboardService := dashboard.NewService(dashboard.NewRepository(dbpool), dashboardCache, logger)

	translator, err := notifications.NewTranslator(cfg.DefaultLocale)
	if err != nil {
		return app.RouterParams{}, fmt.Errorf("load translations: %w", err)
	}
	notificationsService := notifications.NewService(notifications.NewRepository(dbpool), translator, logger, metrics)

	return app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		Metrics:        metrics,
		Pool:           dbpool,
		Redis:          redisClient,

		ActorLoader:      usersService,
		PermissionLoader: rbacService,

		AuthHandler:          auth.NewHandler(logger, authService, sessionManager, csrfManager),
		UsersHandler:         users.NewHandler(logger, usersService),
		PermissionsHandler:   rbac.NewHandler(logger, rbacService, rbacMiddleware),
		LeadsHandler:         leads.NewHandler(logger, leadsService),
		CustomersHandler:     customers.NewHandler(logger, customersService, rbacMiddleware),
		BillingHandler:       billing.NewHandler(logger, billingService),
		CallCenterHandler:    callcenter.NewHandler(logger, callCenterService, rbacMiddleware),
		LeavesHandler:        leaves.NewHandler(logger, leavesService),
		NotificationsHandler: notifications.NewHandler(logger, notificationsService),
		DashboardHandler:     dashboard.NewHandler(logger, dashboardService),
		JobHandler:           jobs.NewHandler(inspector, logger),
	}, nil
}
