package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/voyage-crm/voyage/internal/auth"
	"github.com/voyage-crm/voyage/internal/billing"
	"github.com/voyage-crm/voyage/internal/callcenter"
	"github.com/voyage-crm/voyage/internal/customers"
	"github.com/voyage-crm/voyage/internal/dashboard"
	"github.com/voyage-crm/voyage/internal/leads"
	"github.com/voyage-crm/voyage/internal/leaves"
	"github.com/voyage-crm/voyage/internal/notifications"
	"github.com/voyage-crm/voyage/internal/observability"
	"github.com/voyage-crm/voyage/internal/platform/httpx"
	"github.com/voyage-crm/voyage/internal/rbac"
	"github.com/voyage-crm/voyage/internal/shared"
	"github.com/voyage-crm/voyage/internal/users"
	"github.com/voyage-crm/voyage/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Metrics        *observability.Metrics
	Pool           *pgxpool.Pool
	Redis          *redis.Client

	ActorLoader      auth.ActorLoader
	PermissionLoader auth.PermissionLoader

	AuthHandler          *auth.Handler
	UsersHandler         *users.Handler
	PermissionsHandler   *rbac.Handler
	LeadsHandler         *leads.Handler
	CustomersHandler     *customers.Handler
	BillingHandler       *billing.Handler
	CallCenterHandler    *callcenter.Handler
	LeavesHandler        *leaves.Handler
	NotificationsHandler *notifications.Handler
	DashboardHandler     *dashboard.Handler
	JobHandler           *jobs.Handler
}

// NewRouter constructs the chi.Router with Voyage defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}
	r.Use(chimw.Logger)

	r.Get("/healthz", healthz(params.Pool, params.Redis))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		if params.ActorLoader != nil {
			r.Use(auth.Actor(params.ActorLoader, params.PermissionLoader, params.Logger))
		}
		if params.AuthHandler != nil {
			r.Route("/auth", params.AuthHandler.MountRoutes)
		}

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireActor)
			mount(r, "/users", params.UsersHandler)
			mount(r, "/permissions", params.PermissionsHandler)
			mount(r, "/leads", params.LeadsHandler)
			mount(r, "/customers", params.CustomersHandler)
			mount(r, "/call-center", params.CallCenterHandler)
			mount(r, "/leaves", params.LeavesHandler)
			mount(r, "/notifications", params.NotificationsHandler)
			mount(r, "/dashboard", params.DashboardHandler)
			if params.BillingHandler != nil {
				params.BillingHandler.MountRoutes(r)
			}
			if params.JobHandler != nil {
				r.Route("/jobs", func(r chi.Router) {
					r.Use(rbac.Middleware{Logger: params.Logger}.RequireRole(users.RoleAdmin))
					params.JobHandler.MountRoutes(r)
				})
			}
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "")
	})
	return r
}

type routeMounter interface {
	MountRoutes(r chi.Router)
}

// mount skips handlers that were not wired.
func mount[H routeMounter](r chi.Router, pattern string, h H) {
	var zero H
	if any(h) == any(zero) {
		return
	}
	r.Route(pattern, h.MountRoutes)
}

func healthz(pool *pgxpool.Pool, rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := map[string]string{"status": "ok"}
		code := http.StatusOK
		if pool != nil {
			if err := pool.Ping(ctx); err != nil {
				status["postgres"] = err.Error()
				status["status"] = "degraded"
				code = http.StatusServiceUnavailable
			}
		}
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				status["redis"] = err.Error()
				status["status"] = "degraded"
				code = http.StatusServiceUnavailable
			}
		}
		httpx.JSON(w, code, status)
	}
}
