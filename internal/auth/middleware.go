package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/voyage-crm/voyage/internal/platform/httpx"
	"github.com/voyage-crm/voyage/internal/shared"
	"github.com/voyage-crm/voyage/internal/users"
)

// ActorLoader resolves the session user and its effective permissions.
type ActorLoader interface {
	Lookup(ctx context.Context, id int64) (*users.User, error)
}

// PermissionLoader returns the named permissions granted to a user.
type PermissionLoader interface {
	EffectivePermissions(ctx context.Context, userID int64) ([]string, error)
}

// Actor places the authenticated user in the request context. Requests
// without a session user pass through anonymously.
func Actor(loader ActorLoader, perms PermissionLoader, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := shared.SessionFromContext(r.Context())
			id := sess.UserID()
			if id == 0 {
				next.ServeHTTP(w, r)
				return
			}
			u, err := loader.Lookup(r.Context(), id)
			if err != nil {
				if !errors.Is(err, users.ErrNotFound) {
					logger.Error("load actor", slog.Int64("user_id", id), slog.Any("error", err))
					httpx.RespondError(w, err)
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			if !u.Active {
				next.ServeHTTP(w, r)
				return
			}
			if perms != nil && !u.IsAdmin() {
				granted, err := perms.EffectivePermissions(r.Context(), u.ID)
				if err != nil {
					logger.Error("load permissions", slog.Int64("user_id", id), slog.Any("error", err))
					httpx.RespondError(w, err)
					return
				}
				u.Permissions = granted
			}
			next.ServeHTTP(w, r.WithContext(users.WithActor(r.Context(), u)))
		})
	}
}

// RequireActor rejects anonymous requests with 401.
func RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if users.ActorFromContext(r.Context()) == nil {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
