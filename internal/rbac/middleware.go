package rbac

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/voyage-crm/voyage/internal/platform/httpx"
	"github.com/voyage-crm/voyage/internal/users"
)

// Middleware wires named permission checks for HTTP handlers. It relies on
// the actor placed in the request context by the auth middleware, whose
// Permissions already hold the effective grants.
type Middleware struct {
	Logger *slog.Logger
}

// RequireAny ensures the current user has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return m.require(normalizePermissions(perms), hasAnyPermission)
}

// RequireAll ensures the current user has all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	return m.require(normalizePermissions(perms), hasAllPermissions)
}

// RequireRole admits actors holding one of roles.
func (m Middleware) RequireRole(roles ...users.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := users.ActorFromContext(r.Context())
			if actor == nil {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			if !actor.HasRole(roles...) {
				m.deny(w, r, actor)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) require(required []string, check func(*users.User, []string) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(required) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			actor := users.ActorFromContext(r.Context())
			if actor == nil {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			if !check(actor, required) {
				m.deny(w, r, actor)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) deny(w http.ResponseWriter, r *http.Request, actor *users.User) {
	if m.Logger != nil {
		m.Logger.Warn("rbac denied", slog.Int64("user_id", actor.ID), slog.String("path", r.URL.Path))
	}
	httpx.RespondError(w, httpx.ErrForbidden)
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		if _, seen := unique[p]; seen {
			continue
		}
		unique[p] = struct{}{}
		normalized = append(normalized, p)
	}
	return normalized
}

func hasAnyPermission(actor *users.User, required []string) bool {
	for _, p := range required {
		if actor.HasPermission(p) {
			return true
		}
	}
	return false
}

func hasAllPermissions(actor *users.User, required []string) bool {
	for _, p := range required {
		if !actor.HasPermission(p) {
			return false
		}
	}
	return true
}
