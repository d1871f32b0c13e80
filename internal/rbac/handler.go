package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/voyage-crm/voyage/internal/platform/httpx"
	"github.com/voyage-crm/voyage/internal/shared"
	"github.com/voyage-crm/voyage/internal/users"
)

// Handler exposes permission administration.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    Middleware
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service, mw Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: mw}
}

// MountRoutes registers permission routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermPermissionsView, shared.PermPermissionsEdit))
		r.Get("/", h.listPermissions)
		r.Get("/groups", h.listGroups)
		r.Get("/users/{userID}", h.userGrants)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermPermissionsEdit))
		r.Post("/", h.createPermission)
		r.Post("/groups", h.saveGroup)
		r.Put("/groups/{id}", h.saveGroup)
		r.Delete("/groups/{id}", h.deleteGroup)
		r.Post("/users/{userID}/grants", h.grant)
		r.Delete("/users/{userID}/grants", h.revoke)
	})
}

type createPermissionRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

type groupRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

type grantRequest struct {
	Kind string `json:"kind" validate:"required,oneof=permission group"`
	Name string `json:"name" validate:"required"`
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context(), users.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "list permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": perms})
}

func (h *Handler) createPermission(w http.ResponseWriter, r *http.Request) {
	var req createPermissionRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.CreatePermission(r.Context(), users.ActorFromContext(r.Context()), req.Name, req.Description)
	if err != nil {
		h.fail(w, "create permission", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) listGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.ListGroups(r.Context(), users.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "list groups", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": groups})
}

func (h *Handler) saveGroup(w http.ResponseWriter, r *http.Request) {
	var id int64
	if chi.URLParam(r, "id") != "" {
		var err error
		if id, err = httpx.IDParam(r, "id"); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	var req groupRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	g, err := h.service.SaveGroup(r.Context(), users.ActorFromContext(r.Context()), id, req.Name, req.Description, req.Permissions)
	if err != nil {
		h.fail(w, "save group", err)
		return
	}
	status := http.StatusOK
	if id == 0 {
		status = http.StatusCreated
	}
	httpx.JSON(w, status, g)
}

func (h *Handler) deleteGroup(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteGroup(r.Context(), users.ActorFromContext(r.Context()), id); err != nil {
		h.fail(w, "delete group", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) userGrants(w http.ResponseWriter, r *http.Request) {
	userID, err := httpx.IDParam(r, "userID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	grants, effective, err := h.service.Grants(r.Context(), users.ActorFromContext(r.Context()), userID)
	if err != nil {
		h.fail(w, "user grants", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"grants": grants, "effective": effective})
}

func (h *Handler) grant(w http.ResponseWriter, r *http.Request)  { h.changeGrant(w, r, true) }
func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) { h.changeGrant(w, r, false) }

func (h *Handler) changeGrant(w http.ResponseWriter, r *http.Request, grant bool) {
	userID, err := httpx.IDParam(r, "userID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req grantRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor := users.ActorFromContext(r.Context())
	if grant {
		err = h.service.Grant(r.Context(), actor, userID, req.Kind, req.Name)
	} else {
		err = h.service.Revoke(r.Context(), actor, userID, req.Kind, req.Name)
	}
	if err != nil {
		h.fail(w, "change grant", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if h.logger != nil {
		h.logger.Warn(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
