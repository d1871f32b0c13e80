package callcenter

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/voyage-crm/voyage/internal/platform/httpx"
	"github.com/voyage-crm/voyage/internal/rbac"
	"github.com/voyage-crm/voyage/internal/shared"
	"github.com/voyage-crm/voyage/internal/users"
)

// Handler exposes the call-center queues and calls.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers the call-center endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.rbac.RequireRole(users.RoleAdmin, users.RoleCallCenter))
	r.Get("/queue", h.queues)
	r.Post("/queue/{type}/{leadID}/assign-to-me", h.assignToMe)
	r.Get("/calls", h.list)
	r.Post("/calls", h.create)
	r.Get("/calls/{id}", h.show)
	r.Post("/calls/{id}/assign", h.assign)
	r.Post("/calls/{id}/start", h.start)
	r.Post("/calls/{id}/not-answered", h.notAnswered)
	r.Put("/calls/{id}/checklist", h.checklist)
	r.Post("/calls/{id}/complete", h.complete)
}

func (h *Handler) queues(w http.ResponseWriter, r *http.Request) {
	q, err := h.service.Queues(r.Context(), users.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "call queues", err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) assignToMe(w http.ResponseWriter, r *http.Request) {
	leadID, err := httpx.IDParam(r, "leadID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.service.AssignToMe(r.Context(), users.ActorFromContext(r.Context()), CallType(chi.URLParam(r, "type")), leadID)
	if err != nil {
		h.fail(w, "assign call to me", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := shared.PageFromRequest(r)
	filter := ListFilter{
		CallType: CallType(q.Get("call_type")),
		Status:   CallStatus(q.Get("status")),
		Limit:    page.Limit(),
		Offset:   page.Offset(),
	}
	if v := q.Get("lead_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.RespondError(w, ErrInvalid)
			return
		}
		filter.LeadID = &id
	}
	list, total, err := h.service.List(r.Context(), users.ActorFromContext(r.Context()), filter)
	if err != nil {
		h.fail(w, "list calls", err)
		return
	}
	httpx.JSON(w, http.StatusOK, shared.Paged[CallView]{Data: list, Pagination: shared.NewPagination(page, total)})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateCallRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.service.CreateCall(r.Context(), users.ActorFromContext(r.Context()), req)
	if err != nil {
		h.fail(w, "create call", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.service.Get(r.Context(), users.ActorFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, "get call", err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req AssignRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.service.AssignCall(r.Context(), users.ActorFromContext(r.Context()), id, req.UserID)
	if err != nil {
		h.fail(w, "assign call", err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "start call", h.service.StartCall)
}

func (h *Handler) notAnswered(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "mark call not answered", h.service.MarkNotAnswered)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, *users.User, int64) (*Call, error)) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := fn(r.Context(), users.ActorFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, op, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) checklist(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req ChecklistRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.service.UpdateChecklist(r.Context(), users.ActorFromContext(r.Context()), id, req)
	if err != nil {
		h.fail(w, "update call checklist", err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req CompleteRequest
	if r.ContentLength > 0 {
		if err := httpx.Bind(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	c, err := h.service.Complete(r.Context(), users.ActorFromContext(r.Context()), id, req)
	if err != nil {
		h.fail(w, "complete call", err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if h.logger != nil {
		h.logger.Warn(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
