package leads

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/voyage-crm/voyage/internal/platform/httpx"
	"github.com/voyage-crm/voyage/internal/shared"
	"github.com/voyage-crm/voyage/internal/users"
)

// Handler exposes the lead endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers lead routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/options", h.options)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.show)
		r.Patch("/", h.update)
		r.Delete("/", h.delete)
		r.Post("/restore", h.restore)
		r.Post("/actions/{action}", h.perform)
		r.Post("/archive", h.archive)
		r.Post("/unarchive", h.unarchive)
		r.Put("/services/{service}", h.updateService)
		r.Get("/history", h.history)
		r.Get("/notes", h.notes)
		r.Post("/notes", h.addNote)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := shared.PageFromRequest(r)
	filter := ListFilter{
		View:     View(q.Get("view")),
		Status:   Status(q.Get("status")),
		Platform: Platform(q.Get("platform")),
		Search:   q.Get("search"),
		Limit:    page.Limit(),
		Offset:   page.Offset(),
	}
	if v := q.Get("assigned_to"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.RespondError(w, ErrInvalid)
			return
		}
		filter.AssignedTo = &id
	}
	switch filter.View {
	case "", ViewActive, ViewArchived, ViewTrash:
	default:
		httpx.RespondError(w, ErrInvalid)
		return
	}
	list, total, err := h.service.List(r.Context(), users.ActorFromContext(r.Context()), filter)
	if err != nil {
		h.fail(w, "list leads", err)
		return
	}
	httpx.JSON(w, http.StatusOK, shared.Paged[LeadView]{Data: list, Pagination: shared.NewPagination(page, total)})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateLeadRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	l, err := h.service.Create(r.Context(), users.ActorFromContext(r.Context()), req)
	if err != nil {
		h.fail(w, "create lead", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, l)
}

func (h *Handler) options(w http.ResponseWriter, r *http.Request) {
	out := EnumOptions()
	for _, a := range actionOrder {
		out["action"] = append(out["action"], Option{Value: string(a), Label: a.Label()})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	v, err := h.service.Get(r.Context(), users.ActorFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, "get lead", err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req UpdateLeadRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	v, err := h.service.Update(r.Context(), users.ActorFromContext(r.Context()), id, req)
	if err != nil {
		h.fail(w, "update lead", err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), users.ActorFromContext(r.Context()), id); err != nil {
		h.fail(w, "delete lead", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) restore(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	v, err := h.service.Restore(r.Context(), users.ActorFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, "restore lead", err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

func (h *Handler) perform(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req ActionRequest
	if r.ContentLength != 0 {
		if err := httpx.Bind(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	action := Action(chi.URLParam(r, "action"))
	v, err := h.service.Perform(r.Context(), users.ActorFromContext(r.Context()), id, action, req)
	if err != nil {
		h.fail(w, "lead action", err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

func (h *Handler) archive(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	v, err := h.service.Archive(r.Context(), users.ActorFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, "archive lead", err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

func (h *Handler) unarchive(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	v, err := h.service.Unarchive(r.Context(), users.ActorFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, "unarchive lead", err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

func (h *Handler) updateService(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req ServiceStatusRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	service := Component(chi.URLParam(r, "service"))
	v, err := h.service.UpdateServiceStatus(r.Context(), users.ActorFromContext(r.Context()), id, service, ServiceStatus(req.Status))
	if err != nil {
		h.fail(w, "update service status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	logs, err := h.service.History(r.Context(), users.ActorFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, "lead history", err)
		return
	}
	if logs == nil {
		logs = []ActionLog{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": logs})
}

func (h *Handler) notes(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	notes, err := h.service.Notes(r.Context(), users.ActorFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, "lead notes", err)
		return
	}
	if notes == nil {
		notes = []Note{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": notes})
}

func (h *Handler) addNote(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req NoteRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	n, err := h.service.AddNote(r.Context(), users.ActorFromContext(r.Context()), id, req.Body)
	if err != nil {
		h.fail(w, "add lead note", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, n)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if h.logger != nil {
		h.logger.Warn(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
