package leaves

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/voyage-crm/voyage/internal/platform/httpx"
	"github.com/voyage-crm/voyage/internal/shared"
	"github.com/voyage-crm/voyage/internal/users"
)

// Handler exposes leave requests, office closures and the calendar.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the leave endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.request)
	r.Get("/calendar", h.calendar)
	r.Route("/closures", func(r chi.Router) {
		r.Get("/", h.listClosures)
		r.Post("/", h.createClosure)
		r.Put("/{id}", h.updateClosure)
		r.Delete("/{id}", h.deleteClosure)
	})
	r.Get("/{id}", h.show)
	r.Post("/{id}/approve", h.approve)
	r.Post("/{id}/reject", h.reject)
	r.Post("/{id}/cancel", h.cancel)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := shared.PageFromRequest(r)
	filter := ListFilter{
		Status: Status(q.Get("status")),
		Type:   Type(q.Get("type")),
		Limit:  page.Limit(),
		Offset: page.Offset(),
	}
	if v := q.Get("user_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.RespondError(w, ErrInvalid)
			return
		}
		filter.UserID = &id
	}
	var err error
	if filter.From, err = dateQuery(r, "from"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.To, err = dateQuery(r, "to"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, total, err := h.service.List(r.Context(), users.ActorFromContext(r.Context()), filter)
	if err != nil {
		h.fail(w, "list leaves", err)
		return
	}
	httpx.JSON(w, http.StatusOK, shared.Paged[LeaveView]{Data: list, Pagination: shared.NewPagination(page, total)})
}

func (h *Handler) request(w http.ResponseWriter, r *http.Request) {
	var req CreateLeaveRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	v, err := h.service.Request(r.Context(), users.ActorFromContext(r.Context()), req)
	if err != nil {
		h.fail(w, "request leave", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, v)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	v, err := h.service.Get(r.Context(), users.ActorFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, "get leave", err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	v, err := h.service.Approve(r.Context(), users.ActorFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, "approve leave", err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req RejectRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	v, err := h.service.Reject(r.Context(), users.ActorFromContext(r.Context()), id, req.Reason)
	if err != nil {
		h.fail(w, "reject leave", err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	v, err := h.service.Cancel(r.Context(), users.ActorFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, "cancel leave", err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

func (h *Handler) calendar(w http.ResponseWriter, r *http.Request) {
	from, err := dateQuery(r, "from")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	to, err := dateQuery(r, "to")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if from == nil || to == nil {
		now := time.Now().UTC()
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(0, 1, -1)
		from, to = &start, &end
	}
	entries, err := h.service.Calendar(r.Context(), users.ActorFromContext(r.Context()), *from, *to)
	if err != nil {
		h.fail(w, "leave calendar", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": entries})
}

func (h *Handler) listClosures(w http.ResponseWriter, r *http.Request) {
	from, err := dateQuery(r, "from")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	to, err := dateQuery(r, "to")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, err := h.service.ListClosures(r.Context(), users.ActorFromContext(r.Context()), from, to)
	if err != nil {
		h.fail(w, "list closures", err)
		return
	}
	if list == nil {
		list = []OfficeClosure{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": list})
}

func (h *Handler) createClosure(w http.ResponseWriter, r *http.Request) {
	var req ClosureRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.service.CreateClosure(r.Context(), users.ActorFromContext(r.Context()), req)
	if err != nil {
		h.fail(w, "create closure", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

func (h *Handler) updateClosure(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req ClosureRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.service.UpdateClosure(r.Context(), users.ActorFromContext(r.Context()), id, req)
	if err != nil {
		h.fail(w, "update closure", err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) deleteClosure(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteClosure(r.Context(), users.ActorFromContext(r.Context()), id); err != nil {
		h.fail(w, "delete closure", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func dateQuery(r *http.Request, key string) (*time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return nil, ErrInvalid
	}
	return &t, nil
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if h.logger != nil {
		h.logger.Warn(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
