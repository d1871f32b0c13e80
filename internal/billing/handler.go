package billing

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

// Handler exposes invoices, payments, vendor bills and lead costs.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the billing resources on the API router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/invoices", func(r chi.Router) {
		r.Get("/", h.listInvoices)
		r.Post("/", h.createInvoice)
		r.Get("/{id}", h.showInvoice)
		r.Patch("/{id}", h.updateInvoice)
		r.Delete("/{id}", h.deleteInvoice)
		r.Post("/{id}/payments", h.addPayment)
		r.Post("/{id}/vendor-bills", h.addVendorBill)
	})
	r.Route("/payments", func(r chi.Router) {
		r.Patch("/{id}", h.updatePayment)
		r.Delete("/{id}", h.deletePayment)
	})
	r.Route("/vendor-bills", func(r chi.Router) {
		r.Patch("/{id}", h.updateVendorBill)
		r.Delete("/{id}", h.deleteVendorBill)
		r.Post("/{id}/mark-paid", h.markBillPaid)
		r.Post("/{id}/mark-pending", h.markBillPending)
	})
	r.Route("/lead-costs", func(r chi.Router) {
		r.Get("/leads/{leadID}", h.listCosts)
		r.Post("/leads/{leadID}", h.addCost)
		r.Patch("/{id}", h.updateCost)
		r.Delete("/{id}", h.deleteCost)
		r.Post("/{id}/mark-paid", h.markCostPaid)
		r.Post("/{id}/mark-unpaid", h.markCostUnpaid)
	})
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := shared.PageFromRequest(r)
	filter := InvoiceFilter{
		CustomerStatus: PaymentStatus(q.Get("customer_status")),
		VendorStatus:   PaymentStatus(q.Get("vendor_status")),
		Search:         q.Get("search"),
		Limit:          page.Limit(),
		Offset:         page.Offset(),
	}
	if v := q.Get("lead_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.RespondError(w, ErrInvalid)
			return
		}
		filter.LeadID = &id
	}
	list, total, err := h.service.ListInvoices(r.Context(), users.ActorFromContext(r.Context()), filter)
	if err != nil {
		h.fail(w, "list invoices", err)
		return
	}
	if list == nil {
		list = []Invoice{}
	}
	httpx.JSON(w, http.StatusOK, shared.Paged[Invoice]{Data: list, Pagination: shared.NewPagination(page, total)})
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	var req CreateInvoiceRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	v, err := h.service.CreateInvoice(r.Context(), users.ActorFromContext(r.Context()), req)
	if err != nil {
		h.fail(w, "create invoice", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, v)
}

func (h *Handler) showInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	v, err := h.service.GetInvoice(r.Context(), users.ActorFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, "get invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

func (h *Handler) updateInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req UpdateInvoiceRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	v, err := h.service.UpdateInvoice(r.Context(), users.ActorFromContext(r.Context()), id, req)
	if err != nil {
		h.fail(w, "update invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

func (h *Handler) deleteInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteInvoice(r.Context(), users.ActorFromContext(r.Context()), id); err != nil {
		h.fail(w, "delete invoice", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) addPayment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req PaymentRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.AddPayment(r.Context(), users.ActorFromContext(r.Context()), id, req, r.Header.Get(shared.IdempotencyHeader))
	if err != nil {
		h.fail(w, "add payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) updatePayment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req UpdatePaymentRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.UpdatePayment(r.Context(), users.ActorFromContext(r.Context()), id, req)
	if err != nil {
		h.fail(w, "update payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) deletePayment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeletePayment(r.Context(), users.ActorFromContext(r.Context()), id); err != nil {
		h.fail(w, "delete payment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) addVendorBill(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req VendorBillRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	b, err := h.service.AddVendorBill(r.Context(), users.ActorFromContext(r.Context()), id, req)
	if err != nil {
		h.fail(w, "add vendor bill", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, b)
}

func (h *Handler) updateVendorBill(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req UpdateVendorBillRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	b, err := h.service.UpdateVendorBill(r.Context(), users.ActorFromContext(r.Context()), id, req)
	if err != nil {
		h.fail(w, "update vendor bill", err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

func (h *Handler) deleteVendorBill(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteVendorBill(r.Context(), users.ActorFromContext(r.Context()), id); err != nil {
		h.fail(w, "delete vendor bill", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type markPaidRequest struct {
	PaymentDate *time.Time `json:"payment_date,omitempty"`
}

func (h *Handler) markBillPaid(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req markPaidRequest
	if r.ContentLength != 0 {
		if err := httpx.Bind(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	b, err := h.service.MarkBillPaid(r.Context(), users.ActorFromContext(r.Context()), id, req.PaymentDate)
	if err != nil {
		h.fail(w, "mark vendor bill paid", err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

func (h *Handler) markBillPending(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	b, err := h.service.MarkBillPending(r.Context(), users.ActorFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, "mark vendor bill pending", err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

func (h *Handler) listCosts(w http.ResponseWriter, r *http.Request) {
	leadID, err := httpx.IDParam(r, "leadID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	v, err := h.service.ListCosts(r.Context(), users.ActorFromContext(r.Context()), leadID)
	if err != nil {
		h.fail(w, "list lead costs", err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

func (h *Handler) addCost(w http.ResponseWriter, r *http.Request) {
	leadID, err := httpx.IDParam(r, "leadID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req CostRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.service.AddCost(r.Context(), users.ActorFromContext(r.Context()), leadID, req)
	if err != nil {
		h.fail(w, "add lead cost", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

func (h *Handler) updateCost(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req UpdateCostRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.service.UpdateCost(r.Context(), users.ActorFromContext(r.Context()), id, req)
	if err != nil {
		h.fail(w, "update lead cost", err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) deleteCost(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteCost(r.Context(), users.ActorFromContext(r.Context()), id); err != nil {
		h.fail(w, "delete lead cost", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) markCostPaid(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.service.MarkCostPaid(r.Context(), users.ActorFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, "mark lead cost paid", err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) markCostUnpaid(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.service.MarkCostUnpaid(r.Context(), users.ActorFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, "mark lead cost unpaid", err)
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
