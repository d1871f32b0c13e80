package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/voyage-crm/voyage/internal/notifications"
	"github.com/voyage-crm/voyage/internal/observability"
	"github.com/voyage-crm/voyage/internal/platform/db"
	"github.com/voyage-crm/voyage/internal/shared"
	"github.com/voyage-crm/voyage/internal/users"
)

const paymentIdempotencyModule = "billing.payment"

// Notifier delivers a message to a set of users.
type Notifier interface {
	Notify(ctx context.Context, recipients []int64, msg notifications.Message) error
}

// CacheInvalidator drops cached financial aggregates.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// IdempotencyGuard claims request keys inside the caller's transaction.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, exec db.DBTX, key, module string) error
}

// Service keeps invoices consistent with their payments and vendor bills.
// Every child mutation recomputes the parent invoice in the same
// transaction, after locking the invoice row.
type Service struct {
	repo     Repository
	auditor  shared.Auditor
	notifier Notifier
	idem     IdempotencyGuard
	cache    CacheInvalidator
	metrics  *observability.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds Service instance. auditor and notifier may be nil.
func NewService(repo Repository, auditor shared.Auditor, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if auditor == nil {
		auditor = shared.NopAuditor{}
	}
	return &Service{
		repo:     repo,
		auditor:  auditor,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithIdempotency enables Idempotency-Key handling for payment creation.
func (s *Service) WithIdempotency(g IdempotencyGuard) *Service {
	s.idem = g
	return s
}

// WithCache registers the cache dropped after every financial mutation.
func (s *Service) WithCache(c CacheInvalidator) *Service {
	s.cache = c
	return s
}

// WithMetrics registers the Prometheus collectors.
func (s *Service) WithMetrics(m *observability.Metrics) *Service {
	s.metrics = m
	return s
}

// recompute derives the invoice columns from the current children and
// persists them. It returns the invoice before and after.
func (s *Service) recompute(ctx context.Context, tx Repository, invoiceID int64) (before, after *Invoice, err error) {
	inv, err := tx.LockInvoice(ctx, invoiceID)
	if err != nil {
		return nil, nil, err
	}
	payments, err := tx.ListPayments(ctx, invoiceID)
	if err != nil {
		return nil, nil, fmt.Errorf("load payments: %w", err)
	}
	bills, err := tx.ListBills(ctx, invoiceID)
	if err != nil {
		return nil, nil, fmt.Errorf("load vendor bills: %w", err)
	}
	prev := *inv
	rec := Reconcile(inv.TotalAmount, payments, bills)
	if err := tx.SaveReconciliation(ctx, invoiceID, rec); err != nil {
		return nil, nil, fmt.Errorf("save reconciliation: %w", err)
	}
	rec.Apply(inv)
	return &prev, inv, nil
}

// ListInvoices returns invoices visible to actor.
func (s *Service) ListInvoices(ctx context.Context, actor *users.User, filter InvoiceFilter) ([]Invoice, int, error) {
	scope := ScopeFor(actor)
	if scope.None {
		return nil, 0, ErrForbidden
	}
	return s.repo.ListInvoices(ctx, filter, scope)
}

// GetInvoice returns the invoice with its payments, bills and totals.
// Invoices of leads outside the actor's scope are reported as not found.
func (s *Service) GetInvoice(ctx context.Context, actor *users.User, id int64) (*InvoiceView, error) {
	inv, lead, err := s.visibleInvoice(ctx, s.repo, actor, id)
	if err != nil {
		return nil, err
	}
	payments, err := s.repo.ListPayments(ctx, id)
	if err != nil {
		return nil, err
	}
	bills, err := s.repo.ListBills(ctx, id)
	if err != nil {
		return nil, err
	}
	return buildView(actor, inv, lead, payments, bills), nil
}

func (s *Service) visibleInvoice(ctx context.Context, repo Repository, actor *users.User, id int64) (*Invoice, *LeadRef, error) {
	inv, err := repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	lead, err := repo.LeadRef(ctx, inv.LeadID)
	if err != nil {
		return nil, nil, err
	}
	if !CanViewInvoices(actor, lead) {
		return nil, nil, ErrNotFound
	}
	return inv, lead, nil
}

// lockVisibleInvoice locks an invoice for update. Invoices the actor cannot
// see are reported missing before anything is written.
func (s *Service) lockVisibleInvoice(ctx context.Context, tx Repository, actor *users.User, id int64) (*Invoice, error) {
	inv, lead, err := lockedInvoiceLead(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !CanViewInvoices(actor, lead) {
		return nil, ErrNotFound
	}
	return inv, nil
}

func buildView(actor *users.User, inv *Invoice, lead *LeadRef, payments []CustomerPayment, bills []VendorBill) *InvoiceView {
	if payments == nil {
		payments = []CustomerPayment{}
	}
	if bills == nil {
		bills = []VendorBill{}
	}
	totalBills := SumBills(bills, false)
	profit := Profit(inv.TotalAmount, bills)
	return &InvoiceView{
		Invoice:               *inv,
		Lead:                  lead,
		Payments:              payments,
		VendorBills:           bills,
		TotalCustomerPayments: SumPayments(payments),
		TotalVendorBills:      totalBills,
		VendorOutstanding:     Money(totalBills.Sub(SumBills(bills, true))),
		Profit:                profit,
		ProfitMargin:          ProfitMargin(inv.TotalAmount, profit),
		CustomerStatusLabel:   inv.CustomerPaymentStatus.Label(),
		CustomerStatusColor:   inv.CustomerPaymentStatus.Color(),
		VendorStatusLabel:     inv.VendorPaymentStatus.Label(),
		VendorStatusColor:     inv.VendorPaymentStatus.Color(),
		CanManage:             CanManageInvoices(actor),
		CanManageVendorBills:  CanManageVendorBills(actor, lead),
		CanSettleVendorBills:  CanSettleVendorBills(actor),
	}
}

// CreateInvoice raises an invoice for a confirmed lead.
func (s *Service) CreateInvoice(ctx context.Context, actor *users.User, req CreateInvoiceRequest) (*InvoiceView, error) {
	if !CanManageInvoices(actor) {
		return nil, ErrForbidden
	}
	number := strings.TrimSpace(req.InvoiceNumber)
	if number == "" {
		return nil, fmt.Errorf("%w: invoice number is required", ErrInvalid)
	}
	total := Money(req.TotalAmount)
	if !total.IsPositive() {
		return nil, fmt.Errorf("%w: total amount must be positive", ErrInvalid)
	}
	issue := s.now()
	if req.IssueDate != nil {
		issue = *req.IssueDate
	}
	issue = truncateDay(issue)
	if req.DueDate != nil && truncateDay(*req.DueDate).Before(issue) {
		return nil, fmt.Errorf("%w: due date must not be before issue date", ErrInvalid)
	}

	var (
		created *Invoice
		lead    *LeadRef
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		var err error
		lead, err = tx.LeadRef(ctx, req.LeadID)
		if err != nil {
			return err
		}
		if !CanViewInvoices(actor, lead) {
			return ErrNotFound
		}
		if !lead.Status.InvoiceReady() {
			return ErrLeadNotReady
		}
		creator := actor.ID
		inv := Invoice{
			InvoiceNumber: number,
			LeadID:        lead.ID,
			TotalAmount:   total,
			IssueDate:     issue,
			DueDate:       dayPtr(req.DueDate),
			Notes:         req.Notes,
			CreatedBy:     &creator,
		}
		Reconcile(total, nil, nil).Apply(&inv)
		created, err = tx.CreateInvoice(ctx, inv)
		if err != nil {
			return err
		}
		return s.audit(ctx, tx, actor, "invoice", "invoice.create", created.ID, map[string]any{
			"invoice_number": created.InvoiceNumber,
			"lead_id":        lead.ID,
			"total_amount":   total.StringFixed(2),
		})
	})
	if err != nil {
		return nil, err
	}
	s.mutated(ctx, "invoice_create")
	s.logger.Info("invoice created", slog.Int64("invoice_id", created.ID), slog.String("number", created.InvoiceNumber), slog.Int64("actor_id", actor.ID))
	return buildView(actor, created, lead, nil, nil), nil
}

// UpdateInvoice edits an invoice. A new total recomputes balance and status.
func (s *Service) UpdateInvoice(ctx context.Context, actor *users.User, id int64, req UpdateInvoiceRequest) (*InvoiceView, error) {
	if !CanManageInvoices(actor) {
		return nil, ErrForbidden
	}
	changes := InvoiceChanges{
		IssueDate:    dayPtr(req.IssueDate),
		DueDate:      dayPtr(req.DueDate),
		ClearDueDate: req.ClearDueDate,
		Notes:        req.Notes,
	}
	if req.TotalAmount != nil {
		total := Money(*req.TotalAmount)
		if !total.IsPositive() {
			return nil, fmt.Errorf("%w: total amount must be positive", ErrInvalid)
		}
		changes.TotalAmount = &total
	}
	var before, after *Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		current, err := s.lockVisibleInvoice(ctx, tx, actor, id)
		if err != nil {
			return err
		}
		issue := current.IssueDate
		if changes.IssueDate != nil {
			issue = *changes.IssueDate
		}
		due := current.DueDate
		if changes.DueDate != nil {
			due = changes.DueDate
		}
		if !changes.ClearDueDate && due != nil && due.Before(truncateDay(issue)) {
			return fmt.Errorf("%w: due date must not be before issue date", ErrInvalid)
		}
		if _, err := tx.UpdateInvoice(ctx, id, changes); err != nil {
			return err
		}
		before, after, err = s.recompute(ctx, tx, id)
		if err != nil {
			return err
		}
		meta := map[string]any{}
		if changes.TotalAmount != nil {
			meta["total_amount"] = changes.TotalAmount.StringFixed(2)
			meta["previous_total"] = current.TotalAmount.StringFixed(2)
		}
		return s.audit(ctx, tx, actor, "invoice", "invoice.update", id, meta)
	})
	if err != nil {
		return nil, err
	}
	s.mutated(ctx, "invoice_update")
	s.afterRecompute(ctx, actor, before, after)
	return s.GetInvoice(ctx, actor, id)
}

// DeleteInvoice removes an invoice with its payments and bills.
func (s *Service) DeleteInvoice(ctx context.Context, actor *users.User, id int64) error {
	if !CanManageInvoices(actor) {
		return ErrForbidden
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		inv, err := s.lockVisibleInvoice(ctx, tx, actor, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteInvoice(ctx, id); err != nil {
			return err
		}
		return s.audit(ctx, tx, actor, "invoice", "invoice.delete", id, map[string]any{"invoice_number": inv.InvoiceNumber})
	})
	if err != nil {
		return err
	}
	s.mutated(ctx, "invoice_delete")
	return nil
}

// AddPayment records a customer payment. A non-empty idempotencyKey makes
// the call safe to retry: a replay returns ErrDuplicateRequest.
func (s *Service) AddPayment(ctx context.Context, actor *users.User, invoiceID int64, req PaymentRequest, idempotencyKey string) (*CustomerPayment, error) {
	if !CanManageInvoices(actor) {
		return nil, ErrForbidden
	}
	amount := Money(req.Amount)
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalid)
	}
	method := PaymentMethod(req.PaymentMethod)
	if method == "" {
		method = MethodBankTransfer
	}
	if !method.Valid() {
		return nil, fmt.Errorf("%w: unknown payment method", ErrInvalid)
	}
	if req.PaymentDate.IsZero() {
		return nil, fmt.Errorf("%w: payment date is required", ErrInvalid)
	}

	var (
		payment       *CustomerPayment
		before, after *Invoice
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if _, err := s.lockVisibleInvoice(ctx, tx, actor, invoiceID); err != nil {
			return err
		}
		if idempotencyKey != "" && s.idem != nil {
			err := s.idem.CheckAndInsert(ctx, tx.Exec(), idempotencyKey, paymentIdempotencyModule)
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return ErrDuplicateRequest
			}
			if err != nil {
				return err
			}
		}
		creator := actor.ID
		var err error
		payment, err = tx.CreatePayment(ctx, CustomerPayment{
			InvoiceID:     invoiceID,
			Amount:        amount,
			PaymentDate:   truncateDay(req.PaymentDate),
			ReceiptNumber: strings.TrimSpace(req.ReceiptNumber),
			PaymentMethod: method,
			Notes:         req.Notes,
			CreatedBy:     &creator,
		})
		if err != nil {
			return err
		}
		before, after, err = s.recompute(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		return s.audit(ctx, tx, actor, "invoice", "payment.create", invoiceID, map[string]any{
			"payment_id": payment.ID,
			"amount":     amount.StringFixed(2),
			"balance":    after.BalanceAmount.StringFixed(2),
		})
	})
	if err != nil {
		return nil, err
	}
	s.mutated(ctx, "payment_create")
	s.afterRecompute(ctx, actor, before, after)
	return payment, nil
}

// UpdatePayment edits a payment and recomputes its invoice.
func (s *Service) UpdatePayment(ctx context.Context, actor *users.User, id int64, req UpdatePaymentRequest) (*CustomerPayment, error) {
	if !CanManageInvoices(actor) {
		return nil, ErrForbidden
	}
	changes := PaymentChanges{
		PaymentDate:   dayPtr(req.PaymentDate),
		ReceiptNumber: trimPtr(req.ReceiptNumber),
		Notes:         req.Notes,
	}
	if req.Amount != nil {
		amount := Money(*req.Amount)
		if !amount.IsPositive() {
			return nil, fmt.Errorf("%w: amount must be positive", ErrInvalid)
		}
		changes.Amount = &amount
	}
	if req.PaymentMethod != nil {
		m := PaymentMethod(*req.PaymentMethod)
		if !m.Valid() {
			return nil, fmt.Errorf("%w: unknown payment method", ErrInvalid)
		}
		changes.PaymentMethod = &m
	}

	var (
		payment       *CustomerPayment
		before, after *Invoice
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		current, err := tx.GetPayment(ctx, id)
		if err != nil {
			return err
		}
		if _, err := s.lockVisibleInvoice(ctx, tx, actor, current.InvoiceID); err != nil {
			return err
		}
		payment, err = tx.UpdatePayment(ctx, id, changes)
		if err != nil {
			return err
		}
		before, after, err = s.recompute(ctx, tx, current.InvoiceID)
		if err != nil {
			return err
		}
		return s.audit(ctx, tx, actor, "invoice", "payment.update", current.InvoiceID, map[string]any{
			"payment_id":      id,
			"amount":          payment.Amount.StringFixed(2),
			"previous_amount": current.Amount.StringFixed(2),
		})
	})
	if err != nil {
		return nil, err
	}
	s.mutated(ctx, "payment_update")
	s.afterRecompute(ctx, actor, before, after)
	return payment, nil
}

// DeletePayment removes a payment and recomputes its invoice.
func (s *Service) DeletePayment(ctx context.Context, actor *users.User, id int64) error {
	if !CanManageInvoices(actor) {
		return ErrForbidden
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		current, err := tx.GetPayment(ctx, id)
		if err != nil {
			return err
		}
		if _, err := s.lockVisibleInvoice(ctx, tx, actor, current.InvoiceID); err != nil {
			return err
		}
		if err := tx.DeletePayment(ctx, id); err != nil {
			return err
		}
		if _, _, err := s.recompute(ctx, tx, current.InvoiceID); err != nil {
			return err
		}
		return s.audit(ctx, tx, actor, "invoice", "payment.delete", current.InvoiceID, map[string]any{
			"payment_id": id,
			"amount":     current.Amount.StringFixed(2),
		})
	})
	if err != nil {
		return err
	}
	s.mutated(ctx, "payment_delete")
	return nil
}

// afterRecompute announces an invoice that just became fully paid.
func (s *Service) afterRecompute(ctx context.Context, actor *users.User, before, after *Invoice) {
	if before == nil || after == nil {
		return
	}
	if before.CustomerPaymentStatus == PaymentPaid || after.CustomerPaymentStatus != PaymentPaid {
		return
	}
	lead, err := s.repo.LeadRef(ctx, after.LeadID)
	if err != nil {
		s.logger.Warn("invoice paid: load lead", slog.Int64("invoice_id", after.ID), slog.Any("error", err))
		return
	}
	var recipients []int64
	for _, id := range []*int64{lead.AssignedTo, lead.AssignedOperator, after.CreatedBy} {
		if id != nil && *id != actor.ID {
			recipients = append(recipients, *id)
		}
	}
	s.notify(ctx, notifications.Unique(recipients), notifications.Message{
		Key:     notifications.KeyInvoicePaid,
		Params:  map[string]string{"number": after.InvoiceNumber, "reference": lead.ReferenceID},
		Amounts: map[string]string{"amount": after.TotalAmount.StringFixed(2)},
		Data:    map[string]any{"invoice_id": after.ID, "lead_id": lead.ID},
	})
}

// audit records action against entity inside tx.
func (s *Service) audit(ctx context.Context, tx Repository, actor *users.User, entity, action string, entityID int64, meta map[string]any) error {
	return s.auditor.Record(ctx, tx.Exec(), shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Meta:     meta,
		At:       s.now(),
	})
}

func (s *Service) mutated(ctx context.Context, kind string) {
	s.metrics.BillingMutation(kind)
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("invalidate dashboard cache", slog.Any("error", err))
	}
}

func (s *Service) notify(ctx context.Context, recipients []int64, msg notifications.Message) {
	if s.notifier == nil || len(recipients) == 0 {
		return
	}
	if err := s.notifier.Notify(ctx, recipients, msg); err != nil {
		s.logger.Warn("notify", slog.String("key", msg.Key), slog.Any("error", err))
	}
}

func dayPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := truncateDay(*t)
	return &d
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

func nonNegative(d decimal.Decimal, field string) (decimal.Decimal, error) {
	d = Money(d)
	if d.IsNegative() {
		return d, fmt.Errorf("%w: %s must not be negative", ErrInvalid, field)
	}
	return d, nil
}
