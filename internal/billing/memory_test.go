package billing

import (
	"context"
	"sort"
	"time"

	"github.com/voyage-crm/voyage/internal/platform/db"
	"github.com/voyage-crm/voyage/internal/shared"
	"github.com/voyage-crm/voyage/internal/users"
)

type memoryBillingRepo struct {
	nextID   int64
	leads    map[int64]*LeadRef
	invoices map[int64]*Invoice
	payments map[int64]*CustomerPayment
	bills    map[int64]*VendorBill
	costs    map[int64]*LeadCost
	locks    int
	saves    int
}

func newMemoryBillingRepo() *memoryBillingRepo {
	return &memoryBillingRepo{
		leads:    map[int64]*LeadRef{},
		invoices: map[int64]*Invoice{},
		payments: map[int64]*CustomerPayment{},
		bills:    map[int64]*VendorBill{},
		costs:    map[int64]*LeadCost{},
	}
}

func (m *memoryBillingRepo) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memoryBillingRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, m)
}

func (m *memoryBillingRepo) Exec() db.DBTX { return nil }

func (m *memoryBillingRepo) LeadRef(_ context.Context, id int64) (*LeadRef, error) {
	l, ok := m.leads[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *memoryBillingRepo) CreateInvoice(_ context.Context, inv Invoice) (*Invoice, error) {
	for _, existing := range m.invoices {
		if existing.InvoiceNumber == inv.InvoiceNumber {
			return nil, ErrDuplicateNumber
		}
	}
	inv.ID = m.id()
	inv.CreatedAt = time.Now().UTC()
	inv.UpdatedAt = inv.CreatedAt
	cp := inv
	m.invoices[inv.ID] = &cp
	return &inv, nil
}

func (m *memoryBillingRepo) GetInvoice(_ context.Context, id int64) (*Invoice, error) {
	inv, ok := m.invoices[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (m *memoryBillingRepo) LockInvoice(ctx context.Context, id int64) (*Invoice, error) {
	m.locks++
	return m.GetInvoice(ctx, id)
}

func (m *memoryBillingRepo) ListInvoices(_ context.Context, f InvoiceFilter, scope Scope) ([]Invoice, int, error) {
	var out []Invoice
	for _, inv := range m.invoices {
		if !scope.Matches(m.leads[inv.LeadID]) {
			continue
		}
		if f.LeadID != nil && inv.LeadID != *f.LeadID {
			continue
		}
		if f.CustomerStatus != "" && inv.CustomerPaymentStatus != f.CustomerStatus {
			continue
		}
		out = append(out, *inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (m *memoryBillingRepo) UpdateInvoice(ctx context.Context, id int64, c InvoiceChanges) (*Invoice, error) {
	inv, ok := m.invoices[id]
	if !ok {
		return nil, ErrNotFound
	}
	if c.TotalAmount != nil {
		inv.TotalAmount = *c.TotalAmount
	}
	if c.IssueDate != nil {
		inv.IssueDate = *c.IssueDate
	}
	if c.ClearDueDate {
		inv.DueDate = nil
	} else if c.DueDate != nil {
		inv.DueDate = c.DueDate
	}
	if c.Notes != nil {
		inv.Notes = *c.Notes
	}
	return m.GetInvoice(ctx, id)
}

func (m *memoryBillingRepo) DeleteInvoice(_ context.Context, id int64) error {
	if _, ok := m.invoices[id]; !ok {
		return ErrNotFound
	}
	delete(m.invoices, id)
	for pid, p := range m.payments {
		if p.InvoiceID == id {
			delete(m.payments, pid)
		}
	}
	for bid, b := range m.bills {
		if b.InvoiceID == id {
			delete(m.bills, bid)
		}
	}
	return nil
}

func (m *memoryBillingRepo) SaveReconciliation(_ context.Context, id int64, r Reconciliation) error {
	inv, ok := m.invoices[id]
	if !ok {
		return ErrNotFound
	}
	m.saves++
	r.Apply(inv)
	return nil
}

func (m *memoryBillingRepo) ListPayments(_ context.Context, invoiceID int64) ([]CustomerPayment, error) {
	var out []CustomerPayment
	for _, p := range m.payments {
		if p.InvoiceID == invoiceID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryBillingRepo) GetPayment(_ context.Context, id int64) (*CustomerPayment, error) {
	p, ok := m.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memoryBillingRepo) CreatePayment(_ context.Context, p CustomerPayment) (*CustomerPayment, error) {
	p.ID = m.id()
	cp := p
	m.payments[p.ID] = &cp
	return &p, nil
}

func (m *memoryBillingRepo) UpdatePayment(ctx context.Context, id int64, c PaymentChanges) (*CustomerPayment, error) {
	p, ok := m.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	if c.Amount != nil {
		p.Amount = *c.Amount
	}
	if c.PaymentDate != nil {
		p.PaymentDate = *c.PaymentDate
	}
	if c.PaymentMethod != nil {
		p.PaymentMethod = *c.PaymentMethod
	}
	return m.GetPayment(ctx, id)
}

func (m *memoryBillingRepo) DeletePayment(_ context.Context, id int64) error {
	if _, ok := m.payments[id]; !ok {
		return ErrNotFound
	}
	delete(m.payments, id)
	return nil
}

func (m *memoryBillingRepo) ListBills(_ context.Context, invoiceID int64) ([]VendorBill, error) {
	var out []VendorBill
	for _, b := range m.bills {
		if b.InvoiceID == invoiceID {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryBillingRepo) GetBill(_ context.Context, id int64) (*VendorBill, error) {
	b, ok := m.bills[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memoryBillingRepo) CreateBill(_ context.Context, b VendorBill) (*VendorBill, error) {
	b.ID = m.id()
	cp := b
	m.bills[b.ID] = &cp
	return &b, nil
}

func (m *memoryBillingRepo) UpdateBill(ctx context.Context, id int64, c BillChanges) (*VendorBill, error) {
	b, ok := m.bills[id]
	if !ok {
		return nil, ErrNotFound
	}
	if c.BillAmount != nil {
		b.BillAmount = *c.BillAmount
	}
	if c.VendorName != nil {
		b.VendorName = *c.VendorName
	}
	return m.GetBill(ctx, id)
}

func (m *memoryBillingRepo) DeleteBill(_ context.Context, id int64) error {
	if _, ok := m.bills[id]; !ok {
		return ErrNotFound
	}
	delete(m.bills, id)
	return nil
}

func (m *memoryBillingRepo) SetBillStatus(_ context.Context, id int64, status BillStatus, paidOn *time.Time) error {
	b, ok := m.bills[id]
	if !ok {
		return ErrNotFound
	}
	b.PaymentStatus = status
	b.PaymentDate = paidOn
	return nil
}

func (m *memoryBillingRepo) ListCosts(_ context.Context, leadID int64) ([]LeadCost, error) {
	var out []LeadCost
	for _, c := range m.costs {
		if c.LeadID == leadID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryBillingRepo) GetCost(_ context.Context, id int64) (*LeadCost, error) {
	c, ok := m.costs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memoryBillingRepo) CreateCost(_ context.Context, c LeadCost) (*LeadCost, error) {
	c.ID = m.id()
	cp := c
	m.costs[c.ID] = &cp
	return &c, nil
}

func (m *memoryBillingRepo) UpdateCost(ctx context.Context, id int64, ch CostChanges) (*LeadCost, error) {
	c, ok := m.costs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if ch.Description != nil {
		c.Description = *ch.Description
	}
	if ch.Amount != nil {
		c.Amount = *ch.Amount
	}
	if ch.VendorAmount != nil {
		c.VendorAmount = *ch.VendorAmount
	}
	return m.GetCost(ctx, id)
}

func (m *memoryBillingRepo) DeleteCost(_ context.Context, id int64) error {
	if _, ok := m.costs[id]; !ok {
		return ErrNotFound
	}
	delete(m.costs, id)
	return nil
}

func (m *memoryBillingRepo) SetCostPaid(_ context.Context, id int64, paid bool, at *time.Time) error {
	c, ok := m.costs[id]
	if !ok {
		return ErrNotFound
	}
	c.IsPaid = paid
	c.PaidAt = at
	return nil
}

type recordingAuditor struct {
	entries []shared.AuditLog
}

func (a *recordingAuditor) Record(_ context.Context, _ db.DBTX, log shared.AuditLog) error {
	a.entries = append(a.entries, log)
	return nil
}

type memoryIdempotency struct {
	seen map[string]bool
}

func (g *memoryIdempotency) CheckAndInsert(_ context.Context, _ db.DBTX, key, module string) error {
	if g.seen == nil {
		g.seen = map[string]bool{}
	}
	k := module + ":" + key
	if g.seen[k] {
		return shared.ErrIdempotencyConflict
	}
	g.seen[k] = true
	return nil
}

func staff(id int64, role users.Role) *users.User {
	return &users.User{ID: id, Name: string(role), Role: role, Active: true}
}

func ptr[T any](v T) *T { return &v }
