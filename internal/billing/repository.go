package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/voyage-crm/voyage/internal/platform/db"
)

// Repository persists invoices, their payments and vendor bills, and lead
// cost lines. Recomputation reads children through the same Repository
// inside the transaction that locked the invoice.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	// Exec exposes the current executor for audit and idempotency writes.
	Exec() db.DBTX

	LeadRef(ctx context.Context, leadID int64) (*LeadRef, error)

	CreateInvoice(ctx context.Context, inv Invoice) (*Invoice, error)
	GetInvoice(ctx context.Context, id int64) (*Invoice, error)
	LockInvoice(ctx context.Context, id int64) (*Invoice, error)
	ListInvoices(ctx context.Context, filter InvoiceFilter, scope Scope) ([]Invoice, int, error)
	UpdateInvoice(ctx context.Context, id int64, changes InvoiceChanges) (*Invoice, error)
	DeleteInvoice(ctx context.Context, id int64) error
	SaveReconciliation(ctx context.Context, id int64, r Reconciliation) error

	ListPayments(ctx context.Context, invoiceID int64) ([]CustomerPayment, error)
	GetPayment(ctx context.Context, id int64) (*CustomerPayment, error)
	CreatePayment(ctx context.Context, p CustomerPayment) (*CustomerPayment, error)
	UpdatePayment(ctx context.Context, id int64, changes PaymentChanges) (*CustomerPayment, error)
	DeletePayment(ctx context.Context, id int64) error

	ListBills(ctx context.Context, invoiceID int64) ([]VendorBill, error)
	GetBill(ctx context.Context, id int64) (*VendorBill, error)
	CreateBill(ctx context.Context, b VendorBill) (*VendorBill, error)
	UpdateBill(ctx context.Context, id int64, changes BillChanges) (*VendorBill, error)
	DeleteBill(ctx context.Context, id int64) error
	SetBillStatus(ctx context.Context, id int64, status BillStatus, paidOn *time.Time) error

	ListCosts(ctx context.Context, leadID int64) ([]LeadCost, error)
	GetCost(ctx context.Context, id int64) (*LeadCost, error)
	CreateCost(ctx context.Context, c LeadCost) (*LeadCost, error)
	UpdateCost(ctx context.Context, id int64, changes CostChanges) (*LeadCost, error)
	DeleteCost(ctx context.Context, id int64) error
	SetCostPaid(ctx context.Context, id int64, paid bool, at *time.Time) error
}

// InvoiceChanges holds the editable invoice fields.
type InvoiceChanges struct {
	TotalAmount  *decimal.Decimal
	IssueDate    *time.Time
	DueDate      *time.Time
	ClearDueDate bool
	Notes        *string
}

// PaymentChanges holds the editable payment fields.
type PaymentChanges struct {
	Amount        *decimal.Decimal
	PaymentDate   *time.Time
	ReceiptNumber *string
	PaymentMethod *PaymentMethod
	Notes         *string
}

// BillChanges holds the editable vendor bill fields.
type BillChanges struct {
	VendorName  *string
	BillNumber  *string
	BillAmount  *decimal.Decimal
	ServiceType *ServiceType
	Notes       *string
}

// CostChanges holds the editable cost line fields.
type CostChanges struct {
	Description  *string
	Amount       *decimal.Decimal
	VendorAmount *decimal.Decimal
}

type repository struct {
	db   db.DBTX
	pool *pgxpool.Pool
}

// NewRepository returns a PostgreSQL backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	if _, ok := r.db.(pgx.Tx); ok {
		return fn(ctx, r)
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

func (r *repository) Exec() db.DBTX { return r.db }

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *repository) LeadRef(ctx context.Context, leadID int64) (*LeadRef, error) {
	var l LeadRef
	err := r.db.QueryRow(ctx, `SELECT id, reference_id, customer_name, status, assigned_to, assigned_operator, created_by
FROM leads WHERE id = $1 AND deleted_at IS NULL`, leadID).
		Scan(&l.ID, &l.ReferenceID, &l.CustomerName, &l.Status, &l.AssignedTo, &l.AssignedOperator, &l.CreatedBy)
	if err != nil {
		return nil, notFound(err)
	}
	return &l, nil
}

const invoiceColumns = `i.id, i.invoice_number, i.lead_id, i.total_amount, i.balance_amount,
    i.customer_payment_status, i.vendor_payment_status, i.issue_date, i.due_date, i.notes,
    i.created_by, i.created_at, i.updated_at`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.InvoiceNumber, &inv.LeadID, &inv.TotalAmount, &inv.BalanceAmount,
		&inv.CustomerPaymentStatus, &inv.VendorPaymentStatus, &inv.IssueDate, &inv.DueDate, &inv.Notes,
		&inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &inv, nil
}

func (r *repository) CreateInvoice(ctx context.Context, inv Invoice) (*Invoice, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO invoices AS i (invoice_number, lead_id, total_amount, balance_amount,
    customer_payment_status, vendor_payment_status, issue_date, due_date, notes, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING `+invoiceColumns,
		inv.InvoiceNumber, inv.LeadID, inv.TotalAmount, inv.BalanceAmount,
		inv.CustomerPaymentStatus, inv.VendorPaymentStatus, inv.IssueDate, inv.DueDate, inv.Notes, inv.CreatedBy)
	created, err := scanInvoice(row)
	if db.IsUniqueViolation(err) {
		return nil, ErrDuplicateNumber
	}
	return created, err
}

func (r *repository) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	return scanInvoice(r.db.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices i WHERE i.id = $1`, id))
}

// LockInvoice reads the invoice and holds its row lock until the
// transaction ends, serialising recomputation per invoice.
func (r *repository) LockInvoice(ctx context.Context, id int64) (*Invoice, error) {
	return scanInvoice(r.db.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices i WHERE i.id = $1 FOR UPDATE`, id))
}

func (r *repository) ListInvoices(ctx context.Context, filter InvoiceFilter, scope Scope) ([]Invoice, int, error) {
	conditions := []string{"l.deleted_at IS NULL"}
	args := []any{}
	add := func(format string, v any) {
		args = append(args, v)
		conditions = append(conditions, fmt.Sprintf(format, len(args)))
	}
	switch {
	case scope.None:
		conditions = append(conditions, "FALSE")
	case scope.All:
	case scope.SalesRep != 0:
		add("l.assigned_to = $%d", scope.SalesRep)
	case scope.Operator != 0:
		add("l.assigned_operator = $%d", scope.Operator)
	}
	if filter.LeadID != nil {
		add("i.lead_id = $%d", *filter.LeadID)
	}
	if filter.CustomerStatus != "" {
		add("i.customer_payment_status = $%d", filter.CustomerStatus)
	}
	if filter.VendorStatus != "" {
		add("i.vendor_payment_status = $%d", filter.VendorStatus)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+s+"%")
		conditions = append(conditions, fmt.Sprintf("(i.invoice_number ILIKE $%d OR l.reference_id ILIKE $%d OR l.customer_name ILIKE $%d)", len(args), len(args), len(args)))
	}
	from := ` FROM invoices i JOIN leads l ON l.id = i.lead_id WHERE ` + strings.Join(conditions, " AND ")

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*)`+from, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count invoices: %w", err)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 25
	}
	args = append(args, limit, filter.Offset)
	rows, err := r.db.Query(ctx, `SELECT `+invoiceColumns+from+
		fmt.Sprintf(` ORDER BY i.issue_date DESC, i.id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *inv)
	}
	return out, total, rows.Err()
}

func (r *repository) UpdateInvoice(ctx context.Context, id int64, c InvoiceChanges) (*Invoice, error) {
	row := r.db.QueryRow(ctx, `UPDATE invoices AS i SET
    total_amount = COALESCE($2, total_amount),
    issue_date = COALESCE($3, issue_date),
    due_date = CASE WHEN $4 THEN NULL ELSE COALESCE($5, due_date) END,
    notes = COALESCE($6, notes),
    updated_at = NOW()
WHERE i.id = $1
RETURNING `+invoiceColumns, id, c.TotalAmount, c.IssueDate, c.ClearDueDate, c.DueDate, c.Notes)
	return scanInvoice(row)
}

func (r *repository) DeleteInvoice(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM invoices WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) SaveReconciliation(ctx context.Context, id int64, rec Reconciliation) error {
	_, err := r.db.Exec(ctx, `UPDATE invoices SET
    balance_amount = $2, customer_payment_status = $3, vendor_payment_status = $4, updated_at = NOW()
WHERE id = $1`, id, rec.Balance, rec.CustomerStatus, rec.VendorStatus)
	return err
}

const paymentColumns = `id, invoice_id, amount, payment_date, receipt_number, payment_method, notes,
    created_by, created_at, updated_at`

func scanPayment(row pgx.Row) (*CustomerPayment, error) {
	var p CustomerPayment
	err := row.Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.PaymentDate, &p.ReceiptNumber, &p.PaymentMethod, &p.Notes,
		&p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *repository) ListPayments(ctx context.Context, invoiceID int64) ([]CustomerPayment, error) {
	rows, err := r.db.Query(ctx, `SELECT `+paymentColumns+` FROM customer_payments WHERE invoice_id = $1 ORDER BY payment_date, id`, invoiceID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (CustomerPayment, error) {
		p, err := scanPayment(row)
		if err != nil {
			return CustomerPayment{}, err
		}
		return *p, nil
	})
}

func (r *repository) GetPayment(ctx context.Context, id int64) (*CustomerPayment, error) {
	return scanPayment(r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM customer_payments WHERE id = $1`, id))
}

func (r *repository) CreatePayment(ctx context.Context, p CustomerPayment) (*CustomerPayment, error) {
	return scanPayment(r.db.QueryRow(ctx, `INSERT INTO customer_payments
    (invoice_id, amount, payment_date, receipt_number, payment_method, notes, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING `+paymentColumns, p.InvoiceID, p.Amount, p.PaymentDate, p.ReceiptNumber, p.PaymentMethod, p.Notes, p.CreatedBy))
}

func (r *repository) UpdatePayment(ctx context.Context, id int64, c PaymentChanges) (*CustomerPayment, error) {
	return scanPayment(r.db.QueryRow(ctx, `UPDATE customer_payments SET
    amount = COALESCE($2, amount),
    payment_date = COALESCE($3, payment_date),
    receipt_number = COALESCE($4, receipt_number),
    payment_method = COALESCE($5, payment_method),
    notes = COALESCE($6, notes),
    updated_at = NOW()
WHERE id = $1
RETURNING `+paymentColumns, id, c.Amount, c.PaymentDate, c.ReceiptNumber, c.PaymentMethod, c.Notes))
}

func (r *repository) DeletePayment(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM customer_payments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const billColumns = `id, invoice_id, vendor_name, bill_number, bill_amount, service_type, payment_status,
    payment_date, notes, created_at, updated_at`

func scanBill(row pgx.Row) (*VendorBill, error) {
	var b VendorBill
	err := row.Scan(&b.ID, &b.InvoiceID, &b.VendorName, &b.BillNumber, &b.BillAmount, &b.ServiceType, &b.PaymentStatus,
		&b.PaymentDate, &b.Notes, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

func (r *repository) ListBills(ctx context.Context, invoiceID int64) ([]VendorBill, error) {
	rows, err := r.db.Query(ctx, `SELECT `+billColumns+` FROM vendor_bills WHERE invoice_id = $1 ORDER BY id`, invoiceID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (VendorBill, error) {
		b, err := scanBill(row)
		if err != nil {
			return VendorBill{}, err
		}
		return *b, nil
	})
}

func (r *repository) GetBill(ctx context.Context, id int64) (*VendorBill, error) {
	return scanBill(r.db.QueryRow(ctx, `SELECT `+billColumns+` FROM vendor_bills WHERE id = $1`, id))
}

func (r *repository) CreateBill(ctx context.Context, b VendorBill) (*VendorBill, error) {
	return scanBill(r.db.QueryRow(ctx, `INSERT INTO vendor_bills
    (invoice_id, vendor_name, bill_number, bill_amount, service_type, payment_status, payment_date, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+billColumns, b.InvoiceID, b.VendorName, b.BillNumber, b.BillAmount, b.ServiceType, b.PaymentStatus, b.PaymentDate, b.Notes))
}

func (r *repository) UpdateBill(ctx context.Context, id int64, c BillChanges) (*VendorBill, error) {
	return scanBill(r.db.QueryRow(ctx, `UPDATE vendor_bills SET
    vendor_name = COALESCE($2, vendor_name),
    bill_number = COALESCE($3, bill_number),
    bill_amount = COALESCE($4, bill_amount),
    service_type = COALESCE($5, service_type),
    notes = COALESCE($6, notes),
    updated_at = NOW()
WHERE id = $1
RETURNING `+billColumns, id, c.VendorName, c.BillNumber, c.BillAmount, c.ServiceType, c.Notes))
}

func (r *repository) DeleteBill(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM vendor_bills WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) SetBillStatus(ctx context.Context, id int64, status BillStatus, paidOn *time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE vendor_bills SET payment_status = $2, payment_date = $3, updated_at = NOW() WHERE id = $1`,
		id, status, paidOn)
	return err
}

const costColumns = `id, lead_id, description, amount, vendor_amount, is_paid, paid_at, created_at, updated_at`

func scanCost(row pgx.Row) (*LeadCost, error) {
	var c LeadCost
	err := row.Scan(&c.ID, &c.LeadID, &c.Description, &c.Amount, &c.VendorAmount, &c.IsPaid, &c.PaidAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (r *repository) ListCosts(ctx context.Context, leadID int64) ([]LeadCost, error) {
	rows, err := r.db.Query(ctx, `SELECT `+costColumns+` FROM lead_costs WHERE lead_id = $1 ORDER BY id`, leadID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (LeadCost, error) {
		c, err := scanCost(row)
		if err != nil {
			return LeadCost{}, err
		}
		return *c, nil
	})
}

func (r *repository) GetCost(ctx context.Context, id int64) (*LeadCost, error) {
	return scanCost(r.db.QueryRow(ctx, `SELECT `+costColumns+` FROM lead_costs WHERE id = $1`, id))
}

func (r *repository) CreateCost(ctx context.Context, c LeadCost) (*LeadCost, error) {
	return scanCost(r.db.QueryRow(ctx, `INSERT INTO lead_costs (lead_id, description, amount, vendor_amount)
VALUES ($1, $2, $3, $4)
RETURNING `+costColumns, c.LeadID, c.Description, c.Amount, c.VendorAmount))
}

func (r *repository) UpdateCost(ctx context.Context, id int64, c CostChanges) (*LeadCost, error) {
	return scanCost(r.db.QueryRow(ctx, `UPDATE lead_costs SET
    description = COALESCE($2, description),
    amount = COALESCE($3, amount),
    vendor_amount = COALESCE($4, vendor_amount),
    updated_at = NOW()
WHERE id = $1
RETURNING `+costColumns, id, c.Description, c.Amount, c.VendorAmount))
}

func (r *repository) DeleteCost(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM lead_costs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) SetCostPaid(ctx context.Context, id int64, paid bool, at *time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE lead_costs SET is_paid = $2, paid_at = $3, updated_at = NOW() WHERE id = $1`, id, paid, at)
	return err
}
