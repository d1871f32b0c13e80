package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voyage-crm/voyage/internal/leads"
	"github.com/voyage-crm/voyage/internal/platform/db"
)

// Repository runs the read-only aggregate queries behind the overview.
type Repository interface {
	StatusCounts(ctx context.Context, scope leads.Scope) (map[leads.Status]int, error)
	OpenLeads(ctx context.Context, userID int64) (int, error)
	Departures(ctx context.Context, scope leads.Scope, from, to time.Time, limit int) ([]Departure, error)
	Finance(ctx context.Context) (FinanceSummary, error)
}

type repository struct {
	db db.DBTX
}

// NewRepository returns a PostgreSQL backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

const liveLeads = `deleted_at IS NULL AND archived_at IS NULL`

func (r *repository) StatusCounts(ctx context.Context, scope leads.Scope) (map[leads.Status]int, error) {
	where, args := leads.ScopeSQL(scope, nil)
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM leads
WHERE `+liveLeads+` AND `+where+`
GROUP BY status`, args...)
	if err != nil {
		return nil, fmt.Errorf("count leads by status: %w", err)
	}
	defer rows.Close()
	out := make(map[leads.Status]int)
	for rows.Next() {
		var (
			status leads.Status
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

// OpenLeads counts live, unclosed leads the user sells or operates.
func (r *repository) OpenLeads(ctx context.Context, userID int64) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM leads
WHERE `+liveLeads+` AND status <> $2 AND (assigned_to = $1 OR assigned_operator = $1)`,
		userID, leads.StatusClosed).Scan(&n)
	return n, err
}

func (r *repository) Departures(ctx context.Context, scope leads.Scope, from, to time.Time, limit int) ([]Departure, error) {
	where, args := leads.ScopeSQL(scope, []any{from, to, limit})
	rows, err := r.db.Query(ctx, `SELECT id, reference_id, customer_name, destination, status, departure_date
FROM leads
WHERE `+liveLeads+` AND departure_date BETWEEN $1 AND $2 AND `+where+`
ORDER BY departure_date, id
LIMIT $3`, args...)
	if err != nil {
		return nil, fmt.Errorf("upcoming departures: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Departure, error) {
		var d Departure
		err := row.Scan(&d.LeadID, &d.ReferenceID, &d.CustomerName, &d.Destination, &d.Status, &d.DepartureDate)
		return d, err
	})
}

// Finance queries only count invoices whose lead is neither archived nor
// deleted.
const (
	liveInvoices = `invoices i JOIN leads l ON l.id = i.lead_id
WHERE l.deleted_at IS NULL AND l.archived_at IS NULL`

	invoiceTotalsSQL = `SELECT
    COALESCE(SUM(i.total_amount), 0),
    COALESCE((SELECT SUM(p.amount) FROM customer_payments p
        JOIN invoices pi ON pi.id = p.invoice_id
        JOIN leads pl ON pl.id = pi.lead_id
        WHERE pl.deleted_at IS NULL AND pl.archived_at IS NULL), 0),
    COALESCE(SUM(i.balance_amount), 0),
    COUNT(*) FILTER (WHERE i.customer_payment_status <> 'paid')
FROM ` + liveInvoices

	vendorTotalsSQL = `SELECT
    COALESCE(SUM(b.bill_amount), 0),
    COALESCE(SUM(b.bill_amount) FILTER (WHERE b.payment_status <> 'paid'), 0)
FROM vendor_bills b
JOIN invoices i ON i.id = b.invoice_id
JOIN leads l ON l.id = i.lead_id
WHERE l.deleted_at IS NULL AND l.archived_at IS NULL`
)

func (r *repository) Finance(ctx context.Context) (FinanceSummary, error) {
	var f FinanceSummary
	err := r.db.QueryRow(ctx, invoiceTotalsSQL).Scan(&f.Invoiced, &f.Received, &f.Outstanding, &f.UnpaidInvoices)
	if err != nil {
		return f, fmt.Errorf("invoice totals: %w", err)
	}
	err = r.db.QueryRow(ctx, vendorTotalsSQL).Scan(&f.VendorBilled, &f.VendorUnpaid)
	if err != nil {
		return f, fmt.Errorf("vendor bill totals: %w", err)
	}
	f.Profit = f.Invoiced.Sub(f.VendorBilled)
	return f, nil
}
