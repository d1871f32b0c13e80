package customers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voyage-crm/voyage/internal/leads"
	"github.com/voyage-crm/voyage/internal/platform/db"
)

// Repository persists customers.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Create(ctx context.Context, c Customer) (*Customer, error)
	Get(ctx context.Context, id int64) (*Customer, error)
	List(ctx context.Context, filter ListFilter) ([]Customer, int, error)
	Update(ctx context.Context, id int64, name *string, contact ContactInfo) (*Customer, error)
	Delete(ctx context.Context, id int64) error
	HasLeads(ctx context.Context, id int64) (bool, error)
	ListLeads(ctx context.Context, id int64, scope leads.Scope) ([]LeadSummary, error)
}

type repository struct {
	db   db.DBTX
	pool *pgxpool.Pool
}

// NewRepository creates a new customer repository.
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

const customerColumns = `id, name, contact_info, created_by, created_at, updated_at`

func scanCustomer(row pgx.Row) (*Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.Name, &c.ContactInfo, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if c.ContactInfo == nil {
		c.ContactInfo = ContactInfo{}
	}
	return &c, nil
}

func (r *repository) Create(ctx context.Context, c Customer) (*Customer, error) {
	if c.ContactInfo == nil {
		c.ContactInfo = ContactInfo{}
	}
	row := r.db.QueryRow(ctx, `INSERT INTO customers (name, contact_info, created_by)
VALUES ($1, $2, $3)
RETURNING `+customerColumns, c.Name, c.ContactInfo, c.CreatedBy)
	return scanCustomer(row)
}

func (r *repository) Get(ctx context.Context, id int64) (*Customer, error) {
	return scanCustomer(r.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Customer, int, error) {
	conditions := []string{"1=1"}
	args := []any{}
	argPos := 1

	if s := strings.TrimSpace(filter.Search); s != "" {
		conditions = append(conditions, fmt.Sprintf("name ILIKE $%d", argPos))
		args = append(args, "%"+s+"%")
		argPos++
	}
	where := strings.Join(conditions, " AND ")

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM customers WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count customers: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 25
	}
	query := fmt.Sprintf(`SELECT `+customerColumns+` FROM customers WHERE %s ORDER BY lower(name), id LIMIT $%d OFFSET $%d`,
		where, argPos, argPos+1)
	args = append(args, limit, filter.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	var out []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *c)
	}
	return out, total, rows.Err()
}

func (r *repository) Update(ctx context.Context, id int64, name *string, contact ContactInfo) (*Customer, error) {
	row := r.db.QueryRow(ctx, `UPDATE customers SET
    name = COALESCE($2, name),
    contact_info = COALESCE($3, contact_info),
    updated_at = NOW()
WHERE id = $1
RETURNING `+customerColumns, id, name, contactArg(contact))
	return scanCustomer(row)
}

func contactArg(c ContactInfo) any {
	if c == nil {
		return nil
	}
	return c
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if db.IsForeignKeyViolation(err) {
		return ErrInUse
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) HasLeads(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM leads WHERE customer_id = $1)`, id).Scan(&exists)
	return exists, err
}

func (r *repository) ListLeads(ctx context.Context, id int64, scope leads.Scope) ([]LeadSummary, error) {
	visible, args := leads.ScopeSQL(scope, []any{id})
	rows, err := r.db.Query(ctx, `SELECT id, reference_id, status, destination, departure_date, created_at
FROM leads
WHERE customer_id = $1 AND deleted_at IS NULL AND `+visible+`
ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (LeadSummary, error) {
		var l LeadSummary
		err := row.Scan(&l.ID, &l.ReferenceID, &l.Status, &l.Destination, &l.DepartureDate, &l.CreatedAt)
		return l, err
	})
}
