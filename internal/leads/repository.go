package leads

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voyage-crm/voyage/internal/platform/db"
)

// Repository persists leads, their action log and notes. Every read takes
// the actor's Scope so rows outside it never load.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error

	Create(ctx context.Context, l Lead) (*Lead, error)
	Get(ctx context.Context, id int64, scope Scope) (*Lead, error)
	GetDeleted(ctx context.Context, id int64) (*Lead, error)
	List(ctx context.Context, filter ListFilter, scope Scope) ([]Lead, int, error)
	Update(ctx context.Context, id int64, changes Changes) (*Lead, error)

	ApplyTransition(ctx context.Context, id int64, t Transition) error
	SetServiceStatus(ctx context.Context, id int64, service Component, status ServiceStatus) error
	SetArchived(ctx context.Context, id int64, archived bool, by int64) error
	SoftDelete(ctx context.Context, id int64) error
	Restore(ctx context.Context, id int64) error

	AppendLog(ctx context.Context, entry ActionLog) error
	ListLogs(ctx context.Context, leadID int64) ([]ActionLog, error)
	AddNote(ctx context.Context, n Note) (*Note, error)
	ListNotes(ctx context.Context, leadID int64) ([]Note, error)
}

// Changes holds the descriptive fields an edit may replace.
type Changes struct {
	CustomerName  *string
	CustomerID    *int64
	ClearCustomer bool
	Platform      *Platform
	Priority      *Priority
	Destination   *string
	DepartureDate *time.Time
	ArrivalDate   *time.Time
	Adults        *int
	Children      *int
	Infants       *int
	Notes         *string
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

const leadColumns = `id, reference_id, customer_name, customer_id, platform, status, priority,
    assigned_to, assigned_operator, created_by, destination, departure_date, arrival_date,
    adults, children, infants, air_ticket_status, hotel_status, visa_status, land_package_status,
    notes, archived_at, archived_by, created_at, updated_at, deleted_at`

func scanLead(row pgx.Row) (*Lead, error) {
	var l Lead
	err := row.Scan(&l.ID, &l.ReferenceID, &l.CustomerName, &l.CustomerID, &l.Platform, &l.Status, &l.Priority,
		&l.AssignedTo, &l.AssignedOperator, &l.CreatedBy, &l.Destination, &l.DepartureDate, &l.ArrivalDate,
		&l.Adults, &l.Children, &l.Infants, &l.AirTicketStatus, &l.HotelStatus, &l.VisaStatus, &l.LandPackageStatus,
		&l.Notes, &l.ArchivedAt, &l.ArchivedBy, &l.CreatedAt, &l.UpdatedAt, &l.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// ScopeSQL renders s as a WHERE fragment over unqualified leads columns,
// appending its parameters to args.
func ScopeSQL(s Scope, args []any) (string, []any) {
	switch {
	case s.None:
		return "FALSE", args
	case s.All:
		return "TRUE", args
	case s.SalesRep != 0:
		args = append(args, s.SalesRep)
		return fmt.Sprintf("(assigned_to IS NULL OR assigned_to = $%d)", len(args)), args
	case s.Operator != 0:
		args = append(args, s.Operator, statusStrings(operatorQueue))
		return fmt.Sprintf("(assigned_operator = $%d OR (assigned_operator IS NULL AND status = ANY($%d)))", len(args)-1, len(args)), args
	case len(s.Statuses) > 0:
		args = append(args, statusStrings(s.Statuses))
		return fmt.Sprintf("status = ANY($%d)", len(args)), args
	}
	return "FALSE", args
}

func statusStrings(set []Status) []string {
	out := make([]string, len(set))
	for i, s := range set {
		out[i] = string(s)
	}
	return out
}

func (r *repository) Create(ctx context.Context, l Lead) (*Lead, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO leads (reference_id, customer_name, customer_id, platform, status, priority,
    assigned_to, created_by, destination, departure_date, arrival_date, adults, children, infants, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
RETURNING `+leadColumns,
		l.ReferenceID, l.CustomerName, l.CustomerID, l.Platform, l.Status, l.Priority,
		l.AssignedTo, l.CreatedBy, l.Destination, l.DepartureDate, l.ArrivalDate, l.Adults, l.Children, l.Infants, l.Notes)
	created, err := scanLead(row)
	switch {
	case db.IsUniqueViolation(err):
		return nil, errDuplicateReference
	case db.IsForeignKeyViolation(err):
		return nil, fmt.Errorf("%w: customer does not exist", ErrInvalid)
	}
	return created, err
}

var errDuplicateReference = errors.New("leads: duplicate reference id")

func (r *repository) Get(ctx context.Context, id int64, scope Scope) (*Lead, error) {
	where, args := ScopeSQL(scope, []any{id})
	return scanLead(r.db.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1 AND deleted_at IS NULL AND `+where, args...))
}

func (r *repository) GetDeleted(ctx context.Context, id int64) (*Lead, error) {
	return scanLead(r.db.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1 AND deleted_at IS NOT NULL`, id))
}

func (r *repository) List(ctx context.Context, f ListFilter, scope Scope) ([]Lead, int, error) {
	where, args := ScopeSQL(scope, nil)
	conds := []string{where}
	switch f.View {
	case ViewArchived:
		conds = append(conds, "deleted_at IS NULL", "archived_at IS NOT NULL")
	case ViewTrash:
		conds = append(conds, "deleted_at IS NOT NULL")
	default:
		conds = append(conds, "deleted_at IS NULL", "archived_at IS NULL")
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Platform != "" {
		args = append(args, string(f.Platform))
		conds = append(conds, fmt.Sprintf("platform = $%d", len(args)))
	}
	if f.AssignedTo != nil {
		args = append(args, *f.AssignedTo)
		conds = append(conds, fmt.Sprintf("assigned_to = $%d", len(args)))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		args = append(args, "%"+s+"%")
		conds = append(conds, fmt.Sprintf("(reference_id ILIKE $%d OR customer_name ILIKE $%d OR destination ILIKE $%d)", len(args), len(args), len(args)))
	}
	whereClause := " WHERE " + strings.Join(conds, " AND ")

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM leads`+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 25
	}
	args = append(args, limit, f.Offset)
	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT `+leadColumns+` FROM leads%s
ORDER BY CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END, created_at DESC, id DESC
LIMIT $%d OFFSET $%d`, whereClause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *l)
	}
	return out, total, rows.Err()
}

func (r *repository) Update(ctx context.Context, id int64, c Changes) (*Lead, error) {
	row := r.db.QueryRow(ctx, `UPDATE leads SET
    customer_name = COALESCE($2, customer_name),
    customer_id = CASE WHEN $3 THEN NULL ELSE COALESCE($4, customer_id) END,
    platform = COALESCE($5, platform),
    priority = COALESCE($6, priority),
    destination = COALESCE($7, destination),
    departure_date = COALESCE($8, departure_date),
    arrival_date = COALESCE($9, arrival_date),
    adults = COALESCE($10, adults),
    children = COALESCE($11, children),
    infants = COALESCE($12, infants),
    notes = COALESCE($13, notes),
    updated_at = NOW()
WHERE id = $1 AND deleted_at IS NULL
RETURNING `+leadColumns,
		id, c.CustomerName, c.ClearCustomer, c.CustomerID, c.Platform, c.Priority, c.Destination,
		c.DepartureDate, c.ArrivalDate, c.Adults, c.Children, c.Infants, c.Notes)
	l, err := scanLead(row)
	if db.IsForeignKeyViolation(err) {
		return nil, fmt.Errorf("%w: customer does not exist", ErrInvalid)
	}
	return l, err
}

// ApplyTransition is a compare-and-set on status (and on the assignment for
// self-assign actions). Zero affected rows means another request won.
func (r *repository) ApplyTransition(ctx context.Context, id int64, t Transition) error {
	tag, err := r.db.Exec(ctx, `UPDATE leads SET
    status = $3,
    assigned_to = COALESCE($4, assigned_to),
    assigned_operator = COALESCE($5, assigned_operator),
    updated_at = NOW()
WHERE id = $1 AND status = $2 AND deleted_at IS NULL AND archived_at IS NULL
  AND (NOT $6 OR assigned_to IS NULL)
  AND (NOT $7 OR assigned_operator IS NULL OR assigned_operator = $5)`,
		id, string(t.From), string(t.To), t.AssignedTo, t.Operator, t.RequireUnassigned, t.RequireOperatorFree)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleLead
	}
	return nil
}

func (r *repository) SetServiceStatus(ctx context.Context, id int64, service Component, status ServiceStatus) error {
	col, ok := service.Column()
	if !ok {
		return fmt.Errorf("%w: unknown service %q", ErrInvalid, service)
	}
	tag, err := r.db.Exec(ctx, `UPDATE leads SET `+col+` = $2, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL AND status <> 'mark_closed'`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleLead
	}
	return nil
}

func (r *repository) SetArchived(ctx context.Context, id int64, archived bool, by int64) error {
	var (
		tag pgconn.CommandTag
		err error
	)
	if archived {
		tag, err = r.db.Exec(ctx, `UPDATE leads SET archived_at = NOW(), archived_by = $2, updated_at = NOW()
WHERE id = $1 AND archived_at IS NULL AND deleted_at IS NULL`, id, by)
	} else {
		tag, err = r.db.Exec(ctx, `UPDATE leads SET archived_at = NULL, archived_by = NULL, updated_at = NOW()
WHERE id = $1 AND archived_at IS NOT NULL AND deleted_at IS NULL`, id)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleLead
	}
	return nil
}

func (r *repository) SoftDelete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE leads SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Restore(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE leads SET deleted_at = NULL, updated_at = NOW() WHERE id = $1 AND deleted_at IS NOT NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) AppendLog(ctx context.Context, e ActionLog) error {
	_, err := r.db.Exec(ctx, `INSERT INTO lead_action_logs (lead_id, user_id, action, description) VALUES ($1, $2, $3, $4)`,
		e.LeadID, e.UserID, e.Action, e.Description)
	return err
}

func (r *repository) ListLogs(ctx context.Context, leadID int64) ([]ActionLog, error) {
	rows, err := r.db.Query(ctx, `SELECT id, lead_id, user_id, action, description, created_at
FROM lead_action_logs WHERE lead_id = $1 ORDER BY created_at DESC, id DESC`, leadID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (ActionLog, error) {
		var e ActionLog
		err := row.Scan(&e.ID, &e.LeadID, &e.UserID, &e.Action, &e.Description, &e.CreatedAt)
		return e, err
	})
}

func (r *repository) AddNote(ctx context.Context, n Note) (*Note, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO lead_notes (lead_id, user_id, body) VALUES ($1, $2, $3) RETURNING id, created_at`,
		n.LeadID, n.UserID, n.Body).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *repository) ListNotes(ctx context.Context, leadID int64) ([]Note, error) {
	rows, err := r.db.Query(ctx, `SELECT id, lead_id, user_id, body, created_at FROM lead_notes WHERE lead_id = $1 ORDER BY created_at, id`, leadID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Note, error) {
		var n Note
		err := row.Scan(&n.ID, &n.LeadID, &n.UserID, &n.Body, &n.CreatedAt)
		return n, err
	})
}
