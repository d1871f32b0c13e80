package callcenter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voyage-crm/voyage/internal/platform/db"
)

// Repository persists calls and reads the lead queues they are drawn from.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error

	// Queue lists leads due on day for a call of type t that have none yet.
	Queue(ctx context.Context, t CallType, day time.Time) ([]QueueEntry, error)
	// QueueLead loads leadID when it is due on day for a call of type t,
	// whether or not the call exists.
	QueueLead(ctx context.Context, t CallType, leadID int64, day time.Time) (*QueueEntry, error)
	LeadExists(ctx context.Context, leadID int64) (bool, error)

	Create(ctx context.Context, c Call) (*Call, error)
	Get(ctx context.Context, id int64, scope Scope) (*Call, error)
	List(ctx context.Context, filter ListFilter, scope Scope) ([]Call, int, error)
	// Save writes c when the stored status still equals expected.
	Save(ctx context.Context, c Call, expected CallStatus) error
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

// queueSQL selects leads due for t. Pre-departure calls go to confirmed
// leads; post-arrival calls also to leads whose documents are complete.
func queueSQL(t CallType) (dateColumn string, statuses []string) {
	if t == CallPostArrival {
		return "arrival_date", []string{"confirmed", "document_upload_complete"}
	}
	return "departure_date", []string{"confirmed"}
}

const queueColumns = `l.id, l.reference_id, l.customer_name, l.destination, l.status,
    l.departure_date, l.arrival_date, l.adults + l.children + l.infants`

func scanQueueEntry(row pgx.Row) (QueueEntry, error) {
	var q QueueEntry
	err := row.Scan(&q.LeadID, &q.ReferenceID, &q.CustomerName, &q.Destination, &q.Status,
		&q.DepartureDate, &q.ArrivalDate, &q.TotalPax)
	return q, err
}

func (r *repository) Queue(ctx context.Context, t CallType, day time.Time) ([]QueueEntry, error) {
	column, statuses := queueSQL(t)
	rows, err := r.db.Query(ctx, `SELECT `+queueColumns+`
FROM leads l
WHERE l.`+column+` = $1
  AND l.status = ANY($2)
  AND l.deleted_at IS NULL AND l.archived_at IS NULL
  AND NOT EXISTS (SELECT 1 FROM call_center_calls c WHERE c.lead_id = l.id AND c.call_type = $3)
ORDER BY l.id`, day, statuses, t)
	if err != nil {
		return nil, fmt.Errorf("load %s queue: %w", t, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (QueueEntry, error) {
		return scanQueueEntry(row)
	})
}

func (r *repository) QueueLead(ctx context.Context, t CallType, leadID int64, day time.Time) (*QueueEntry, error) {
	column, statuses := queueSQL(t)
	q, err := scanQueueEntry(r.db.QueryRow(ctx, `SELECT `+queueColumns+`
FROM leads l
WHERE l.id = $1 AND l.`+column+` = $2 AND l.status = ANY($3)
  AND l.deleted_at IS NULL AND l.archived_at IS NULL`, leadID, day, statuses))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotInQueue
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *repository) LeadExists(ctx context.Context, leadID int64) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM leads WHERE id = $1 AND deleted_at IS NULL)`, leadID).Scan(&ok)
	return ok, err
}

const callColumns = `id, lead_id, call_type, status, assigned_call_center_user, call_attempts,
    call_checklist_completed, call_notes, last_called_at, completed_at, created_by, created_at, updated_at`

func scanCall(row pgx.Row) (*Call, error) {
	var c Call
	err := row.Scan(&c.ID, &c.LeadID, &c.CallType, &c.Status, &c.AssignedTo, &c.Attempts,
		&c.ChecklistDone, &c.Notes, &c.LastCalledAt, &c.CompletedAt, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if c.ChecklistDone == nil {
		c.ChecklistDone = []string{}
	}
	return &c, nil
}

func checklistArg(keys []string) []string {
	if keys == nil {
		return []string{}
	}
	return keys
}

func (r *repository) Create(ctx context.Context, c Call) (*Call, error) {
	created, err := scanCall(r.db.QueryRow(ctx, `INSERT INTO call_center_calls
    (lead_id, call_type, status, assigned_call_center_user, call_checklist_completed, call_notes, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING `+callColumns, c.LeadID, c.CallType, c.Status, c.AssignedTo, checklistArg(c.ChecklistDone), c.Notes, c.CreatedBy))
	if db.IsUniqueViolation(err) {
		return nil, ErrCallExists
	}
	return created, err
}

func scopeSQL(s Scope, args []any) (string, []any) {
	switch {
	case s.None:
		return "FALSE", args
	case s.All:
		return "TRUE", args
	case s.Assignee != 0:
		args = append(args, s.Assignee)
		return fmt.Sprintf("assigned_call_center_user = $%d", len(args)), args
	}
	return "FALSE", args
}

func (r *repository) Get(ctx context.Context, id int64, scope Scope) (*Call, error) {
	where, args := scopeSQL(scope, []any{id})
	return scanCall(r.db.QueryRow(ctx, `SELECT `+callColumns+` FROM call_center_calls WHERE id = $1 AND `+where, args...))
}

func (r *repository) List(ctx context.Context, filter ListFilter, scope Scope) ([]Call, int, error) {
	scopeWhere, args := scopeSQL(scope, nil)
	conditions := []string{scopeWhere}
	if filter.CallType != "" {
		args = append(args, filter.CallType)
		conditions = append(conditions, fmt.Sprintf("call_type = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.LeadID != nil {
		args = append(args, *filter.LeadID)
		conditions = append(conditions, fmt.Sprintf("lead_id = $%d", len(args)))
	}
	where := strings.Join(conditions, " AND ")

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM call_center_calls WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count calls: %w", err)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 25
	}
	args = append(args, limit, filter.Offset)
	rows, err := r.db.Query(ctx, `SELECT `+callColumns+` FROM call_center_calls WHERE `+where+
		fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list calls: %w", err)
	}
	defer rows.Close()
	var out []Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *c)
	}
	return out, total, rows.Err()
}

func (r *repository) Save(ctx context.Context, c Call, expected CallStatus) error {
	tag, err := r.db.Exec(ctx, `UPDATE call_center_calls SET
    status = $3,
    assigned_call_center_user = $4,
    call_attempts = $5,
    call_checklist_completed = $6,
    call_notes = $7,
    last_called_at = $8,
    completed_at = $9,
    updated_at = NOW()
WHERE id = $1 AND status = $2`,
		c.ID, expected, c.Status, c.AssignedTo, c.Attempts, checklistArg(c.ChecklistDone), c.Notes, c.LastCalledAt, c.CompletedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleCall
	}
	return nil
}
