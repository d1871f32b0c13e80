package leaves

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

// Repository persists leave requests and office closures.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Exec() db.DBTX

	Create(ctx context.Context, l Leave) (*Leave, error)
	Get(ctx context.Context, id int64) (*Leave, error)
	// GetVisible reads the leave only when it falls inside scope.
	GetVisible(ctx context.Context, id int64, scope Scope) (*Leave, error)
	// Lock reads the leave row FOR UPDATE.
	Lock(ctx context.Context, id int64) (*Leave, error)
	List(ctx context.Context, filter ListFilter, scope Scope) ([]Leave, int, error)
	// Overlapping lists userID's pending or approved leaves touching the range.
	Overlapping(ctx context.Context, userID int64, start, end time.Time) ([]Leave, error)
	// Decide moves a pending leave to the decision status.
	Decide(ctx context.Context, id int64, d Decision) error
	Cancel(ctx context.Context, id int64) error
	ApprovedBetween(ctx context.Context, from, to time.Time) ([]Leave, error)

	CreateClosure(ctx context.Context, c OfficeClosure) (*OfficeClosure, error)
	GetClosure(ctx context.Context, id int64) (*OfficeClosure, error)
	UpdateClosure(ctx context.Context, c OfficeClosure) (*OfficeClosure, error)
	DeleteClosure(ctx context.Context, id int64) error
	ListClosures(ctx context.Context, from, to *time.Time) ([]OfficeClosure, error)
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

const leaveSelect = `SELECT l.id, l.user_id, u.name, u.role, l.approved_by, l.type, l.status,
    l.start_date, l.end_date, l.reason, l.rejection_reason, l.approved_at, l.created_at, l.updated_at
FROM leaves l
JOIN users u ON u.id = l.user_id`

func scanLeave(row pgx.Row) (*Leave, error) {
	var l Leave
	err := row.Scan(&l.ID, &l.UserID, &l.UserName, &l.UserRole, &l.ApprovedBy, &l.Type, &l.Status,
		&l.StartDate, &l.EndDate, &l.Reason, &l.RejectionReason, &l.ApprovedAt, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func collectLeaves(rows pgx.Rows) ([]Leave, error) {
	defer rows.Close()
	var out []Leave
	for rows.Next() {
		l, err := scanLeave(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func (r *repository) Create(ctx context.Context, l Leave) (*Leave, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO leaves (user_id, type, status, start_date, end_date, reason)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		l.UserID, l.Type, l.Status, l.StartDate, l.EndDate, l.Reason).Scan(&id)
	if db.IsExclusionViolation(err) {
		return nil, ErrOverlap
	}
	if err != nil {
		return nil, fmt.Errorf("insert leave: %w", err)
	}
	return r.Get(ctx, id)
}

func (r *repository) Get(ctx context.Context, id int64) (*Leave, error) {
	return scanLeave(r.db.QueryRow(ctx, leaveSelect+` WHERE l.id = $1`, id))
}

func (r *repository) GetVisible(ctx context.Context, id int64, scope Scope) (*Leave, error) {
	visible, args := scopeSQL(scope, []any{id})
	return scanLeave(r.db.QueryRow(ctx, leaveSelect+` WHERE l.id = $1 AND `+visible, args...))
}

func (r *repository) Lock(ctx context.Context, id int64) (*Leave, error) {
	return scanLeave(r.db.QueryRow(ctx, leaveSelect+` WHERE l.id = $1 FOR UPDATE OF l`, id))
}

func scopeSQL(s Scope, args []any) (string, []any) {
	switch {
	case s.None:
		return "FALSE", args
	case s.All:
		return "TRUE", args
	}
	args = append(args, s.Self)
	cond := fmt.Sprintf("l.user_id = $%d", len(args))
	if s.Role != "" {
		args = append(args, s.Role)
		cond = fmt.Sprintf("(%s OR u.role = $%d)", cond, len(args))
	}
	return cond, args
}

func (r *repository) List(ctx context.Context, filter ListFilter, scope Scope) ([]Leave, int, error) {
	scopeWhere, args := scopeSQL(scope, nil)
	conditions := []string{scopeWhere}
	add := func(format string, v any) {
		args = append(args, v)
		conditions = append(conditions, fmt.Sprintf(format, len(args)))
	}
	if filter.UserID != nil {
		add("l.user_id = $%d", *filter.UserID)
	}
	if filter.Status != "" {
		add("l.status = $%d", filter.Status)
	}
	if filter.Type != "" {
		add("l.type = $%d", filter.Type)
	}
	if filter.From != nil {
		add("l.end_date >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("l.start_date <= $%d", *filter.To)
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM leaves l JOIN users u ON u.id = l.user_id`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count leaves: %w", err)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 25
	}
	args = append(args, limit, filter.Offset)
	rows, err := r.db.Query(ctx, leaveSelect+where+
		fmt.Sprintf(` ORDER BY l.start_date DESC, l.id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list leaves: %w", err)
	}
	list, err := collectLeaves(rows)
	return list, total, err
}

func (r *repository) Overlapping(ctx context.Context, userID int64, start, end time.Time) ([]Leave, error) {
	rows, err := r.db.Query(ctx, leaveSelect+`
WHERE l.user_id = $1 AND l.status IN ('pending', 'approved')
  AND l.start_date <= $3 AND l.end_date >= $2
ORDER BY l.start_date`, userID, start, end)
	if err != nil {
		return nil, err
	}
	return collectLeaves(rows)
}

func (r *repository) Decide(ctx context.Context, id int64, d Decision) error {
	tag, err := r.db.Exec(ctx, `UPDATE leaves
SET status = $2, approved_by = $3, approved_at = $4, rejection_reason = $5, updated_at = NOW()
WHERE id = $1 AND status = 'pending'`, id, d.Status, d.ApprovedBy, d.ApprovedAt, d.Reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotPending
	}
	return nil
}

func (r *repository) Cancel(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE leaves SET status = 'cancelled', updated_at = NOW()
WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotPending
	}
	return nil
}

func (r *repository) ApprovedBetween(ctx context.Context, from, to time.Time) ([]Leave, error) {
	rows, err := r.db.Query(ctx, leaveSelect+`
WHERE l.status = 'approved' AND l.start_date <= $2 AND l.end_date >= $1
ORDER BY l.start_date, l.id`, from, to)
	if err != nil {
		return nil, err
	}
	return collectLeaves(rows)
}

const closureColumns = `id, title, type, start_date, end_date, notes, created_by, created_at, updated_at`

func scanClosure(row pgx.Row) (*OfficeClosure, error) {
	var c OfficeClosure
	err := row.Scan(&c.ID, &c.Title, &c.Type, &c.StartDate, &c.EndDate, &c.Notes, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repository) CreateClosure(ctx context.Context, c OfficeClosure) (*OfficeClosure, error) {
	return scanClosure(r.db.QueryRow(ctx, `INSERT INTO office_closures (title, type, start_date, end_date, notes, created_by)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+closureColumns,
		c.Title, c.Type, c.StartDate, c.EndDate, c.Notes, c.CreatedBy))
}

func (r *repository) GetClosure(ctx context.Context, id int64) (*OfficeClosure, error) {
	return scanClosure(r.db.QueryRow(ctx, `SELECT `+closureColumns+` FROM office_closures WHERE id = $1`, id))
}

func (r *repository) UpdateClosure(ctx context.Context, c OfficeClosure) (*OfficeClosure, error) {
	return scanClosure(r.db.QueryRow(ctx, `UPDATE office_closures
SET title = $2, type = $3, start_date = $4, end_date = $5, notes = $6, updated_at = NOW()
WHERE id = $1 RETURNING `+closureColumns, c.ID, c.Title, c.Type, c.StartDate, c.EndDate, c.Notes))
}

func (r *repository) DeleteClosure(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM office_closures WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) ListClosures(ctx context.Context, from, to *time.Time) ([]OfficeClosure, error) {
	var (
		conditions = []string{"TRUE"}
		args       []any
	)
	if from != nil {
		args = append(args, *from)
		conditions = append(conditions, fmt.Sprintf("end_date >= $%d", len(args)))
	}
	if to != nil {
		args = append(args, *to)
		conditions = append(conditions, fmt.Sprintf("start_date <= $%d", len(args)))
	}
	rows, err := r.db.Query(ctx, `SELECT `+closureColumns+` FROM office_closures WHERE `+
		strings.Join(conditions, " AND ")+` ORDER BY start_date, id`, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (OfficeClosure, error) {
		c, err := scanClosure(row)
		if err != nil {
			return OfficeClosure{}, err
		}
		return *c, nil
	})
}
