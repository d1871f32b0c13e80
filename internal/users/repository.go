package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voyage-crm/voyage/internal/platform/db"
)

// Repository defines persistence for staff accounts.
type Repository interface {
	Get(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, filter ListFilter) ([]User, error)
	Create(ctx context.Context, u User) (*User, error)
	Update(ctx context.Context, id int64, changes Changes) (*User, error)
	FindManager(ctx context.Context, role Role, excludeID int64) (*User, error)
}

type repository struct {
	db db.DBTX
}

// NewRepository returns a PostgreSQL backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

const userColumns = `id, name, email, password_hash, role, is_manager, is_active, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var role string
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &u.Manager, &u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.Role = Role(role)
	return &u, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]User, error) {
	var conds []string
	var args []any
	if filter.Role != "" {
		args = append(args, string(filter.Role))
		conds = append(conds, fmt.Sprintf("role = $%d", len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		conds = append(conds, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+s+"%")
		conds = append(conds, fmt.Sprintf("(name ILIKE $%d OR email ILIKE $%d)", len(args), len(args)))
	}
	query := `SELECT ` + userColumns + ` FROM users`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY name, id"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func (r *repository) Create(ctx context.Context, u User) (*User, error) {
	created, err := scanUser(r.db.QueryRow(ctx, `INSERT INTO users (name, email, password_hash, role, is_manager, is_active)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+userColumns,
		u.Name, u.Email, u.PasswordHash, string(u.Role), u.Manager, u.Active))
	if db.IsUniqueViolation(err) {
		return nil, ErrEmailTaken
	}
	return created, err
}

func (r *repository) Update(ctx context.Context, id int64, c Changes) (*User, error) {
	var role *string
	if c.Role != nil {
		v := string(*c.Role)
		role = &v
	}
	return scanUser(r.db.QueryRow(ctx, `UPDATE users SET
    name = COALESCE($2, name),
    role = COALESCE($3, role),
    is_manager = COALESCE($4, is_manager),
    is_active = COALESCE($5, is_active),
    password_hash = COALESCE($6, password_hash),
    updated_at = NOW()
WHERE id = $1 RETURNING `+userColumns, id, c.Name, role, c.Manager, c.Active, c.PasswordHash))
}

// FindManager returns the lowest-id active manager of role other than excludeID.
func (r *repository) FindManager(ctx context.Context, role Role, excludeID int64) (*User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users
WHERE role = $1 AND is_manager AND is_active AND id <> $2
ORDER BY id LIMIT 1`, string(role), excludeID))
}
