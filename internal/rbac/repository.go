package rbac

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voyage-crm/voyage/internal/platform/db"
)

// Repository persists permissions, groups and grants.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Exec() db.DBTX

	ListPermissions(ctx context.Context) ([]Permission, error)
	GetPermissionByName(ctx context.Context, name string) (*Permission, error)
	CreatePermission(ctx context.Context, p Permission) (*Permission, error)

	ListGroups(ctx context.Context) ([]Group, error)
	GetGroup(ctx context.Context, id int64) (*Group, error)
	CreateGroup(ctx context.Context, name, description string) (*Group, error)
	DeleteGroup(ctx context.Context, id int64) error
	SetGroupPermissions(ctx context.Context, groupID int64, permissionIDs []int64) error

	GrantPermission(ctx context.Context, userID, permissionID int64, grantedBy int64) error
	RevokePermission(ctx context.Context, userID, permissionID int64) error
	GrantGroup(ctx context.Context, userID, groupID int64, grantedBy int64) error
	RevokeGroup(ctx context.Context, userID, groupID int64) error
	ListGrants(ctx context.Context, userID int64) ([]Grant, error)

	EffectivePermissions(ctx context.Context, userID int64) ([]string, error)
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
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

func (r *repository) Exec() db.DBTX { return r.db }

func (r *repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, resource, action, description FROM permissions ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Permission, error) {
		var p Permission
		err := row.Scan(&p.ID, &p.Name, &p.Resource, &p.Action, &p.Description)
		return p, err
	})
}

func (r *repository) GetPermissionByName(ctx context.Context, name string) (*Permission, error) {
	var p Permission
	err := r.db.QueryRow(ctx, `SELECT id, name, resource, action, description FROM permissions WHERE name = $1`, name).
		Scan(&p.ID, &p.Name, &p.Resource, &p.Action, &p.Description)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) CreatePermission(ctx context.Context, p Permission) (*Permission, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO permissions (name, resource, action, description) VALUES ($1, $2, $3, $4) RETURNING id`,
		p.Name, p.Resource, p.Action, p.Description).Scan(&p.ID)
	if db.IsUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

const groupSelect = `SELECT g.id, g.name, g.description,
    COALESCE(array_agg(p.name ORDER BY p.name) FILTER (WHERE p.name IS NOT NULL), '{}')
FROM permission_groups g
LEFT JOIN permission_group_permissions gp ON gp.group_id = g.id
LEFT JOIN permissions p ON p.id = gp.permission_id`

func scanGroup(row pgx.Row) (Group, error) {
	var g Group
	err := row.Scan(&g.ID, &g.Name, &g.Description, &g.Permissions)
	return g, err
}

func (r *repository) ListGroups(ctx context.Context) ([]Group, error) {
	rows, err := r.db.Query(ctx, groupSelect+` GROUP BY g.id ORDER BY g.name`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Group, error) { return scanGroup(row) })
}

func (r *repository) GetGroup(ctx context.Context, id int64) (*Group, error) {
	g, err := scanGroup(r.db.QueryRow(ctx, groupSelect+` WHERE g.id = $1 GROUP BY g.id`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *repository) CreateGroup(ctx context.Context, name, description string) (*Group, error) {
	g := Group{Name: name, Description: description, Permissions: []string{}}
	err := r.db.QueryRow(ctx, `INSERT INTO permission_groups (name, description) VALUES ($1, $2) RETURNING id`, name, description).Scan(&g.ID)
	if db.IsUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *repository) DeleteGroup(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM permission_groups WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) SetGroupPermissions(ctx context.Context, groupID int64, permissionIDs []int64) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM permission_group_permissions WHERE group_id = $1 AND NOT (permission_id = ANY($2))`, groupID, permissionIDs); err != nil {
		return err
	}
	_, err := r.db.Exec(ctx, `INSERT INTO permission_group_permissions (group_id, permission_id)
SELECT $1, unnest($2::bigint[]) ON CONFLICT DO NOTHING`, groupID, permissionIDs)
	if db.IsForeignKeyViolation(err) {
		return ErrNotFound
	}
	return err
}

func (r *repository) GrantPermission(ctx context.Context, userID, permissionID, grantedBy int64) error {
	_, err := r.db.Exec(ctx, `INSERT INTO user_permissions (user_id, permission_id, granted_by, granted_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (user_id, permission_id) DO UPDATE SET granted_by = EXCLUDED.granted_by, granted_at = EXCLUDED.granted_at`,
		userID, permissionID, grantedBy)
	if db.IsForeignKeyViolation(err) {
		return ErrNotFound
	}
	return err
}

func (r *repository) RevokePermission(ctx context.Context, userID, permissionID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM user_permissions WHERE user_id = $1 AND permission_id = $2`, userID, permissionID)
	return err
}

func (r *repository) GrantGroup(ctx context.Context, userID, groupID, grantedBy int64) error {
	_, err := r.db.Exec(ctx, `INSERT INTO user_permission_groups (user_id, group_id, granted_by, granted_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (user_id, group_id) DO UPDATE SET granted_by = EXCLUDED.granted_by, granted_at = EXCLUDED.granted_at`,
		userID, groupID, grantedBy)
	if db.IsForeignKeyViolation(err) {
		return ErrNotFound
	}
	return err
}

func (r *repository) RevokeGroup(ctx context.Context, userID, groupID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM user_permission_groups WHERE user_id = $1 AND group_id = $2`, userID, groupID)
	return err
}

func (r *repository) ListGrants(ctx context.Context, userID int64) ([]Grant, error) {
	rows, err := r.db.Query(ctx, `SELECT up.user_id, p.name, 'permission', up.granted_by, up.granted_at
FROM user_permissions up JOIN permissions p ON p.id = up.permission_id WHERE up.user_id = $1
UNION ALL
SELECT ug.user_id, g.name, 'group', ug.granted_by, ug.granted_at
FROM user_permission_groups ug JOIN permission_groups g ON g.id = ug.group_id WHERE ug.user_id = $1
ORDER BY 5 DESC`, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Grant, error) {
		var g Grant
		err := row.Scan(&g.UserID, &g.Name, &g.Kind, &g.GrantedBy, &g.GrantedAt)
		return g, err
	})
}

// EffectivePermissions unions direct grants with grants through groups.
func (r *repository) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT p.name FROM user_permissions up
JOIN permissions p ON p.id = up.permission_id WHERE up.user_id = $1
UNION
SELECT p.name FROM user_permission_groups ug
JOIN permission_group_permissions gp ON gp.group_id = ug.group_id
JOIN permissions p ON p.id = gp.permission_id WHERE ug.user_id = $1
ORDER BY 1`, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
