package auth

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voyage-crm/voyage/internal/platform/db"
	"github.com/voyage-crm/voyage/internal/users"
)

// Repository defines persistence operations for the auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*users.User, error)
	CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error
	DeleteSession(ctx context.Context, id string) error
	SetPassword(ctx context.Context, userID int64, hash string) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db    db.DBTX
	users users.Repository
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{db: pool, users: users.NewRepository(pool)}
}

// FindByEmail fetches a user by email, including the password hash.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*users.User, error) {
	return r.users.GetByEmail(ctx, email)
}

// CreateSession records a login for auditing; Redis remains the source of truth.
func (r *PGRepository) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	_, err := r.db.Exec(ctx, `INSERT INTO sessions (id, user_id, created_at, expires_at, ip, ua)
VALUES ($1, $2, NOW(), $3, NULLIF($4, ''), NULLIF($5, ''))
ON CONFLICT (id) DO NOTHING`, id, userID, expiresAt.UTC(), ip, ua)
	return err
}

// DeleteSession removes a session record.
func (r *PGRepository) DeleteSession(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

// SetPassword stores a new bcrypt hash for the user.
func (r *PGRepository) SetPassword(ctx context.Context, userID int64, hash string) error {
	_, err := r.users.Update(ctx, userID, users.Changes{PasswordHash: &hash})
	return err
}

var _ Repository = (*PGRepository)(nil)
