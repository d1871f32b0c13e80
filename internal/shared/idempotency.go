package shared

import (
	"context"
	"errors"
	"time"

	"github.com/voyage-crm/voyage/internal/platform/db"
)

// IdempotencyHeader is the request header clients use to make creates safe to retry.
const IdempotencyHeader = "Idempotency-Key"

// ErrIdempotencyConflict indicates a duplicate key.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

// IdempotencyStore persists processed keys.
type IdempotencyStore struct {
	db db.DBTX
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(exec db.DBTX) *IdempotencyStore {
	return &IdempotencyStore{db: exec}
}

// CheckAndInsert claims key for module, returning ErrIdempotencyConflict if
// it was already claimed. Pass a transaction as exec to release the claim
// when the surrounding work rolls back.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, exec db.DBTX, key, module string) error {
	if key == "" || module == "" {
		return errors.New("idempotency: key and module required")
	}
	if exec == nil {
		if s == nil || s.db == nil {
			return errors.New("idempotency: store not initialised")
		}
		exec = s.db
	}
	_, err := exec.Exec(ctx, `INSERT INTO idempotency_keys (key, module, created_at) VALUES ($1, $2, $3)`, key, module, time.Now().UTC())
	if db.IsUniqueViolation(err) {
		return ErrIdempotencyConflict
	}
	return err
}

// Cleanup removes entries older than retention.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, time.Now().UTC().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
