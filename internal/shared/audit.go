package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/voyage-crm/voyage/internal/platform/db"
)

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID int64
	Meta     map[string]any
	At       time.Time
}

// Auditor records audit entries. Implementations must be safe to call with a
// transaction-scoped executor so the entry commits with the change it describes.
type Auditor interface {
	Record(ctx context.Context, exec db.DBTX, log AuditLog) error
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct{}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger() *AuditLogger {
	return &AuditLogger{}
}

// Record persists the log entry through exec.
func (l *AuditLogger) Record(ctx context.Context, exec db.DBTX, log AuditLog) error {
	if exec == nil {
		return errors.New("audit: executor required")
	}
	if log.Action == "" || log.Entity == "" || log.EntityID == 0 {
		return errors.New("audit: action, entity and entity id required")
	}
	if log.Meta == nil {
		log.Meta = map[string]any{}
	}
	meta, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	if log.At.IsZero() {
		log.At = time.Now().UTC()
	}
	var actor *int64
	if log.ActorID != 0 {
		actor = &log.ActorID
	}
	_, err = exec.Exec(ctx, `INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6)`, actor, log.Action, log.Entity, fmt.Sprint(log.EntityID), meta, log.At)
	return err
}

// NopAuditor discards entries. Used by tests with in-memory repositories.
type NopAuditor struct{}

// Record implements Auditor.
func (NopAuditor) Record(context.Context, db.DBTX, AuditLog) error { return nil }
