package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog is one row of authz_audit_logs. ActorID is empty for
// unauthenticated actions such as failed logins.
type AuditLog struct {
	ActorID  string
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// AuditLogger appends records to authz_audit_logs.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the entry. A zero At is stamped by the database.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.pool == nil {
		return errors.New("shared: audit logger not initialised")
	}
	metaJSON, at, err := log.row()
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO authz_audit_logs (actor_id, action, entity, entity_id, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`,
		log.ActorID, log.Action, log.Entity, log.EntityID, metaJSON, at)
	if err != nil {
		return fmt.Errorf("shared: audit record %s: %w", log.Action, err)
	}
	return nil
}

// row validates the entry and returns the encoded meta and timestamp columns.
func (log AuditLog) row() ([]byte, *time.Time, error) {
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return nil, nil, fmt.Errorf("%w: audit log requires action, entity and entity id", ErrValidation)
	}
	meta := log.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, nil, fmt.Errorf("shared: audit meta: %w", err)
	}
	if log.At.IsZero() {
		return metaJSON, nil, nil
	}
	at := log.At.UTC()
	return metaJSON, &at, nil
}
