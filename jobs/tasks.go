package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/retail-authz/internal/events"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuditEvent records a domain event in the audit log.
	TaskAuditEvent = "authz:audit_event"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "authz:idempotency_cleanup"
)

// IdempotencyCleanupPayload configures a cleanup run.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewAuditEventTask constructs an Asynq task carrying evt.
func NewAuditEventTask(evt events.Event) (*asynq.Task, error) {
	if err := evt.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("jobs: encode event: %w", err)
	}
	return asynq.NewTask(TaskAuditEvent, data, asynq.MaxRetry(5)), nil
}

// NewIdempotencyCleanupTask constructs the periodic cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}
