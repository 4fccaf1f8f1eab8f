package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/retail-authz/internal/events"
	jobmetrics "github.com/odyssey-erp/retail-authz/internal/jobs"
	"github.com/odyssey-erp/retail-authz/internal/shared"
)

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// AuditEventJob writes published domain events into the audit log.
type AuditEventJob struct {
	Recorder AuditRecorder
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewAuditEventJob initialises the audit handler.
func NewAuditEventJob(recorder AuditRecorder, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditEventJob {
	return &AuditEventJob{Recorder: recorder, Logger: logger, Metrics: metrics}
}

// Handle processes TaskAuditEvent tasks. Undecodable or invalid events are
// not retried.
func (j *AuditEventJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Recorder == nil {
		return errors.New("audit event: handler not configured")
	}
	tracker := j.Metrics.Track(TaskAuditEvent)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	var evt events.Event
	if err := json.Unmarshal(t.Payload(), &evt); err != nil {
		j.logger().Warn("audit event decode", slog.Any("error", err))
		return fmt.Errorf("audit event: decode: %v: %w", err, asynq.SkipRetry)
	}
	entry, err := evt.AuditLog()
	if err != nil {
		j.logger().Warn("audit event invalid", slog.String("kind", string(evt.Kind)), slog.Any("error", err))
		return fmt.Errorf("audit event: %v: %w", err, asynq.SkipRetry)
	}
	if err := j.Recorder.Record(ctx, entry); err != nil {
		return fmt.Errorf("audit event: record %s: %w", evt.Kind, err)
	}
	j.Metrics.AddEvent(string(evt.Kind))
	return nil
}

func (j *AuditEventJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
