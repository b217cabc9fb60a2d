package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/agencyhub/portal/internal/jobs"
	"github.com/agencyhub/portal/internal/shared"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// AuditStore persists audit records. *shared.AuditLogger implements it.
type AuditStore interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// AuditRecordJob writes queued audit records into audit_logs.
type AuditRecordJob struct {
	Store   AuditStore
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewAuditRecordJob wires dependencies for the audit handler.
func NewAuditRecordJob(store AuditStore, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditRecordJob {
	return &AuditRecordJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle processes TaskAuditRecord tasks.
func (j *AuditRecordJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("audit record: handler not configured")
	}
	var payload AuditRecordPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if err := payload.Entry.Validate(); err != nil {
		j.logger().Warn("drop incomplete audit record", slog.String("action", payload.Entry.Action))
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskAuditRecord)
	err := j.Store.Record(ctx, payload.Entry)
	if err != nil {
		j.logger().Error("record audit", slog.String("action", payload.Entry.Action), slog.Any("error", err))
	}
	return tracker.End(err)
}

func (j *AuditRecordJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskAuditRecord))
	}
	return slog.Default().With(slog.String("job", TaskAuditRecord))
}

func (j *AuditRecordJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
