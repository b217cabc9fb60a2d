package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/agencyhub/portal/internal/jobs"
	"github.com/agencyhub/portal/internal/shared"
)

// SessionsPurgeJob removes session audit rows long past their expiry.
type SessionsPurgeJob struct {
	DB      shared.Execer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewSessionsPurgeJob wires dependencies for the purge handler.
func NewSessionsPurgeJob(db shared.Execer, logger *slog.Logger, metrics *jobmetrics.Metrics) *SessionsPurgeJob {
	return &SessionsPurgeJob{DB: db, Logger: logger, Metrics: metrics, clock: func() time.Time { return time.Now().UTC() }}
}

// Handle processes TaskSessionsPurge tasks.
func (j *SessionsPurgeJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload SessionsPurgePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Grace < 0 {
		payload.Grace = 0
	}
	if j.DB == nil {
		return nil
	}

	tracker := j.metrics().Track(TaskSessionsPurge)
	cutoff := j.now().Add(-payload.Grace)
	tag, err := j.DB.Exec(ctx, `DELETE FROM sessions WHERE expires_at < $1`, cutoff)
	if err != nil {
		j.logger().Error("purge sessions", slog.Any("error", err))
		return tracker.End(err)
	}
	j.logger().Info("purged expired sessions", slog.Int64("rows", tag.RowsAffected()), slog.Time("cutoff", cutoff))
	return tracker.End(nil)
}

func (j *SessionsPurgeJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskSessionsPurge))
	}
	return slog.Default().With(slog.String("job", TaskSessionsPurge))
}

func (j *SessionsPurgeJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *SessionsPurgeJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
