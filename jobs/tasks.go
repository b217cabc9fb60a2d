package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/agencyhub/portal/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueAudit carries audit records; it is weighted above housekeeping.
	QueueAudit = "audit"

	// TaskAuditRecord persists one audit_logs row.
	TaskAuditRecord = "audit:record"
	// TaskSessionsPurge deletes expired rows from sessions.
	TaskSessionsPurge = "sessions:purge"
)

// AuditRecordPayload is the wire form of shared.AuditLog.
type AuditRecordPayload struct {
	Entry shared.AuditLog `json:"entry"`
}

// NewAuditRecordTask constructs an Asynq task for entry.
func NewAuditRecordTask(entry shared.AuditLog) (*asynq.Task, error) {
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(AuditRecordPayload{Entry: entry})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditRecord, data, asynq.Queue(QueueAudit), asynq.MaxRetry(10)), nil
}

// SessionsPurgePayload configures a purge run.
type SessionsPurgePayload struct {
	// Grace keeps rows this long past expiry for investigation.
	Grace time.Duration `json:"grace"`
}

// NewSessionsPurgeTask constructs an Asynq task for the sessions purge.
func NewSessionsPurgeTask(grace time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(SessionsPurgePayload{Grace: grace})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionsPurge, data), nil
}
