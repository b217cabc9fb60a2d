package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/agencyhub/portal/internal/jobs"
	"github.com/agencyhub/portal/internal/shared"
)

type memoryStore struct {
	entries []shared.AuditLog
	err     error
}

func (m *memoryStore) Record(_ context.Context, log shared.AuditLog) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, log)
	return nil
}

type recordingExec struct {
	sql  string
	args []any
}

func (r *recordingExec) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.sql = sql
	r.args = args
	return pgconn.NewCommandTag("DELETE 3"), nil
}

func sampleEntry() shared.AuditLog {
	return shared.AuditLog{
		ActorID:  1,
		Action:   "simulation.start",
		Entity:   "role",
		EntityID: "client_viewer",
		Meta:     map[string]any{"client_id": 7},
		At:       time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestNewAuditRecordTask(t *testing.T) {
	task, err := NewAuditRecordTask(sampleEntry())
	require.NoError(t, err)
	assert.Equal(t, TaskAuditRecord, task.Type())

	var payload AuditRecordPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, "client_viewer", payload.Entry.EntityID)
	assert.Equal(t, float64(7), payload.Entry.Meta["client_id"])

	_, err = NewAuditRecordTask(shared.AuditLog{Action: "simulation.start"})
	assert.ErrorIs(t, err, shared.ErrAuditIncomplete)
}

func TestAuditRecordJobStoresEntry(t *testing.T) {
	store := &memoryStore{}
	job := NewAuditRecordJob(store, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	task, err := NewAuditRecordTask(sampleEntry())
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, store.entries, 1)
	assert.Equal(t, "simulation.start", store.entries[0].Action)
	assert.True(t, store.entries[0].At.Equal(sampleEntry().At))
}

func TestAuditRecordJobSkipsBadPayloads(t *testing.T) {
	job := NewAuditRecordJob(&memoryStore{}, nil, nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskAuditRecord, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	incomplete, _ := json.Marshal(AuditRecordPayload{Entry: shared.AuditLog{Action: "x"}})
	err = job.Handle(context.Background(), asynq.NewTask(TaskAuditRecord, incomplete))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestAuditRecordJobRetriesStoreErrors(t *testing.T) {
	boom := errors.New("db down")
	job := NewAuditRecordJob(&memoryStore{err: boom}, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	task, err := NewAuditRecordTask(sampleEntry())
	require.NoError(t, err)

	assert.ErrorIs(t, job.Handle(context.Background(), task), boom)
}

func TestSessionsPurgeJob(t *testing.T) {
	db := &recordingExec{}
	job := NewSessionsPurgeJob(db, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	job.clock = func() time.Time { return now }
	task, err := NewSessionsPurgeTask(24 * time.Hour)
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	assert.Contains(t, db.sql, "DELETE FROM sessions")
	require.Len(t, db.args, 1)
	assert.Equal(t, now.Add(-24*time.Hour), db.args[0])
}
