package audit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldline/internal/db"
	"fieldline/internal/domain"
	"fieldline/internal/migrate"
	"fieldline/internal/repo"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func newRecorder(t *testing.T, pub Publisher) Recorder {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	return Recorder{
		Repo:      repo.Repo{DB: conn},
		Publisher: pub,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:       func() time.Time { return time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC) },
	}
}

func TestRecordStoresAndPublishes(t *testing.T) {
	w := &fakeWriter{}
	r := newRecorder(t, newKafkaPublisherWithWriter(w))
	ctx := context.Background()

	ok := r.Record(ctx, "admin", domain.ActionCreatedTask, "Task 'Paint' assigned to jdoe")
	require.True(t, ok)

	entries, err := r.Repo.ListAudit(ctx, repo.AuditFilters{Limit: 10})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "2024-03-01T09:30:00Z", entries[0].CreatedAt)

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "admin", string(w.msgs[0].Key))
	var ev Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &ev))
	assert.Equal(t, entries[0].ID, ev.ID)
	assert.Equal(t, "created_task", ev.Action)
	assert.Equal(t, "admin", ev.UserID)
}

func TestRecordSurvivesPublishFailure(t *testing.T) {
	r := newRecorder(t, newKafkaPublisherWithWriter(&fakeWriter{err: errors.New("broker down")}))
	ctx := context.Background()
	assert.True(t, r.Record(ctx, "jdoe", domain.ActionAcknowledgedTask, "ack"))
	latest, err := r.Repo.LatestAuditID(ctx)
	require.NoError(t, err)
	assert.NotZero(t, latest)
}

func TestRecordRejectsUnknownAction(t *testing.T) {
	r := newRecorder(t, nil)
	assert.False(t, r.Record(context.Background(), "admin", domain.AuditAction("made_coffee"), ""))
}

func TestRecordIgnoresCancelledContext(t *testing.T) {
	r := newRecorder(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, r.Record(ctx, "admin", domain.ActionDeletedTask, "Task 'Paint' deleted"))
}
