package repo

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldline/internal/db"
	"fieldline/internal/domain"
	"fieldline/internal/migrate"
)

func newTestRepo(t *testing.T) Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	r := Repo{DB: conn}
	require.NoError(t, r.InsertUser(context.Background(), nil, domain.User{
		ID: "u1", Username: "jdoe", PhoneNumber: "+254712345678", Role: domain.RoleWorker, Status: domain.UserActive,
		CreatedAt: "2024-01-01T00:00:00Z", UpdatedAt: "2024-01-01T00:00:00Z",
	}))
	return r
}

func task(id, status, createdAt string) domain.Task {
	return domain.Task{
		ID: id, Title: "Task " + id, Status: status, AssignedTo: "jdoe", AssignedBy: "admin",
		CreatedAt: createdAt, UpdatedAt: createdAt,
	}
}

func TestOneActiveTaskIndex(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, r.InsertTask(ctx, nil, task("a", domain.TaskPending, "2024-01-01T00:00:00Z")))

	err := r.InsertTask(ctx, nil, task("b", domain.TaskInProgress, "2024-01-01T00:00:01Z"))
	assert.True(t, errors.Is(err, domain.ErrConflict), "got %v", err)

	require.NoError(t, r.InsertTask(ctx, nil, task("c", domain.TaskCompleted, "2024-01-01T00:00:02Z")))
	reopened := task("c", domain.TaskPending, "2024-01-01T00:00:02Z")
	err = r.UpdateTask(ctx, nil, reopened)
	assert.True(t, errors.Is(err, domain.ErrConflict), "got %v", err)

	active, err := r.ActiveTaskFor(ctx, nil, "jdoe")
	require.NoError(t, err)
	assert.Equal(t, "a", active.ID)
}

func TestDuplicateUserConflicts(t *testing.T) {
	r := newTestRepo(t)
	err := r.InsertUser(context.Background(), nil, domain.User{
		ID: "u2", Username: "jdoe", Role: domain.RoleWorker, Status: domain.UserActive,
		CreatedAt: "2024-01-01T00:00:00Z", UpdatedAt: "2024-01-01T00:00:00Z",
	})
	assert.True(t, errors.Is(err, domain.ErrConflict), "got %v", err)
}

func TestListTasksCursor(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, r.InsertTask(ctx, nil, task(fmt.Sprintf("t%d", i), domain.TaskCompleted, fmt.Sprintf("2024-01-01T00:00:0%dZ", i))))
	}
	first, err := r.ListTasks(ctx, TaskFilters{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "t4", first[0].ID)

	last := first[len(first)-1]
	rest, err := r.ListTasks(ctx, TaskFilters{CursorCreatedAt: last.CreatedAt, CursorID: last.ID})
	require.NoError(t, err)
	require.Len(t, rest, 3)
	assert.Equal(t, "t2", rest[0].ID)
	assert.Equal(t, "t0", rest[2].ID)
}

func TestDeleteTaskCascadesEvidence(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, r.InsertTask(ctx, nil, task("a", domain.TaskCompleted, "2024-01-01T00:00:00Z")))
	require.NoError(t, r.InsertEvidence(ctx, nil, domain.Evidence{ID: "e1", TaskID: "a", FileURL: "tasks/x.png", UploadedAt: "2024-01-01T00:00:00Z"}))
	require.NoError(t, r.DeleteTask(ctx, nil, "a"))

	byTask, err := r.EvidenceByTask(ctx, []string{"a"})
	require.NoError(t, err)
	assert.Empty(t, byTask["a"])
	assert.True(t, errors.Is(r.DeleteTask(ctx, nil, "a"), ErrNotFound))
}

func TestAuditPaging(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := r.InsertAudit(ctx, nil, domain.AuditEntry{Action: domain.ActionCreatedTask, UserID: "admin", CreatedAt: "2024-01-01T00:00:00Z"})
		require.NoError(t, err)
	}
	_, err := r.InsertAudit(ctx, nil, domain.AuditEntry{Action: domain.ActionTaskReset, UserID: "ops", CreatedAt: "2024-01-01T00:00:00Z"})
	require.NoError(t, err)

	latest, err := r.LatestAuditID(ctx)
	require.NoError(t, err)
	newest, err := r.ListAudit(ctx, AuditFilters{Limit: 10})
	require.NoError(t, err)
	require.Len(t, newest, 4)
	assert.Equal(t, latest, newest[0].ID)

	created, err := r.ListAudit(ctx, AuditFilters{Action: string(domain.ActionCreatedTask), CursorID: newest[1].ID})
	require.NoError(t, err)
	assert.Len(t, created, 2)

	after, err := r.AuditAfter(ctx, 10, newest[2].ID)
	require.NoError(t, err)
	require.Len(t, after, 2)
	assert.Less(t, after[0].ID, after[1].ID)
}
