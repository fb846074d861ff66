package evidence

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldline/internal/db"
	"fieldline/internal/domain"
	"fieldline/internal/migrate"
	"fieldline/internal/repo"
)

type failingBlobs struct {
	FSBlobs
	removeErr error
}

func (b failingBlobs) Remove(ctx context.Context, ref string) error {
	if b.removeErr != nil {
		return b.removeErr
	}
	return b.FSBlobs.Remove(ctx, ref)
}

func newTestStore(t *testing.T, blobs BlobStore) (Store, string) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	r := repo.Repo{DB: conn}
	ctx := context.Background()
	require.NoError(t, r.InsertUser(ctx, nil, domain.User{
		ID: "u1", Username: "jdoe", PhoneNumber: "+254712345678", Role: domain.RoleWorker, Status: domain.UserActive,
		CreatedAt: "2024-01-01T00:00:00Z", UpdatedAt: "2024-01-01T00:00:00Z",
	}))
	task := domain.Task{
		ID: "t1", Title: "Paint", Status: domain.TaskInProgress, AssignedTo: "jdoe", AssignedBy: "admin",
		CreatedAt: "2024-01-01T00:00:00Z", UpdatedAt: "2024-01-01T00:00:00Z",
	}
	require.NoError(t, r.InsertTask(ctx, nil, task))
	return Store{Repo: r, Blobs: blobs, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}, task.ID
}

func TestValidateMediaType(t *testing.T) {
	for _, ok := range []string{"image/jpeg", "image/PNG", "image/gif; charset=binary"} {
		_, err := ValidateMediaType(ok)
		assert.NoError(t, err, ok)
	}
	for _, bad := range []string{"", "text/plain", "image/webp", "application/pdf"} {
		_, err := ValidateMediaType(bad)
		assert.True(t, errors.Is(err, domain.ErrValidation), bad)
	}
}

func TestObjectKey(t *testing.T) {
	assert.True(t, strings.HasPrefix(ObjectKey("tasks", "a.JPEG", "image/jpeg"), "tasks/"))
	assert.True(t, strings.HasSuffix(ObjectKey("tasks", "a.JPEG", "image/jpeg"), ".jpeg"))
	assert.True(t, strings.HasSuffix(ObjectKey("tasks", "a.exe", "image/png"), ".png"))
}

func TestFSBlobsRejectsEscapingRefs(t *testing.T) {
	b := FSBlobs{Dir: t.TempDir()}
	_, err := b.Put(context.Background(), "../outside.png", "image/png", strings.NewReader("x"), 1)
	assert.Error(t, err)
	assert.Error(t, b.Remove(context.Background(), "/etc/passwd"))
	assert.ErrorIs(t, b.Remove(context.Background(), "tasks/missing.png"), ErrBlobMissing)
}

func TestAddListDelete(t *testing.T) {
	dir := t.TempDir()
	s, taskID := newTestStore(t, FSBlobs{Dir: dir})
	ctx := context.Background()

	ev, err := s.Add(ctx, taskID, Artifact{Name: "before.png", MediaType: "image/png", Content: strings.NewReader("png")})
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(ev.FileURL)))
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))

	items, err := s.List(ctx, taskID)
	require.NoError(t, err)
	require.Len(t, items, 1)

	out, err := s.Delete(ctx, items[0])
	require.NoError(t, err)
	assert.NoError(t, out.ContentErr)
	_, err = os.Stat(filepath.Join(dir, filepath.FromSlash(ev.FileURL)))
	assert.True(t, os.IsNotExist(err))
	items, err = s.List(ctx, taskID)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestAddUnknownTaskRemovesBlob(t *testing.T) {
	dir := t.TempDir()
	s, _ := newTestStore(t, FSBlobs{Dir: dir})
	_, err := s.Add(context.Background(), "missing", Artifact{Name: "a.png", MediaType: "image/png", Content: strings.NewReader("x")})
	require.Error(t, err)
	entries, err := os.ReadDir(filepath.Join(dir, "tasks"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDeleteRecordsContentFailure(t *testing.T) {
	blobs := failingBlobs{FSBlobs: FSBlobs{Dir: t.TempDir()}, removeErr: errors.New("disk busy")}
	s, taskID := newTestStore(t, blobs)
	ctx := context.Background()
	ev, err := s.Add(ctx, taskID, Artifact{Name: "a.gif", MediaType: "image/gif", Content: strings.NewReader("gif")})
	require.NoError(t, err)

	out, err := s.Delete(ctx, ev)
	require.NoError(t, err)
	assert.EqualError(t, out.ContentErr, "disk busy")
	items, err := s.List(ctx, taskID)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestDeleteMissingContentIsNotAFailure(t *testing.T) {
	s, taskID := newTestStore(t, FSBlobs{Dir: t.TempDir()})
	ctx := context.Background()
	ev := domain.Evidence{ID: "e1", TaskID: taskID, FileURL: "tasks/gone.png", UploadedAt: "2024-01-01T00:00:00Z"}
	require.NoError(t, s.Repo.InsertEvidence(ctx, nil, ev))
	out, err := s.Delete(ctx, ev)
	require.NoError(t, err)
	assert.NoError(t, out.ContentErr)
}
