package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldline/internal/config"
	"fieldline/internal/domain"
	"fieldline/internal/engine"
	"fieldline/internal/evidence"
	"fieldline/internal/notify"
	"fieldline/internal/server"
)

func TestOpenSeedsAdminAndDefaults(t *testing.T) {
	ctx := context.Background()
	workspace := t.TempDir()
	cfg := config.Default()
	cfg.Auth.JWTSecret = "s"
	a, err := Open(ctx, workspace, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer a.Close()

	admin, err := a.Engine.Repo.GetUser(ctx, nil, cfg.Admin.Username)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, admin.Role)

	assert.IsType(t, notify.LogNotifier{}, a.Engine.Notifier)
	assert.IsType(t, &server.MemoryRevoker{}, a.Revoker)
	assert.Equal(t, evidence.FSBlobs{Dir: filepath.Join(workspace, ".fieldline", "uploads")}, a.Engine.Evidence.Blobs)

	_, err = a.Engine.AddWorker(ctx, engine.WorkerCreateOptions{Username: "jdoe", PhoneNumber: "0712345678", ActorID: admin.Username})
	require.NoError(t, err)

	handler, err := a.Handler()
	require.NoError(t, err)
	assert.NotNil(t, handler)
}

func TestOpenIsIdempotent(t *testing.T) {
	ctx := context.Background()
	workspace := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	first, err := Open(ctx, workspace, nil, logger)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(ctx, workspace, nil, logger)
	require.NoError(t, err)
	defer second.Close()
	users, err := second.Engine.Repo.ListUsers(ctx, "")
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestOpenUsesSMSGatewayWhenConfigured(t *testing.T) {
	cfg := config.Default()
	cfg.SMS.Endpoint = "http://127.0.0.1:1/sms"
	a, err := Open(context.Background(), t.TempDir(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer a.Close()
	assert.IsType(t, &notify.SMSGateway{}, a.Engine.Notifier)
}
