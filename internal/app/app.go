// Package app assembles the engine and its backends from a workspace config.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"fieldline/internal/audit"
	"fieldline/internal/complaints"
	"fieldline/internal/config"
	"fieldline/internal/db"
	"fieldline/internal/engine"
	"fieldline/internal/evidence"
	"fieldline/internal/migrate"
	"fieldline/internal/notify"
	"fieldline/internal/server"
)

type App struct {
	Workspace  string
	Config     *config.Config
	DB         *sql.DB
	Engine     engine.Engine
	Complaints complaints.Aggregator
	Revoker    server.Revoker
	Logger     *slog.Logger

	closers []func() error
}

// Open migrates the workspace database, connects the configured storage,
// SMS, Kafka and Redis backends and seeds the admin user.
func Open(ctx context.Context, workspace string, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	a := &App{Workspace: workspace, Config: cfg, DB: conn, Logger: logger}
	a.closers = append(a.closers, conn.Close)
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	if err := migrate.MigrateContext(ctx, a.DB); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	blobs, err := a.blobStore(ctx)
	if err != nil {
		return err
	}
	e := engine.New(a.DB, a.Config, a.notifier(), blobs, a.Logger)
	if k := a.Config.Audit.Kafka; len(k.Brokers) > 0 {
		pub := audit.NewKafkaPublisher(k.Brokers, k.Topic, a.Logger)
		a.closers = append(a.closers, pub.Close)
		e.Audit.Publisher = pub
	}
	a.Engine = e
	a.Complaints = complaints.Aggregator{Repo: e.Repo, Audit: e.Audit, Evidence: e.Evidence}

	revoker, err := a.revoker(ctx)
	if err != nil {
		return err
	}
	a.Revoker = revoker

	if _, err := e.EnsureAdmin(ctx, a.Config.Admin.Username, a.Config.Admin.Phone); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	return nil
}

func (a *App) blobStore(ctx context.Context) (evidence.BlobStore, error) {
	switch a.Config.Storage.Backend {
	case "minio":
		b, err := evidence.NewMinioBlobs(ctx, a.Config.Storage.Minio)
		if err != nil {
			return nil, fmt.Errorf("minio: %w", err)
		}
		return b, nil
	default:
		dir := a.Config.Storage.Dir
		if dir == "" {
			dir = "uploads"
		}
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(a.Workspace, ".fieldline", dir)
		}
		return evidence.FSBlobs{Dir: dir}, nil
	}
}

func (a *App) notifier() notify.Notifier {
	if a.Config.SMS.Endpoint == "" {
		a.Logger.Info("sms endpoint not configured; notifications are logged only")
		return notify.LogNotifier{CountryCode: a.Config.SMS.CountryCode, Logger: a.Logger}
	}
	return notify.NewSMSGateway(a.Config.SMS, a.Logger)
}

func (a *App) revoker(ctx context.Context) (server.Revoker, error) {
	rc := a.Config.Redis
	if rc.Addr == "" {
		return server.NewMemoryRevoker(), nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: rc.Addr, Password: rc.Password, DB: rc.DB})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis %s: %w", rc.Addr, err)
	}
	a.closers = append(a.closers, rdb.Close)
	return server.NewRedisRevoker(rdb), nil
}

// AuthConfig derives the HTTP auth settings from the loaded config.
func (a *App) AuthConfig() server.AuthConfig {
	return server.AuthConfig{
		JWTSecret: a.Config.Auth.JWTSecret,
		TokenTTL:  time.Duration(a.Config.Auth.TokenTTLMinutes) * time.Minute,
		DevLogin:  a.Config.Auth.DevLogin,
		Revoker:   a.Revoker,
		Logger:    a.Logger,
	}
}

// Handler builds the HTTP API for this app.
func (a *App) Handler() (http.Handler, error) {
	return server.New(server.Config{
		Engine:     a.Engine,
		Complaints: a.Complaints,
		BasePath:   a.Config.Server.BasePath,
		Auth:       a.AuthConfig(),
		Logger:     a.Logger,
	})
}

// Close releases backends in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
