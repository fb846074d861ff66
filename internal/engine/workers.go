package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"fieldline/internal/domain"
	"fieldline/internal/notify"
	"fieldline/internal/repo"
)

type WorkerCreateOptions struct {
	Username    string
	PhoneNumber string
	ActorID     string
}

// AddWorker registers a field worker. The phone number is stored normalized.
func (e Engine) AddWorker(ctx context.Context, opts WorkerCreateOptions) (domain.User, error) {
	username := strings.TrimSpace(opts.Username)
	if username == "" {
		return domain.User{}, domain.NewValidationError("username", "username is required")
	}
	phone, err := notify.NormalizeRecipient(opts.PhoneNumber, e.countryCode())
	if err != nil {
		return domain.User{}, err
	}
	now := e.stamp()
	u := domain.User{
		ID:          uuid.NewString(),
		Username:    username,
		PhoneNumber: phone,
		Role:        domain.RoleWorker,
		Status:      domain.UserActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.Repo.InsertUser(ctx, nil, u); err != nil {
		return domain.User{}, err
	}
	e.Audit.Record(ctx, opts.ActorID, domain.ActionAddedWorker, fmt.Sprintf("Added worker %s (%s)", u.Username, u.PhoneNumber))
	return u, nil
}

func (e Engine) ListWorkers(ctx context.Context) ([]domain.User, error) {
	return e.Repo.ListUsers(ctx, domain.RoleWorker)
}

// GetWorker returns a user with the worker role. Admins are reported as not found.
func (e Engine) GetWorker(ctx context.Context, username string) (domain.User, error) {
	u, err := e.Repo.GetUser(ctx, nil, username)
	if err != nil {
		return domain.User{}, fmt.Errorf("worker %s: %w", username, err)
	}
	if u.Role != domain.RoleWorker {
		return domain.User{}, fmt.Errorf("worker %s: %w", username, domain.ErrNotFound)
	}
	return u, nil
}

func (e Engine) SetWorkerStatus(ctx context.Context, username, status, actorID string) (domain.User, error) {
	if !domain.IsUserStatus(status) {
		return domain.User{}, domain.NewValidationError("status", "invalid status %q", status)
	}
	u, err := e.GetWorker(ctx, username)
	if err != nil {
		return domain.User{}, err
	}
	if u.Status == status {
		return u, nil
	}
	u.UpdatedAt = e.stamp()
	if err := e.Repo.UpdateUserStatus(ctx, nil, username, status, u.UpdatedAt); err != nil {
		return domain.User{}, err
	}
	e.Audit.Record(ctx, actorID, domain.ActionUpdatedWorkerStatus,
		fmt.Sprintf("Worker %s status %s -> %s", username, u.Status, status))
	u.Status = status
	return u, nil
}

// RemoveWorker deletes a worker account. Tasks keep the username as their
// assignee.
func (e Engine) RemoveWorker(ctx context.Context, username, actorID string) error {
	if _, err := e.GetWorker(ctx, username); err != nil {
		return err
	}
	if err := e.Repo.DeleteUser(ctx, nil, username); err != nil {
		return fmt.Errorf("worker %s: %w", username, err)
	}
	e.Audit.Record(ctx, actorID, domain.ActionRemovedWorker, fmt.Sprintf("Removed worker %s", username))
	return nil
}

// EnsureAdmin creates the admin account if it is missing. An existing user
// with that name is left as is.
func (e Engine) EnsureAdmin(ctx context.Context, username, phone string) (domain.User, error) {
	u, err := e.Repo.GetUser(ctx, nil, username)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, err
	}
	normalized, err := notify.NormalizeRecipient(phone, e.countryCode())
	if err != nil {
		return domain.User{}, err
	}
	now := e.stamp()
	u = domain.User{
		ID:          uuid.NewString(),
		Username:    username,
		PhoneNumber: normalized,
		Role:        domain.RoleAdmin,
		Status:      domain.UserActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.Repo.InsertUser(ctx, nil, u); err != nil {
		return domain.User{}, err
	}
	e.Logger.Info("engine: seeded admin user", "username", username)
	return u, nil
}
