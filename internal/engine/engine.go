package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"fieldline/internal/audit"
	"fieldline/internal/config"
	"fieldline/internal/domain"
	"fieldline/internal/evidence"
	"fieldline/internal/notify"
	"fieldline/internal/repo"
)

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Audit    audit.Recorder
	Notifier notify.Notifier
	Evidence evidence.Store
	Config   *config.Config
	Logger   *slog.Logger
	Now      func() time.Time
}

func New(db *sql.DB, cfg *config.Config, notifier notify.Notifier, blobs evidence.BlobStore, logger *slog.Logger) Engine {
	if logger == nil {
		logger = slog.Default()
	}
	r := repo.Repo{DB: db}
	return Engine{
		DB:       db,
		Repo:     r,
		Audit:    audit.Recorder{Repo: r, Logger: logger},
		Notifier: notifier,
		Evidence: evidence.Store{Repo: r, Blobs: blobs, Logger: logger},
		Config:   cfg,
		Logger:   logger,
		Now:      time.Now,
	}
}

// WithClock returns a copy whose timestamps, including audit and evidence
// records, come from now.
func (e Engine) WithClock(now func() time.Time) Engine {
	e.Now = now
	e.Audit.Now = now
	e.Evidence.Now = now
	return e
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) countryCode() string {
	if e.Config != nil && e.Config.SMS.CountryCode != "" {
		return e.Config.SMS.CountryCode
	}
	return "254"
}

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	Title       string
	Description string
	AssignedTo  string
	AssignedBy  string
}

// CreateTask assigns a new pending task to a worker who has no active task,
// then notifies the worker. Notification failures are audited, not returned.
func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		return domain.Task{}, domain.NewValidationError("title", "title is required")
	}
	if strings.TrimSpace(opts.AssignedTo) == "" {
		return domain.Task{}, domain.NewValidationError("assigned_to", "assigned_to is required")
	}
	worker, err := e.Repo.GetUser(ctx, nil, opts.AssignedTo)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Task{}, fmt.Errorf("worker %s: %w", opts.AssignedTo, domain.ErrNotFound)
		}
		return domain.Task{}, err
	}
	if worker.Role != domain.RoleWorker {
		return domain.Task{}, fmt.Errorf("user %s is not a worker: %w", worker.Username, domain.ErrInvalidAssignee)
	}
	now := e.stamp()
	t := domain.Task{
		ID:          uuid.NewString(),
		Title:       title,
		Description: opts.Description,
		Status:      domain.TaskPending,
		AssignedTo:  worker.Username,
		AssignedBy:  opts.AssignedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	active, err := e.Repo.ActiveTaskFor(ctx, tx, worker.Username)
	switch {
	case err == nil:
		return domain.Task{}, fmt.Errorf("worker %s already has an active task %s: %w", worker.Username, active.ID, domain.ErrConflict)
	case !errors.Is(err, repo.ErrNotFound):
		return domain.Task{}, err
	}
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}

	e.notifyWorker(ctx, opts.AssignedBy, worker, fmt.Sprintf("You have been assigned a new task: %s", t.Title))
	e.Audit.Record(ctx, opts.AssignedBy, domain.ActionCreatedTask, fmt.Sprintf("Task '%s' assigned to %s", t.Title, t.AssignedTo))
	return t, nil
}

// AcknowledgeTask moves the caller's pending task to in_progress.
func (e Engine) AcknowledgeTask(ctx context.Context, taskID, workerID string) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.ownTask(ctx, tx, taskID, workerID)
	if err != nil {
		return domain.Task{}, err
	}
	if err := ensureTaskTransition(t.Status, domain.TaskInProgress, false); err != nil {
		return domain.Task{}, err
	}
	t.Status = domain.TaskInProgress
	t.UpdatedAt = e.stamp()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	e.Audit.Record(ctx, workerID, domain.ActionAcknowledgedTask, fmt.Sprintf("Task '%s' acknowledged by %s", t.Title, workerID))
	return t, nil
}

// AttachEvidenceAndComplete stores every artifact and marks the task
// completed, whatever its previous status. Artifacts stored before a failing
// one are kept.
func (e Engine) AttachEvidenceAndComplete(ctx context.Context, taskID, workerID string, artifacts []evidence.Artifact) (domain.Task, error) {
	if _, err := e.ownTask(ctx, nil, taskID, workerID); err != nil {
		return domain.Task{}, err
	}
	if len(artifacts) == 0 {
		return domain.Task{}, domain.NewValidationError("files", "at least one evidence file is required")
	}
	for _, a := range artifacts {
		if _, err := evidence.ValidateMediaType(a.MediaType); err != nil {
			return domain.Task{}, err
		}
	}
	for _, a := range artifacts {
		if _, err := e.Evidence.Add(ctx, taskID, a); err != nil {
			return domain.Task{}, err
		}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	t, err := e.Repo.GetTask(ctx, tx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	// evidence completes a task from any status
	if err := ensureTaskTransition(t.Status, domain.TaskCompleted, true); err != nil {
		return domain.Task{}, err
	}
	t.Status = domain.TaskCompleted
	t.UpdatedAt = e.stamp()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	e.Audit.Record(ctx, workerID, domain.ActionUploadedTaskEvidence,
		fmt.Sprintf("Uploaded %d evidence file(s) for task '%s'; task marked completed", len(artifacts), t.Title))
	return e.withEvidence(ctx, t)
}

// TaskUpdateOptions encapsulates allowed admin updates. Nil fields are left unchanged.
type TaskUpdateOptions struct {
	ID          string
	Title       *string
	Description *string
	Status      *string
	ActorID     string
}

// AdminUpdateTask applies a partial update. Status may be forced to any of
// the four task statuses.
func (e Engine) AdminUpdateTask(ctx context.Context, opts TaskUpdateOptions) (domain.Task, error) {
	if opts.Status != nil && !domain.IsTaskStatus(*opts.Status) {
		return domain.Task{}, domain.NewValidationError("status", "invalid status %q", *opts.Status)
	}
	if opts.Title != nil && strings.TrimSpace(*opts.Title) == "" {
		return domain.Task{}, domain.NewValidationError("title", "title must not be empty")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTask(ctx, tx, opts.ID)
	if err != nil {
		return domain.Task{}, fmt.Errorf("task %s: %w", opts.ID, err)
	}
	var changes []string
	if opts.Title != nil && strings.TrimSpace(*opts.Title) != t.Title {
		t.Title = strings.TrimSpace(*opts.Title)
		changes = append(changes, "title")
	}
	if opts.Description != nil && *opts.Description != t.Description {
		t.Description = *opts.Description
		changes = append(changes, "description")
	}
	if opts.Status != nil && *opts.Status != t.Status {
		if err := ensureTaskTransition(t.Status, *opts.Status, true); err != nil {
			return domain.Task{}, err
		}
		changes = append(changes, fmt.Sprintf("status %s -> %s", t.Status, *opts.Status))
		t.Status = *opts.Status
	}
	if len(changes) == 0 {
		return e.withEvidence(ctx, t)
	}
	t.UpdatedAt = e.stamp()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	e.Audit.Record(ctx, opts.ActorID, domain.ActionUpdatedTask,
		fmt.Sprintf("Task '%s' updated: %s", t.Title, strings.Join(changes, ", ")))
	return e.withEvidence(ctx, t)
}

// ResetTask clears a task's evidence and returns it to pending, then tells
// the worker why. The reason may be empty. Evidence removal failures are
// audited and skipped.
func (e Engine) ResetTask(ctx context.Context, taskID, actorID, reason string) (domain.Task, error) {
	reason = strings.TrimSpace(reason)
	t, err := e.Repo.GetTask(ctx, nil, taskID)
	if err != nil {
		return domain.Task{}, fmt.Errorf("task %s: %w", taskID, err)
	}
	worker, err := e.Repo.GetUser(ctx, nil, t.AssignedTo)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Task{}, fmt.Errorf("assigned worker %s: %w", t.AssignedTo, domain.ErrNotFound)
		}
		return domain.Task{}, err
	}
	// refuse before touching evidence if pending would give the worker two active tasks
	if active, err := e.Repo.ActiveTaskFor(ctx, nil, worker.Username); err == nil && active.ID != t.ID {
		return domain.Task{}, fmt.Errorf("worker %s already has an active task %s: %w", worker.Username, active.ID, domain.ErrConflict)
	} else if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return domain.Task{}, err
	}

	e.purgeEvidence(ctx, actorID, t)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	t, err = e.Repo.GetTask(ctx, tx, taskID)
	if err != nil {
		return domain.Task{}, fmt.Errorf("task %s: %w", taskID, err)
	}
	if err := ensureTaskTransition(t.Status, domain.TaskPending, true); err != nil {
		return domain.Task{}, err
	}
	t.Status = domain.TaskPending
	t.UpdatedAt = e.stamp()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}

	e.notifyWorker(ctx, actorID, worker, fmt.Sprintf(
		"Your task '%s' has been reset by admin. Reason: %s. Please work on it again.", t.Title, reason))
	e.Audit.Record(ctx, actorID, domain.ActionTaskReset, fmt.Sprintf("Task '%s' reset by %s. Reason: %s", t.Title, actorID, reason))
	return t, nil
}

// DeleteTask removes the task and, like ResetTask, all of its evidence.
func (e Engine) DeleteTask(ctx context.Context, taskID, actorID string) error {
	t, err := e.Repo.GetTask(ctx, nil, taskID)
	if err != nil {
		return fmt.Errorf("task %s: %w", taskID, err)
	}
	e.purgeEvidence(ctx, actorID, t)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteTask(ctx, tx, taskID); err != nil {
		return fmt.Errorf("task %s: %w", taskID, err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.Audit.Record(ctx, actorID, domain.ActionDeletedTask, fmt.Sprintf("Task '%s' deleted by %s", t.Title, actorID))
	return nil
}

// GetTask returns a task with its evidence.
func (e Engine) GetTask(ctx context.Context, taskID string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, nil, taskID)
	if err != nil {
		return domain.Task{}, fmt.Errorf("task %s: %w", taskID, err)
	}
	return e.withEvidence(ctx, t)
}

// ListTasks returns tasks matching f, each with its evidence.
func (e Engine) ListTasks(ctx context.Context, f repo.TaskFilters) ([]domain.Task, error) {
	tasks, err := e.Repo.ListTasks(ctx, f)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	byTask, err := e.Repo.EvidenceByTask(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range tasks {
		tasks[i].Evidence = byTask[tasks[i].ID]
	}
	return tasks, nil
}

// ownTask loads a task and checks that workerID is its assignee.
func (e Engine) ownTask(ctx context.Context, tx *sql.Tx, taskID, workerID string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, tx, taskID)
	if err != nil {
		return domain.Task{}, fmt.Errorf("task %s: %w", taskID, err)
	}
	if t.AssignedTo != workerID {
		return domain.Task{}, fmt.Errorf("not your task: %w", domain.ErrForbidden)
	}
	return t, nil
}

func (e Engine) withEvidence(ctx context.Context, t domain.Task) (domain.Task, error) {
	items, err := e.Evidence.List(ctx, t.ID)
	if err != nil {
		return domain.Task{}, err
	}
	t.Evidence = items
	return t, nil
}

// purgeEvidence deletes every evidence record of t. Each outcome is audited;
// no single failure stops the rest.
func (e Engine) purgeEvidence(ctx context.Context, actorID string, t domain.Task) {
	items, err := e.Evidence.List(ctx, t.ID)
	if err != nil {
		e.Logger.Error("engine: list evidence failed", "task_id", t.ID, "error", err)
		e.Audit.Record(ctx, actorID, domain.ActionEvidenceDeletionFailed,
			fmt.Sprintf("Could not list evidence for task '%s': %v", t.Title, err))
		return
	}
	for _, ev := range items {
		out, err := e.Evidence.Delete(ctx, ev)
		switch {
		case err != nil:
			e.Audit.Record(ctx, actorID, domain.ActionEvidenceDeletionFailed,
				fmt.Sprintf("Failed to delete evidence %s for task '%s': %v", ev.ID, t.Title, err))
		case out.ContentErr != nil:
			e.Audit.Record(ctx, actorID, domain.ActionEvidenceDeletionFailed,
				fmt.Sprintf("Evidence record %s removed but file %s could not be deleted: %v", ev.ID, ev.FileURL, out.ContentErr))
		default:
			e.Audit.Record(ctx, actorID, domain.ActionEvidenceDeleted,
				fmt.Sprintf("Deleted evidence %s for task '%s'", ev.FileURL, t.Title))
		}
	}
}

// ensureTaskTransition gates the worker path. Forced transitions only need a
// known target status.
func ensureTaskTransition(oldStatus, newStatus string, force bool) error {
	if !domain.IsTaskStatus(newStatus) {
		return domain.NewValidationError("status", "invalid status %q", newStatus)
	}
	if force {
		return nil
	}
	switch oldStatus {
	case domain.TaskPending:
		if newStatus == domain.TaskInProgress {
			return nil
		}
	case domain.TaskInProgress:
		if newStatus == domain.TaskCompleted {
			return nil
		}
	}
	return fmt.Errorf("invalid task status transition %s -> %s: %w", oldStatus, newStatus, domain.ErrInvalidTransition)
}
