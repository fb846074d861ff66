package audit

import (
	"context"
	"log/slog"
	"time"

	"fieldline/internal/domain"
	"fieldline/internal/repo"
)

// Publisher receives every entry after it is stored.
type Publisher interface {
	Publish(ctx context.Context, entry domain.AuditEntry) error
	Close() error
}

// Recorder appends audit entries. Recording is best-effort: a failed insert
// or publish is logged and never returned to the caller, so it is invoked
// only after the primary transaction has committed.
type Recorder struct {
	Repo      repo.Repo
	Publisher Publisher
	Logger    *slog.Logger
	Now       func() time.Time
}

func (r Recorder) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// Record stores one entry and reports whether it was persisted.
func (r Recorder) Record(ctx context.Context, actorID string, action domain.AuditAction, detail string) bool {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	// the request may already be cancelled once the transition committed
	ctx = context.WithoutCancel(ctx)
	entry := domain.AuditEntry{
		Action:    action,
		Details:   detail,
		UserID:    actorID,
		CreatedAt: now().UTC().Format(time.RFC3339),
	}
	log := r.logger().With("action", string(action), "user_id", actorID)
	if !action.Valid() {
		log.Error("audit: unknown action")
		return false
	}
	id, err := r.Repo.InsertAudit(ctx, nil, entry)
	if err != nil {
		log.Error("audit: insert failed", "error", err, "details", detail)
		return false
	}
	entry.ID = id
	if r.Publisher != nil {
		if err := r.Publisher.Publish(ctx, entry); err != nil {
			log.Warn("audit: publish failed", "error", err, "audit_id", id)
		}
	}
	return true
}
