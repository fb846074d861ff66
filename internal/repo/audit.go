package repo

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"

	"fieldline/internal/domain"
)

const auditColumns = "id,action,details,user_id,created_at"

func (r Repo) InsertAudit(ctx context.Context, tx *sql.Tx, e domain.AuditEntry) (int64, error) {
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO audit_logs(action,details,user_id,created_at) VALUES (?,?,?,?)`,
		string(e.Action), e.Details, e.UserID, e.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

type AuditFilters struct {
	Action   string
	UserID   string
	Limit    int
	CursorID int64
}

// ListAudit returns entries newest first; CursorID pages below a previous id.
func (r Repo) ListAudit(ctx context.Context, f AuditFilters) ([]domain.AuditEntry, error) {
	b := sq.Select(auditColumns).From("audit_logs").OrderBy("id DESC")
	if f.Action != "" {
		b = b.Where(sq.Eq{"action": f.Action})
	}
	if f.UserID != "" {
		b = b.Where(sq.Eq{"user_id": f.UserID})
	}
	if f.CursorID > 0 {
		b = b.Where(sq.Lt{"id": f.CursorID})
	}
	if f.Limit > 0 {
		b = b.Limit(uint64(f.Limit))
	}
	return r.queryAudit(ctx, b)
}

// AuditAfter returns up to limit entries with id greater than afterID, oldest first.
func (r Repo) AuditAfter(ctx context.Context, limit int, afterID int64) ([]domain.AuditEntry, error) {
	b := sq.Select(auditColumns).From("audit_logs").Where(sq.Gt{"id": afterID}).OrderBy("id ASC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	return r.queryAudit(ctx, b)
}

func (r Repo) LatestAuditID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := r.DB.QueryRowContext(ctx, `SELECT MAX(id) FROM audit_logs`).Scan(&id); err != nil {
		return 0, err
	}
	return id.Int64, nil
}

func (r Repo) queryAudit(ctx context.Context, b sq.SelectBuilder) ([]domain.AuditEntry, error) {
	rows, err := queryBuilder(ctx, r.DB, b)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var action string
		if err := rows.Scan(&e.ID, &action, &e.Details, &e.UserID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Action = domain.AuditAction(action)
		res = append(res, e)
	}
	return res, rows.Err()
}
