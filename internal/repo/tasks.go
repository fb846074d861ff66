package repo

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"

	"fieldline/internal/domain"
)

const taskColumns = "id,title,description,status,assigned_to,assigned_by,created_at,updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (domain.Task, error) {
	var t domain.Task
	var description sql.NullString
	err := row.Scan(&t.ID, &t.Title, &description, &t.Status, &t.AssignedTo, &t.AssignedBy, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return t, notFound(err)
	}
	t.Description = description.String
	return t, nil
}

// InsertTask stores a new task. A second active task for the same worker
// fails with domain.ErrConflict.
func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		t.ID, t.Title, nullable(t.Description), t.Status, t.AssignedTo, t.AssignedBy, t.CreatedAt, t.UpdatedAt)
	return mapConstraint(err, "worker already has an active task")
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	b := sq.Update("tasks").SetMap(sq.Eq{
		"title":       t.Title,
		"description": nullable(t.Description),
		"status":      t.Status,
		"updated_at":  t.UpdatedAt,
	}).Where(sq.Eq{"id": t.ID})
	err := mustAffect(execBuilder(ctx, r.q(tx), b))
	return mapConstraint(err, "worker already has an active task")
}

func (r Repo) GetTask(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	return scanTask(r.q(tx).QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
}

// ActiveTaskFor returns the pending or in-progress task assigned to username.
func (r Repo) ActiveTaskFor(ctx context.Context, tx *sql.Tx, username string) (domain.Task, error) {
	return scanTask(r.q(tx).QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks
WHERE assigned_to=? AND status IN ('pending','in_progress') ORDER BY created_at DESC LIMIT 1`, username))
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id string) error {
	return mustAffect(r.q(tx).ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id))
}

type TaskFilters struct {
	Status          string
	AssignedTo      string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	b := sq.Select(taskColumns).From("tasks").OrderBy("created_at DESC", "id DESC")
	if f.Status != "" {
		b = b.Where(sq.Eq{"status": f.Status})
	}
	if f.AssignedTo != "" {
		b = b.Where(sq.Eq{"assigned_to": f.AssignedTo})
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		b = b.Where(sq.Or{
			sq.Lt{"created_at": f.CursorCreatedAt},
			sq.And{sq.Eq{"created_at": f.CursorCreatedAt}, sq.Lt{"id": f.CursorID}},
		})
	}
	if f.Limit > 0 {
		b = b.Limit(uint64(f.Limit))
	}
	rows, err := queryBuilder(ctx, r.DB, b)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}
