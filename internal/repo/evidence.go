package repo

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"

	"fieldline/internal/domain"
)

func (r Repo) InsertEvidence(ctx context.Context, tx *sql.Tx, ev domain.Evidence) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO task_evidence(id,task_id,file_url,uploaded_at) VALUES (?,?,?,?)`,
		ev.ID, ev.TaskID, ev.FileURL, ev.UploadedAt)
	return err
}

func (r Repo) ListEvidence(ctx context.Context, tx *sql.Tx, taskID string) ([]domain.Evidence, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT id,task_id,file_url,uploaded_at FROM task_evidence WHERE task_id=? ORDER BY uploaded_at, id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvidenceRows(rows)
}

// EvidenceByTask loads evidence for several tasks in one query.
func (r Repo) EvidenceByTask(ctx context.Context, taskIDs []string) (map[string][]domain.Evidence, error) {
	res := map[string][]domain.Evidence{}
	if len(taskIDs) == 0 {
		return res, nil
	}
	b := sq.Select("id", "task_id", "file_url", "uploaded_at").From("task_evidence").
		Where(sq.Eq{"task_id": taskIDs}).OrderBy("uploaded_at", "id")
	rows, err := queryBuilder(ctx, r.DB, b)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items, err := scanEvidenceRows(rows)
	if err != nil {
		return nil, err
	}
	for _, ev := range items {
		res[ev.TaskID] = append(res[ev.TaskID], ev)
	}
	return res, nil
}

func (r Repo) DeleteEvidence(ctx context.Context, tx *sql.Tx, id string) error {
	return mustAffect(r.q(tx).ExecContext(ctx, `DELETE FROM task_evidence WHERE id=?`, id))
}

func scanEvidenceRows(rows *sql.Rows) ([]domain.Evidence, error) {
	var res []domain.Evidence
	for rows.Next() {
		var ev domain.Evidence
		if err := rows.Scan(&ev.ID, &ev.TaskID, &ev.FileURL, &ev.UploadedAt); err != nil {
			return nil, err
		}
		res = append(res, ev)
	}
	return res, rows.Err()
}
