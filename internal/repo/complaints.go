package repo

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"

	"fieldline/internal/domain"
)

const (
	complaintColumns         = "id,description,category,evidence,location,status,submitted_at"
	employeeComplaintColumns = "id,worker_id,description,status,submitted_at"
)

func scanComplaint(row rowScanner) (domain.GeneralComplaint, error) {
	var c domain.GeneralComplaint
	var evidence, location sql.NullString
	if err := row.Scan(&c.ID, &c.Description, &c.Category, &evidence, &location, &c.Status, &c.SubmittedAt); err != nil {
		return c, notFound(err)
	}
	c.Evidence = stringPtr(evidence)
	c.Location = stringPtr(location)
	return c, nil
}

func scanEmployeeComplaint(row rowScanner) (domain.EmployeeComplaint, error) {
	var c domain.EmployeeComplaint
	if err := row.Scan(&c.ID, &c.WorkerID, &c.Description, &c.Status, &c.SubmittedAt); err != nil {
		return c, notFound(err)
	}
	return c, nil
}

func (r Repo) InsertComplaint(ctx context.Context, tx *sql.Tx, c domain.GeneralComplaint) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO complaints(`+complaintColumns+`) VALUES (?,?,?,?,?,?,?)`,
		c.ID, c.Description, c.Category, nullableStringPtr(c.Evidence), nullableStringPtr(c.Location), c.Status, c.SubmittedAt)
	return err
}

func (r Repo) GetComplaint(ctx context.Context, tx *sql.Tx, id string) (domain.GeneralComplaint, error) {
	return scanComplaint(r.q(tx).QueryRowContext(ctx, `SELECT `+complaintColumns+` FROM complaints WHERE id=?`, id))
}

func (r Repo) ListComplaints(ctx context.Context) ([]domain.GeneralComplaint, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+complaintColumns+` FROM complaints ORDER BY submitted_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.GeneralComplaint
	for rows.Next() {
		c, err := scanComplaint(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) UpdateComplaintStatus(ctx context.Context, tx *sql.Tx, id, status string) error {
	return mustAffect(r.q(tx).ExecContext(ctx, `UPDATE complaints SET status=? WHERE id=?`, status, id))
}

func (r Repo) InsertEmployeeComplaint(ctx context.Context, tx *sql.Tx, c domain.EmployeeComplaint) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO employee_complaints(`+employeeComplaintColumns+`) VALUES (?,?,?,?,?)`,
		c.ID, c.WorkerID, c.Description, c.Status, c.SubmittedAt)
	return err
}

func (r Repo) GetEmployeeComplaint(ctx context.Context, tx *sql.Tx, id string) (domain.EmployeeComplaint, error) {
	return scanEmployeeComplaint(r.q(tx).QueryRowContext(ctx, `SELECT `+employeeComplaintColumns+` FROM employee_complaints WHERE id=?`, id))
}

// ListEmployeeComplaints returns employee complaints, optionally for one worker.
func (r Repo) ListEmployeeComplaints(ctx context.Context, workerID string) ([]domain.EmployeeComplaint, error) {
	b := sq.Select(employeeComplaintColumns).From("employee_complaints").OrderBy("submitted_at DESC", "id DESC")
	if workerID != "" {
		b = b.Where(sq.Eq{"worker_id": workerID})
	}
	rows, err := queryBuilder(ctx, r.DB, b)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.EmployeeComplaint
	for rows.Next() {
		c, err := scanEmployeeComplaint(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) UpdateEmployeeComplaintStatus(ctx context.Context, tx *sql.Tx, id, status string) error {
	return mustAffect(r.q(tx).ExecContext(ctx, `UPDATE employee_complaints SET status=? WHERE id=?`, status, id))
}
