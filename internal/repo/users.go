package repo

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"

	"fieldline/internal/domain"
)

const userColumns = "id,username,phone_number,role,status,created_at,updated_at"

func scanUser(row rowScanner) (domain.User, error) {
	var u domain.User
	var phone sql.NullString
	if err := row.Scan(&u.ID, &u.Username, &phone, &u.Role, &u.Status, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return u, notFound(err)
	}
	u.PhoneNumber = phone.String
	return u, nil
}

// InsertUser stores a user; duplicate username or phone fails with domain.ErrConflict.
func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO users(`+userColumns+`) VALUES (?,?,?,?,?,?,?)`,
		u.ID, u.Username, nullable(u.PhoneNumber), u.Role, u.Status, u.CreatedAt, u.UpdatedAt)
	return mapConstraint(err, "username or phone number already registered")
}

func (r Repo) GetUser(ctx context.Context, tx *sql.Tx, username string) (domain.User, error) {
	return scanUser(r.q(tx).QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username=?`, username))
}

func (r Repo) ListUsers(ctx context.Context, role string) ([]domain.User, error) {
	b := sq.Select(userColumns).From("users").OrderBy("username")
	if role != "" {
		b = b.Where(sq.Eq{"role": role})
	}
	rows, err := queryBuilder(ctx, r.DB, b)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (r Repo) UpdateUserStatus(ctx context.Context, tx *sql.Tx, username, status, updatedAt string) error {
	return mustAffect(r.q(tx).ExecContext(ctx, `UPDATE users SET status=?, updated_at=? WHERE username=?`, status, updatedAt, username))
}

func (r Repo) DeleteUser(ctx context.Context, tx *sql.Tx, username string) error {
	return mustAffect(r.q(tx).ExecContext(ctx, `DELETE FROM users WHERE username=?`, username))
}
