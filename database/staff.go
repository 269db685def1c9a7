package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"backoffice/model"
)

const staffColumns = `id, name, email, phone, position, department, hire_date, salary, status, user_id, created_at, updated_at`

func ListStaff(ctx context.Context, q sqlx.ExtContext, status string) ([]model.Staff, error) {
	query := `SELECT ` + staffColumns + ` FROM staff`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY name`

	staff := []model.Staff{}
	if err := sqlx.SelectContext(ctx, q, &staff, q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list staff: %w", err)
	}
	return staff, nil
}

func GetStaff(ctx context.Context, q sqlx.ExtContext, id int64) (*model.Staff, error) {
	var s model.Staff
	err := sqlx.GetContext(ctx, q, &s, q.Rebind(`SELECT `+staffColumns+` FROM staff WHERE id = ?`), id)
	if err != nil {
		return nil, fmt.Errorf("GetStaff (ID: %d) failed: %w", id, notFound(err))
	}
	return &s, nil
}

// StaffEmailExists reports whether a staff member other than excludeID uses email.
func StaffEmailExists(ctx context.Context, q sqlx.ExtContext, email string, excludeID int64) (bool, error) {
	var exists int
	err := sqlx.GetContext(ctx, q, &exists, q.Rebind(
		`SELECT 1 FROM staff WHERE LOWER(email) = LOWER(?) AND id <> ? LIMIT 1`), strings.TrimSpace(email), excludeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("StaffEmailExists failed: %w", err)
	}
	return true, nil
}

func CreateStaff(ctx context.Context, q sqlx.ExtContext, s *model.Staff) error {
	s.CreatedAt = now()
	s.UpdatedAt = s.CreatedAt
	err := sqlx.GetContext(ctx, q, &s.ID, q.Rebind(`
		INSERT INTO staff (name, email, phone, position, department, hire_date, salary, status, user_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		s.Name, s.Email, s.Phone, s.Position, s.Department, s.HireDate, s.Salary, s.Status, s.UserID, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("CreateStaff (Name: %s) failed: %w", s.Name, err)
	}
	return nil
}

func UpdateStaff(ctx context.Context, q sqlx.ExtContext, s *model.Staff) error {
	s.UpdatedAt = now()
	res, err := q.ExecContext(ctx, q.Rebind(`
		UPDATE staff SET name = ?, email = ?, phone = ?, position = ?, department = ?, hire_date = ?,
			salary = ?, status = ?, user_id = ?, updated_at = ?
		WHERE id = ?`),
		s.Name, s.Email, s.Phone, s.Position, s.Department, s.HireDate, s.Salary, s.Status, s.UserID, s.UpdatedAt, s.ID)
	if err != nil {
		return fmt.Errorf("UpdateStaff (ID: %d) failed: %w", s.ID, err)
	}
	return requireAffected(res, s.ID)
}

func CountWorksForStaff(ctx context.Context, q sqlx.ExtContext, id int64) (int, error) {
	var n int
	if err := sqlx.GetContext(ctx, q, &n, q.Rebind(`SELECT COUNT(*) FROM works WHERE staff_id = ?`), id); err != nil {
		return 0, fmt.Errorf("failed to count works for staff %d: %w", id, err)
	}
	return n, nil
}

func DeleteStaff(ctx context.Context, q sqlx.ExtContext, id int64) error {
	res, err := q.ExecContext(ctx, q.Rebind(`DELETE FROM staff WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete staff with id %d: %w", id, err)
	}
	return requireAffected(res, id)
}
