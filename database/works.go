package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"backoffice/model"
)

const workSelect = `
	SELECT w.id, w.title, w.description, w.customer_id, COALESCE(c.name, '') AS customer_name,
		w.staff_id, w.status, w.start_date, w.due_date, w.amount, w.completed_at, w.created_at, w.updated_at
	FROM works w
	LEFT JOIN customers c ON c.id = w.customer_id`

func ListWorks(ctx context.Context, q sqlx.ExtContext, f model.WorkFilters) ([]model.Work, error) {
	var conds []string
	var args []any
	if f.Status != "" {
		conds = append(conds, "w.status = ?")
		args = append(args, f.Status)
	}
	if f.CustomerID > 0 {
		conds = append(conds, "w.customer_id = ?")
		args = append(args, f.CustomerID)
	}
	if f.StaffID > 0 {
		conds = append(conds, "w.staff_id = ?")
		args = append(args, f.StaffID)
	}

	query := workSelect
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY w.created_at DESC, w.id DESC"

	works := []model.Work{}
	if err := sqlx.SelectContext(ctx, q, &works, q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list works: %w", err)
	}
	return works, nil
}

func GetWork(ctx context.Context, q sqlx.ExtContext, id int64) (*model.Work, error) {
	var w model.Work
	err := sqlx.GetContext(ctx, q, &w, q.Rebind(workSelect+` WHERE w.id = ?`), id)
	if err != nil {
		return nil, fmt.Errorf("GetWork (ID: %d) failed: %w", id, notFound(err))
	}
	return &w, nil
}

func CreateWork(ctx context.Context, q sqlx.ExtContext, w *model.Work) error {
	w.CreatedAt = now()
	w.UpdatedAt = w.CreatedAt
	err := sqlx.GetContext(ctx, q, &w.ID, q.Rebind(`
		INSERT INTO works (title, description, customer_id, staff_id, status, start_date, due_date, amount, completed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		w.Title, w.Description, w.CustomerID, w.StaffID, w.Status, w.StartDate, w.DueDate, w.Amount, w.CompletedAt, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("CreateWork (Title: %s) failed: %w", w.Title, err)
	}
	return nil
}

func UpdateWork(ctx context.Context, q sqlx.ExtContext, w *model.Work) error {
	w.UpdatedAt = now()
	res, err := q.ExecContext(ctx, q.Rebind(`
		UPDATE works SET title = ?, description = ?, customer_id = ?, staff_id = ?, status = ?,
			start_date = ?, due_date = ?, amount = ?, completed_at = ?, updated_at = ?
		WHERE id = ?`),
		w.Title, w.Description, w.CustomerID, w.StaffID, w.Status, w.StartDate, w.DueDate, w.Amount, w.CompletedAt, w.UpdatedAt, w.ID)
	if err != nil {
		return fmt.Errorf("UpdateWork (ID: %d) failed: %w", w.ID, err)
	}
	return requireAffected(res, w.ID)
}

func CountInvoicesForWork(ctx context.Context, q sqlx.ExtContext, id int64) (int, error) {
	var n int
	if err := sqlx.GetContext(ctx, q, &n, q.Rebind(`SELECT COUNT(*) FROM invoices WHERE work_id = ?`), id); err != nil {
		return 0, fmt.Errorf("failed to count invoices for work %d: %w", id, err)
	}
	return n, nil
}

func DeleteWork(ctx context.Context, q sqlx.ExtContext, id int64) error {
	res, err := q.ExecContext(ctx, q.Rebind(`DELETE FROM works WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete work with id %d: %w", id, err)
	}
	return requireAffected(res, id)
}
