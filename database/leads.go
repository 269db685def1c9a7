package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"backoffice/model"
)

const leadColumns = `id, name, company, email, phone, source, status, estimated_value, notes, customer_id, owner_id, created_at, updated_at`

func ListLeads(ctx context.Context, q sqlx.ExtContext, f model.LeadFilters) ([]model.Lead, error) {
	var conds []string
	var args []any
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, f.Status)
	}
	if f.Source != "" {
		conds = append(conds, "LOWER(source) = LOWER(?)")
		args = append(args, f.Source)
	}
	if strings.TrimSpace(f.Query) != "" {
		conds = append(conds, `(LOWER(name) LIKE ? ESCAPE '\' OR LOWER(company) LIKE ? ESCAPE '\' OR LOWER(email) LIKE ? ESCAPE '\')`)
		p := likePattern(f.Query)
		args = append(args, p, p, p)
	}

	query := `SELECT ` + leadColumns + ` FROM leads`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	leads := []model.Lead{}
	if err := sqlx.SelectContext(ctx, q, &leads, q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list leads: %w", err)
	}
	return leads, nil
}

func GetLead(ctx context.Context, q sqlx.ExtContext, id int64) (*model.Lead, error) {
	var l model.Lead
	err := sqlx.GetContext(ctx, q, &l, q.Rebind(`SELECT `+leadColumns+` FROM leads WHERE id = ?`), id)
	if err != nil {
		return nil, fmt.Errorf("GetLead (ID: %d) failed: %w", id, notFound(err))
	}
	return &l, nil
}

func CreateLead(ctx context.Context, q sqlx.ExtContext, l *model.Lead) error {
	l.CreatedAt = now()
	l.UpdatedAt = l.CreatedAt
	err := sqlx.GetContext(ctx, q, &l.ID, q.Rebind(`
		INSERT INTO leads (name, company, email, phone, source, status, estimated_value, notes, customer_id, owner_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		l.Name, l.Company, l.Email, l.Phone, l.Source, l.Status, l.EstimatedValue, l.Notes, l.CustomerID, l.OwnerID, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("CreateLead (Name: %s) failed: %w", l.Name, err)
	}
	return nil
}

// UpdateLead writes the editable fields. customer_id is only set by MarkLeadConverted.
func UpdateLead(ctx context.Context, q sqlx.ExtContext, l *model.Lead) error {
	l.UpdatedAt = now()
	res, err := q.ExecContext(ctx, q.Rebind(`
		UPDATE leads SET name = ?, company = ?, email = ?, phone = ?, source = ?, status = ?,
			estimated_value = ?, notes = ?, owner_id = ?, updated_at = ?
		WHERE id = ?`),
		l.Name, l.Company, l.Email, l.Phone, l.Source, l.Status, l.EstimatedValue, l.Notes, l.OwnerID, l.UpdatedAt, l.ID)
	if err != nil {
		return fmt.Errorf("UpdateLead (ID: %d) failed: %w", l.ID, err)
	}
	return requireAffected(res, l.ID)
}

// MarkLeadConverted links the lead to customerID and marks it won. It only
// touches leads that have no customer yet and reports whether one was updated.
func MarkLeadConverted(ctx context.Context, q sqlx.ExtContext, id, customerID int64) (bool, error) {
	res, err := q.ExecContext(ctx, q.Rebind(`
		UPDATE leads SET status = ?, customer_id = ?, updated_at = ?
		WHERE id = ? AND customer_id IS NULL`),
		model.LeadWon, customerID, now(), id)
	if err != nil {
		return false, fmt.Errorf("MarkLeadConverted (ID: %d) failed: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func DeleteLead(ctx context.Context, q sqlx.ExtContext, id int64) error {
	res, err := q.ExecContext(ctx, q.Rebind(`DELETE FROM leads WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete lead with id %d: %w", id, err)
	}
	return requireAffected(res, id)
}
