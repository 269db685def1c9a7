package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"backoffice/model"
)

const invoiceSelect = `
	SELECT i.id, i.number, i.customer_id, COALESCE(c.name, '') AS customer_name, i.work_id,
		i.issue_date, i.due_date, i.status, i.currency, i.notes, i.subtotal, i.tax_total, i.total,
		i.amount_paid, i.paid_date, i.created_at, i.updated_at
	FROM invoices i
	LEFT JOIN customers c ON c.id = i.customer_id`

// InvoiceSequence is the code_sequences row used for invoices issued in year.
func InvoiceSequence(year int) string {
	return fmt.Sprintf("INV-%d", year)
}

func ListInvoices(ctx context.Context, q sqlx.ExtContext, f model.InvoiceFilters) ([]model.Invoice, error) {
	var conds []string
	var args []any
	if f.Status != "" {
		conds = append(conds, "i.status = ?")
		args = append(args, f.Status)
	}
	if f.CustomerID > 0 {
		conds = append(conds, "i.customer_id = ?")
		args = append(args, f.CustomerID)
	}
	if f.From != "" {
		conds = append(conds, "i.issue_date >= ?")
		args = append(args, f.From)
	}
	if f.To != "" {
		conds = append(conds, "i.issue_date <= ?")
		args = append(args, f.To)
	}

	query := invoiceSelect
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY i.issue_date DESC, i.id DESC"

	invoices := []model.Invoice{}
	if err := sqlx.SelectContext(ctx, q, &invoices, q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	return invoices, nil
}

// GetInvoice loads the invoice header with its items and payments.
func GetInvoice(ctx context.Context, q sqlx.ExtContext, id int64) (*model.Invoice, error) {
	var inv model.Invoice
	err := sqlx.GetContext(ctx, q, &inv, q.Rebind(invoiceSelect+` WHERE i.id = ?`), id)
	if err != nil {
		return nil, fmt.Errorf("GetInvoice (ID: %d) failed: %w", id, notFound(err))
	}

	inv.Items = []model.InvoiceItem{}
	err = sqlx.SelectContext(ctx, q, &inv.Items, q.Rebind(`
		SELECT id, invoice_id, position, description, quantity, unit_price, tax_rate, line_total
		FROM invoice_items WHERE invoice_id = ? ORDER BY position, id`), id)
	if err != nil {
		return nil, fmt.Errorf("failed to load items for invoice %d: %w", id, err)
	}

	inv.Payments = []model.InvoicePayment{}
	err = sqlx.SelectContext(ctx, q, &inv.Payments, q.Rebind(`
		SELECT id, invoice_id, amount, payment_date, method, note, created_at
		FROM invoice_payments WHERE invoice_id = ? ORDER BY payment_date, id`), id)
	if err != nil {
		return nil, fmt.Errorf("failed to load payments for invoice %d: %w", id, err)
	}
	return &inv, nil
}

// CreateInvoiceInTx numbers the invoice from its issue year, inserts the
// header and then its items.
func CreateInvoiceInTx(ctx context.Context, tx sqlx.ExtContext, inv *model.Invoice) error {
	if inv.Number == "" {
		year := 0
		fmt.Sscanf(inv.IssueDate, "%4d", &year)
		seq := InvoiceSequence(year)
		number, err := NextSequenceInTx(ctx, tx, seq, seq+"-", 5)
		if err != nil {
			return err
		}
		inv.Number = number
	}
	inv.CreatedAt = now()
	inv.UpdatedAt = inv.CreatedAt
	err := sqlx.GetContext(ctx, tx, &inv.ID, tx.Rebind(`
		INSERT INTO invoices (number, customer_id, work_id, issue_date, due_date, status, currency, notes,
			subtotal, tax_total, total, amount_paid, paid_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		inv.Number, inv.CustomerID, inv.WorkID, inv.IssueDate, inv.DueDate, inv.Status, inv.Currency, inv.Notes,
		inv.Subtotal, inv.TaxTotal, inv.Total, inv.AmountPaid, inv.PaidDate, inv.CreatedAt, inv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("CreateInvoiceInTx (Number: %s) failed: %w", inv.Number, err)
	}
	return insertInvoiceItems(ctx, tx, inv)
}

// UpdateInvoiceInTx rewrites the header and replaces all items.
func UpdateInvoiceInTx(ctx context.Context, tx sqlx.ExtContext, inv *model.Invoice) error {
	inv.UpdatedAt = now()
	res, err := tx.ExecContext(ctx, tx.Rebind(`
		UPDATE invoices SET customer_id = ?, work_id = ?, issue_date = ?, due_date = ?, currency = ?, notes = ?,
			subtotal = ?, tax_total = ?, total = ?, updated_at = ?
		WHERE id = ?`),
		inv.CustomerID, inv.WorkID, inv.IssueDate, inv.DueDate, inv.Currency, inv.Notes,
		inv.Subtotal, inv.TaxTotal, inv.Total, inv.UpdatedAt, inv.ID)
	if err != nil {
		return fmt.Errorf("UpdateInvoiceInTx (ID: %d) failed: %w", inv.ID, err)
	}
	if err := requireAffected(res, inv.ID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM invoice_items WHERE invoice_id = ?`), inv.ID); err != nil {
		return fmt.Errorf("failed to clear items for invoice %d: %w", inv.ID, err)
	}
	return insertInvoiceItems(ctx, tx, inv)
}

func insertInvoiceItems(ctx context.Context, tx sqlx.ExtContext, inv *model.Invoice) error {
	query := tx.Rebind(`
		INSERT INTO invoice_items (invoice_id, position, description, quantity, unit_price, tax_rate, line_total)
		VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`)
	for i := range inv.Items {
		it := &inv.Items[i]
		it.InvoiceID = inv.ID
		it.Position = i + 1
		err := sqlx.GetContext(ctx, tx, &it.ID, query,
			it.InvoiceID, it.Position, it.Description, it.Quantity, it.UnitPrice, it.TaxRate, it.LineTotal)
		if err != nil {
			return fmt.Errorf("failed to insert item %d for invoice %d: %w", it.Position, inv.ID, err)
		}
	}
	return nil
}

// UpdateInvoiceStatus sets status and paid_date together.
func UpdateInvoiceStatus(ctx context.Context, q sqlx.ExtContext, id int64, status model.InvoiceStatus, paidDate *string) error {
	res, err := q.ExecContext(ctx, q.Rebind(`UPDATE invoices SET status = ?, paid_date = ?, updated_at = ? WHERE id = ?`),
		status, paidDate, now(), id)
	if err != nil {
		return fmt.Errorf("UpdateInvoiceStatus (ID: %d) failed: %w", id, err)
	}
	return requireAffected(res, id)
}

// AddPaymentInTx records p and stores the new paid amount on the invoice.
func AddPaymentInTx(ctx context.Context, tx sqlx.ExtContext, p *model.InvoicePayment, amountPaid decimal.Decimal) error {
	p.CreatedAt = now()
	err := sqlx.GetContext(ctx, tx, &p.ID, tx.Rebind(`
		INSERT INTO invoice_payments (invoice_id, amount, payment_date, method, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?) RETURNING id`),
		p.InvoiceID, p.Amount, p.PaymentDate, p.Method, p.Note, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert payment for invoice %d: %w", p.InvoiceID, err)
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE invoices SET amount_paid = ?, updated_at = ? WHERE id = ?`),
		amountPaid, p.CreatedAt, p.InvoiceID)
	if err != nil {
		return fmt.Errorf("failed to update amount paid for invoice %d: %w", p.InvoiceID, err)
	}
	return requireAffected(res, p.InvoiceID)
}

// MarkOverdueInTx flips sent invoices due before asOf to overdue and returns their IDs.
func MarkOverdueInTx(ctx context.Context, tx sqlx.ExtContext, asOf string) ([]int64, error) {
	ids := []int64{}
	err := sqlx.SelectContext(ctx, tx, &ids, tx.Rebind(
		`SELECT id FROM invoices WHERE status = ? AND due_date < ? ORDER BY id`), model.InvoiceSent, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to find overdue invoices: %w", err)
	}
	if len(ids) == 0 {
		return ids, nil
	}
	query, args, err := sqlx.In(`UPDATE invoices SET status = ?, updated_at = ? WHERE id IN (?)`, model.InvoiceOverdue, now(), ids)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to mark invoices overdue: %w", err)
	}
	return ids, nil
}

func DeleteInvoiceInTx(ctx context.Context, tx sqlx.ExtContext, id int64) error {
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM invoice_payments WHERE invoice_id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete payments for invoice %d: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM invoice_items WHERE invoice_id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete items for invoice %d: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM invoices WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete invoice with id %d: %w", id, err)
	}
	return requireAffected(res, id)
}
