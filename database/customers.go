package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"backoffice/model"
)

const (
	CustomerSequence = "CU"
	customerColumns  = `id, code, name, company, email, phone, address, city, country, currency, tax_id, notes, created_at, updated_at`
)

func ListCustomers(ctx context.Context, q sqlx.ExtContext, search string) ([]model.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers`
	var args []any
	if strings.TrimSpace(search) != "" {
		query += ` WHERE LOWER(name) LIKE ? ESCAPE '\' OR LOWER(company) LIKE ? ESCAPE '\' OR LOWER(email) LIKE ? ESCAPE '\' OR LOWER(code) LIKE ? ESCAPE '\'`
		p := likePattern(search)
		args = append(args, p, p, p, p)
	}
	query += ` ORDER BY name`

	customers := []model.Customer{}
	if err := sqlx.SelectContext(ctx, q, &customers, q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	return customers, nil
}

func GetCustomer(ctx context.Context, q sqlx.ExtContext, id int64) (*model.Customer, error) {
	var c model.Customer
	err := sqlx.GetContext(ctx, q, &c, q.Rebind(`SELECT `+customerColumns+` FROM customers WHERE id = ?`), id)
	if err != nil {
		return nil, fmt.Errorf("GetCustomer (ID: %d) failed: %w", id, notFound(err))
	}
	return &c, nil
}

// GetCustomerMap returns customer names keyed by ID.
func GetCustomerMap(ctx context.Context, q sqlx.ExtContext) (map[int64]string, error) {
	customers, err := ListCustomers(ctx, q, "")
	if err != nil {
		return nil, fmt.Errorf("failed to get customer list for map: %w", err)
	}
	m := make(map[int64]string, len(customers))
	for _, c := range customers {
		m[c.ID] = c.Name
	}
	return m, nil
}

// CustomerIDByCode returns the id of the customer with code, or 0 when none has it.
func CustomerIDByCode(ctx context.Context, q sqlx.ExtContext, code string) (int64, error) {
	var id int64
	err := sqlx.GetContext(ctx, q, &id, q.Rebind(`SELECT id FROM customers WHERE code = ?`), code)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("CustomerIDByCode (Code: %s) failed: %w", code, err)
	}
	return id, nil
}

// CustomerNameExists reports whether another customer (not excludeID) already uses name, ignoring case.
func CustomerNameExists(ctx context.Context, q sqlx.ExtContext, name string, excludeID int64) (bool, error) {
	var exists int
	err := sqlx.GetContext(ctx, q, &exists, q.Rebind(
		`SELECT 1 FROM customers WHERE LOWER(name) = LOWER(?) AND id <> ? LIMIT 1`), strings.TrimSpace(name), excludeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("CustomerNameExists failed: %w", err)
	}
	return true, nil
}

// CreateCustomerInTx assigns the next CU code when c.Code is empty and inserts c.
func CreateCustomerInTx(ctx context.Context, tx sqlx.ExtContext, c *model.Customer) error {
	if c.Code == "" {
		code, err := NextSequenceInTx(ctx, tx, CustomerSequence, CustomerSequence, 5)
		if err != nil {
			return err
		}
		c.Code = code
	}
	c.CreatedAt = now()
	c.UpdatedAt = c.CreatedAt
	err := sqlx.GetContext(ctx, tx, &c.ID, tx.Rebind(`
		INSERT INTO customers (code, name, company, email, phone, address, city, country, currency, tax_id, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		c.Code, c.Name, c.Company, c.Email, c.Phone, c.Address, c.City, c.Country, c.Currency, c.TaxID, c.Notes, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("CreateCustomerInTx (Code: %s, Name: %s) failed: %w", c.Code, c.Name, err)
	}
	return nil
}

func UpdateCustomer(ctx context.Context, q sqlx.ExtContext, c *model.Customer) error {
	c.UpdatedAt = now()
	res, err := q.ExecContext(ctx, q.Rebind(`
		UPDATE customers SET name = ?, company = ?, email = ?, phone = ?, address = ?, city = ?,
			country = ?, currency = ?, tax_id = ?, notes = ?, updated_at = ?
		WHERE id = ?`),
		c.Name, c.Company, c.Email, c.Phone, c.Address, c.City, c.Country, c.Currency, c.TaxID, c.Notes, c.UpdatedAt, c.ID)
	if err != nil {
		return fmt.Errorf("UpdateCustomer (ID: %d) failed: %w", c.ID, err)
	}
	return requireAffected(res, c.ID)
}

// UpsertCustomerByCodeInTx inserts c, or updates the customer that already has c.Code.
// It reports whether a new row was created.
func UpsertCustomerByCodeInTx(ctx context.Context, tx sqlx.ExtContext, c *model.Customer) (bool, error) {
	var existingID int64
	err := sqlx.GetContext(ctx, tx, &existingID, tx.Rebind(`SELECT id FROM customers WHERE code = ?`), c.Code)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return true, CreateCustomerInTx(ctx, tx, c)
	case err != nil:
		return false, fmt.Errorf("UpsertCustomerByCodeInTx (Code: %s) failed: %w", c.Code, err)
	}
	c.ID = existingID
	return false, UpdateCustomer(ctx, tx, c)
}

// DeleteCustomerInTx unlinks converted leads and deletes the customer.
func DeleteCustomerInTx(ctx context.Context, tx sqlx.ExtContext, id int64) error {
	if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE leads SET customer_id = NULL WHERE customer_id = ?`), id); err != nil {
		return fmt.Errorf("failed to unlink leads from customer %d: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM customers WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete customer with id %d: %w", id, err)
	}
	return requireAffected(res, id)
}

// CountCustomerReferences counts invoices and works that point at the customer.
func CountCustomerReferences(ctx context.Context, q sqlx.ExtContext, id int64) (invoices, works int, err error) {
	if err = sqlx.GetContext(ctx, q, &invoices, q.Rebind(`SELECT COUNT(*) FROM invoices WHERE customer_id = ?`), id); err != nil {
		return 0, 0, fmt.Errorf("failed to count invoices for customer %d: %w", id, err)
	}
	if err = sqlx.GetContext(ctx, q, &works, q.Rebind(`SELECT COUNT(*) FROM works WHERE customer_id = ?`), id); err != nil {
		return 0, 0, fmt.Errorf("failed to count works for customer %d: %w", id, err)
	}
	return invoices, works, nil
}

func GetCustomerSummary(ctx context.Context, q sqlx.ExtContext, id int64) (*model.CustomerSummary, error) {
	c, err := GetCustomer(ctx, q, id)
	if err != nil {
		return nil, err
	}
	s := model.CustomerSummary{Customer: *c}
	if err := sqlx.GetContext(ctx, q, &s.WorkCount, q.Rebind(`SELECT COUNT(*) FROM works WHERE customer_id = ?`), id); err != nil {
		return nil, fmt.Errorf("failed to count works: %w", err)
	}

	var totals struct {
		Invoiced decimal.Decimal `db:"invoiced"`
		Paid     decimal.Decimal `db:"paid"`
		Open     decimal.Decimal `db:"open_balance"`
	}
	err = sqlx.GetContext(ctx, q, &totals, q.Rebind(`
		SELECT
			COALESCE(SUM(total), 0) AS invoiced,
			COALESCE(SUM(amount_paid), 0) AS paid,
			COALESCE(SUM(CASE WHEN status IN ('sent', 'overdue') THEN total - amount_paid ELSE 0 END), 0) AS open_balance
		FROM invoices
		WHERE customer_id = ? AND status <> 'cancelled'`), id)
	if err != nil {
		return nil, fmt.Errorf("failed to sum invoices for customer %d: %w", id, err)
	}
	s.InvoicedTotal = totals.Invoiced.Round(2)
	s.PaidTotal = totals.Paid.Round(2)
	s.Outstanding = totals.Open.Round(2)
	return &s, nil
}
