package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"backoffice/model"
)

func countRows(ctx context.Context, q sqlx.ExtContext, query string, args ...any) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, q, &n, q.Rebind(query), args...)
	return n, err
}

func statusCounts(ctx context.Context, q sqlx.ExtContext, table string) ([]model.StatusCount, error) {
	counts := []model.StatusCount{}
	err := sqlx.SelectContext(ctx, q, &counts,
		`SELECT status, COUNT(*) AS count FROM `+table+` GROUP BY status ORDER BY status`)
	return counts, err
}

// GetDashboardStats computes the dashboard aggregates. today anchors "this
// month" and the six-month revenue window.
func GetDashboardStats(ctx context.Context, q sqlx.ExtContext, today time.Time) (*model.DashboardStats, error) {
	var s model.DashboardStats
	var err error

	if s.LeadsTotal, err = countRows(ctx, q, `SELECT COUNT(*) FROM leads`); err != nil {
		return nil, fmt.Errorf("failed to count leads: %w", err)
	}
	if s.LeadsByStatus, err = statusCounts(ctx, q, "leads"); err != nil {
		return nil, fmt.Errorf("failed to group leads: %w", err)
	}
	if s.CustomersTotal, err = countRows(ctx, q, `SELECT COUNT(*) FROM customers`); err != nil {
		return nil, fmt.Errorf("failed to count customers: %w", err)
	}
	if s.WorksTotal, err = countRows(ctx, q, `SELECT COUNT(*) FROM works`); err != nil {
		return nil, fmt.Errorf("failed to count works: %w", err)
	}
	if s.WorksByStatus, err = statusCounts(ctx, q, "works"); err != nil {
		return nil, fmt.Errorf("failed to group works: %w", err)
	}
	if s.ActiveStaff, err = countRows(ctx, q, `SELECT COUNT(*) FROM staff WHERE status = ?`, model.StaffActive); err != nil {
		return nil, fmt.Errorf("failed to count staff: %w", err)
	}

	s.InvoicesByStatus = []model.InvoiceStatusTotal{}
	err = sqlx.SelectContext(ctx, q, &s.InvoicesByStatus, `
		SELECT status, COUNT(*) AS count, COALESCE(SUM(total), 0) AS total
		FROM invoices GROUP BY status ORDER BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to group invoices: %w", err)
	}
	for i := range s.InvoicesByStatus {
		s.InvoicesByStatus[i].Total = s.InvoicesByStatus[i].Total.Round(2)
	}

	var outstanding decimal.Decimal
	err = sqlx.GetContext(ctx, q, &outstanding, q.Rebind(`
		SELECT COALESCE(SUM(total - amount_paid), 0) FROM invoices WHERE status IN (?, ?)`),
		model.InvoiceSent, model.InvoiceOverdue)
	if err != nil {
		return nil, fmt.Errorf("failed to sum outstanding invoices: %w", err)
	}
	s.Outstanding = outstanding.Round(2)

	month := today.Format("2006-01")
	var paid decimal.Decimal
	err = sqlx.GetContext(ctx, q, &paid, q.Rebind(`
		SELECT COALESCE(SUM(total), 0) FROM invoices WHERE status = ? AND SUBSTR(paid_date, 1, 7) = ?`),
		model.InvoicePaid, month)
	if err != nil {
		return nil, fmt.Errorf("failed to sum paid invoices: %w", err)
	}
	s.PaidThisMonth = paid.Round(2)

	if s.Revenue, err = monthlyRevenue(ctx, q, today, 6); err != nil {
		return nil, err
	}
	return &s, nil
}

// monthlyRevenue returns paid totals for the last n months ending with
// today's month, oldest first. Months without payments are zero.
func monthlyRevenue(ctx context.Context, q sqlx.ExtContext, today time.Time, n int) ([]model.MonthlyRevenue, error) {
	first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(n - 1), 0)

	var rows []model.MonthlyRevenue
	err := sqlx.SelectContext(ctx, q, &rows, q.Rebind(`
		SELECT SUBSTR(paid_date, 1, 7) AS month, COALESCE(SUM(total), 0) AS revenue
		FROM invoices
		WHERE status = ? AND paid_date >= ?
		GROUP BY SUBSTR(paid_date, 1, 7)`),
		model.InvoicePaid, first.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("failed to group revenue by month: %w", err)
	}
	byMonth := make(map[string]decimal.Decimal, len(rows))
	for _, r := range rows {
		byMonth[r.Month] = r.Revenue
	}

	out := make([]model.MonthlyRevenue, 0, n)
	for i := 0; i < n; i++ {
		m := first.AddDate(0, i, 0).Format("2006-01")
		out = append(out, model.MonthlyRevenue{Month: m, Revenue: byMonth[m].Round(2)})
	}
	return out, nil
}
